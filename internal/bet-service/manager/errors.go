package manager

import (
	"errors"
	"fmt"
)

// Taxonomia de erros das operações da aposta. Todos são devolvidos de forma
// síncrona ao chamador; nenhuma operação faz retry internamente.
var (
	// Operação ilegal para o status atual (ou chave vencedora inexistente no End).
	ErrInvalidState = errors.New("invalid bet state")

	// Chave de opção não corresponde a nenhuma opção da aposta.
	ErrUnknownOption = errors.New("unknown option")

	// Valor de aposta negativo.
	ErrInvalidAmount = errors.New("invalid amount")

	// Aposta mal configurada na criação: sem opções ou sem ledger.
	ErrConfig = errors.New("bet misconfigured")
)

// DependencyError indica falha de ida-e-volta com o store ou com o ledger.
// O estado fica como os passos já confirmados deixaram; não há rollback automático.
type DependencyError struct {
	Op  string // ex: "store: insert entry", "ledger: reserve"
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency failed: %s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

func depErr(op string, err error) error {
	return &DependencyError{Op: op, Err: err}
}
