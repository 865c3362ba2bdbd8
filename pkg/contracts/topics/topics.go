package topics

const (
	// Comandos de aposta vindos do front-end de chat
	BetCommands = "bet_commands"

	// Resultado de liquidação de uma aposta
	BetSettled = "bet_settled"

	// DLQ
	BetCommandsDLQ = "bet_commands_dlq"
)
