package manager

import (
	"regexp"
	"strings"
)

// Token de chave de opção: letras minúsculas seguidas de ")" no início da
// string ou após espaço. Um ")" em qualquer outra posição faz parte da
// descrição e não delimita nada.
var optionTokenRe = regexp.MustCompile(`(^|\s)([a-z]+)\)`)

// ParseOptions extrai o mapa chave -> descrição de uma string livre no formato
// "a) descrição b) descrição ...". A descrição vai até o próximo token de
// chave ou o fim da string, com espaços das pontas removidos. Segmentos sem
// token de chave são descartados em silêncio; sem token algum, o mapa sai vazio.
func ParseOptions(raw string) map[string]string {
	opts := make(map[string]string)

	matches := optionTokenRe.FindAllStringSubmatchIndex(raw, -1)
	for i, m := range matches {
		key := strings.ToLower(raw[m[4]:m[5]])

		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		opts[key] = strings.TrimSpace(raw[m[1]:end])
	}

	return opts
}
