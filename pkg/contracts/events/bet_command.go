package events

// Ações aceitas pelo worker de comandos. O parsing do texto do chat acontece
// no front-end; aqui o comando já chega estruturado.
const (
	ActionOpen  = "open"
	ActionEnter = "enter"
	ActionClear = "clear"
	ActionClose = "close"
	ActionEnd   = "end"
)

// Evento consumido do tópico "bet_commands"
type BetCommand struct {
	Action   string `json:"action"`
	User     string `json:"user,omitempty"`
	Options  string `json:"options,omitempty"` // string crua "a) ... b) ..." (apenas para open)
	Option   string `json:"option,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	TsUnixMs int64  `json:"ts_unix_ms"`
}
