package hub

type ServerMessage struct {
	Type string `json:"type"`
}

// LogMessage carries one or more log lines of the same origin and level.
// Batched lines are joined with "\n".
type LogMessage struct {
	Type   string `json:"type"`
	Level  string `json:"level"`
	Origin string `json:"origin"`
	Text   string `json:"text"`
	Ts     int64  `json:"ts"`
}

type StatusMessage struct {
	Type   string `json:"type"`
	Status any    `json:"status"`
}

// ClientMessage is a command from a log pane client. Post uses Command,
// hotkey uses Keys, align carries nothing.
type ClientMessage struct {
	Type    string   `json:"type"`
	Command string   `json:"command,omitempty"`
	Keys    []string `json:"keys,omitempty"`
}

type ResultMessage struct {
	Type    string `json:"type"`
	Op      string `json:"op"`
	OK      bool   `json:"ok"`
	Aligned int    `json:"aligned,omitempty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
