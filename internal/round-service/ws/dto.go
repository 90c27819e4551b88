package ws

import "encoding/json"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: sync | ping
// "sync" puxa o snapshot completo do estado corrente (resync de late-joiner)
type ClientMsg struct {
	Type string `json:"type"`
}

// ServerMsg é o envelope enviado aos clientes.
type ServerMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
