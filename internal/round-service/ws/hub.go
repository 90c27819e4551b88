package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/card-round-platform-poc/internal/round-service/broadcast"
)

// Hub gerencia conexões WebSocket dos observadores de rodada.
// Todos os clientes recebem o mesmo stream de eventos (timer, estado,
// resultado); não há assinatura por tópico — a rodada é global.
type Hub struct {
	upgrader websocket.Upgrader
	snapshot func() broadcast.Snapshot

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// NewHub cria o hub com política customizada de origem (CORS) e a fonte
// de snapshot para resync.
func NewHub(allowOrigin func(r *http.Request) bool, snapshot func() broadcast.Snapshot) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		snapshot: snapshot,
		conns:    make(map[*websocket.Conn]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket.
// Ao conectar, o cliente já recebe um snapshot; "sync" repete o snapshot
// sob demanda e "ping" responde pong.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	h.sendSnapshot(conn)

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "sync":
			h.sendSnapshot(conn)
		case "ping":
			_ = conn.WriteJSON(map[string]string{"type": "pong"})
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// sendSnapshot envia o estado completo corrente para uma conexão.
func (h *Hub) sendSnapshot(conn *websocket.Conn) {
	snap := h.snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = conn.WriteJSON(ServerMsg{Type: "snapshot", Payload: payload})
}

// Broadcast envia um evento serializado para todas as conexões.
// Entrega melhor-esforço: falha de escrita derruba a conexão e o cliente
// se recupera reconectando + sync.
func (h *Hub) Broadcast(raw []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, raw); err != nil {
			_ = c.Close()
		}
	}
}
