package api

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/varsilias/chat-relay/internal/middleware"
	"github.com/varsilias/chat-relay/pkg/types"
)

type wsControl struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// ChatWS GET /chat/ws relays chats over a WebSocket. Every text frame from
// the client is a chat request; the reply is one frame per record followed
// by {"type":"done"}. Requests on one socket are served one at a time.
func (h *Handlers) ChatWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(h.cors, r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	// A hijacked connection no longer cancels r.Context, so the read loop
	// does it when the peer goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	reqs := make(chan []byte)
	go func() {
		defer cancel()
		defer close(reqs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case reqs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range reqs {
		req, rerr := decodeChat(h.validate, bytes.NewReader(data))
		if rerr != nil {
			if err := conn.WriteJSON(wsControl{Type: "error", Error: rerr.String()}); err != nil {
				return
			}
			continue
		}
		err := h.relay.Stream(ctx, req, func(c types.Chunk) error {
			return conn.WriteJSON(c)
		})
		if err != nil {
			return
		}
		if err := conn.WriteJSON(wsControl{Type: "done"}); err != nil {
			return
		}
	}
}
