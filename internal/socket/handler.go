package socket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"chatrelay/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict origin once a browser front-end is deployed
	},
}

// WSHandler upgrades the request and serves the socket through the hub,
// exactly like an accepted TCP connection.
func WSHandler(hub *Hub, cfg config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Go(NewWSTransport(conn, cfg))
	}
}
