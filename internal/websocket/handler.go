package websocket

import (
	"companion-be/pkg/store"

	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection and blocks until it closes. Inbound frames are
// passed to onMessage sequentially on a per-connection goroutine; ServeWs returns
// only after the last of them has been handled.
func ServeWs(hub *Hub, conn *websocket.Conn, id, room string, role store.Role, onMessage func([]byte)) {
	client := NewClient(conn, id, room, role)
	hub.Register(client)

	go client.writePump()
	client.readPump(hub, onMessage)
}
