package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// A stream with no client message for readIdleLimit is considered dead and
// the read loop unwinds. Application-level pings keep healthy clients alive.
const (
	writeTimeout  = 10 * time.Second
	readIdleLimit = 5 * time.Minute
)

// WriteTyped marshals v to the connection under the write timeout.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// WriteError sends a transport-level error event.
func WriteError(conn *websocket.Conn, msg string) error {
	return WriteTyped(conn, ErrorResponse{Event: EventError, Error: msg})
}

// ReadJSON refreshes the idle deadline and decodes the next client message.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readIdleLimit))
	return conn.ReadJSON(v)
}
