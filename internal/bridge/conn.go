package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"wsbridge/internal/resolver"
)

// Conn is a message-oriented WebSocket connection. *websocket.Conn
// satisfies it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// controlWriter is implemented by connections that can send control frames
type controlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// DialFunc opens the upstream connection for one attempt
type DialFunc func(ctx context.Context, upstream resolver.UpstreamInfo, path string, header http.Header) (Conn, error)

// Resolver re-resolves the upstream before a retry
type Resolver interface {
	Resolve(ctx context.Context, requestPath string, header http.Header) (resolver.UpstreamInfo, error)
}

// Frame is one data message
type Frame struct {
	Type int
	Data []byte
}

// frameTypeName labels a message type for metrics and logs
func frameTypeName(t int) string {
	switch t {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	default:
		return "other"
	}
}

// isData reports whether t is relayed as a frame
func isData(t int) bool {
	return t == websocket.TextMessage || t == websocket.BinaryMessage
}

// readLoop feeds frames from conn to frames until a read fails or stop is
// closed. The read error is delivered on errc.
func readLoop(conn Conn, frames chan<- Frame, errc chan<- error, stop <-chan struct{}) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if !isData(mt) {
			continue
		}

		select {
		case frames <- Frame{Type: mt, Data: data}:
		case <-stop:
			return
		}
	}
}

// sendClose writes a close frame when conn supports control frames
func sendClose(conn Conn, code int, text string) {
	cw, ok := conn.(controlWriter)
	if !ok {
		return
	}
	msg := websocket.FormatCloseMessage(code, text)
	_ = cw.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
