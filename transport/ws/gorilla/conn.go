// Package gorilla implements WebSocket connections using Gorilla's WebSocket
// library.
package gorilla

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Dial opens a client-side connection to url.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// Conn reads and writes whole text frames. Reads and writes may happen
// concurrently with each other.
type Conn struct {
	muWrite sync.Mutex
	muRead  sync.Mutex
	conn    *websocket.Conn
}

func (c *Conn) ReadFrame() ([]byte, error) {
	c.muRead.Lock()
	defer c.muRead.Unlock()
	_, frame, err := c.conn.ReadMessage()
	return frame, err
}

func (c *Conn) WriteFrame(frame []byte) error {
	c.muWrite.Lock()
	defer c.muWrite.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
