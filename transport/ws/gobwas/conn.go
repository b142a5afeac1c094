// Package gobwas implements WebSocket connections using gobwas/ws, a
// zero-copy alternative to the default Gorilla implementation.
package gobwas

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Dial opens a client-side connection to url.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	dialer := ws.Dialer{}
	if len(header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(header)
	}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return newConn(conn, br, ws.StateClientSide), nil
}

// newConn wraps conn. If br is not nil, it holds data that was buffered
// during the handshake and must be read before conn.
func newConn(conn net.Conn, br *bufio.Reader, state ws.State) *Conn {
	var src io.Reader = conn
	if br != nil {
		src = br
	}
	c := &Conn{
		conn:  conn,
		state: state,
	}
	c.r = &wsutil.Reader{
		Source:    src,
		State:     state,
		CheckUTF8: true,
	}
	c.control = wsutil.ControlFrameHandler(lockedWriter{c}, state)
	return c
}

// Conn reads and writes whole text frames. Control frames are answered
// while reading.
type Conn struct {
	muWrite sync.Mutex
	muRead  sync.Mutex
	conn    net.Conn
	state   ws.State
	r       *wsutil.Reader
	control wsutil.FrameHandlerFunc
}

func (c *Conn) ReadFrame() ([]byte, error) {
	c.muRead.Lock()
	defer c.muRead.Unlock()
	for {
		hdr, err := c.r.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.control(hdr, c.r); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(c.r)
	}
}

func (c *Conn) WriteFrame(frame []byte) error {
	c.muWrite.Lock()
	defer c.muWrite.Unlock()
	return c.writeFrame(ws.OpText, frame)
}

func (c *Conn) writeFrame(op ws.OpCode, frame []byte) error {
	if c.state.ClientSide() {
		return wsutil.WriteClientMessage(c.conn, op, frame)
	}
	return wsutil.WriteServerMessage(c.conn, op, frame)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// lockedWriter lets control frame replies share the write lock with data
// frames.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.muWrite.Lock()
	defer w.c.muWrite.Unlock()
	return w.c.conn.Write(p)
}

// Upgrader upgrades an HTTP request to a server-side WebSocket connection.
type Upgrader struct {
	Upgrader ws.HTTPUpgrader
}

func (u *Upgrader) Upgrade(r *http.Request, w http.ResponseWriter) (*Conn, error) {
	conn, rw, _, err := u.Upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}
	var br *bufio.Reader
	if rw != nil {
		br = rw.Reader
	}
	return newConn(conn, br, ws.StateServerSide), nil
}
