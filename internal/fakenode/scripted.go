package fakenode

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Recorder keeps the frames received by a scripted node.
type Recorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *Recorder) record(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), frame...))
}

// Received returns a copy of every frame received so far.
func (r *Recorder) Received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

// NumReceived returns the number of frames received so far.
func (r *Recorder) NumReceived() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

var _ http.Handler = &WebSocketNode{}

// WebSocketNode is a scripted node served over WebSocket.
type WebSocketNode struct {
	Recorder
	Script Script

	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    map[*websocket.Conn]*sync.Mutex
}

// NewWebSocketNode returns a WebSocketNode which answers with script.
func NewWebSocketNode(script Script) *WebSocketNode {
	return &WebSocketNode{
		Script: script,
		conns:  map[*websocket.Conn]*sync.Mutex{},
	}
}

func (n *WebSocketNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wmu := &sync.Mutex{}
	n.mu.Lock()
	n.conns[conn] = wmu
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		delete(n.conns, conn)
		n.mu.Unlock()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		n.record(frame)
		for _, out := range n.Script(frame) {
			wmu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, out)
			wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Push sends a frame to every connected client.
func (n *WebSocketNode) Push(frame []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for conn, wmu := range n.conns {
		wmu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, frame)
		wmu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// NumConns returns the number of connected clients.
func (n *WebSocketNode) NumConns() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.conns)
}

// Disconnect closes every client connection.
func (n *WebSocketNode) Disconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for conn := range n.conns {
		conn.Close()
	}
}

// SocketNode is a scripted node served over a Unix socket, the way geth
// serves IPC: a stream of JSON values in both directions.
type SocketNode struct {
	Recorder
	Script Script

	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	accepted int
	inflight int
	peak     int
}

// ListenSocket starts a SocketNode on path.
func ListenSocket(path string, script Script) (*SocketNode, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	n := &SocketNode{
		Script:   script,
		listener: l,
		conns:    map[net.Conn]struct{}{},
	}
	go n.serve()
	return n, nil
}

func (n *SocketNode) serve() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			return
		}
		n.mu.Lock()
		n.conns[conn] = struct{}{}
		n.accepted++
		n.mu.Unlock()
		go n.serveConn(conn)
	}
}

func (n *SocketNode) serveConn(conn net.Conn) {
	defer func() {
		conn.Close()
		n.mu.Lock()
		delete(n.conns, conn)
		n.mu.Unlock()
	}()
	dec := json.NewDecoder(bufio.NewReader(conn))
	for {
		var frame json.RawMessage
		if err := dec.Decode(&frame); err != nil {
			return
		}
		n.record(frame)

		n.mu.Lock()
		n.inflight++
		if n.inflight > n.peak {
			n.peak = n.inflight
		}
		n.mu.Unlock()

		out := n.Script(frame)

		n.mu.Lock()
		n.inflight--
		n.mu.Unlock()

		for _, f := range out {
			if _, err := conn.Write(append(f, '\n')); err != nil {
				return
			}
		}
	}
}

// Peak returns the highest number of frames that were being answered at the
// same time.
func (n *SocketNode) Peak() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peak
}

// Accepted returns the number of connections accepted so far.
func (n *SocketNode) Accepted() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.accepted
}

// NumConns returns the number of open connections.
func (n *SocketNode) NumConns() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.conns)
}

// Close stops listening and closes every connection.
func (n *SocketNode) Close() error {
	err := n.listener.Close()
	n.mu.Lock()
	defer n.mu.Unlock()
	for conn := range n.conns {
		conn.Close()
	}
	return err
}

var _ io.Closer = &SocketNode{}
