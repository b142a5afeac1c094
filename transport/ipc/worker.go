package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"
)

// pingWindow is how long a ping waits on an idle socket. A socket that
// stays quiet that long is alive.
const pingWindow = 5 * time.Millisecond

// worker owns one socket. It's used by one exchange at a time.
type worker struct {
	conn      net.Conn
	dec       *json.Decoder
	idleSince time.Time
	idlePings int
}

func dialWorker(ctx context.Context, path string, timeout time.Duration, bufSize int) (*worker, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, &WorkerInitError{Path: path, cause: err}
	}
	var r io.Reader = conn
	if bufSize > 0 {
		r = bufio.NewReaderSize(conn, bufSize)
	}
	return &worker{
		conn:      conn,
		dec:       json.NewDecoder(r),
		idleSince: time.Now(),
	}, nil
}

// exchange writes payload and reads back exactly one JSON value. The socket
// must not be reused after an error, since a late response may still be in
// the stream.
func (w *worker) exchange(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		w.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := w.conn.Write(payload); err != nil {
		return nil, w.ctxErr(ctx, err)
	}
	var resp json.RawMessage
	if err := w.dec.Decode(&resp); err != nil {
		return nil, w.ctxErr(ctx, err)
	}

	w.idleSince = time.Now()
	w.idlePings = 0
	return resp, nil
}

// ctxErr prefers the context's error when it was the cause of a socket
// failure.
func (w *worker) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// ping reads from the idle socket for pingWindow. The peer closing the socket
// or sending unsolicited data both make the worker unusable.
func (w *worker) ping() bool {
	if err := w.conn.SetReadDeadline(time.Now().Add(pingWindow)); err != nil {
		return false
	}
	var buf [1]byte
	_, err := w.conn.Read(buf[:])
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		return false
	}
	return w.conn.SetReadDeadline(time.Time{}) == nil
}

func (w *worker) terminate() error {
	return w.conn.Close()
}
