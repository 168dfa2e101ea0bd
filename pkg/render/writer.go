package render

import (
	"bufio"
	"bytes"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

const noWritten = -1

// bufferWriter holds everything the downstream handlers write until the
// interceptor finalizes. Headers go straight to the wrapped writer's map;
// nothing reaches the client before finalize.
type bufferWriter struct {
	gin.ResponseWriter

	body    bytes.Buffer
	status  int
	written bool
}

func newBufferWriter(w gin.ResponseWriter) *bufferWriter {
	status := w.Status()
	if status == 0 {
		status = http.StatusOK
	}
	return &bufferWriter{ResponseWriter: w, status: status}
}

func (w *bufferWriter) WriteHeader(code int) {
	if code > 0 && !w.written {
		w.status = code
	}
}

func (w *bufferWriter) WriteHeaderNow() {
	w.written = true
}

func (w *bufferWriter) Write(data []byte) (int, error) {
	w.written = true
	return w.body.Write(data)
}

func (w *bufferWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.body.WriteString(s)
}

func (w *bufferWriter) Status() int {
	return w.status
}

func (w *bufferWriter) Size() int {
	if !w.written {
		return noWritten
	}
	return w.body.Len()
}

func (w *bufferWriter) Written() bool {
	return w.written
}

// Flush is deferred to finalize.
func (w *bufferWriter) Flush() {}

// Hijack is refused: a hijacked connection cannot be rewritten.
func (w *bufferWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, ErrInterceptRejected
}

func (w *bufferWriter) Pusher() http.Pusher {
	return nil
}
