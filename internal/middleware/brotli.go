package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// Bodies below this size are not worth the compression CPU.
const brotliMinLength = 1024

// Brotli compresses responses for clients that advertise br support.
// Streaming surfaces pass through untouched: SSE needs immediate flushes and
// a WebSocket handshake fails if the response is wrapped.
func Brotli() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isStreaming(c) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		w := &brotliWriter{
			ResponseWriter: c.Writer,
			enc:            brotli.NewWriterLevel(c.Writer, brotli.DefaultCompression),
			threshold:      brotliMinLength,
		}
		c.Writer = w
		defer func() {
			if err := w.finish(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Next()
	}
}

// brotliWriter buffers until the threshold is crossed, then switches the
// response to br encoding. Short bodies drain uncompressed on finish.
type brotliWriter struct {
	gin.ResponseWriter
	enc       *brotli.Writer
	pending   []byte
	threshold int
	encoding  bool
}

func (w *brotliWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	if len(w.pending) < w.threshold && !w.encoding {
		return len(p), nil
	}

	if !w.encoding {
		w.encoding = true
		w.ResponseWriter.Header().Set("Content-Encoding", "br")
		w.ResponseWriter.Header().Del("Content-Length")
	}
	if _, err := w.enc.Write(w.pending); err != nil {
		return 0, err
	}
	w.pending = w.pending[:0]
	return len(p), nil
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Flush drains any buffered bytes as plain text and forwards the flush.
// Called by handlers that stream after the middleware has wrapped them.
func (w *brotliWriter) Flush() {
	if len(w.pending) > 0 && !w.encoding {
		_, _ = w.ResponseWriter.Write(w.pending)
		w.pending = w.pending[:0]
	}
	w.ResponseWriter.Flush()
}

func (w *brotliWriter) finish() error {
	if w.encoding {
		if len(w.pending) > 0 {
			if _, err := w.enc.Write(w.pending); err != nil {
				return err
			}
			w.pending = w.pending[:0]
		}
		return w.enc.Close()
	}
	if len(w.pending) > 0 {
		_, err := w.ResponseWriter.Write(w.pending)
		w.pending = w.pending[:0]
		return err
	}
	return nil
}

func isStreaming(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.ToLower(enc)) == "br" {
			return true
		}
	}
	return false
}
