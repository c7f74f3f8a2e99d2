package server

import (
	"net/http"
)

// wrappedWriter captures the status code and body size written by a handler
type wrappedWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	written      bool
}

func newWrappedWriter(w http.ResponseWriter) *wrappedWriter {
	return &wrappedWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader records the first status code; later calls are ignored
func (ww *wrappedWriter) WriteHeader(code int) {
	if ww.written {
		return
	}
	ww.statusCode = code
	ww.ResponseWriter.WriteHeader(code)
	ww.written = true
}

func (ww *wrappedWriter) Write(b []byte) (int, error) {
	if !ww.written {
		ww.WriteHeader(http.StatusOK)
	}
	n, err := ww.ResponseWriter.Write(b)
	ww.bytesWritten += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (ww *wrappedWriter) Unwrap() http.ResponseWriter {
	return ww.ResponseWriter
}

func (ww *wrappedWriter) Status() int {
	return ww.statusCode
}
