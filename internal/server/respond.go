package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/mumumio1/wtarget/internal/log"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
)

// MessageResponse is the body of /api/error and of harness-level failures
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// marshalJSON encodes v compactly, without HTML escaping and without a
// trailing newline.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	body, err := marshalJSON(data)
	if err != nil {
		s.logger.WithContext(r.Context()).Error("failed to encode JSON response",
			log.String("path", r.URL.Path),
			log.Error(err),
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

func (s *Server) respondText(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}
