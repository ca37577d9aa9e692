package http

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// JSONResponseBuilder assembles a complete JSON response before anything is
// written, so a failed encode never leaves a partial body behind.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a builder with a 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Payload sets the value to encode.
func (b *JSONResponseBuilder) Payload(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

// Build encodes the payload. An encoding failure is reported as a
// server_error response instead.
func (b *JSONResponseBuilder) Build() (int, []byte) {
	body, err := encodeJSON(b.payload)
	if err != nil {
		body, _ = encodeJSON(messageError{Error: codeServerError, Message: err.Error()})
		return http.StatusInternalServerError, body
	}
	return b.statusCode, body
}

// encodeJSON marshals v without HTML escaping, ending in a newline.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write sends the response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) error {
	status, body := b.Build()
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(body)
	return err
}

// writeJSON is shorthand for a builder with only a status and payload.
func writeJSON(w http.ResponseWriter, status int, payload any) error {
	return NewJSONResponse().Status(status).Payload(payload).Write(w)
}
