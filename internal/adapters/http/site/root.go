// Package site serves the landing page at the server root.
package site

import (
	"context"
	"net/http"
)

// Register attaches the landing page to mux. Only the exact root path matches.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /{$}", NewRootHandler().HandleRoot)
}

// RootHandler handles root path requests.
type RootHandler struct{}

// NewRootHandler creates a new root handler.
func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

// HandleRoot handles GET / requests.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

const indexHTML = `<!doctype html>
<html>
  <head><meta charset="utf-8"><title>panelscore</title></head>
  <body>
    <h1>panelscore</h1>
    <p>Relevancy and profile scoring for interview panels.</p>
    <ul>
      <li><a href="/api-docs">API reference</a></li>
      <li><a href="/openapi.yaml">OpenAPI document</a></li>
      <li><a href="/stats">Runtime stats</a></li>
      <li><a href="/export">Score report (.xlsx)</a></li>
      <li><a href="/healthz">Metrics</a></li>
    </ul>
  </body>
</html>`
