package gatewayserver

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// httpChannel is implemented by channel plugins that accept inbound
// delivery over plain HTTP (Slack events, LINE/webhook/Kakao POSTs). Not
// every channels.Plugin implements it; Discord and IRC push to the
// gateway over their own long-lived connections instead.
type httpChannel interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// buildMux assembles the HTTP surface: health, root, metrics, and the
// WebSocket upgrade, with a JSON 404 fallback for everything else.
func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.Handle("GET /metrics", promhttp.Handler())

	wsPath := s.cfg.Gateway.WSPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	mux.HandleFunc(wsPath, s.handleWS)

	mux.HandleFunc("POST /webhooks/{id}", s.handleChannelWebhook)

	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// handleChannelWebhook forwards an inbound HTTP delivery to the channel
// plugin named by the path's {id}, if it is registered and supports
// inbound HTTP delivery.
func (s *Server) handleChannelWebhook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	plugin, ok := s.deps.Channels.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	handler, ok := plugin.(httpChannel)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	nonce, err := generateNonce()
	if err == nil {
		w.Header().Set("Content-Security-Policy", buildCSP(nonce, true))
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": "haya", "status": "running"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
}
