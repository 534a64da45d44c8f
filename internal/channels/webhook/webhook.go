// Package webhook implements a generic channels.Plugin for a plain HTTP
// POST inbound channel with an HTTP callback URL for outbound delivery.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/sunggeunkim/haya-sub004/internal/channels"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// Config configures the generic webhook plugin.
type Config struct {
	ID          string
	OutboundURL string // HTTP callback invoked by Send
}

// Plugin is a generic HTTP webhook channels.Plugin.
type Plugin struct {
	cfg    Config
	client *http.Client

	mu        sync.Mutex
	connected bool
	handler   channels.MessageHandler
}

// New builds a webhook plugin from cfg.
func New(cfg Config) *Plugin {
	return &Plugin{cfg: cfg, client: http.DefaultClient}
}

func (p *Plugin) ID() string          { return p.cfg.ID }
func (p *Plugin) DisplayName() string { return "Webhook" }

func (p *Plugin) SetMessageHandler(handler channels.MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *Plugin) Status() channels.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return channels.Status{Connected: p.connected}
}

// Send POSTs msg as JSON to the configured outbound URL.
func (p *Plugin) Send(ctx context.Context, msg models.Message) error {
	if p.cfg.OutboundURL == "" {
		return fmt.Errorf("webhook channel has no outbound URL configured")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.OutboundURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery failed: status %d", resp.StatusCode)
	}
	return nil
}

// HandleInbound decodes a raw inbound POST body as a models.Message and
// forwards it to the registered handler.
func (p *Plugin) HandleInbound(body []byte) error {
	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	msg.Role = models.RoleUser

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler(p.cfg.ID, msg)
	}
	return nil
}

// ServeHTTP adapts HandleInbound to an http.Handler so the gateway's HTTP
// mux can forward inbound webhook POSTs directly to it.
func (p *Plugin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}
	if err := p.HandleInbound(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}
