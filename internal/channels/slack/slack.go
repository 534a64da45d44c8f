// Package slack implements a channels.Plugin backed by
// github.com/slack-go/slack. Inbound delivery is webhook-based (Slack's
// Events API), not socket-mode: the gateway's HTTP surface forwards
// request bodies to HandleEvent.
package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/slack-go/slack"

	"github.com/sunggeunkim/haya-sub004/internal/channels"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// Config configures the Slack plugin.
type Config struct {
	ID            string
	BotToken      string
	ChannelID     string // default outbound channel
	SigningSecret string
}

// Plugin is a Slack channels.Plugin.
type Plugin struct {
	cfg Config

	mu        sync.Mutex
	client    *slack.Client
	connected bool
	handler   channels.MessageHandler
}

// New builds a Slack plugin from cfg.
func New(cfg Config) *Plugin {
	return &Plugin{cfg: cfg}
}

func (p *Plugin) ID() string          { return p.cfg.ID }
func (p *Plugin) DisplayName() string { return "Slack" }

func (p *Plugin) SetMessageHandler(handler channels.MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Start validates the bot token against Slack's auth.test endpoint.
func (p *Plugin) Start(ctx context.Context) error {
	client := slack.New(p.cfg.BotToken)
	if _, err := client.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	p.mu.Lock()
	p.client = client
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Stop clears the client; Slack's REST client has no persistent
// connection to close.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.client = nil
	p.connected = false
	p.mu.Unlock()
	return nil
}

// Send posts msg.Content to the configured channel.
func (p *Plugin) Send(ctx context.Context, msg models.Message) error {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return fmt.Errorf("slack channel not started")
	}
	_, _, err := client.PostMessageContext(ctx, p.cfg.ChannelID, slack.MsgOptionText(msg.Content, false))
	return err
}

// Status reports the current connection state.
func (p *Plugin) Status() channels.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return channels.Status{Connected: p.connected}
}

// slackEventPayload covers the subset of Slack's Events API payload the
// gateway cares about: message events and the one-time URL verification
// handshake.
type slackEventPayload struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     struct {
		Type    string `json:"type"`
		User    string `json:"user"`
		Text    string `json:"text"`
		BotID   string `json:"bot_id"`
		Channel string `json:"channel"`
	} `json:"event"`
}

// HandleEvent decodes a raw Events API request body. It returns the
// verification challenge string (non-empty exactly for url_verification
// requests the caller should echo back) and forwards message events to the
// registered handler.
func (p *Plugin) HandleEvent(body []byte) (challenge string, err error) {
	var payload slackEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode slack event: %w", err)
	}
	if payload.Type == "url_verification" {
		return payload.Challenge, nil
	}
	if payload.Event.Type != "message" || payload.Event.BotID != "" {
		return "", nil
	}

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return "", nil
	}
	handler(p.cfg.ID, models.Message{Role: models.RoleUser, Content: payload.Event.Text, Sender: payload.Event.User})
	return "", nil
}

// ServeHTTP adapts HandleEvent to an http.Handler so the gateway's HTTP
// mux can forward Slack's Events API requests directly to it.
func (p *Plugin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}
	challenge, err := p.HandleEvent(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if challenge != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge))
		return
	}
	w.WriteHeader(http.StatusOK)
}
