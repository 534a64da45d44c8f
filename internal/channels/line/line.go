// Package line implements a channels.Plugin for the LINE Messaging API.
// Inbound delivery is webhook-based: the gateway's HTTP surface forwards
// request bodies and the X-Line-Signature header to HandleWebhook.
package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/sunggeunkim/haya-sub004/internal/channels"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

const pushAPI = "https://api.line.me/v2/bot/message/push"

// Plugin is a LINE channels.Plugin.
type Plugin struct {
	id     string
	cfg    Config
	client *http.Client

	mu        sync.Mutex
	connected bool
	handler   channels.MessageHandler
	lastUser  string // most recent inbound userId, used as the default push target
}

// New builds a LINE plugin with id using cfg (see ResolveConfig).
func New(id string, cfg Config) *Plugin {
	return &Plugin{id: id, cfg: cfg, client: http.DefaultClient}
}

func (p *Plugin) ID() string          { return p.id }
func (p *Plugin) DisplayName() string { return "LINE" }

func (p *Plugin) SetMessageHandler(handler channels.MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Start has nothing to dial: LINE delivery is inbound webhook push plus
// outbound REST, so starting just marks the channel ready.
func (p *Plugin) Start(ctx context.Context) error {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Stop marks the channel disconnected.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

// Status reports the current connection state.
func (p *Plugin) Status() channels.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return channels.Status{Connected: p.connected}
}

// Send pushes msg.Content to the most recent inbound user via the LINE
// push API.
func (p *Plugin) Send(ctx context.Context, msg models.Message) error {
	p.mu.Lock()
	to := p.lastUser
	p.mu.Unlock()
	if to == "" {
		return fmt.Errorf("line channel has no known recipient yet")
	}

	token := os.Getenv(p.cfg.ChannelAccessTokenEnvVar)
	if token == "" {
		return fmt.Errorf("line channel access token not set (%s)", p.cfg.ChannelAccessTokenEnvVar)
	}

	body, err := json.Marshal(map[string]any{
		"to":       to,
		"messages": []map[string]string{{"type": "text", "text": msg.Content}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushAPI, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("line push failed: status %d", resp.StatusCode)
	}
	return nil
}

type lineEvent struct {
	Type   string `json:"type"`
	Source struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

type lineWebhookBody struct {
	Events []lineEvent `json:"events"`
}

// HandleWebhook verifies the X-Line-Signature HMAC and forwards any text
// message events to the registered handler.
func (p *Plugin) HandleWebhook(body []byte, signature string) error {
	secret := os.Getenv(p.cfg.ChannelSecretEnvVar)
	if secret == "" {
		return fmt.Errorf("line channel secret not set (%s)", p.cfg.ChannelSecretEnvVar)
	}
	if !verifySignature(secret, body, signature) {
		return fmt.Errorf("invalid line webhook signature")
	}

	var parsed lineWebhookBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode line webhook: %w", err)
	}

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()

	for _, ev := range parsed.Events {
		if ev.Type != "message" || ev.Message.Type != "text" {
			continue
		}
		p.mu.Lock()
		p.lastUser = ev.Source.UserID
		p.mu.Unlock()
		if handler != nil {
			handler(p.id, models.Message{Role: models.RoleUser, Content: ev.Message.Text, Sender: ev.Source.UserID})
		}
	}
	return nil
}

// ServeHTTP adapts HandleWebhook to an http.Handler so the gateway's HTTP
// mux can forward LINE webhook requests directly to it.
func (p *Plugin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}
	if err := p.HandleWebhook(body, r.Header.Get("X-Line-Signature")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
