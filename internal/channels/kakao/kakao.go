// Package kakao implements a channels.Plugin for a KakaoTalk "skill
// server": Kakao posts a fixed-shape JSON request to the skill's webhook
// and expects a synchronous fixed-shape response, so unlike the other
// webhook channels this plugin's inbound and outbound paths are coupled
// through a single HTTP round trip rather than independent push calls.
package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/sunggeunkim/haya-sub004/internal/channels"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// Plugin is a KakaoTalk channels.Plugin.
type Plugin struct {
	id  string
	cfg Config

	mu        sync.Mutex
	connected bool
	handler   channels.MessageHandler
	pending   map[string]chan string // "<user id>:<utterance>" request id -> reply
}

// New builds a Kakao plugin with id using cfg (see ResolveConfig).
func New(id string, cfg Config) *Plugin {
	return &Plugin{id: id, cfg: cfg, pending: make(map[string]chan string)}
}

func (p *Plugin) ID() string          { return p.id }
func (p *Plugin) DisplayName() string { return p.cfg.BotName }

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

// Send delivers msg.Content to the pending skill-server request
// identified by msg.ToolCallID (used here to carry the Kakao request id),
// completing that HTTP round trip. Kakao has no separate push API for
// skill servers, so there is no way to "send" outside an open request.
func (p *Plugin) Send(ctx context.Context, msg models.Message) error {
	p.mu.Lock()
	reply, ok := p.pending[msg.ToolCallID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no open kakao request %q to reply to", msg.ToolCallID)
	}
	reply <- msg.Content
	return nil
}

type kakaoRequest struct {
	UserRequest struct {
		Utterance string `json:"utterance"`
		User      struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"userRequest"`
}

// HandleRequest implements the skill-server contract: it decodes the
// request, forwards an inbound message to the handler keyed by a
// synthetic request id, waits for Send to supply the reply (or ctx to
// expire), and writes the Kakao simpleText response shape.
func (p *Plugin) HandleRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(p.cfg.MaxPayloadBytes)))
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}

	var req kakaoRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid kakao request", http.StatusBadRequest)
		return
	}

	requestID := req.UserRequest.User.ID + ":" + req.UserRequest.Utterance
	replyCh := make(chan string, 1)
	p.mu.Lock()
	p.pending[requestID] = replyCh
	handler := p.handler
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, requestID)
		p.mu.Unlock()
	}()

	if handler != nil {
		handler(p.id, models.Message{
			Role:       models.RoleUser,
			Content:    req.UserRequest.Utterance,
			Sender:     req.UserRequest.User.ID,
			ToolCallID: requestID,
		})
	}

	var reply string
	select {
	case reply = <-replyCh:
	case <-r.Context().Done():
		http.Error(w, "request cancelled", http.StatusGatewayTimeout)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"version": "2.0",
		"template": map[string]any{
			"outputs": []map[string]any{
				{"simpleText": map[string]string{"text": reply}},
			},
		},
	})
}

// ServeHTTP satisfies http.Handler so the gateway's HTTP mux (or the
// channel's own dedicated listener) can dispatch to HandleRequest
// uniformly with the other webhook-style channels.
func (p *Plugin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.HandleRequest(w, r)
}
