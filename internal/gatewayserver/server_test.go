package gatewayserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sunggeunkim/haya-sub004/internal/agentruntime"
	"github.com/sunggeunkim/haya-sub004/internal/channels"
	"github.com/sunggeunkim/haya-sub004/internal/config"
	"github.com/sunggeunkim/haya-sub004/internal/profiles"
	"github.com/sunggeunkim/haya-sub004/internal/sessions"
	"github.com/sunggeunkim/haya-sub004/internal/tools"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

const testToken = "0123456789012345678901234567890123"

type fakeRuntime struct {
	reply string
}

func (f *fakeRuntime) Chat(ctx context.Context, params agentruntime.ChatParams, history []models.Message, onChunk agentruntime.ChunkFunc) (models.Message, agentruntime.Usage, error) {
	onChunk("hel", false)
	onChunk("lo", false)
	onChunk("", true)
	reply := f.reply
	if reply == "" {
		reply = "hello"
	}
	return models.Message{Role: models.RoleAssistant, Content: reply}, agentruntime.Usage{InputTokens: 5, OutputTokens: 2}, nil
}

func newTestServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()
	t.Setenv("HAYA_TEST_GW_TOKEN", testToken)

	cfg := &config.Config{
		Gateway: config.GatewayConfig{
			Port: 0,
			Bind: "loopback",
			Auth: config.AuthConfig{Mode: "token", TokenEnvVar: "HAYA_TEST_GW_TOKEN"},
		},
		Agent: config.AgentConfig{
			MaxHistoryMessages:  100,
			ContextWindowTokens: 200000,
		},
	}
	cfg.ApplyDefaults()

	chanRegistry := channels.NewRegistry()
	deps := Deps{
		Sessions: sessions.NewManager(sessions.NewMemoryStore()),
		Tools:    tools.NewRegistry(),
		Channels: chanRegistry,
		Dock:     channels.NewDock(chanRegistry),
		Runtime:  &fakeRuntime{},
	}

	s, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		_ = s.Stop(context.Background())
	})
	return s, cfg
}

func httpGet(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("http.Get(%s) error = %v", url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	return resp.StatusCode, body
}

func TestGatewayHTTPHealth(t *testing.T) {
	s, _ := newTestServer(t)
	status, body := httpGet(t, fmt.Sprintf("http://%s/health", s.Addr().String()))
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestGatewayHTTPRoot(t *testing.T) {
	s, _ := newTestServer(t)
	status, body := httpGet(t, fmt.Sprintf("http://%s/", s.Addr().String()))
	if status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body["name"] != "haya" || body["status"] != "running" {
		t.Errorf("body = %v, want name=haya status=running", body)
	}
}

func TestGatewayHTTPNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	status, body := httpGet(t, fmt.Sprintf("http://%s/nonexistent", s.Addr().String()))
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if body["error"] != "Not found" {
		t.Errorf("body = %v, want error=Not found", body)
	}
}

// wsClient dials the gateway's WebSocket endpoint and authenticates.
type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialAuthenticated(t *testing.T, s *Server) *wsClient {
	t.Helper()
	url := fmt.Sprintf("ws://%s/ws", s.Addr().String())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	c := &wsClient{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })

	c.send(map[string]any{"id": "auth-1", "method": "auth", "params": map[string]any{"token": testToken}})
	resp := c.recvResponse("auth-1")
	if resp.Error != nil {
		t.Fatalf("auth failed: %+v", resp.Error)
	}
	return c
}

func (c *wsClient) send(v any) {
	c.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		c.t.Fatalf("marshal frame error = %v", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Fatalf("WriteMessage() error = %v", err)
	}
}

type wireFrame struct {
	ID     string          `json:"id"`
	Event  string          `json:"event"`
	Result json.RawMessage `json:"result"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *wsClient) readFrame() wireFrame {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("ReadMessage() error = %v", err)
	}
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.t.Fatalf("unmarshal frame error = %v, data = %s", err, data)
	}
	return frame
}

// recvResponse reads frames until it finds the response matching id,
// tolerating interleaved events.
func (c *wsClient) recvResponse(id string) wireFrame {
	c.t.Helper()
	for i := 0; i < 50; i++ {
		f := c.readFrame()
		if f.ID == id {
			return f
		}
	}
	c.t.Fatalf("no response received for id %s", id)
	return wireFrame{}
}

func TestWSUnauthenticatedFrameRejected(t *testing.T) {
	s, _ := newTestServer(t)
	url := fmt.Sprintf("ws://%s/ws", s.Addr().String())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	data, _ := json.Marshal(map[string]any{"id": "1", "method": "ping"})
	_ = conn.WriteMessage(websocket.TextMessage, data)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var frame wireFrame
	_ = json.Unmarshal(raw, &frame)
	if frame.Error == nil || frame.Error.Code != -32000 {
		t.Errorf("frame = %+v, want UNAUTHORIZED error", frame)
	}
}

func TestWSAuthThenPing(t *testing.T) {
	s, _ := newTestServer(t)
	c := dialAuthenticated(t, s)

	c.send(map[string]any{"id": "p1", "method": "ping"})
	resp := c.recvResponse("p1")
	if resp.Error != nil {
		t.Fatalf("ping error = %+v", resp.Error)
	}
	var result map[string]any
	_ = json.Unmarshal(resp.Result, &result)
	if result["pong"] != true {
		t.Errorf("result = %v, want pong=true", result)
	}
}

func TestWSUnknownMethod(t *testing.T) {
	s, _ := newTestServer(t)
	c := dialAuthenticated(t, s)

	c.send(map[string]any{"id": "u1", "method": "nonexistent.method"})
	resp := c.recvResponse("u1")
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Errorf("resp = %+v, want METHOD_NOT_FOUND", resp)
	}
}

func TestWSChatSendFlow(t *testing.T) {
	s, _ := newTestServer(t)
	c := dialAuthenticated(t, s)

	c.send(map[string]any{
		"id":     "c1",
		"method": "chat.send",
		"params": map[string]any{"sessionId": "sess-1", "message": "hi there"},
	})

	var deltas []string
	var finalResp *wireFrame
	for i := 0; i < 50 && finalResp == nil; i++ {
		f := c.readFrame()
		if f.Event == "chat.delta" {
			var d map[string]any
			_ = json.Unmarshal(f.Data, &d)
			if delta, ok := d["delta"].(string); ok {
				deltas = append(deltas, delta)
			}
			continue
		}
		if f.ID == "c1" {
			frame := f
			finalResp = &frame
		}
	}
	if finalResp == nil {
		t.Fatal("did not receive chat.send response")
	}
	if finalResp.Error != nil {
		t.Fatalf("chat.send error = %+v", finalResp.Error)
	}

	var result map[string]any
	_ = json.Unmarshal(finalResp.Result, &result)
	if result["sessionId"] != "sess-1" {
		t.Errorf("sessionId = %v, want sess-1", result["sessionId"])
	}

	// History is persisted before the chat.send response is sent, so it
	// has landed by now: user + assistant messages appended.
	count, err := s.deps.Sessions.GetMessageCount(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetMessageCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("GetMessageCount() = %d, want 2 (user + assistant)", count)
	}
}

func TestWSChatSendInvalidParams(t *testing.T) {
	s, _ := newTestServer(t)
	c := dialAuthenticated(t, s)

	c.send(map[string]any{"id": "bad1", "method": "chat.send", "params": map[string]any{"sessionId": ""}})
	resp := c.recvResponse("bad1")
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("resp = %+v, want INVALID_PARAMS", resp)
	}
}

type captureSender struct {
	mu   sync.Mutex
	sent []models.Message
}

func (c *captureSender) Send(ctx context.Context, msg models.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func TestHandleChannelMessageRunsTurnAndTouchesProfile(t *testing.T) {
	s, _ := newTestServer(t)
	s.deps.Profiles = profiles.NewStore(t.TempDir())

	sender := &captureSender{}
	inbound := models.Message{Role: models.RoleUser, Content: "hi there", Sender: "user#1", TimestampMs: 42}
	s.handleChannelMessage(context.Background(), "discord", sender, inbound)

	sender.mu.Lock()
	if len(sender.sent) != 1 || sender.sent[0].Content != "hello" {
		t.Errorf("sent = %+v, want one assistant reply", sender.sent)
	}
	sender.mu.Unlock()

	count, err := s.deps.Sessions.GetMessageCount(context.Background(), "channel:discord")
	if err != nil {
		t.Fatalf("GetMessageCount() error = %v", err)
	}
	if count != 2 {
		t.Errorf("GetMessageCount() = %d, want 2 (user + assistant)", count)
	}

	p, ok, err := s.deps.Profiles.Get("discord-user#1")
	if err != nil {
		t.Fatalf("Profiles.Get() error = %v", err)
	}
	if !ok {
		t.Fatal("sender profile not created")
	}
	if p.Channel != "discord" || p.MessageCount != 1 || p.LastSeenMs != 42 {
		t.Errorf("profile = %+v, want channel=discord count=1 last_seen=42", p)
	}
}

func TestWSChannelsListEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	c := dialAuthenticated(t, s)

	c.send(map[string]any{"id": "ch1", "method": "channels.list"})
	resp := c.recvResponse("ch1")
	if resp.Error != nil {
		t.Fatalf("channels.list error = %+v", resp.Error)
	}
	var result map[string]any
	_ = json.Unmarshal(resp.Result, &result)
	channelsList, _ := result["channels"].([]any)
	if len(channelsList) != 0 {
		t.Errorf("channels = %v, want empty", channelsList)
	}
}
