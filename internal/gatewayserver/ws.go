package gatewayserver

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sunggeunkim/haya-sub004/internal/protocol"
)

const (
	wsSendQueueSize   = 1024
	wsMaxPayloadBytes = 1 << 20
	wsWriteWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsConn is one authenticated client connection: an inbound reader and an
// outbound writer communicating through a bounded queue. Method handlers
// run concurrently per connection; responses are matched to requests by
// id, so clients may pipeline.
type wsConn struct {
	server *Server
	conn   *websocket.Conn
	id     string

	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc

	authMu        sync.Mutex
	authenticated bool

	eventSeq atomic.Int64

	callMu      sync.Mutex
	cancelFuncs map[string]context.CancelFunc
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	preAuth := s.preAuthenticate(r)
	remote := s.clientAddr(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	wc := &wsConn{
		server:        s,
		conn:          conn,
		id:            uuid.NewString(),
		send:          make(chan []byte, wsSendQueueSize),
		ctx:           ctx,
		cancel:        cancel,
		authenticated: preAuth,
		cancelFuncs:   make(map[string]context.CancelFunc),
	}

	s.connectedClients.Add(1)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ConnectedClients.Inc()
	}
	s.log().Debug(ctx, "ws client connected", "client_id", wc.id, "remote", remote, "pre_authenticated", preAuth)
	defer func() {
		s.connectedClients.Add(-1)
		if s.deps.Metrics != nil {
			s.deps.Metrics.ConnectedClients.Dec()
		}
	}()

	go wc.writeLoop()
	wc.readLoop()
}

func (wc *wsConn) readLoop() {
	defer wc.close()
	wc.conn.SetReadLimit(wsMaxPayloadBytes)

	for {
		messageType, data, err := wc.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		wc.handleFrame(data)
	}
}

func (wc *wsConn) writeLoop() {
	for {
		select {
		case <-wc.ctx.Done():
			return
		case data, ok := <-wc.send:
			if !ok {
				return
			}
			if data == nil {
				// Close marker from sendErrorAndClose: every frame queued
				// before it has been written.
				wc.close()
				return
			}
			_ = wc.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := wc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (wc *wsConn) close() {
	wc.cancel()
	_ = wc.conn.Close()
}

// isAuthenticated reports the connection's current auth state.
func (wc *wsConn) isAuthenticated() bool {
	wc.authMu.Lock()
	defer wc.authMu.Unlock()
	return wc.authenticated
}

func (wc *wsConn) markAuthenticated() {
	wc.authMu.Lock()
	wc.authenticated = true
	wc.authMu.Unlock()
}

type authParams struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (wc *wsConn) handleFrame(data []byte) {
	req, perr := protocol.ParseRequest(data)
	if perr != nil {
		wc.sendError("", perr.Code, perr.Message)
		return
	}

	if !wc.isAuthenticated() {
		if req.Method == "auth" {
			var params authParams
			_ = jsonUnmarshalLenient(req.Params, &params)
			if (params.Token != "" && wc.server.checkSecret(params.Token)) ||
				(params.Password != "" && wc.server.checkSecret(params.Password)) {
				wc.markAuthenticated()
				wc.sendResult(req.ID, map[string]any{"authenticated": true})
				return
			}
			wc.sendErrorAndClose(req.ID, protocol.CodeUnauthorized, "invalid credentials")
			return
		}
		wc.sendErrorAndClose(req.ID, protocol.CodeUnauthorized, "unauthenticated")
		return
	}

	go wc.dispatch(req)
}

// dispatch validates params, builds a per-request deadline (none for the
// streaming chat.send method, which instead enforces an idle-delta
// timeout internally), and invokes the method handler.
func (wc *wsConn) dispatch(req *protocol.Request) {
	if wc.server.deps.Metrics != nil {
		wc.server.deps.Metrics.FramesReceived.WithLabelValues(req.Method).Inc()
	}

	handler, ok := methodTable[req.Method]
	if !ok {
		wc.sendError(req.ID, protocol.CodeMethodNotFound, "method not found: "+req.Method)
		return
	}

	if err := protocol.ValidateParams(req.Method, req.Params); err != nil {
		if pe, ok := err.(*protocol.ProtocolError); ok {
			wc.sendError(req.ID, pe.Code, pe.Message)
		} else {
			wc.sendError(req.ID, protocol.CodeInvalidParams, err.Error())
		}
		return
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if req.Method == "chat.send" {
		ctx, cancel = context.WithCancel(wc.ctx)
	} else {
		ctx, cancel = context.WithTimeout(wc.ctx, defaultMethodDeadline)
	}
	wc.registerCancel(req.ID, cancel)
	defer wc.unregisterCancel(req.ID)
	defer cancel()

	handler(wc.server, ctx, wc, req)
}

func (wc *wsConn) registerCancel(id string, cancel context.CancelFunc) {
	wc.callMu.Lock()
	wc.cancelFuncs[id] = cancel
	wc.callMu.Unlock()
}

func (wc *wsConn) unregisterCancel(id string) {
	wc.callMu.Lock()
	delete(wc.cancelFuncs, id)
	wc.callMu.Unlock()
}

// cancelCall cancels the context of an in-flight request by id, reporting
// whether anything was actually in flight.
func (wc *wsConn) cancelCall(id string) bool {
	wc.callMu.Lock()
	cancel, ok := wc.cancelFuncs[id]
	wc.callMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// enqueue pushes a wire-ready frame to the outbound queue. A client whose
// writer has fallen more than wsSendQueueSize frames behind is the
// slowest client in the room; it is dropped with RATE_LIMITED rather than
// let its backlog grow unbounded.
func (wc *wsConn) enqueue(data []byte) {
	select {
	case wc.send <- data:
	default:
		dropped, _ := protocol.SerializeFrame(protocol.BuildErrorResponse("", protocol.CodeRateLimited, "client too slow, disconnecting"))
		select {
		case wc.send <- dropped:
		default:
		}
		wc.close()
	}
}

func (wc *wsConn) sendResult(id string, result any) {
	data, err := protocol.SerializeFrame(protocol.BuildResponse(id, result))
	if err != nil {
		return
	}
	if wc.server.deps.Metrics != nil {
		wc.server.deps.Metrics.FramesSent.WithLabelValues("response").Inc()
	}
	wc.enqueue(data)
}

func (wc *wsConn) sendError(id string, code protocol.ErrorCode, message string) {
	data, err := protocol.SerializeFrame(protocol.BuildErrorResponse(id, code, message))
	if err != nil {
		return
	}
	if wc.server.deps.Metrics != nil {
		wc.server.deps.Metrics.FramesSent.WithLabelValues("response").Inc()
	}
	wc.enqueue(data)
}

// sendErrorAndClose queues an error frame followed by a close marker, so
// the writer delivers the frame before it closes the socket.
func (wc *wsConn) sendErrorAndClose(id string, code protocol.ErrorCode, message string) {
	wc.sendError(id, code, message)
	select {
	case wc.send <- nil:
	default:
		wc.close()
	}
}

func (wc *wsConn) sendEvent(event string, data any) {
	frame := protocol.BuildEvent(event, data)
	frame.Seq = wc.eventSeq.Add(1)
	raw, err := protocol.SerializeFrame(frame)
	if err != nil {
		return
	}
	if wc.server.deps.Metrics != nil {
		wc.server.deps.Metrics.FramesSent.WithLabelValues("event").Inc()
	}
	wc.enqueue(raw)
}
