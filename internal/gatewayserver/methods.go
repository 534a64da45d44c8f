package gatewayserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sunggeunkim/haya-sub004/internal/protocol"
)

// methodHandler is the method-expression signature every dispatch table
// entry shares: (*Server).handleX bound against the connection and the
// inbound request.
type methodHandler func(s *Server, ctx context.Context, wc *wsConn, req *protocol.Request)

// methodTable maps wire method names to their handlers. Built once at
// package init from method expressions, so adding a method is a one-line
// addition here.
var methodTable = map[string]methodHandler{
	"health":         (*Server).handleHealthMethod,
	"ping":           (*Server).handlePing,
	"chat.send":      (*Server).handleChatSend,
	"chat.cancel":    (*Server).handleChatCancel,
	"channels.list":  (*Server).handleChannelsList,
	"channels.start": (*Server).handleChannelsStart,
	"channels.stop":  (*Server).handleChannelsStop,
	"cron.list":      (*Server).handleCronList,
	"cron.status":    (*Server).handleCronStatus,
	"gateway.status": (*Server).handleGatewayStatus,
	"gateway.config": (*Server).handleGatewayConfig,
}

// jsonUnmarshalLenient decodes raw into v, treating an empty payload as a
// no-op rather than an error so callers don't need to special-case
// optional params.
func jsonUnmarshalLenient(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (s *Server) handleHealthMethod(ctx context.Context, wc *wsConn, req *protocol.Request) {
	wc.sendResult(req.ID, map[string]any{
		"status": "ok",
		"uptime": int64(wc.server.uptimeSeconds()),
	})
}

func (s *Server) handlePing(ctx context.Context, wc *wsConn, req *protocol.Request) {
	wc.sendResult(req.ID, map[string]any{"pong": true})
}

type idParams struct {
	ID string `json:"id"`
}

// handleChatCancel aborts the in-flight chat.send request identified by
// params.id on this connection, per the cancellation contract: it cancels
// that call's context, it does not close the connection.
func (s *Server) handleChatCancel(ctx context.Context, wc *wsConn, req *protocol.Request) {
	var params idParams
	if err := jsonUnmarshalLenient(req.Params, &params); err != nil {
		wc.sendError(req.ID, protocol.CodeInvalidParams, "invalid params: "+err.Error())
		return
	}
	cancelled := wc.cancelCall(params.ID)
	wc.sendResult(req.ID, map[string]any{"cancelled": cancelled})
}

func (s *Server) handleChannelsList(ctx context.Context, wc *wsConn, req *protocol.Request) {
	wc.sendResult(req.ID, map[string]any{"channels": s.deps.Dock.Status()})
}

func (s *Server) handleChannelsStart(ctx context.Context, wc *wsConn, req *protocol.Request) {
	var params idParams
	if err := jsonUnmarshalLenient(req.Params, &params); err != nil {
		wc.sendError(req.ID, protocol.CodeInvalidParams, "invalid params: "+err.Error())
		return
	}
	if err := s.deps.Dock.StartChannel(ctx, params.ID); err != nil {
		wc.sendError(req.ID, protocol.CodeInternalError, "start channel: "+err.Error())
		return
	}
	wc.sendResult(req.ID, map[string]any{"id": params.ID, "started": true})
}

func (s *Server) handleChannelsStop(ctx context.Context, wc *wsConn, req *protocol.Request) {
	var params idParams
	if err := jsonUnmarshalLenient(req.Params, &params); err != nil {
		wc.sendError(req.ID, protocol.CodeInvalidParams, "invalid params: "+err.Error())
		return
	}
	if err := s.deps.Dock.StopChannel(ctx, params.ID); err != nil {
		wc.sendError(req.ID, protocol.CodeInternalError, "stop channel: "+err.Error())
		return
	}
	wc.sendResult(req.ID, map[string]any{"id": params.ID, "stopped": true})
}

func (s *Server) handleCronList(ctx context.Context, wc *wsConn, req *protocol.Request) {
	if s.deps.Cron == nil {
		wc.sendResult(req.ID, map[string]any{"jobs": []any{}})
		return
	}
	jobs := s.deps.Cron.Jobs()
	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, map[string]any{
			"name":     j.Name,
			"schedule": j.Schedule,
			"type":     j.Type,
			"enabled":  j.Enabled,
		})
	}
	wc.sendResult(req.ID, map[string]any{"jobs": out})
}

// handleCronStatus reports whether the scheduler is running plus each
// job's next/previous fire time, distinct from cron.list's static
// definitions.
func (s *Server) handleCronStatus(ctx context.Context, wc *wsConn, req *protocol.Request) {
	if s.deps.Cron == nil {
		wc.sendResult(req.ID, map[string]any{"running": false, "jobs": []any{}})
		return
	}
	running, statuses := s.deps.Cron.Status()
	out := make([]map[string]any, 0, len(statuses))
	for _, st := range statuses {
		entry := map[string]any{
			"name":     st.Job.Name,
			"schedule": st.Job.Schedule,
			"type":     st.Job.Type,
			"enabled":  st.Job.Enabled,
		}
		if !st.Next.IsZero() {
			entry["next"] = st.Next.Format(time.RFC3339)
		}
		if !st.Previous.IsZero() {
			entry["previous"] = st.Previous.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	wc.sendResult(req.ID, map[string]any{"running": running, "jobs": out})
}

func (s *Server) handleGatewayStatus(ctx context.Context, wc *wsConn, req *protocol.Request) {
	wc.sendResult(req.ID, map[string]any{
		"uptimeSeconds":    int64(s.uptimeSeconds()),
		"connectedClients": s.connectedClients.Load(),
		"channels":         s.deps.Dock.Status(),
	})
}

func (s *Server) handleGatewayConfig(ctx context.Context, wc *wsConn, req *protocol.Request) {
	wc.sendResult(req.ID, map[string]any{
		"bind":         s.cfg.Gateway.Bind,
		"port":         s.cfg.Gateway.Port,
		"wsPath":       s.cfg.Gateway.WSPath,
		"authMode":     s.cfg.Gateway.Auth.Mode,
		"defaultModel": s.cfg.Agent.DefaultModel,
	})
}
