// Package gatewayserver implements the gateway's WebSocket/HTTP surface:
// bind-policy listener setup, frame auth, method dispatch, and the
// chat.send turn that ties the session store, tool registry, memory-flush
// trigger, and agent runtime together.
package gatewayserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sunggeunkim/haya-sub004/internal/agentruntime"
	"github.com/sunggeunkim/haya-sub004/internal/channels"
	"github.com/sunggeunkim/haya-sub004/internal/config"
	"github.com/sunggeunkim/haya-sub004/internal/cron"
	"github.com/sunggeunkim/haya-sub004/internal/memory"
	"github.com/sunggeunkim/haya-sub004/internal/observability"
	"github.com/sunggeunkim/haya-sub004/internal/profiles"
	"github.com/sunggeunkim/haya-sub004/internal/sessions"
	"github.com/sunggeunkim/haya-sub004/internal/tools"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

const defaultMethodDeadline = 60 * time.Second

// Deps wires the collaborators a Server needs. Memory, Cron, and Profiles
// are optional (nil disables the memory-flush trigger, the cron.* methods,
// and sender-profile tracking respectively).
type Deps struct {
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Sessions *sessions.Manager
	Tools    *tools.Registry
	Channels *channels.Registry
	Dock     *channels.Dock
	Memory   *memory.Manager
	Cron     *cron.Scheduler
	Profiles *profiles.Store
	Runtime  agentruntime.Runtime
}

// sessionFlushState tracks the per-session memory-flush cycle flag.
type sessionFlushState struct {
	mu             sync.Mutex
	hasRunForCycle bool
}

// Server is the gateway's WebSocket/HTTP process.
type Server struct {
	cfg  *config.Config
	deps Deps

	authSecret     string
	trustedProxies []*net.IPNet

	startTime time.Time

	httpServer *http.Server
	listener   net.Listener

	connectedClients atomic.Int64

	flushMu    sync.Mutex
	flushState map[string]*sessionFlushState
}

// New builds a Server from cfg and deps. The gateway auth secret is
// resolved from the environment per cfg.Gateway.Auth immediately, so a
// missing/too-short secret fails fast at construction rather than on the
// first connection.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Sessions == nil || deps.Tools == nil || deps.Channels == nil || deps.Dock == nil || deps.Runtime == nil {
		return nil, fmt.Errorf("sessions, tools, channels, dock, and runtime deps are required")
	}
	secret, err := cfg.ResolvedAuthSecret()
	if err != nil {
		return nil, fmt.Errorf("resolve gateway auth secret: %w", err)
	}
	s := &Server{
		cfg:            cfg,
		deps:           deps,
		authSecret:     secret,
		trustedProxies: parseTrustedProxies(cfg.Gateway.TrustedProxies),
		startTime:      time.Now(),
		flushState:     make(map[string]*sessionFlushState),
	}
	deps.Channels.OnMessage(s.onChannelMessage)
	return s, nil
}

// onChannelMessage is wired to every channel plugin's inbound delivery. It
// looks the plugin back up by id (to have somewhere to send the reply) and
// runs the turn in its own goroutine so one slow completion never blocks
// another channel's delivery.
func (s *Server) onChannelMessage(channelID string, msg models.Message) {
	plugin, ok := s.deps.Channels.Get(channelID)
	if !ok {
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ChannelMessages.WithLabelValues(channelID).Inc()
	}
	go s.handleChannelMessage(context.Background(), channelID, plugin, msg)
}

// listenAddr resolves the bind address for cfg.Gateway.Bind.
func (s *Server) listenAddr() (string, error) {
	switch s.cfg.Gateway.Bind {
	case "", "loopback":
		return fmt.Sprintf("127.0.0.1:%d", s.cfg.Gateway.Port), nil
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", s.cfg.Gateway.Port), nil
	case "custom":
		if s.cfg.Gateway.Interface == "" {
			return "", fmt.Errorf("gateway.interface is required for bind=custom")
		}
		return fmt.Sprintf("%s:%d", s.cfg.Gateway.Interface, s.cfg.Gateway.Port), nil
	default:
		return "", fmt.Errorf("unknown bind policy %q", s.cfg.Gateway.Bind)
	}
}

// Start binds the listener and begins serving. It returns once the
// listener is open; serving continues in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	addr, err := s.listenAddr()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = listener

	mux := s.buildMux()
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if s.cfg.Gateway.TLS.Enabled {
		go func() {
			if err := server.ServeTLS(listener, s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath); err != nil && err != http.ErrServerClosed {
				s.log().Error(ctx, "gateway tls server error", "error", err)
			}
		}()
	} else {
		go func() {
			if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
				s.log().Error(ctx, "gateway server error", "error", err)
			}
		}()
	}
	s.httpServer = server

	s.log().Info(ctx, "gateway listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound address. Only valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully shuts down the HTTP/WebSocket server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) log() *observability.Logger {
	if s.deps.Logger != nil {
		return s.deps.Logger
	}
	return observability.NewLogger(observability.Config{})
}

func (s *Server) uptimeSeconds() float64 {
	return time.Since(s.startTime).Seconds()
}

func (s *Server) flushStateFor(sessionID string) *sessionFlushState {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	st, ok := s.flushState[sessionID]
	if !ok {
		st = &sessionFlushState{}
		s.flushState[sessionID] = st
	}
	return st
}

// resetFlushCycleIfCompacted clears sessionID's memory-flush cycle flag
// when GetHistory reports that token-budget compaction just dropped
// head-of-history messages: that is the start of a new compaction cycle,
// and the trigger must be allowed to fire again for it.
func (s *Server) resetFlushCycleIfCompacted(sessionID string, compacted bool) {
	if !compacted {
		return
	}
	state := s.flushStateFor(sessionID)
	state.mu.Lock()
	state.hasRunForCycle = false
	state.mu.Unlock()
}
