// Package irc implements a channels.Plugin over a raw IRC line protocol
// on net.Conn. The subset of RFC 1459 a relay bot needs is small enough
// that a client library would add more surface than it saves.
package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/sunggeunkim/haya-sub004/internal/channels"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// Config configures the IRC plugin.
type Config struct {
	ID       string
	Server   string // host:port
	TLS      bool
	Nick     string
	Channel  string // channel to join, e.g. "#general"
	Password string // server password (NickServ/SASL is out of scope)
}

// Plugin is an IRC channels.Plugin speaking a minimal subset of RFC 1459:
// PASS/NICK/USER registration, JOIN, PRIVMSG, and PING/PONG keepalive.
type Plugin struct {
	cfg Config

	mu        sync.Mutex
	conn      net.Conn
	writer    *bufio.Writer
	connected bool
	handler   channels.MessageHandler
	cancel    context.CancelFunc
}

// New builds an IRC plugin from cfg.
func New(cfg Config) *Plugin {
	return &Plugin{cfg: cfg}
}

func (p *Plugin) ID() string          { return p.cfg.ID }
func (p *Plugin) DisplayName() string { return "IRC" }

func (p *Plugin) SetMessageHandler(handler channels.MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Start dials the server, registers the nick, joins the configured
// channel, and begins reading inbound lines in a background goroutine.
func (p *Plugin) Start(ctx context.Context) error {
	var conn net.Conn
	var err error
	if p.cfg.TLS {
		conn, err = tls.Dial("tcp", p.cfg.Server, nil)
	} else {
		conn, err = net.Dial("tcp", p.cfg.Server)
	}
	if err != nil {
		return fmt.Errorf("dial irc server: %w", err)
	}

	w := bufio.NewWriter(conn)
	if p.cfg.Password != "" {
		fmt.Fprintf(w, "PASS %s\r\n", p.cfg.Password)
	}
	fmt.Fprintf(w, "NICK %s\r\n", p.cfg.Nick)
	fmt.Fprintf(w, "USER %s 0 * :%s\r\n", p.cfg.Nick, p.cfg.Nick)
	if p.cfg.Channel != "" {
		fmt.Fprintf(w, "JOIN %s\r\n", p.cfg.Channel)
	}
	if err := w.Flush(); err != nil {
		conn.Close()
		return fmt.Errorf("irc registration: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.conn = conn
	p.writer = w
	p.connected = true
	p.cancel = cancel
	p.mu.Unlock()

	go p.readLoop(readCtx, conn)
	return nil
}

// Stop closes the connection and terminates the read loop.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	conn := p.conn
	cancel := p.cancel
	p.conn = nil
	p.connected = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Send sends msg.Content as a PRIVMSG to the configured channel.
func (p *Plugin) Send(ctx context.Context, msg models.Message) error {
	p.mu.Lock()
	w := p.writer
	p.mu.Unlock()
	if w == nil {
		return fmt.Errorf("irc channel not started")
	}
	for _, line := range strings.Split(msg.Content, "\n") {
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintf(w, "PRIVMSG %s :%s\r\n", p.cfg.Channel, line); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Status reports the current connection state.
func (p *Plugin) Status() channels.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return channels.Status{Connected: p.connected}
}

func (p *Plugin) readLoop(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := strings.TrimRight(scanner.Text(), "\r\n")
		p.handleLine(line)
	}
}

func (p *Plugin) handleLine(line string) {
	if strings.HasPrefix(line, "PING") {
		p.mu.Lock()
		w := p.writer
		p.mu.Unlock()
		if w != nil {
			fmt.Fprintf(w, "PONG%s\r\n", strings.TrimPrefix(line, "PING"))
			w.Flush()
		}
		return
	}

	// :nick!user@host PRIVMSG #channel :text
	if !strings.Contains(line, "PRIVMSG") {
		return
	}
	parts := strings.SplitN(line, "PRIVMSG ", 2)
	if len(parts) != 2 {
		return
	}
	rest := strings.SplitN(parts[1], " :", 2)
	if len(rest) != 2 {
		return
	}
	text := rest[1]

	var nick string
	if strings.HasPrefix(parts[0], ":") {
		nick = strings.TrimPrefix(parts[0], ":")
		if bang := strings.IndexByte(nick, '!'); bang >= 0 {
			nick = nick[:bang]
		}
		nick = strings.TrimSpace(nick)
	}

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return
	}
	handler(p.cfg.ID, models.Message{Role: models.RoleUser, Content: text, Sender: nick})
}
