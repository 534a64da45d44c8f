// Package discord implements a channels.Plugin backed by
// github.com/bwmarrin/discordgo.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sunggeunkim/haya-sub004/internal/channels"
	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// Config configures the Discord plugin.
type Config struct {
	ID        string // registry id, e.g. "discord"
	Token     string
	ChannelID string // default outbound channel
}

// Plugin is a Discord channels.Plugin.
type Plugin struct {
	cfg Config

	mu        sync.Mutex
	session   *discordgo.Session
	connected bool
	handler   channels.MessageHandler
}

// New builds a Discord plugin from cfg. It does not connect until Start is
// called.
func New(cfg Config) *Plugin {
	return &Plugin{cfg: cfg}
}

func (p *Plugin) ID() string          { return p.cfg.ID }
func (p *Plugin) DisplayName() string { return "Discord" }

// SetMessageHandler wires the registry's inbound handler.
func (p *Plugin) SetMessageHandler(handler channels.MessageHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Start opens the Discord gateway session and registers the inbound
// message handler.
func (p *Plugin) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + p.cfg.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.AddHandler(p.onMessageCreate)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	p.mu.Lock()
	p.session = session
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Stop closes the Discord gateway session.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.connected = false
	p.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}

// Send posts msg.Content to the session's configured channel.
func (p *Plugin) Send(ctx context.Context, msg models.Message) error {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return fmt.Errorf("discord channel not started")
	}
	_, err := session.ChannelMessageSendComplex(p.cfg.ChannelID, &discordgo.MessageSend{
		Content: msg.Content,
	}, discordgo.WithContext(ctx))
	return err
}

// Status reports the current connection state.
func (p *Plugin) Status() channels.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return channels.Status{Connected: p.connected}
}

func (p *Plugin) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author != nil && m.Author.Bot {
		return
	}
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return
	}
	var sender string
	if m.Author != nil {
		sender = m.Author.ID
	}
	handler(p.cfg.ID, models.Message{
		Role:    models.RoleUser,
		Content: m.Content,
		Sender:  sender,
	})
}
