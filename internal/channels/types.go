// Package channels implements the channel registry and the lifecycle
// "dock" that drives each plugin through an explicit start/stop state
// machine. Concrete plugins (Discord, Slack, IRC, LINE, KakaoTalk, webhook)
// live in subpackages and satisfy Plugin.
package channels

import (
	"context"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// Status is a channel plugin's current connection status.
type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// Plugin is the capability set every channel transport must implement: a
// stable id, lifecycle, outbound send, and status reporting. Inbound
// messages are delivered out-of-band through the handler passed to
// SetMessageHandler.
type Plugin interface {
	ID() string
	DisplayName() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg models.Message) error
	Status() Status
	SetMessageHandler(handler MessageHandler)
}

// MessageHandler receives one inbound message from a channel plugin. It
// must be safe to call concurrently from multiple plugins' own
// goroutines; the handler is responsible for serializing into whichever
// session it targets.
type MessageHandler func(channelID string, msg models.Message)
