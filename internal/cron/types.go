// Package cron schedules the gateway's cron[] config entries through
// robfig/cron/v3 and dispatches their actions through the same
// tool-registry/channel-registry plumbing that handles chat turns.
package cron

import "context"

// JobType identifies how a job's action string is dispatched.
type JobType string

const (
	// JobTypeMessage sends an assistant-authored message to a channel.
	JobTypeMessage JobType = "message"
	// JobTypeWebhook POSTs a raw payload to a URL.
	JobTypeWebhook JobType = "webhook"
	// JobTypeCustom invokes a registered named handler.
	JobTypeCustom JobType = "custom"
)

// Job is a parsed cron[] config entry, ready to schedule.
type Job struct {
	Name     string
	Schedule string // cron expression
	Enabled  bool
	Type     JobType

	// ChannelID and Text are populated for JobTypeMessage.
	ChannelID string
	Text      string

	// URL and Body are populated for JobTypeWebhook.
	URL  string
	Body string

	// Handler and Args are populated for JobTypeCustom.
	Handler string
	Args    string
}

// MessageSender delivers a cron-triggered message to a channel. Satisfied
// by a thin adapter over the channel registry.
type MessageSender interface {
	Send(ctx context.Context, channelID, text string) error
}

// MessageSenderFunc adapts a function to a MessageSender.
type MessageSenderFunc func(ctx context.Context, channelID, text string) error

func (f MessageSenderFunc) Send(ctx context.Context, channelID, text string) error {
	return f(ctx, channelID, text)
}

// WebhookSender performs the raw POST for JobTypeWebhook jobs.
type WebhookSender interface {
	Post(ctx context.Context, url, body string) error
}

// WebhookSenderFunc adapts a function to a WebhookSender.
type WebhookSenderFunc func(ctx context.Context, url, body string) error

func (f WebhookSenderFunc) Post(ctx context.Context, url, body string) error {
	return f(ctx, url, body)
}

// CustomHandler executes a named cron action not covered by message or
// webhook dispatch.
type CustomHandler interface {
	Handle(ctx context.Context, job Job) error
}

// CustomHandlerFunc adapts a function to a CustomHandler.
type CustomHandlerFunc func(ctx context.Context, job Job) error

func (f CustomHandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}
