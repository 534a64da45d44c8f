package cron

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sunggeunkim/haya-sub004/internal/config"
)

// Scheduler runs the gateway's cron[] jobs against robfig/cron/v3,
// dispatching each job's action through whichever sender/handler the
// gateway wired in.
type Scheduler struct {
	cron           *cron.Cron
	logger         *slog.Logger
	httpClient     *http.Client
	messageSender  MessageSender
	webhookSender  WebhookSender
	customHandlers map[string]CustomHandler

	mu      sync.Mutex
	entries []cron.EntryID
	jobs    []Job
	started bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger configures the scheduler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient configures the HTTP client used for webhook jobs.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scheduler) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithMessageSender configures the sender used for message jobs.
func WithMessageSender(sender MessageSender) Option {
	return func(s *Scheduler) {
		if sender != nil {
			s.messageSender = sender
		}
	}
}

// WithWebhookSender configures the sender used for webhook jobs.
func WithWebhookSender(sender WebhookSender) Option {
	return func(s *Scheduler) {
		if sender != nil {
			s.webhookSender = sender
		}
	}
}

// WithCustomHandler registers a named handler for custom jobs.
func WithCustomHandler(name string, handler CustomHandler) Option {
	return func(s *Scheduler) {
		if handler == nil {
			return
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return
		}
		s.customHandlers[name] = handler
	}
}

// NewScheduler parses cfg's jobs and builds a Scheduler ready to Start.
// Disabled jobs are skipped; jobs with malformed actions or schedules are
// skipped with a logged warning, never a fatal error — one bad cron entry should not
// take down the gateway.
func NewScheduler(cfgJobs []config.CronJobConfig, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		cron:           cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor))),
		logger:         slog.Default().With("component", "cron"),
		httpClient:     http.DefaultClient,
		customHandlers: make(map[string]CustomHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, cfg := range cfgJobs {
		if !cfg.Enabled {
			continue
		}
		job, err := ParseJob(cfg)
		if err != nil {
			s.logger.Warn("cron job skipped", "name", cfg.Name, "error", err)
			continue
		}
		id, err := s.cron.AddFunc(job.Schedule, s.runner(job))
		if err != nil {
			s.logger.Warn("cron job skipped", "name", cfg.Name, "error", err)
			continue
		}
		s.entries = append(s.entries, id)
		s.jobs = append(s.jobs, job)
	}
	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
}

// Stop blocks until in-flight jobs finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns the scheduled jobs, for cron.list/cron.status.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// JobStatus reports a single scheduled job's next/previous run times
// alongside its static definition, for cron.status.
type JobStatus struct {
	Job      Job
	Next     time.Time
	Previous time.Time
}

// Status returns the scheduler's running state plus per-job next/previous
// run times, read back from the underlying robfig/cron entries.
func (s *Scheduler) Status() (running bool, statuses []JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses = make([]JobStatus, len(s.jobs))
	for i, job := range s.jobs {
		entry := s.cron.Entry(s.entries[i])
		statuses[i] = JobStatus{Job: job, Next: entry.Next, Previous: entry.Prev}
	}
	return s.started, statuses
}

func (s *Scheduler) runner(job Job) func() {
	return func() {
		ctx := context.Background()
		var err error
		switch job.Type {
		case JobTypeMessage:
			err = s.runMessage(ctx, job)
		case JobTypeWebhook:
			err = s.runWebhook(ctx, job)
		case JobTypeCustom:
			err = s.runCustom(ctx, job)
		default:
			err = fmt.Errorf("unknown job type %q", job.Type)
		}
		if err != nil {
			s.logger.Warn("cron job failed", "name", job.Name, "error", err)
		}
	}
}

func (s *Scheduler) runMessage(ctx context.Context, job Job) error {
	if s.messageSender == nil {
		return fmt.Errorf("message sender not configured")
	}
	return s.messageSender.Send(ctx, job.ChannelID, job.Text)
}

func (s *Scheduler) runWebhook(ctx context.Context, job Job) error {
	if s.webhookSender != nil {
		return s.webhookSender.Post(ctx, job.URL, job.Body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.URL, bytes.NewBufferString(job.Body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Scheduler) runCustom(ctx context.Context, job Job) error {
	handler := s.customHandlers[strings.ToLower(strings.TrimSpace(job.Handler))]
	if handler == nil {
		return fmt.Errorf("custom handler not registered: %s", job.Handler)
	}
	return handler.Handle(ctx, job)
}
