package cron

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sunggeunkim/haya-sub004/internal/config"
)

func TestNewSchedulerSkipsDisabledJobs(t *testing.T) {
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "off", Schedule: "* * * * *", Action: "message:general:hi", Enabled: false},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if len(s.Jobs()) != 0 {
		t.Errorf("Jobs() = %v, want empty for disabled job", s.Jobs())
	}
}

func TestNewSchedulerSkipsMalformedAction(t *testing.T) {
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "bad", Schedule: "* * * * *", Action: "notvalid", Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if len(s.Jobs()) != 0 {
		t.Errorf("Jobs() = %v, want empty for malformed action", s.Jobs())
	}
}

func TestNewSchedulerSkipsInvalidSchedule(t *testing.T) {
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "bad-sched", Schedule: "not a cron expr", Action: "message:general:hi", Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if len(s.Jobs()) != 0 {
		t.Errorf("Jobs() = %v, want empty for invalid schedule", s.Jobs())
	}
}

func TestNewSchedulerRegistersValidJobs(t *testing.T) {
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "morning", Schedule: "0 8 * * *", Action: "message:general:good morning", Enabled: true},
		{Name: "hook", Schedule: "@hourly", Action: "webhook:https://example.com", Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	jobs := s.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("Jobs() = %v, want 2 entries", jobs)
	}
	if jobs[0].Name != "morning" || jobs[1].Name != "hook" {
		t.Errorf("Jobs() = %+v, want morning then hook in config order", jobs)
	}
}

func TestSchedulerStatusRunningReflectsStartStop(t *testing.T) {
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "morning", Schedule: "0 8 * * *", Action: "message:general:hi", Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	running, statuses := s.Status()
	if running {
		t.Error("Status() running = true before Start()")
	}
	if len(statuses) != 1 || statuses[0].Job.Name != "morning" {
		t.Errorf("statuses = %+v, want one entry for morning", statuses)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	running, _ = s.Status()
	if !running {
		t.Error("Status() running = false after Start()")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	running, _ = s.Status()
	if running {
		t.Error("Status() running = true after Stop()")
	}
	cancel()
}

type recordingMessageSender struct {
	mu      sync.Mutex
	channel string
	text    string
	err     error
}

func (r *recordingMessageSender) Send(ctx context.Context, channelID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channel, r.text = channelID, text
	return r.err
}

func TestSchedulerRunnerDispatchesMessageJob(t *testing.T) {
	sender := &recordingMessageSender{}
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "morning", Schedule: "0 8 * * *", Action: "message:general:good morning", Enabled: true},
	}, WithMessageSender(sender))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	job := s.Jobs()[0]
	s.runner(job)()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.channel != "general" || sender.text != "good morning" {
		t.Errorf("sender received channel=%q text=%q, want general/good morning", sender.channel, sender.text)
	}
}

func TestSchedulerRunnerMessageJobNoSenderConfigured(t *testing.T) {
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "morning", Schedule: "0 8 * * *", Action: "message:general:hi", Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	// runner() swallows the error into a log line; this just verifies it
	// doesn't panic with no sender wired.
	s.runner(s.Jobs()[0])()
}

type recordingWebhookSender struct {
	mu   sync.Mutex
	url  string
	body string
}

func (r *recordingWebhookSender) Post(ctx context.Context, url, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.url, r.body = url, body
	return nil
}

func TestSchedulerRunnerDispatchesWebhookJobViaSender(t *testing.T) {
	sender := &recordingWebhookSender{}
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "hook", Schedule: "@hourly", Action: "webhook:https://example.com/hook:{\"a\":1}", Enabled: true},
	}, WithWebhookSender(sender))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.runner(s.Jobs()[0])()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.url != "https://example.com/hook" || sender.body != `{"a":1}` {
		t.Errorf("sender received url=%q body=%q, want https://example.com/hook / {\"a\":1}", sender.url, sender.body)
	}
}

func TestSchedulerRunnerWebhookJobFallsBackToHTTPClient(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "hook", Schedule: "@hourly", Action: "webhook:" + srv.URL + ":payload", Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.runner(s.Jobs()[0])()

	// give the synchronous HTTP round trip a moment; runner() itself is
	// synchronous so this should already be done, but tolerate scheduling.
	deadline := time.Now().Add(2 * time.Second)
	for gotBody == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if gotBody != "payload" {
		t.Errorf("server received body = %q, want payload", gotBody)
	}
}

type recordingCustomHandler struct {
	mu      sync.Mutex
	handled bool
	job     Job
}

func (r *recordingCustomHandler) Handle(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = true
	r.job = job
	return nil
}

func TestSchedulerRunnerDispatchesCustomJob(t *testing.T) {
	handler := &recordingCustomHandler{}
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "rotate", Schedule: "@daily", Action: "custom:rotate-logs:max=10", Enabled: true},
	}, WithCustomHandler("rotate-logs", handler))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.runner(s.Jobs()[0])()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if !handler.handled || handler.job.Args != "max=10" {
		t.Errorf("handler = %+v, want handled with args max=10", handler)
	}
}

func TestSchedulerRunnerCustomJobUnregisteredHandler(t *testing.T) {
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "rotate", Schedule: "@daily", Action: "custom:missing-handler:x", Enabled: true},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	// No handler registered; runner() logs the error but must not panic.
	s.runner(s.Jobs()[0])()
}

func TestWithCustomHandlerIsCaseInsensitive(t *testing.T) {
	handler := &recordingCustomHandler{}
	s, err := NewScheduler([]config.CronJobConfig{
		{Name: "rotate", Schedule: "@daily", Action: "custom:Rotate-Logs:", Enabled: true},
	}, WithCustomHandler("ROTATE-logs", handler))
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.runner(s.Jobs()[0])()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if !handler.handled {
		t.Error("handler not invoked; WithCustomHandler should be case-insensitive")
	}
}
