package cron

import (
	"fmt"
	"strings"

	"github.com/sunggeunkim/haya-sub004/internal/config"
)

// ParseJob turns a config.CronJobConfig's flat action string into a typed
// Job. Action is "<type>:<rest>", e.g. "message:general:good morning",
// "webhook:https://example.com/hook:{}", "custom:rotate-logs:".
func ParseJob(cfg config.CronJobConfig) (Job, error) {
	job := Job{Name: cfg.Name, Schedule: cfg.Schedule, Enabled: cfg.Enabled}

	kind, rest, ok := strings.Cut(cfg.Action, ":")
	if !ok {
		return Job{}, fmt.Errorf("cron job %q: action must be \"type:...\"", cfg.Name)
	}

	switch JobType(strings.TrimSpace(kind)) {
	case JobTypeMessage:
		channel, text, ok := strings.Cut(rest, ":")
		if !ok {
			return Job{}, fmt.Errorf("cron job %q: message action requires channel and text", cfg.Name)
		}
		job.Type = JobTypeMessage
		job.ChannelID = channel
		job.Text = text
	case JobTypeWebhook:
		// The URL itself contains colons (scheme, optional port), so the
		// body starts at the first colon whose following segment (up to the
		// next colon) cannot be part of the URL: a segment with a slash in
		// it (the scheme's "//host/path", a port followed by a path) or made
		// only of port digits stays attached. The body may contain colons.
		job.Type = JobTypeWebhook
		job.URL = rest
		for i, c := range rest {
			if c != ':' {
				continue
			}
			tail := rest[i+1:]
			segment, _, _ := strings.Cut(tail, ":")
			if tail != "" && !strings.Contains(segment, "/") && !isAllDigits(segment) {
				job.URL, job.Body = rest[:i], tail
				break
			}
		}
	case JobTypeCustom:
		handler, args, _ := strings.Cut(rest, ":")
		job.Type = JobTypeCustom
		job.Handler = handler
		job.Args = args
	default:
		return Job{}, fmt.Errorf("cron job %q: unknown action type %q", cfg.Name, kind)
	}
	return job, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
