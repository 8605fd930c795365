package cron

import (
	"fmt"

	"github.com/silverkite/silverkite/internal/tools"
)

// The methods below satisfy tools.CronScheduler so the cron tool can drive
// the service without importing this package.

// AddJob builds a Schedule and Payload from primitive arguments and adds
// the job.
func (s *Service) AddJob(name, message, kind string, everyMs int64, expr, tz string, atMs int64, deliver bool, channel, to string, deleteAfterRun bool) (string, error) {
	sched := Schedule{Kind: kind}
	switch kind {
	case "every":
		sched.EveryMs = &everyMs
	case "cron":
		sched.Expr = &expr
		if tz != "" {
			sched.TZ = &tz
		}
	case "at":
		sched.AtMs = &atMs
	default:
		return "", fmt.Errorf("unknown schedule kind %q", kind)
	}

	payload := Payload{Message: message, Deliver: deliver}
	if channel != "" {
		payload.Channel = &channel
	}
	if to != "" {
		payload.To = &to
	}
	return s.Add(name, sched, payload, deleteAfterRun)
}

// ListJobs returns summaries of enabled jobs.
func (s *Service) ListJobs() []tools.CronJobSummary {
	var out []tools.CronJobSummary
	for _, j := range s.List(false) {
		out = append(out, tools.CronJobSummary{ID: j.ID, Name: j.Name, Kind: j.Schedule.Kind})
	}
	return out
}

// RemoveJob removes a job by id.
func (s *Service) RemoveJob(id string) bool {
	return s.Remove(id)
}
