// Package cron schedules recurring and one-shot agent turns. Jobs persist
// as JSON and are re-armed on startup.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"
)

// Schedule describes when a job fires: a fixed interval ("every"), a cron
// expression ("cron"), or a single point in time ("at").
type Schedule struct {
	Kind    string  `json:"kind"`
	AtMs    *int64  `json:"atMs,omitempty"`
	EveryMs *int64  `json:"everyMs,omitempty"`
	Expr    *string `json:"expr,omitempty"`
	TZ      *string `json:"tz,omitempty"`
}

// Payload is what happens when the job fires: a message injected into the
// agent, optionally delivered out to a channel.
type Payload struct {
	Message string  `json:"message"`
	Deliver bool    `json:"deliver"`
	Channel *string `json:"channel,omitempty"`
	To      *string `json:"to,omitempty"`
}

// JobState records the job's last and next runs.
type JobState struct {
	NextRunAtMs *int64  `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  *string `json:"lastStatus,omitempty"`
	LastError   *string `json:"lastError,omitempty"`
}

// Job is one persisted scheduled task.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

type jobFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// OnJobFunc runs when a job fires and returns the agent's response text.
type OnJobFunc func(ctx context.Context, job Job) (string, error)

// Service manages scheduled jobs backed by a jobs.json file.
type Service struct {
	storePath string
	onJob     OnJobFunc
	log       *slog.Logger

	mu    sync.Mutex
	store jobFile

	timers    map[string]*time.Timer
	robfig    *robfigcron.Cron
	robfigIDs map[string]robfigcron.EntryID
}

// NewService creates a Service persisting to storePath.
func NewService(storePath string, log *slog.Logger) *Service {
	return &Service{
		storePath: storePath,
		log:       log.With("component", "cron"),
		timers:    make(map[string]*time.Timer),
		robfig:    robfigcron.New(),
		robfigIDs: make(map[string]robfigcron.EntryID),
	}
}

// SetOnJob registers the callback executed when a job fires.
// Must be set before Start.
func (s *Service) SetOnJob(fn OnJobFunc) { s.onJob = fn }

// Start loads jobs, recomputes next runs, arms everything and blocks until
// ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(); err != nil {
		s.log.Warn("load failed, starting empty", "err", err)
	}
	now := nowMs()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].Enabled {
			s.store.Jobs[i].State.NextRunAtMs = nextRun(s.store.Jobs[i].Schedule, now)
		}
	}
	s.saveLocked()
	for _, j := range s.store.Jobs {
		if j.Enabled {
			s.armLocked(ctx, j)
		}
	}
	s.mu.Unlock()

	s.robfig.Start()
	s.log.Info("started", "jobs", len(s.store.Jobs))

	<-ctx.Done()

	<-s.robfig.Stop().Done()
	s.mu.Lock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.mu.Unlock()
	return ctx.Err()
}

// Add creates a job from a schedule and payload, persists it, and returns
// the assigned id.
func (s *Service) Add(name string, sched Schedule, payload Payload, deleteAfterRun bool) (string, error) {
	switch sched.Kind {
	case "every":
		if sched.EveryMs == nil || *sched.EveryMs <= 0 {
			return "", fmt.Errorf("every schedule needs a positive everyMs")
		}
	case "cron":
		if sched.Expr == nil || *sched.Expr == "" {
			return "", fmt.Errorf("cron schedule needs an expression")
		}
	case "at":
		if sched.AtMs == nil {
			return "", fmt.Errorf("at schedule needs atMs")
		}
	default:
		return "", fmt.Errorf("unknown schedule kind %q", sched.Kind)
	}

	now := nowMs()
	job := Job{
		ID:             uuid.NewString(),
		Name:           name,
		Enabled:        true,
		Schedule:       sched,
		Payload:        payload,
		State:          JobState{NextRunAtMs: nextRun(sched, now)},
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		DeleteAfterRun: deleteAfterRun,
	}

	s.mu.Lock()
	s.store.Jobs = append(s.store.Jobs, job)
	s.saveLocked()
	s.mu.Unlock()

	s.log.Info("added job", "name", name, "id", job.ID, "kind", sched.Kind)
	return job.ID, nil
}

// List returns jobs sorted by next run time; includeDisabled controls
// whether disabled jobs appear.
func (s *Service) List(includeDisabled bool) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.loadLocked()
	var jobs []Job
	for _, j := range s.store.Jobs {
		if includeDisabled || j.Enabled {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool {
		a, b := int64(^uint64(0)>>1), int64(^uint64(0)>>1)
		if jobs[i].State.NextRunAtMs != nil {
			a = *jobs[i].State.NextRunAtMs
		}
		if jobs[k].State.NextRunAtMs != nil {
			b = *jobs[k].State.NextRunAtMs
		}
		return a < b
	})
	return jobs
}

// Remove deletes a job by id and reports whether it existed.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.store.Jobs)
	kept := s.store.Jobs[:0]
	for _, j := range s.store.Jobs {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	s.store.Jobs = kept
	if len(kept) < before {
		s.disarmLocked(id)
		s.saveLocked()
		return true
	}
	return false
}

// Enable flips a job's enabled state and re-arms or disarms it.
func (s *Service) Enable(id string, enabled bool) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID != id {
			continue
		}
		s.store.Jobs[i].Enabled = enabled
		s.store.Jobs[i].UpdatedAtMs = nowMs()
		if enabled {
			s.store.Jobs[i].State.NextRunAtMs = nextRun(s.store.Jobs[i].Schedule, nowMs())
		} else {
			s.store.Jobs[i].State.NextRunAtMs = nil
			s.disarmLocked(id)
		}
		s.saveLocked()
		return s.store.Jobs[i], true
	}
	return Job{}, false
}

// Run fires a job immediately. force runs even disabled jobs.
func (s *Service) Run(ctx context.Context, id string, force bool) bool {
	s.mu.Lock()
	var found *Job
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID == id {
			if !force && !s.store.Jobs[i].Enabled {
				s.mu.Unlock()
				return false
			}
			found = &s.store.Jobs[i]
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return false
	}
	job := *found
	s.mu.Unlock()

	s.execute(ctx, job)
	return true
}

func (s *Service) armLocked(ctx context.Context, job Job) {
	s.disarmLocked(job.ID)

	switch job.Schedule.Kind {
	case "every":
		if job.Schedule.EveryMs == nil || *job.Schedule.EveryMs <= 0 {
			return
		}
		d := time.Duration(*job.Schedule.EveryMs) * time.Millisecond
		s.timers[job.ID] = time.AfterFunc(d, func() {
			s.execute(ctx, job)
			s.mu.Lock()
			for _, j := range s.store.Jobs {
				if j.ID == job.ID && j.Enabled {
					s.armLocked(ctx, j)
					break
				}
			}
			s.mu.Unlock()
		})

	case "at":
		if job.Schedule.AtMs == nil {
			return
		}
		delay := time.Until(time.UnixMilli(*job.Schedule.AtMs))
		if delay < 0 {
			return
		}
		s.timers[job.ID] = time.AfterFunc(delay, func() {
			s.execute(ctx, job)
		})

	case "cron":
		if job.Schedule.Expr == nil {
			return
		}
		loc := time.Local
		if job.Schedule.TZ != nil && *job.Schedule.TZ != "" {
			if l, err := time.LoadLocation(*job.Schedule.TZ); err == nil {
				loc = l
			}
		}
		sched, err := cronParser.Parse(*job.Schedule.Expr)
		if err != nil {
			s.log.Warn("invalid cron expression", "job", job.ID, "expr", *job.Schedule.Expr, "err", err)
			return
		}
		jobCopy := job
		s.robfigIDs[job.ID] = s.robfig.Schedule(
			inLocation{sched, loc},
			robfigcron.FuncJob(func() { s.execute(ctx, jobCopy) }),
		)
	}
}

func (s *Service) disarmLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if eid, ok := s.robfigIDs[id]; ok {
		s.robfig.Remove(eid)
		delete(s.robfigIDs, id)
	}
}

func (s *Service) execute(ctx context.Context, job Job) {
	startMs := nowMs()
	s.log.Info("executing job", "name", job.Name, "id", job.ID)

	status := "ok"
	var lastErr *string
	if s.onJob != nil {
		if _, err := s.onJob(ctx, job); err != nil {
			status = "error"
			e := err.Error()
			lastErr = &e
			s.log.Error("job failed", "name", job.Name, "err", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID != job.ID {
			continue
		}
		now := nowMs()
		s.store.Jobs[i].State.LastRunAtMs = &startMs
		s.store.Jobs[i].State.LastStatus = &status
		s.store.Jobs[i].State.LastError = lastErr
		s.store.Jobs[i].UpdatedAtMs = now

		if job.Schedule.Kind == "at" {
			if job.DeleteAfterRun {
				kept := s.store.Jobs[:0]
				for _, j := range s.store.Jobs {
					if j.ID != job.ID {
						kept = append(kept, j)
					}
				}
				s.store.Jobs = kept
			} else {
				s.store.Jobs[i].Enabled = false
				s.store.Jobs[i].State.NextRunAtMs = nil
			}
		} else {
			s.store.Jobs[i].State.NextRunAtMs = nextRun(job.Schedule, now)
		}
		break
	}
	s.saveLocked()
}

func (s *Service) loadLocked() error {
	if len(s.store.Jobs) > 0 {
		return nil
	}
	data, err := os.ReadFile(s.storePath)
	if os.IsNotExist(err) {
		s.store = jobFile{Version: 1}
		return nil
	}
	if err != nil {
		return err
	}
	var f jobFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Version == 0 {
		f.Version = 1
	}
	s.store = f
	return nil
}

func (s *Service) saveLocked() {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		s.log.Warn("mkdir failed", "err", err)
		return
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		s.log.Warn("marshal failed", "err", err)
		return
	}
	if err := os.WriteFile(s.storePath, data, 0o644); err != nil {
		s.log.Warn("write failed", "err", err)
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

var cronParser = robfigcron.NewParser(
	robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow,
)

func nextRun(sched Schedule, nowMs int64) *int64 {
	switch sched.Kind {
	case "at":
		if sched.AtMs != nil && *sched.AtMs > nowMs {
			v := *sched.AtMs
			return &v
		}
	case "every":
		if sched.EveryMs != nil && *sched.EveryMs > 0 {
			v := nowMs + *sched.EveryMs
			return &v
		}
	case "cron":
		if sched.Expr != nil {
			loc := time.Local
			if sched.TZ != nil && *sched.TZ != "" {
				if l, err := time.LoadLocation(*sched.TZ); err == nil {
					loc = l
				}
			}
			if parsed, err := cronParser.Parse(*sched.Expr); err == nil {
				v := parsed.Next(time.UnixMilli(nowMs).In(loc)).UnixMilli()
				return &v
			}
		}
	}
	return nil
}

// inLocation evaluates a cron schedule in a fixed timezone.
type inLocation struct {
	inner robfigcron.Schedule
	loc   *time.Location
}

func (l inLocation) Next(t time.Time) time.Time {
	return l.inner.Next(t.In(l.loc))
}
