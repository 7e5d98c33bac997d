package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/sipeed/clawbot/pkg/logger"
)

// Schedule describes when a job fires: once at a timestamp, on a fixed
// period, or on a cron expression.
type Schedule struct {
	Kind    string `json:"kind"`
	AtMS    *int64 `json:"atMs,omitempty"`
	EveryMS *int64 `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

// Delivery is what the job sends when due: a chat target plus the text.
type Delivery struct {
	GroupID int64  `json:"groupId,omitempty"`
	UserID  int64  `json:"userId,omitempty"`
	Text    string `json:"text"`
}

type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Delivery       Delivery `json:"delivery"`
	NextRunAtMS    *int64   `json:"nextRunAtMs,omitempty"`
	LastRunAtMS    *int64   `json:"lastRunAtMs,omitempty"`
	LastError      string   `json:"lastError,omitempty"`
	CreatedAtMS    int64    `json:"createdAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

type jobFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// DeliverFunc sends one due reminder. Errors are recorded on the job and
// the schedule advances regardless.
type DeliverFunc func(job Job) error

// Service keeps reminder jobs in a JSON file and fires them from a ticker.
type Service struct {
	storePath string
	deliver   DeliverFunc

	mu      sync.RWMutex
	jobs    []Job
	running bool
	stop    chan struct{}

	gron    *gronx.Gronx
	nowFunc func() time.Time
}

func NewService(storePath string, deliver DeliverFunc) *Service {
	s := &Service{
		storePath: storePath,
		deliver:   deliver,
		stop:      make(chan struct{}),
		gron:      gronx.New(),
		nowFunc:   time.Now,
	}
	if err := s.load(); err != nil {
		logger.WarnCF("cron", "Could not load job store, starting empty", map[string]interface{}{
			"path":  storePath,
			"error": err.Error(),
		})
	}
	return s
}

func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	now := s.nowFunc().UnixMilli()
	for i := range s.jobs {
		if s.jobs[i].Enabled {
			s.jobs[i].NextRunAtMS = s.nextRun(s.jobs[i].Schedule, now)
		}
	}
	if err := s.saveLocked(); err != nil {
		logger.WarnCF("cron", "Could not persist job store", map[string]interface{}{"error": err.Error()})
	}
	s.mu.Unlock()

	go s.runLoop()
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

func (s *Service) runLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			for _, job := range s.takeDue() {
				s.fire(job)
			}
		}
	}
}

// takeDue collects due jobs and clears their next-run marker so the next
// tick cannot fire them again while delivery is still in flight.
func (s *Service) takeDue() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	now := s.nowFunc().UnixMilli()
	var due []Job
	for i := range s.jobs {
		j := &s.jobs[i]
		if j.Enabled && j.NextRunAtMS != nil && *j.NextRunAtMS <= now {
			due = append(due, *j)
			j.NextRunAtMS = nil
		}
	}
	return due
}

func (s *Service) fire(job Job) {
	var err error
	if s.deliver != nil {
		err = s.deliver(job)
	}
	if err != nil {
		logger.ErrorCF("cron", "Reminder delivery failed", map[string]interface{}{
			"job":   job.ID,
			"error": err.Error(),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		j := &s.jobs[i]
		if j.ID != job.ID {
			continue
		}
		ran := s.nowFunc().UnixMilli()
		j.LastRunAtMS = &ran
		j.LastError = ""
		if err != nil {
			j.LastError = err.Error()
		}

		if j.Schedule.Kind == "at" {
			if j.DeleteAfterRun {
				s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			} else {
				j.Enabled = false
			}
		} else {
			j.NextRunAtMS = s.nextRun(j.Schedule, s.nowFunc().UnixMilli())
		}
		break
	}
	if err := s.saveLocked(); err != nil {
		logger.WarnCF("cron", "Could not persist job store", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Service) nextRun(sched Schedule, nowMS int64) *int64 {
	switch sched.Kind {
	case "at":
		if sched.AtMS != nil && *sched.AtMS > nowMS {
			return sched.AtMS
		}
		return nil
	case "every":
		if sched.EveryMS == nil || *sched.EveryMS <= 0 {
			return nil
		}
		next := nowMS + *sched.EveryMS
		return &next
	case "cron":
		if sched.Expr == "" {
			return nil
		}
		next, err := gronx.NextTickAfter(sched.Expr, time.UnixMilli(nowMS), false)
		if err != nil {
			logger.WarnCF("cron", "Bad cron expression", map[string]interface{}{
				"expr":  sched.Expr,
				"error": err.Error(),
			})
			return nil
		}
		ms := next.UnixMilli()
		return &ms
	}
	return nil
}

// Add registers a job and returns it. One-shot jobs are removed after they
// fire.
func (s *Service) Add(name string, sched Schedule, delivery Delivery) (Job, error) {
	if sched.Kind == "cron" && !s.gron.IsValid(sched.Expr) {
		return Job{}, fmt.Errorf("invalid cron expression %q", sched.Expr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc().UnixMilli()
	job := Job{
		ID:             uuid.NewString(),
		Name:           name,
		Enabled:        true,
		Schedule:       sched,
		Delivery:       delivery,
		NextRunAtMS:    s.nextRun(sched, now),
		CreatedAtMS:    now,
		DeleteAfterRun: sched.Kind == "at",
	}
	s.jobs = append(s.jobs, job)
	if err := s.saveLocked(); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (s *Service) Remove(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.jobs {
		if s.jobs[i].ID == jobID {
			s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
			if err := s.saveLocked(); err != nil {
				logger.WarnCF("cron", "Could not persist job store", map[string]interface{}{"error": err.Error()})
			}
			return true
		}
	}
	return false
}

func (s *Service) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// ListForScope filters jobs by chat target, for per-group listing.
func (s *Service) ListForScope(groupID, userID int64) []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Job
	for _, j := range s.jobs {
		if j.Delivery.GroupID == groupID && j.Delivery.UserID == userID {
			out = append(out, j)
		}
	}
	return out
}

func (s *Service) load() error {
	s.jobs = nil
	data, err := os.ReadFile(s.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var f jobFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	s.jobs = f.Jobs
	return nil
}

func (s *Service) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.storePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(jobFile{Version: 1, Jobs: s.jobs}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.storePath, data, 0o644)
}
