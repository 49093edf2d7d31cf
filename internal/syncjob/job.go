package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	activitydomain "relaydesk-backend/internal/activity/domain"
	"relaydesk-backend/pkg/types"
)

// DefaultFailureThreshold is the number of consecutive failed ticks that
// raises a critical activity event.
const DefaultFailureThreshold = 3

// ActivityRecorder receives the threshold alerts
type ActivityRecorder interface {
	Record(ctx context.Context, ownerID, kind, severity, message string, meta types.Metadata)
}

// RunFunc performs one pass of a job.
type RunFunc func(ctx context.Context) error

// OwnerErrors aggregates per-account failures of a single tick.
type OwnerErrors map[string]error

func (e OwnerErrors) Error() string {
	owners := make([]string, 0, len(e))
	for id := range e {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	parts := make([]string, 0, len(owners))
	for _, id := range owners {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e[id]))
	}
	return strings.Join(parts, "; ")
}

// Status is a snapshot of a job's health
type Status struct {
	Name                string     `json:"name"`
	Interval            string     `json:"interval"`
	IsRunning           bool       `json:"is_running"`
	LastRun             *time.Time `json:"last_run,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// Job runs fn on a fixed interval. Ticks of the same job never overlap.
type Job struct {
	name      string
	interval  time.Duration
	run       RunFunc
	threshold int
	activity  ActivityRecorder
	now       func() time.Time

	running atomic.Bool

	mu       sync.RWMutex
	lastRun  *time.Time
	lastErr  string
	failures int

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewJob(name string, interval time.Duration, run RunFunc, threshold int, activity ActivityRecorder) *Job {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &Job{
		name:      name,
		interval:  interval,
		run:       run,
		threshold: threshold,
		activity:  activity,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

func (j *Job) Name() string { return j.name }

// Tick runs one pass unless a previous pass is still in progress. It
// reports whether the pass ran.
func (j *Job) Tick(ctx context.Context) bool {
	if !j.running.CompareAndSwap(false, true) {
		log.Printf("[SyncJob] skip %s: previous run still in progress", j.name)
		return false
	}
	defer j.running.Store(false)

	err := j.run(ctx)
	at := j.now()

	j.mu.Lock()
	j.lastRun = &at
	if err == nil {
		j.failures = 0
		j.lastErr = ""
		j.mu.Unlock()
		return true
	}
	j.failures++
	j.lastErr = err.Error()
	failures := j.failures
	j.mu.Unlock()

	log.Printf("[SyncJob] error: %s failed (%d in a row): %v", j.name, failures, err)
	if failures == j.threshold {
		j.alert(ctx, failures, err)
	}
	return true
}

func (j *Job) alert(ctx context.Context, failures int, err error) {
	if j.activity == nil {
		return
	}
	meta := types.Metadata{"job": j.name, "consecutive_failures": failures}
	msg := fmt.Sprintf("%s has failed %d times in a row", j.name, failures)

	var owners OwnerErrors
	if errors.As(err, &owners) && len(owners) > 0 {
		for ownerID, ownerErr := range owners {
			j.activity.Record(ctx, ownerID, activitydomain.KindSyncFailing, activitydomain.SeverityCritical,
				fmt.Sprintf("%s: %v", msg, ownerErr), meta)
		}
		return
	}
	j.activity.Record(ctx, "", activitydomain.KindSyncFailing, activitydomain.SeverityCritical,
		fmt.Sprintf("%s: %v", msg, err), meta)
}

// Status returns a consistent snapshot.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := Status{
		Name:                j.name,
		Interval:            j.interval.String(),
		IsRunning:           j.running.Load(),
		LastError:           j.lastErr,
		ConsecutiveFailures: j.failures,
	}
	if j.lastRun != nil {
		t := *j.lastRun
		s.LastRun = &t
	}
	return s
}

// Start begins the ticker loop, running once immediately
func (j *Job) Start(ctx context.Context) {
	log.Printf("[SyncJob] Starting %s (interval: %s)", j.name, j.interval)

	go func() {
		j.Tick(ctx)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.Tick(ctx)
			case <-j.stopChan:
				log.Printf("[SyncJob] %s stopped", j.name)
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the ticker loop. A pass in progress finishes on its own.
func (j *Job) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

// TriggerNow runs an out-of-band pass in the background.
func (j *Job) TriggerNow(ctx context.Context) {
	go j.Tick(ctx)
}

// Registry exposes the status of every job
type Registry struct {
	jobs []*Job
}

func NewRegistry(jobs ...*Job) *Registry {
	return &Registry{jobs: jobs}
}

func (r *Registry) Statuses() []Status {
	out := make([]Status, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Status())
	}
	return out
}

func (r *Registry) Get(name string) *Job {
	for _, j := range r.jobs {
		if j.name == name {
			return j
		}
	}
	return nil
}

func (r *Registry) StopAll() {
	for _, j := range r.jobs {
		j.Stop()
	}
}
