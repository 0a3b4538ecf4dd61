package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/slotscout/internal/archive"
	"github.com/example/slotscout/internal/domain/scrape"
	"github.com/example/slotscout/internal/domain/venue"
	"github.com/example/slotscout/internal/internaltypes"
	"github.com/example/slotscout/internal/metrics"
	"github.com/example/slotscout/internal/platform"
	"github.com/example/slotscout/internal/progress"
	"github.com/example/slotscout/internal/report"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/example/slotscout/internal/jobs"

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// State is a snapshot of one job. Callers only ever see copies.
type State struct {
	ID         string
	Status     Status
	Success    bool
	Venues     []venue.Venue
	Report     string
	Count      int
	Error      string
	Request    scrape.Request
	CreatedAt  time.Time
	FinishedAt time.Time
}

func (s State) Done() bool { return s.Status == StatusCompleted }

func (s State) clone() State {
	out := s
	out.Venues = venue.CloneAll(s.Venues)
	return out
}

// Record converts a finished state into its archived form.
func (s State) Record() archive.Record {
	return archive.Record{
		ID:         s.ID,
		Platform:   string(s.Request.Platform),
		Location:   s.Request.Location,
		Sport:      s.Request.Sport,
		StartDate:  s.Request.StartDate,
		EndDate:    s.Request.EndDate,
		Success:    s.Success,
		VenueCount: s.Count,
		Error:      s.Error,
		Report:     s.Report,
		Venues:     s.Venues,
		CreatedAt:  s.CreatedAt,
		FinishedAt: s.FinishedAt,
	}
}

type job struct {
	state  State
	events *progress.Channel
}

type Options struct {
	// Archive receives every finished job. Optional.
	Archive archive.Archive
	// Metrics is optional.
	Metrics        *metrics.Metrics
	ArchiveTimeout time.Duration
	Now            func() time.Time
	NewID          func() string
}

// Orchestrator runs scrape jobs in the background, one goroutine per job,
// and keeps their state in memory for the lifetime of the process.
type Orchestrator struct {
	adapters platform.Registry
	archive  archive.Archive
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	archiveTimeout time.Duration
	now            func() time.Time
	newID          func() string

	mu   sync.RWMutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

func New(adapters platform.Registry, opts Options) *Orchestrator {
	o := &Orchestrator{
		adapters:       adapters,
		archive:        opts.Archive,
		metrics:        opts.Metrics,
		tracer:         otel.Tracer(tracerName),
		archiveTimeout: opts.ArchiveTimeout,
		now:            opts.Now,
		newID:          opts.NewID,
		jobs:           map[string]*job{},
	}
	if o.archiveTimeout <= 0 {
		o.archiveTimeout = 5 * time.Second
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

// Submit validates req, registers a running job and starts it. It returns as
// soon as the job goroutine has been spawned. ctx only carries trace context;
// cancelling it does not stop the job.
func (o *Orchestrator) Submit(ctx context.Context, req scrape.Request) (string, error) {
	norm, err := req.Normalize(o.now())
	if err != nil {
		return "", err
	}
	adapters, err := o.adapters.Select(norm)
	if err != nil {
		return "", err
	}

	j := &job{
		state: State{
			ID:        o.newID(),
			Status:    StatusRunning,
			Request:   norm,
			CreatedAt: o.now(),
		},
		events: progress.NewChannel(),
	}

	o.mu.Lock()
	if _, dup := o.jobs[j.state.ID]; dup {
		o.mu.Unlock()
		return "", fmt.Errorf("job id collision: %s", j.state.ID)
	}
	o.jobs[j.state.ID] = j
	o.mu.Unlock()

	o.metrics.JobSubmitted()
	slog.InfoContext(ctx, "job submitted", "job_id", j.state.ID, "platform", norm.Platform,
		"start_date", norm.StartDate, "end_date", norm.EndDate)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		jobCtx := context.WithoutCancel(ctx)
		defer o.recoverJob(jobCtx, j)
		o.run(jobCtx, j, adapters)
	}()
	return j.state.ID, nil
}

func (o *Orchestrator) run(ctx context.Context, j *job, adapters []platform.Adapter) {
	id, req := j.state.ID, j.state.Request
	ctx, span := o.tracer.Start(ctx, "scrape.job", trace.WithAttributes(
		attribute.String("job.id", id),
		attribute.String("job.platform", string(req.Platform)),
	))
	defer span.End()

	var all []venue.Venue
	var runErr error
	for _, a := range adapters {
		name := a.Platform()
		j.events.Logf("%s", strings.Repeat("=", 40))
		j.events.Logf("[%s] Starting %s scraper...", strings.ToUpper(string(name)), scrape.PlatformLabel(name))
		j.events.Logf("%s", strings.Repeat("=", 40))

		vs, err := o.runAdapter(ctx, a, req, j.events)
		if err != nil {
			runErr = err
			break
		}
		for i := range vs {
			vs[i].Platform = string(name)
			vs[i].Finalize()
		}
		all = append(all, vs...)
	}

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		slog.ErrorContext(ctx, "job failed", "job_id", id, "err", runErr)
		o.finish(ctx, j, func(s *State) {
			s.Success = false
			s.Error = runErr.Error()
		})
		j.events.Fail(runErr.Error())
		return
	}

	text := report.Render(venue.CloneAll(all), req)
	span.SetAttributes(attribute.Int("job.venues", len(all)))
	slog.InfoContext(ctx, "job completed", "job_id", id, "venues", len(all))
	o.finish(ctx, j, func(s *State) {
		s.Success = true
		s.Venues = all
		s.Report = text
		s.Count = len(all)
	})
	j.events.Complete()
}

// recoverJob fails a job whose goroutine panicked outside an adapter and
// makes sure its terminal event is published. The archive is skipped.
func (o *Orchestrator) recoverJob(ctx context.Context, j *job) {
	p := recover()
	if p == nil {
		return
	}
	slog.ErrorContext(ctx, "job panic", "job_id", j.state.ID, "panic", p, "stack", string(debug.Stack()))

	o.mu.Lock()
	wasDone := j.state.Done()
	if !wasDone {
		j.state.Status = StatusCompleted
		j.state.Success = false
		j.state.Venues = nil
		j.state.Report = ""
		j.state.Count = 0
		j.state.Error = fmt.Sprintf("scrape crashed: %v", p)
		// the injected clock may be what panicked
		j.state.FinishedAt = time.Now()
	}
	snap := j.state.clone()
	o.mu.Unlock()

	if !wasDone {
		o.metrics.JobFinished(false)
	}
	if snap.Success {
		j.events.Complete()
	} else {
		j.events.Fail(snap.Error)
	}
}

// runAdapter turns anything escaping an adapter, panics included, into an
// AdapterError.
func (o *Orchestrator) runAdapter(ctx context.Context, a platform.Adapter, req scrape.Request, r progress.Reporter) (vs []venue.Venue, err error) {
	name := string(a.Platform())
	ctx, span := o.tracer.Start(ctx, "scrape.adapter", trace.WithAttributes(attribute.String("platform", name)))
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			slog.ErrorContext(ctx, "adapter panic", "platform", name, "panic", p, "stack", string(debug.Stack()))
			vs, err = nil, &internaltypes.AdapterError{Platform: name, Err: fmt.Errorf("%s scraper crashed: %v", name, p)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.metrics.AdapterRun(name, time.Since(start), len(vs), err == nil)
	}()

	vs, err = a.Scrape(ctx, req, r)
	if err != nil {
		var ae *internaltypes.AdapterError
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, &internaltypes.AdapterError{Platform: name, Err: err}
	}
	return vs, nil
}

// finish writes the terminal state. It runs before the terminal event is
// published so a reader that sees the event always finds the final state.
func (o *Orchestrator) finish(ctx context.Context, j *job, apply func(*State)) {
	now := o.now()
	o.mu.Lock()
	apply(&j.state)
	j.state.Status = StatusCompleted
	j.state.FinishedAt = now
	snap := j.state.clone()
	o.mu.Unlock()

	o.metrics.JobFinished(snap.Success)
	o.save(ctx, snap)
}

func (o *Orchestrator) save(ctx context.Context, s State) {
	if o.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.archiveTimeout)
	defer cancel()
	rec := s.Record()
	if err := o.archive.Save(ctx, rec); err != nil {
		slog.WarnContext(ctx, "archive save failed", "job_id", s.ID, "err", err)
	}
}

// Snapshot returns the current state of a job, running or not.
func (o *Orchestrator) Snapshot(id string) (State, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	j, ok := o.jobs[id]
	if !ok {
		return State{}, internaltypes.ErrNotFound
	}
	return j.state.clone(), nil
}

// Result returns the terminal state of a job: ErrNotFound for unknown ids,
// ErrNotReady while it is still running. Repeated calls return equal copies.
func (o *Orchestrator) Result(id string) (State, error) {
	s, err := o.Snapshot(id)
	if err != nil {
		return State{}, err
	}
	if !s.Done() {
		return State{}, internaltypes.ErrNotReady
	}
	return s, nil
}

// Events returns the progress channel of a job. It has exactly one reader.
func (o *Orchestrator) Events(id string) (*progress.Channel, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	j, ok := o.jobs[id]
	if !ok {
		return nil, internaltypes.ErrNotFound
	}
	return j.events, nil
}

// List returns snapshots of every known job, newest first, without venues.
func (o *Orchestrator) List() []State {
	o.mu.RLock()
	out := make([]State, 0, len(o.jobs))
	for _, j := range o.jobs {
		s := j.state
		s.Venues = nil
		out = append(out, s)
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// Wait blocks until every job started so far has finished, or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
