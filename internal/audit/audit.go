// Package audit implements the Audit Sink (C10): an in-process bounded
// buffer drained by background workers into internal/repository's
// AuditRepo, so audit writes never block the request path on a slow sink
// (spec §4.10/§5).
//
// Grounded on the teacher's internal/service/audit.go — NewAuditService's
// hash-chain bootstrap and LogWithDetails' immediate-write shape — reshaped
// from a synchronous single-table writer into an async worker pool over the
// four-table AuditRepo, per spec.md §5's "audit-enqueue back-pressure...
// bounded wait" concurrency model. The BigQuery WORM-archival path the
// teacher wired is dropped: spec.md's Archive operation (flip `archived`)
// covers the retention story, and no example repo's retrieval pack wires a
// WORM store for this domain — noted in DESIGN.md.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelrag/sentinel/internal/apperr"
	"github.com/sentinelrag/sentinel/internal/model"
	"github.com/sentinelrag/sentinel/internal/repository"
)

// ErrQueueFull is returned by Log when the bounded buffer could not accept
// the event within enqueueTimeout. The caller's business action has already
// succeeded; per spec §5 this degrades the operation's outcome to "partial"
// rather than failing it outright.
var ErrQueueFull = errors.New("audit: enqueue buffer full")

const defaultEnqueueTimeout = 200 * time.Millisecond

// repo is the subset of *repository.AuditRepo the sink drains into —
// narrowed to an interface so tests can substitute an in-memory fake instead
// of requiring DATABASE_URL.
type repo interface {
	Log(ctx context.Context, ev *model.AuditEvent) error
	LogQuery(ctx context.Context, logID string, q model.QueryAuditEvent) error
	LogAuth(ctx context.Context, logID string, a model.AuthAuditEvent) error
	LogModification(ctx context.Context, logID string, m model.ModificationAuditEvent) error
	VerifyChain(ctx context.Context, tenantID string) (bool, string, error)
	ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]model.AuditEvent, error)
	Archive(ctx context.Context, tenantID string, cutoff time.Time) (int64, error)
}

// satellite is attached to a parent event after Log assigns it an id.
type satellite struct {
	query        *model.QueryAuditEvent
	auth         *model.AuthAuditEvent
	modification *model.ModificationAuditEvent
}

type job struct {
	event *model.AuditEvent
	sat   satellite
}

// Sink is the process-wide audit writer: callers enqueue events, a fixed
// pool of workers drains them into AuditRepo using a shared connection pool
// (spec §5's "process-wide singleton" sizing rule).
type Sink struct {
	repo           repo
	buf            chan job
	enqueueTimeout time.Duration
	wg             sync.WaitGroup
	stop           chan struct{}
}

// New builds a Sink with the given buffer size and worker count, and starts
// the workers immediately (spec's "pre-warmed at startup" pool policy).
func New(repo *repository.AuditRepo, bufferSize, workers int) *Sink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if workers <= 0 {
		workers = 4
	}
	s := &Sink{
		repo:           repo,
		buf:            make(chan job, bufferSize),
		enqueueTimeout: defaultEnqueueTimeout,
		stop:           make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.drain()
	}
	return s
}

func (s *Sink) drain() {
	defer s.wg.Done()
	for {
		select {
		case j, ok := <-s.buf:
			if !ok {
				return
			}
			s.write(j)
		case <-s.stop:
			// Drain whatever remains in the buffer before exiting.
			for {
				select {
				case j := <-s.buf:
					s.write(j)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(j job) {
	ctx := context.Background()
	if err := s.repo.Log(ctx, j.event); err != nil {
		slog.Error("audit sink failed to write event", "event_id", j.event.ID, "error", err)
		return
	}
	if j.sat.query != nil {
		if err := s.repo.LogQuery(ctx, j.event.ID, *j.sat.query); err != nil {
			slog.Error("audit sink failed to write query satellite", "event_id", j.event.ID, "error", err)
		}
	}
	if j.sat.auth != nil {
		if err := s.repo.LogAuth(ctx, j.event.ID, *j.sat.auth); err != nil {
			slog.Error("audit sink failed to write auth satellite", "event_id", j.event.ID, "error", err)
		}
	}
	if j.sat.modification != nil {
		if err := s.repo.LogModification(ctx, j.event.ID, *j.sat.modification); err != nil {
			slog.Error("audit sink failed to write modification satellite", "event_id", j.event.ID, "error", err)
		}
	}
}

// Log enqueues a main event, assigning it an id and default retention years
// (by classification) if unset. It waits at most enqueueTimeout for buffer
// space; past that it makes one synchronous degraded write (see enqueue)
// before returning ErrQueueFull.
func (s *Sink) Log(ctx context.Context, ev *model.AuditEvent) error {
	return s.enqueue(ctx, job{event: prepared(ev)})
}

// LogQuery enqueues a query satellite alongside its own freshly-assigned
// parent event, returning the parent event for the caller's own use (e.g.
// surfacing request_id).
func (s *Sink) LogQuery(ctx context.Context, ev *model.AuditEvent, q model.QueryAuditEvent) (*model.AuditEvent, error) {
	ev = prepared(ev)
	q.LogID = ev.ID
	return ev, s.enqueue(ctx, job{event: ev, sat: satellite{query: &q}})
}

// LogAuth enqueues an auth satellite alongside its own freshly-assigned
// parent event.
func (s *Sink) LogAuth(ctx context.Context, ev *model.AuditEvent, a model.AuthAuditEvent) (*model.AuditEvent, error) {
	ev = prepared(ev)
	a.LogID = ev.ID
	return ev, s.enqueue(ctx, job{event: ev, sat: satellite{auth: &a}})
}

// LogModification enqueues a modification satellite alongside its own
// freshly-assigned parent event.
func (s *Sink) LogModification(ctx context.Context, ev *model.AuditEvent, m model.ModificationAuditEvent) (*model.AuditEvent, error) {
	ev = prepared(ev)
	m.LogID = ev.ID
	return ev, s.enqueue(ctx, job{event: ev, sat: satellite{modification: &m}})
}

func prepared(ev *model.AuditEvent) *model.AuditEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.RetentionYears == 0 {
		ev.RetentionYears = model.DefaultRetentionYears[ev.ClassificationName]
	}
	return ev
}

// enqueue makes one bounded attempt to hand j to the worker pool. If the
// buffer is still full after enqueueTimeout, it falls back to a single
// synchronous write of the event with its outcome downgraded to `partial`,
// instead of dropping it. The fallback write's own errors are logged and
// swallowed, never returned to the caller.
func (s *Sink) enqueue(ctx context.Context, j job) error {
	select {
	case s.buf <- j:
		return nil
	default:
	}

	timer := time.NewTimer(s.enqueueTimeout)
	defer timer.Stop()
	select {
	case s.buf <- j:
		return nil
	case <-timer.C:
		slog.Warn("audit buffer full, writing degraded partial record", "event_id", j.event.ID)
		j.event.Outcome = model.OutcomePartial
		s.write(j)
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new writes is the caller's responsibility (stop
// enqueuing before calling); Close signals workers to drain the remaining
// buffer and waits for them to finish — the graceful-shutdown flush spec §9
// requires before the vector-store and metadata-store pools close.
func (s *Sink) Close() {
	close(s.stop)
	s.wg.Wait()
}

// VerifyChain delegates to AuditRepo's hash-chain verification — exposed
// here so compliance tooling doesn't need to depend on internal/repository
// directly.
func (s *Sink) VerifyChain(ctx context.Context, tenantID string) (intact bool, brokenAt string, err error) {
	return s.repo.VerifyChain(ctx, tenantID)
}

// ListByUser implements the "per-user activity over a date range" compliance
// query (callers filter the returned slice by time; AuditRepo's query already
// scopes by tenant and user).
func (s *Sink) ListByUser(ctx context.Context, tenantID, userID string, limit int) ([]model.AuditEvent, error) {
	return s.repo.ListByUser(ctx, tenantID, userID, limit)
}

// Archive flips the archived flag for events older than cutoff.
func (s *Sink) Archive(ctx context.Context, tenantID string, cutoff time.Time) (int64, error) {
	n, err := s.repo.Archive(ctx, tenantID, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindOf(err), "archive audit events", err)
	}
	return n, nil
}
