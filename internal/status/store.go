package status

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

// DefaultRetention is how long a terminal job stays in memory.
const DefaultRetention = 10 * time.Minute

const mirrorTimeout = 5 * time.Second

// Mirror persists every transition for audit and listing.
type Mirror interface {
	UpsertJob(ctx context.Context, st types.JobStatus, ownerID string, updatedAt time.Time) error
}

// Notifier sends one outbound message about a job status.
type Notifier interface {
	Notify(ctx context.Context, st types.JobStatus) error
}

// Listener receives the full status on every Set for its job.
type Listener func(types.JobStatus)

// ListenerID identifies a registration returned by OnChange.
type ListenerID uint64

// Entry is one row of an All snapshot.
type Entry struct {
	JobID  string
	Status types.JobStatus
}

// Options configures a Store. Zero values disable the mirror and notifier.
type Options struct {
	Mirror    Mirror
	Notifier  Notifier
	Retention time.Duration
	// NotifyOn lists the states that trigger a notification. Defaults to
	// the terminal states.
	NotifyOn []types.State
	Logger   *slog.Logger
}

type listener struct {
	id ListenerID
	fn Listener
}

// Store is the in-memory registry of job status with change notification.
// Create one per process and pass it to collaborators.
type Store struct {
	mu        sync.RWMutex
	statuses  map[string]types.JobStatus
	listeners map[string][]listener
	notified  map[string]map[types.State]bool
	timers    map[string]*time.Timer
	nextID    ListenerID

	mirror    Mirror
	notifier  Notifier
	retention time.Duration
	notifyOn  map[types.State]bool
	logger    *slog.Logger

	inflight sync.WaitGroup
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.NotifyOn) == 0 {
		opts.NotifyOn = []types.State{types.StateReady, types.StateFailed}
	}
	notifyOn := make(map[types.State]bool, len(opts.NotifyOn))
	for _, s := range opts.NotifyOn {
		notifyOn[s] = true
	}

	return &Store{
		statuses:  make(map[string]types.JobStatus),
		listeners: make(map[string][]listener),
		notified:  make(map[string]map[types.State]bool),
		timers:    make(map[string]*time.Timer),
		mirror:    opts.Mirror,
		notifier:  opts.Notifier,
		retention: opts.Retention,
		notifyOn:  notifyOn,
		logger:    opts.Logger.With("component", "status"),
	}
}

// Set stores st as the current value for jobID (last writer wins) and
// delivers it to the job's listeners before returning. A non-empty
// ownerID also upserts the durable mirror.
func (s *Store) Set(ctx context.Context, jobID string, st types.JobStatus, ownerID string) {
	st.JobID = jobID
	if ownerID != "" && st.OwnerID == "" {
		st.OwnerID = ownerID
	}

	s.mu.Lock()
	prev, hadPrev := s.statuses[jobID]
	s.statuses[jobID] = st
	subs := make([]listener, len(s.listeners[jobID]))
	copy(subs, s.listeners[jobID])
	sendNotice := s.reserveNotice(jobID, prev, hadPrev, st)
	if st.Status.IsTerminal() {
		s.armEviction(jobID, st.Status)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.deliver(jobID, sub, st)
	}

	if ownerID != "" && s.mirror != nil {
		s.writeMirror(ctx, st, ownerID)
	}

	if sendNotice {
		s.inflight.Add(1)
		go s.sendNotice(st)
	}
}

// Get returns the current status of jobID.
func (s *Store) Get(jobID string) (types.JobStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[jobID]
	return st, ok
}

// OnChange registers fn for every subsequent Set of jobID. Callers that
// need the current value should Get before subscribing.
func (s *Store) OnChange(jobID string, fn Listener) ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[jobID] = append(s.listeners[jobID], listener{id: id, fn: fn})
	return id
}

// RemoveListener unregisters id. Removing an unknown id is a no-op.
func (s *Store) RemoveListener(jobID string, id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.listeners[jobID]
	for i, sub := range subs {
		if sub.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(s.listeners, jobID)
		return
	}
	s.listeners[jobID] = subs
}

// All returns a snapshot of every tracked job ordered by id.
func (s *Store) All() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.statuses))
	for id, st := range s.statuses {
		out = append(out, Entry{JobID: id, Status: st})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out
}

// Len reports the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statuses)
}

// Wait blocks until in-flight notifications have finished.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// Close stops pending eviction timers and waits for notifications.
func (s *Store) Close() {
	s.mu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.Wait()
}

func (s *Store) deliver(jobID string, sub listener, st types.JobStatus) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panic", "jobId", jobID, "listener", sub.id, "panic", r)
		}
	}()
	sub.fn(st)
}

func (s *Store) writeMirror(ctx context.Context, st types.JobStatus, ownerID string) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	if err := s.mirror.UpsertJob(ctx, st, ownerID, time.Now().UTC()); err != nil {
		s.logger.Warn("mirror write failed", "jobId", st.JobID, "status", st.Status, "error", err)
	}
}

// reserveNotice marks st.Status as notified for the job and reports
// whether a notification should go out. Caller holds s.mu.
func (s *Store) reserveNotice(jobID string, prev types.JobStatus, hadPrev bool, st types.JobStatus) bool {
	if s.notifier == nil || st.OwnerEmail == "" || !s.notifyOn[st.Status] {
		return false
	}
	if hadPrev && prev.Status == st.Status {
		return false
	}
	sent := s.notified[jobID]
	if sent == nil {
		sent = make(map[types.State]bool)
		s.notified[jobID] = sent
	}
	if sent[st.Status] {
		return false
	}
	sent[st.Status] = true
	return true
}

func (s *Store) sendNotice(st types.JobStatus) {
	defer s.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.notifier.Notify(ctx, st); err != nil {
		s.logger.Warn("notification failed", "jobId", st.JobID, "status", st.Status, "error", err)
	}
}

// armEviction (re)starts the retention timer for a terminal job. A later
// terminal Set restarts the window. Caller holds s.mu.
func (s *Store) armEviction(jobID string, terminal types.State) {
	if t, ok := s.timers[jobID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.timers[jobID] != timer {
			return
		}
		delete(s.timers, jobID)
		if cur, ok := s.statuses[jobID]; ok && cur.Status == terminal {
			delete(s.statuses, jobID)
			delete(s.listeners, jobID)
			delete(s.notified, jobID)
		}
	})
	s.timers[jobID] = timer
}
