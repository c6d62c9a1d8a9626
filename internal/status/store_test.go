package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

type fakeMirror struct {
	mu    sync.Mutex
	calls []types.JobStatus
	err   error
}

func (m *fakeMirror) UpsertJob(_ context.Context, st types.JobStatus, ownerID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.OwnerID = ownerID
	m.calls = append(m.calls, st)
	return m.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []types.JobStatus
}

func (n *fakeNotifier) Notify(_ context.Context, st types.JobStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, st)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func TestStore_SetThenGet(t *testing.T) {
	s := NewStore(Options{})
	defer s.Close()

	st := types.JobStatus{Status: types.StatePending, Progress: 0, OwnerEmail: "a@b.c"}
	s.Set(context.Background(), "job-1", st, "")

	got, ok := s.Get("job-1")
	require.True(t, ok)
	st.JobID = "job-1"
	assert.Equal(t, st, got)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_ListenerInvokedOnce(t *testing.T) {
	s := NewStore(Options{})
	defer s.Close()

	var got []types.JobStatus
	s.OnChange("job-1", func(st types.JobStatus) { got = append(got, st) })

	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StateTranscribing, Progress: 30}, "")

	require.Len(t, got, 1)
	assert.Equal(t, types.StateTranscribing, got[0].Status)
	assert.Equal(t, "job-1", got[0].JobID)
}

func TestStore_RemovedListenerNotInvoked(t *testing.T) {
	s := NewStore(Options{})
	defer s.Close()

	called := false
	id := s.OnChange("job-1", func(types.JobStatus) { called = true })
	s.RemoveListener("job-1", id)
	s.RemoveListener("job-1", id)

	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StatePending}, "")
	assert.False(t, called)

	s.mu.RLock()
	_, present := s.listeners["job-1"]
	s.mu.RUnlock()
	assert.False(t, present, "last removal should prune the entry")
}

func TestStore_DeliveryOrderAndPanicIsolation(t *testing.T) {
	s := NewStore(Options{})
	defer s.Close()

	var order []int
	s.OnChange("job-1", func(types.JobStatus) { order = append(order, 1) })
	s.OnChange("job-1", func(types.JobStatus) { panic("boom") })
	s.OnChange("job-1", func(types.JobStatus) { order = append(order, 3) })

	require.NotPanics(t, func() {
		s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StatePending}, "")
	})
	assert.Equal(t, []int{1, 3}, order)
}

func TestStore_ListenerMayUnsubscribeItself(t *testing.T) {
	s := NewStore(Options{})
	defer s.Close()

	var id ListenerID
	calls := 0
	id = s.OnChange("job-1", func(types.JobStatus) {
		calls++
		s.RemoveListener("job-1", id)
	})

	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StatePending}, "")
	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StateTranscribing}, "")
	assert.Equal(t, 1, calls)
}

func TestStore_MirrorOnlyWithOwner(t *testing.T) {
	mirror := &fakeMirror{}
	s := NewStore(Options{Mirror: mirror})
	defer s.Close()

	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StatePending}, "")
	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StateTranscribing, Progress: 30}, "owner-1")

	require.Len(t, mirror.calls, 1)
	assert.Equal(t, "owner-1", mirror.calls[0].OwnerID)
	assert.Equal(t, types.StateTranscribing, mirror.calls[0].Status)
}

func TestStore_MirrorErrorDoesNotBlockUpdate(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("db down")}
	s := NewStore(Options{Mirror: mirror})
	defer s.Close()

	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StateSummarizing, Progress: 70}, "owner-1")

	got, ok := s.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, types.StateSummarizing, got.Status)
}

func TestStore_TerminalNotificationIsIdempotent(t *testing.T) {
	notifier := &fakeNotifier{}
	s := NewStore(Options{Notifier: notifier})
	defer s.Close()

	ready := types.JobStatus{Status: types.StateReady, Progress: 100, Summary: "# Summary", OwnerEmail: "a@b.c"}
	s.Set(context.Background(), "job-1", ready, "")
	s.Set(context.Background(), "job-1", ready, "")
	s.Wait()

	assert.Equal(t, 1, notifier.count())
}

func TestStore_NoNotificationWithoutEmailOrForIntermediateStates(t *testing.T) {
	notifier := &fakeNotifier{}
	s := NewStore(Options{Notifier: notifier})
	defer s.Close()

	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StateFailed, Progress: 100}, "")
	s.Set(context.Background(), "job-2", types.JobStatus{Status: types.StateTranscribing, OwnerEmail: "a@b.c"}, "")
	s.Wait()

	assert.Equal(t, 0, notifier.count())
}

func TestStore_EvictsTerminalAfterRetention(t *testing.T) {
	notifier := &fakeNotifier{}
	s := NewStore(Options{Retention: 20 * time.Millisecond, Notifier: notifier})
	defer s.Close()

	s.OnChange("job-1", func(types.JobStatus) {})
	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StateFailed, Progress: 100, Message: "x", OwnerEmail: "a@b.c"}, "")

	require.Eventually(t, func() bool {
		_, ok := s.Get("job-1")
		return !ok
	}, time.Second, 5*time.Millisecond)

	s.mu.RLock()
	_, hasListeners := s.listeners["job-1"]
	_, hasNotified := s.notified["job-1"]
	s.mu.RUnlock()
	assert.False(t, hasListeners)
	assert.False(t, hasNotified)

	// A reused id starts with a clean notification history.
	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StateFailed, Progress: 100, OwnerEmail: "a@b.c"}, "")
	s.Wait()
	assert.Equal(t, 2, notifier.count())
}

func TestStore_EvictionSkipsChangedStatus(t *testing.T) {
	s := NewStore(Options{Retention: 20 * time.Millisecond})
	defer s.Close()

	s.Set(context.Background(), "job-1", types.JobStatus{Status: types.StateReady, Progress: 100}, "")
	// Overwrite with a different value under the same id before the timer fires.
	s.mu.Lock()
	s.statuses["job-1"] = types.JobStatus{JobID: "job-1", Status: types.StatePending}
	s.mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	_, ok := s.Get("job-1")
	assert.True(t, ok)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(Options{})
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			jobID := fmt.Sprintf("job-%d", i%4)
			id := s.OnChange(jobID, func(types.JobStatus) {})
			s.Set(context.Background(), jobID, types.JobStatus{Status: types.StatePending, Progress: i}, "")
			s.Get(jobID)
			s.All()
			s.RemoveListener(jobID, id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, s.Len())
	entries := s.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "job-0", entries[0].JobID)
}
