package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/briefly/internal/media"
	"github.com/codebuildervaibhav/briefly/internal/status"
	"github.com/codebuildervaibhav/briefly/internal/storage"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

// --- fakes ---

type fakeFetcher struct {
	dir  string
	size int
	err  error
}

func (f *fakeFetcher) FetchMedia(ctx context.Context, url, jobID string, opts media.FetchOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, jobID+".m4a")
	return path, os.WriteFile(path, make([]byte, f.size), 0644)
}

type fakeCompressor struct {
	ceiling int64
	size    int
	err     error
	calls   int
}

func (c *fakeCompressor) Ceiling() int64 { return c.ceiling }

func (c *fakeCompressor) Compress(ctx context.Context, in string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	out := in + ".small.m4a"
	return out, os.WriteFile(out, make([]byte, c.size), 0644)
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	paths []string
	hook  func()
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	t.mu.Lock()
	t.paths = append(t.paths, path)
	hook := t.hook
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
	return t.text, t.err
}

func (t *fakeTranscriber) called() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}

type fakeSummarizer struct {
	out string
	err error
}

func (s *fakeSummarizer) Summarize(ctx context.Context, transcript string, level types.SummaryLevel) (string, error) {
	return s.out, s.err
}

type fakeMetrics struct {
	mu    sync.Mutex
	saved map[string][]types.Metrics
}

func (m *fakeMetrics) SaveMetrics(ctx context.Context, jobID string, metrics types.Metrics, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string][]types.Metrics{}
	}
	m.saved[jobID] = append(m.saved[jobID], metrics)
	return nil
}

func (m *fakeMetrics) get(jobID string) []types.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[jobID]
}

type fakeArchiver struct {
	mu        sync.Mutex
	artifacts []storage.Artifact
}

func (a *fakeArchiver) Archive(ctx context.Context, art storage.Artifact) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.artifacts = append(a.artifacts, art)
}

// --- harness ---

type harness struct {
	store   *status.Store
	fetcher *fakeFetcher
	comp    *fakeCompressor
	trans   *fakeTranscriber
	summ    *fakeSummarizer
	metrics *fakeMetrics
	archive *fakeArchiver
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := status.NewStore(status.Options{})
	t.Cleanup(store.Close)
	dir := t.TempDir()
	return &harness{
		store:   store,
		fetcher: &fakeFetcher{dir: dir, size: 2048},
		comp:    &fakeCompressor{ceiling: 1 << 20, size: 100},
		trans:   &fakeTranscriber{text: "a long transcript"},
		summ:    &fakeSummarizer{out: "# Summary\n\nok"},
		metrics: &fakeMetrics{},
		archive: &fakeArchiver{},
		dir:     dir,
	}
}

func (h *harness) processor(cfg Config) *Processor {
	return NewProcessor(cfg, Deps{
		Store:       h.store,
		Fetcher:     h.fetcher,
		Compressor:  h.comp,
		Transcriber: h.trans,
		Summarizer:  h.summ,
		Metrics:     h.metrics,
		Archiver:    h.archive,
	})
}

// submit records every status of the job, starting with PENDING.
func (h *harness) submit(desc types.Descriptor) *sequence {
	seq := &sequence{}
	h.store.OnChange(desc.JobID, seq.add)
	h.store.Set(context.Background(), desc.JobID, types.JobStatus{
		Status:     types.StatePending,
		Progress:   types.ProgressPending,
		OwnerEmail: desc.OwnerEmail,
	}, desc.OwnerID)
	return seq
}

func (h *harness) upload(t *testing.T, jobID string, size int) string {
	t.Helper()
	path := filepath.Join(h.dir, jobID+".mp3")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

type sequence struct {
	mu   sync.Mutex
	seen []types.JobStatus
}

func (s *sequence) add(st types.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, st)
}

func (s *sequence) all() []types.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.JobStatus(nil), s.seen...)
}

func (s *sequence) states() []types.State {
	var out []types.State
	for _, st := range s.all() {
		out = append(out, st.Status)
	}
	return out
}

func (s *sequence) last() types.JobStatus {
	all := s.all()
	return all[len(all)-1]
}

// assertValidPath checks the state machine and progress monotonicity.
func assertValidPath(t *testing.T, seq []types.JobStatus) {
	t.Helper()
	require.NotEmpty(t, seq)
	assert.Equal(t, types.StatePending, seq[0].Status)
	for i := 1; i < len(seq); i++ {
		prev, cur := seq[i-1], seq[i]
		assert.True(t, types.CanTransition(prev.Status, cur.Status), "invalid transition %s -> %s", prev.Status, cur.Status)
		assert.GreaterOrEqual(t, cur.Progress, prev.Progress, "progress regressed at %s", cur.Status)
	}
	last := seq[len(seq)-1]
	assert.True(t, last.Status.IsTerminal())
	assert.Equal(t, 100, last.Progress)
}

// --- real pipeline ---

func TestProcess_UploadSuccess(t *testing.T) {
	h := newHarness(t)
	p := h.processor(Config{})
	path := h.upload(t, "job-1", 512)

	seq := h.submit(types.NewUploadJob("job-1", path, types.LevelShort, "u1", "a@example.com"))
	p.Process(types.NewUploadJob("job-1", path, types.LevelShort, "u1", "a@example.com"))
	p.Wait()

	assert.Equal(t, []types.State{
		types.StatePending, types.StateTranscribing, types.StateSummarizing, types.StateReady,
	}, seq.states())
	assertValidPath(t, seq.all())

	final := seq.last()
	assert.Equal(t, "# Summary\n\nok", final.Summary)
	assert.Equal(t, CompletedMessage, final.Message)
	assert.Equal(t, "a@example.com", final.OwnerEmail)
	assert.NoFileExists(t, path)

	saved := h.metrics.get("job-1")
	require.Len(t, saved, 1)
	assert.Equal(t, int64(512), saved[0].InputBytes)
	assert.Equal(t, int64(512), saved[0].OutputBytes)
	assert.Zero(t, h.comp.calls)

	require.Len(t, h.archive.artifacts, 1)
	assert.Equal(t, types.SourceUpload, h.archive.artifacts[0].Source)
}

func TestProcess_YouTubeSuccess(t *testing.T) {
	h := newHarness(t)
	p := h.processor(Config{})

	desc := types.NewYouTubeJob("job-2", "https://youtu.be/dQw4w9WgXcQ", types.LevelMedium, "u1", "")
	seq := h.submit(desc)
	p.Process(desc)
	p.Wait()

	all := seq.all()
	assert.Equal(t, []types.State{
		types.StatePending, types.StateDownloading, types.StateTranscribing, types.StateSummarizing, types.StateReady,
	}, seq.states())
	assert.Equal(t, types.ProgressDownloading, all[1].Progress)
	assertValidPath(t, all)
	assert.NoFileExists(t, filepath.Join(h.dir, "job-2.m4a"))
}

func TestProcess_FetchFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = &media.ToolError{Tool: "yt-dlp", Strategy: "android", ExitCode: 1, Stderr: "HTTP Error 403", Restricted: true}
	p := h.processor(Config{})

	desc := types.NewYouTubeJob("job-3", "https://youtu.be/dQw4w9WgXcQ", types.LevelShort, "u1", "")
	seq := h.submit(desc)
	p.Process(desc)
	p.Wait()

	assert.Equal(t, []types.State{types.StatePending, types.StateDownloading, types.StateFailed}, seq.states())
	assertValidPath(t, seq.all())
	final := seq.last()
	assert.Equal(t, h.fetcher.err.Error(), final.Message)
	assert.Empty(t, final.Summary)
	assert.Zero(t, h.trans.called())
	assert.Len(t, h.metrics.get("job-3"), 1)
	assert.Empty(t, h.archive.artifacts)
}

func TestProcess_OversizedInputIsCompressed(t *testing.T) {
	h := newHarness(t)
	h.comp.ceiling = 1000
	h.comp.size = 300
	p := h.processor(Config{})
	path := h.upload(t, "job-4", 5000)

	desc := types.NewUploadJob("job-4", path, types.LevelDetailed, "", "")
	seq := h.submit(desc)
	p.Process(desc)
	p.Wait()

	assert.Equal(t, types.StateReady, seq.last().Status)
	assert.Equal(t, 1, h.comp.calls)
	require.Equal(t, 1, h.trans.called())
	assert.Equal(t, path+".small.m4a", h.trans.paths[0])
	assert.NoFileExists(t, path)
	assert.NoFileExists(t, path+".small.m4a")

	saved := h.metrics.get("job-4")
	require.Len(t, saved, 1)
	assert.Equal(t, int64(5000), saved[0].InputBytes)
	assert.Equal(t, int64(300), saved[0].OutputBytes)
}

func TestProcess_CompressFailureRemovesInput(t *testing.T) {
	h := newHarness(t)
	h.comp.ceiling = 10
	h.comp.err = errors.New("audio exceeds transcription size limit")
	p := h.processor(Config{})
	path := h.upload(t, "job-5", 50)

	desc := types.NewUploadJob("job-5", path, types.LevelShort, "", "")
	seq := h.submit(desc)
	p.Process(desc)
	p.Wait()

	final := seq.last()
	assert.Equal(t, types.StateFailed, final.Status)
	assert.Equal(t, "audio exceeds transcription size limit", final.Message)
	assert.NoFileExists(t, path)
	assert.Zero(t, h.trans.called())
}

func TestProcess_SummarizerFailure(t *testing.T) {
	h := newHarness(t)
	h.summ.err = errors.New("empty summary from model")
	p := h.processor(Config{})
	path := h.upload(t, "job-6", 10)

	desc := types.NewUploadJob("job-6", path, types.LevelShort, "", "")
	seq := h.submit(desc)
	p.Process(desc)
	p.Wait()

	assert.Equal(t, []types.State{
		types.StatePending, types.StateTranscribing, types.StateSummarizing, types.StateFailed,
	}, seq.states())
	assertValidPath(t, seq.all())
	assert.Equal(t, "empty summary from model", seq.last().Message)
	assert.Empty(t, seq.last().Summary)
}

func TestProcess_MissingJobIsNoop(t *testing.T) {
	h := newHarness(t)
	p := h.processor(Config{})
	path := h.upload(t, "ghost", 10)

	p.Process(types.NewUploadJob("ghost", path, types.LevelShort, "", ""))
	p.Wait()

	_, ok := h.store.Get("ghost")
	assert.False(t, ok)
	assert.Zero(t, h.trans.called())
	assert.Empty(t, h.metrics.get("ghost"))
}

func TestProcess_InvalidSource(t *testing.T) {
	h := newHarness(t)
	p := h.processor(Config{})

	desc := types.Descriptor{JobID: "job-7", Level: types.LevelShort}
	seq := h.submit(desc)
	p.Process(desc)
	p.Wait()

	final := seq.last()
	assert.Equal(t, types.StateFailed, final.Status)
	assert.Contains(t, final.Message, types.ErrInvalidSource.Error())
}

func TestProcess_PanicBecomesFailed(t *testing.T) {
	h := newHarness(t)
	h.trans.hook = func() { panic("decoder exploded") }
	p := h.processor(Config{})
	path := h.upload(t, "job-8", 10)

	desc := types.NewUploadJob("job-8", path, types.LevelShort, "", "")
	seq := h.submit(desc)
	p.Process(desc)
	p.Wait()

	final := seq.last()
	assert.Equal(t, types.StateFailed, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Contains(t, final.Message, "worker panic: decoder exploded")
	assert.NoFileExists(t, path)
	assert.Len(t, h.metrics.get("job-8"), 1)
}

func TestProcess_BoundedConcurrency(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	h.trans.hook = func() {
		entered <- struct{}{}
		<-release
	}
	p := h.processor(Config{Workers: 1})

	first := types.NewUploadJob("first", h.upload(t, "first", 10), types.LevelShort, "", "")
	second := types.NewUploadJob("second", h.upload(t, "second", 10), types.LevelShort, "", "")
	h.submit(first)
	h.submit(second)

	p.Process(first)
	p.Process(second)

	<-entered
	pending := 0
	for _, id := range []string{"first", "second"} {
		st, ok := h.store.Get(id)
		require.True(t, ok)
		if st.Status == types.StatePending {
			pending++
		}
	}
	assert.Equal(t, 1, pending, "second job must wait for a free slot")

	close(release)
	p.Wait()

	for _, id := range []string{"first", "second"} {
		st, ok := h.store.Get(id)
		require.True(t, ok)
		assert.Equal(t, types.StateReady, st.Status)
	}
}
