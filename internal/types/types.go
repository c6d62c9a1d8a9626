package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidLevel is returned for an unknown summary verbosity tier.
	ErrInvalidLevel = errors.New("invalid summary level")
	// ErrInvalidSource is returned when a descriptor carries no usable source.
	ErrInvalidSource = errors.New("invalid job source")
)

// State is the pipeline stage of a job, ordered by stage.
type State string

const (
	StatePending      State = "PENDING"
	StateDownloading  State = "DOWNLOADING"
	StateTranscribing State = "TRANSCRIBING"
	StateSummarizing  State = "SUMMARIZING"
	StateReady        State = "READY"
	StateFailed       State = "FAILED"
)

// Progress checkpoints written on state entry.
const (
	ProgressPending      = 0
	ProgressDownloading  = 10
	ProgressTranscribing = 30
	ProgressSummarizing  = 70
	ProgressDone         = 100
)

// IsTerminal reports whether no further transitions are valid.
func (s State) IsTerminal() bool {
	return s == StateReady || s == StateFailed
}

// rank orders non-failed states along the pipeline.
func (s State) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateDownloading:
		return 1
	case StateTranscribing:
		return 2
	case StateSummarizing:
		return 3
	case StateReady:
		return 4
	default:
		return -1
	}
}

// CanTransition enforces the job state machine. Staying in the same
// non-terminal state is allowed; DOWNLOADING may be skipped.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	switch {
	case from == to:
		return true
	case from == StatePending:
		return to == StateDownloading || to == StateTranscribing
	case to.rank() < 0 || from.rank() < 0:
		return false
	default:
		return to.rank() == from.rank()+1
	}
}

// JobStatus is the live record tracked per job.
type JobStatus struct {
	JobID      string `json:"jobId"`
	Status     State  `json:"status"`
	Progress   int    `json:"progress"`
	Message    string `json:"message,omitempty"`
	Summary    string `json:"summary,omitempty"`
	OwnerEmail string `json:"userEmail,omitempty"`
	OwnerID    string `json:"userId,omitempty"`
}

// SummaryLevel is one of four ordinal verbosity tiers.
type SummaryLevel string

const (
	LevelShort    SummaryLevel = "short"
	LevelMedium   SummaryLevel = "medium"
	LevelDetailed SummaryLevel = "detailed"
	LevelExtreme  SummaryLevel = "extreme"
)

// ParseLevel validates a user-supplied verbosity tier.
func ParseLevel(raw string) (SummaryLevel, error) {
	switch lvl := SummaryLevel(strings.ToLower(strings.TrimSpace(raw))); lvl {
	case LevelShort, LevelMedium, LevelDetailed, LevelExtreme:
		return lvl, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, raw)
	}
}

// Ordinal returns 0..3 for short..extreme.
func (l SummaryLevel) Ordinal() int {
	switch l {
	case LevelMedium:
		return 1
	case LevelDetailed:
		return 2
	case LevelExtreme:
		return 3
	default:
		return 0
	}
}

// Source constants, also stored in the durable mirror.
const (
	SourceUpload  = "upload"
	SourceYouTube = "youtube"
)

// Source is the origin of the audio for a job. The only implementations
// are UploadSource and YouTubeSource.
type Source interface {
	Kind() string
	isSource()
}

// UploadSource is a file already saved on local disk.
type UploadSource struct {
	Path string
}

// YouTubeSource is remote media that has to be fetched first.
type YouTubeSource struct {
	URL string
}

func (UploadSource) Kind() string  { return SourceUpload }
func (YouTubeSource) Kind() string { return SourceYouTube }
func (UploadSource) isSource()     {}
func (YouTubeSource) isSource()    {}

// Descriptor is the immutable input handed to the processor.
type Descriptor struct {
	JobID      string
	Source     Source
	Level      SummaryLevel
	OwnerID    string
	OwnerEmail string
}

// NewUploadJob builds a descriptor for an uploaded file.
func NewUploadJob(jobID, path string, level SummaryLevel, ownerID, ownerEmail string) Descriptor {
	return Descriptor{
		JobID:      jobID,
		Source:     UploadSource{Path: path},
		Level:      level,
		OwnerID:    ownerID,
		OwnerEmail: ownerEmail,
	}
}

// NewYouTubeJob builds a descriptor for a remote video.
func NewYouTubeJob(jobID, url string, level SummaryLevel, ownerID, ownerEmail string) Descriptor {
	return Descriptor{
		JobID:      jobID,
		Source:     YouTubeSource{URL: url},
		Level:      level,
		OwnerID:    ownerID,
		OwnerEmail: ownerEmail,
	}
}

// Metrics is the per-job timing and size record, persisted once.
type Metrics struct {
	DownloadMs   int64 `json:"downloadMs,omitempty"`
	TranscodeMs  int64 `json:"transcodeMs,omitempty"`
	TranscribeMs int64 `json:"transcribeMs,omitempty"`
	SummarizeMs  int64 `json:"summarizeMs,omitempty"`
	InputBytes   int64 `json:"inputBytes,omitempty"`
	OutputBytes  int64 `json:"outputBytes,omitempty"`
	TotalMs      int64 `json:"totalMs,omitempty"`
}
