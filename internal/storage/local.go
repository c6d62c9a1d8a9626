package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

// Artifact is a finished summary plus the facts recorded next to it.
type Artifact struct {
	JobID     string             `json:"job_id"`
	OwnerID   string             `json:"owner_id,omitempty"`
	Source    string             `json:"source"`
	Level     types.SummaryLevel `json:"level"`
	Summary   string             `json:"-"`
	Metrics   types.Metrics      `json:"metrics"`
	CreatedAt time.Time          `json:"created_at"`
}

// LocalStorage handles saving summaries to the local filesystem
type LocalStorage struct {
	outputDir string
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
	}
}

// SaveSummary writes the markdown and a metadata sidecar, returning the
// markdown path.
func (ls *LocalStorage) SaveSummary(a Artifact) (string, error) {
	// outputs/2025/01/23/
	now := a.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	dateDir := filepath.Join(append([]string{ls.outputDir}, datePath(now)...)...)

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	// 20250123_143022_<jobId>
	baseFilename := artifactBaseName(now, a.JobID)
	mdPath := filepath.Join(dateDir, baseFilename+".md")
	metaPath := filepath.Join(dateDir, baseFilename+"_meta.json")

	if err := os.WriteFile(mdPath, []byte(a.Summary), 0644); err != nil {
		return "", fmt.Errorf("failed to save summary: %w", err)
	}

	metaJSON, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}

	return mdPath, nil
}

func datePath(t time.Time) []string {
	return []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	}
}

func artifactBaseName(t time.Time, jobID string) string {
	return fmt.Sprintf("%s_%s", t.Format("20060102_150405"), sanitizeFilename(jobID))
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_",
)

// sanitizeFilename replaces characters that are invalid in file names
func sanitizeFilename(name string) string {
	result := filenameReplacer.Replace(name)
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
