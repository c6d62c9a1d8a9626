package notify

import (
	"context"
	"log/slog"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

// LogNotifier writes notices to the structured log instead of sending them.
type LogNotifier struct {
	appURL string
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(appURL string, logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{appURL: appURL, logger: logger.With("component", "notify")}
}

// Notify logs the rendered notice.
func (n *LogNotifier) Notify(ctx context.Context, st types.JobStatus) error {
	msg := Compose(n.appURL, st)
	n.logger.InfoContext(ctx, "job notice",
		"jobId", st.JobID,
		"to", msg.To,
		"subject", msg.Subject,
		"status", st.Status,
	)
	return nil
}
