// Package notify delivers job status notices to job owners.
package notify

import (
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

// Message is a rendered plain-text notice.
type Message struct {
	To      string
	Subject string
	Body    string
}

var subjects = map[types.State]string{
	types.StatePending:      "Your job has been queued",
	types.StateDownloading:  "Downloading source",
	types.StateTranscribing: "Transcribing audio",
	types.StateSummarizing:  "Generating summary",
	types.StateReady:        "Summary ready",
	types.StateFailed:       "Job failed",
}

// Compose renders the notice for st. appURL is the public base URL used
// for the job link.
func Compose(appURL string, st types.JobStatus) Message {
	subject, ok := subjects[st.Status]
	if !ok {
		subject = fmt.Sprintf("Job status: %s", st.Status)
	}

	base := strings.TrimRight(appURL, "/")
	if base == "" {
		base = "http://localhost:3000"
	}

	lines := []string{
		"Hi,",
		"",
		fmt.Sprintf("Status for your job %s: %s.", st.JobID, st.Status),
	}
	if st.Message != "" {
		lines = append(lines, "Details: "+st.Message)
	}
	lines = append(lines,
		"",
		fmt.Sprintf("View job: %s/jobs/%s", base, st.JobID),
		"",
		"Best,",
		"Briefly",
	)

	return Message{
		To:      st.OwnerEmail,
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
	}
}
