package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

func TestCompose(t *testing.T) {
	msg := Compose("https://briefly.example.com/", types.JobStatus{
		JobID:      "j1",
		Status:     types.StateFailed,
		Message:    "Video too long",
		OwnerEmail: "a@example.com",
	})

	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, "Job failed", msg.Subject)
	assert.Contains(t, msg.Body, "Status for your job j1: FAILED.")
	assert.Contains(t, msg.Body, "Details: Video too long")
	assert.Contains(t, msg.Body, "View job: https://briefly.example.com/jobs/j1")
}

func TestCompose_NoMessageNoDetails(t *testing.T) {
	msg := Compose("", types.JobStatus{JobID: "j2", Status: types.StateReady})
	assert.Equal(t, "Summary ready", msg.Subject)
	assert.NotContains(t, msg.Body, "Details:")
	assert.Contains(t, msg.Body, "http://localhost:3000/jobs/j2")
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier("", nil)
	assert.NoError(t, n.Notify(context.Background(), types.JobStatus{JobID: "j", Status: types.StateReady}))
}

func TestGmailNotifier_Send(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/send"))
		var body struct {
			Raw string `json:"raw"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw = body.Raw
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1"}`))
	}))
	defer srv.Close()

	n, err := NewGmailNotifier(context.Background(), srv.Client(), "bot@example.com", "", option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	err = n.Notify(context.Background(), types.JobStatus{JobID: "j1", Status: types.StateReady, OwnerEmail: "a@example.com"})
	require.NoError(t, err)

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "To: a@example.com\r\n")
	assert.Contains(t, string(decoded), "Subject: Summary ready\r\n")
}

func TestGmailNotifier_SkipsWithoutRecipient(t *testing.T) {
	n, err := NewGmailNotifier(context.Background(), http.DefaultClient, "", "", option.WithEndpoint("http://127.0.0.1:1/"))
	require.NoError(t, err)
	assert.NoError(t, n.Notify(context.Background(), types.JobStatus{JobID: "j1", Status: types.StateReady}))
}
