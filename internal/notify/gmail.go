package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

// GmailScope is the OAuth scope needed to send mail.
const GmailScope = gmail.GmailSendScope

// GmailNotifier sends notices through the Gmail API as the token owner.
type GmailNotifier struct {
	service *gmail.Service
	from    string
	appURL  string
}

// NewGmailNotifier creates a notifier over an authorized HTTP client.
func NewGmailNotifier(ctx context.Context, httpClient *http.Client, from, appURL string, opts ...option.ClientOption) (*GmailNotifier, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return &GmailNotifier{service: srv, from: from, appURL: appURL}, nil
}

// Notify sends the rendered notice to the job owner.
func (n *GmailNotifier) Notify(ctx context.Context, st types.JobStatus) error {
	if st.OwnerEmail == "" {
		return nil
	}
	msg := Compose(n.appURL, st)

	raw := base64.URLEncoding.EncodeToString(rfc822(n.from, msg))
	if _, err := n.service.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send for job %s: %w", st.JobID, err)
	}
	return nil
}

func rfc822(from string, msg Message) []byte {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}
