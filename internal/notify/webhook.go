package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alanyoungcy/propertyx/internal/crypto"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// WebhookSender posts the full event JSON to an HTTP endpoint, signed with
// crypto.WebhookSigner so the receiver can authenticate it.
type WebhookSender struct {
	url    string
	signer *crypto.WebhookSigner
	client *http.Client
}

// NewWebhookSender creates a WebhookSender. An empty secret sends unsigned.
func NewWebhookSender(url, secret string) *WebhookSender {
	w := &WebhookSender{url: url, client: &http.Client{Timeout: 10 * time.Second}}
	if secret != "" {
		w.signer = &crypto.WebhookSigner{Secret: secret}
	}
	return w
}

func (w *WebhookSender) Send(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	var headers map[string]string
	if w.signer != nil {
		headers = w.signer.Headers(body)
	}
	return postJSON(ctx, w.client, w.url, body, headers, "webhook")
}

func (w *WebhookSender) Name() string { return "webhook" }
