package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"foodshare-backend/config"
	"foodshare-backend/pkg/apperr"

	"go.uber.org/zap"
)

// Kind identifies one push-notification template on the downstream push
// service. The API only forwards; rendering and delivery happen downstream.
type Kind string

const (
	KindNewApplication          Kind = "new-application"
	KindDateProposal            Kind = "date-proposal"
	KindBeneficiaryDateProposal Kind = "beneficiary-date-proposal"
	KindNewRequest              Kind = "new-request"
	KindPickupReminder          Kind = "pickup-reminder"
	KindRequestAccepted         Kind = "request-accepted"
	KindApplicationAccepted     Kind = "application-accepted"
	KindApplicationRejected     Kind = "application-rejected"
	KindRequestRejected         Kind = "request-rejected"
)

var validKinds = map[Kind]bool{
	KindNewApplication:          true,
	KindDateProposal:            true,
	KindBeneficiaryDateProposal: true,
	KindNewRequest:              true,
	KindPickupReminder:          true,
	KindRequestAccepted:         true,
	KindApplicationAccepted:     true,
	KindApplicationRejected:     true,
	KindRequestRejected:         true,
}

// ValidKind reports whether k names a known notification template
func ValidKind(k string) bool {
	return validKinds[Kind(k)]
}

// Notification is the forwarded payload. Token targets a single device;
// when empty the push service fans out to the staff topic.
type Notification struct {
	Kind  Kind              `json:"kind"`
	Token string            `json:"token,omitempty"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Client forwards notifications to the push service
type Client interface {
	Send(ctx context.Context, n Notification) error
}

type httpClient struct {
	url    string
	apiKey string
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg config.PushConfig, logger *zap.Logger) Client {
	return &httpClient{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (c *httpClient) Send(ctx context.Context, n Notification) error {
	if c.url == "" {
		c.logger.Debug("push service not configured, dropping notification", zap.String("kind", string(n.Kind)))
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return apperr.Upstream("notifier.Send", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return apperr.Upstream("notifier.Send", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Upstream("notifier.Send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.Upstream("notifier.Send", fmt.Errorf("push service returned %d", resp.StatusCode))
	}
	return nil
}
