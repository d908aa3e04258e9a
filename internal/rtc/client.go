package rtc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/featherlive/backend/domain"
	"github.com/featherlive/backend/internal/config"
)

// Credential is a channel credential issued by the external RTC provider.
// A stream may not go live without one.
type Credential struct {
	Channel    string    `json:"channel"`
	Token      string    `json:"token"`
	UID        string    `json:"uid"`
	ResourceID string    `json:"resource_id"`
	SessionID  string    `json:"session_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Provider issues channel credentials. Implemented by the HTTP client below
// and by fakes in tests.
type Provider interface {
	IssueCredential(ctx context.Context, channel, uid string) (*Credential, error)
}

// Client talks to the RTC provider's REST API.
type Client struct {
	cfg    config.RTCConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds an RTC client with a bounded request timeout.
func NewClient(cfg config.RTCConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type issueRequest struct {
	AppID   string `json:"app_id"`
	Channel string `json:"channel"`
	UID     string `json:"uid"`
	TTL     int    `json:"ttl_seconds"`
}

type issueResponse struct {
	Token      string `json:"token"`
	ResourceID string `json:"resource_id"`
	SessionID  string `json:"session_id"`
	ExpiresAt  int64  `json:"expires_at"`
}

// IssueCredential requests a channel token. Any failure here must abort the
// stream start as a whole: no session record may persist without a credential.
func (c *Client) IssueCredential(ctx context.Context, channel, uid string) (*Credential, error) {
	body, err := json.Marshal(issueRequest{
		AppID:   c.cfg.AppID,
		Channel: channel,
		UID:     uid,
		TTL:     int(c.cfg.TokenTTL.Seconds()),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.cfg.AppCertificate)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeDependency, "rtc credential issuance failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("rtc provider rejected token request",
			zap.Int("status", resp.StatusCode), zap.String("channel", channel))
		return nil, domain.NewError(domain.ErrCodeDependency,
			fmt.Sprintf("rtc provider returned status %d", resp.StatusCode))
	}

	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.WrapError(domain.ErrCodeDependency, "rtc provider returned malformed response", err)
	}
	if out.Token == "" {
		return nil, domain.NewError(domain.ErrCodeDependency, "rtc provider returned empty token")
	}

	return &Credential{
		Channel:    channel,
		Token:      out.Token,
		UID:        uid,
		ResourceID: out.ResourceID,
		SessionID:  out.SessionID,
		ExpiresAt:  time.Unix(out.ExpiresAt, 0),
	}, nil
}
