package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultPushoverURL is the Pushover message API endpoint
	DefaultPushoverURL = "https://api.pushover.net/1/messages.json"
	defaultTimeout     = 30 * time.Second
)

var (
	// ErrSendFailed is returned if Pushover responds with a non 2xx status
	ErrSendFailed = errors.New("pushover notification failed")
)

// Pushover sends messages through the Pushover API
type Pushover struct {
	token      string
	userKey    string
	url        string
	httpClient *http.Client
}

// NewPushover returns a Pushover client. With an empty token or user key Send does nothing.
func NewPushover(token, userKey string) *Pushover {
	return &Pushover{
		token:      token,
		userKey:    userKey,
		url:        DefaultPushoverURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// WithURL returns a copy of p that posts to endpoint
func (p *Pushover) WithURL(endpoint string) *Pushover {
	c := *p
	c.url = endpoint
	return &c
}

// Enabled returns whether both credentials are set
func (p *Pushover) Enabled() bool {
	return p.token != "" && p.userKey != ""
}

// Send posts message to Pushover
func (p *Pushover) Send(ctx context.Context, message string) error {
	if !p.Enabled() {
		log.Debug("pushover is not configured, skipping notification")
		return nil
	}

	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.userKey)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send pushover notification: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %v: %v: %w", resp.StatusCode, strings.TrimSpace(string(body)), ErrSendFailed)
	}
	log.Infof("sent pushover notification: %v", message)
	return nil
}
