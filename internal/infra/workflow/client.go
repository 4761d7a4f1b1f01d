// Package workflow is the HTTP client for the external workflow engine's
// trigger webhooks.
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/research-market/internal/domain/workflow"
)

// Client posts trigger payloads. A call returns once the request has been
// written; the engine's own response is only checked if it arrives within
// IssueTimeout.
type Client struct {
	StartURL     string
	ResumeURL    string
	IssueTimeout time.Duration
	HTTP         *http.Client
	Log          *zap.Logger
}

func NewClient(startURL, resumeURL string, issueTimeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		StartURL:     startURL,
		ResumeURL:    resumeURL,
		IssueTimeout: issueTimeout,
		HTTP:         &http.Client{},
		Log:          log,
	}
}

// Start implementasi workflow.Engine
func (c *Client) Start(ctx context.Context, body []byte) error {
	return c.post(ctx, c.StartURL, body)
}

// Resume implementasi workflow.Engine
func (c *Client) Resume(ctx context.Context, body []byte) error {
	return c.post(ctx, c.ResumeURL, body)
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	timeout := c.IssueTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var written atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				written.Store(true)
			}
		},
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTriggerFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if written.Load() && isTimeout(err) {
			// request sudah terkirim, engine cuma lambat balas
			c.Log.Debug("trigger issued, response not awaited", zap.String("url", url))
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrTriggerFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: engine responded %s", domain.ErrTriggerFailed, resp.Status)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
