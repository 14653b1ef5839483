// Package sink ships batches of form-encoded records to an HTTP collection
// endpoint, one record per line.
package sink

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/chainline/chainline/internal/pipeline"
)

const defaultUserAgent = "chainline (gzip)"

// BatchSink posts record batches to a fixed endpoint. The wire format is one
// URL-encoded record per line; keys sort lexicographically within a record.
type BatchSink struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

type Option func(*BatchSink)

func WithHTTPClient(client *http.Client) Option {
	return func(s *BatchSink) {
		s.client = client
	}
}

func WithUserAgent(ua string) Option {
	return func(s *BatchSink) {
		s.userAgent = ua
	}
}

func New(endpoint string, opts ...Option) *BatchSink {
	s := &BatchSink{
		endpoint:  endpoint,
		userAgent: defaultUserAgent,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts one batch. Failures are transient: the endpoint accepts
// duplicate records, so retrying a whole batch is safe.
func (s *BatchSink) Send(ctx context.Context, records []url.Values) error {
	if len(records) == 0 {
		return nil
	}
	lines := make([]string, 0, len(records))
	for _, record := range records {
		lines = append(lines, record.Encode())
	}
	body := strings.Join(lines, "\n")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build sink request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return pipeline.Transient(errors.Wrap(err, "post batch"))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pipeline.Transient(errors.Errorf("sink returned status %d", resp.StatusCode))
	}
	return nil
}
