// Package sender pushes snapshots to a remote collector as gzip-compressed
// JSON batches of envelopes.
package sender

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nhdewitt/threadmon/internal/protocol"
)

const (
	DefaultBatchSize = 100
	DefaultInterval  = 5 * time.Second
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

func (rc RetryConfig) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}

	delay := float64(rc.InitialDelay)
	for range attempt {
		delay *= rc.Multiplier
	}

	if time.Duration(delay) > rc.MaxDelay {
		return rc.MaxDelay
	}
	return time.Duration(delay)
}

type Config struct {
	URL      string
	Hostname string

	// Interval forces a flush even when the batch is not full.
	Interval  time.Duration
	BatchSize int
	Retry     RetryConfig
}

// statusError is a non-2xx reply. 4xx replies are not retried.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

type Sender struct {
	cfg    Config
	client *http.Client
	logger hclog.Logger

	gzipMu  sync.Mutex
	gzipBuf bytes.Buffer
	gzipW   *gzip.Writer

	commonHeaders map[string]string
}

func New(cfg Config, logger hclog.Logger) (*Sender, error) {
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid push url: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Sender{
		cfg:    cfg,
		client: &http.Client{Timeout: 45 * time.Second},
		logger: logger.Named("sender"),
		gzipW:  gzip.NewWriter(io.Discard),
		commonHeaders: map[string]string{
			"Content-Type":     "application/json",
			"Content-Encoding": "gzip",
			"User-Agent":       "threadmon/1.0",
		},
	}, nil
}

// Run batches every snapshot read from in until ctx is cancelled or in is
// closed. The pending batch is flushed on the way out.
func (s *Sender) Run(ctx context.Context, in <-chan protocol.Snapshot) {
	batch := make([]protocol.Envelope, 0, s.cfg.BatchSize)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	flush := func(ctx context.Context) {
		if len(batch) > 0 {
			s.uploadBatch(ctx, batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case snap, ok := <-in:
			if !ok {
				flush(ctx)
				return
			}
			batch = append(batch, snap.Envelopes(s.cfg.Hostname)...)
			if len(batch) >= s.cfg.BatchSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)

		case <-ctx.Done():
			// best effort with a fresh deadline, the parent is gone
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(final)
			cancel()
			return
		}
	}
}

func (s *Sender) uploadBatch(ctx context.Context, batch []protocol.Envelope) {
	if err := s.upload(ctx, batch); err != nil {
		s.logger.Warn("dropping batch", "envelopes", len(batch), "error", err)
		return
	}
	s.logger.Trace("sent batch", "envelopes", len(batch))
}

// upload posts batch, retrying transport errors and 5xx replies.
func (s *Sender) upload(ctx context.Context, batch []protocol.Envelope) error {
	var err error
	for attempt := 0; attempt < s.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.cfg.Retry.Delay(attempt - 1)
			s.logger.Debug("retrying upload", "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = s.postCompressed(ctx, batch)
		if err == nil {
			return nil
		}

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", s.cfg.Retry.MaxAttempts, err)
}

func (s *Sender) compress(batch []protocol.Envelope) ([]byte, error) {
	s.gzipMu.Lock()
	defer s.gzipMu.Unlock()

	s.gzipBuf.Reset()
	s.gzipW.Reset(&s.gzipBuf)

	if err := json.NewEncoder(s.gzipW).Encode(batch); err != nil {
		return nil, fmt.Errorf("json encode error: %w", err)
	}
	if err := s.gzipW.Close(); err != nil {
		return nil, fmt.Errorf("gzip close error: %w", err)
	}

	return append([]byte(nil), s.gzipBuf.Bytes()...), nil
}

// postCompressed marshals batch to JSON, compresses it, and sends it.
func (s *Sender) postCompressed(ctx context.Context, batch []protocol.Envelope) error {
	payload, err := s.compress(batch)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request error: %w", err)
	}
	for k, v := range s.commonHeaders {
		req.Header.Set(k, v)
	}
	if s.cfg.Hostname != "" {
		q := req.URL.Query()
		q.Set("hostname", s.cfg.Hostname)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}
