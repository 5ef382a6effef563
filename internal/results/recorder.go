// Package results is the boundary to the persistence collaborator that keeps
// completed match outcomes. The engine calls it exactly once per finished
// match and never lets a persistence failure interfere with match cleanup.
package results

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"pongarena/engine/internal/logging"
)

// Result captures the terminal outcome of a single match.
type Result struct {
	MatchID        string    `json:"match_id"`
	PlayerOneID    string    `json:"player_1_id"`
	PlayerTwoID    string    `json:"player_2_id"`
	PlayerOneScore int       `json:"player_1_score"`
	PlayerTwoScore int       `json:"player_2_score"`
	WinnerID       string    `json:"winner_id"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Recorder durably records a terminal match outcome.
type Recorder interface {
	Record(ctx context.Context, result Result) error
}

// NopRecorder drops results, for deployments without a persistence collaborator.
type NopRecorder struct{}

// Record discards the result.
func (NopRecorder) Record(context.Context, Result) error { return nil }

const (
	defaultRecordTimeout = 5 * time.Second
	defaultRecordRetries = 2
)

// HTTPRecorder posts results to the persistence collaborator with bounded retries.
type HTTPRecorder struct {
	rest    *resty.Client
	url     string
	retries int
	log     *logging.Logger
}

// HTTPRecorderOption configures optional recorder behaviour.
type HTTPRecorderOption func(*HTTPRecorder)

// WithRetries overrides the retry budget for failed record attempts.
func WithRetries(retries int) HTTPRecorderOption {
	return func(r *HTTPRecorder) {
		if retries >= 0 {
			r.retries = retries
		}
	}
}

// WithRecorderLogger attaches a logger for failure reporting.
func WithRecorderLogger(logger *logging.Logger) HTTPRecorderOption {
	return func(r *HTTPRecorder) {
		if logger != nil {
			r.log = logger
		}
	}
}

// NewHTTPRecorder constructs a recorder posting to the provided endpoint.
func NewHTTPRecorder(url string, opts ...HTTPRecorderOption) (*HTTPRecorder, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("results url must not be empty")
	}
	recorder := &HTTPRecorder{
		rest:    resty.New().SetTimeout(defaultRecordTimeout),
		url:     url,
		retries: defaultRecordRetries,
		log:     logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	//1.- Lean on resty's retry machinery for transient persistence failures.
	recorder.rest.
		SetRetryCount(recorder.retries).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
		})
	return recorder, nil
}

// Record posts the result, returning an error only after the retry budget is spent.
func (r *HTTPRecorder) Record(ctx context.Context, result Result) error {
	if r == nil || r.rest == nil {
		return errors.New("recorder not initialised")
	}
	request := r.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(result)
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		request.SetHeader("X-Trace-ID", traceID)
	}
	resp, err := request.Post(r.url)
	if err != nil {
		return fmt.Errorf("record result %s: %w", result.MatchID, err)
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("record result %s: unexpected status %d", result.MatchID, resp.StatusCode())
	}
	r.log.Debug("match result recorded",
		logging.String("match_id", result.MatchID),
		logging.String("winner_id", result.WinnerID))
	return nil
}
