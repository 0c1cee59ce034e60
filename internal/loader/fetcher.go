package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/roach88/provgraph/internal/ingest"
	"github.com/roach88/provgraph/internal/ir"
)

// Fetcher retrieves the step records of a subject at the requested
// granularity. An empty result is a valid answer, not an error.
type Fetcher interface {
	FetchSteps(ctx context.Context, subjectID string, collapse bool) ([]ir.StepRecord, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, subjectID string, collapse bool) ([]ir.StepRecord, error)

// FetchSteps calls f.
func (f FetcherFunc) FetchSteps(ctx context.Context, subjectID string, collapse bool) ([]ir.StepRecord, error) {
	return f(ctx, subjectID, collapse)
}

// DefaultHTTPTimeout bounds one step-retrieval request.
const DefaultHTTPTimeout = 60 * time.Second

// maxResponseBytes caps the body read from the endpoint.
const maxResponseBytes = 64 << 20

// HTTPFetcher queries a step-retrieval endpoint:
//
//	GET <endpoint>?subject=<id>&collapse_similar_runs=<bool>
//
// The endpoint answers with a JSON list of step records or with an error
// payload {"message": "..."}.
type HTTPFetcher struct {
	endpoint string
	client   *http.Client
}

// HTTPFetcherOption configures an HTTPFetcher.
type HTTPFetcherOption func(*HTTPFetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPFetcherOption {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// NewHTTPFetcher creates a fetcher for endpoint.
func NewHTTPFetcher(endpoint string, opts ...HTTPFetcherOption) (*HTTPFetcher, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}

	f := &HTTPFetcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// FetchSteps implements Fetcher.
//
// Request failures, non-2xx statuses and error payloads return
// *TransportError. Bodies that are not valid step records return the
// ingest error unchanged (*ingest.SchemaError or
// *ir.MalformedStepGraphError).
func (f *HTTPFetcher) FetchSteps(ctx context.Context, subjectID string, collapse bool) ([]ir.StepRecord, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("subject", subjectID)
	q.Set("collapse_similar_runs", strconv.FormatBool(collapse))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{
			Code:      ErrCodeRequestFailed,
			SubjectID: subjectID,
			Message:   "step retrieval failed",
			Err:       err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{
			Code:      ErrCodeRequestFailed,
			SubjectID: subjectID,
			Status:    resp.StatusCode,
			Message:   "reading response body failed",
			Err:       err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, ok := ingest.ParseErrorPayload(body)
		if !ok {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &TransportError{
			Code:      ErrCodeBadStatus,
			SubjectID: subjectID,
			Status:    resp.StatusCode,
			Message:   msg,
		}
	}

	return decodeBody(subjectID, body)
}

// decodeBody turns a successful response body into step records.
func decodeBody(subjectID string, body []byte) ([]ir.StepRecord, error) {
	if msg, ok := ingest.ParseErrorPayload(body); ok {
		return nil, &TransportError{
			Code:      ErrCodeErrorPayload,
			SubjectID: subjectID,
			Message:   msg,
		}
	}
	return ingest.Decode(body)
}
