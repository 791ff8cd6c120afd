// Package engine provides acoustic model backends: an HTTP client for a
// standalone Kokoro inference service and a local subprocess runner. Both
// satisfy core.AcousticModel and are constructed once per process.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kokoro-voice/kokoro-service/internal/core"
)

// API endpoints and paths.
const (
	apiSynthesize = "/v1/synthesize"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errReceivedEmptyAudio      = "received empty audio buffer"
	errFmtUnexpectedType       = "unexpected content type: expected application/json, got %s"
	errFmtServiceErrorWithCode = "inference service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "inference service returned non-OK status: %s, body: %s"
)

// HTTPModel is a core.AcousticModel backed by the standalone inference
// HTTP service. The handle is immutable after construction; the underlying
// service performs its own request serialization, so concurrent Synthesize
// calls are safe.
type HTTPModel struct {
	httpClient *http.Client
	baseURL    string
}

// synthesizeRequest is the JSON payload of a synthesis request. The voice
// field carries the raw style embedding; lang is the one-letter accent code.
type synthesizeRequest struct {
	Text  string    `json:"text"`
	Voice []float32 `json:"voice"`
	Lang  string    `json:"lang"`
}

// synthesizeResponse is the JSON body of a successful synthesis.
type synthesizeResponse struct {
	Audio      []float32 `json:"audio"`
	Phonemes   []string  `json:"phonemes"`
	SampleRate int       `json:"sample_rate"`
}

// errorResponse is a structured error payload from the inference service.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPModel creates and configures a client for the inference service.
// The baseURL should include the protocol and port (e.g.
// "http://localhost:8000"). The timeout applies to all requests.
func NewHTTPModel(baseURL string, timeout time.Duration) *HTTPModel {
	return &HTTPModel{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize sends a generation request and returns the sample buffer and
// phoneme trace produced by the service.
func (m *HTTPModel) Synthesize(
	ctx context.Context,
	text string,
	style []float32,
	lang core.Language,
) (*core.GenerationResult, error) {
	requestBody, err := json.Marshal(synthesizeRequest{
		Text:  text,
		Voice: style,
		Lang:  lang.Code(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := m.baseURL + apiSynthesize

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to send request to inference service at %s: %w",
			m.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, m.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeJSON {
		return nil, fmt.Errorf(errFmtUnexpectedType, contentType)
	}

	var body synthesizeResponse

	err = json.NewDecoder(resp.Body).Decode(&body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode synthesis response: %w", err)
	}

	if len(body.Audio) == 0 {
		return nil, errors.New(errReceivedEmptyAudio)
	}

	if body.SampleRate == 0 {
		body.SampleRate = core.SampleRate
	}

	return &core.GenerationResult{
		Samples:    body.Audio,
		Phonemes:   body.Phonemes,
		SampleRate: body.SampleRate,
	}, nil
}

// HealthCheck verifies that the inference service is running and its model
// checkpoint is loaded. Callers should probe before large workloads to fail
// fast with a clear diagnostic.
func (m *HTTPModel) HealthCheck(ctx context.Context) error {
	url := m.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(
			"health check failed for service at %s: %w",
			m.baseURL,
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse attempts to decode a structured JSON error from the
// service, falling back to the raw response body so diagnostics are never
// lost.
func (m *HTTPModel) parseErrorResponse(resp *http.Response) error {
	var errorResp errorResponse

	err := json.NewDecoder(resp.Body).Decode(&errorResp)
	if err == nil {
		return fmt.Errorf(errFmtServiceErrorWithCode,
			resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		errFmtServiceNonOKStatus,
		resp.Status,
		string(body),
	)
}
