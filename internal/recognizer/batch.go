package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/audiorelay/speech-gateway/internal/codec"
)

// DefaultBatchTimeout bounds a single one-shot recognition call
const DefaultBatchTimeout = 10 * time.Second

// BatchClient performs one-shot recognition over HTTP multipart uploads
type BatchClient struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client
	semaphore  chan struct{}

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	timeoutRequests uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// batchResponse mirrors the backend recognition response: an ordered list
// of results, each holding alternatives ranked best first.
type batchResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float32 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// BatchStats represents batch client statistics for monitoring
type BatchStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	TimeoutRequests uint64        `json:"timeout_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewBatchClient creates the batch recognition variant
func NewBatchClient(cfg Config, logger *slog.Logger) *BatchClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBatchTimeout
	}

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}

	return &BatchClient{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		semaphore: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Name identifies the batch variant
func (c *BatchClient) Name() string {
	return "batch"
}

// Probe checks that the recognition endpoint answers HTTP requests
func (c *BatchClient) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.Endpoint, nil)
	if err != nil {
		return NewErrorWithCause(StatusBackendUnavailable, "invalid endpoint", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewErrorWithCause(StatusBackendUnavailable, "endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return NewError(StatusBackendUnavailable, fmt.Sprintf("endpoint returned HTTP %d", resp.StatusCode))
	}

	return nil
}

// RecognizeBatch submits a complete utterance and blocks until a transcript
// or the configured timeout. On timeout it fails with StatusTimeout, which
// callers must treat as "no speech detected".
func (c *BatchClient) RecognizeBatch(ctx context.Context, audio []byte, format codec.Format) (string, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", c.classifyContextError(ctx.Err())
	}

	startTime := time.Now()
	c.incrementTotal()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	text, err := c.doRequest(ctx, audio, format)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || IsTimeout(err) {
			c.incrementTimeout()
			return "", NewErrorWithCause(StatusTimeout, "recognition did not complete in time", err)
		}
		c.incrementFailed()
		return "", err
	}

	c.incrementSuccess(time.Since(startTime))
	return text, nil
}

// OpenStream is not supported by the batch variant
func (c *BatchClient) OpenStream(ctx context.Context, sessionID string, format codec.Format, onResult ResultFunc, onError ErrorFunc) (StreamHandle, error) {
	return nil, NewError(StatusUnsupported, "batch backend does not support streaming recognition")
}

// doRequest performs a single HTTP request to the recognition API
func (c *BatchClient) doRequest(ctx context.Context, audio []byte, format codec.Format) (string, error) {
	body, contentType, err := c.createMultipartRequest(audio, format)
	if err != nil {
		return "", NewErrorWithCause(StatusRecognitionError, "failed to create request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, body)
	if err != nil {
		return "", NewErrorWithCause(StatusRecognitionError, "failed to create HTTP request", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", NewErrorWithCause(StatusRecognitionError, "HTTP request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewErrorWithCause(StatusRecognitionError, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", NewError(StatusRecognitionError, fmt.Sprintf("HTTP error %d: %s", resp.StatusCode, string(respBody)))
	}

	var parsed batchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", NewErrorWithCause(StatusRecognitionError, "failed to parse response JSON", err)
	}

	return joinBestAlternatives(&parsed), nil
}

// joinBestAlternatives takes the best alternative of each result and
// concatenates them in order with a single separating space
func joinBestAlternatives(resp *batchResponse) string {
	parts := make([]string, 0, len(resp.Results))
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		transcript := strings.TrimSpace(result.Alternatives[0].Transcript)
		if transcript != "" {
			parts = append(parts, transcript)
		}
	}

	return strings.Join(parts, " ")
}

// createMultipartRequest builds a multipart/form-data upload carrying the
// utterance as a WAV file plus the declared format fields
func (c *BatchClient) createMultipartRequest(audio []byte, format codec.Format) (io.Reader, string, error) {
	wav, err := codec.EncodeWAV(audio, format)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode utterance: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"sample_rate":     fmt.Sprintf("%d", format.SampleRate),
		"channels":        fmt.Sprintf("%d", format.Channels),
		"bits_per_sample": fmt.Sprintf("%d", format.BitsPerSample),
		"response_format": "json",
	}

	if c.cfg.Language != "" {
		fields["language"] = c.cfg.Language
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// classifyContextError maps a context error to the recognition taxonomy
func (c *BatchClient) classifyContextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		c.incrementTimeout()
		return NewErrorWithCause(StatusTimeout, "recognition did not complete in time", err)
	}
	return NewErrorWithCause(StatusRecognitionError, "recognition canceled", err)
}

// Statistics methods
func (c *BatchClient) incrementTotal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *BatchClient) incrementSuccess(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

func (c *BatchClient) incrementFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *BatchClient) incrementTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeoutRequests++
}

// GetStats returns current batch client statistics
func (c *BatchClient) GetStats() BatchStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return BatchStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		TimeoutRequests: c.timeoutRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}
