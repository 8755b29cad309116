// Package proofclient talks to the external proof verification provider.
package proofclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// DefaultProofType is submitted when the proof data does not name one
const DefaultProofType = "groth16"

var (
	// ErrNotConfigured is returned when no provider URL is set
	ErrNotConfigured = errors.New("proof verification provider not configured")

	// ErrProofFailed is returned when the provider rejects the proof
	ErrProofFailed = errors.New("proof verification failed")

	// ErrPollingExhausted is returned when the job did not finalize within the allowed attempts
	ErrPollingExhausted = errors.New("proof verification polling exhausted")
)

type submitRequest struct {
	ProofType    string           `json:"proofType"`
	VkRegistered bool             `json:"vkRegistered"`
	ProofData    models.ProofData `json:"proofData"`
}

type submitResponse struct {
	JobID            string `json:"jobId"`
	OptimisticVerify string `json:"optimisticVerify"`
}

// Client represents a proof verification provider client
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a new provider client; an empty endpoint yields a disabled client
func New(endpoint, apiKey string, logger logger.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: createHTTPClient(),
		logger:     logger,
	}
}

// Enabled reports whether a provider endpoint is configured
func (c *Client) Enabled() bool {
	return c.endpoint != ""
}

// SubmitProof hands a proof to the provider. It returns the job id and the
// provider's optimistic verification verdict.
func (c *Client) SubmitProof(ctx context.Context, proofType string, proof models.ProofData) (string, bool, error) {
	if !c.Enabled() {
		return "", false, ErrNotConfigured
	}
	if proofType == "" {
		proofType = DefaultProofType
	}

	body, err := json.Marshal(submitRequest{ProofType: proofType, ProofData: proof})
	if err != nil {
		return "", false, fmt.Errorf("failed to encode proof: %v", err)
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, c.path("submit-proof"), body, &resp); err != nil {
		return "", false, err
	}
	if resp.JobID == "" {
		return "", false, fmt.Errorf("provider returned no job id")
	}

	optimistic := resp.OptimisticVerify == "success"
	c.logger.Info("Proof submitted: job=%s optimisticVerify=%s", resp.JobID, resp.OptimisticVerify)
	return resp.JobID, optimistic, nil
}

// JobStatus fetches the current status of a submitted proof
func (c *Client) JobStatus(ctx context.Context, jobID string) (*models.ProofJob, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	var job models.ProofJob
	if err := c.do(ctx, http.MethodGet, c.path("job-status", jobID), nil, &job); err != nil {
		return nil, err
	}
	if job.JobID == "" {
		job.JobID = jobID
	}
	return &job, nil
}

// WaitForFinalization polls the job status every interval until it is terminal or
// maxAttempts polls were made. It returns the last seen job and the number of polls.
func (c *Client) WaitForFinalization(ctx context.Context, jobID string, interval time.Duration, maxAttempts int) (*models.ProofJob, int, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *models.ProofJob
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		job, err := c.JobStatus(ctx, jobID)
		if err != nil {
			return last, attempt, err
		}
		last = job
		c.logger.Debug("Proof job %s status %s (attempt %d/%d)", jobID, job.Status, attempt, maxAttempts)

		switch job.Status {
		case models.ProofFinalized:
			return job, attempt, nil
		case models.ProofFailed:
			return job, attempt, fmt.Errorf("%w: job %s", ErrProofFailed, jobID)
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return last, attempt, ctx.Err()
		case <-ticker.C:
		}
	}
	return last, maxAttempts, fmt.Errorf("%w: job %s not finalized after %d attempts", ErrPollingExhausted, jobID, maxAttempts)
}

// path builds <endpoint>/<action>/<apiKey>[/<arg>...]
func (c *Client) path(action string, args ...string) string {
	segments := []string{c.endpoint, action, url.PathEscape(c.apiKey)}
	for _, a := range args {
		segments = append(segments, url.PathEscape(a))
	}
	return strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("proof provider unreachable: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %v, body: %s", err, string(bodyBytes))
	}
	return nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
