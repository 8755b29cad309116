// Package relayerclient provides a client for the relayer HTTP API.
package relayerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
)

const (
	requestTimeout = 10 * time.Second
	settleTimeout  = 30 * time.Second
)

// APIError is a non-2xx reply of the relayer
type APIError struct {
	StatusCode int
	Kind       string
	Code       string
	Message    string
	Details    string
	AttemptID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("relayer returned %d", e.StatusCode)
	if e.Kind != "" {
		msg += " " + e.Kind
	}
	if e.Code != "" {
		msg += "/" + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Client represents a relayer API client
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// New creates a new relayer API client
func New(endpoint string, logger logger.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: createHTTPClient(),
		logger:     logger,
	}
}

// Endpoint returns the base URL of the relayer
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Health checks that the relayer answers
func (c *Client) Health(ctx context.Context) error {
	var out map[string]interface{}
	return c.do(ctx, requestTimeout, http.MethodGet, "/health", nil, &out)
}

// Verify asks whether an intent was solved on the destination chain
func (c *Client) Verify(ctx context.Context, chain2IntentID *big.Int, chainID int) (bool, error) {
	var resp models.VerifyResponse
	req := models.VerifyRequest{Chain2IntentID: chain2IntentID.String(), ChainID: chainID}
	if err := c.do(ctx, requestTimeout, http.MethodPost, "/verify", req, &resp); err != nil {
		return false, err
	}
	return resp.IsSolved, nil
}

// Settle requests origin settlement without a proof gate
func (c *Client) Settle(ctx context.Context, req models.SettleRequest) (*models.SettleResponse, error) {
	var resp models.SettleResponse
	if err := c.do(ctx, settleTimeout, http.MethodPost, "/settle", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettleWithProof requests settlement gated by the destination chain's proof policy
func (c *Client) SettleWithProof(ctx context.Context, req models.SettleRequest) (*models.SettleResponse, error) {
	var resp models.SettleResponse
	if err := c.do(ctx, settleTimeout, http.MethodPost, "/settle-with-proof", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StoreRecipients uploads the private payout manifest of an intent
func (c *Client) StoreRecipients(ctx context.Context, m *models.RecipientManifest) error {
	req := models.StoreRecipientsRequest{
		IntentID:   m.IntentID,
		Recipients: make([]string, len(m.Recipients)),
		Amounts:    make([]string, len(m.Amounts)),
		ChainID:    m.ChainID,
	}
	for i, r := range m.Recipients {
		req.Recipients[i] = r.Hex()
	}
	for i, a := range m.Amounts {
		req.Amounts[i] = a.String()
	}
	var resp map[string]interface{}
	return c.do(ctx, requestTimeout, http.MethodPost, "/store-recipients", req, &resp)
}

// GetRecipients fetches the manifest of an intent; recipients.ErrNotFound when none is stored
func (c *Client) GetRecipients(ctx context.Context, intentID string) (*models.RecipientManifest, error) {
	var resp models.RecipientsResponse
	err := c.do(ctx, requestTimeout, http.MethodGet, "/get-recipients/"+url.PathEscape(intentID), nil, &resp)
	if isNotFound(err) {
		return nil, recipients.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromResponse(&resp)
}

// DeleteRecipients removes the manifest of an intent
func (c *Client) DeleteRecipients(ctx context.Context, intentID string) error {
	var resp map[string]interface{}
	err := c.do(ctx, requestTimeout, http.MethodDelete, "/delete-recipients/"+url.PathEscape(intentID), nil, &resp)
	if isNotFound(err) {
		return recipients.ErrNotFound
	}
	return err
}

// ListStoredIntents returns the ids of every stored manifest
func (c *Client) ListStoredIntents(ctx context.Context) ([]string, error) {
	var resp struct {
		IntentIDs []string `json:"intentIds"`
	}
	if err := c.do(ctx, requestTimeout, http.MethodGet, "/list-stored-intents", nil, &resp); err != nil {
		return nil, err
	}
	return resp.IntentIDs, nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func fromResponse(resp *models.RecipientsResponse) (*models.RecipientManifest, error) {
	m, err := recipients.FromRequest(&models.StoreRecipientsRequest{
		IntentID:   resp.IntentID,
		Recipients: resp.Recipients,
		Amounts:    resp.Amounts,
		ChainID:    resp.ChainID,
	})
	if err != nil {
		return nil, fmt.Errorf("relayer returned a malformed manifest: %w", err)
	}
	if resp.Timestamp > 0 {
		m.CreatedAt = time.UnixMilli(resp.Timestamp).UTC()
	}
	return m, nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relayer request %s %s failed: %w", method, path, err)
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
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp models.ErrorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil {
			apiErr.Kind, apiErr.Code, apiErr.Message = errResp.Kind, errResp.Code, errResp.Error
			apiErr.Details, apiErr.AttemptID = errResp.Details, errResp.AttemptID
		} else {
			apiErr.Message = string(bodyBytes)
		}
		return apiErr
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %v, body: %s", err, string(bodyBytes))
	}
	return nil
}

// Helper function to create an HTTP client; deadlines come from the request context
func createHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
