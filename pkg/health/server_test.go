package health

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/speedrun-intents/pkg/chains"
	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/solver"
)

type fakeSolver struct {
	running   bool
	paused    bool
	active    []solver.BidState
	receipt   *models.Receipt
	err       error
	finalized []string
	resets    []int
}

func (f *fakeSolver) IsRunning() bool { return f.running }
func (f *fakeSolver) IsPaused() bool  { return f.paused }
func (f *fakeSolver) Pause()          { f.paused = true }
func (f *fakeSolver) Resume()         { f.paused = false }

func (f *fakeSolver) Status(context.Context) (*solver.Status, error) {
	return &solver.Status{Running: f.running, Paused: f.paused, ActiveIntents: len(f.active)}, f.err
}

func (f *fakeSolver) ActiveIntents(context.Context) ([]solver.BidState, error) {
	return f.active, f.err
}

func (f *fakeSolver) IntentStatus(_ context.Context, chainID int, intentID *big.Int) (*solver.IntentStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &solver.IntentStatus{
		Intent:     &models.Intent{ID: intentID, OriginChainID: chainID},
		HighestBid: big.NewInt(95),
	}, nil
}

func (f *fakeSolver) FinalizeAuction(_ context.Context, chainID int, intentID *big.Int) (*models.Receipt, error) {
	f.finalized = append(f.finalized, intentID.String())
	return f.receipt, f.err
}

func (f *fakeSolver) ResetCircuit(chainID int) error {
	if chainID == 999 {
		return errors.New("no circuit breaker for chain 999")
	}
	f.resets = append(f.resets, chainID)
	return nil
}

func do(t *testing.T, h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestReadiness(t *testing.T) {
	s := &fakeSolver{}
	router := NewServer("0", s, "", 0, &logger.EmptyLogger{}).Router()

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, router, http.MethodGet, "/ready", nil).Code)

	s.running = true
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/ready", nil).Code)
}

func TestPauseResume(t *testing.T) {
	s := &fakeSolver{running: true}
	router := NewServer("0", s, "", 0, &logger.EmptyLogger{}).Router()

	w := do(t, router, http.MethodPost, "/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.paused)

	w = do(t, router, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status solver.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.True(t, status.Paused)

	w = do(t, router, http.MethodPost, "/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, s.paused)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, router, http.MethodGet, "/stop", nil).Code)
}

func TestActiveIntents(t *testing.T) {
	s := &fakeSolver{running: true, active: []solver.BidState{{
		Intent:             &models.Intent{ID: big.NewInt(7), OriginChainID: chains.HorizenTestnet},
		DestinationChainID: chains.BaseSepolia,
		Phase:              solver.PhaseBidding,
		CurrentBid:         big.NewInt(95),
		IsWinning:          true,
	}}}
	router := NewServer("0", s, "", 0, &logger.EmptyLogger{}).Router()

	w := do(t, router, http.MethodGet, "/active-intents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count   int               `json:"count"`
		Intents []solver.BidState `json:"intents"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Intents, 1)
	assert.Equal(t, solver.PhaseBidding, resp.Intents[0].Phase)
	assert.Equal(t, int64(95), resp.Intents[0].CurrentBid.Int64())

	s.err = solver.ErrNotRunning
	assert.Equal(t, http.StatusServiceUnavailable, do(t, router, http.MethodGet, "/active-intents", nil).Code)
}

func TestIntentEndpoints(t *testing.T) {
	s := &fakeSolver{running: true}
	router := NewServer("0", s, "", 0, &logger.EmptyLogger{}).Router()

	w := do(t, router, http.MethodGet, "/intent-status/84532/0x2a", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var status solver.IntentStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, int64(42), status.Intent.ID.Int64())
	assert.Equal(t, chains.BaseSepolia, status.Intent.OriginChainID)

	tests := []struct {
		name string
		path string
	}{
		{"bad chain", "/intent-status/abc/1"},
		{"zero chain", "/intent-status/0/1"},
		{"bad intent", "/intent-status/84532/xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, tt.path, nil).Code)
		})
	}

	// handed off to a running task
	w = do(t, router, http.MethodPost, "/finalize-auction/84532/5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, true, resp["handedOff"])

	s.receipt = &models.Receipt{TxHash: common.HexToHash("0x01"), BlockNumber: 12, Status: 1}
	w = do(t, router, http.MethodPost, "/finalize-auction/84532/6", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, false, resp["handedOff"])
	assert.Equal(t, float64(12), resp["blockNumber"])
	assert.Equal(t, []string{"5", "6"}, s.finalized)

	s.err = ledger.ErrAuctionActive
	w = do(t, router, http.MethodPost, "/finalize-auction/84532/7", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	s.err = errors.New("connection refused")
	w = do(t, router, http.MethodPost, "/finalize-auction/84532/8", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCircuitReset(t *testing.T) {
	s := &fakeSolver{running: true}
	router := NewServer("0", s, "", 0, &logger.EmptyLogger{}).Router()

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/circuit/reset?chain=84532", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/circuit/reset", nil).Code)
	assert.Equal(t, []int{chains.BaseSepolia, 0}, s.resets)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/circuit/reset?chain=x", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/circuit/reset?chain=999", nil).Code)
}

func TestMetricsAuth(t *testing.T) {
	router := NewServer("0", &fakeSolver{}, "secret", 0, &logger.EmptyLogger{}).Router()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic secret", http.StatusUnauthorized},
		{"wrong key", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, do(t, router, http.MethodGet, "/metrics", header).Code)
		})
	}

	open := NewServer("0", &fakeSolver{}, "", 0, &logger.EmptyLogger{}).Router()
	assert.Equal(t, http.StatusOK, do(t, open, http.MethodGet, "/metrics", nil).Code)
}
