package relayerclient

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

	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", &logger.EmptyLogger{})
}

func TestVerify(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify", r.URL.Path)
		var req models.VerifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, models.VerifyResponse{Success: true, IsSolved: req.Chain2IntentID == "7", ChainID: req.ChainID})
	})

	solved, err := client.Verify(context.Background(), big.NewInt(7), 84532)
	require.NoError(t, err)
	assert.True(t, solved)

	solved, err = client.Verify(context.Background(), big.NewInt(8), 84532)
	require.NoError(t, err)
	assert.False(t, solved)
}

func TestSettle(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req models.SettleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch r.URL.Path {
		case "/settle":
			writeJSON(w, http.StatusOK, models.SettleResponse{Success: true, TransactionHash: "0xabc", BlockNumber: 12, IntentID: req.IntentID})
		case "/settle-with-proof":
			writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: "intent not solved on destination", Kind: "StateConflict", Code: "NotSolved"})
		}
	})

	req := models.SettleRequest{IntentID: "1", Chain2IntentID: "1", OriginChainID: 845320009, DestinationChainID: 84532}
	resp, err := client.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", resp.TransactionHash)
	assert.Equal(t, uint64(12), resp.BlockNumber)

	_, err = client.SettleWithProof(context.Background(), req)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "StateConflict", apiErr.Kind)
	assert.Equal(t, "NotSolved", apiErr.Code)
	assert.Contains(t, err.Error(), "intent not solved on destination")
}

func TestRecipients(t *testing.T) {
	stored := map[string]models.StoreRecipientsRequest{}
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/store-recipients":
			var req models.StoreRecipientsRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			stored[req.IntentID] = req
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		case r.Method == http.MethodGet && r.URL.Path == "/get-recipients/5":
			req, ok := stored["5"]
			if !ok {
				writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "not found"})
				return
			}
			writeJSON(w, http.StatusOK, models.RecipientsResponse{
				Success: true, IntentID: req.IntentID, Recipients: req.Recipients, Amounts: req.Amounts,
				ChainID: req.ChainID, TotalAmount: "95", Timestamp: 1_700_000_000_000,
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/delete-recipients/5":
			delete(stored, "5")
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		case r.URL.Path == "/list-stored-intents":
			ids := []string{}
			for id := range stored {
				ids = append(ids, id)
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "intentIds": ids})
		default:
			writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "not found"})
		}
	})
	ctx := context.Background()

	_, err := client.GetRecipients(ctx, "5")
	assert.ErrorIs(t, err, recipients.ErrNotFound)

	m := &models.RecipientManifest{
		IntentID:   "5",
		ChainID:    84532,
		Recipients: []common.Address{common.HexToAddress("0x1111111111111111111111111111111111111111"), common.HexToAddress("0x2222222222222222222222222222222222222222")},
		Amounts:    []*big.Int{big.NewInt(60), big.NewInt(35)},
	}
	require.NoError(t, client.StoreRecipients(ctx, m))

	got, err := client.GetRecipients(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, m.Recipients, got.Recipients)
	assert.Equal(t, int64(95), got.TotalAmount.Int64())
	assert.Equal(t, int64(1_700_000_000), got.CreatedAt.Unix())

	ids, err := client.ListStoredIntents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, ids)

	require.NoError(t, client.DeleteRecipients(ctx, "5"))
	assert.ErrorIs(t, client.DeleteRecipients(ctx, "6"), recipients.ErrNotFound)
}

func TestUnreachable(t *testing.T) {
	client := New("http://127.0.0.1:1", &logger.EmptyLogger{})
	err := client.Health(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.ErrorContains(t, err, "relayer request GET /health failed")
}
