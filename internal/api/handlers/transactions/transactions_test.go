package transactions_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/test"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

const hash = "0xAbC0000000000000000000000000000000000000000000000000000000000001"

func TestGetTransaction(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/api/v1/transactions/"+hash, nil, test.ApproverHeaders())
		assert.Equal(t, http.StatusNotFound, res.Result().StatusCode)

		// no tracker exists for this family, so the record stays in broadcast
		err := s.Watcher.Watch(context.Background(), &watcher.Record{
			Hash:      hash,
			Family:    provider.Family("unknown"),
			NetworkID: test.SimulatedNetworkID,
			From:      test.DevAccount0.Hex(),
			Nonce:     7,
		}, watcher.ModePoll)
		require.NoError(t, err)

		res = test.PerformRequest(t, s, "GET", "/api/v1/transactions/"+hash, nil, test.ApproverHeaders())
		require.Equal(t, http.StatusOK, res.Result().StatusCode)

		var rec watcher.Record
		require.NoError(t, json.Unmarshal(res.Body.Bytes(), &rec))
		assert.Equal(t, hash, rec.Hash)
		assert.Equal(t, watcher.StatusBroadcast, rec.Status)
		assert.Equal(t, uint64(7), rec.Nonce)

		res = test.PerformRequest(t, s, "POST", "/api/v1/transactions/"+hash+"/recheck", nil, test.ApproverHeaders())
		assert.Equal(t, http.StatusAccepted, res.Result().StatusCode)
	})
}

func TestTransactionsRequireApproverToken(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server) {
		res := test.PerformRequest(t, s, "GET", "/api/v1/transactions/"+hash, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, res.Result().StatusCode)

		res = test.PerformRequest(t, s, "POST", "/api/v1/transactions/unknown/recheck", nil, test.ApproverHeaders())
		assert.Equal(t, http.StatusNotFound, res.Result().StatusCode)
	})
}
