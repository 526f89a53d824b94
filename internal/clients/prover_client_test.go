package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestProver(t *testing.T, handler http.HandlerFunc) *ProverClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewProverClient(srv.URL, 5*time.Second, logger)
}

func TestProverWithdrawHandsParamsToSubmit(t *testing.T) {
	client := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/proof/withdraw", r.URL.Path)
		var req WithdrawProofRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "SOL", req.TokenType)
		require.Equal(t, uint64(1500), req.Amount)
		_, _ = w.Write([]byte(`{"success":true,"relay_path":"/withdraw","params":{"recipient":"Recip111"}}`))
	})

	var gotPath string
	var gotBody json.RawMessage
	sig, err := client.Withdraw(context.Background(), &WithdrawProofRequest{
		TokenType: "SOL",
		Amount:    1500,
		Recipient: "Recip111",
	}, func(ctx context.Context, path string, body json.RawMessage) (string, error) {
		gotPath = path
		gotBody = body
		return "captured", nil
	})
	require.NoError(t, err)
	require.Equal(t, "captured", sig)
	require.Equal(t, "/withdraw", gotPath)
	require.JSONEq(t, `{"recipient":"Recip111"}`, string(gotBody))
}

func TestProverWithdrawRejectedSkipsSubmit(t *testing.T) {
	client := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error_message":"insufficient shielded balance"}`))
	})

	called := false
	_, err := client.Withdraw(context.Background(), &WithdrawProofRequest{}, func(ctx context.Context, path string, body json.RawMessage) (string, error) {
		called = true
		return "", nil
	})
	require.ErrorContains(t, err, "insufficient shielded balance")
	require.False(t, called)
}

func TestProverHTTPError(t *testing.T) {
	client := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})

	_, err := client.Withdraw(context.Background(), &WithdrawProofRequest{}, func(ctx context.Context, path string, body json.RawMessage) (string, error) {
		return "", nil
	})
	require.ErrorContains(t, err, "status 500")
}

func TestProverDepositSignsTransaction(t *testing.T) {
	client := newTestProver(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/proof/deposit", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"transaction":"dW5zaWduZWQ="}`))
	})

	signed, err := client.Deposit(context.Background(), &DepositProofRequest{TokenType: "SOL", Amount: 10}, func(ctx context.Context, unsigned string) (string, error) {
		require.Equal(t, "dW5zaWduZWQ=", unsigned)
		return "c2lnbmVk", nil
	})
	require.NoError(t, err)
	require.Equal(t, "c2lnbmVk", signed)
}

func TestProverRequiresCallbacks(t *testing.T) {
	client := NewProverClient("http://127.0.0.1:1", time.Second, nil)

	_, err := client.Withdraw(context.Background(), &WithdrawProofRequest{}, nil)
	require.Error(t, err)
	_, err = client.Deposit(context.Background(), &DepositProofRequest{}, nil)
	require.Error(t, err)
}
