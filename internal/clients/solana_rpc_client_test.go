package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

// newRPCStub answers getSignatureStatuses with value (raw JSON of the first entry)
func newRPCStub(t *testing.T, value string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "getSignatureStatuses", req.Method)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":{"context":{"slot":100},"value":[%s]}}`, req.ID, value)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSignature() string {
	var sig solana.Signature
	for i := range sig {
		sig[i] = byte(i + 1)
	}
	return sig.String()
}

func TestSignatureStatusConfirmed(t *testing.T) {
	srv := newRPCStub(t, `{"slot":99,"confirmations":3,"err":null,"confirmationStatus":"confirmed"}`)
	client := NewSolanaRPCClient(srv.URL, nil)

	state, err := client.SignatureStatus(context.Background(), testSignature())
	require.NoError(t, err)
	require.True(t, state.Found)
	require.Equal(t, uint64(99), state.Slot)
	require.True(t, state.Reached(rpc.ConfirmationStatusConfirmed))
	require.False(t, state.Reached(rpc.ConfirmationStatusFinalized))
	require.Nil(t, state.Err)
}

func TestSignatureStatusUnknown(t *testing.T) {
	srv := newRPCStub(t, `null`)
	client := NewSolanaRPCClient(srv.URL, nil)

	state, err := client.SignatureStatus(context.Background(), testSignature())
	require.NoError(t, err)
	require.False(t, state.Found)
	require.False(t, state.Reached(rpc.ConfirmationStatusConfirmed))
}

func TestSignatureStatusRejectsBadSignature(t *testing.T) {
	client := NewSolanaRPCClient("http://127.0.0.1:1", nil)

	_, err := client.SignatureStatus(context.Background(), "not-a-signature")
	require.ErrorIs(t, err, ErrInvalidSignature)
}
