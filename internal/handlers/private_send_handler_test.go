package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"privatesend-backend/internal/clients"
	"privatesend-backend/internal/config"
	"privatesend-backend/internal/models"
	"privatesend-backend/internal/repository"
	"privatesend-backend/internal/services"
	"privatesend-backend/internal/utils"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func signedDeposit(t *testing.T, key solana.PrivateKey, lamports uint64) string {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, key.PublicKey(), solana.SystemProgramID).Build(),
		},
		solana.Hash{},
		solana.TransactionPayer(key.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(key.PublicKey()) {
			return &key
		}
		return nil
	})
	require.NoError(t, err)

	encoded, err := utils.EncodeTransaction(tx)
	require.NoError(t, err)
	return encoded
}

// proverStub answers withdraw proofs with a relayer body addressed to the requested recipient
func proverStub(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req clients.WithdrawProofRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		relayPath := clients.RelayPathWithdraw
		if req.TokenType == string(models.TokenUSDC) {
			relayPath = clients.RelayPathWithdrawSPL
		}
		params, _ := json.Marshal(map[string]interface{}{
			"recipient":   req.Recipient,
			"amount":      req.Amount,
			"mintAddress": req.MintAddress,
			"proof":       "00",
		})
		json.NewEncoder(w).Encode(clients.WithdrawProofResponse{
			RequestID: "p1",
			Success:   true,
			RelayPath: relayPath,
			Params:    params,
		})
	}))
}

type harness struct {
	engine   *gin.Engine
	repo     repository.PrivateSendRepository
	deposits int32

	mu    sync.Mutex
	paths []string
}

func newHarness(t *testing.T, relayer func(h *harness, w http.ResponseWriter, r *http.Request), rateLimit int) *harness {
	return newHarnessWithRepo(t, repository.NewMemoryPrivateSendRepository(), relayer, rateLimit)
}

func newHarnessWithRepo(t *testing.T, repo repository.PrivateSendRepository, relayer func(h *harness, w http.ResponseWriter, r *http.Request), rateLimit int) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := testLogger()

	h := &harness{repo: repo}

	relayerServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.paths = append(h.paths, r.URL.Path)
		h.mu.Unlock()
		if r.URL.Path == clients.RelayPathDeposit || r.URL.Path == clients.RelayPathDepositSPL {
			atomic.AddInt32(&h.deposits, 1)
		}
		relayer(h, w, r)
	}))
	t.Cleanup(relayerServer.Close)

	prover := proverStub(t)
	t.Cleanup(prover.Close)

	service := services.NewPrivateSendService(
		clients.NewRelayerClient(relayerServer.URL, 5*time.Second, logger),
		&services.FixedDelayWaiter{},
		services.NewWithdrawPreparer(clients.NewProverClient(prover.URL, 5*time.Second, logger), config.USDCMintAddress, logger),
		nil,
		services.NewLedgerObserver(h.repo, logger),
		config.USDCMintAddress,
		logger,
	)

	guard := services.NewDuplicateGuard(time.Minute)
	limiter := services.NewSenderRateLimiter(rateLimit, time.Minute)
	t.Cleanup(guard.Close)
	t.Cleanup(limiter.Close)

	handler := NewPrivateSendHandler(service, h.repo, guard, limiter, nil, 10*time.Second, logger)

	r := gin.New()
	r.POST("/api/private-send", handler.SubmitDepositAndWithdraw)
	r.GET("/api/private-send/:id", handler.GetPrivateSend)
	r.GET("/ws/private-send/:id", handler.WatchPrivateSend)
	r.GET("/api/admin/private-sends", handler.ListPrivateSends)
	h.engine = r
	return h
}

func relayOK(_ *harness, w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case clients.RelayPathDeposit, clients.RelayPathDepositSPL:
		w.Write([]byte(`{"signature":"D1","success":true}`))
	default:
		w.Write([]byte(`{"signature":"W1","success":true}`))
	}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func validBody(t *testing.T) (map[string]interface{}, solana.PrivateKey) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	recipient, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return map[string]interface{}{
		"action":                   "submit-deposit-and-withdraw",
		"tokenType":                "SOL",
		"amount":                   1000000,
		"recipientAddress":         recipient.PublicKey().String(),
		"publicKey":                key.PublicKey().String(),
		"signedDepositTransaction": signedDeposit(t, key, 1000000),
	}, key
}

func TestSubmitMissingRecipient(t *testing.T) {
	h := newHarness(t, relayOK, 5)
	body, _ := validBody(t)
	delete(body, "recipientAddress")

	status, out := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, false, out["success"])
	require.Equal(t, "Missing required fields", out["error"])
	require.Zero(t, atomic.LoadInt32(&h.deposits))
}

func TestSubmitSOLSuccess(t *testing.T) {
	h := newHarness(t, relayOK, 5)
	body, _ := validBody(t)

	status, out := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusOK, status, out)
	require.Equal(t, true, out["success"])
	require.Equal(t, "D1", out["depositSignature"])
	require.Equal(t, "W1", out["withdrawSignature"])
	require.Equal(t, []string{clients.RelayPathDeposit, clients.RelayPathWithdraw}, h.paths)

	requestID, _ := out["requestId"].(string)
	_, err := uuid.Parse(requestID)
	require.NoError(t, err)

	status, out = h.do(t, http.MethodGet, "/api/private-send/"+requestID, nil)
	require.Equal(t, http.StatusOK, status)
	record := out["data"].(map[string]interface{})
	require.Equal(t, string(models.OutcomeCompleted), record["outcome"])
	require.Equal(t, "D1", record["deposit_signature"])
	require.Equal(t, "W1", record["withdraw_signature"])
}

func TestSubmitUSDCUsesSPLPaths(t *testing.T) {
	h := newHarness(t, relayOK, 5)
	body, _ := validBody(t)
	body["tokenType"] = "USDC"
	body["amount"] = "2500000"

	status, out := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusOK, status, out)
	require.Equal(t, []string{clients.RelayPathDepositSPL, clients.RelayPathWithdrawSPL}, h.paths)
}

func TestSubmitWithdrawFailureKeepsDepositSignature(t *testing.T) {
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == clients.RelayPathWithdraw {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"Insufficient relayer balance"}`))
			return
		}
		relayOK(h, w, r)
	}, 5)
	body, _ := validBody(t)

	status, out := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, false, out["success"])
	require.Equal(t, "Insufficient relayer balance", out["error"])
	require.Equal(t, "D1", out["depositSignature"])
	require.Equal(t, string(models.StageWithdrawSubmitting), out["stage"])

	record, err := h.repo.GetByID(context.Background(), out["requestId"].(string))
	require.NoError(t, err)
	require.Equal(t, models.OutcomeDepositOnly, record.Outcome)
	require.Equal(t, models.StageWithdrawSubmitting, record.FailedStage)
}

func TestSubmitDepositFailure(t *testing.T) {
	h := newHarness(t, func(_ *harness, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("blockhash not found"))
	}, 5)
	body, _ := validBody(t)

	status, out := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "Deposit relay failed: blockhash not found", out["error"])
	require.NotContains(t, out, "depositSignature")
	require.Equal(t, []string{clients.RelayPathDeposit}, h.paths)
}

func TestSubmitDuplicateDeposit(t *testing.T) {
	h := newHarness(t, relayOK, 5)
	body, _ := validBody(t)

	status, first := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusOK, status)

	status, out := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "Duplicate deposit submission", out["error"])
	require.Equal(t, first["requestId"], out["requestId"])
	require.EqualValues(t, 1, atomic.LoadInt32(&h.deposits))
}

func TestSubmitRateLimited(t *testing.T) {
	h := newHarness(t, relayOK, 1)
	body, key := validBody(t)

	status, _ := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusOK, status)

	body["signedDepositTransaction"] = signedDeposit(t, key, 2000000)
	status, out := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "Too many requests", out["error"])
}

func TestSubmitClientRequestID(t *testing.T) {
	h := newHarness(t, relayOK, 5)
	body, key := validBody(t)
	requestID := uuid.NewString()
	body["requestId"] = requestID

	status, out := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, requestID, out["requestId"])

	body["signedDepositTransaction"] = signedDeposit(t, key, 3000000)
	status, out = h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "Request id already used", out["error"])
}

// slowCreateRepo gives Create the latency of a database round trip
type slowCreateRepo struct {
	repository.PrivateSendRepository
	delay time.Duration
}

func (r *slowCreateRepo) Create(ctx context.Context, record *models.PrivateSendRecord) error {
	time.Sleep(r.delay)
	return r.PrivateSendRepository.Create(ctx, record)
}

func TestSubmitConcurrentSameRequestID(t *testing.T) {
	repo := &slowCreateRepo{PrivateSendRepository: repository.NewMemoryPrivateSendRepository(), delay: 20 * time.Millisecond}
	h := newHarnessWithRepo(t, repo, relayOK, 10)
	requestID := uuid.NewString()

	bodies := make([]map[string]interface{}, 2)
	for i := range bodies {
		body, _ := validBody(t)
		body["requestId"] = requestID
		bodies[i] = body
	}

	codes := make([]int, len(bodies))
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, _ := json.Marshal(bodies[i])
			req := httptest.NewRequest(http.MethodPost, "/api/private-send", bytes.NewReader(raw))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			h.engine.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	require.ElementsMatch(t, []int{http.StatusOK, http.StatusConflict}, codes)
	require.EqualValues(t, 1, atomic.LoadInt32(&h.deposits))
}

func TestSubmitRequestIDConflictReleasesDeposit(t *testing.T) {
	h := newHarness(t, relayOK, 10)
	requestID := uuid.NewString()

	first, _ := validBody(t)
	first["requestId"] = requestID
	status, _ := h.do(t, http.MethodPost, "/api/private-send", first)
	require.Equal(t, http.StatusOK, status)

	// The rejected deposit is not held by the guard and can go through under a fresh id
	second, _ := validBody(t)
	second["requestId"] = requestID
	status, out := h.do(t, http.MethodPost, "/api/private-send", second)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "Request id already used", out["error"])

	delete(second, "requestId")
	status, out = h.do(t, http.MethodPost, "/api/private-send", second)
	require.Equal(t, http.StatusOK, status, out)
	require.EqualValues(t, 2, atomic.LoadInt32(&h.deposits))
}

func TestSubmitValidation(t *testing.T) {
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(body map[string]interface{})
		want   string
	}{
		{"invalid action", func(b map[string]interface{}) { b["action"] = "deposit" }, "Invalid action. Must be: submit-deposit-and-withdraw"},
		{"action checked before fields", func(b map[string]interface{}) { b["action"] = ""; delete(b, "publicKey") }, "Invalid action. Must be: submit-deposit-and-withdraw"},
		{"zero amount", func(b map[string]interface{}) { b["amount"] = 0 }, "Missing required fields"},
		{"missing signed deposit", func(b map[string]interface{}) { b["signedDepositTransaction"] = "" }, "Missing required fields"},
		{"invalid public key", func(b map[string]interface{}) { b["publicKey"] = "not-a-key" }, "Invalid public key"},
		{"invalid recipient", func(b map[string]interface{}) { b["recipientAddress"] = "0OIl" }, "Invalid recipient address"},
		{"public key checked before recipient", func(b map[string]interface{}) {
			b["publicKey"] = "short"
			b["recipientAddress"] = "short"
		}, "Invalid public key"},
		{"invalid token", func(b map[string]interface{}) { b["tokenType"] = "BONK" }, "Invalid token type"},
		{"fractional amount", func(b map[string]interface{}) { b["amount"] = 1.5 }, "Invalid amount"},
		{"negative amount", func(b map[string]interface{}) { b["amount"] = -5 }, "Invalid amount"},
		{"invalid request id", func(b map[string]interface{}) { b["requestId"] = "abc" }, "Invalid request id"},
		{"garbage transaction", func(b map[string]interface{}) { b["signedDepositTransaction"] = "!!!" }, "Invalid signed deposit transaction"},
		{"sender did not sign", func(b map[string]interface{}) { b["signedDepositTransaction"] = signedDeposit(t, other, 1) }, "Invalid signed deposit transaction"},
	}

	h := newHarness(t, relayOK, 100)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := validBody(t)
			tt.mutate(body)

			status, out := h.do(t, http.MethodPost, "/api/private-send", body)
			require.Equal(t, http.StatusBadRequest, status)
			require.Equal(t, tt.want, out["error"])
		})
	}
	require.Zero(t, atomic.LoadInt32(&h.deposits))
}

func TestSubmitMalformedBody(t *testing.T) {
	h := newHarness(t, relayOK, 5)
	status, out := h.do(t, http.MethodPost, "/api/private-send", `{"action":`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Invalid request body", out["error"])
}

func TestGetUnknownPrivateSend(t *testing.T) {
	h := newHarness(t, relayOK, 5)
	status, out := h.do(t, http.MethodGet, "/api/private-send/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "Private send not found", out["error"])
}

func TestWatchWithoutPushService(t *testing.T) {
	h := newHarness(t, relayOK, 5)
	status, _ := h.do(t, http.MethodGet, "/ws/private-send/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
}

func TestListPrivateSendsFiltersOutcome(t *testing.T) {
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == clients.RelayPathWithdraw {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{}`))
			return
		}
		relayOK(h, w, r)
	}, 5)

	body, _ := validBody(t)
	status, _ := h.do(t, http.MethodPost, "/api/private-send", body)
	require.Equal(t, http.StatusInternalServerError, status)

	status, out := h.do(t, http.MethodGet, "/api/admin/private-sends?outcome=deposit_only", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out["data"], 1)
	require.EqualValues(t, 1, out["pagination"].(map[string]interface{})["total"])

	status, out = h.do(t, http.MethodGet, "/api/admin/private-sends?outcome=completed", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out["data"], 0)

	status, _ = h.do(t, http.MethodGet, "/api/admin/private-sends?outcome=bogus", nil)
	require.Equal(t, http.StatusBadRequest, status)
}
