package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/internal/domain"
	"github.com/totegamma/passkey-wallet/internal/usecase"
)

// --- mocks ---

type mockTransport struct {
	existing map[domain.IdentityKey]bool
}

func (m *mockTransport) Register(ctx context.Context, username domain.IdentityKey) (domain.PasskeyCredential, error) {
	if m.existing[username] {
		return domain.PasskeyCredential{}, domain.E(domain.KindCredentialExists, "mock.Register", nil)
	}
	return domain.PasskeyCredential{ID: "new-" + string(username), RPID: "wallet.example"}, nil
}

func (m *mockTransport) Login(ctx context.Context, req usecase.LoginRequest) (domain.PasskeyCredential, error) {
	if req.CredentialID != "" {
		return domain.PasskeyCredential{ID: req.CredentialID, RPID: "wallet.example"}, nil
	}
	return domain.PasskeyCredential{ID: "old-" + string(req.Username), RPID: "wallet.example"}, nil
}

type mockFactory struct{}

func (m *mockFactory) ChainID() *big.Int { return big.NewInt(421614) }

func (m *mockFactory) Derive(ctx context.Context, credential domain.PasskeyCredential) (usecase.AccountClient, error) {
	return &mockAccountClient{address: common.BytesToAddress(crypto.Keccak256([]byte(credential.ID))[12:])}, nil
}

type mockAccountClient struct {
	address common.Address
	block   bool
}

func (m *mockAccountClient) Address() common.Address { return m.address }

func (m *mockAccountClient) SendUserOperation(ctx context.Context, calls []passkeywallet.Call, opts usecase.SendOptions) (common.Hash, error) {
	return crypto.Keccak256Hash(m.address.Bytes(), calls[0].Data), nil
}

func (m *mockAccountClient) WaitForReceipt(ctx context.Context, userOpHash common.Hash) (*passkeywallet.UserOperationReceipt, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &passkeywallet.UserOperationReceipt{UserOpHash: userOpHash, Success: true}, nil
}

type blockingFactory struct{ mockFactory }

func (m *blockingFactory) Derive(ctx context.Context, credential domain.PasskeyCredential) (usecase.AccountClient, error) {
	return &mockAccountClient{address: common.HexToAddress("0x3333333333333333333333333333333333333333"), block: true}, nil
}

type mockJournal struct {
	records map[string]domain.OperationRecord
}

func (m *mockJournal) Submitted(ctx context.Context, record domain.OperationRecord) error {
	m.records[record.UserOpHash] = record
	return nil
}

func (m *mockJournal) Resolve(ctx context.Context, hash string, status domain.OperationStatus, txHash, reason string) error {
	rec := m.records[hash]
	rec.Status = status
	m.records[hash] = rec
	return nil
}

func (m *mockJournal) Get(ctx context.Context, hash string) (domain.OperationRecord, error) {
	rec, ok := m.records[hash]
	if !ok {
		return domain.OperationRecord{}, domain.NotFoundError{Resource: "operation"}
	}
	return rec, nil
}

type mockWallets struct {
	saved map[domain.IdentityKey]domain.Wallet
}

func (m *mockWallets) Save(ctx context.Context, wallet domain.Wallet) error {
	m.saved[wallet.IdentityKey] = wallet
	return nil
}

func (m *mockWallets) Get(ctx context.Context, key domain.IdentityKey) (domain.Wallet, error) {
	w, ok := m.saved[key]
	if !ok {
		return domain.Wallet{}, domain.NotFoundError{Resource: "wallet"}
	}
	return w, nil
}

type mockPortfolio struct {
	err error
}

func (m *mockPortfolio) CurrentValue(ctx context.Context, address, chainID string, useCache bool) (json.RawMessage, error) {
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(`{"result":[{"value_usd":12.5}]}`), nil
}

type mockEvents struct{}

func (m *mockEvents) Subscribe(ctx context.Context, sender string) (<-chan domain.OperationRecord, error) {
	ch := make(chan domain.OperationRecord, 1)
	ch <- domain.OperationRecord{UserOpHash: "0x01", Sender: sender, Status: domain.OperationConfirmed}
	close(ch)
	return ch, nil
}

type testEnv struct {
	e       *echo.Echo
	srv     *httptest.Server
	journal *mockJournal
	wallets *mockWallets
}

func newTestEnv(t *testing.T, factory usecase.AccountFactory, portfolio PortfolioSource) *testEnv {
	t.Helper()
	registry, err := domain.NewCurrencyRegistry(
		domain.Currency{Code: "USDC", Contract: common.HexToAddress("0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d"), Decimals: 6},
		domain.Currency{Code: "ETH", Decimals: 18, Native: true},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	journal := &mockJournal{records: map[string]domain.OperationRecord{}}
	wallets := &mockWallets{saved: map[domain.IdentityKey]domain.Wallet{}}
	transport := &mockTransport{existing: map[domain.IdentityKey]bool{"alice-hash": true}}

	h := NewHandler(
		usecase.NewPasskeyUsecase(transport),
		usecase.NewAccountUsecase(factory),
		usecase.NewTransferUsecase(registry, nil, journal, nil, usecase.TransferConfig{Sponsored: true, ConfirmationTimeout: 20 * time.Millisecond}),
		wallets,
		portfolio,
		&mockEvents{},
		nil,
	)
	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return &testEnv{e: e, srv: srv, journal: journal, wallets: wallets}
}

func (env *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res := httptest.NewRecorder()
	env.e.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", res.Body.String(), err)
	}
	return body
}

// --- tests ---

func TestHandleRegisterFallsBackToLogin(t *testing.T) {
	env := newTestEnv(t, &mockFactory{}, nil)

	res := env.do(http.MethodPost, "/api/v1/credentials", echo.Map{"identityKey": "alice-hash"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if id := decodeBody(t, res)["id"]; id != "old-alice-hash" {
		t.Fatalf("expected existing credential got %v", id)
	}

	res = env.do(http.MethodPost, "/api/v1/credentials", echo.Map{"identityKey": "bob-hash"})
	if id := decodeBody(t, res)["id"]; id != "new-bob-hash" {
		t.Fatalf("expected new credential got %v", id)
	}
}

func TestHandleRegisterBlankKey(t *testing.T) {
	env := newTestEnv(t, &mockFactory{}, nil)

	res := env.do(http.MethodPost, "/api/v1/credentials", echo.Map{"identityKey": "  "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", res.Code)
	}
	if kind := decodeBody(t, res)["error"]; kind != string(domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument got %v", kind)
	}
}

func TestHandleBindAccountSavesWallet(t *testing.T) {
	env := newTestEnv(t, &mockFactory{}, nil)

	credential := domain.PasskeyCredential{ID: "cred-1", RPID: "wallet.example"}
	res := env.do(http.MethodPost, "/api/v1/accounts", echo.Map{"identityKey": "alice-hash", "credential": credential})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	body := decodeBody(t, res)
	if body["chainId"] != "421614" || !passkeywallet.IsAddress(body["address"].(string)) {
		t.Fatalf("unexpected account %v", body)
	}

	res = env.do(http.MethodGet, "/api/v1/wallets/alice-hash", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if decodeBody(t, res)["address"] != body["address"] {
		t.Fatalf("expected saved wallet to carry the bound address")
	}
}

func TestHandleTransferAndOperation(t *testing.T) {
	env := newTestEnv(t, &mockFactory{}, nil)

	res := env.do(http.MethodPost, "/api/v1/transfers", echo.Map{
		"credential": domain.PasskeyCredential{ID: "cred-1"},
		"recipient":  "0x2222222222222222222222222222222222222222",
		"amount":     "1.5",
		"currency":   "USDC",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", res.Code, res.Body.String())
	}
	hash := decodeBody(t, res)["userOpHash"].(string)

	res = env.do(http.MethodGet, "/api/v1/operations/"+hash, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	body := decodeBody(t, res)
	if body["status"] != string(domain.OperationConfirmed) || body["minorUnits"] != "1500000" {
		t.Fatalf("unexpected record %v", body)
	}
}

func TestHandleTransferErrors(t *testing.T) {
	env := newTestEnv(t, &mockFactory{}, nil)

	cases := []struct {
		currency string
		amount   string
		status   int
		kind     domain.Kind
	}{
		{"DOGE", "1", http.StatusBadRequest, domain.KindUnsupportedCurrency},
		{"USDC", "abc", http.StatusBadRequest, domain.KindInvalidArgument},
	}
	for _, tc := range cases {
		res := env.do(http.MethodPost, "/api/v1/transfers", echo.Map{
			"credential": domain.PasskeyCredential{ID: "cred-1"},
			"recipient":  "0x2222222222222222222222222222222222222222",
			"amount":     tc.amount,
			"currency":   tc.currency,
		})
		if res.Code != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.currency, tc.status, res.Code)
		}
		if kind := decodeBody(t, res)["error"]; kind != string(tc.kind) {
			t.Fatalf("%s: expected %s got %v", tc.currency, tc.kind, kind)
		}
	}
}

func TestHandleTransferTimeoutCarriesHash(t *testing.T) {
	env := newTestEnv(t, &blockingFactory{}, nil)

	res := env.do(http.MethodPost, "/api/v1/transfers", echo.Map{
		"credential": domain.PasskeyCredential{ID: "cred-1"},
		"recipient":  "0x2222222222222222222222222222222222222222",
		"amount":     "1",
		"currency":   "ETH",
	})
	if res.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 got %d", res.Code)
	}
	body := decodeBody(t, res)
	if body["error"] != string(domain.KindTimeout) {
		t.Fatalf("expected timeout got %v", body["error"])
	}
	hash, _ := body["userOpHash"].(string)
	if len(hash) != 66 {
		t.Fatalf("expected user operation hash got %v", body["userOpHash"])
	}
	if env.journal.records[hash].Status != domain.OperationSubmitted {
		t.Fatalf("expected journal to stay submitted")
	}
}

func TestHandleOperationNotFound(t *testing.T) {
	env := newTestEnv(t, &mockFactory{}, nil)

	res := env.do(http.MethodGet, "/api/v1/operations/"+common.HexToHash("0x01").Hex(), nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", res.Code)
	}
	res = env.do(http.MethodGet, "/api/v1/operations/nope", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", res.Code)
	}
}

func TestHandlePortfolio(t *testing.T) {
	env := newTestEnv(t, &mockFactory{}, &mockPortfolio{})

	res := env.do(http.MethodGet, "/api/1inch/portfolio/erc20/current-value?chainId=1", nil)
	if res.Code != http.StatusBadRequest || decodeBody(t, res)["error"] != "Wallet address is required" {
		t.Fatalf("expected missing address error got %d", res.Code)
	}
	res = env.do(http.MethodGet, "/api/1inch/portfolio/erc20/current-value?address=0x2222222222222222222222222222222222222222", nil)
	if res.Code != http.StatusBadRequest || decodeBody(t, res)["error"] != "Chain ID is required" {
		t.Fatalf("expected missing chain error got %d", res.Code)
	}
	res = env.do(http.MethodGet, "/api/1inch/portfolio/erc20/current-value?address=0x2222222222222222222222222222222222222222&chainId=1&useCache=true", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.Code)
	}
	if _, ok := decodeBody(t, res)["result"]; !ok {
		t.Fatalf("expected upstream body to be forwarded")
	}
}

func TestHandlePortfolioUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, &mockFactory{}, &mockPortfolio{err: errors.New("502 from upstream")})

	res := env.do(http.MethodGet, "/api/1inch/portfolio/erc20/current-value?address=0x2222222222222222222222222222222222222222&chainId=1", nil)
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", res.Code)
	}
	if decodeBody(t, res)["error"] != "Failed to fetch ERC20 current value" {
		t.Fatalf("unexpected error body %s", res.Body.String())
	}
}

func TestHandleOperationEvents(t *testing.T) {
	env := newTestEnv(t, &mockFactory{}, nil)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/accounts/0x2222222222222222222222222222222222222222/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	var record domain.OperationRecord
	if err := ws.ReadJSON(&record); err != nil {
		t.Fatalf("read: %v", err)
	}
	if record.UserOpHash != "0x01" || record.Sender != "0x2222222222222222222222222222222222222222" {
		t.Fatalf("unexpected event %+v", record)
	}

	res := env.do(http.MethodGet, "/api/v1/accounts/nope/events", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", res.Code)
	}
}
