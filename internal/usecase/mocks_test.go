package usecase

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/internal/domain"
)

// --- passkey transport ---

type mockTransport struct {
	registered  map[domain.IdentityKey]domain.PasskeyCredential
	registerErr error
	loginErr    error
	logins      []LoginRequest
	registers   int
}

func newMockTransport() *mockTransport {
	return &mockTransport{registered: map[domain.IdentityKey]domain.PasskeyCredential{}}
}

func (m *mockTransport) Register(ctx context.Context, username domain.IdentityKey) (domain.PasskeyCredential, error) {
	m.registers++
	if m.registerErr != nil {
		return domain.PasskeyCredential{}, m.registerErr
	}
	if _, ok := m.registered[username]; ok {
		return domain.PasskeyCredential{}, domain.E(domain.KindCredentialExists, "mock.Register", nil, string(username))
	}
	cred := domain.PasskeyCredential{
		ID:        "cred-" + string(username),
		RPID:      "wallet.example",
		PublicKey: []byte(username),
	}
	m.registered[username] = cred
	return cred, nil
}

func (m *mockTransport) Login(ctx context.Context, req LoginRequest) (domain.PasskeyCredential, error) {
	m.logins = append(m.logins, req)
	if m.loginErr != nil {
		return domain.PasskeyCredential{}, m.loginErr
	}
	for username, cred := range m.registered {
		if req.CredentialID != "" && cred.ID == req.CredentialID {
			return cred, nil
		}
		if req.CredentialID == "" && username == req.Username {
			return cred, nil
		}
	}
	return domain.PasskeyCredential{}, fmt.Errorf("no matching credential")
}

// --- account factory / client ---

type mockFactory struct {
	chainID   *big.Int
	deriveErr error
	client    *mockAccountClient
}

func (m *mockFactory) ChainID() *big.Int { return m.chainID }

func (m *mockFactory) Derive(ctx context.Context, credential domain.PasskeyCredential) (AccountClient, error) {
	if m.deriveErr != nil {
		return nil, m.deriveErr
	}
	address := common.BytesToAddress(crypto.Keccak256([]byte(credential.ID), m.chainID.Bytes())[12:])
	if m.client != nil {
		m.client.address = address
		return m.client, nil
	}
	return &mockAccountClient{address: address, success: true}, nil
}

type mockAccountClient struct {
	mu       sync.Mutex
	address  common.Address
	sent     [][]passkeywallet.Call
	opts     []SendOptions
	sendErr  error
	waitErr  error
	block    bool
	success  bool
	reason   string
	inflight int
	maxSeen  int
}

func (m *mockAccountClient) Address() common.Address { return m.address }

func (m *mockAccountClient) SendUserOperation(ctx context.Context, calls []passkeywallet.Call, opts SendOptions) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return common.Hash{}, m.sendErr
	}
	m.sent = append(m.sent, calls)
	m.opts = append(m.opts, opts)
	m.inflight++
	if m.inflight > m.maxSeen {
		m.maxSeen = m.inflight
	}
	return crypto.Keccak256Hash(m.address.Bytes(), big.NewInt(int64(len(m.sent))).Bytes()), nil
}

func (m *mockAccountClient) WaitForReceipt(ctx context.Context, userOpHash common.Hash) (*passkeywallet.UserOperationReceipt, error) {
	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return &passkeywallet.UserOperationReceipt{
		UserOpHash: userOpHash,
		Sender:     m.address,
		Success:    m.success,
		Reason:     m.reason,
		Receipt:    passkeywallet.TransactionReceipt{TransactionHash: common.HexToHash("0xfeed")},
	}, nil
}

// --- journal / notifier ---

type mockJournal struct {
	mu       sync.Mutex
	records  map[string]domain.OperationRecord
	statuses []domain.OperationStatus
}

func newMockJournal() *mockJournal {
	return &mockJournal{records: map[string]domain.OperationRecord{}}
}

func (m *mockJournal) Submitted(ctx context.Context, record domain.OperationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.UserOpHash] = record
	m.statuses = append(m.statuses, record.Status)
	return nil
}

func (m *mockJournal) Resolve(ctx context.Context, hash string, status domain.OperationStatus, txHash, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[hash]
	if !ok {
		return domain.NotFoundError{Resource: "operation"}
	}
	if !rec.Status.CanTransition(status) {
		return fmt.Errorf("invalid transition %s -> %s", rec.Status, status)
	}
	rec.Status = status
	rec.TransactionHash = txHash
	rec.Reason = reason
	m.records[hash] = rec
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockJournal) Get(ctx context.Context, hash string) (domain.OperationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[hash]
	if !ok {
		return domain.OperationRecord{}, domain.NotFoundError{Resource: "operation"}
	}
	return rec, nil
}

type mockNotifier struct {
	events []domain.OperationRecord
}

func (m *mockNotifier) Publish(ctx context.Context, record domain.OperationRecord) error {
	m.events = append(m.events, record)
	return nil
}

type mockLocker struct {
	mu   sync.Mutex
	keys []string
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	m.keys = append(m.keys, key)
	return m.mu.Unlock, nil
}
