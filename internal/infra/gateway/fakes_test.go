package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-webauthn/webauthn/protocol"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/client"
	"github.com/totegamma/passkey-wallet/internal/domain"
)

func coseP256(x, y []byte) []byte {
	var b bytes.Buffer
	b.Write([]byte{0xa5, 0x01, 0x02, 0x03, 0x26, 0x20, 0x01})
	b.Write([]byte{0x21, 0x58, 0x20})
	b.Write(x)
	b.Write([]byte{0x22, 0x58, 0x20})
	b.Write(y)
	return b.Bytes()
}

func testCredential() domain.PasskeyCredential {
	return domain.PasskeyCredential{
		ID:        "Y3JlZC0x",
		RPID:      "wallet.example",
		PublicKey: coseP256(bytes.Repeat([]byte{0x11}, 32), bytes.Repeat([]byte{0x22}, 32)),
	}
}

func derSignature(r, s *big.Int) []byte {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.BytesOrPanic()
}

// --- ceremony ---

type fakeCeremony struct {
	createErr error
	getErr    error
	creations []protocol.PublicKeyCredentialCreationOptions
	requests  []protocol.PublicKeyCredentialRequestOptions
	response  json.RawMessage
}

func (f *fakeCeremony) Create(ctx context.Context, options protocol.PublicKeyCredentialCreationOptions) (json.RawMessage, error) {
	f.creations = append(f.creations, options)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.response, nil
}

func (f *fakeCeremony) Get(ctx context.Context, options protocol.PublicKeyCredentialRequestOptions) (json.RawMessage, error) {
	f.requests = append(f.requests, options)
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.response, nil
}

// --- parser ---

type fakePasskeyParser struct {
	creation  *protocol.ParsedCredentialCreationData
	assertion *protocol.ParsedCredentialAssertionData
	err       error
}

func (f *fakePasskeyParser) ParseCredentialCreationResponseBytes(_ []byte) (*protocol.ParsedCredentialCreationData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.creation, nil
}

func (f *fakePasskeyParser) ParseCredentialRequestResponseBytes(_ []byte) (*protocol.ParsedCredentialAssertionData, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.assertion, nil
}

func newAssertion(id string, r, s *big.Int) *protocol.ParsedCredentialAssertionData {
	parsed := &protocol.ParsedCredentialAssertionData{}
	parsed.ID = id
	parsed.Response.Signature = derSignature(r, s)
	authenticatorData := make([]byte, 37)
	authenticatorData[32] = 0x05
	parsed.Raw.AssertionResponse.AuthenticatorData = authenticatorData
	parsed.Raw.AssertionResponse.ClientDataJSON = []byte(`{"type":"webauthn.get","challenge":"AAAA","origin":"https://wallet.example"}`)
	return parsed
}

// --- relying party ---

type fakeRelyingParty struct {
	registrationOptions json.RawMessage
	loginOptions        json.RawMessage
	verified            bool
	publicKey           []byte
	loginUsernames      []string
}

func (f *fakeRelyingParty) GetRegistrationOptions(ctx context.Context, username string) (json.RawMessage, error) {
	return f.registrationOptions, nil
}

func (f *fakeRelyingParty) GetRegistrationVerification(ctx context.Context, credential json.RawMessage) (client.RegistrationVerification, error) {
	return client.RegistrationVerification{Verified: f.verified}, nil
}

func (f *fakeRelyingParty) GetLoginOptions(ctx context.Context, username string) (json.RawMessage, error) {
	f.loginUsernames = append(f.loginUsernames, username)
	return f.loginOptions, nil
}

func (f *fakeRelyingParty) GetLoginVerification(ctx context.Context, credential json.RawMessage) (client.LoginVerification, error) {
	return client.LoginVerification{PublicKey: f.publicKey}, nil
}

// --- chain ---

type fakeChainClient struct {
	mu           sync.Mutex
	account      common.Address
	code         []byte
	addressCalls int
	estimated    []*passkeywallet.UserOperation
	sent         []*passkeywallet.UserOperation
	stubCalls    int
	finalCalls   int
	stubFinal    bool
	sendErr      error
	receipts     []*passkeywallet.UserOperationReceipt
	receiptCalls int

	// ownerAddresses derives getAddress results from the call data.
	ownerAddresses bool
}

func (f *fakeChainClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case bytes.HasPrefix(data, factoryABI.Methods["getAddress"].ID):
		f.addressCalls++
		if f.ownerAddresses {
			return factoryABI.Methods["getAddress"].Outputs.Pack(common.BytesToAddress(crypto.Keccak256(data)))
		}
		return factoryABI.Methods["getAddress"].Outputs.Pack(f.account)
	case bytes.HasPrefix(data, entryPointABI.Methods["getNonce"].ID):
		return entryPointABI.Methods["getNonce"].Outputs.Pack(big.NewInt(7))
	}
	return nil, fmt.Errorf("unexpected call to %s", to.Hex())
}

func (f *fakeChainClient) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return f.code, nil
}

func (f *fakeChainClient) SuggestFees(ctx context.Context) (*big.Int, *big.Int, error) {
	return big.NewInt(2_000_000_000), big.NewInt(1_000_000), nil
}

func (f *fakeChainClient) EstimateUserOperationGas(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address) (*passkeywallet.GasEstimate, error) {
	copied := *op
	f.estimated = append(f.estimated, &copied)
	return &passkeywallet.GasEstimate{
		PreVerificationGas:   hexBig(50_000),
		VerificationGasLimit: hexBig(400_000),
		CallGasLimit:         hexBig(80_000),
	}, nil
}

func (f *fakeChainClient) SendUserOperation(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent = append(f.sent, op)
	return op.Hash(entryPoint, big.NewInt(421614)), nil
}

func (f *fakeChainClient) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*passkeywallet.UserOperationReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receiptCalls++
	if len(f.receipts) == 0 {
		return nil, nil
	}
	receipt := f.receipts[0]
	f.receipts = f.receipts[1:]
	return receipt, nil
}

func hexBig(v int64) *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(v))
}

var testPaymaster = common.HexToAddress("0x31BE08D380A21fc740883c0BC434FcFc88740b58")

func (f *fakeChainClient) GetPaymasterStubData(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address, chainID *big.Int, pmContext map[string]any) (*passkeywallet.PaymasterData, error) {
	f.stubCalls++
	return &passkeywallet.PaymasterData{
		Paymaster:                     &testPaymaster,
		PaymasterData:                 []byte{0x00},
		PaymasterVerificationGasLimit: hexBig(60_000),
		PaymasterPostOpGasLimit:       hexBig(15_000),
		IsFinal:                       f.stubFinal,
	}, nil
}

func (f *fakeChainClient) GetPaymasterData(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address, chainID *big.Int, pmContext map[string]any) (*passkeywallet.PaymasterData, error) {
	f.finalCalls++
	return &passkeywallet.PaymasterData{
		Paymaster:     &testPaymaster,
		PaymasterData: []byte{0x01, 0x02},
	}, nil
}

// --- cache ---

type mapCache struct {
	entries map[string]common.Address
}

func (m *mapCache) Get(ctx context.Context, key string) (common.Address, bool) {
	address, ok := m.entries[key]
	return address, ok
}

func (m *mapCache) Set(ctx context.Context, key string, address common.Address) {
	m.entries[key] = address
}
