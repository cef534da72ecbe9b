package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	pkgerrors "github.com/pkg/errors"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/internal/domain"
	"github.com/totegamma/passkey-wallet/internal/usecase"
)

const factoryABIJSON = `[
	{"type":"function","name":"getAddress","stateMutability":"view",
	 "inputs":[{"name":"owners","type":"bytes[]"},{"name":"nonce","type":"uint256"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"createAccount","stateMutability":"payable",
	 "inputs":[{"name":"owners","type":"bytes[]"},{"name":"nonce","type":"uint256"}],
	 "outputs":[{"name":"account","type":"address"}]}
]`

const entryPointABIJSON = `[
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]}
]`

const accountABIJSON = `[
	{"type":"function","name":"execute","stateMutability":"payable",
	 "inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],
	 "outputs":[]},
	{"type":"function","name":"executeBatch","stateMutability":"payable",
	 "inputs":[{"name":"calls","type":"tuple[]","components":[
		{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}]}],
	 "outputs":[]}
]`

var (
	factoryABI    = mustParseABI(factoryABIJSON)
	entryPointABI = mustParseABI(entryPointABIJSON)
	accountABI    = mustParseABI(accountABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ChainClient is the subset of *client.Client used by the account gateway.
type ChainClient interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	SuggestFees(ctx context.Context) (*big.Int, *big.Int, error)
	EstimateUserOperationGas(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address) (*passkeywallet.GasEstimate, error)
	SendUserOperation(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address) (common.Hash, error)
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*passkeywallet.UserOperationReceipt, error)
	GetPaymasterStubData(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address, chainID *big.Int, pmContext map[string]any) (*passkeywallet.PaymasterData, error)
	GetPaymasterData(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address, chainID *big.Int, pmContext map[string]any) (*passkeywallet.PaymasterData, error)
}

// AddressCache remembers derived account addresses.
type AddressCache interface {
	Get(ctx context.Context, key string) (common.Address, bool)
	Set(ctx context.Context, key string, address common.Address)
}

// ChainConfig describes the chain an account gateway is bound to.
type ChainConfig struct {
	Name             string
	ChainID          *big.Int
	EntryPoint       common.Address
	Factory          common.Address
	PollInterval     time.Duration
	PaymasterContext map[string]any
}

// ChainGateway implements usecase.AccountFactory for one chain.
type ChainGateway struct {
	client   ChainClient
	config   ChainConfig
	cache    AddressCache
	ceremony Ceremony
}

func NewChainGateway(cl ChainClient, config ChainConfig, cache AddressCache, ceremony Ceremony) *ChainGateway {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &ChainGateway{
		client:   cl,
		config:   config,
		cache:    cache,
		ceremony: ceremony,
	}
}

func (g *ChainGateway) ChainID() *big.Int {
	return g.config.ChainID
}

func (g *ChainGateway) Derive(ctx context.Context, credential domain.PasskeyCredential) (usecase.AccountClient, error) {
	if g.client == nil || g.config.ChainID == nil {
		return nil, domain.E(domain.KindNotInitialized, "ChainGateway.Derive", errors.New("chain client is not configured"))
	}
	if g.config.Factory == (common.Address{}) {
		return nil, domain.E(domain.KindNotInitialized, "ChainGateway.Derive", errors.New("account factory is not configured"))
	}

	x, y, err := credential.PublicKeyCoordinates()
	if err != nil {
		return nil, err
	}
	owner, err := encodeOwner(x, y)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode owner")
	}

	address, err := g.accountAddress(ctx, credential.ID, owner)
	if err != nil {
		return nil, err
	}

	return &AccountClient{
		client:  g.client,
		config:  g.config,
		address: address,
		owner:   owner,
		signer:  NewWebAuthnSigner(g.ceremony, credential),
	}, nil
}

func (g *ChainGateway) accountAddress(ctx context.Context, credentialID string, owner []byte) (common.Address, error) {
	// The address depends on the owner key, not the credential id alone.
	key := fmt.Sprintf("account:%s:%s:%s", g.config.ChainID.String(), g.config.Factory.Hex(), crypto.Keccak256Hash(owner).Hex())
	if g.cache != nil {
		if address, ok := g.cache.Get(ctx, key); ok {
			return address, nil
		}
	}

	data, err := factoryABI.Pack("getAddress", [][]byte{owner}, big.NewInt(0))
	if err != nil {
		return common.Address{}, pkgerrors.Wrap(err, "encode getAddress")
	}
	out, err := g.client.CallContract(ctx, g.config.Factory, data)
	if err != nil {
		return common.Address{}, err
	}
	values, err := factoryABI.Unpack("getAddress", out)
	if err != nil {
		return common.Address{}, pkgerrors.Wrap(err, "decode getAddress")
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("getAddress returned %d values", len(values))
	}
	address, ok := values[0].(common.Address)
	if !ok || address == (common.Address{}) {
		return common.Address{}, fmt.Errorf("getAddress returned no address")
	}

	slog.DebugContext(ctx, "derived smart account",
		slog.String("credentialId", credentialID),
		slog.String("address", address.Hex()),
		slog.String("module", "gateway"),
	)

	if g.cache != nil {
		g.cache.Set(ctx, key, address)
	}
	return address, nil
}
