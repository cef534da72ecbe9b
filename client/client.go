package client

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/totegamma/passkey-wallet"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "passkey-wallet/1.0"
)

// Client talks to one chain-qualified modular endpoint. The same endpoint
// serves plain chain reads, the bundler and the paymaster.
type Client struct {
	rpc       *rpc.Client
	eth       *ethclient.Client
	clientKey string
	userAgent string
	endpoint  string
}

// transport adds the client key and user agent to every request.
type transport struct {
	clientKey string
	userAgent string
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	if t.clientKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.clientKey)
	}
	return http.DefaultTransport.RoundTrip(req)
}

func newHTTPClient(clientKey string) *http.Client {
	return &http.Client{
		Timeout:   defaultTimeout,
		Transport: &transport{clientKey: clientKey, userAgent: defaultUserAgent},
	}
}

func dial(ctx context.Context, endpoint, clientKey string) (*rpc.Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	rc, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(newHTTPClient(clientKey)))
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", endpoint)
	}
	return rc, nil
}

// New dials the chain endpoint, e.g. https://modular-sdk.example/v1/rpc/w3s/buidl/arbitrumSepolia.
func New(ctx context.Context, endpoint, clientKey string) (*Client, error) {
	rc, err := dial(ctx, endpoint, clientKey)
	if err != nil {
		return nil, err
	}
	return &Client{
		rpc:       rc,
		eth:       ethclient.NewClient(rc),
		clientKey: clientKey,
		userAgent: defaultUserAgent,
		endpoint:  endpoint,
	}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "eth_chainId")
	}
	return id, nil
}

// CallContract runs eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "eth_call %s", to.Hex())
	}
	return out, nil
}

func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	code, err := c.eth.CodeAt(ctx, account, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "eth_getCode %s", account.Hex())
	}
	return code, nil
}

// SuggestFees returns EIP-1559 fee caps: twice the latest base fee plus the suggested tip.
func (c *Client) SuggestFees(ctx context.Context) (maxFee *big.Int, maxPriorityFee *big.Int, err error) {
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "eth_maxPriorityFeePerGas")
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "eth_getBlockByNumber")
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	maxFee = new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
	return maxFee, tip, nil
}

func (c *Client) EstimateUserOperationGas(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address) (*passkeywallet.GasEstimate, error) {
	var estimate passkeywallet.GasEstimate
	if err := c.rpc.CallContext(ctx, &estimate, "eth_estimateUserOperationGas", op, entryPoint); err != nil {
		return nil, errors.Wrap(err, "eth_estimateUserOperationGas")
	}
	return &estimate, nil
}

func (c *Client) SendUserOperation(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendUserOperation", op, entryPoint); err != nil {
		return common.Hash{}, errors.Wrap(err, "eth_sendUserOperation")
	}
	return hash, nil
}

// GetUserOperationReceipt returns nil without error while the operation is pending.
func (c *Client) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*passkeywallet.UserOperationReceipt, error) {
	var receipt *passkeywallet.UserOperationReceipt
	if err := c.rpc.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, errors.Wrap(err, "eth_getUserOperationReceipt")
	}
	return receipt, nil
}

// GetPaymasterStubData asks the paymaster for gas-estimation placeholder data (ERC-7677).
func (c *Client) GetPaymasterStubData(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address, chainID *big.Int, pmContext map[string]any) (*passkeywallet.PaymasterData, error) {
	var data passkeywallet.PaymasterData
	if err := c.rpc.CallContext(ctx, &data, "pm_getPaymasterStubData", op, entryPoint, (*hexutil.Big)(chainID), pmContext); err != nil {
		return nil, errors.Wrap(err, "pm_getPaymasterStubData")
	}
	return &data, nil
}

// GetPaymasterData asks the paymaster for the final sponsorship data (ERC-7677).
func (c *Client) GetPaymasterData(ctx context.Context, op *passkeywallet.UserOperation, entryPoint common.Address, chainID *big.Int, pmContext map[string]any) (*passkeywallet.PaymasterData, error) {
	var data passkeywallet.PaymasterData
	if err := c.rpc.CallContext(ctx, &data, "pm_getPaymasterData", op, entryPoint, (*hexutil.Big)(chainID), pmContext); err != nil {
		return nil, errors.Wrap(err, "pm_getPaymasterData")
	}
	return &data, nil
}
