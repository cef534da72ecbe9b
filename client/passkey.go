package client

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/pkg/errors"
)

// PasskeyClient talks to the WebAuthn relying-party service.
type PasskeyClient struct {
	rpc *rpc.Client
}

// RegistrationVerification is the relying party's verdict on an attestation.
type RegistrationVerification struct {
	Verified bool `json:"verified"`
}

// LoginVerification carries the stored public key for an asserted credential.
type LoginVerification struct {
	PublicKey protocol.URLEncodedBase64 `json:"publicKey"`
}

func NewPasskeyClient(ctx context.Context, endpoint, clientKey string) (*PasskeyClient, error) {
	rc, err := dial(ctx, endpoint, clientKey)
	if err != nil {
		return nil, err
	}
	return &PasskeyClient{rpc: rc}, nil
}

func (c *PasskeyClient) Close() {
	c.rpc.Close()
}

func (c *PasskeyClient) GetRegistrationOptions(ctx context.Context, username string) (json.RawMessage, error) {
	var options json.RawMessage
	if err := c.rpc.CallContext(ctx, &options, "rp_getRegistrationOptions", username); err != nil {
		return nil, errors.Wrap(err, "rp_getRegistrationOptions")
	}
	return options, nil
}

func (c *PasskeyClient) GetRegistrationVerification(ctx context.Context, credential json.RawMessage) (RegistrationVerification, error) {
	var result RegistrationVerification
	if err := c.rpc.CallContext(ctx, &result, "rp_getRegistrationVerification", credential); err != nil {
		return RegistrationVerification{}, errors.Wrap(err, "rp_getRegistrationVerification")
	}
	return result, nil
}

// GetLoginOptions requests assertion options. An empty username asks for a discoverable login.
func (c *PasskeyClient) GetLoginOptions(ctx context.Context, username string) (json.RawMessage, error) {
	var options json.RawMessage
	var err error
	if username == "" {
		err = c.rpc.CallContext(ctx, &options, "rp_getLoginOptions")
	} else {
		err = c.rpc.CallContext(ctx, &options, "rp_getLoginOptions", username)
	}
	if err != nil {
		return nil, errors.Wrap(err, "rp_getLoginOptions")
	}
	return options, nil
}

func (c *PasskeyClient) GetLoginVerification(ctx context.Context, credential json.RawMessage) (LoginVerification, error) {
	var result LoginVerification
	if err := c.rpc.CallContext(ctx, &result, "rp_getLoginVerification", credential); err != nil {
		return LoginVerification{}, errors.Wrap(err, "rp_getLoginVerification")
	}
	return result, nil
}
