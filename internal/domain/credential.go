package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// IdentityKey is an opaque per-user identifier used as the WebAuthn username.
type IdentityKey string

// Normalize trims surrounding whitespace.
func (k IdentityKey) Normalize() IdentityKey {
	return IdentityKey(strings.TrimSpace(string(k)))
}

func (k IdentityKey) IsZero() bool {
	return k.Normalize() == ""
}

// PasskeyCredential is the WebAuthn credential that controls a smart account.
// It is never persisted by the core; callers store it.
type PasskeyCredential struct {
	ID        string `json:"id"`
	RPID      string `json:"rpId"`
	PublicKey []byte `json:"publicKey"`
}

// PublicKeyCoordinates decodes the COSE P-256 public key into its affine coordinates.
func (c PasskeyCredential) PublicKeyCoordinates() (*big.Int, *big.Int, error) {
	if len(c.PublicKey) == 0 {
		return nil, nil, fmt.Errorf("credential %s has no public key", c.ID)
	}
	parsed, err := webauthncose.ParsePublicKey(c.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("parse cose key: %w", err)
	}

	var key webauthncose.EC2PublicKeyData
	switch k := parsed.(type) {
	case webauthncose.EC2PublicKeyData:
		key = k
	case *webauthncose.EC2PublicKeyData:
		key = *k
	default:
		return nil, nil, fmt.Errorf("credential %s: unsupported key type %T", c.ID, parsed)
	}

	if len(key.XCoord) != 32 || len(key.YCoord) != 32 {
		return nil, nil, fmt.Errorf("credential %s: not a P-256 key", c.ID)
	}
	return new(big.Int).SetBytes(key.XCoord), new(big.Int).SetBytes(key.YCoord), nil
}
