package gateway

import (
	"context"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-webauthn/webauthn/protocol"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"github.com/totegamma/passkey-wallet/internal/domain"
)

var (
	p256N     = elliptic.P256().Params().N
	p256HalfN = new(big.Int).Rsh(p256N, 1)
)

// webAuthnAuth mirrors the smart wallet's WebAuthnAuth struct.
type webAuthnAuth struct {
	AuthenticatorData []byte
	ClientDataJSON    string
	ChallengeIndex    *big.Int
	TypeIndex         *big.Int
	R                 *big.Int
	S                 *big.Int
}

// signatureWrapper mirrors the smart wallet's SignatureWrapper struct.
type signatureWrapper struct {
	OwnerIndex    *big.Int
	SignatureData []byte
}

var (
	webAuthnAuthArgs = abi.Arguments{{Type: mustNewType("tuple", []abi.ArgumentMarshaling{
		{Name: "authenticatorData", Type: "bytes"},
		{Name: "clientDataJSON", Type: "string"},
		{Name: "challengeIndex", Type: "uint256"},
		{Name: "typeIndex", Type: "uint256"},
		{Name: "r", Type: "uint256"},
		{Name: "s", Type: "uint256"},
	})}}
	signatureWrapperArgs = abi.Arguments{{Type: mustNewType("tuple", []abi.ArgumentMarshaling{
		{Name: "ownerIndex", Type: "uint256"},
		{Name: "signatureData", Type: "bytes"},
	})}}
	ownerArgs = abi.Arguments{
		{Type: mustNewType("uint256", nil)},
		{Type: mustNewType("uint256", nil)},
	}
)

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

// encodeOwner returns the smart wallet owner bytes for a P-256 public key.
func encodeOwner(x, y *big.Int) ([]byte, error) {
	return ownerArgs.Pack(x, y)
}

// WebAuthnSigner signs user operation hashes with a passkey assertion.
type WebAuthnSigner struct {
	ceremony   Ceremony
	parser     passkeyParser
	credential domain.PasskeyCredential
	ownerIndex int64
}

func NewWebAuthnSigner(ceremony Ceremony, credential domain.PasskeyCredential) *WebAuthnSigner {
	return &WebAuthnSigner{
		ceremony:   ceremony,
		parser:     defaultPasskeyParser{},
		credential: credential,
	}
}

// Sign asks the authenticator to assert over hash and encodes the result as
// SignatureWrapper(ownerIndex, WebAuthnAuth).
func (s *WebAuthnSigner) Sign(ctx context.Context, hash common.Hash) ([]byte, error) {
	descriptor, err := credentialDescriptor(s.credential.ID)
	if err != nil {
		return nil, err
	}
	options := protocol.PublicKeyCredentialRequestOptions{
		Challenge:          protocol.URLEncodedBase64(hash.Bytes()),
		RelyingPartyID:     s.credential.RPID,
		AllowedCredentials: []protocol.CredentialDescriptor{descriptor},
		UserVerification:   protocol.VerificationRequired,
	}

	response, err := s.ceremony.Get(ctx, options)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "sign user operation")
	}
	parsed, err := s.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse assertion")
	}

	r, sv, err := parseDERSignature(parsed.Response.Signature)
	if err != nil {
		return nil, err
	}

	auth, err := newWebAuthnAuth(parsed.Raw.AssertionResponse.AuthenticatorData, string(parsed.Raw.AssertionResponse.ClientDataJSON), r, sv)
	if err != nil {
		return nil, err
	}
	return encodeSignature(s.ownerIndex, auth)
}

// StubSignature is a well-formed signature of the right size for gas estimation.
func (s *WebAuthnSigner) StubSignature() []byte {
	authenticatorData := make([]byte, 37)
	authenticatorData[32] = 0x05
	challenge := base64.RawURLEncoding.EncodeToString(make([]byte, 32))
	clientDataJSON := `{"type":"webauthn.get","challenge":"` + challenge + `","origin":"https://` + s.credential.RPID + `","crossOrigin":false}`
	auth, err := newWebAuthnAuth(authenticatorData, clientDataJSON, new(big.Int).Set(p256HalfN), new(big.Int).Set(p256HalfN))
	if err != nil {
		panic(err)
	}
	sig, err := encodeSignature(s.ownerIndex, auth)
	if err != nil {
		panic(err)
	}
	return sig
}

func newWebAuthnAuth(authenticatorData []byte, clientDataJSON string, r, s *big.Int) (webAuthnAuth, error) {
	challengeIndex := strings.Index(clientDataJSON, `"challenge":"`)
	typeIndex := strings.Index(clientDataJSON, `"type":"webauthn.get"`)
	if challengeIndex < 0 || typeIndex < 0 {
		return webAuthnAuth{}, fmt.Errorf("unexpected clientDataJSON %q", clientDataJSON)
	}
	return webAuthnAuth{
		AuthenticatorData: authenticatorData,
		ClientDataJSON:    clientDataJSON,
		ChallengeIndex:    big.NewInt(int64(challengeIndex)),
		TypeIndex:         big.NewInt(int64(typeIndex)),
		R:                 r,
		S:                 normalizeS(s),
	}, nil
}

func encodeSignature(ownerIndex int64, auth webAuthnAuth) ([]byte, error) {
	data, err := webAuthnAuthArgs.Pack(auth)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode WebAuthnAuth")
	}
	wrapped, err := signatureWrapperArgs.Pack(signatureWrapper{
		OwnerIndex:    big.NewInt(ownerIndex),
		SignatureData: data,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "encode SignatureWrapper")
	}
	return wrapped, nil
}

// parseDERSignature reads an ASN.1 ECDSA-Sig-Value.
func parseDERSignature(der []byte) (*big.Int, *big.Int, error) {
	r, s := new(big.Int), new(big.Int)
	var inner cryptobyte.String
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, nil, fmt.Errorf("invalid DER signature")
	}
	if r.Sign() <= 0 || s.Sign() <= 0 || r.Cmp(p256N) >= 0 || s.Cmp(p256N) >= 0 {
		return nil, nil, fmt.Errorf("signature out of range")
	}
	return r, s, nil
}

// normalizeS maps s to the lower half of the curve order; the P-256 verifier rejects high s.
func normalizeS(s *big.Int) *big.Int {
	if s.Cmp(p256HalfN) > 0 {
		return new(big.Int).Sub(p256N, s)
	}
	return s
}
