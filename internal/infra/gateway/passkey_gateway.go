package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	pkgerrors "github.com/pkg/errors"

	"github.com/totegamma/passkey-wallet/client"
	"github.com/totegamma/passkey-wallet/internal/domain"
	"github.com/totegamma/passkey-wallet/internal/usecase"
)

// RelyingParty is the WebAuthn relying-party service. *client.PasskeyClient implements it.
type RelyingParty interface {
	GetRegistrationOptions(ctx context.Context, username string) (json.RawMessage, error)
	GetRegistrationVerification(ctx context.Context, credential json.RawMessage) (client.RegistrationVerification, error)
	GetLoginOptions(ctx context.Context, username string) (json.RawMessage, error)
	GetLoginVerification(ctx context.Context, credential json.RawMessage) (client.LoginVerification, error)
}

// PasskeyGateway implements usecase.PasskeyTransport.
type PasskeyGateway struct {
	rp       RelyingParty
	ceremony Ceremony
	parser   passkeyParser
}

func NewPasskeyGateway(rp RelyingParty, ceremony Ceremony) *PasskeyGateway {
	return &PasskeyGateway{
		rp:       rp,
		ceremony: ceremony,
		parser:   defaultPasskeyParser{},
	}
}

func (g *PasskeyGateway) Register(ctx context.Context, username domain.IdentityKey) (domain.PasskeyCredential, error) {
	raw, err := g.rp.GetRegistrationOptions(ctx, string(username))
	if err != nil {
		return domain.PasskeyCredential{}, err
	}
	var options protocol.PublicKeyCredentialCreationOptions
	if err := json.Unmarshal(raw, &options); err != nil {
		return domain.PasskeyCredential{}, pkgerrors.Wrap(err, "decode registration options")
	}

	response, err := g.ceremony.Create(ctx, options)
	if err != nil {
		var cerr *CeremonyError
		if errors.As(err, &cerr) && cerr.Name == InvalidStateError {
			return domain.PasskeyCredential{}, domain.E(domain.KindCredentialExists, "PasskeyGateway.Register", err, string(username))
		}
		return domain.PasskeyCredential{}, err
	}

	parsed, err := g.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return domain.PasskeyCredential{}, pkgerrors.Wrap(err, "parse attestation")
	}

	verification, err := g.rp.GetRegistrationVerification(ctx, response)
	if err != nil {
		return domain.PasskeyCredential{}, err
	}
	if !verification.Verified {
		return domain.PasskeyCredential{}, fmt.Errorf("registration of %s was not verified", parsed.ID)
	}

	return domain.PasskeyCredential{
		ID:        parsed.ID,
		RPID:      options.RelyingParty.ID,
		PublicKey: parsed.Response.AttestationObject.AuthData.AttData.CredentialPublicKey,
	}, nil
}

func (g *PasskeyGateway) Login(ctx context.Context, req usecase.LoginRequest) (domain.PasskeyCredential, error) {
	username := string(req.Username)
	if req.CredentialID != "" {
		username = ""
	}
	raw, err := g.rp.GetLoginOptions(ctx, username)
	if err != nil {
		return domain.PasskeyCredential{}, err
	}
	var options protocol.PublicKeyCredentialRequestOptions
	if err := json.Unmarshal(raw, &options); err != nil {
		return domain.PasskeyCredential{}, pkgerrors.Wrap(err, "decode login options")
	}

	if req.CredentialID != "" {
		descriptor, err := credentialDescriptor(req.CredentialID)
		if err != nil {
			return domain.PasskeyCredential{}, err
		}
		options.AllowedCredentials = []protocol.CredentialDescriptor{descriptor}
	}

	response, err := g.ceremony.Get(ctx, options)
	if err != nil {
		return domain.PasskeyCredential{}, err
	}

	parsed, err := g.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return domain.PasskeyCredential{}, pkgerrors.Wrap(err, "parse assertion")
	}
	if req.CredentialID != "" && parsed.ID != req.CredentialID {
		return domain.PasskeyCredential{}, fmt.Errorf("authenticator answered with credential %s, want %s", parsed.ID, req.CredentialID)
	}

	verification, err := g.rp.GetLoginVerification(ctx, response)
	if err != nil {
		return domain.PasskeyCredential{}, err
	}
	if len(verification.PublicKey) == 0 {
		return domain.PasskeyCredential{}, fmt.Errorf("login of %s was not verified", parsed.ID)
	}

	return domain.PasskeyCredential{
		ID:        parsed.ID,
		RPID:      options.RelyingPartyID,
		PublicKey: verification.PublicKey,
	}, nil
}

func credentialDescriptor(id string) (protocol.CredentialDescriptor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(id, "="))
	if err != nil {
		return protocol.CredentialDescriptor{}, domain.E(domain.KindInvalidArgument, "credentialDescriptor", err, id)
	}
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: raw,
	}, nil
}
