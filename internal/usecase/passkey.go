package usecase

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/passkey-wallet/internal/domain"
)

var tracer = otel.Tracer("usecase")

// PasskeyUsecase turns identity keys into WebAuthn credentials.
type PasskeyUsecase struct {
	transport PasskeyTransport
}

func NewPasskeyUsecase(transport PasskeyTransport) *PasskeyUsecase {
	return &PasskeyUsecase{transport: transport}
}

// RegisterCredential creates a credential for identityKey, or logs in when the
// identity already holds one. Only domain.ErrCredentialExists triggers the login
// fallback; any other registration failure is returned.
func (uc *PasskeyUsecase) RegisterCredential(ctx context.Context, identityKey domain.IdentityKey) (domain.PasskeyCredential, error) {
	const op = "PasskeyUsecase.RegisterCredential"
	ctx, span := tracer.Start(ctx, "Passkey.Usecase.RegisterCredential")
	defer span.End()

	if uc.transport == nil {
		return domain.PasskeyCredential{}, domain.E(domain.KindNotInitialized, op, errors.New("passkey transport is not configured"))
	}

	key := identityKey.Normalize()
	if key == "" {
		return domain.PasskeyCredential{}, domain.E(domain.KindInvalidArgument, op, errors.New("identity key is required"))
	}
	span.SetAttributes(attribute.String("IdentityKey", string(key)))

	slog.InfoContext(ctx, "register passkey", slog.String("identityKey", string(key)), slog.String("module", "passkey"))

	credential, err := uc.transport.Register(ctx, key)
	if err == nil {
		slog.InfoContext(ctx, "passkey registered", slog.String("rpId", credential.RPID), slog.String("module", "passkey"))
		return credential, nil
	}

	if errors.Is(err, domain.ErrCredentialExists) {
		slog.InfoContext(ctx, "passkey already registered, logging in", slog.String("identityKey", string(key)), slog.String("module", "passkey"))
		return uc.LoginCredential(ctx, key, "")
	}

	span.RecordError(err)
	if errors.Is(err, domain.ErrNotInitialized) {
		return domain.PasskeyCredential{}, domain.E(domain.KindNotInitialized, op, err, string(key))
	}
	return domain.PasskeyCredential{}, domain.E(domain.KindAuthenticationFailed, op, err, string(key))
}

// LoginCredential resolves an existing credential. credentialID takes precedence
// over identityKey when both are supplied.
func (uc *PasskeyUsecase) LoginCredential(ctx context.Context, identityKey domain.IdentityKey, credentialID string) (domain.PasskeyCredential, error) {
	const op = "PasskeyUsecase.LoginCredential"
	ctx, span := tracer.Start(ctx, "Passkey.Usecase.LoginCredential")
	defer span.End()

	key := identityKey.Normalize()
	if key == "" && credentialID == "" {
		return domain.PasskeyCredential{}, domain.E(domain.KindInvalidArgument, op, errors.New("identity key or credential id is required"))
	}
	if uc.transport == nil {
		return domain.PasskeyCredential{}, domain.E(domain.KindNotInitialized, op, errors.New("passkey transport is not configured"))
	}

	req := LoginRequest{Username: key}
	detail := string(key)
	if credentialID != "" {
		req = LoginRequest{CredentialID: credentialID}
		detail = credentialID
	}
	span.SetAttributes(attribute.String("Login", detail))

	slog.InfoContext(ctx, "login passkey", slog.String("username", string(key)), slog.String("module", "passkey"))

	credential, err := uc.transport.Login(ctx, req)
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "login passkey failed", slog.String("error", err.Error()), slog.String("module", "passkey"))
		if errors.Is(err, domain.ErrNotInitialized) {
			return domain.PasskeyCredential{}, domain.E(domain.KindNotInitialized, op, err, detail)
		}
		return domain.PasskeyCredential{}, domain.E(domain.KindAuthenticationFailed, op, err, detail)
	}

	return credential, nil
}
