package gateway

import (
	"context"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
)

// Ceremony runs navigator.credentials.create/get on the user's authenticator
// and returns the serialized PublicKeyCredential.
type Ceremony interface {
	Create(ctx context.Context, options protocol.PublicKeyCredentialCreationOptions) (json.RawMessage, error)
	Get(ctx context.Context, options protocol.PublicKeyCredentialRequestOptions) (json.RawMessage, error)
}

// CeremonyError is a DOMException reported by the browser.
type CeremonyError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *CeremonyError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return e.Name + ": " + e.Message
}

// InvalidStateError is raised by create() when excludeCredentials matches a
// credential already on the authenticator.
const InvalidStateError = "InvalidStateError"

type passkeyParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultPasskeyParser struct{}

func (defaultPasskeyParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultPasskeyParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}
