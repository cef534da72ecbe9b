package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/passkey-wallet/internal/domain"
	"github.com/totegamma/passkey-wallet/internal/infra/gateway"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ErrNoCeremonySession is returned when no browser is attached to the request.
var ErrNoCeremonySession = errors.New("no ceremony session attached")

// ceremonyMessage is sent to the browser.
type ceremonyMessage struct {
	Type    string `json:"type"` // session, create, get
	ID      string `json:"id,omitempty"`
	Session string `json:"session,omitempty"`
	Options any    `json:"options,omitempty"`
}

// ceremonyReply is sent by the browser.
type ceremonyReply struct {
	Type       string                 `json:"type"` // result, error, h
	ID         string                 `json:"id"`
	Credential json.RawMessage        `json:"credential,omitempty"`
	Error      *gateway.CeremonyError `json:"error,omitempty"`
}

type ceremonySession struct {
	out     chan ceremonyMessage
	done    chan struct{}
	mu      sync.Mutex
	pending map[string]chan ceremonyReply
}

// CeremonyRelay implements gateway.Ceremony by forwarding WebAuthn options to
// the browser attached over WebSocket and waiting for its answer.
type CeremonyRelay struct {
	mu       sync.Mutex
	sessions map[string]*ceremonySession
	timeout  time.Duration
}

func NewCeremonyRelay(timeout time.Duration) *CeremonyRelay {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CeremonyRelay{
		sessions: make(map[string]*ceremonySession),
		timeout:  timeout,
	}
}

func (r *CeremonyRelay) Create(ctx context.Context, options protocol.PublicKeyCredentialCreationOptions) (json.RawMessage, error) {
	return r.run(ctx, "create", options)
}

func (r *CeremonyRelay) Get(ctx context.Context, options protocol.PublicKeyCredentialRequestOptions) (json.RawMessage, error) {
	return r.run(ctx, "get", options)
}

func (r *CeremonyRelay) run(ctx context.Context, kind string, options any) (json.RawMessage, error) {
	sessionID, _ := ctx.Value(domain.CeremonySessionCtxKey).(string)
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNoCeremonySession
	}

	id := uuid.NewString()
	reply := make(chan ceremonyReply, 1)
	session.mu.Lock()
	session.pending[id] = reply
	session.mu.Unlock()
	defer func() {
		session.mu.Lock()
		delete(session.pending, id)
		session.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	select {
	case session.out <- ceremonyMessage{Type: kind, ID: id, Options: options}:
	case <-session.done:
		return nil, ErrNoCeremonySession
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		if res.Error != nil {
			return nil, res.Error
		}
		if len(res.Credential) == 0 {
			return nil, errors.New("empty ceremony response")
		}
		return res.Credential, nil
	case <-session.done:
		return nil, ErrNoCeremonySession
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *CeremonyRelay) attach() (string, *ceremonySession) {
	id := uuid.NewString()
	session := &ceremonySession{
		out:     make(chan ceremonyMessage),
		done:    make(chan struct{}),
		pending: make(map[string]chan ceremonyReply),
	}
	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()
	return id, session
}

func (r *CeremonyRelay) detach(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		close(session.done)
	}
}

func (s *ceremonySession) deliver(reply ceremonyReply) bool {
	s.mu.Lock()
	ch, ok := s.pending[reply.ID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- reply:
	default:
	}
	return true
}

// Serve attaches a browser to the relay for the lifetime of the socket.
func (r *CeremonyRelay) Serve(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer ws.Close()

	ctx := c.Request().Context()
	id, session := r.attach()
	defer r.detach(id)

	if err := ws.WriteJSON(ceremonyMessage{Type: "session", Session: id}); err != nil {
		return nil
	}

	quit := make(chan struct{})
	go func() {
		defer close(quit)
		for {
			var reply ceremonyReply
			err := ws.ReadJSON(&reply)
			if err != nil {
				wsErr, ok := err.(*websocket.CloseError)
				if !ok || !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
					slog.DebugContext(
						ctx, "ceremony socket closed",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch reply.Type {
			case "result", "error":
				if !session.deliver(reply) {
					slog.InfoContext(ctx, "unexpected ceremony reply", slog.String("id", reply.ID), slog.String("module", "socket"))
				}
			case "h": // heartbeat
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", reply.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return nil
		case msg := <-session.out:
			if err := ws.WriteJSON(msg); err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
