package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/passkey-wallet"
	"github.com/totegamma/passkey-wallet/internal/domain"
	"github.com/totegamma/passkey-wallet/internal/present/rest/presenter"
	"github.com/totegamma/passkey-wallet/internal/usecase"
)

// PortfolioSource values the ERC-20 holdings of an address.
type PortfolioSource interface {
	CurrentValue(ctx context.Context, address, chainID string, useCache bool) (json.RawMessage, error)
}

// OperationEvents streams lifecycle events of one sender's operations.
type OperationEvents interface {
	Subscribe(ctx context.Context, sender string) (<-chan domain.OperationRecord, error)
}

type Handler struct {
	passkey   *usecase.PasskeyUsecase
	account   *usecase.AccountUsecase
	transfer  *usecase.TransferUsecase
	wallets   usecase.WalletDirectory
	portfolio PortfolioSource
	events    OperationEvents
	relay     *CeremonyRelay
}

func NewHandler(
	passkey *usecase.PasskeyUsecase,
	account *usecase.AccountUsecase,
	transfer *usecase.TransferUsecase,
	wallets usecase.WalletDirectory,
	portfolio PortfolioSource,
	events OperationEvents,
	relay *CeremonyRelay,
) *Handler {
	return &Handler{
		passkey:   passkey,
		account:   account,
		transfer:  transfer,
		wallets:   wallets,
		portfolio: portfolio,
		events:    events,
		relay:     relay,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/v1/credentials", h.handleRegisterCredential)
	e.POST("/api/v1/credentials/login", h.handleLoginCredential)
	e.POST("/api/v1/accounts", h.handleBindAccount)
	e.GET("/api/v1/wallets/:identityKey", h.handleWallet)
	e.POST("/api/v1/transfers", h.handleTransfer)
	e.GET("/api/v1/operations/:hash", h.handleOperation)
	e.GET("/api/v1/accounts/:address/events", h.handleOperationEvents)
	e.GET("/api/1inch/portfolio/erc20/current-value", h.handlePortfolio)
	if h.relay != nil {
		e.GET("/ceremony", h.relay.Serve)
	}
}

type credentialRequest struct {
	IdentityKey  domain.IdentityKey `json:"identityKey"`
	CredentialID string             `json:"credentialId"`
}

func (h *Handler) handleRegisterCredential(c echo.Context) error {
	ctx := c.Request().Context()

	var req credentialRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}

	credential, err := h.passkey.RegisterCredential(ctx, req.IdentityKey)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, credential)
}

func (h *Handler) handleLoginCredential(c echo.Context) error {
	ctx := c.Request().Context()

	var req credentialRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}

	credential, err := h.passkey.LoginCredential(ctx, req.IdentityKey, req.CredentialID)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, credential)
}

type accountRequest struct {
	IdentityKey domain.IdentityKey       `json:"identityKey"`
	Credential  domain.PasskeyCredential `json:"credential"`
}

type accountResponse struct {
	Address string `json:"address"`
	ChainID string `json:"chainId"`
}

func (h *Handler) handleBindAccount(c echo.Context) error {
	ctx := c.Request().Context()

	var req accountRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}

	account, err := h.account.BindAccount(ctx, req.Credential)
	if err != nil {
		return presenter.Error(c, err)
	}
	res := accountResponse{Address: account.Address.Hex()}
	if account.ChainID != nil {
		res.ChainID = account.ChainID.String()
	}

	if h.wallets != nil && !req.IdentityKey.IsZero() {
		err := h.wallets.Save(ctx, domain.Wallet{
			IdentityKey: req.IdentityKey.Normalize(),
			Credential:  req.Credential,
			Address:     res.Address,
			ChainID:     res.ChainID,
		})
		if err != nil {
			slog.ErrorContext(ctx, "save wallet failed",
				slog.String("identityKey", string(req.IdentityKey)),
				slog.String("error", err.Error()),
				slog.String("module", "rest"),
			)
		}
	}

	return presenter.OK(c, res)
}

func (h *Handler) handleWallet(c echo.Context) error {
	ctx := c.Request().Context()
	if h.wallets == nil {
		return presenter.Error(c, domain.E(domain.KindNotInitialized, "Handler.handleWallet", nil))
	}

	wallet, err := h.wallets.Get(ctx, domain.IdentityKey(c.Param("identityKey")))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, wallet)
}

type transferRequest struct {
	Credential domain.PasskeyCredential `json:"credential"`
	domain.TransferRequest
}

func (h *Handler) handleTransfer(c echo.Context) error {
	ctx := c.Request().Context()

	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return presenter.BadRequestMessage(c, "invalid request body")
	}

	account, err := h.account.BindAccount(ctx, req.Credential)
	if err != nil {
		return presenter.Error(c, err)
	}

	hash, err := h.transfer.Transfer(ctx, req.TransferRequest, account)
	if err != nil {
		if domain.KindOf(err) == domain.KindTimeout {
			return presenter.ErrorWith(c, err, echo.Map{"userOpHash": hash.Hex()})
		}
		return presenter.Error(c, err)
	}
	return presenter.OK(c, echo.Map{"userOpHash": hash.Hex()})
}

func (h *Handler) handleOperation(c echo.Context) error {
	ctx := c.Request().Context()

	hash := c.Param("hash")
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		return presenter.BadRequestMessage(c, "invalid user operation hash")
	}

	record, err := h.transfer.Operation(ctx, hash)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, record)
}

func (h *Handler) handlePortfolio(c echo.Context) error {
	ctx := c.Request().Context()

	address := c.QueryParam("address")
	chainID := c.QueryParam("chainId")
	useCache := c.QueryParam("useCache") == "true"

	if address == "" {
		return presenter.BadRequestMessage(c, "Wallet address is required")
	}
	if chainID == "" {
		return presenter.BadRequestMessage(c, "Chain ID is required")
	}
	if !passkeywallet.IsAddress(address) {
		return presenter.BadRequestMessage(c, "Wallet address is invalid")
	}
	if h.portfolio == nil {
		return presenter.Error(c, domain.E(domain.KindNotInitialized, "Handler.handlePortfolio", nil))
	}

	body, err := h.portfolio.CurrentValue(ctx, address, chainID, useCache)
	if err != nil {
		return presenter.InternalErrorMessage(c, err, "Failed to fetch ERC20 current value")
	}
	return presenter.OK(c, body)
}

func (h *Handler) handleOperationEvents(c echo.Context) error {
	address := c.Param("address")
	if !passkeywallet.IsAddress(address) {
		return presenter.BadRequestMessage(c, "invalid address")
	}
	if h.events == nil {
		return presenter.Error(c, domain.E(domain.KindNotInitialized, "Handler.handleOperationEvents", nil))
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	events, err := h.events.Subscribe(ctx, common.HexToAddress(address).Hex())
	if err != nil {
		return presenter.InternalErrorMessage(c, err, "failed to subscribe")
	}

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

	// The client only sends heartbeats; a read error means it went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case record, ok := <-events:
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(record); err != nil {
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
