package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	pkgerrors "github.com/pkg/errors"
)

const defaultPortfolioEndpoint = "https://api.1inch.dev/portfolio/portfolio/v4/overview/erc20/details"

// PortfolioGateway forwards ERC-20 valuation queries to the 1inch portfolio API.
type PortfolioGateway struct {
	endpoint string
	apiKey   string
	http     *http.Client
	cache    *cache.Cache
}

func NewPortfolioGateway(endpoint, apiKey string) *PortfolioGateway {
	if endpoint == "" {
		endpoint = defaultPortfolioEndpoint
	}
	return &PortfolioGateway{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 10 * time.Second},
		cache:    cache.New(30*time.Second, time.Minute),
	}
}

// CurrentValue returns the upstream JSON body unchanged. useCache is passed
// upstream as use_cache and also enables a short local cache.
func (g *PortfolioGateway) CurrentValue(ctx context.Context, address, chainID string, useCache bool) (json.RawMessage, error) {
	key := address + ":" + chainID
	if useCache {
		if cached, found := g.cache.Get(key); found {
			return cached.(json.RawMessage), nil
		}
	}

	query := url.Values{}
	query.Set("address", address)
	query.Set("chain_id", chainID)
	query.Set("use_cache", fmt.Sprintf("%t", useCache))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "fetch portfolio")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portfolio upstream returned %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("portfolio upstream returned invalid json")
	}

	g.cache.Set(key, json.RawMessage(body), cache.DefaultExpiration)
	return body, nil
}
