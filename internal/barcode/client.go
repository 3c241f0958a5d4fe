package barcode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"foodshare-backend/config"
	"foodshare-backend/pkg/apperr"

	gocache "github.com/patrickmn/go-cache"
)

const (
	cacheTTL     = 10 * time.Minute
	cachePurge   = 30 * time.Minute
	lookupWindow = 15 * time.Second
)

// Client resolves a product barcode against the external catalog provider.
// Responses are cached so repeated scans of the same product during an
// intake session hit the provider once.
type Client interface {
	Lookup(ctx context.Context, code string) (json.RawMessage, error)
}

type httpClient struct {
	lookupURL string
	http      *http.Client
	cache     *gocache.Cache
}

func NewClient(cfg config.BarcodeConfig) Client {
	return &httpClient{
		lookupURL: cfg.LookupURL,
		http:      &http.Client{Timeout: lookupWindow},
		cache:     gocache.New(cacheTTL, cachePurge),
	}
}

func (c *httpClient) Lookup(ctx context.Context, code string) (json.RawMessage, error) {
	if cached, ok := c.cache.Get(code); ok {
		return cached.(json.RawMessage), nil
	}

	url := c.lookupURL
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, code)
	} else {
		url = strings.TrimRight(url, "/") + "/" + code
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Upstream("barcode.Lookup", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Upstream("barcode.Lookup", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperr.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream("barcode.Lookup", fmt.Errorf("provider returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream("barcode.Lookup", err)
	}
	if !json.Valid(body) {
		return nil, apperr.Upstream("barcode.Lookup", fmt.Errorf("provider returned invalid JSON"))
	}

	raw := json.RawMessage(body)
	c.cache.Set(code, raw, gocache.DefaultExpiration)
	return raw, nil
}
