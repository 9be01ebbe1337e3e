package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// DirectoryConfig holds configuration for the tenant directory client.
type DirectoryConfig struct {
	BaseURL   string        // Base URL (e.g., "https://tenants.plantops.io")
	AuthToken string        // Bearer token for authentication
	Timeout   time.Duration // HTTP timeout (default: 10s)
	RateLimit int           // Requests per minute (default: 120)
}

// HTTPDirectory is a client for the tenant directory service.
type HTTPDirectory struct {
	baseURL     string
	httpClient  *http.Client
	authToken   string
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewHTTPDirectory creates a new tenant directory client.
func NewHTTPDirectory(cfg DirectoryConfig, logger *slog.Logger) *HTTPDirectory {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = config.DirectoryRequestTimeout
	}

	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = config.DirectoryRequestsPerMinute
	}

	return &HTTPDirectory{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		authToken:   cfg.AuthToken,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rateLimit)/60.0), 1),
		logger:      logger.With("component", "tenant_directory"),
	}
}

// Lister enumerates every tenant a directory knows about. Directories that
// cannot enumerate simply do not implement it; callers that need the full
// population type-assert and degrade when it is absent.
type Lister interface {
	TenantIDs(ctx context.Context) ([]string, error)
}

// directoryResponse is the directory service's response envelope.
type directoryResponse struct {
	Data  *types.TenantContext `json:"data"`
	Error string               `json:"error,omitempty"`
}

// directoryListResponse is the enumeration envelope.
type directoryListResponse struct {
	Data  []string `json:"data"`
	Error string   `json:"error,omitempty"`
}

// Lookup fetches a tenant's configuration from the directory service.
func (d *HTTPDirectory) Lookup(ctx context.Context, tenantID string) (*types.TenantContext, error) {
	if err := d.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := d.baseURL + "/tenants/" + url.PathEscape(tenantID)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", tenantID, ErrTenantUnknown)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var dirResp directoryResponse
	if err := json.Unmarshal(body, &dirResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if dirResp.Error != "" {
		return nil, fmt.Errorf("directory returned error: %s", dirResp.Error)
	}
	if dirResp.Data == nil {
		return nil, fmt.Errorf("%s: %w", tenantID, ErrTenantUnknown)
	}

	d.logger.Debug("directory lookup", "tenant_id", tenantID)
	return dirResp.Data, nil
}

// TenantIDs enumerates every tenant the directory service serves.
func (d *HTTPDirectory) TenantIDs(ctx context.Context) ([]string, error) {
	if err := d.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", d.baseURL+"/tenants", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var listResp directoryListResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if listResp.Error != "" {
		return nil, fmt.Errorf("directory returned error: %s", listResp.Error)
	}
	return listResp.Data, nil
}

// StaticDirectory serves tenant configuration from a YAML inventory file.
// Intended for development and single-plant installs without a directory
// service.
type StaticDirectory struct {
	tenants map[string]*types.TenantContext
}

// NewStaticDirectory loads a tenant inventory file:
//
//	tenants:
//	  - tenant_id: acme
//	    deployment_mode: shared
//	    tier: professional
//	    data:
//	      row_level_security: true
func NewStaticDirectory(path string, logger *slog.Logger) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tenant file: %w", err)
	}

	var doc struct {
		Tenants []*types.TenantContext `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing tenant file: %w", err)
	}

	tenants := make(map[string]*types.TenantContext, len(doc.Tenants))
	for _, t := range doc.Tenants {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("tenant file: %w", err)
		}
		if _, dup := tenants[t.TenantID]; dup {
			return nil, fmt.Errorf("tenant file: duplicate tenant %s", t.TenantID)
		}
		tenants[t.TenantID] = t
	}

	logger.Info("loaded static tenant inventory", "path", path, "tenants", len(tenants))
	return &StaticDirectory{tenants: tenants}, nil
}

// Lookup returns the tenant from the inventory.
func (d *StaticDirectory) Lookup(ctx context.Context, tenantID string) (*types.TenantContext, error) {
	t, ok := d.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", tenantID, ErrTenantUnknown)
	}
	return t, nil
}

// TenantIDs enumerates the inventory in stable order.
func (d *StaticDirectory) TenantIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(d.tenants))
	for id := range d.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
