package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/plantops/sensor-pipeline/internal/config"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Resolution failures. The API layer maps these to response codes.
var (
	// ErrTenantMissing - no source in the request produced a tenant identifier.
	ErrTenantMissing = errors.New("tenant identifier missing")

	// ErrTenantUnknown - the identifier is not in the tenant directory.
	ErrTenantUnknown = errors.New("tenant unknown")
)

// DeniedError rejects a resolved tenant for policy reasons. Throttled
// distinguishes quota rejections (retryable) from compliance rejections.
type DeniedError struct {
	TenantID  string
	Reason    string
	Throttled bool
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("tenant %s denied: %s", e.TenantID, e.Reason)
}

// TagRegionRestricted marks tenants whose traffic must stay inside their
// home region.
const TagRegionRestricted = "region-restricted"

// Directory is the upstream source of tenant configuration. Lookup returns
// ErrTenantUnknown when the directory has no such tenant.
type Directory interface {
	Lookup(ctx context.Context, tenantID string) (*types.TenantContext, error)
}

// UsageCounter tracks per-tenant request counts for quota enforcement.
type UsageCounter interface {
	IncrHourly(ctx context.Context, tenantID string, now time.Time) (int64, error)
}

// Resolver turns tenant identifiers into validated TenantContexts. Lookups
// are cached process-wide; concurrent resolves for the same tenant share a
// single directory load.
type Resolver struct {
	dir    Directory
	usage  UsageCounter
	region string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group

	now func() time.Time
}

type cacheEntry struct {
	tenant    *types.TenantContext
	expiresAt time.Time
}

// NewResolver creates a resolver backed by the given directory. region is
// this server's deployment region, used for compliance checks. usage may
// be nil, which disables quota tracking.
func NewResolver(dir Directory, usage UsageCounter, region string, logger *slog.Logger) *Resolver {
	return &Resolver{
		dir:     dir,
		usage:   usage,
		region:  region,
		logger:  logger.With("component", "tenant_resolver"),
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Resolve loads the tenant context for an identifier and enforces access
// policy. The returned context is shared; callers must not mutate it.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (*types.TenantContext, error) {
	if tenantID == "" {
		return nil, ErrTenantMissing
	}

	tenant, err := r.lookup(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if err := r.checkAccess(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// lookup serves from cache when the entry is fresh, otherwise loads from
// the directory. Entries expire a fixed interval after insertion.
func (r *Resolver) lookup(ctx context.Context, tenantID string) (*types.TenantContext, error) {
	r.mu.RLock()
	entry, ok := r.entries[tenantID]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.tenant, nil
	}

	// Collapse concurrent loads for the same tenant into one directory
	// call; every waiter receives the same result.
	v, err, _ := r.group.Do(tenantID, func() (any, error) {
		r.mu.RLock()
		entry, ok := r.entries[tenantID]
		r.mu.RUnlock()
		if ok && r.now().Before(entry.expiresAt) {
			return entry.tenant, nil
		}

		tenant, err := r.dir.Lookup(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if err := tenant.Validate(); err != nil {
			return nil, fmt.Errorf("directory returned invalid tenant: %w", err)
		}

		r.mu.Lock()
		r.entries[tenantID] = cacheEntry{
			tenant:    tenant,
			expiresAt: r.now().Add(config.TenantContextTTL),
		}
		r.mu.Unlock()

		r.logger.Debug("tenant context loaded",
			"tenant_id", tenant.TenantID,
			"deployment_mode", tenant.DeploymentMode,
			"tier", tenant.Tier)
		return tenant, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.TenantContext), nil
}

// checkAccess enforces compliance and quota policy on every request, even
// when the context came from cache.
func (r *Resolver) checkAccess(ctx context.Context, tenant *types.TenantContext) error {
	for _, tag := range tenant.ComplianceTags {
		if tag == TagRegionRestricted && tenant.Region != "" && tenant.Region != r.region {
			return &DeniedError{
				TenantID: tenant.TenantID,
				Reason:   fmt.Sprintf("region-restricted tenant served from %s, home region %s", r.region, tenant.Region),
			}
		}
	}

	if r.usage == nil {
		return nil
	}
	count, err := r.usage.IncrHourly(ctx, tenant.TenantID, r.now())
	if err != nil {
		// Quota tracking is advisory. A counter outage must not block
		// ingest.
		r.logger.Warn("usage counter unavailable", "tenant_id", tenant.TenantID, "error", err)
		return nil
	}
	if tenant.Features.APIRateLimit > 0 && count > int64(tenant.Features.APIRateLimit) {
		return &DeniedError{
			TenantID:  tenant.TenantID,
			Reason:    fmt.Sprintf("hourly request quota %d exceeded", tenant.Features.APIRateLimit),
			Throttled: true,
		}
	}
	return nil
}

// Invalidate drops a tenant's cached context so the next resolve reloads
// from the directory.
func (r *Resolver) Invalidate(tenantID string) {
	r.mu.Lock()
	delete(r.entries, tenantID)
	r.mu.Unlock()
}

// CachedCount reports how many tenant contexts are currently cached.
func (r *Resolver) CachedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
