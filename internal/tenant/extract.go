// Package tenant resolves which tenant owns each incoming request and
// loads that tenant's configuration.
//
// # Resolution Design
//
// Identification and configuration are separate steps. Extraction finds a
// tenant identifier in the request by trying several sources in a fixed
// order; resolution turns that identifier into a validated TenantContext
// via the tenant directory, fronted by an in-process cache.
package tenant

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// ExtractTenantID finds the tenant identifier in a request, trying each
// source in order and returning the first hit:
//
//  1. X-Tenant-ID header
//  2. tenant_id claim in a Bearer token
//  3. Subdomain, when the host is a direct subdomain of platformDomain
//  4. tenant_id query parameter
//  5. X-API-Key prefix (the segment before the first underscore)
//
// An empty return means no source produced an identifier.
func ExtractTenantID(r *http.Request, platformDomain string) string {
	if id := r.Header.Get("X-Tenant-ID"); id != "" {
		return id
	}

	if id := tenantFromBearer(r.Header.Get("Authorization")); id != "" {
		return id
	}

	if id := tenantFromHost(r.Host, platformDomain); id != "" {
		return id
	}

	if id := r.URL.Query().Get("tenant_id"); id != "" {
		return id
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		if i := strings.Index(key, "_"); i > 0 {
			return key[:i]
		}
	}

	return ""
}

// tenantFromBearer pulls the tenant_id claim out of a Bearer token. The
// payload is decoded without signature verification; authenticity is
// enforced separately by the API key check. A malformed token yields "".
func tenantFromBearer(authorization string) string {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return ""
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ""
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return ""
	}

	var claims struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.TenantID
}

// tenantFromHost treats the first host label as the tenant when the next
// label matches the platform domain. The platform domain may be configured
// as its brand label ("plantops") or the full parent domain
// ("plantops.io"); both forms match acme.plantops.io. Hosts with fewer
// than three labels (bare domains, localhost) never match.
func tenantFromHost(host, platformDomain string) string {
	if platformDomain == "" || host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	if strings.EqualFold(labels[1], platformDomain) ||
		strings.EqualFold(strings.Join(labels[1:], "."), platformDomain) {
		return labels[0]
	}
	return ""
}
