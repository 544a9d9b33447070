// Tenant scoping for row-partitioned clinical data.
//
// Every clinic (tenant) shares one schema; rows carry a nullable tenant_id
// column. A row with NULL tenant_id belongs to the legacy/global partition
// that predates multi-tenancy and is visible only to requests that resolve
// no tenant. Queries against tenant-partitioned tables must apply a Scope —
// skipping it leaks rows across clinics.
package db

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const scopeKey contextKey = "tenant_scope"

var tenantIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type scopeKind int

const (
	scopeLegacy scopeKind = iota // tenant_id IS NULL
	scopeTenant                  // tenant_id = <id>
	scopeAny                     // no tenant condition (batch/admin use only)
)

// Scope restricts a query to one tenant partition.
type Scope struct {
	kind   scopeKind
	tenant string
}

// TenantScope scopes queries to a single tenant's rows.
func TenantScope(tenantID string) Scope {
	if tenantID == "" {
		return LegacyScope()
	}
	return Scope{kind: scopeTenant, tenant: tenantID}
}

// LegacyScope scopes queries to rows with no tenant (the pre-tenancy
// partition). This is the scope for requests that resolve no tenant.
func LegacyScope() Scope {
	return Scope{kind: scopeLegacy}
}

// AnyScope matches every tenant partition. Only the end-of-day batch closer
// running in all-tenants mode may use it; request handlers must not.
func AnyScope() Scope {
	return Scope{kind: scopeAny}
}

// TenantID returns the scoped tenant identifier and whether one is set.
func (s Scope) TenantID() (string, bool) {
	if s.kind == scopeTenant {
		return s.tenant, true
	}
	return "", false
}

// IsAny reports whether the scope matches all tenant partitions.
func (s Scope) IsAny() bool { return s.kind == scopeAny }

// Cond appends the scope's SQL condition for the given column to args and
// returns the clause (including a leading " AND "). AnyScope contributes
// nothing. The argument placeholder continues from len(*args).
func (s Scope) Cond(col string, args *[]interface{}) string {
	switch s.kind {
	case scopeTenant:
		*args = append(*args, s.tenant)
		return " AND " + col + " = $" + strconv.Itoa(len(*args))
	case scopeLegacy:
		return " AND " + col + " IS NULL"
	default:
		return ""
	}
}

// TenantValue returns the tenant id as a nullable value for INSERTs.
func (s Scope) TenantValue() *string {
	if s.kind == scopeTenant {
		t := s.tenant
		return &t
	}
	return nil
}

// CounterKey returns the partition key used by per-tenant counters. The
// legacy partition shares the empty key.
func (s Scope) CounterKey() string {
	if s.kind == scopeTenant {
		return s.tenant
	}
	return ""
}

// TenantMiddleware resolves the acting tenant for a request and stores the
// resulting Scope in the request context. Resolution order: JWT claim (set by
// the auth middleware) → X-Tenant-ID header → subdomain → tenant_id query
// param → configured default. Absence of a resolvable tenant is not an
// error: the request operates on the legacy partition.
func TenantMiddleware(defaultTenant string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := extractTenantID(c, defaultTenant)

			if tenantID != "" && !tenantIDPattern.MatchString(tenantID) {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid tenant identifier")
			}

			scope := LegacyScope()
			if tenantID != "" {
				scope = TenantScope(tenantID)
			}

			ctx := context.WithValue(c.Request().Context(), scopeKey, scope)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("tenant_id", tenantID)

			return next(c)
		}
	}
}

func extractTenantID(c echo.Context, defaultTenant string) string {
	// 1. Check JWT claim (set by auth middleware)
	if tid, ok := c.Get("jwt_tenant_id").(string); ok && tid != "" {
		return tid
	}

	// 2. Check X-Tenant-ID header
	if tid := c.Request().Header.Get("X-Tenant-ID"); tid != "" {
		return tid
	}

	// 3. Check subdomain (clinic-a.example.com → clinic-a)
	if tid := subdomain(c.Request().Host); tid != "" {
		return tid
	}

	// 4. Check query parameter
	if tid := c.QueryParam("tenant_id"); tid != "" {
		return tid
	}

	return defaultTenant
}

// subdomain extracts the left-most label from hosts with at least three
// labels. Bare domains, localhost and IPs resolve to "".
func subdomain(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	label := parts[0]
	if label == "www" || label == "api" {
		return ""
	}
	// dotted IPv4 looks like a 4-label host; never treat it as a tenant
	if strings.Trim(host, "0123456789.") == "" {
		return ""
	}
	return label
}

// ScopeFromContext retrieves the tenant scope resolved for this request.
// Code paths that never went through TenantMiddleware (CLI, tests) get the
// legacy scope.
func ScopeFromContext(ctx context.Context) Scope {
	if s, ok := ctx.Value(scopeKey).(Scope); ok {
		return s
	}
	return LegacyScope()
}

// WithScope returns a context carrying the given scope. Used by the cron
// surface, which resolves its tenant from query parameters rather than the
// request middleware.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}
