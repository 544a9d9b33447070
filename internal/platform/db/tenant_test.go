package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestScopeCond(t *testing.T) {
	t.Run("tenant scope appends equality condition", func(t *testing.T) {
		args := []interface{}{"seed"}
		cond := TenantScope("clinic-a").Cond("q.tenant_id", &args)
		if cond != " AND q.tenant_id = $2" {
			t.Errorf("expected placeholder $2 condition, got %q", cond)
		}
		if len(args) != 2 || args[1] != "clinic-a" {
			t.Errorf("expected tenant appended to args, got %v", args)
		}
	})

	t.Run("legacy scope matches null rows without args", func(t *testing.T) {
		args := []interface{}{}
		cond := LegacyScope().Cond("tenant_id", &args)
		if cond != " AND tenant_id IS NULL" {
			t.Errorf("got %q", cond)
		}
		if len(args) != 0 {
			t.Errorf("legacy scope must not add args, got %v", args)
		}
	})

	t.Run("any scope contributes nothing", func(t *testing.T) {
		args := []interface{}{}
		if cond := AnyScope().Cond("tenant_id", &args); cond != "" {
			t.Errorf("got %q", cond)
		}
	})

	t.Run("empty tenant id collapses to legacy", func(t *testing.T) {
		args := []interface{}{}
		if cond := TenantScope("").Cond("tenant_id", &args); cond != " AND tenant_id IS NULL" {
			t.Errorf("got %q", cond)
		}
	})
}

func TestScopeTenantValue(t *testing.T) {
	if v := TenantScope("clinic-a").TenantValue(); v == nil || *v != "clinic-a" {
		t.Errorf("expected pointer to clinic-a, got %v", v)
	}
	if v := LegacyScope().TenantValue(); v != nil {
		t.Errorf("legacy scope must insert NULL tenant, got %v", *v)
	}
}

func TestScopeCounterKey(t *testing.T) {
	if k := TenantScope("clinic-a").CounterKey(); k != "clinic-a" {
		t.Errorf("got %q", k)
	}
	if k := LegacyScope().CounterKey(); k != "" {
		t.Errorf("legacy partition must use the empty counter key, got %q", k)
	}
}

func resolveTenant(t *testing.T, req *http.Request, setup func(echo.Context), defaultTenant string) (Scope, int) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}

	var got Scope
	h := TenantMiddleware(defaultTenant)(func(c echo.Context) error {
		got = ScopeFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	err := h(c)
	if err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			return got, he.Code
		}
		t.Fatalf("unexpected error: %v", err)
	}
	return got, rec.Code
}

func TestTenantMiddlewareResolutionOrder(t *testing.T) {
	t.Run("jwt claim wins over header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "from-header")
		scope, _ := resolveTenant(t, req, func(c echo.Context) {
			c.Set("jwt_tenant_id", "from-jwt")
		}, "")
		if tid, ok := scope.TenantID(); !ok || tid != "from-jwt" {
			t.Errorf("expected from-jwt, got %q (ok=%v)", tid, ok)
		}
	})

	t.Run("header wins over query param", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?tenant_id=from-query", nil)
		req.Header.Set("X-Tenant-ID", "from-header")
		scope, _ := resolveTenant(t, req, nil, "")
		if tid, _ := scope.TenantID(); tid != "from-header" {
			t.Errorf("got %q", tid)
		}
	})

	t.Run("subdomain resolves tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "clinic-a.clinicdesk.io"
		scope, _ := resolveTenant(t, req, nil, "")
		if tid, _ := scope.TenantID(); tid != "clinic-a" {
			t.Errorf("got %q", tid)
		}
	})

	t.Run("no tenant resolves legacy scope", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "localhost:8000"
		scope, code := resolveTenant(t, req, nil, "")
		if code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if _, ok := scope.TenantID(); ok {
			t.Error("expected legacy scope when nothing resolves a tenant")
		}
		if scope.IsAny() {
			t.Error("absence of tenant must scope to legacy rows, not all rows")
		}
	})

	t.Run("default tenant applies last", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "localhost:8000"
		scope, _ := resolveTenant(t, req, nil, "fallback")
		if tid, _ := scope.TenantID(); tid != "fallback" {
			t.Errorf("got %q", tid)
		}
	})

	t.Run("malformed tenant id rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "clinic a; DROP TABLE")
		_, code := resolveTenant(t, req, nil, "")
		if code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", code)
		}
	})

	t.Run("www subdomain ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = "www.clinicdesk.io"
		scope, _ := resolveTenant(t, req, nil, "")
		if _, ok := scope.TenantID(); ok {
			t.Error("www must not resolve as a tenant")
		}
	})
}

func TestScopeFromContextDefault(t *testing.T) {
	scope := ScopeFromContext(context.Background())
	if _, ok := scope.TenantID(); ok || scope.IsAny() {
		t.Error("bare context must yield the legacy scope")
	}
}

func TestWithScope(t *testing.T) {
	ctx := WithScope(context.Background(), AnyScope())
	if !ScopeFromContext(ctx).IsAny() {
		t.Error("expected any scope round-trip")
	}
}
