package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/cache"
	httpadapter "github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/http"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/metrics"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

const (
	adminSecret = "router-test-secret"
	testKey     = "ABCD-EFGH-JKLM-NPQR"
)

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	repos  *memory.Repositories
	prom   *metrics.Prom
}

func newTestServer(t *testing.T, mutate func(*application.Dependencies)) *testServer {
	t.Helper()
	verifier, err := security.NewHMACTokenVerifier(adminSecret, "")
	require.NoError(t, err)

	repos := memory.NewRepositories()
	prom := metrics.NewProm("m91_test")
	deps := application.Dependencies{
		Licenses:    repos.Licenses,
		Activations: repos.Activations,
		Locker:      repos.Locker,
		Outbox:      repos.Outbox,
		Tokens:      verifier,
		Metrics:     prom,
		Clock:       func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc := application.NewService(deps)
	handler := httpadapter.NewHandler(svc, httpadapter.Options{
		Metrics:        prom,
		MetricsHandler: prom.Handler(),
	})
	return &testServer{router: httpadapter.NewRouter(handler), repos: repos, prom: prom}
}

func (s *testServer) seed(t *testing.T, key string, max int, domains ...string) {
	t.Helper()
	_, err := s.repos.Licenses.Create(context.Background(), ports.CreateLicenseParams{
		LicenseKey:     key,
		IsActive:       true,
		AllowedDomains: domains,
		MaxActivations: max,
		CreatedAt:      fixedNow,
	})
	require.NoError(t, err)
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "198.51.100.20:4312"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func adminToken(t *testing.T, role string) map[string]string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "admin-1",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(adminSecret))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + raw}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	require.Equal(t, "success", env.Status)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) contracts.ErrorResponse {
	t.Helper()
	var out contracts.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestProbes(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := srv.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	rr = srv.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	srv.do(t, http.MethodPost, "/v1/licenses/validate", `{"license_key":"`+testKey+`","domain":"a.com"}`, nil)
	rr = srv.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "m91_test_license_decisions_total")
	assert.Contains(t, rr.Body.String(), `route="/v1/licenses/validate"`)
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	svc := application.NewService(application.Dependencies{})
	handler := httpadapter.NewHandler(svc, httpadapter.Options{
		Ready: func(context.Context) error { return context.DeadlineExceeded },
	})
	rr := httptest.NewRecorder()
	httpadapter.NewRouter(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPublicFlow(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.seed(t, testKey, 1)
	body := func(host string) string {
		return `{"license_key":"` + testKey + `","domain":"` + host + `"}`
	}

	rr := srv.do(t, http.MethodPost, "/v1/licenses/validate", body("a.com"), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var validation application.ValidateResult
	decodeData(t, rr, &validation)
	assert.True(t, validation.IsValid)

	rr = srv.do(t, http.MethodPost, "/v1/licenses/activate", body("a.com"), map[string]string{
		"X-Forwarded-For": "203.0.113.9, 10.0.0.1",
		"User-Agent":      "wp-plugin/2.1",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var action application.ActionResult
	decodeData(t, rr, &action)
	assert.True(t, action.Success)
	assert.Equal(t, application.ActionActivated, action.Action)

	activations, err := srv.repos.Activations.List(context.Background(), ports.ActivationFilter{})
	require.NoError(t, err)
	require.Len(t, activations, 1)
	assert.Equal(t, "203.0.113.9", activations[0].IPAddress)
	assert.Equal(t, "wp-plugin/2.1", activations[0].UserAgent)

	rr = srv.do(t, http.MethodPost, "/v1/licenses/activate", body("b.com"), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	action = application.ActionResult{}
	decodeData(t, rr, &action)
	assert.False(t, action.Success)
	assert.Equal(t, "max_activations_reached", string(action.Reason))

	rr = srv.do(t, http.MethodPost, "/v1/licenses/deactivate", body("a.com"), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	action = application.ActionResult{}
	decodeData(t, rr, &action)
	assert.True(t, action.Success)
	assert.Equal(t, application.ActionDeactivated, action.Action)
}

func TestUnknownKeyIsNotAnHTTPError(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := srv.do(t, http.MethodPost, "/v1/licenses/validate", `{"license_key":"ZZZZ-ZZZZ-ZZZZ-ZZZZ","domain":"a.com"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var validation application.ValidateResult
	decodeData(t, rr, &validation)
	assert.False(t, validation.IsValid)
	assert.Equal(t, "key_not_found", string(validation.Reason))
}

func TestActivateAcceptsLegacyKeyField(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.seed(t, testKey, 2)

	rr := srv.do(t, http.MethodPost, "/v1/licenses/activate", `{"licenseKey":"`+testKey+`","domain":"legacy.com"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var action application.ActionResult
	decodeData(t, rr, &action)
	assert.True(t, action.Success)

	activations, err := srv.repos.Activations.List(context.Background(), ports.ActivationFilter{})
	require.NoError(t, err)
	require.Len(t, activations, 1)
	assert.Equal(t, "198.51.100.20", activations[0].IPAddress)
	assert.Equal(t, "Unknown", activations[0].UserAgent)
}

func TestPublicRequestErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	cases := []struct {
		name string
		body string
	}{
		{name: "missing domain", body: `{"license_key":"` + testKey + `"}`},
		{name: "missing key", body: `{"domain":"a.com"}`},
		{name: "unknown field", body: `{"license_key":"` + testKey + `","domain":"a.com","extra":1}`},
		{name: "not json", body: `license`},
		{name: "two values", body: `{"license_key":"k","domain":"a.com"}{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := srv.do(t, http.MethodPost, "/v1/licenses/activate", tc.body, nil)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			out := decodeError(t, rr)
			assert.Equal(t, "error", out.Status)
			assert.Equal(t, "VALIDATION_ERROR", out.Code)
			assert.Equal(t, "VALIDATION_ERROR", out.Error.Code)
			assert.NotEmpty(t, out.RequestID)
		})
	}
}

type downLocker struct{}

func (downLocker) WithLicenseLock(context.Context, string, func(context.Context, domain.License, ports.LicenseTx) error) error {
	return fmt.Errorf("%w: dial tcp 10.0.0.5:5432: connection refused", domain.ErrStorageUnavailable)
}

func TestStorageOutageIsServiceUnavailable(t *testing.T) {
	srv := newTestServer(t, func(d *application.Dependencies) { d.Locker = downLocker{} })
	srv.seed(t, testKey, 2)

	rr := srv.do(t, http.MethodPost, "/v1/licenses/activate", `{"license_key":"`+testKey+`","domain":"a.com"}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	out := decodeError(t, rr)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", out.Error.Code)
	assert.NotContains(t, out.Error.Message, "10.0.0.5")
}

func TestPublicRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	srv := newTestServer(t, func(d *application.Dependencies) {
		d.Cache = cache.NewRedisCache(client)
		d.Config.PublicRateLimitPerMinute = 2
	})
	body := `{"license_key":"` + testKey + `","domain":"a.com"}`

	for i := 0; i < 2; i++ {
		rr := srv.do(t, http.MethodPost, "/v1/licenses/validate", body, nil)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := srv.do(t, http.MethodPost, "/v1/licenses/validate", body, nil)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rr).Code)

	rr = srv.do(t, http.MethodPost, "/v1/licenses/validate", body, map[string]string{"X-Real-IP": "192.0.2.44"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAdminRequiresAdminRole(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := srv.do(t, http.MethodGet, "/v1/admin/licenses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/admin/licenses", "", map[string]string{"Authorization": "Bearer not-a-jwt"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/admin/licenses", "", adminToken(t, "creator"))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/admin/licenses", "", adminToken(t, "super_admin"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAdminLicenseLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	auth := adminToken(t, "admin")

	rr := srv.do(t, http.MethodPost, "/v1/admin/licenses",
		`{"organization_id":"org-1","product_id":"prod-1","allowed_domains":["*.shop.com"],"max_activations":2}`, auth)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		LicenseID      string   `json:"license_id"`
		LicenseKey     string   `json:"license_key"`
		IsActive       bool     `json:"is_active"`
		AllowedDomains []string `json:"allowed_domains"`
	}
	decodeData(t, rr, &created)
	assert.Regexp(t, `^[A-Z0-9]{4}(-[A-Z0-9]{4}){3}$`, created.LicenseKey)
	assert.True(t, created.IsActive)
	assert.Equal(t, []string{"*.shop.com"}, created.AllowedDomains)

	rr = srv.do(t, http.MethodPost, "/v1/licenses/activate", `{"license_key":"`+created.LicenseKey+`","domain":"eu.shop.com"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/admin/licenses/"+created.LicenseID, "", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	var detail struct {
		ActiveActivations int `json:"active_activations"`
	}
	decodeData(t, rr, &detail)
	assert.Equal(t, 1, detail.ActiveActivations)

	rr = srv.do(t, http.MethodGet, "/v1/admin/licenses/by-key/"+created.LicenseKey, "", auth)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(t, http.MethodPatch, "/v1/admin/licenses/"+created.LicenseID, `{"max_activations":5}`, auth)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = srv.do(t, http.MethodPost, "/v1/admin/licenses/"+created.LicenseID+"/deactivate", "", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = srv.do(t, http.MethodPost, "/v1/licenses/validate", `{"license_key":"`+created.LicenseKey+`","domain":"eu.shop.com"}`, nil)
	var validation application.ValidateResult
	decodeData(t, rr, &validation)
	assert.False(t, validation.IsValid)
	assert.Equal(t, "license_inactive", string(validation.Reason))

	rr = srv.do(t, http.MethodGet, "/v1/admin/licenses/"+created.LicenseID+"/activations?active_only=true", "", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	var list contracts.ListResponse
	decodeData(t, rr, &list)
	assert.Equal(t, 1, list.Count)

	rr = srv.do(t, http.MethodDelete, "/v1/admin/licenses/"+created.LicenseID, "", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = srv.do(t, http.MethodGet, "/v1/admin/licenses/"+created.LicenseID, "", auth)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/admin/activations", "", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	list = contracts.ListResponse{}
	decodeData(t, rr, &list)
	assert.Equal(t, 0, list.Count)
}

func TestAdminValidation(t *testing.T) {
	srv := newTestServer(t, nil)
	auth := adminToken(t, "admin")

	rr := srv.do(t, http.MethodPost, "/v1/admin/licenses", `{"max_activations":0}`, auth)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr).Message, "max_activations")

	rr = srv.do(t, http.MethodPost, "/v1/admin/licenses", `{"max_activations":1,"allowed_domains":["bad domain"]}`, auth)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeError(t, rr).Message, "allowed_domains")

	rr = srv.do(t, http.MethodGet, "/v1/admin/licenses/not-a-uuid", "", auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodGet, "/v1/admin/licenses?is_active=maybe", "", auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminGenerateKey(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := srv.do(t, http.MethodPost, "/v1/admin/licenses/generate-key", "", adminToken(t, "admin"))
	require.Equal(t, http.StatusOK, rr.Code)
	var out application.GeneratedKeyResponse
	decodeData(t, rr, &out)
	assert.Regexp(t, `^[A-Z0-9]{4}(-[A-Z0-9]{4}){3}$`, out.LicenseKey)
}
