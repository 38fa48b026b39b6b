package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/audi0417/Patient-CRM-sub002/internal/access"
	"github.com/audi0417/Patient-CRM-sub002/internal/audit"
	"github.com/audi0417/Patient-CRM-sub002/internal/fieldcrypt"
	"github.com/audi0417/Patient-CRM-sub002/internal/query"
	"github.com/audi0417/Patient-CRM-sub002/internal/repository"
	"github.com/audi0417/Patient-CRM-sub002/internal/tenant"
)

type fakeExecutor struct {
	queries   []string
	args      [][]any
	oneResult map[string]any
	allResult []map[string]any
	affected  int64
}

func (f *fakeExecutor) Execute(_ context.Context, q string, args ...any) (int64, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	return f.affected, nil
}

func (f *fakeExecutor) QueryOne(_ context.Context, q string, args ...any) (map[string]any, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	return f.oneResult, nil
}

func (f *fakeExecutor) QueryAll(_ context.Context, q string, args ...any) ([]map[string]any, error) {
	f.queries = append(f.queries, q)
	f.args = append(f.args, args)
	return f.allResult, nil
}

type fakeOrgStore struct {
	orgs map[string]*tenant.Organization
	err  error
}

func (s *fakeOrgStore) OrganizationByID(_ context.Context, id string) (*tenant.Organization, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.orgs[id], nil
}

type fakeExecSource struct {
	exec     *fakeExecutor
	released int
}

func (s *fakeExecSource) Acquire(_ context.Context, _ string) (query.Executor, func(), error) {
	return s.exec, func() { s.released++ }, nil
}

type captureEmitter struct {
	events []audit.Event
}

func (c *captureEmitter) Emit(_ context.Context, event audit.Event) {
	c.events = append(c.events, event)
}

type testEnv struct {
	router  *Router
	exec    *fakeExecutor
	source  *fakeExecSource
	orgs    *fakeOrgStore
	crypt   *fieldcrypt.Service
	emitter *captureEmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	key, err := fieldcrypt.NormalizeMasterKey("httpapi-test-master-secret-0123456789ab")
	require.NoError(t, err)
	crypt, err := fieldcrypt.NewService(key, logger)
	require.NoError(t, err)

	exec := &fakeExecutor{}
	source := &fakeExecSource{exec: exec}
	orgs := &fakeOrgStore{orgs: map[string]*tenant.Organization{
		"org-1": {ID: "org-1", Name: "Sunrise Clinic", Plan: "pro", IsActive: true},
		"org-2": {ID: "org-2", Name: "Closed Clinic", Plan: "free", IsActive: false},
		"org-3": {ID: "org-3", Name: "Small Clinic", Plan: "free", IsActive: true,
			Limits: tenant.Limits{MaxPatients: 1}},
	}}

	resolver := tenant.NewResolver(orgs, source, query.DialectPostgres, logger)
	matrix := access.NewMatrix(access.DefaultRegistry(), logger)
	emitter := &captureEmitter{}
	middleware := NewMiddleware(resolver, matrix, emitter, logger)

	handler := NewPatientHandler(repository.NewPatientRepository(crypt, logger), logger)
	router := NewRouter(logger)
	router.RegisterPatientRoutes(middleware, handler)
	router.RegisterHealthRoute()

	return &testEnv{router: router, exec: exec, source: source, orgs: orgs, crypt: crypt, emitter: emitter}
}

func doRequest(env *testEnv, method, path, role, org, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		req.Header.Set("X-User-Id", "user-1")
		req.Header.Set("X-User-Role", role)
	}
	if org != "" {
		req.Header.Set("X-Organization-Id", org)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result[json.RawMessage] {
	t.Helper()
	var result Result[json.RawMessage]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestRequestWithoutIdentityRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/api/v1/patients", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	result := decodeResult(t, rec)
	assert.Equal(t, ResultUnauthenticated, result.Code)
	// 解析失败时不允许碰数据库
	assert.Empty(t, env.exec.queries)
}

func TestRequestWithInactiveOrganizationRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/api/v1/patients", "ADMIN", "org-2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.exec.queries)
}

func TestResolverFailureReturnsGenericError(t *testing.T) {
	env := newTestEnv(t)
	env.orgs.err = &testDriverError{}

	rec := doRequest(env, http.MethodGet, "/api/v1/patients", "ADMIN", "org-1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// 驱动错误细节不回给客户端
	result := decodeResult(t, rec)
	assert.Equal(t, "internal error", result.Message)
	assert.NotContains(t, rec.Body.String(), "pq: connection refused")
}

type testDriverError struct{}

func (*testDriverError) Error() string { return "pq: connection refused" }

func TestTenantConnectionReleasedAfterRequest(t *testing.T) {
	env := newTestEnv(t)
	env.exec.allResult = []map[string]any{}

	doRequest(env, http.MethodGet, "/api/v1/patients", "ADMIN", "org-1", "")
	assert.Equal(t, 1, env.source.released)

	// 拒绝路径没有取过连接，也就没有要释放的
	doRequest(env, http.MethodGet, "/api/v1/patients", "", "", "")
	assert.Equal(t, 1, env.source.released)
}

func TestListDecryptsAndScopesToOrganization(t *testing.T) {
	env := newTestEnv(t)

	encrypted, _, err := env.crypt.EncryptFields(map[string]any{
		"id":             "p-1",
		"firstName":      "Mei",
		"medicalHistory": "高血壓",
	}, repository.EncryptedPatientFields, "org-1")
	require.NoError(t, err)
	env.exec.allResult = []map[string]any{encrypted}

	rec := doRequest(env, http.MethodGet, "/api/v1/patients", "ADMIN", "org-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// 列表语句带租户条件且机构 id 参数化
	require.NotEmpty(t, env.exec.queries)
	assert.Contains(t, env.exec.queries[0], `"organizationId" = $1`)
	assert.Equal(t, "org-1", env.exec.args[0][0])

	var rows []map[string]any
	result := decodeResult(t, rec)
	require.NoError(t, json.Unmarshal(result.Result, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "高血壓", rows[0]["medicalHistory"])
}

func TestListFiltersRestrictedFieldsForUserRole(t *testing.T) {
	env := newTestEnv(t)

	encrypted, _, err := env.crypt.EncryptFields(map[string]any{
		"id":             "p-1",
		"firstName":      "Mei",
		"phone":          "0912-345-678",
		"nationalId":     "A123456789",
		"medicalHistory": "高血壓",
	}, repository.EncryptedPatientFields, "org-1")
	require.NoError(t, err)
	env.exec.allResult = []map[string]any{encrypted}

	rec := doRequest(env, http.MethodGet, "/api/v1/patients", "USER", "org-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []map[string]any
	result := decodeResult(t, rec)
	require.NoError(t, json.Unmarshal(result.Result, &rows))
	require.Len(t, rows, 1)

	// 只读覆盖：病史明文可见
	assert.Equal(t, "高血壓", rows[0]["medicalHistory"])
	// Confidential/Restricted 字段被剔除
	assert.NotContains(t, rows[0], "phone")
	assert.NotContains(t, rows[0], "nationalId")
}

func TestSearchRoute(t *testing.T) {
	env := newTestEnv(t)
	env.exec.allResult = []map[string]any{{"id": "p-1", "status": "active", "nationalId": "A123456789"}}

	rec := doRequest(env, http.MethodGet, "/api/v1/patients/search?status=active&lastName=Chen", "USER", "org-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// 条件参数化且语句以租户条件开头
	require.NotEmpty(t, env.exec.queries)
	assert.Contains(t, env.exec.queries[0], `"organizationId" = $1`)
	assert.Contains(t, env.exec.queries[0], `"lastName" = $2`)
	assert.Contains(t, env.exec.queries[0], `"status" = $3`)
	assert.Equal(t, []any{"org-1", "Chen", "active"}, env.exec.args[0])

	// 响应仍经过字段过滤
	var rows []map[string]any
	result := decodeResult(t, rec)
	require.NoError(t, json.Unmarshal(result.Result, &rows))
	require.Len(t, rows, 1)
	assert.NotContains(t, rows[0], "nationalId")
}

func TestSearchRequiresConditions(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/api/v1/patients/search", "USER", "org-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.exec.queries)
}

func TestCreateForcesBoundOrganization(t *testing.T) {
	env := newTestEnv(t)
	env.exec.oneResult = map[string]any{"id": "p-1", "firstName": "Mei"}

	body := `{"firstName":"Mei","organizationId":"org-evil"}`
	rec := doRequest(env, http.MethodPost, "/api/v1/patients", "ADMIN", "org-1", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotEmpty(t, env.exec.args)
	assert.Contains(t, env.exec.args[0], "org-1")
	assert.NotContains(t, env.exec.args[0], "org-evil")
}

func TestCreateRejectedWhenPatientLimitReached(t *testing.T) {
	env := newTestEnv(t)
	// org-3 的配额是 1，已有 1 条记录
	env.exec.oneResult = map[string]any{"count": int64(1)}

	rec := doRequest(env, http.MethodPost, "/api/v1/patients", "ADMIN", "org-3", `{"firstName":"Mei"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 只有计数语句，没有 INSERT
	require.Len(t, env.exec.queries, 1)
	assert.Contains(t, env.exec.queries[0], "SELECT COUNT(*)")
}

func TestRevealFieldRoute(t *testing.T) {
	env := newTestEnv(t)

	encrypted, _, err := env.crypt.EncryptFields(map[string]any{
		"id": "p-1", "nationalId": "A123456789",
	}, repository.EncryptedPatientFields, "org-1")
	require.NoError(t, err)
	env.exec.oneResult = encrypted

	rec := doRequest(env, http.MethodGet, "/api/v1/patients/p-1/reveal?field=nationalId", "ADMIN", "org-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]string
	result := decodeResult(t, rec)
	require.NoError(t, json.Unmarshal(result.Result, &payload))
	assert.Equal(t, "A123456789", payload["value"])
}

func TestRevealFieldDeniedForUserRole(t *testing.T) {
	env := newTestEnv(t)

	// nationalId 为 Restricted 且无覆盖：USER 拒绝，且不碰数据库
	rec := doRequest(env, http.MethodGet, "/api/v1/patients/p-1/reveal?field=nationalId", "USER", "org-1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.exec.queries)

	last := env.emitter.events[len(env.emitter.events)-1]
	assert.Equal(t, audit.OutcomeDenied, last.Outcome)
	assert.Equal(t, []string{"nationalId"}, last.DeniedFields)
}

func TestRevealFieldRejectsUnknownField(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/api/v1/patients/p-1/reveal?field=password", "ADMIN", "org-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.exec.queries)
}

func TestUserCannotDeletePatients(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodDelete, "/api/v1/patients/p-1", "USER", "org-1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, env.exec.queries)

	// 拒绝也会留下审计事件
	require.NotEmpty(t, env.emitter.events)
	last := env.emitter.events[len(env.emitter.events)-1]
	assert.Equal(t, audit.OutcomeDenied, last.Outcome)
	assert.Equal(t, "patients", last.Resource)
}

func TestDeleteForeignOrgLooksLikeNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.exec.affected = 0

	rec := doRequest(env, http.MethodDelete, "/api/v1/patients/p-other", "ADMIN", "org-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(env, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
