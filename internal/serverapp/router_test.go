package serverapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridquery/internal/config"
	"gridquery/internal/dbexec"
	"gridquery/internal/gridaction"
	"gridquery/internal/schema"
	"gridquery/internal/store/memstore"
)

const routerSecret = "0123456789abcdef0123456789abcdef"

func blogSchema() *schema.Schema {
	s := &schema.Schema{Tables: []schema.Table{
		{Name: "posts", Columns: []schema.Column{
			{Name: "id", DataType: "int", IsPrimaryKey: true, IsAutoIncrement: true},
			{Name: "title", DataType: "varchar", ColumnType: "varchar(40)"},
		}},
		{
			Name: "comments",
			Columns: []schema.Column{
				{Name: "id", DataType: "int", IsPrimaryKey: true, IsAutoIncrement: true},
				{Name: "post_id", DataType: "int"},
				{Name: "body", DataType: "varchar", ColumnType: "varchar(80)"},
			},
			ForeignKeys: []schema.ForeignKey{
				{ColumnName: "post_id", ReferencedTable: "posts", ReferencedColumn: "id", ConstraintName: "fk_post", OrdinalPosition: 1},
			},
		},
	}}
	schema.BuildRelationships(context.Background(), s)
	return s
}

func testGrids(t *testing.T) map[string]*gridaction.Action {
	t.Helper()
	st := memstore.New(blogSchema())
	require.NoError(t, st.Insert("posts",
		map[string]any{"id": 1, "title": "hello"},
		map[string]any{"id": 2, "title": "world"},
	))
	require.NoError(t, st.Insert("comments",
		map[string]any{"id": 1, "post_id": 1, "body": "first"},
	))
	posts, err := st.Model("posts")
	require.NoError(t, err)
	comments, err := st.Model("comments")
	require.NoError(t, err)

	action, err := gridaction.New(gridaction.Config{
		Name:    "posts",
		Model:   posts,
		Columns: []string{"title"},
		Logger:  testLogger(),
		Subgrid: &gridaction.SubgridConfig{Model: comments, ParentColumn: "post_id", Columns: []string{"body"}},
	})
	require.NoError(t, err)
	return map[string]*gridaction.Action{"posts": action}
}

func newRouterHandler(t *testing.T, cfg *config.Config) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	writeAuth, err := buildWriteAuth(cfg, testLogger(), nil)
	require.NoError(t, err)
	mux := buildRouter(cfg, testLogger(), db, testGrids(t), writeAuth, false)
	return wrapHTTPHandler(cfg, testLogger(), mux), mock
}

func TestRouter_GridRoutes(t *testing.T) {
	handler, _ := newRouterHandler(t, &config.Config{})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{name: "list", target: "/grid/posts?action=request&sidx=id&sord=asc", wantStatus: http.StatusOK, wantBody: `"hello"`},
		{name: "subgrid", target: "/grid/posts/subgrid?id=1", wantStatus: http.StatusOK, wantBody: `"first"`},
		{name: "unknown grid", target: "/grid/users?action=request", wantStatus: http.StatusNotFound},
		{name: "unknown subgrid", target: "/grid/users/subgrid?id=1", wantStatus: http.StatusNotFound},
		{name: "missing action", target: "/grid/posts", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_WriteAuth(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{WriteAuth: config.WriteAuthConfig{
		Enabled:  true,
		Secret:   routerSecret,
		Audience: "gridquery",
	}}}
	handler, _ := newRouterHandler(t, cfg)

	edit := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/grid/posts?action=edit", strings.NewReader("id=1&title=changed"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, edit("").Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "editor",
		Audience:  jwt.ClaimStrings{"gridquery"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(routerSecret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, edit(signed).Code)

	// Reads stay open.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/grid/posts?action=request", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed"`)
}

func TestBuildWriteAuth_ShortSecret(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{WriteAuth: config.WriteAuthConfig{Enabled: true, Secret: "short"}}}
	_, err := buildWriteAuth(cfg, testLogger(), nil)
	require.Error(t, err)
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantBody: `{"status":"healthy","database":"ok"}`},
		{name: "unhealthy", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable,
			wantBody: `{"status":"unhealthy","database":"failed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mock := newRouterHandler(t, &config.Config{})
			mock.ExpectPing().WillReturnError(tt.pingErr)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	noAuth := func(next http.Handler) http.Handler { return next }

	without := buildRouter(&config.Config{}, testLogger(), db, nil, noAuth, false)
	rec := httptest.NewRecorder()
	without.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	with := buildRouter(&config.Config{}, testLogger(), db, nil, noAuth, true)
	rec = httptest.NewRecorder()
	with.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWrapHTTPHandler_CORSAndRateLimit(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{
		CORS: config.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"https://app.example.com"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
		},
		RateLimit: config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1},
	}}
	handler, _ := newRouterHandler(t, cfg)

	get := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/grid/posts?action=request", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := get()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "https://app.example.com", first.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusTooManyRequests, get().Code)
}

func TestNormalizeHTTPSpanRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "/grid/posts", want: "/grid/{name}"},
		{path: "/grid/posts/subgrid", want: "/grid/{name}/subgrid"},
		{path: "/grid/posts/other", want: "/*"},
		{path: "/grid/", want: "/*"},
		{path: "/health", want: "/health"},
		{path: "/metrics", want: "/metrics"},
		{path: "/favicon.ico", want: "/*"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeHTTPSpanRoute(tt.path))
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/grid/posts?action=edit", nil)
	assert.Equal(t, "POST /grid/{name}", httpRootSpanName(req))
	assert.Equal(t, "HTTP /*", httpRootSpanName(nil))
}

func TestWaitForDatabase(t *testing.T) {
	t.Run("retries until ping succeeds", func(t *testing.T) {
		calls := 0
		err := waitForDatabase(context.Background(), time.Second, time.Millisecond, testLogger(), func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("not ready")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("zero timeout makes one attempt", func(t *testing.T) {
		calls := 0
		err := waitForDatabase(context.Background(), 0, time.Millisecond, testLogger(), func(context.Context) error {
			calls++
			return errors.New("down")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after timeout", func(t *testing.T) {
		err := waitForDatabase(context.Background(), 20*time.Millisecond, 5*time.Millisecond, testLogger(), func(context.Context) error {
			return errors.New("down")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database not available")
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := waitForDatabase(ctx, time.Minute, time.Second, testLogger(), func(context.Context) error {
			return errors.New("down")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuildGrids(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	exec := dbexec.NewStandardExecutor(db)

	grids, err := buildGrids([]config.GridConfig{
		{
			Name:    "posts",
			Table:   "posts",
			Columns: []string{"title"},
			Aliases: []config.AliasConfig{{Name: "headline", Field: "title"}},
			Subgrid: &config.SubgridConfig{Table: "comments", ParentColumn: "post_id"},
		},
		{Name: "comments", Table: "comments", ReadOnly: true, NestedGroups: "preserve"},
	}, exec, blogSchema(), testLogger(), nil)
	require.NoError(t, err)
	require.Len(t, grids, 2)
	assert.Equal(t, []string{"id", "title"}, grids["posts"].Columns())

	errorCases := []struct {
		name string
		defs []config.GridConfig
	}{
		{name: "duplicate", defs: []config.GridConfig{{Name: "posts", Table: "posts"}, {Name: "posts", Table: "posts"}}},
		{name: "unknown table", defs: []config.GridConfig{{Name: "users", Table: "users"}}},
		{name: "unknown column", defs: []config.GridConfig{{Name: "posts", Table: "posts", Columns: []string{"nope"}}}},
		{name: "bad nested groups", defs: []config.GridConfig{{Name: "posts", Table: "posts", NestedGroups: "merge"}}},
		{name: "unknown subgrid table", defs: []config.GridConfig{{Name: "posts", Table: "posts",
			Subgrid: &config.SubgridConfig{Table: "tags", ParentColumn: "post_id"}}}},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildGrids(tt.defs, exec, blogSchema(), testLogger(), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, gridaction.ErrInvalidConfiguration)
		})
	}
}
