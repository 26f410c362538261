package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/akriventsev/bookshelf/framework/observability"
	fwtesting "github.com/akriventsev/bookshelf/framework/testing"
	"github.com/akriventsev/bookshelf/internal/book"
	"github.com/akriventsev/bookshelf/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	env    *fwtesting.InMemoryTestEnvironment
	repo   *repository.BookRepository
	health *observability.HealthRegistry
	server *Server
}

func newFixture(t *testing.T, projection Projection) *fixture {
	t.Helper()
	env := fwtesting.NewInMemoryTestEnvironment(t)
	repo, err := repository.NewBookRepository(env.Log, env.Snapshots, repository.Options{Topic: env.Topic, Metrics: env.Metrics})
	require.NoError(t, err)

	health := observability.NewHealthRegistry(0)
	cfg := DefaultConfig()
	cfg.ServiceName = ""
	server, err := NewServer(cfg, repo, projection, health, nil)
	require.NoError(t, err)
	return &fixture{env: env, repo: repo, health: health, server: server}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBook(t *testing.T, rec *httptest.ResponseRecorder) BookResponse {
	t.Helper()
	var resp BookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServer_CreateAddPageAndGet(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/books", map[string]string{"id": "42", "author": "Joe"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, BookResponse{ID: "42", Author: "Joe", Pages: []string{}}, decodeBook(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/books/42/pages", map[string]string{"content": "Page #1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"Page #1"}, decodeBook(t, rec).Pages)

	rec = f.do(t, http.MethodGet, "/api/v1/books/42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, BookResponse{ID: "42", Author: "Joe", Pages: []string{"Page #1"}}, decodeBook(t, rec))

	records := f.env.Log.Records(f.env.Topic)
	require.Len(t, records, 2)
	first, err := book.Decode(records[0].Value)
	require.NoError(t, err)
	assert.Equal(t, book.Created{ID: "42", Author: "Joe"}, first)
}

func TestServer_CreateGeneratesID(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/books", map[string]string{"author": "ds"})
	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeBook(t, rec)
	assert.NotEmpty(t, resp.ID)

	_, found, err := f.repo.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestServer_Errors(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/books", map[string]string{"id": "1", "author": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/books/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/books/missing/pages", map[string]string{"content": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/books", map[string]string{"id": "1", "author": "ds"}).Code)
	rec = f.do(t, http.MethodPost, "/api/v1/books", map[string]string{"id": "1", "author": "ds"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.env.Log.FailAppends(errors.New("broker down"))
	rec = f.do(t, http.MethodPost, "/api/v1/books/1/pages", map[string]string{"content": "lost"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), core.ErrTransport)

	f.env.Log.FailAppends(nil)
	rec = f.do(t, http.MethodGet, "/api/v1/books/1", nil)
	assert.Empty(t, decodeBook(t, rec).Pages)
}

func TestServer_MalformedBody(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/books", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type staticProjection map[string]book.State

func (p staticProjection) Get(ctx context.Context, id string) (book.State, bool, error) {
	s, ok := p[id]
	return s, ok, nil
}

func TestServer_Projection(t *testing.T) {
	f := newFixture(t, staticProjection{"7": {ID: "7", Author: "ds", Pages: []string{"a"}}})

	rec := f.do(t, http.MethodGet, "/api/v1/projections/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a"}, decodeBook(t, rec).Pages)

	rec = f.do(t, http.MethodGet, "/api/v1/projections/8", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ProjectionRouteDisabled(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/projections/7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)

	fault := errors.New("tailer faulted")
	var failing bool
	f.health.RegisterHealthCheck(observability.NewFuncCheck("tailer", func(ctx context.Context) error {
		if failing {
			return fault
		}
		return nil
	}))

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", nil).Code)

	failing = true
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "tailer faulted")

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestServer_Lifecycle(t *testing.T) {
	f := newFixture(t, nil)
	f.server.config.Addr = "127.0.0.1:0"

	require.NoError(t, f.server.Start(context.Background()))
	assert.True(t, f.server.IsRunning())
	assert.Error(t, f.server.Start(context.Background()))

	require.NoError(t, f.server.Stop(context.Background()))
	assert.False(t, f.server.IsRunning())
	assert.NoError(t, f.server.Stop(context.Background()))
}

func TestNewServer_RequiresBooks(t *testing.T) {
	_, err := NewServer(DefaultConfig(), nil, nil, nil, nil)
	assert.True(t, core.HasCode(err, core.ErrInvalidArgument))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(core.NewError(core.ErrInvalidArgument, "x")))
	assert.Equal(t, http.StatusNotFound, statusFor(core.NewError(core.ErrNotFound, "x")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(core.NewError(core.ErrTransport, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(core.NewError(core.ErrSerialization, "x")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("plain")))
}
