package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxiv/relations"
	"github.com/arxiv/relations/internal/infra/memory"
	"github.com/arxiv/relations/internal/present/rest/middleware"
	"github.com/arxiv/relations/internal/service"
	"github.com/arxiv/relations/internal/telemetry"
	"github.com/arxiv/relations/internal/usecase"
)

const testAPIKey = "s3cret"

func newTestServer(t *testing.T, apiKeyHash string) *echo.Echo {
	t.Helper()

	store := memory.New()
	reg := prometheus.NewRegistry()
	lineage := usecase.NewLineageUsecase(store, usecase.WithMetrics(telemetry.NewMetrics(reg)))
	query := usecase.NewQueryUsecase(store, nil)

	auth := middleware.NewAuthMiddleware(service.NewAuthService(apiKeyHash))
	h := NewHandler(lineage, query, nil, reg, nil)

	e := echo.New()
	e.Use(auth.IdentifyIdentity)
	h.RegisterRoutes(e, auth)
	return e
}

func do(t *testing.T, e *echo.Echo, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func doi(id string) map[string]string {
	return map[string]string{"resource_type": "DOI", "resource_id": id, "description": "published version"}
}

func TestHandleStatus(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodGet, "/status", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[relations.Status](t, rec).IAm)
}

func TestHandleLineageFlow(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodPost, "/1234.56789v1/relations", doi("10.1/a"), map[string]string{"X-Requester": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r1 := decode[relations.Relation](t, rec)
	assert.Equal(t, relations.RelationTypeAdd, r1.RelationType)
	assert.Equal(t, relations.EPrint{ArxivID: "1234.56789", Version: 1}, r1.EPrint)
	require.NotNil(t, r1.Creator)
	assert.Equal(t, "alice", *r1.Creator)
	assert.Nil(t, r1.Predecessor)

	rec = do(t, e, http.MethodPost, "/1234.56789v1/relations/"+r1.Identifier,
		map[string]string{"resourceType": "DOI", "resourceId": "10.1/b"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r2 := decode[relations.Relation](t, rec)
	assert.Equal(t, relations.RelationTypeEdit, r2.RelationType)
	assert.Equal(t, "10.1/b", r2.Resource.Identifier)
	require.NotNil(t, r2.Predecessor)
	assert.Equal(t, r1.Identifier, *r2.Predecessor)

	rec = do(t, e, http.MethodGet, "/1234.56789v1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[[]relations.Relation](t, rec)
	require.Len(t, active, 1)
	assert.Equal(t, r2.Identifier, active[0].Identifier)

	rec = do(t, e, http.MethodPost, "/1234.56789v1/relations/"+r2.Identifier+"/delete", nil, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r3 := decode[relations.Relation](t, rec)
	assert.Equal(t, relations.RelationTypeSuppress, r3.RelationType)
	assert.Equal(t, r2.Resource, r3.Resource)

	rec = do(t, e, http.MethodGet, "/1234.56789v1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]relations.Relation](t, rec))

	rec = do(t, e, http.MethodGet, "/1234.56789v1/log", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	log := decode[[]relations.LineageEntry](t, rec)
	require.Len(t, log, 3)
	assert.Equal(t, "SUPERSEDED", log[0].State)
	assert.Equal(t, "SUPPRESSED", log[1].State)
	assert.Equal(t, "ACTIVE", log[2].State)

	rec = do(t, e, http.MethodGet, "/relations/"+r2.Identifier+"/lineage", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	chain := decode[[]relations.LineageEntry](t, rec)
	require.Len(t, chain, 3)
	assert.Equal(t, r1.Identifier, chain[0].Identifier)
	assert.Equal(t, r3.Identifier, chain[2].Identifier)

	rec = do(t, e, http.MethodGet, "/relations/"+r1.Identifier+"/active", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[relations.Activity](t, rec).Active)
}

func TestHandleSupersedeRetiredPredecessor(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodPost, "/1234.56789v1/relations", doi("10.1/a"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	r1 := decode[relations.Relation](t, rec)

	rec = do(t, e, http.MethodPost, "/1234.56789v1/relations/"+r1.Identifier, doi("10.1/b"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, e, http.MethodPost, "/1234.56789v1/relations/"+r1.Identifier, doi("10.1/c"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[relations.ErrorResponse](t, rec).Error)
}

func TestHandleErrors(t *testing.T) {
	e := newTestServer(t, "")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"bad eprint", http.MethodGet, "/not-an-eprint", nil, http.StatusBadRequest},
		{"missing version", http.MethodPost, "/1234.56789/relations", doi("10.1/a"), http.StatusBadRequest},
		{"empty resource", http.MethodPost, "/1234.56789v1/relations", doi(""), http.StatusBadRequest},
		{"unknown relation", http.MethodGet, "/relations/does-not-exist", nil, http.StatusNotFound},
		{"unknown predecessor", http.MethodPost, "/1234.56789v1/relations/does-not-exist", doi("10.1/a"), http.StatusNotFound},
		{"unknown activation", http.MethodGet, "/relations/does-not-exist/active", nil, http.StatusNotFound},
		{"padded version", http.MethodGet, "/1234.56789v01", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, e, tc.method, tc.path, tc.body, nil)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleFormEncodedBody(t *testing.T) {
	e := newTestServer(t, "")

	post := func(path string, form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/1234.56789v1/relations", url.Values{
		"resource_type": {"DOI"},
		"resource_id":   {"10.1/x"},
		"description":   {"d"},
		"creator":       {"bob"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r1 := decode[relations.Relation](t, rec)
	assert.Equal(t, relations.Resource{ResourceType: "DOI", Identifier: "10.1/x"}, r1.Resource)
	assert.Equal(t, "d", r1.Description)
	require.NotNil(t, r1.Creator)
	assert.Equal(t, "bob", *r1.Creator)

	rec = post("/1234.56789v1/relations/"+r1.Identifier, url.Values{
		"resourceType": {"DOI"},
		"resourceId":   {"10.1/y"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	r2 := decode[relations.Relation](t, rec)
	assert.Equal(t, "10.1/y", r2.Resource.Identifier)
	assert.Nil(t, r2.Creator)

	rec = post("/1234.56789v1/relations/"+r2.Identifier+"/delete", url.Values{"description": {"withdrawn"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "withdrawn", decode[relations.Relation](t, rec).Description)
}

func TestHandleOldStyleEPrint(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodPost, "/hep-th%2F9901001v2/relations", doi("10.1/a"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rel := decode[relations.Relation](t, rec)
	assert.Equal(t, "hep-th/9901001", rel.EPrint.ArxivID)
	assert.Equal(t, 2, rel.EPrint.Version)
}

func TestHandleGetRelationETag(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodPost, "/1234.56789v1/relations", doi("10.1/a"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	r1 := decode[relations.Relation](t, rec)

	rec = do(t, e, http.MethodGet, "/relations/"+r1.Identifier, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, r1.Identifier, decode[relations.Relation](t, rec).Identifier)

	rec = do(t, e, http.MethodGet, "/relations/"+r1.Identifier, nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestHandleGetRelationIfNoneMatchForms(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodPost, "/1234.56789v1/relations", doi("10.1/a"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	r1 := decode[relations.Relation](t, rec)

	rec = do(t, e, http.MethodGet, "/relations/"+r1.Identifier, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"weak", "W/" + etag, http.StatusNotModified},
		{"list", `"0000000000000000", ` + etag, http.StatusNotModified},
		{"weak in list", `"0000000000000000",W/` + etag, http.StatusNotModified},
		{"wildcard", "*", http.StatusNotModified},
		{"other tag", `"0000000000000000"`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, e, http.MethodGet, "/relations/"+r1.Identifier, nil, map[string]string{"If-None-Match": tc.header})
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandleAPIKey(t *testing.T) {
	hash, err := service.HashAPIKey(testAPIKey)
	require.NoError(t, err)
	e := newTestServer(t, hash)

	rec := do(t, e, http.MethodPost, "/1234.56789v1/relations", doi("10.1/a"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, e, http.MethodPost, "/1234.56789v1/relations", doi("10.1/a"), map[string]string{"X-API-KEY": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, e, http.MethodPost, "/1234.56789v1/relations", doi("10.1/a"), map[string]string{"X-API-KEY": testAPIKey})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, e, http.MethodGet, "/1234.56789v1", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleMetrics(t *testing.T) {
	e := newTestServer(t, "")

	for i := 0; i < 2; i++ {
		rec := do(t, e, http.MethodPost, "/1234.56789v1/relations", doi(fmt.Sprintf("10.1/%d", i)), nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := do(t, e, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `relations_committed_total{type="ADD"} 2`)
}

func TestHandleRealtimeDisabled(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodGet, "/realtime", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
