package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "armpose/internal/errors"
	"armpose/internal/operations"
	sharedtest "armpose/internal/shared/testutil"
)

type fakeStatusSource struct {
	active    []string
	snapshots map[string]*operations.OperationSnapshot
}

func (f *fakeStatusSource) ActiveOperations() []string { return f.active }

func (f *fakeStatusSource) GetSnapshot(id string) (*operations.OperationSnapshot, bool) {
	s, ok := f.snapshots[id]
	return s, ok
}

func (f *fakeStatusSource) GetSessionSnapshots(sessionID string) []*operations.OperationSnapshot {
	var out []*operations.OperationSnapshot
	for _, s := range f.snapshots {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out
}

func newOperationsRouter(t *testing.T, src OperationStatusSource) http.Handler {
	t.Helper()
	logger, _ := sharedtest.NewTestLogger(t)
	h := NewOperationsHandler(src, logger, apperrors.NewErrorHandler(logger, false, nil))
	r := chi.NewRouter()
	r.Mount("/api/operations", h.Routes())
	return r
}

func TestOperationsHandler(t *testing.T) {
	src := &fakeStatusSource{
		active: []string{"op-1", "gone"},
		snapshots: map[string]*operations.OperationSnapshot{
			"op-1": {OperationID: "op-1", SessionID: "s-1", Status: "running", CurrentStep: operations.StageIDTrain},
			"op-2": {OperationID: "op-2", SessionID: "s-1", Status: "completed"},
		},
	}
	router := newOperationsRouter(t, src)

	t.Run("active skips operations without a snapshot", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/operations/", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data []operations.OperationSnapshot `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Data, 1)
		assert.Equal(t, operations.StageIDTrain, body.Data[0].CurrentStep)
	})

	t.Run("single operation", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/operations/op-2", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/operations/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("session history", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/operations/session/s-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data []operations.OperationSnapshot `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Len(t, body.Data, 2)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/operations/session/none", nil))
		assert.JSONEq(t, `{"status":"success","data":[]}`, rec.Body.String())
	})
}

func TestManagerStatusSource(t *testing.T) {
	logger, _ := sharedtest.NewTestLogger(t)
	m := operations.NewManager(nil, nil, operations.NewConfig(), nil, logger)
	t.Cleanup(m.Close)

	src := ManagerStatusSource(m)
	assert.Empty(t, src.ActiveOperations())
	_, ok := src.GetSnapshot("nothing")
	assert.False(t, ok)
}
