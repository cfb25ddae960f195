package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paperflow/internal/domain"
	"paperflow/internal/handler"
	"paperflow/internal/pipeline"
	"paperflow/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedRun struct{ summary pipeline.Summary }

func (f fixedRun) Snapshot() pipeline.Summary { return f.summary }

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("down") }

func newContext(method, path string, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(method, path, http.NoBody)
	c.Params = params
	return c, w
}

func TestPaperHandler_GetByID_Success(t *testing.T) {
	repo := new(mocks.MockPaperRepo)
	repo.On("GetByID", mock.Anything, "hep-th/9901001").
		Return(&domain.CanonicalPaper{PaperID: "hep-th/9901001", Title: "Strings"}, nil)
	h := handler.NewPaperHandler(repo, zap.NewNop())

	c, w := newContext(http.MethodGet, "/v1/papers/hep-th/9901001", gin.Params{{Key: "id", Value: "/hep-th/9901001"}})
	h.GetByID(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool                  `json:"success"`
		Data    domain.CanonicalPaper `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Strings", resp.Data.Title)
}

func TestPaperHandler_GetByID_NotFound(t *testing.T) {
	repo := new(mocks.MockPaperRepo)
	repo.On("GetByID", mock.Anything, "2101.99999").Return(nil, domain.ErrNotFound)
	h := handler.NewPaperHandler(repo, zap.NewNop())

	c, w := newContext(http.MethodGet, "/v1/papers/2101.99999", gin.Params{{Key: "id", Value: "/2101.99999"}})
	h.GetByID(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestPaperHandler_GetByID_InternalError(t *testing.T) {
	repo := new(mocks.MockPaperRepo)
	repo.On("GetByID", mock.Anything, "x").Return(nil, errors.New("db gone"))
	h := handler.NewPaperHandler(repo, zap.NewNop())

	c, w := newContext(http.MethodGet, "/v1/papers/x", gin.Params{{Key: "id", Value: "/x"}})
	h.GetByID(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db gone")
}

func TestPaperHandler_GetByID_EmptyID(t *testing.T) {
	h := handler.NewPaperHandler(new(mocks.MockPaperRepo), zap.NewNop())

	c, w := newContext(http.MethodGet, "/v1/papers/", gin.Params{{Key: "id", Value: "/"}})
	h.GetByID(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandler_Current(t *testing.T) {
	h := handler.NewRunHandler(fixedRun{summary: pipeline.Summary{RunID: "r1", State: domain.StageDone, TotalRecords: 7}})

	c, w := newContext(http.MethodGet, "/v1/runs/current", nil)
	h.Current(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data pipeline.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "r1", resp.Data.RunID)
	assert.Equal(t, 7, resp.Data.TotalRecords)
}

func TestHealthHandler(t *testing.T) {
	c, w := newContext(http.MethodGet, "/readyz", nil)
	handler.NewHealthHandler(nil).Readiness(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodGet, "/readyz", nil)
	handler.NewHealthHandler(failingPinger{}).Readiness(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newContext(http.MethodGet, "/healthz", nil)
	handler.NewHealthHandler(failingPinger{}).Liveness(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
