package handler

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

	"github.com/noah-isme/defense-scheduler/internal/dto"
	internalmiddleware "github.com/noah-isme/defense-scheduler/internal/middleware"
	"github.com/noah-isme/defense-scheduler/internal/models"
	"github.com/noah-isme/defense-scheduler/internal/service"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

type defenseSchedulerMock struct {
	optimizeReq dto.OptimizeRequest
	saveReq     dto.SaveDefenseScheduleRequest
	listQuery   dto.DefenseScheduleQuery
	exportQuery dto.ExportQuery
	deletedID   string
	err         error
}

func (m *defenseSchedulerMock) Optimize(_ context.Context, req dto.OptimizeRequest) (*dto.ProposalResponse, error) {
	m.optimizeReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.ProposalResponse{ProposalID: "proposal-1", Status: models.ProposalStatusReady}, nil
}

func (m *defenseSchedulerMock) Enqueue(_ context.Context, req dto.OptimizeRequest) (*dto.OptimizeJobResponse, error) {
	m.optimizeReq = req
	return &dto.OptimizeJobResponse{JobID: "job-1", Status: models.ProposalStatusPending}, nil
}

func (m *defenseSchedulerMock) GetProposal(_ context.Context, id string) (*dto.ProposalResponse, error) {
	if id != "proposal-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	return &dto.ProposalResponse{ProposalID: id, Status: models.ProposalStatusReady}, nil
}

func (m *defenseSchedulerMock) ExportProposal(_ context.Context, id string, query dto.ExportQuery) (*service.ExportFile, error) {
	m.exportQuery = query
	return &service.ExportFile{Filename: "defense-schedule-" + id + ".csv", ContentType: "text/csv", Data: []byte("start,timeslot_id\n")}, nil
}

func (m *defenseSchedulerMock) Save(_ context.Context, req dto.SaveDefenseScheduleRequest) (*models.DefenseSchedule, error) {
	m.saveReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.DefenseSchedule{ID: "sched-1", Label: req.Label, Version: 1}, nil
}

func (m *defenseSchedulerMock) List(_ context.Context, query dto.DefenseScheduleQuery) ([]models.DefenseSchedule, error) {
	m.listQuery = query
	return []models.DefenseSchedule{{ID: "sched-1"}}, nil
}

func (m *defenseSchedulerMock) GetSlots(_ context.Context, id string) ([]models.DefenseScheduleSlot, error) {
	return []models.DefenseScheduleSlot{{ID: "slot-1", DefenseScheduleID: id}}, nil
}

func (m *defenseSchedulerMock) Delete(_ context.Context, id string) error {
	m.deletedID = id
	return m.err
}

func newDefenseRouter(mock *defenseSchedulerMock, role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &DefenseSchedulerHandler{service: mock}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: role})
		}
		c.Next()
	})
	group := router.Group("/defense-schedules", internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	group.POST("/optimize", h.Optimize)
	group.POST("/jobs", h.Enqueue)
	group.GET("/proposals/:id", h.Proposal)
	group.GET("/proposals/:id/export", h.Export)
	group.POST("/save", h.Save)
	group.GET("", h.List)
	group.GET("/:id/slots", h.Slots)
	group.DELETE("/:id", h.Delete)
	return router
}

func doRequest(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDefenseSchedulerOptimize(t *testing.T) {
	mock := &defenseSchedulerMock{}
	router := newDefenseRouter(mock, models.RoleAdmin)

	w := doRequest(router, http.MethodPost, "/defense-schedules/optimize", []byte(`{"label":"odd","options":{"generations":10,"seed":4}}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "odd", mock.optimizeReq.Label)
	require.NotNil(t, mock.optimizeReq.Options.Generations)
	assert.Equal(t, 10, *mock.optimizeReq.Options.Generations)

	var body struct {
		Data dto.ProposalResponse `json:"data"`
		Meta map[string]any       `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "proposal-1", body.Data.ProposalID)
	assert.Equal(t, "user-1", body.Meta["requested_by"])
}

func TestDefenseSchedulerOptimizeWithoutBody(t *testing.T) {
	mock := &defenseSchedulerMock{}
	router := newDefenseRouter(mock, models.RoleSuperAdmin)

	w := doRequest(router, http.MethodPost, "/defense-schedules/optimize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, mock.optimizeReq.Dataset)
}

func TestDefenseSchedulerOptimizeMalformedBody(t *testing.T) {
	router := newDefenseRouter(&defenseSchedulerMock{}, models.RoleAdmin)

	w := doRequest(router, http.MethodPost, "/defense-schedules/optimize", []byte(`{"label":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDefenseSchedulerOptimizeMapsServiceErrors(t *testing.T) {
	mock := &defenseSchedulerMock{err: appErrors.Clone(appErrors.ErrNoSolution, "no schedule could be produced")}
	router := newDefenseRouter(mock, models.RoleAdmin)

	w := doRequest(router, http.MethodPost, "/defense-schedules/optimize", []byte(`{}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "NO_SOLUTION")
}

func TestDefenseSchedulerEnqueue(t *testing.T) {
	router := newDefenseRouter(&defenseSchedulerMock{}, models.RoleAdmin)

	w := doRequest(router, http.MethodPost, "/defense-schedules/jobs", []byte(`{"label":"odd"}`))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"job_id":"job-1"`)
}

func TestDefenseSchedulerProposal(t *testing.T) {
	router := newDefenseRouter(&defenseSchedulerMock{}, models.RoleAdmin)

	w := doRequest(router, http.MethodGet, "/defense-schedules/proposals/proposal-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/defense-schedules/proposals/other", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDefenseSchedulerExport(t *testing.T) {
	mock := &defenseSchedulerMock{}
	router := newDefenseRouter(mock, models.RoleAdmin)

	w := doRequest(router, http.MethodGet, "/defense-schedules/proposals/proposal-1/export?format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", mock.exportQuery.Format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="defense-schedule-proposal-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "start,timeslot_id\n", w.Body.String())
}

func TestDefenseSchedulerSave(t *testing.T) {
	mock := &defenseSchedulerMock{}
	router := newDefenseRouter(mock, models.RoleAdmin)

	w := doRequest(router, http.MethodPost, "/defense-schedules/save", []byte(`{"proposal_id":"proposal-1","label":"odd"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "proposal-1", mock.saveReq.ProposalID)

	mock.err = appErrors.Clone(appErrors.ErrConflict, "proposal contains unresolved critical conflicts")
	w = doRequest(router, http.MethodPost, "/defense-schedules/save", []byte(`{"proposal_id":"proposal-1"}`))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDefenseSchedulerListSlotsDelete(t *testing.T) {
	mock := &defenseSchedulerMock{}
	router := newDefenseRouter(mock, models.RoleAdmin)

	w := doRequest(router, http.MethodGet, "/defense-schedules?label=odd&status=DRAFT", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.DefenseScheduleQuery{Label: "odd", Status: "DRAFT"}, mock.listQuery)

	w = doRequest(router, http.MethodGet, "/defense-schedules/sched-1/slots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "slot-1")

	w = doRequest(router, http.MethodDelete, "/defense-schedules/sched-1", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "sched-1", mock.deletedID)
}

func TestDefenseSchedulerForbiddenForInstructors(t *testing.T) {
	router := newDefenseRouter(&defenseSchedulerMock{}, models.RoleInstructor)

	w := doRequest(router, http.MethodPost, "/defense-schedules/optimize", []byte(`{}`))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDefenseSchedulerUnauthorizedWithoutClaims(t *testing.T) {
	router := newDefenseRouter(&defenseSchedulerMock{}, "")

	w := doRequest(router, http.MethodGet, "/defense-schedules", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsHandlerSummaryAndHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(service.NewMetricsService())
	router := gin.New()
	router.GET("/metrics", h.Prometheus)
	router.GET("/metrics/summary", h.Summary)
	router.GET("/health", h.Health)

	w := doRequest(router, http.MethodGet, "/metrics/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "optimizer_runs")

	w = doRequest(router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines_total")

	w = doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := ReadinessProbe{Name: "postgres", Check: func(context.Context) error { return nil }}
	broken := ReadinessProbe{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}

	router := gin.New()
	router.GET("/ready", NewMetricsHandler(nil, healthy).Ready)
	router.GET("/ready-broken", NewMetricsHandler(nil, healthy, broken).Ready)

	w := doRequest(router, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)

	w = doRequest(router, http.MethodGet, "/ready-broken", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
	assert.Contains(t, w.Body.String(), `"status":"unavailable"`)
}
