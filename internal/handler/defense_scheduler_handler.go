package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/defense-scheduler/internal/dto"
	"github.com/noah-isme/defense-scheduler/internal/models"
	"github.com/noah-isme/defense-scheduler/internal/service"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
	"github.com/noah-isme/defense-scheduler/pkg/response"
)

const maxInlineProjects = 2000

type defenseScheduler interface {
	Optimize(ctx context.Context, req dto.OptimizeRequest) (*dto.ProposalResponse, error)
	Enqueue(ctx context.Context, req dto.OptimizeRequest) (*dto.OptimizeJobResponse, error)
	GetProposal(ctx context.Context, id string) (*dto.ProposalResponse, error)
	ExportProposal(ctx context.Context, id string, query dto.ExportQuery) (*service.ExportFile, error)
	Save(ctx context.Context, req dto.SaveDefenseScheduleRequest) (*models.DefenseSchedule, error)
	List(ctx context.Context, query dto.DefenseScheduleQuery) ([]models.DefenseSchedule, error)
	GetSlots(ctx context.Context, id string) ([]models.DefenseScheduleSlot, error)
	Delete(ctx context.Context, id string) error
}

// DefenseSchedulerHandler exposes defense scheduling endpoints.
type DefenseSchedulerHandler struct {
	service defenseScheduler
}

// NewDefenseSchedulerHandler constructs the handler.
func NewDefenseSchedulerHandler(svc *service.DefenseSchedulerService) *DefenseSchedulerHandler {
	return &DefenseSchedulerHandler{service: svc}
}

// Optimize godoc
// @Summary Run the defense optimizer and store the result as a proposal
// @Description Runs synchronously. Without an inline dataset the inputs are read from the defense tables.
// @Tags DefenseScheduler
// @Accept json
// @Produce json
// @Param payload body dto.OptimizeRequest true "Optimization payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /defense-schedules/optimize [post]
func (h *DefenseSchedulerHandler) Optimize(c *gin.Context) {
	req, ok := bindOptimizeRequest(c)
	if !ok {
		return
	}
	result, err := h.service.Optimize(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result, requestMeta(c, "preview"))
}

// Enqueue godoc
// @Summary Queue an optimization run
// @Description Returns a job id that doubles as the proposal id. Poll the proposal until it is READY or FAILED.
// @Tags DefenseScheduler
// @Accept json
// @Produce json
// @Param payload body dto.OptimizeRequest true "Optimization payload"
// @Success 202 {object} response.Envelope
// @Router /defense-schedules/jobs [post]
func (h *DefenseSchedulerHandler) Enqueue(c *gin.Context) {
	req, ok := bindOptimizeRequest(c)
	if !ok {
		return
	}
	result, err := h.service.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, result, requestMeta(c, "queued"))
}

// Proposal godoc
// @Summary Get an optimization proposal
// @Tags DefenseScheduler
// @Produce json
// @Param id path string true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /defense-schedules/proposals/{id} [get]
func (h *DefenseSchedulerHandler) Proposal(c *gin.Context) {
	result, err := h.service.GetProposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Export godoc
// @Summary Download a proposal as CSV or PDF
// @Tags DefenseScheduler
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Proposal ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} binary
// @Router /defense-schedules/proposals/{id}/export [get]
func (h *DefenseSchedulerHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.service.ExportProposal(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// Save godoc
// @Summary Persist a proposal as a new draft schedule version
// @Tags DefenseScheduler
// @Accept json
// @Produce json
// @Param payload body dto.SaveDefenseScheduleRequest true "Save payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /defense-schedules/save [post]
func (h *DefenseSchedulerHandler) Save(c *gin.Context) {
	var req dto.SaveDefenseScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	record, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// List godoc
// @Summary List stored defense schedules
// @Tags DefenseScheduler
// @Produce json
// @Param label query string false "Schedule label"
// @Param status query string false "DRAFT, PUBLISHED or ARCHIVED"
// @Success 200 {object} response.Envelope
// @Router /defense-schedules [get]
func (h *DefenseSchedulerHandler) List(c *gin.Context) {
	var query dto.DefenseScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid schedule query"))
		return
	}
	result, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Slots godoc
// @Summary Get slots of a stored defense schedule
// @Tags DefenseScheduler
// @Produce json
// @Param id path string true "Defense schedule ID"
// @Success 200 {object} response.Envelope
// @Router /defense-schedules/{id}/slots [get]
func (h *DefenseSchedulerHandler) Slots(c *gin.Context) {
	slots, err := h.service.GetSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slots)
}

// Delete godoc
// @Summary Delete a draft defense schedule
// @Tags DefenseScheduler
// @Param id path string true "Defense schedule ID"
// @Success 204
// @Router /defense-schedules/{id} [delete]
func (h *DefenseSchedulerHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func bindOptimizeRequest(c *gin.Context) (dto.OptimizeRequest, bool) {
	var req dto.OptimizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid optimize payload"))
			return req, false
		}
	}
	if req.Dataset != nil && len(req.Dataset.Projects) > maxInlineProjects {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dataset exceeds supported project limit"))
		return req, false
	}
	return req, true
}
