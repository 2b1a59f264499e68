package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jinford/review-runner/internal/module/llmjob/application"
	"github.com/jinford/review-runner/internal/module/llmjob/domain"
	"github.com/jinford/review-runner/pkg/models"
)

type handler struct {
	service *application.JobService
	log     *slog.Logger
}

func (h *handler) submit(c *gin.Context) {
	var req models.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON data")
		return
	}
	if req.JobType == "" || req.ModelID == "" {
		respondError(c, http.StatusBadRequest, "job_type and model_id are required")
		return
	}

	in := application.SubmitInput{
		JobType:   req.JobType,
		ModelID:   req.ModelID,
		InputData: req.InputData,
	}
	if req.QuestionID != nil {
		in.QuestionID = *req.QuestionID
	}

	job, err := h.service.Submit(c.Request.Context(), in)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SubmitJobResponse{
		Success: true,
		JobID:   job.ID.String(),
		Status:  string(job.Status),
		Message: "Job submitted successfully",
	})
}

func (h *handler) status(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.statusResponse(c, job))
}

func (h *handler) result(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.service.Result(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotComplete) && job != nil {
			c.JSON(http.StatusBadRequest, models.JobStatusResponse{
				Success: false,
				JobID:   job.ID.String(),
				Status:  string(job.Status),
				Error:   "Job is not completed yet",
			})
			return
		}
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.statusResponse(c, job))
}

func (h *handler) list(c *gin.Context) {
	filter := domain.JobFilter{
		QuestionID: c.Query("question_id"),
	}

	if s := c.Query("status"); s != "" {
		status, err := domain.ParseStatus(s)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}
	if t := c.Query("job_type"); t != "" {
		jobType, err := domain.ParseJobType(t)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		filter.JobType = jobType
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		respondError(c, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		respondError(c, http.StatusBadRequest, "offset must be an integer")
		return
	}

	jobs, page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	now := h.service.Now()
	summaries := make([]models.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, toJobSummary(job, now))
	}

	c.JSON(http.StatusOK, models.JobListResponse{
		Success: true,
		Jobs:    summaries,
		Pagination: &models.Pagination{
			TotalCount: page.TotalCount,
			Limit:      page.Limit,
			Offset:     page.Offset,
			HasNext:    page.HasNext,
		},
	})
}

func (h *handler) models(c *gin.Context) {
	list, err := h.service.ListModels(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	out := make([]models.LLMModel, 0, len(list))
	for _, m := range list {
		out = append(out, models.LLMModel{
			ID:          m.ID,
			Name:        m.Name,
			Provider:    m.Provider,
			Description: m.Description,
		})
	}
	c.JSON(http.StatusOK, models.LLMModelListResponse{Models: out})
}

// statusResponse はモデル情報を付けたステータス応答を作成します
func (h *handler) statusResponse(c *gin.Context, job *domain.Job) models.JobStatusResponse {
	resp := toStatusResponse(job, h.service.Now())
	if model, err := h.service.GetModel(c.Request.Context(), job.ModelID); err == nil {
		resp.Model = &models.JobModel{ID: model.ID, Name: model.Name, Provider: model.Provider}
	} else {
		h.log.Warn("Failed to load job model", "jobID", job.ID, "modelID", job.ModelID, "error", err)
	}
	return resp
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusNotFound, "Job not found")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// respondServiceError はドメインエラーをHTTPステータスに変換します
func (h *handler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		respondError(c, http.StatusNotFound, "Job not found")
	case errors.Is(err, domain.ErrInvalidJobType):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrModelNotFound):
		respondError(c, http.StatusBadRequest, "Invalid or inactive model")
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrDispatchFailed):
		h.log.Error("Job dispatch failed", "error", err)
		respondError(c, http.StatusServiceUnavailable, err.Error())
	default:
		h.log.Error("Job API request failed",
			"path", c.FullPath(),
			"error", err,
		)
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Success: false, Error: msg})
}
