package delivery

import (
	"net/http"
	"strconv"

	authdomain "touchbase-backend/internal/auth/domain"
	integrationdomain "touchbase-backend/internal/integration/domain"
	jobusecase "touchbase-backend/internal/job/usecase"
	syncusecase "touchbase-backend/internal/sync/usecase"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	orchestrator *syncusecase.Orchestrator
	jobUsecase   *jobusecase.JobUsecase
}

func NewSyncHandler(orchestrator *syncusecase.Orchestrator, jobUsecase *jobusecase.JobUsecase) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		jobUsecase:   jobUsecase,
	}
}

// Trigger enqueues a sync job for the given provider. Repeated triggers while
// a job is live return the existing job.
func (h *SyncHandler) Trigger(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	provider := integrationdomain.ProviderType(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	mode := c.DefaultQuery("mode", "incremental")
	if mode != "incremental" && mode != "full" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be incremental or full"})
		return
	}

	job, created, err := h.jobUsecase.Trigger(user.ID, provider, mode, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusAccepted
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"job": job, "created": created})
}

func (h *SyncHandler) JobStatus(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	job, err := h.jobUsecase.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil || job.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *SyncHandler) ListJobs(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	jobs, err := h.jobUsecase.ListByUser(user.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Preview fetches the provider's window without importing, so the user can
// review what a first sync would pull in.
func (h *SyncHandler) Preview(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	provider := integrationdomain.ProviderType(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.orchestrator.Preview(c.Request.Context(), user.ID, provider, limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":     items,
		"attendees": h.orchestrator.PreviewAttendees(items),
	})
}

type importRequest struct {
	ExternalIDs []string `json:"external_ids" binding:"required,min=1"`
}

// Import pulls in specific items the user selected from a preview.
func (h *SyncHandler) Import(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	provider := integrationdomain.ProviderType(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orchestrator.ImportByID(c.Request.Context(), user.ID, provider, req.ExternalIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *SyncHandler) GetSettings(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	states, err := h.orchestrator.SyncStates(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"settings": states})
}

func (h *SyncHandler) UpdateSettings(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	provider := integrationdomain.ProviderType(c.Param("provider"))
	if !provider.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	var input syncusecase.SettingsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.orchestrator.UpdateSettings(user.ID, provider, &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, state)
}
