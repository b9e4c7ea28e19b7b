package delivery

import (
	"net/http"
	"strconv"
	"time"

	authdomain "touchbase-backend/internal/auth/domain"
	"touchbase-backend/internal/contact/usecase"

	"github.com/gin-gonic/gin"
)

type ContactHandler struct {
	contactUsecase *usecase.ContactUsecase
	deduplicator   *usecase.Deduplicator
}

func NewContactHandler(contactUsecase *usecase.ContactUsecase, deduplicator *usecase.Deduplicator) *ContactHandler {
	return &ContactHandler{
		contactUsecase: contactUsecase,
		deduplicator:   deduplicator,
	}
}

func (h *ContactHandler) Create(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	var input usecase.CreateContactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.contactUsecase.Create(user.ID, &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, contact)
}

func (h *ContactHandler) List(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	limit, offset := pagination(c, 50)
	contacts, total, err := h.contactUsecase.List(user.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contacts": contacts,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *ContactHandler) Get(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	contact, err := h.contactUsecase.Get(user.ID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if contact == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
		return
	}

	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) Update(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	var input usecase.UpdateContactInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.contactUsecase.Update(user.ID, c.Param("id"), &input)
	if err != nil {
		if err.Error() == "contact not found" {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) Delete(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	if err := h.contactUsecase.Delete(user.ID, c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "contact deleted"})
}

func (h *ContactHandler) History(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	limit, _ := pagination(c, 50)
	interactions, err := h.contactUsecase.History(user.ID, c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"interactions": interactions})
}

func (h *ContactHandler) Timeline(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	limit, offset := pagination(c, 50)
	from := parseTime(c.Query("from"))
	to := parseTime(c.Query("to"))

	interactions, total, err := h.contactUsecase.Timeline(user.ID, from, to, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interactions": interactions,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func (h *ContactHandler) Duplicates(c *gin.Context) {
	user := c.MustGet("user").(*authdomain.User)

	pairs, err := h.deduplicator.FindDuplicates(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"duplicates": pairs})
}

func pagination(c *gin.Context, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t
	}
	return time.Time{}
}
