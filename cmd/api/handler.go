package api

import (
	authUsecase "touchbase-backend/internal/auth/usecase"
	contactUsecase "touchbase-backend/internal/contact/usecase"
	integrationUsecase "touchbase-backend/internal/integration/usecase"
	jobUsecase "touchbase-backend/internal/job/usecase"
	syncUsecase "touchbase-backend/internal/sync/usecase"
	"touchbase-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	engine *gin.Engine
}

func NewHandler(
	authUc authUsecase.AuthUsecase,
	oauthUc *integrationUsecase.OAuthUsecase,
	contactUc *contactUsecase.ContactUsecase,
	deduplicator *contactUsecase.Deduplicator,
	orchestrator *syncUsecase.Orchestrator,
	jobUc *jobUsecase.JobUsecase,
	cfg *config.Config,
) *Handler {
	engine := gin.Default()
	SetupRoutes(engine, authUc, oauthUc, contactUc, deduplicator, orchestrator, jobUc, cfg)
	return &Handler{engine: engine}
}

func (h *Handler) Start(addr string) error {
	return h.engine.Run(addr)
}
