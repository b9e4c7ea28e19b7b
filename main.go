package main

import (
	"log"

	api "touchbase-backend/cmd/api"
	authdomain "touchbase-backend/internal/auth/domain"
	authRepo "touchbase-backend/internal/auth/repository"
	authUsecase "touchbase-backend/internal/auth/usecase"
	contactdomain "touchbase-backend/internal/contact/domain"
	contactRepo "touchbase-backend/internal/contact/repository"
	contactUsecase "touchbase-backend/internal/contact/usecase"
	integrationdomain "touchbase-backend/internal/integration/domain"
	integrationRepo "touchbase-backend/internal/integration/repository"
	integrationUsecase "touchbase-backend/internal/integration/usecase"
	jobdomain "touchbase-backend/internal/job/domain"
	jobRepo "touchbase-backend/internal/job/repository"
	"touchbase-backend/internal/job/scheduler"
	jobUsecase "touchbase-backend/internal/job/usecase"
	"touchbase-backend/internal/job/worker"
	"touchbase-backend/internal/notification"
	"touchbase-backend/internal/sync/provider"
	"touchbase-backend/internal/sync/provider/gmailmail"
	"touchbase-backend/internal/sync/provider/googlecal"
	"touchbase-backend/internal/sync/provider/outlookcal"
	"touchbase-backend/internal/sync/provider/outlookmail"
	syncUsecase "touchbase-backend/internal/sync/usecase"
	"touchbase-backend/pkg/config"
	"touchbase-backend/pkg/crypto"
	"touchbase-backend/pkg/database"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&authdomain.RefreshToken{},
		&integrationdomain.Integration{},
		&integrationdomain.OAuthState{},
		&integrationdomain.SyncState{},
		&contactdomain.Contact{},
		&contactdomain.Interaction{},
		&contactdomain.InteractionParticipant{},
		&jobdomain.SyncJob{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Token encryption
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize token encryption:", err)
	}

	// Repositories
	userRepository := authRepo.NewUserRepository(db)
	integrationRepository := integrationRepo.NewIntegrationRepository(db)
	oauthStateRepository := integrationRepo.NewOAuthStateRepository(db)
	syncStateRepository := integrationRepo.NewSyncStateRepository(db)
	contactRepository := contactRepo.NewContactRepository(db)
	interactionRepository := contactRepo.NewInteractionRepository(db)
	jobRepository := jobRepo.NewJobRepository(db)

	// OAuth + token vault
	oauthConfigs := integrationUsecase.BuildOAuthConfigs(cfg)
	vault := integrationUsecase.NewTokenVault(integrationRepository, encryptor, oauthConfigs)
	oauthUc := integrationUsecase.NewOAuthUsecase(
		integrationRepository, oauthStateRepository, syncStateRepository,
		vault, oauthConfigs, cfg.DefaultLookbackDays)

	// Providers
	registry := provider.NewRegistry()
	registry.Register(googlecal.New())
	registry.Register(gmailmail.New())
	registry.Register(outlookcal.New())
	registry.Register(outlookmail.New())

	// Sync pipeline
	var orchestrator *syncUsecase.Orchestrator
	matcher := contactUsecase.NewMatcher(contactRepository, func(userID string) []string {
		return orchestrator.SelfEmails(userID)
	})
	orchestrator = syncUsecase.NewOrchestrator(
		registry, vault, integrationRepository, syncStateRepository,
		contactRepository, interactionRepository, matcher, userRepository)

	// Jobs
	jobUc := jobUsecase.NewJobUsecase(jobRepository, integrationRepository, syncStateRepository)
	jobUc.PurgeStale()

	// a freshly connected account gets its first full sync right away
	oauthUc.OnConnected(func(userID string, provider integrationdomain.ProviderType) {
		if _, _, err := jobUc.Trigger(userID, provider, string(syncUsecase.ModeFull), 0); err != nil {
			log.Printf("[OAuth] failed to schedule initial sync for user %s: %v", userID, err)
		}
	})

	notifier, err := notification.NewService(cfg.NATSURL)
	if err != nil {
		log.Printf("[WARN] Notification service disabled: %v", err)
	}

	pool := worker.NewPool(jobRepository, orchestrator, notifier, cfg.SyncWorkerCount, cfg.SyncJobTimeout)
	pool.Start()

	syncScheduler := scheduler.NewSyncScheduler(jobUc, cfg.SyncInterval)
	syncScheduler.Start()

	// Use cases + HTTP
	authUc := authUsecase.NewAuthUsecase(userRepository, cfg)
	contactUc := contactUsecase.NewContactUsecase(contactRepository, interactionRepository)
	deduplicator := contactUsecase.NewDeduplicator(contactRepository)

	handler := api.NewHandler(authUc, oauthUc, contactUc, deduplicator, orchestrator, jobUc, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
