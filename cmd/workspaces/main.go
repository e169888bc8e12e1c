package main

import (
	reservationsrepo "deskly/internal/reservations/repository"
	"deskly/internal/workspaces/handler"
	"deskly/internal/workspaces/repository"
	"deskly/internal/workspaces/service"
	"deskly/internal/workspaces/validator"
	"deskly/pkg/app"
	"deskly/pkg/config"
)

const ServiceName = "workspaces"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Workspaces service")
	workspaceService, availabilityService := initServices(cfg)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewWorkspaceHandler(workspaceService, availabilityService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) (service.WorkspaceService, service.AvailabilityService) {
	workspaceValidator := validator.NewWorkspaceValidator(cfg.Log)
	workspaceRepo := repository.NewMongoWorkspaceRepository(cfg)
	reservationRepo := reservationsrepo.NewMongoReservationRepository(cfg)

	workspaceService := service.NewWorkspaceService(workspaceRepo, workspaceValidator, cfg)
	availabilityService := service.NewAvailabilityService(workspaceRepo, reservationRepo, cfg)

	cfg.Log.Info("Workspace services initialized", "database", cfg.MongoDatabaseName)
	return workspaceService, availabilityService
}
