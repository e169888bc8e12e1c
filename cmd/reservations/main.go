package main

import (
	"deskly/internal/reservations/conflict"
	"deskly/internal/reservations/events"
	"deskly/internal/reservations/handler"
	"deskly/internal/reservations/repository"
	"deskly/internal/reservations/service"
	"deskly/internal/reservations/validator"
	workspacesrepo "deskly/internal/workspaces/repository"
	"deskly/pkg/app"
	"deskly/pkg/config"
	"deskly/pkg/kafka"
	kafka_config "deskly/pkg/kafka/config"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Reservations service")
	reservationService, producer := initServices(cfg)
	if producer != nil {
		defer func() {
			if err := producer.Close(); err != nil {
				cfg.Log.Error("Failed to close Kafka producer", "error", err)
			}
		}()
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handler.NewReservationHandler(reservationService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) (service.ReservationService, *kafka.Producer) {
	reservationValidator := validator.NewReservationValidator(cfg.Log)
	reservationRepo := repository.NewMongoReservationRepository(cfg)
	lockRepo := repository.NewReservationLockRepository(cfg)
	workspaceRepo := workspacesrepo.NewMongoWorkspaceRepository(cfg)
	detector := conflict.NewDetector(reservationRepo)

	producer := initProducer(cfg)
	publisher := events.NewPublisher(producer, cfg.Log)

	reservationService := service.NewReservationService(
		reservationRepo,
		lockRepo,
		workspaceRepo,
		detector,
		reservationValidator,
		publisher,
		cfg,
	)

	cfg.Log.Info("Reservation service initialized", "database", cfg.MongoDatabaseName)
	return reservationService, producer
}

// initProducer wires the event producer. A broker being down must not keep
// reservations from starting, so failures degrade to nil and the publisher
// becomes a no-op.
func initProducer(cfg *config.Config) *kafka.Producer {
	kafkaCfg := kafka_config.Load()
	producer, err := kafka.NewProducer(kafkaCfg, cfg.Log)
	if err != nil {
		cfg.Log.Warn("Kafka producer unavailable, events disabled", "error", err)
		return nil
	}
	return producer
}
