package main

import (
	"roomly/internal/bookings/events"
	"roomly/internal/bookings/handler"
	"roomly/internal/bookings/repository"
	"roomly/internal/bookings/service"
	"roomly/internal/bookings/validator"
	"roomly/pkg/app"
	"roomly/pkg/config"
	kafka_config "roomly/pkg/kafka/config"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Bookings service")

	publisher := initPublisher(cfg)
	if publisher != nil {
		defer func() {
			if err := publisher.Close(); err != nil {
				cfg.Log.Error("Failed to close event publisher", "error", err)
			}
		}()
	}

	bookingService := initServices(cfg, publisher)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		handler.NewBookingHandler(bookingService, cfg.Log),
		handler.NewHealthHandler(cfg.Client.Mongo.Client, cfg.Log),
	)
	serverApp.Run()
}

// initPublisher is best effort: the service allocates rooms correctly with
// or without a broker, so a missing Kafka config degrades to no events.
func initPublisher(cfg *config.Config) events.Publisher {
	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Warn("Kafka disabled, booking events will not be published", "error", err)
		return nil
	}

	publisher, err := events.NewKafkaPublisher(kafkaCfg, cfg.BookingEventsTopic, cfg.BookingEventsDLQTopic, cfg.Log)
	if err != nil {
		cfg.Log.Warn("Failed to initialize event publisher, booking events will not be published", "error", err)
		return nil
	}

	cfg.Log.Info("Event publisher initialized", "topic", cfg.BookingEventsTopic)
	return publisher
}

func initServices(cfg *config.Config, publisher events.Publisher) service.BookingService {
	bookingValidator := validator.NewBookingValidator()
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	roomRepo := repository.NewMongoRoomRepository(cfg)
	entitlementRepo := repository.NewMongoEntitlementRepository(cfg)
	lockRepo := repository.NewMongoRoomLockRepository(cfg)

	bookingService := service.NewBookingService(
		bookingRepo,
		roomRepo,
		entitlementRepo,
		lockRepo,
		bookingValidator,
		publisher,
		cfg,
	)

	cfg.Log.Info("Booking service initialized", "database", cfg.MongoDatabaseName)
	return bookingService
}
