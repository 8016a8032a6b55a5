package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-orchestrator/internal/addresses"
	"github.com/jogardn/order-orchestrator/internal/circuitbreaker"
	"github.com/jogardn/order-orchestrator/internal/config"
	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/jogardn/order-orchestrator/internal/httpapi"
	"github.com/jogardn/order-orchestrator/internal/logistics"
	"github.com/jogardn/order-orchestrator/internal/orders"
	"github.com/jogardn/order-orchestrator/internal/product"
	"github.com/jogardn/order-orchestrator/internal/storage/memory"
	"github.com/jogardn/order-orchestrator/internal/storage/postgres"
	"github.com/jogardn/order-orchestrator/internal/websocket"
	"github.com/sirupsen/logrus"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type orderStore interface {
	orders.Repository
	pinger
}

type stores struct {
	orders    orderStore
	addresses addresses.Repository
	journal   orders.Journal
	db        *sql.DB
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage")
	}
	if st.db != nil {
		defer st.db.Close()
	}

	hub := websocket.NewHub(cfg.AllowedOrigin, logger)
	go hub.Run(ctx)

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{
		MaxFailures:   cfg.BreakerMaxFailures,
		OpenTimeout:   cfg.BreakerTimeout,
		OnStateChange: breakerNotifier(hub),
	}, logger)
	productClient := product.NewClient(cfg.ProductServiceURL, cfg.RemoteTimeout, breakers, logger)
	logisticsClient := logistics.NewClient(cfg.LogisticsServiceURL, cfg.RemoteTimeout, breakers, logger)

	addressService := addresses.NewService(st.addresses, logger)
	orderService := orders.NewService(st.orders, st.addresses, productClient, logisticsClient, st.journal, logger, orders.Options{
		DefaultCarrier:      cfg.DefaultCarrier,
		DefaultServiceLevel: cfg.DefaultServiceLevel,
	})
	orderService.SetWebSocketHub(hub)

	if n, err := orderService.ReportInterruptedTransitions(ctx); err != nil {
		logger.WithError(err).Error("Failed to read transition journal")
	} else if n > 0 {
		logger.WithField("count", n).Warn("Found interrupted order transitions")
	}

	var consumer *events.ShipmentConsumer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		orderService.SetEventPublisher(producer)

		consumer, err = events.NewShipmentConsumer(cfg.KafkaBrokers, cfg.ShipmentConsumerGroup,
			orders.NewShipmentListener(orderService, logger), logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create shipment consumer")
		}
		defer consumer.Close()

		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.WithError(err).Error("Shipment consumer stopped")
			}
		}()
	} else {
		logger.Warn("KAFKA_BROKERS not set, event publishing and shipment listener disabled")
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck(st.orders, consumer, breakers, hub)).Methods(http.MethodGet)
	router.HandleFunc("/ws", hub.HandleWebSocket)
	router.HandleFunc("/admin/breakers/reset", resetBreakers(breakers, logger)).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	orders.NewHandler(orderService, logger).RegisterRoutes(api)
	addresses.NewHandler(addressService, logger).RegisterRoutes(api)

	router.Use(httpapi.LoggingMiddleware(logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpapi.CORSMiddleware(cfg.AllowedOrigin)(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"storage": cfg.StorageDriver,
		}).Info("Starting order service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	cancel()

	logger.Info("Server gracefully stopped")
}

func openStores(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*stores, error) {
	if cfg.StorageDriver == "memory" {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return &stores{
			orders:    memory.NewOrderRepository(),
			addresses: memory.NewAddressRepository(),
			journal:   memory.NewTransitionJournal(),
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.PostgresDSN(), 30, logger)
	if err != nil {
		return nil, err
	}
	if err := postgres.CreateTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &stores{
		orders:    postgres.NewOrderRepository(db),
		addresses: postgres.NewAddressRepository(db),
		journal:   postgres.NewTransitionJournal(db),
		db:        db,
	}, nil
}
