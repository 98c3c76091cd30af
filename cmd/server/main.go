package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"beerlab/internal/config"
	"beerlab/internal/es"
	"beerlab/internal/handlers"
	"beerlab/internal/logging"
	appmw "beerlab/internal/middleware"
	"beerlab/internal/mykafka"
	"beerlab/internal/scheduler"
	"beerlab/internal/service"
	"beerlab/internal/storage"
	httpserver "beerlab/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)

	prod, err := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	if err != nil {
		log.Fatal(err)
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var images storage.ImageStore
	switch configuration.IMAGE_STORE {
	case "s3":
		images, err = storage.NewS3Store(ctx, configuration.S3_BUCKET, configuration.AWS_REGION)
	default:
		images, err = storage.NewLocalStore(configuration.IMAGE_DIR)
	}
	if err != nil {
		log.Fatal(err)
	}

	catalogSvc := service.NewCatalogService(db, images)
	orderSvc := service.NewOrderService(db)

	sched := scheduler.New(db, configuration.SCHEDULER_INTERVAL, logger)
	go sched.Run(ctx)

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), appmw.Prometheus())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(logging.IntoContext(c.Request().Context(), logger)))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		AuthHandler:    &handlers.AuthHandler{DB: db, JWTSecret: jwtSecret, Producer: prod},
		ProductHandler: &handlers.ProductHandler{Svc: catalogSvc, Producer: prod, ES: esClient, Index: "product"},
		OrderHandler:   &handlers.OrderHandler{Svc: orderSvc, Producer: prod, JWTSecret: jwtSecret},
		SearchHandler:  &handlers.SearchHandler{ES: esClient, Index: "product"},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + configuration.PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	log.Println("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
