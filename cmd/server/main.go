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

	"github.com/mandymgr/helseriet-backend/internal/config"
	"github.com/mandymgr/helseriet-backend/internal/es"
	"github.com/mandymgr/helseriet-backend/internal/handlers"
	"github.com/mandymgr/helseriet-backend/internal/logging"
	loggingmw "github.com/mandymgr/helseriet-backend/internal/middleware/logging"
	"github.com/mandymgr/helseriet-backend/internal/mykafka"
	"github.com/mandymgr/helseriet-backend/internal/service/cart"
	"github.com/mandymgr/helseriet-backend/internal/service/order"
	"github.com/mandymgr/helseriet-backend/internal/service/token"
	httpserver "github.com/mandymgr/helseriet-backend/internal/transport/http"
	"github.com/mandymgr/helseriet-backend/internal/vipps"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LogLevel)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	jwtSecret := []byte(configuration.JWTSecret)
	refreshSecret := []byte(configuration.RefreshSecret)

	prod := mykafka.NewProducer([]string{configuration.KafkaAddress})

	esClient, err := es.NewClient(configuration)
	if err != nil {
		log.Fatal(err)
	}

	vippsClient := vipps.NewClient(&configuration.Vipps)
	orderSvc := order.New(db, vippsClient, prod)
	cartSvc := cart.New(db)

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		AuthHandler:    &handlers.AuthHandler{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret, Producer: prod},
		ProductHandler: &handlers.ProductHandler{DB: db, Producer: prod},
		CartHandler:    &handlers.CartHandler{Svc: cartSvc, Producer: prod},
		OrderHandler:   &handlers.OrderHandler{Svc: orderSvc},
		WebhookHandler: &handlers.WebhookHandler{Svc: orderSvc},
		SearchHandler:  &handlers.SearchHandler{ES: esClient, Index: "product"},
		TokenService:   &token.TokenService{DB: db, RefreshSecret: refreshSecret, JWTSecret: jwtSecret},
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + configuration.HTTPPort,
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
