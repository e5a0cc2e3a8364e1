package main

import (
	"log"
	"time"

	"payment-reconciliation-backend/internal/app"
	"payment-reconciliation-backend/internal/config"
	"payment-reconciliation-backend/internal/database"
	handler "payment-reconciliation-backend/internal/handlers"
	"payment-reconciliation-backend/internal/logging"
	"payment-reconciliation-backend/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("database")
	}

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", handler.ActorHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, app.New(db, cfg, logger), logger)

	logger.WithField("port", cfg.Server.Port).Info("listening")
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}
