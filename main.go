package main

import (
	"log"
	"net/http"
	"os"

	"coscribe/config/database"
	"coscribe/internal/auth"
	"coscribe/internal/presence"
	"coscribe/pkg/config"
	"coscribe/pkg/logger"
	"coscribe/router"
	"coscribe/socket"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables from OS")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Server.LogLevel)
	defer logger.Log.Sync()

	db := database.Connect(cfg)
	defer db.Close()

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	hub := socket.NewHub(presence.NewRegistry(), socket.Options{
		SendBufferSize: cfg.Session.SendBufferSize,
		PingInterval:   cfg.Session.PingInterval,
		GatedJoins:     cfg.Session.GatedJoins,
	})
	go hub.Run()

	handler := router.Setup(cfg, db, hub, verifier)

	logger.Sugar.Infof("Listening on %s", cfg.Server.Address)
	if err := http.ListenAndServe(cfg.Server.Address, handler); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
