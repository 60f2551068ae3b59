package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/openvtt/battlemap/pkg/api"
	authproviders "github.com/openvtt/battlemap/pkg/auth/providers"
	"github.com/openvtt/battlemap/pkg/battlefield"
	"github.com/openvtt/battlemap/pkg/gateway"
	"github.com/openvtt/battlemap/pkg/log"
	"github.com/openvtt/battlemap/pkg/repositories"
	"github.com/openvtt/battlemap/pkg/rooms"
)

type config struct {
	DatabaseURL       string `env:"DATABASE_URL"`
	SQLitePath        string `env:"SQLITE_PATH" envDefault:"battlemap.db"`
	SQLiteMigrations  string `env:"SQLITE_MIGRATIONS" envDefault:"migrations/sqlite"`
	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID"`
	FirebaseAPIKey    string `env:"FIREBASE_API_KEY"`
}

const shutdownTimeout = 10 * time.Second

func main() {
	apiPort := flag.Int("api-port", 9090, "API port to listen on")
	wsPort := flag.Int("ws-port", 9091, "WebSocket port to listen on")
	authProviderName := flag.String("auth-provider", "static", "Auth provider (static, firebase)")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	cfg := config{}
	if err := env.Parse(&cfg); err != nil {
		panic(fmt.Sprintf("Failed to parse environment: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repository repositories.Repository
	if cfg.DatabaseURL != "" {
		repository = repositories.NewPostgresRepository(ctx, cfg.DatabaseURL)
	} else {
		repository, err = repositories.NewSQLiteRepository(ctx, cfg.SQLitePath, cfg.SQLiteMigrations)
		if err != nil {
			panic(fmt.Sprintf("Failed to open sqlite repository: %v", err))
		}
	}
	defer repository.Close(context.Background())

	var authProvider authproviders.AuthProvider
	switch *authProviderName {
	case "static":
		log.Warn("Using static auth provider; tokens are not verified")
		authProvider = authproviders.NewStaticAuthProvider()
	case "firebase":
		authProvider, err = authproviders.NewFirebaseAuthProvider(ctx, cfg.FirebaseProjectID, cfg.FirebaseAPIKey)
		if err != nil {
			panic(fmt.Sprintf("Failed to create firebase auth provider: %v", err))
		}
	default:
		panic(fmt.Sprintf("Unknown auth provider: %s", *authProviderName))
	}

	store := battlefield.NewStore(repository)
	roomManager := rooms.NewRoomManager()

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:         *apiPort,
		AuthProvider: authProvider,
		Repository:   repository,
		Store:        store,
	})
	go apiServer.Start()

	gw := gateway.NewGateway(gateway.NewGatewayOptions{
		Port:         *wsPort,
		Rooms:        roomManager,
		Store:        store,
		AuthProvider: authProvider,
		Repository:   repository,
	})
	go gw.Start(ctx)

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop gateway: %v", err)
	}
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}
}
