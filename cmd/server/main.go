package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/hotdice/pkg/api"
	authproviders "github.com/cbodonnell/hotdice/pkg/auth/providers"
	"github.com/cbodonnell/hotdice/pkg/bot"
	"github.com/cbodonnell/hotdice/pkg/bus"
	"github.com/cbodonnell/hotdice/pkg/game"
	"github.com/cbodonnell/hotdice/pkg/log"
	"github.com/cbodonnell/hotdice/pkg/matchmaking"
	"github.com/cbodonnell/hotdice/pkg/repositories"
	"github.com/cbodonnell/hotdice/pkg/servers"
	"github.com/cbodonnell/hotdice/pkg/version"
	"github.com/cbodonnell/hotdice/pkg/workers"
	"github.com/redis/go-redis/v9"
)

const (
	promoteQueueSize = 1000
	guardTTL         = 1 * time.Hour
)

func main() {
	apiPort := flag.Int("api-port", 9090, "port for the match API")
	wsPort := flag.Int("ws-port", 9091, "port for the snapshot stream")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting server version %s", version.Get())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository := newRepository(ctx)
	defer repository.Close(ctx)

	guard := newGuard(ctx)
	authProvider := newAuthProvider(ctx)
	authoritative := newAuthoritativeClient()

	syncBus := bus.NewMemoryBus()
	aliases := matchmaking.NewAliasTable()
	promoteChan := make(chan matchmaking.PromoteRequest, promoteQueueSize)

	factory := matchmaking.NewFactory(matchmaking.NewFactoryOptions{
		Repository:    repository,
		SyncBus:       syncBus,
		Guard:         guard,
		Authoritative: authoritative,
		Aliases:       aliases,
		PromoteChan:   promoteChan,
	})

	matchService := game.NewMatchService(game.NewMatchServiceOptions{
		Repository: repository,
		SyncBus:    syncBus,
		Guard:      guard,
		Factory:    factory,
		Aliases:    aliases,
		Roller:     game.NewCryptoRoller(),
	})
	matchService.SetBotSpawner(bot.NewRunner(bot.NewRunnerOptions{
		Actor: matchService,
	}))

	promotionWorker := workers.NewPromotionWorker(workers.NewPromotionWorkerOptions{
		Factory:      factory,
		Replayer:     matchService,
		PromoteQueue: promoteChan,
	})
	go promotionWorker.Start(ctx)

	sweepWorker := workers.NewSweepWorker(workers.NewSweepWorkerOptions{
		Repository: repository,
		SyncBus:    syncBus,
		Guard:      guard,
		Aliases:    aliases,
	})
	go sweepWorker.Start(ctx)

	apiServerOpts := api.NewAPIServerOptions{
		Port:         *apiPort,
		AuthProvider: authProvider,
		Repository:   repository,
		MatchService: matchService,
	}
	tlsCertFile := os.Getenv("HOTDICE_TLS_CERT_FILE")
	tlsKeyFile := os.Getenv("HOTDICE_TLS_KEY_FILE")
	if tlsCertFile != "" && tlsKeyFile != "" {
		apiServerOpts.TLS = &api.TLSConfig{
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		}
	}
	apiServer := api.NewAPIServer(apiServerOpts)
	go apiServer.Start()

	snapshotServerOpts := servers.NewSnapshotServerOptions{
		Port:         *wsPort,
		AuthProvider: authProvider,
		Repository:   repository,
		MatchService: matchService,
	}
	if tlsCertFile != "" && tlsKeyFile != "" {
		snapshotServerOpts.TLS = &servers.TLSConfig{
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		}
	}
	snapshotServer := servers.NewSnapshotServer(snapshotServerOpts)
	go snapshotServer.Start(ctx)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	log.Info("Shutting down")
	cancel()
	if err := apiServer.Stop(context.Background()); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}
}

func newRepository(ctx context.Context) repositories.Repository {
	connStr := os.Getenv("HOTDICE_DATABASE_URL")
	if connStr == "" {
		connStr = "sqlite://hotdice.db"
	}

	u, err := url.Parse(connStr)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse connection string: %v", err))
	}

	switch u.Scheme {
	case "sqlite":
		repository, err := repositories.NewSQLiteRepository(ctx, u.Host, "./migrations/sqlite")
		if err != nil {
			panic(fmt.Sprintf("Failed to create SQLite repository: %v", err))
		}
		return repository
	case "postgresql":
		repository, err := repositories.NewPostgresRepository(ctx, u.String())
		if err != nil {
			panic(fmt.Sprintf("Failed to create Postgres repository: %v", err))
		}
		return repository
	case "memory":
		return repositories.NewMemoryRepository()
	default:
		panic(fmt.Sprintf("Unknown database type %s", u.Scheme))
	}
}

func newGuard(ctx context.Context) matchmaking.SessionGuard {
	redisURL := os.Getenv("HOTDICE_REDIS_URL")
	if redisURL == "" {
		return matchmaking.NewMemoryGuard()
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse redis URL: %v", err))
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to redis: %v", err))
	}
	return matchmaking.NewRedisGuard(rdb, guardTTL)
}

func newAuthProvider(ctx context.Context) authproviders.AuthProvider {
	firebaseProjectID := os.Getenv("HOTDICE_FIREBASE_PROJECT_ID")
	if firebaseProjectID == "" {
		log.Warn("HOTDICE_FIREBASE_PROJECT_ID not set, using insecure auth")
		return authproviders.NewInsecureAuthProvider()
	}
	firebaseAPIKey := os.Getenv("HOTDICE_FIREBASE_API_KEY")
	authProvider, err := authproviders.NewFirebaseAuthProvider(ctx, firebaseProjectID, firebaseAPIKey)
	if err != nil {
		panic(fmt.Sprintf("Failed to create Firebase auth provider: %v", err))
	}
	return authProvider
}

func newAuthoritativeClient() matchmaking.AuthoritativeClient {
	matchmakerURL := os.Getenv("HOTDICE_MATCHMAKER_URL")
	if matchmakerURL == "" {
		log.Warn("HOTDICE_MATCHMAKER_URL not set, sessions stay optimistic")
		return matchmaking.NewDisabledAuthoritativeClient()
	}
	return matchmaking.NewHTTPAuthoritativeClient(matchmaking.NewHTTPAuthoritativeClientOptions{
		BaseURL: matchmakerURL,
		Timeout: 5 * time.Second,
	})
}
