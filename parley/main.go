package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parley/parley/config"
	"parley/parley/controllers"
	"parley/parley/realtime"
	"parley/parley/routes"
	"parley/parley/services/llm"
	"parley/parley/services/titles"
	"parley/parley/sources/mongo"
	"parley/parley/sources/psql"
	"parley/parley/sources/psql/dao"
	"parley/parley/sources/storage"
	"parley/parley/utils/logging"
	"parley/parley/utils/telemetry"

	"go.uber.org/zap"
)

type store interface {
	controllers.ChatStore
	controllers.DeviceRegistry
	controllers.Pinger
	Close()
}

// psqlStore pairs the gorm DAOs with their database handle.
type psqlStore struct {
	*psql.Database
	*dao.Store
	*dao.DeviceDAO
}

type mongoStore struct {
	*mongo.Database
	*mongo.Store
}

func openStore(ctx context.Context, cfg config.Config) (store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		db, err := psql.NewDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return psqlStore{Database: db, Store: dao.NewStore(db.DB), DeviceDAO: dao.NewDeviceDAO(db.DB)}, nil
	default:
		db, err := mongo.NewDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return mongoStore{Database: db, Store: mongo.NewStore(db)}, nil
	}
}

// newServer returns a server whose request contexts are cancelled when
// Shutdown starts. Shutdown alone leaves hijacked websocket connections open.
func newServer(addr string, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logging.InitLogger(cfg.LogDir); err != nil {
		os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logging.Sync()

	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.InitTelemetry(context.Background(), cfg.LogDir)
		if err != nil {
			logging.ErrorLogger.Error("telemetry init error", zap.Error(err))
			os.Exit(1)
		}
		defer shutdown()
	}

	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		logging.ErrorLogger.Error("prompts error", zap.Error(err))
		os.Exit(1)
	}
	client, err := llm.NewClient(cfg)
	if err != nil {
		logging.ErrorLogger.Error("llm client error", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := openStore(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("database connection error", zap.String("driver", cfg.StoreDriver), zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	opts := controllers.ChatOptions{
		Model:        cfg.LLMModel,
		SystemPrompt: prompts.SystemPrompt,
		HistoryTurns: cfg.ChatHistoryTurns,
	}
	if cfg.ArchiveEnabled() {
		minioClient, err := storage.NewMinIOClient(ctx, cfg)
		if err != nil {
			logging.ErrorLogger.Error("minio connection error", zap.Error(err))
			os.Exit(1)
		}
		opts.Archiver = minioClient
	}

	hub := realtime.NewHub()
	chatCtrl := controllers.NewChatController(db, client, titles.NewGenerator(client, cfg.TitleModel, prompts), hub, opts)
	r := routes.NewRouter(routes.Handlers{
		Chat:   chatCtrl,
		Auth:   controllers.NewAuthController(db, cfg),
		Health: controllers.NewHealthController(db),
		Hub:    hub,
	}, cfg)

	srv := newServer(":"+cfg.Port, r)
	go func() {
		logging.AppLogger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.StoreDriver),
			zap.String("llm_provider", cfg.LLMProvider),
			zap.String("model", cfg.LLMModel),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	// No user message is accepted past this point, so Wait cannot race a new stream.
	chatCtrl.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
	}
	// In-flight streams finish and persist before the store closes.
	chatCtrl.Wait()
	logging.AppLogger.Info("server shutdown complete")
}
