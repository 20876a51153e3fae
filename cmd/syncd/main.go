package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mailsync/config"
	"mailsync/internal/annotate"
	"mailsync/internal/credstore"
	"mailsync/internal/db"
	"mailsync/internal/httpserver"
	"mailsync/internal/ingest"
	"mailsync/internal/mq"
	"mailsync/internal/mqhandler"
	"mailsync/internal/provider"
	redisclient "mailsync/internal/redis"
	"mailsync/internal/repository"
	"mailsync/internal/scanner"
	"mailsync/internal/syncer"
	"mailsync/internal/util"
	"mailsync/pkg/logger"
	"mailsync/pkg/outbox"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting mail sync daemon...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()
	log.Info("Database connection established")

	// Init Redis
	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, 24*time.Hour)
	failures := util.NewRetryCounter(rdb, 24*time.Hour)

	// Init MQ producer + outbox dispatcher
	producer, err := mq.NewProducer(cfg.MQ.URL)
	if err != nil {
		log.Fatal("MQ producer initialization failed", zap.Error(err))
	}
	defer producer.Close()

	outboxRepo := outbox.NewRepository(dbConn)
	dispatcher := outbox.NewDispatcher(outboxRepo, producer, log).
		WithInterval(2 * time.Second).
		WithBatchSize(50)
	go dispatcher.Start(ctx)

	// Init repositories
	accountRepo := repository.NewAccountRepository(dbConn)
	messageRepo := repository.NewMessageRepository(dbConn, accountRepo, outboxRepo)
	draftRepo := repository.NewDraftRepository(dbConn)

	// Init sync pipeline
	keeper, err := credstore.New(cfg.Credstore.Key)
	if err != nil {
		log.Fatal("Credstore initialization failed", zap.Error(err))
	}
	mailProvider := provider.NewHTTPProvider(
		cfg.Provider.BaseURL,
		time.Duration(cfg.Provider.TimeoutSeconds)*time.Second,
		keeper,
		time.Duration(cfg.Provider.TokenTTLSecs)*time.Second,
	)
	ingestor := ingest.NewIngestor(scanner.New(), log)
	accountSyncer := syncer.NewAccountSyncer(mailProvider, ingestor, accountRepo, messageRepo, log)
	scheduler := syncer.NewScheduler(accountRepo, accountSyncer, failures, log, syncer.Config{
		Interval:   time.Duration(cfg.Sync.IntervalSeconds) * time.Second,
		Workers:    cfg.Sync.Workers,
		MaxRetries: cfg.Sync.MaxRetries,
		RetryBase:  time.Duration(cfg.Sync.RetryBaseMillis) * time.Millisecond,
	})

	// Init draft.generated consumer
	annotator := annotate.NewAnnotator(log)
	draftHandler := mqhandler.NewDraftGeneratedHandler(draftRepo, annotator, deduper, producer, log)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, "draft.generated.annotate.q", mq.RoutingDraftGenerated, log)
	if err != nil {
		log.Fatal("failed to init draft consumer", zap.Error(err))
	}
	consumer.SetHandler(draftHandler.HandleDraftGenerated)
	defer consumer.Close()
	go func() {
		log.Info("Starting draft consumer", zap.String("queue", "draft.generated.annotate.q"))
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("draft consumer stopped", zap.Error(err))
		}
	}()

	// Init status API
	statusHandler := httpserver.NewStatusHandler(
		accountRepo,
		messageRepo,
		time.Duration(cfg.Sync.StalenessSeconds)*time.Second,
		log,
	)
	router := httpserver.NewRouter(statusHandler)
	go func() {
		log.Info("Status API listening", zap.String("port", cfg.Server.Port))
		if err := router.Run(cfg.Server.Port); err != nil {
			log.Fatal("HTTP server stopped", zap.Error(err))
		}
	}()

	// 调度器阻塞到收到退出信号，等 in-flight cycle 收尾
	scheduler.Run(ctx)
	log.Info("Mail sync daemon stopped")
}
