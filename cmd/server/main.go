package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/learnloop/chat-service/internal/api"
	"github.com/learnloop/chat-service/internal/auth"
	"github.com/learnloop/chat-service/internal/config"
	"github.com/learnloop/chat-service/internal/events"
	"github.com/learnloop/chat-service/internal/identity"
	"github.com/learnloop/chat-service/internal/logger"
	"github.com/learnloop/chat-service/internal/metrics"
	"github.com/learnloop/chat-service/internal/notify"
	"github.com/learnloop/chat-service/internal/presence"
	"github.com/learnloop/chat-service/internal/service"
	"github.com/learnloop/chat-service/internal/storage"
	"github.com/learnloop/chat-service/internal/store/mongostore"
	"github.com/learnloop/chat-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.App.Development())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, err := mongostore.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		lg.Fatalw("mongo connect", "err", err)
	}
	defer mongoClient.Disconnect(context.Background())
	st := mongostore.New(mongoClient, cfg.Mongo.DB)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		lg.Fatalw("redis connect", "err", err)
	}
	defer rdb.Close()

	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		lg.Fatalw("nats connect", "err", err)
	}
	defer nc.Close()

	notifier := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg)
	defer notifier.Close()

	var blobs storage.BlobStore
	if cfg.S3.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, cfg.S3.Region, cfg.S3.Bucket)
		if err != nil {
			lg.Fatalw("s3 init", "err", err)
		}
		blobs = s3Store
	}

	var verifier *auth.Verifier
	if strings.EqualFold(cfg.JWT.Alg, "RS256") {
		verifier, err = auth.NewRS256Verifier(cfg.JWT.PublicKeyPath)
		if err != nil {
			lg.Fatalw("jwt public key", "err", err)
		}
	} else {
		verifier = auth.NewHS256Verifier(cfg.JWT.HSSecret)
	}

	directory := identity.NewHTTPDirectory(cfg.Identity.BaseURL, 10*time.Second)
	bus := events.NewPublisher(nc, lg)

	rooms := service.NewRoomService(st, directory, notifier, bus, lg)
	requests := service.NewRequestService(st, directory, notifier, bus, lg)
	messages := service.NewMessageService(st, notifier, lg)
	tracker := presence.NewTracker(rdb, "chat", lg)

	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	gw := ws.NewGateway(hub, rooms, messages, tracker, verifier, lg)
	sub := events.NewSubscriber(nc, gw, lg)
	if err := sub.Start(); err != nil {
		lg.Fatalw("event subscriber", "err", err)
	}
	defer sub.Stop()

	handlers := api.NewHandlers(rooms, requests, messages, blobs, lg)
	app := api.NewServer(handlers, gw, verifier, rdb, cfg.App.Rate)

	if cfg.App.MetricsPort != 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.App.MetricsAddr(), mux); err != nil {
				lg.Warnw("metrics listener", "err", err)
			}
		}()
	}

	go func() {
		lg.Infow("chat service listening", "addr", cfg.App.Addr(), "env", cfg.App.Env)
		if err := app.Listen(cfg.App.Addr()); err != nil {
			lg.Errorw("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	lg.Infow("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		lg.Warnw("shutdown", "err", err)
	}
}
