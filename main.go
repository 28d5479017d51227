package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	gconf "NoteCollab/global/config"
	"NoteCollab/logger"
	mid "NoteCollab/middleware/security"
	"NoteCollab/service/collab"
	"NoteCollab/service/kafka"
	"NoteCollab/service/natsx"
	"NoteCollab/service/storage"
	rds "NoteCollab/service/storage/redis"
)

func main() {
	gconf.ConfigAll()
	cfg := gconf.Global

	deps := buildDeps(cfg)

	engine := collab.NewEngine(collab.EngineConf{
		HeartbeatEvery: cfg.HeartbeatEvery,
		SweepEvery:     cfg.SweepEvery,
		IdleTimeout:    cfg.IdleTimeout,
		SyncEvery:      cfg.SyncEvery,
	}, deps)

	// 热重启：先回灌再放流量
	if deps.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := engine.RestoreFromStore(ctx); err != nil {
			logger.Warnf("[main] restore from store failed err=%v", err)
		}
		cancel()
	}
	engine.Start()

	var auth collab.Authenticator
	if cfg.DevAuth {
		logger.Warn("[main] dev auth enabled, do NOT use in production")
		auth = mid.DevAuthenticator{}
	} else {
		auth = mid.NewJWTAuthenticator(gconf.GetJwtSecret())
	}

	r := gin.New()
	r.Use(gin.Recovery())
	collab.NewServer(engine, auth).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	go func() {
		logger.Infof("[main] collab node %s listening on :%d", cfg.NodeId, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[main] http server failed err=%v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("[main] signal received, shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	engine.Shutdown(ctx)
	logger.Info("[main] bye")
}

// buildDeps 按配置装配协作方；地址没配的能力直接缺省（引擎内全部可空）。
func buildDeps(cfg gconf.AppConfig) collab.Deps {
	var deps collab.Deps

	switch cfg.StoreBackend {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := storage.NewMongoStore(ctx, storage.MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDB})
		cancel()
		if err != nil {
			logger.Errorf("[main] mongo store init failed err=%v", err)
		} else {
			deps.Store = store
		}
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := storage.NewPgStore(ctx, cfg.PostgresDSN)
		cancel()
		if err != nil {
			logger.Errorf("[main] pg store init failed err=%v", err)
		} else {
			deps.Store = store
		}
	case "":
		logger.Warn("[main] no store configured, document state is memory-only")
	default:
		logger.Errorf("[main] unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.RedisAddr != "" {
		if err := rds.InitRedis(rds.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPass}); err != nil {
			logger.Errorf("[main] redis init failed err=%v", err)
		} else {
			deps.Presence = storage.NewRedisPresence(rds.GetRedis())
		}
	}

	if len(cfg.NatsServers) > 0 {
		nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{Servers: cfg.NatsServers, Name: cfg.NodeId})
		if err != nil {
			logger.Errorf("[main] nats init failed err=%v", err)
		} else {
			deps.Events = natsx.NewEventProducer(nc)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		j, err := kafka.NewJournal(kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			logger.Errorf("[main] kafka journal init failed err=%v", err)
		} else {
			deps.Journal = j
		}
	}
	return deps
}
