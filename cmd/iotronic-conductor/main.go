package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"iotronic/conductor"
	"iotronic/config"
	"iotronic/registry"
	"iotronic/session"
	"iotronic/store"
	"iotronic/wamp"
	"iotronic/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "iotronic.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("iotronic-conductor", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("conductor: database open (%s)", cfg.Database.Driver)

	// Redis mirror
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	var redisStore *registry.RedisStore
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("conductor: redis not available (%v), running without mirror", err)
	} else {
		log.Printf("conductor: redis connected (%s)", cfg.Redis.Address)
		redisStore = registry.NewRedisStore(redisClient)
	}
	cancel()
	defer redisClient.Close()

	// Registry
	selector := registry.NewRandomSelector(rand.New(rand.NewSource(time.Now().UnixNano())))
	reg := registry.New(db, redisStore, selector)
	if err := reg.SyncFromSQL(context.Background()); err != nil {
		log.Printf("conductor: registry sync from SQL: %v", err)
	}

	// Messaging client
	client := wamp.NewClient(&cfg.Messaging)
	if err := client.Connect(); err != nil {
		log.Printf("conductor: messaging connect failed (%v)", err)
	} else {
		log.Printf("conductor: messaging connected (%s)", cfg.Messaging.Backend)
	}
	defer client.Close()

	// Register this conductor, plus its agent role when it carries one.
	hostname := cfg.Conductor.Hostname
	if err := db.RegisterConductor(hostname); err != nil {
		log.Fatalf("register conductor: %v", err)
	}
	if cfg.Conductor.WSURL != "" {
		if err := db.RegisterAgent(hostname, cfg.Conductor.WSURL, cfg.Conductor.RegistrationAgent); err != nil {
			log.Printf("conductor: register agent: %v", err)
		}
	}

	// Heartbeat
	stopHeartbeat := make(chan struct{})
	go reg.Heartbeat(hostname, cfg.Conductor.HeartbeatInterval, cfg.Conductor.StaleAgentThreshold, stopHeartbeat)

	// Task manager deps
	workers := conductor.NewWorkerPool(cfg.Conductor.WorkerPoolSize)
	taskDeps := &conductor.Deps{
		DB:                db,
		Host:              hostname,
		Workers:           workers,
		LockRetryAttempts: cfg.Conductor.LockRetryAttempts,
		LockRetryInterval: cfg.Conductor.LockRetryInterval,
	}

	// Endpoint and session protocol
	endpoint := conductor.NewEndpoint(db, client, reg, taskDeps)
	proto := session.NewProtocol(db, reg, taskDeps, &cfg.Conductor)
	if err := proto.Bind(client); err != nil {
		log.Printf("conductor: bind session rpc: %v", err)
	}

	// Outbox drainer
	drainer := wamp.NewOutboxDrainer(db, client, cfg.Messaging.OutboxDrainInterval)
	drainer.Start()
	defer drainer.Stop()

	// Web server
	handler := www.NewRouter(db, endpoint, reg, client, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	go func() {
		log.Printf("conductor: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("conductor: ready (%s)", hostname)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("conductor: shutting down...")
	close(stopHeartbeat)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	workers.Wait()

	if err := db.UnregisterAgent(hostname); err != nil {
		log.Printf("conductor: unregister agent: %v", err)
	}
	if err := db.UnregisterConductor(hostname); err != nil {
		log.Printf("conductor: unregister conductor: %v", err)
	}

	log.Printf("conductor: stopped")
}
