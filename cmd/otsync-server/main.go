// Command otsync-server runs the authoritative OT backend: a websocket
// endpoint over Backend, backed by an in-memory or MySQL-via-gorm store,
// an optional Redis snapshot cache, and an optional Kafka audit stream.
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"otsync/internal/config"
	"otsync/internal/ottype"
	"otsync/internal/server"
	"otsync/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("otsync-server: config: %v", err)
	}
	log.Printf("otsync-server: config: %+v", cfg)

	registry := ottype.NewDefaultRegistry()
	store := buildStore(cfg)

	backend := server.NewBackend(store, registry)
	backend.SetMaxRetries(cfg.Retry.MaxSubmitRetries)
	if auditor := buildAuditor(cfg); auditor != nil {
		backend.SetAuditor(auditor)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})
	r.GET("/ws", transport.Handler(backend))

	port := cfg.Running.Port
	if port == 0 {
		port = 8080
	}
	if err := r.Run(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatalf("otsync-server: %v", err)
	}
}

func buildStore(cfg *config.Config) server.Store {
	var store server.Store
	switch cfg.Store.Backend {
	case "mysql":
		db, err := gorm.Open(mysql.Open(cfg.Store.DSN), &gorm.Config{})
		if err != nil {
			log.Fatalf("otsync-server: connect mysql: %v", err)
		}
		gormStore := server.NewGormStore(db, func() int64 { return time.Now().UnixMilli() })
		if err := gormStore.AutoMigrate(); err != nil {
			log.Fatalf("otsync-server: migrate mysql: %v", err)
		}
		store = gormStore
	default:
		store = server.NewMemStore(func() int64 { return time.Now().UnixMilli() })
	}

	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addrs[0],
			Password: cfg.Redis.Password,
		})
		store = server.NewRedisCache(store, rdb, 5*time.Minute)
	}
	return store
}

func buildAuditor(cfg *config.Config) *server.AuditPublisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	kafkaCfg := sarama.NewConfig()
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Printf("otsync-server: kafka unavailable, audit disabled: %v", err)
		return nil
	}
	return server.NewAuditPublisher(producer, cfg.Kafka.Topic, server.AuditOptions{
		QueueSize:      10_000,
		Workers:        4,
		MaxRetry:       3,
		MaxConcurrency: 8,
	})
}
