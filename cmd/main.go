package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"rentline/backend/internal/api/handler"
	"rentline/backend/internal/chathub"
	"rentline/backend/internal/config"
	"rentline/backend/internal/models"
	"rentline/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg config.Config) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	err = db.AutoMigrate(
		&models.Chat{},
		&models.Message{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting Rentline Chat Backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg := config.Load()

	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)

	hub := chathub.NewManagerService(s)
	go hub.Run()

	r := gin.Default()
	h := handler.NewHandler(hub, s)

	r.GET("/ws", h.ServeWebSocket)

	r.GET("/chats", h.ListChats)
	r.POST("/chats", h.CreateChat)
	r.GET("/chats/:id", h.GetChat)
	r.DELETE("/chats/:id", h.DeleteChat)
	r.POST("/chats/:id/messages", h.PostMessage)
	r.PUT("/chats/:id/read", h.MarkChatRead)
	r.PUT("/messages/:id/read", h.MarkMessageRead)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
