package config

import (
	"context"
	"log"
	"os"

	"github.com/go-redis/redis/v8"
)

// Redis is nil when REDIS_ADDR is unset; callers fall back to in-process
// state in that case.
var Redis *redis.Client

func InitRedis() {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		log.Println("Redis not configured, using in-process claim store")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("Warning: Failed to connect to redis at %s: %v", addr, err)
		return
	}

	Redis = client
	log.Println("Redis connected successfully")
}
