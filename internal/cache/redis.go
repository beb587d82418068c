package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the process-wide Redis connection, set once by Connect.
var Client *redis.Client

// Connect dials Redis and verifies the link before anything depends on it.
// An empty addr falls back to the local default.
func Connect(ctx context.Context, addr string) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis at %s: %v", addr, err)
	}

	Client = client
	log.Printf("Redis connected: %s", addr)
}
