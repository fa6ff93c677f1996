// Package prefs persists the student's saved preferences. Today that is a
// single value: the custom Tajweed rules text, kept under one fixed key so
// every reader and writer agrees on where it lives.
package prefs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// rulesKey is the fixed storage key for the custom Tajweed rules.
const rulesKey = "prefs:custom_tajweed_rules"

// Store holds preferences in Redis when available, falling back to process
// memory otherwise. The rules value is read once at startup and kept
// in-process; writes go through to Redis.
type Store struct {
	redis *redis.Client

	mu    sync.RWMutex
	rules string
}

// NewStore opens the preference store. redisAddr may be empty; the store
// then lives in memory only and values do not survive a restart.
func NewStore(ctx context.Context, redisAddr, redisPassword string) *Store {
	st := &Store{}

	if redisAddr == "" {
		return st
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("⚠️ Redis unavailable, preferences will not persist: %v", err)
		return st
	}

	st.redis = client
	st.load(ctx)
	return st
}

func (st *Store) load(ctx context.Context) {
	val, err := st.redis.Get(ctx, rulesKey).Result()
	if err == redis.Nil {
		return
	}
	if err != nil {
		log.Printf("⚠️ Failed to load saved Tajweed rules: %v", err)
		return
	}
	st.mu.Lock()
	st.rules = val
	st.mu.Unlock()
}

// Rules returns the saved custom Tajweed rules, "" when none are saved.
func (st *Store) Rules() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.rules
}

// SetRules saves the custom Tajweed rules. An empty value clears them
// entirely, removing the stored key.
func (st *Store) SetRules(ctx context.Context, rules string) error {
	if rules == "" {
		return st.Clear(ctx)
	}

	st.mu.Lock()
	st.rules = rules
	st.mu.Unlock()

	if st.redis != nil {
		if err := st.redis.Set(ctx, rulesKey, rules, 0).Err(); err != nil {
			return fmt.Errorf("failed to persist Tajweed rules: %w", err)
		}
	}
	return nil
}

// Clear removes the saved rules.
func (st *Store) Clear(ctx context.Context) error {
	st.mu.Lock()
	st.rules = ""
	st.mu.Unlock()

	if st.redis != nil {
		if err := st.redis.Del(ctx, rulesKey).Err(); err != nil {
			return fmt.Errorf("failed to clear Tajweed rules: %w", err)
		}
	}
	return nil
}

// Close releases the Redis connection if one is open.
func (st *Store) Close() error {
	if st.redis != nil {
		return st.redis.Close()
	}
	return nil
}
