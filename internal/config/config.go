// Package config loads the coordination core's tunables from the
// environment, following the teacher's cmd/server/main.go getEnv pattern.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every configurable option named in the specification's
// "Configurable options" list, plus the transport/storage knobs a runnable
// binary needs that the distilled spec didn't have to name.
type Config struct {
	Port         string
	BackendID    string
	RedisAddr    string
	RedisDB      int
	DatabasePath string
	LogPath      string
	DevMode      bool

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	RPCTimeout             time.Duration
	CriticalConfirmTimeout time.Duration

	DraftStepTimeout time.Duration
	AcceptTimeout    time.Duration

	MaxPendingEventsPerPlayer int

	SpecialUsers map[string]bool

	KFactor    int
	DefaultMMR int

	OwnershipTTL time.Duration
}

// Load reads the environment into a Config, applying the defaults from
// spec §6 wherever a variable is unset or invalid.
func Load() Config {
	cfg := Config{
		Port:         getEnv("PORT", "8080"),
		BackendID:    getEnv("BACKEND_ID", mustRandomID()),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvInt("REDIS_DB", 0),
		DatabasePath: getEnv("DATABASE_PATH", "./data/coordination.db"),
		LogPath:      getEnv("LOG_PATH", "./data/coordination.log"),
		DevMode:      getEnv("DEV_MODE", "") == "true",

		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 60*time.Second),
		HeartbeatTimeout:  getEnvDuration("HEARTBEAT_TIMEOUT", 120*time.Second),

		RPCTimeout:             getEnvDuration("RPC_TIMEOUT", 5*time.Second),
		CriticalConfirmTimeout: getEnvDuration("CRITICAL_CONFIRM_TIMEOUT", 8*time.Second),

		DraftStepTimeout: getEnvDuration("DRAFT_STEP_TIMEOUT", 30*time.Second),
		AcceptTimeout:    getEnvDuration("ACCEPT_TIMEOUT", 30*time.Second),

		MaxPendingEventsPerPlayer: getEnvInt("MAX_PENDING_EVENTS_PER_PLAYER", 100),

		SpecialUsers: parseSpecialUsers(getEnv("SPECIAL_USERS", "")),

		KFactor:    getEnvInt("K_FACTOR", 32),
		DefaultMMR: getEnvInt("DEFAULT_MMR", 1000),

		OwnershipTTL: getEnvDuration("OWNERSHIP_TTL", 60*time.Second),
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// parseSpecialUsers normalizes a comma-separated summonerName list the same
// way the session registry normalizes identity: trim, lowercase.
func parseSpecialUsers(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			out[name] = true
		}
	}
	return out
}

func mustRandomID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "backend-local"
	}
	return "backend-" + hex.EncodeToString(b)
}
