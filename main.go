package main

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Takmim00/Task-Managements-server/api"
	"github.com/Takmim00/Task-Managements-server/engine"
	"github.com/Takmim00/Task-Managements-server/registry"
	"github.com/Takmim00/Task-Managements-server/storage"
)

// dataStore is the full persistence surface the process wires together:
// the engine's task gateway plus the user registration store.
type dataStore interface {
	engine.Store
	api.Users
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	var store dataStore
	if inMem, err := strconv.ParseBool(os.Getenv("STORAGE_IN_MEMORY")); err == nil && inMem {
		store = storage.NewMemory()
		log.Warn("running with in-memory storage, state will not survive a restart")
	} else {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		tasksTableName := os.Getenv("TASKS_TABLE")
		usersTableName := os.Getenv("USERS_TABLE")
		if connStr == "" || tasksTableName == "" || usersTableName == "" {
			log.Fatal("missing storage config")
		}
		s, err := storage.New(connStr, tasksTableName, usersTableName)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = s
	}

	var rc *redis.Client
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		rc = redis.NewClient(redisOpts)

		cacheTTL := 15 * time.Second
		if v := os.Getenv("CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				log.Fatalf("invalid CACHE_TTL: %v", err)
			}
			cacheTTL = d
		}
		if cacheTTL > 0 {
			store = storage.NewCache(store, rc, cacheTTL)
		}
	}

	mutationTimeout := engine.DefaultTimeout
	if v := os.Getenv("MUTATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid MUTATION_TIMEOUT: %v", err)
		}
		mutationTimeout = d
	}

	logger := log.New()
	reg := registry.New()
	eng := engine.New(store, reg, rc, mutationTimeout, logger)
	go eng.Relay(context.Background())

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, eng, store, logger)

	listenAddr := ":5000"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
