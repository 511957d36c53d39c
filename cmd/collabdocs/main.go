package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collabdocs/collabdocs/handlers"
	"github.com/collabdocs/collabdocs/internal/collab"
	"github.com/collabdocs/collabdocs/internal/config"
	"github.com/collabdocs/collabdocs/internal/database"
	"github.com/collabdocs/collabdocs/internal/document/handler"
	"github.com/collabdocs/collabdocs/internal/document/repository"
	"github.com/collabdocs/collabdocs/internal/document/service"
	"github.com/collabdocs/collabdocs/internal/oidc"
	"github.com/collabdocs/collabdocs/internal/presence"
	"github.com/collabdocs/collabdocs/internal/tokens"
	"github.com/collabdocs/collabdocs/internal/users"
	"github.com/collabdocs/collabdocs/pkg/logger"
	"github.com/collabdocs/collabdocs/pkg/metrics"
	"github.com/collabdocs/collabdocs/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v jwt_secret_set=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.JWT.Secret != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors(cfg.Server.CORSOrigin))

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// presence and the bus need Redis; refuse to start half-wired
			if cfg.Collab.PresenceBackend == "redis" || cfg.Collab.BusEnabled {
				logger.Fatalf("redis %s unreachable: %v", cfg.Redis.Addr(), err)
			}
			logger.Warnf("redis %s unreachable, continuing without it: %v", cfg.Redis.Addr(), err)
			_ = rdb.Close()
			rdb = nil
		} else {
			defer rdb.Close()
			logger.Infof("connected to Redis at %s", cfg.Redis.Addr())
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	var (
		store    repository.Store     = repository.NewMemoryRepo()
		userRepo users.UserRepository = users.NewMemoryUserRepository()
		mongoCli *mongo.Client
	)
	if cfg.MongoDB.URI != "" {
		mongoCli, err = database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Fatalf("mongo: %v", err)
		}
		defer func() { _ = mongoCli.Disconnect(context.Background()) }()
		db := mongoCli.Database(cfg.MongoDB.Database)
		repo, err := repository.NewMongoRepo(ctx, db.Collection("documents"))
		if err != nil {
			logger.Fatalf("document indexes: %v", err)
		}
		store = repo
		ur := users.NewMongoUserRepository(db.Collection("users"))
		if err := ur.EnsureIndexes(ctx); err != nil {
			logger.Warnf("user indexes: %v", err)
		}
		userRepo = ur
		logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
	} else {
		logger.Warn("MONGODB_URI not set; documents are kept in memory and lost on restart")
	}
	userSvc := users.NewService(userRepo)

	var registry presence.Registry = presence.NewMemoryRegistry()
	if cfg.Collab.PresenceBackend == "redis" {
		registry = presence.NewRedisRegistry(rdb, "")
	}
	var publisher collab.Publisher
	var bus *collab.RedisBus
	if cfg.Collab.BusEnabled {
		bus = collab.NewRedisBus(rdb)
		publisher = bus
	}
	hub := collab.NewHub(store, registry, publisher, cfg.Collab)
	if bus != nil {
		go func() {
			if err := bus.Subscribe(ctx, hub.Receive, nil); err != nil {
				logger.Errorf("collab bus stopped: %v", err)
			}
		}()
	}
	docSvc := service.New(store, hub)

	verifier := buildVerifier(ctx, cfg)
	revocations := tokens.NewBlacklist(rdb)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		rctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := map[string]bool{"verifier": len(verifier) > 0}
		if mongoCli != nil {
			deps["mongo"] = mongoCli.Ping(rctx, nil) == nil
		}
		if rdb != nil {
			deps["redis"] = rdb.Ping(rctx).Err() == nil
		}
		ready := true
		for _, ok := range deps {
			ready = ready && ok
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	api := r.Group("/api", middleware.AuthMiddleware(verifier, revocations))
	handler.New(docSvc, userSvc).Register(api)
	handlers.NewAuthHandler(userSvc, revocations).Register(api)
	r.GET("/ws", collab.NewHandler(hub, verifier, revocations, cfg.Server.CORSOrigin).ServeWS)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		logger.Infof("collabdocs listening on %s (instance %s)", addr, hub.InstanceID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hub.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}

// buildVerifier accepts tokens signed with JWT_SECRET and, when Keycloak is
// configured, realm ID tokens. ALLOW_INSECURE_TOKEN adds a signature-less
// verifier for integration setups.
func buildVerifier(ctx context.Context, cfg *config.Config) middleware.FirstOf {
	var chain middleware.FirstOf
	if cfg.JWT.Secret != "" {
		chain = append(chain, tokens.NewHMACVerifier(cfg.JWT.Secret))
	}
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := cfg.Keycloak.URL
		if cfg.Keycloak.Realm != "" {
			issuer = oidc.IssuerURL(cfg.Keycloak.URL, cfg.Keycloak.Realm)
		}
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			chain = append(chain, ver)
		}
	}
	if cfg.JWT.AllowInsecure {
		logger.Warn("enabling insecure token verifier (integration mode)")
		chain = append(chain, oidc.NewInsecureVerifier())
	}
	return chain
}

func cors(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
