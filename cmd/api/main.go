package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/directory"
	"qrattend/internal/httpapi"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/scan"
	"qrattend/internal/store"
	"qrattend/internal/token"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var db *store.DB
	if cfg.RecordBackend == "sql" {
		var err error
		db, err = store.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	dir, err := openDirectory(cfg, db)
	if err != nil {
		return err
	}

	var records attendance.Recorder
	switch cfg.RecordBackend {
	case "sql":
		records = attendance.NewRepository(db.Client)
	case "redis":
		records = attendance.NewRedisRecorder(redisClient.Client, "")
	default:
		log.Println("warning: in-memory attendance records do not survive a restart")
		records = attendance.NewMemory()
	}

	tally := attendance.NewTally(redisClient.Client, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(64)
		// no separate worker can see this queue, so tally in-process
		go drainTallies(ctx, mem, tally)
		q = mem
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:recorded")
	}

	signer := token.NewSigner(cfg.TokenSecret)
	if !signer.Keyed() {
		log.Println("warning: TOKEN_SECRET not set, attendance tokens use an unkeyed digest and can be forged")
	}
	m := metrics.New(prometheus.DefaultRegisterer)

	h := httpapi.New(httpapi.Deps{
		Issuer:    token.NewIssuer(signer, cfg.TokenTTL),
		Verifier:  scan.NewVerifier(signer, records, dir, m),
		Records:   records,
		Directory: dir,
		Queue:     q,
		Tally:     tally,
		Metrics:   m,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"X-Token-Expires-At"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db == nil || db.Client.PingContext(c.Request.Context()) == nil
		code, status := http.StatusOK, "ok"
		if !dbHealthy || (!redisHealthy && cfg.RecordBackend == "redis") {
			code, status = http.StatusServiceUnavailable, "degraded"
		}
		c.JSON(code, gin.H{"status": status, "redis": redisHealthy, "db": dbHealthy, "records": cfg.RecordBackend})
	})

	scanLimit := httpmiddleware.NewSimpleTokenBucket(cfg.ScanRateLimitPerMin, cfg.ScanRateLimitPerMin).
		GinMiddlewareBy(func(c *gin.Context) string {
			claims, _ := auth.FromContext(c)
			return claims.Subject
		})
	h.Register(r, auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer), scanLimit)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// openDirectory picks the activity/participant source. With a SQL store the
// portal tables are read directly, optionally seeded from the YAML file.
func openDirectory(cfg config.App, db *store.DB) (directory.Directory, error) {
	if db == nil {
		mem, err := directory.LoadFile(cfg.DirectorySeedFile)
		if err != nil {
			return nil, err
		}
		log.Printf("directory loaded from %s", cfg.DirectorySeedFile)
		return mem, nil
	}

	sqlDir := directory.NewSQL(db.Client)
	if cfg.SeedDatabase {
		mem, err := directory.LoadFile(cfg.DirectorySeedFile)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		seed := mem.Seed()
		for _, a := range seed.Activities {
			if err := sqlDir.UpsertActivity(ctx, a); err != nil {
				return nil, err
			}
		}
		for _, p := range seed.Participants {
			if err := sqlDir.UpsertParticipant(ctx, p); err != nil {
				return nil, err
			}
		}
		log.Printf("seeded %d activities and %d participants", len(seed.Activities), len(seed.Participants))
	}
	return sqlDir, nil
}

func drainTallies(ctx context.Context, q queue.Queue, tally *attendance.Tally) {
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Printf("tally consumer: %v", err)
		return
	}
	for msg := range messages {
		var rec attendance.Record
		if err := msg.Decode(&rec); err != nil {
			log.Printf("bad attendance message: %v", err)
			continue
		}
		if err := tally.Add(ctx, rec); err != nil {
			log.Printf("tally %s/%s failed: %v", rec.ActivityID, rec.ParticipantID, err)
		}
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
