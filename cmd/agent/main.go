package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presence/internal/auth"
	"presence/internal/camera"
	"presence/internal/config"
	"presence/internal/device"
	"presence/internal/httpmiddleware"
	"presence/internal/location"
	"presence/internal/marker"
	"presence/internal/metrics"
	"presence/internal/permission"
	"presence/internal/photo"
	"presence/internal/queue"
	"presence/internal/session"
	"presence/internal/submit"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("agent failed: %v", err)
	}
}

func run(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	markers, err := openMarkers(cfg)
	if err != nil {
		return err
	}
	defer markers.Close()

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(cfg.RedisAddr, "presence:events")
	} else {
		q = queue.NewInMemory(16)
	}

	runner := buildRunner(cfg, markers)

	events, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	go worker(ctx, runner, events)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin).Gin())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		if _, err := markers.Get(c.Request.Context(), "healthz:probe"); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "markers": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "markers": true})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, expiresAt, err := auth.Issue(req.DeviceID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token": token,
			"expires_at":   expiresAt.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Triggers a presence event; the pipeline worker picks it up. A trigger for
	// a day that is already done still returns 202 — the entry guard resolves
	// it to a no-op.
	authGroup.POST("/presence/:kind", func(c *gin.Context) {
		kind, err := session.ParseKind(c.Param("kind"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var req struct {
			Identity string `json:"identity" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		evt := queue.Event{
			ID:          uuid.NewString(),
			Identity:    req.Identity,
			Kind:        string(kind),
			RequestedAt: time.Now().UTC(),
		}
		publishCtx, cancelPublish := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancelPublish()
		if err := q.Publish(publishCtx, evt); err != nil {
			metrics.QueueDepthDrops.Inc()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event queue unavailable"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"event_id": evt.ID, "kind": evt.Kind})
	})

	authGroup.GET("/status", func(c *gin.Context) {
		identity := c.Query("identity")
		if identity == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "identity required"})
			return
		}
		day := marker.Day(time.Now())
		loginDone, err := markers.Get(c.Request.Context(), marker.Key(identity, string(session.KindLogin), day))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		logoutDone, err := markers.Get(c.Request.Context(), marker.Key(identity, string(session.KindLogout), day))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"identity": identity,
			"day":      day,
			"login":    loginDone,
			"logout":   logoutDone,
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("presence agent listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	cancel() // stops the worker and queue consumer

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}

	log.Println("agent exited")
	return nil
}

func openMarkers(cfg config.App) (marker.Store, error) {
	if cfg.MarkerBackend == "postgres" {
		log.Println("markers: postgres (fleet mode)")
		return marker.OpenPostgres(cfg.DatabaseURL)
	}
	log.Printf("markers: sqlite at %s", cfg.DataDir)
	return marker.OpenSQLite(cfg.DataDir)
}

func buildRunner(cfg config.App, markers marker.Store) *session.Runner {
	gate := permission.NewStaticGate()
	if cfg.PermissionsPregranted {
		gate.Grant(permission.CapCamera, permission.CapLocation, permission.CapNotifications, permission.CapPhoneState)
	}

	cam := camera.NewController(
		&device.FileCamera{Source: cfg.CameraSource, Warmup: cfg.CameraWarmup},
		cfg.CameraTimeout,
		camera.Options{Quality: cfg.CaptureQuality},
	)

	resolver := location.NewResolver(
		&device.StaticLocation{
			Latitude:  cfg.DevLatitude,
			Longitude: cfg.DevLongitude,
			Accuracy:  10,
			Enabled:   true,
		},
		device.TerminalPrompter{},
		location.Config{
			MaxRetries:   cfg.LocationMaxRetries,
			FixTimeout:   cfg.LocationFixTimeout,
			RetryDelay:   cfg.LocationRetryDelay,
			MaxFixAge:    cfg.LocationMaxFixAge,
			HighAccuracy: cfg.LocationHighAccuracy,
		},
	)

	client := submit.New(cfg.SubmitBaseURL, cfg.SubmitDeadline)
	client.Token = cfg.SubmitToken

	return session.NewRunner(gate, cam, resolver, client, markers, nil, photo.Options{
		MaxWidth:  cfg.EncodeMaxWidth,
		MaxHeight: cfg.EncodeMaxHeight,
		Quality:   cfg.EncodeQuality,
	})
}

// worker drains presence events one at a time; a single consumer is what
// keeps sessions serialized per device.
func worker(ctx context.Context, runner *session.Runner, events <-chan queue.Event) {
	log.Println("pipeline worker started")
	for evt := range events {
		kind, err := session.ParseKind(evt.Kind)
		if err != nil {
			log.Printf("event %s: %v", evt.ID, err)
			continue
		}
		res, err := runner.Run(ctx, evt.Identity, kind)
		metrics.SessionsTotal.WithLabelValues(string(kind), string(res.Outcome)).Inc()
		if res.Session != nil {
			metrics.LocationRetries.Observe(float64(res.Session.RetryCount))
		}
		if err != nil {
			log.Printf("event %s: session failed: %v", evt.ID, err)
			continue
		}
		log.Printf("event %s: %s", evt.ID, res.Outcome)
	}
	log.Println("pipeline worker stopped")
}
