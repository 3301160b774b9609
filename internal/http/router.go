// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and the two webhook endpoints. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, rate limiting, and security headers.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/polyrelay/go-translate-backend/internal/billing"
	"github.com/polyrelay/go-translate-backend/internal/config"
	"github.com/polyrelay/go-translate-backend/internal/http/handlers"
	"github.com/polyrelay/go-translate-backend/internal/http/middleware"
	"github.com/polyrelay/go-translate-backend/internal/lineapi"
	"github.com/polyrelay/go-translate-backend/internal/provider"
	"github.com/polyrelay/go-translate-backend/internal/retry"
	"github.com/polyrelay/go-translate-backend/internal/services"
)

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine and wires the service graph from config.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with chat-identifier scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per IP; webhook providers stay well under it)
//  8. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB; webhook batches stay far below it)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint; the metrics exposition
	// is the only response large enough for compression to matter.
	r.Use(middleware.Metrics())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 8) CORS. The endpoints are server-to-server; browsers have no
	// business here unless an origin is explicitly allowed.
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	// Security headers; webhook responses carry no cacheable content.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		NoStore: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: provider and platform clients ← config
	gemini := provider.NewGeminiClient(cfg.Provider.APIKey, cfg.Provider.Model, cfg.Provider.Timeout)
	chat := lineapi.NewClient(cfg.Chat.AccessToken, cfg.Chat.Timeout)
	gateway := billing.NewGateway(cfg.Billing.SecretKey, cfg.Billing.PriceMonthlyID, cfg.Billing.CheckoutBaseURL)
	parser := billing.NewWebhookParser(cfg.Billing.WebhookSecret, gateway)

	// Services ← clients + db
	quota := &services.QuotaService{
		DB:        db,
		FreeLimit: cfg.Quota.FreePerPeriod,
		ProLimit:  cfg.Quota.ProPerPeriod,
	}
	languages := &services.LanguageService{
		DB:       db,
		Analyzer: gemini,
		MaxLangs: cfg.MaxGroupLanguages,
	}
	translation := &services.TranslationService{
		DB:            db,
		Translator:    gemini,
		Messenger:     chat,
		Notices:       gemini,
		Quota:         quota,
		Checkout:      gateway,
		ContextWindow: cfg.ContextWindow,
		Retry:         retry.New(cfg.TranslationRetries),
	}
	orchestrator := &services.Orchestrator{
		DB:          db,
		Messenger:   chat,
		Classifier:  gemini,
		Profiles:    chat,
		Notices:     gemini,
		Languages:   languages,
		Translation: translation,
		BotName:     cfg.Chat.BotName,
	}
	subscriptions := &services.SubscriptionService{
		DB:        db,
		Messenger: chat,
		Notices:   gemini,
	}

	// Webhook endpoints
	chatHook := handlers.NewChatWebhook(cfg.Chat.ChannelSecret, orchestrator)
	billingHook := handlers.NewBillingWebhook(parser, subscriptions)

	r.POST("/webhook/line", chatHook.Handle)
	r.POST("/webhook/stripe", billingHook.Handle)
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Requests exceeding the cap error on body read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
