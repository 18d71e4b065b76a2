// Package server wires the HTTP API: JWT-authenticated chat and profile
// endpoints in front of the analysis pipeline, plus unauthenticated health
// and metrics routes.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scoopai/backend/internal/catalog"
	"scoopai/backend/internal/config"
	"scoopai/backend/internal/llm"
	"scoopai/backend/internal/metrics"
	"scoopai/backend/internal/profile"
	"scoopai/backend/internal/reasoning"
	"scoopai/backend/internal/store"
	"scoopai/backend/internal/thinking"
)

type App struct {
	cfg config.Config
	db  *pgxpool.Pool
	rdb *redis.Client
	log *zap.Logger

	conversations *store.ConversationStore
	users         *store.UserStore
	analyzer      *reasoning.Analyzer
	search        *reasoning.ConstraintSearch
	processor     *profile.Processor
	ai            llm.Client
	thinkStrategy thinking.Strategy
}

// New assembles the application from its external collaborators. The redis
// client is optional; without it catalog searches skip the cache layer.
func New(cfg config.Config, db *pgxpool.Pool, rdb *redis.Client, ai llm.Client, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}

	var searcher catalog.Searcher = catalog.NewPGSearcher(db)
	if rdb != nil {
		ttl := time.Duration(cfg.CatalogCacheTTLSeconds) * time.Second
		searcher = catalog.NewCache(searcher, rdb, ttl, log)
	}

	extractor := profile.NewExtractor(cfg.NegationWindowChars)
	verifier := llm.NewVerifier(ai, cfg.GeminiVerifyModel, time.Duration(cfg.VerifyTimeoutMS)*time.Millisecond)
	users := store.NewUserStore(db)

	return &App{
		cfg:           cfg,
		db:            db,
		rdb:           rdb,
		log:           log,
		conversations: store.NewConversationStore(db, log, cfg.HistoryMaxMessages, cfg.HistoryMaxTokens),
		users:         users,
		analyzer:      reasoning.NewAnalyzer(nil),
		search:        reasoning.NewConstraintSearch(searcher, cfg.BudgetAllocBuffer, log),
		processor:     profile.NewProcessor(extractor, verifier, users, log),
		ai:            ai,
		thinkStrategy: thinking.ParseStrategy(cfg.ThinkingStrategy),
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(a.requestMiddleware(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", a.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group(a.cfg.APIPrefix)
	api.Use(a.authMiddleware())

	api.POST("/chat", a.chat)
	api.POST("/chat/stream", a.streamChat)
	api.GET("/chat/sessions", a.listChatSessions)
	api.GET("/chat/sessions/:session_id/messages", a.getChatMessages)
	api.DELETE("/chat/sessions/:session_id", a.deleteChatSession)
	api.GET("/profile", a.getProfile)
	api.PATCH("/profile", a.updateProfile)
	api.GET("/profile/weight-history", a.getWeightHistory)
	api.POST("/profile/weight", a.addWeightEntry)

	if a.cfg.AppEnv == "local" {
		router.POST("/dev/local-token", a.issueLocalDevToken)
	}
	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "Not found")
	})

	return router
}

// issueLocalDevToken mints a bearer token so the API can be exercised
// without the real identity provider. Only registered in the local
// environment.
func (a *App) issueLocalDevToken(c *gin.Context) {
	sub := strings.TrimSpace(c.Query("sub"))
	if sub == "" {
		sub = uuid.NewString()
	} else if _, err := uuid.Parse(sub); err != nil {
		writeError(c, http.StatusBadRequest, "sub must be UUID format")
		return
	}

	method := jwt.GetSigningMethod(a.cfg.JWTAlgorithm)
	if method == nil {
		writeError(c, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	now := time.Now()
	expiresAt := now.Add(24 * time.Hour)
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	if a.cfg.JWTAudience != "" {
		claims["aud"] = a.cfg.JWTAudience
	}
	if a.cfg.JWTIssuer != "" {
		claims["iss"] = a.cfg.JWTIssuer
	}

	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(a.cfg.JWTSecret))
	if err != nil {
		a.log.Error("dev token signing failed", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"sub":        sub,
		"expires_at": expiresAt.UTC(),
	})
}

// requestMiddleware records every request in the zap log and the Prometheus
// collectors. Unmatched routes share one label so probing cannot explode the
// metric cardinality.
func (a *App) requestMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, c.Request.Method).Observe(elapsed.Seconds())

		a.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
		)
	}
}

func (a *App) healthz(c *gin.Context) {
	checks := gin.H{"database": "ok"}
	status := http.StatusOK

	if err := a.db.Ping(c.Request.Context()); err != nil {
		checks["database"] = "down"
		status = http.StatusServiceUnavailable
	}
	if a.rdb == nil {
		checks["redis"] = "disabled"
	} else if err := a.rdb.Ping(c.Request.Context()).Err(); err != nil {
		// Redis only backs the catalog cache, so a dead redis degrades
		// rather than fails the service.
		checks["redis"] = "down"
	} else {
		checks["redis"] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":  overall,
		"service": a.cfg.AppName,
		"checks":  checks,
	})
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
			writeError(c, http.StatusUnauthorized, "Invalid token audience")
			return
		}
		if a.cfg.JWTIssuer != "" {
			issuer, _ := claims["iss"].(string)
			if issuer != a.cfg.JWTIssuer {
				writeError(c, http.StatusUnauthorized, "Invalid token issuer")
				return
			}
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}

		// Profiles and sessions are created lazily on first write, so the
		// subject claim alone identifies the user.
		c.Set("userID", sub)
		c.Next()
	}
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}

func userIDFromContext(c *gin.Context) (string, bool) {
	raw, ok := c.Get("userID")
	if !ok {
		return "", false
	}
	userID, ok := raw.(string)
	return userID, ok && userID != ""
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func numberFromMap(data map[string]any, keys ...string) float64 {
	if data == nil {
		return 0
	}
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		case json.Number:
			f, err := v.Float64()
			if err == nil {
				return f
			}
		case string:
			var parsed float64
			_, err := fmt.Sscanf(v, "%f", &parsed)
			if err == nil {
				return parsed
			}
		}
	}
	return 0
}

func stringFromMap(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}
