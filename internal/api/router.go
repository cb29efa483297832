// Package api exposes simulation sessions over a JSON REST interface.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"microgrid_simulator/internal/logger"
	"microgrid_simulator/internal/store"
)

// DefaultSessionAlias addresses the default session in place of its ID.
const DefaultSessionAlias = "default"

type Server struct {
	sessions *store.Store
	log      logger.Logger
}

// NewRouter returns the gin engine serving /api.
func NewRouter(sessions *store.Store, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.NopLogger{}
	}
	s := &Server{sessions: sessions, log: log}

	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(recovery())

	api := router.Group("/api")
	{
		api.GET("/fields", s.listFields)

		api.GET("/sessions", s.listSessions)
		api.POST("/sessions", s.createSession)

		sess := api.Group("/sessions/:id", s.resolveSession)
		sess.GET("", s.getSession)
		sess.DELETE("", s.deleteSession)
		sess.GET("/state", s.getState)
		sess.GET("/snapshot", s.getSnapshot)
		sess.GET("/history", s.getHistory)
		sess.GET("/summary", s.getSummary)
		sess.GET("/stats", s.getStats)
		sess.POST("/start", s.start)
		sess.POST("/pause", s.pause)
		sess.POST("/reset", s.reset)
		sess.POST("/step", s.step)
		sess.POST("/evaluate", s.evaluate)
	}

	router.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "NOT_FOUND", errRouteNotFound)
	})
	return router
}

// WithCORS wraps a handler so browser hosts on the given origins can call it.
// An empty list allows every origin.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}).Handler(h)
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("http request", map[string]any{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
