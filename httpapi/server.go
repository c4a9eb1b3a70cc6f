// Package httpapi is the ops HTTP surface: health, Prometheus metrics, and
// a JWT-guarded debug surface for inspecting live signals and positions.
// Grounded on the teacher's api.Server (gin.Engine wrapping a store
// pointer, gin.H JSON responses, bearer-token middleware), generalized
// from the teacher's multi-tenant tactic CRUD API to a single-tenant
// read-only debug surface for the quality/signal pipeline.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"traderwatch/logger"
	"traderwatch/metrics"
	"traderwatch/store"
)

type Server struct {
	st        *store.Store
	jwtSecret string
	engine    *gin.Engine
	startedAt time.Time
}

func New(st *store.Store, jwtSecret string) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{st: st, jwtSecret: jwtSecret, engine: gin.New(), startedAt: time.Now()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	debug := s.engine.Group("/debug")
	if s.jwtSecret != "" {
		debug.Use(s.authMiddleware())
	}
	debug.GET("/signals", s.handleDebugSignals)
	debug.GET("/positions", s.handleDebugPositions)
}

// Run starts the HTTP server on addr and blocks until it exits. It takes
// no context and installs no signal handling; it returns only when the
// underlying listener fails.
func (s *Server) Run(addr string) error {
	logger.Infof("httpapi: listening on %s", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime_sec": time.Since(s.startedAt).Seconds(),
	})
}

// authMiddleware enforces a bearer-token JWT signed with HS256, mirroring
// the teacher's JWT-claims style (sub/iat/exp) but verifying instead of
// issuing — this surface has no login flow, only a shared operator secret.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !parsed.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleDebugSignals(c *gin.Context) {
	signals, err := s.st.ListActiveSignals()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list signals: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (s *Server) handleDebugPositions(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter is required"})
		return
	}
	positions, err := s.st.PositionsForAddress(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list positions: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}
