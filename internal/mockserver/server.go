// Package mockserver is an in-process stand-in for the parts of the Mender
// management API that the client uses: user login and the device inventory.
// It backs the client tests and the mender-mock development server.
package mockserver

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/menderapi/pkg/client"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	requestIDHeader = client.RequestIDHeader
	defaultIssuer   = "Mender Users"
)

// Config configures a Server.
type Config struct {
	// Users maps login email to plaintext password. Passwords are hashed
	// with bcrypt when the server is built.
	Users map[string]string

	// Devices is the inventory served. Devices without an ID get a random
	// UUID.
	Devices []client.Device

	// SigningKey is the HS256 token key; a random key is generated when empty.
	SigningKey []byte

	// TokenTTL is the lifetime of issued tokens (default 24h).
	TokenTTL time.Duration

	// AllowBasicInventory lets inventory requests authenticate with HTTP
	// Basic credentials instead of a token.
	AllowBasicInventory bool
}

type user struct {
	id   string
	hash []byte
}

// Server is a mock Mender management API.
type Server struct {
	engine  *gin.Engine
	tokens  *tokenIssuer
	metrics *serverMetrics
	logger  *zap.Logger
	basic   bool

	users map[string]user

	mu      sync.RWMutex
	devices []client.Device

	logins      atomic.Int64
	inventories atomic.Int64
}

// New builds a Server from cfg.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	key := cfg.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}

	users := make(map[string]user, len(cfg.Users))
	for email, password := range cfg.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", email, err)
		}
		users[email] = user{id: uuid.NewString(), hash: hash}
	}

	s := &Server{
		tokens:  newTokenIssuer(key, defaultIssuer, cfg.TokenTTL),
		metrics: newServerMetrics(),
		logger:  logger,
		basic:   cfg.AllowBasicInventory,
		users:   users,
	}
	s.SetDevices(cfg.Devices...)
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog(), s.metrics.middleware())

	api := r.Group("/api/management/v1")
	{
		api.POST("/useradm/auth/login", s.login)
		api.GET("/inventory/devices", s.requireAuth(), s.listDevices)
	}

	r.GET("/metrics", s.metrics.handler())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "mender-mock"})
	})
	return r
}

// Handler returns the HTTP handler serving the mock API.
func (s *Server) Handler() http.Handler { return s.engine }

// SetDevices replaces the served inventory.
func (s *Server) SetDevices(devices ...client.Device) {
	devices = slices.Clone(devices)
	for i := range devices {
		if devices[i].ID == "" {
			devices[i].ID = uuid.NewString()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
}

// Logins returns the number of login requests received.
func (s *Server) Logins() int64 { return s.logins.Load() }

// InventoryRequests returns the number of authorized inventory requests.
func (s *Server) InventoryRequests() int64 { return s.inventories.Load() }

// ── middleware ──────────────────────────────────────────────────────────────

// requestID echoes the caller's request ID, or assigns one.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// requireAuth accepts a valid bearer token, or Basic credentials when the
// server allows them.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if tokenStr, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			if _, err := s.tokens.verify(tokenStr); err != nil {
				s.abort(c, http.StatusUnauthorized, "invalid token")
				return
			}
			c.Next()
			return
		}

		if s.basic {
			if email, password, ok := c.Request.BasicAuth(); ok {
				if _, err := s.checkPassword(email, password); err == nil {
					c.Next()
					return
				}
			}
		}
		s.abort(c, http.StatusUnauthorized, "authorization required")
	}
}

// abort writes a Mender-style error body.
func (s *Server) abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      msg,
		"request_id": c.GetString(requestIDHeader),
	})
}

// ── handlers ────────────────────────────────────────────────────────────────

var errBadCredentials = errors.New("invalid credentials")

func (s *Server) checkPassword(email, password string) (user, error) {
	u, ok := s.users[email]
	if !ok {
		return user{}, errBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return user{}, errBadCredentials
	}
	return u, nil
}

// login handles POST /useradm/auth/login. The token is returned as the raw
// response body, as useradm does.
func (s *Server) login(c *gin.Context) {
	s.logins.Add(1)

	email, password, ok := c.Request.BasicAuth()
	if !ok {
		s.metrics.recordLogin(false)
		s.abort(c, http.StatusUnauthorized, "basic auth required")
		return
	}
	u, err := s.checkPassword(email, password)
	if err != nil {
		s.metrics.recordLogin(false)
		s.logger.Warn("login rejected", zap.String("email", email))
		s.abort(c, http.StatusUnauthorized, err.Error())
		return
	}

	token, err := s.tokens.issue(u.id)
	if err != nil {
		s.logger.Error("issue token", zap.Error(err))
		s.abort(c, http.StatusInternalServerError, "internal error")
		return
	}
	s.metrics.recordLogin(true)
	c.Data(http.StatusOK, "application/jwt", []byte(token))
}

// listDevices handles GET /inventory/devices.
func (s *Server) listDevices(c *gin.Context) {
	s.inventories.Add(1)

	s.mu.RLock()
	devices := s.devices
	s.mu.RUnlock()
	if devices == nil {
		devices = []client.Device{}
	}
	c.JSON(http.StatusOK, devices)
}
