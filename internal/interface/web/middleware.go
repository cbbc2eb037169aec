package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/pi-apps/a2u/internal/config"
)

const subjectKey = "subject"

// setupMiddleware adds panic recovery, request logging and, if enabled, the
// Sentry error reporting to the Gin engine.
func setupMiddleware(engine *gin.Engine, withSentry bool) {
	engine.Use(gin.Recovery())
	engine.Use(requestLogger)

	if withSentry {
		engine.Use(sentrygin.New(sentrygin.Options{
			Repanic:         true,  // re-panic after recovery
			WaitForDelivery: false, // Don't wait for Sentry to deliver events (non-blocking)
			Timeout:         5 * time.Second,
		}))
		log.Info("Sentry error monitoring enabled")
	}
}

func requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	entry := log.WithFields(log.Fields{
		"method":  c.Request.Method,
		"path":    c.FullPath(),
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	})
	if sub, ok := c.Get(subjectKey); ok {
		entry = entry.WithField("subject", sub)
	}
	if len(c.Errors) > 0 {
		entry.WithError(c.Errors.Last()).Warn("request failed")
		return
	}
	entry.Debug("request served")
}

type tokenClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// authMiddleware checks the bearer token carries the scopes required by the
// route.
func (s *service) authMiddleware(c *gin.Context) {
	route := c.Request.Method + " " + c.FullPath()
	if _, ok := config.WhitelistedByRoute()[route]; ok {
		c.Next()
		return
	}
	// unmatched requests fall through to 404
	if c.FullPath() == "" {
		c.Next()
		return
	}
	required, ok := config.ProtectedByRoute()[route]
	if !ok {
		log.Warnf("no permissions declared for route %s", route)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	claims, err := s.parseToken(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Set(subjectKey, claims.Subject)

	granted := config.ParseScopes(claims.Scope)
	for _, op := range required {
		if !hasOp(granted, op) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": fmt.Sprintf("missing scope %s", op),
			})
			return
		}
	}
	c.Next()
}

func (s *service) parseToken(header string) (*tokenClaims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || len(strings.TrimSpace(raw)) <= 0 {
		return nil, errors.New("missing bearer token")
	}

	claims := &tokenClaims{}
	if _, err := jwt.ParseWithClaims(
		strings.TrimSpace(raw), claims,
		func(*jwt.Token) (any, error) { return s.jwtSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	); err != nil {
		return nil, fmt.Errorf("invalid token: %s", err)
	}
	if len(claims.Subject) <= 0 {
		return nil, errors.New("invalid token: missing subject")
	}
	return claims, nil
}

// NewToken issues an API token for subject granting the given permissions.
func NewToken(secret, subject string, ops []config.Op, ttl time.Duration) (string, error) {
	if len(secret) <= 0 {
		return "", errors.New("missing secret")
	}
	if len(subject) <= 0 {
		return "", errors.New("missing subject")
	}
	scopes := make([]string, 0, len(ops))
	for _, op := range ops {
		scopes = append(scopes, op.String())
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

func hasOp(ops []config.Op, op config.Op) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}
