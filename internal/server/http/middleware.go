package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/brokerlink/internal/errs"
)

const operatorIDKey = "brokerlink.operatorID"

// RequestLogger logs every request with latency and status metadata.
// Payloads are never logged.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("dur", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			log.Error("http", fields...)
		case status >= 400:
			log.Warn("http", fields...)
		default:
			log.Info("http", fields...)
		}
	}
}

// Auth verifies the operator's bearer token and stores the operator account
// ID in the request context. Authentication itself happens elsewhere; this
// middleware only checks the signature and extracts the subject.
type Auth struct {
	signKey []byte
}

// NewAuth builds the bearer-verification middleware.
func NewAuth(signKey []byte) *Auth {
	return &Auth{signKey: signKey}
}

// Verify is the gin handler enforcing a valid bearer token.
func (a *Auth) Verify(c *gin.Context) {
	operator, err := a.operatorFromHeader(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(operatorIDKey, operator)
	c.Next()
}

// operatorFromHeader parses "Bearer <JWT>", verifies HS256 and returns sub.
func (a *Auth) operatorFromHeader(header string) (uuid.UUID, error) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return uuid.Nil, fmt.Errorf("%w: no bearer token", errs.ErrUnauthorized)
	}
	raw := strings.TrimSpace(header[7:])

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return a.signKey, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}

	v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
	if err := v.Validate(&claims); err != nil {
		return uuid.Nil, fmt.Errorf("%w: token expired or not valid yet", errs.ErrUnauthorized)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return id, nil
}

// operatorID fetches the authenticated operator from the gin context.
func operatorID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(operatorIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
