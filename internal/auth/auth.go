// Package auth guards the operator surface with a shared bearer token.
//
// It never touches the UDP protocol: peers are identified by source address
// only.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrMissingToken = errors.New("auth: missing bearer token")
)

// Validator validates a presented token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty stored token
// denies everything.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Require aborts requests whose bearer token v rejects. A nil v lets every
// request through.
func Require(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.Next()
			return
		}
		token, err := BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			err = v.Validate(token)
		}
		if err != nil {
			log.Warn().Str("path", c.Request.URL.Path).Str("client_ip", c.ClientIP()).Err(err).Msg("auth.Require denied")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
