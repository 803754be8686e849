package middleware

import (
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/jrjohn/arcana-ssr/internal/dto/response"
)

// SecretChecker validates the shared secret carried by /render and /flush
// requests against a secret file, read and cached on first use. In dev mode
// the check is bypassed entirely.
type SecretChecker struct {
	filePath string
	dev      bool

	once   sync.Once
	secret string
	loadErr error
}

// NewSecretChecker creates a SecretChecker for the given secret file path.
// Pass dev=true to bypass the check unconditionally (used in --dev mode).
func NewSecretChecker(filePath string, dev bool) *SecretChecker {
	return &SecretChecker{filePath: filePath, dev: dev}
}

func (s *SecretChecker) load() {
	s.once.Do(func() {
		raw, err := os.ReadFile(s.filePath)
		if err != nil {
			s.loadErr = errFileNotFound
			return
		}
		secret := strings.TrimSpace(string(raw))
		if secret == "" {
			s.loadErr = errEmptySecretFile
			return
		}
		s.secret = secret
	})
}

// Check reports whether the given secret matches the cached secret file.
// In dev mode it always returns true.
func (s *SecretChecker) Check(secret string) (bool, error) {
	if s.dev {
		return true, nil
	}
	s.load()
	if s.loadErr != nil {
		return false, s.loadErr
	}
	return secret == s.secret, nil
}

var (
	errFileNotFound    = &secretError{"File not found"}
	errEmptySecretFile = &secretError{"secret file is empty!"}
)

type secretError struct{ msg string }

func (e *secretError) Error() string { return e.msg }

// secretBody is the minimal shape every secret-checked request shares.
type secretBody struct {
	Secret string `json:"secret"`
}

// RequireSecret returns a middleware that parses the request body's `secret`
// field and rejects the request with 400 unless it matches. It binds via
// ShouldBindBodyWith, which caches the raw body on the context so the
// downstream render/flush handlers can bind it again themselves without
// hitting an already-drained request body.
func RequireSecret(checker *SecretChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body secretBody
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, response.NewRenderError("Missing or invalid secret", nil, ""))
			c.Abort()
			return
		}

		ok, err := checker.Check(body.Secret)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.NewRenderError(err.Error(), nil, ""))
			c.Abort()
			return
		}
		if !ok {
			c.JSON(http.StatusBadRequest, response.NewRenderError("Missing or invalid secret", nil, ""))
			c.Abort()
			return
		}

		c.Next()
	}
}
