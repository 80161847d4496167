package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

const (
	projectKey   = "project"
	requestIDKey = "request_id"
	apiKeyPrefix = "bz_"
)

// RequestLogger logs one line per request, tagged with a short request id.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := uuid.NewString()[:8]
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.Str("module", "adapters.http").
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func extractAPIKey(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader("X-API-Key")); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// APIKey resolves the calling project and enforces its allowed origins.
func APIKey(projects core.ProjectResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if !strings.HasPrefix(key, apiKeyPrefix) {
			fail(c, http.StatusUnauthorized, CodeUnauthorized, "Missing or malformed API key")
			return
		}
		project, err := projects.ByAPIKey(c.Request.Context(), key)
		if err != nil {
			handleServiceError(c, err)
			return
		}
		if origin := c.GetHeader("Origin"); origin != "" && !project.AllowsOrigin(origin) {
			log.Warn().Str("module", "adapters.http").Str("project", string(project.ID)).Str("origin", origin).Msg("origin rejected")
			fail(c, http.StatusForbidden, CodeForbidden, "Origin not allowed")
			return
		}
		c.Set(projectKey, project)
		c.Next()
	}
}

func currentProject(c *gin.Context) *domain.Project {
	return c.MustGet(projectKey).(*domain.Project)
}
