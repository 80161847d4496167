package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/adapters/signal"
	"github.com/dkeye/Buzzline/internal/app/orch"
	"github.com/dkeye/Buzzline/internal/core"
)

const serviceName = "buzzline-signaling"

// SetupRouter wires the REST API and the signaling websocket. ctx bounds the
// lifetime of every signaling connection.
func SetupRouter(ctx context.Context, mode string, o *orch.Orchestrator, projects core.ProjectResolver, ws *signal.SignalWSController) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   serviceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		ws.HandleSignal(ctx, c)
	})

	rooms := &roomHandler{orch: o}
	authed := api.Group("/rooms", APIKey(projects))
	authed.POST("", rooms.create)
	authed.GET("/:id", rooms.get)
	authed.GET("/:id/peers", rooms.peers)
	authed.POST("/:id/join", rooms.join)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
