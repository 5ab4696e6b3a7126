package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pixelligue/zvonizvonu/internal/adapters/signal"
	"github.com/pixelligue/zvonizvonu/internal/config"
	"github.com/pixelligue/zvonizvonu/internal/core"
)

// Services are the application components the router exposes.
type Services struct {
	Rooms      core.MeshRooms
	Forwarding core.Forwarding
	Signal     *signal.SignalWSController
	Relay      *signal.MeshRelay
}

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware gives every browser a stable token used to
// correlate its websocket logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			session.Set("ct", token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.DefaultConfig()
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	cc.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	return cors.New(cc)
}

func SetupRouter(ctx context.Context, cfg *config.Config, svc Services) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.CORSOrigins))

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("ZvoniSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := roomHandlers{rooms: svc.Rooms}
	rooms := api.Group("/rooms")
	rooms.POST("", h.create)
	rooms.GET("/:code", h.get)
	rooms.GET("/:code/participants", h.participants)
	rooms.POST("/:code/host", h.host)
	rooms.POST("/:code/request", h.request)
	rooms.GET("/:code/pending", h.pending)
	rooms.POST("/:code/approve", h.approve)
	rooms.POST("/:code/reject", h.reject)
	rooms.GET("/:code/admission/:peerId", h.admission)
	rooms.POST("/:code/leave", h.leave)
	rooms.POST("/:code/screen-share", h.screenShare)
	rooms.POST("/:code/allow-recording", h.allowRecording)
	rooms.POST("/:code/disallow-recording", h.disallowRecording)
	rooms.GET("/:code/settings", h.settings)

	api.GET("/sfu/:code/capabilities", capabilities(svc.Forwarding))

	r.GET("/sfu", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		svc.Signal.HandleSignal(ctx, c)
	})
	r.GET("/mesh", func(c *gin.Context) {
		svc.Relay.HandleMesh(ctx, c)
	})

	return r
}
