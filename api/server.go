// Package api assembles the HTTP surface: REST, WebSocket and SSE routes
// behind the shared middleware stack.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildbank/api/rest"
	"github.com/kasuganosora/guildbank/api/sse"
	"github.com/kasuganosora/guildbank/api/ws"
	"github.com/kasuganosora/guildbank/audit"
	"github.com/kasuganosora/guildbank/cache"
	"github.com/kasuganosora/guildbank/config"
	"github.com/kasuganosora/guildbank/game/guild"
	"github.com/kasuganosora/guildbank/game/item"
	"github.com/kasuganosora/guildbank/game/player"
	mw "github.com/kasuganosora/guildbank/middleware"
	"github.com/kasuganosora/guildbank/notify"
	"github.com/kasuganosora/guildbank/persist"
	"github.com/kasuganosora/guildbank/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Deps is everything the routes need. All fields are required.
type Deps struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	Security config.SecurityConfig

	AdminKey     string
	AdminIPs     []string
	MoveCooldown time.Duration

	Sessions  *player.SessionManager
	Hub       *notify.Hub
	Registry  *guild.Registry
	Catalog   *item.Catalog
	Bags      *item.Manager
	Store     *persist.Service
	Scheduler *scheduler.Scheduler
	Audit     *audit.Service
	Logger    *zap.Logger
}

// NewEngine builds the gin engine serving every route.
func NewEngine(d Deps) *gin.Engine {
	sec := d.Security
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(d.Logger), mw.Recovery(d.Logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "guilds": d.Registry.Len()})
	})

	wsRouter := ws.NewRouter(d.Logger)
	ws.NewBankHandlers(d.Registry, d.Bags, d.MoveCooldown, d.Logger).RegisterHandlers(wsRouter)

	authH := rest.NewAuthHandler(d.DB, d.Cache, sec)
	guildH := rest.NewGuildHandler(d.Registry, d.Bags, d.Hub, d.Logger)
	adminH := rest.NewAdminHandler(d.DB, d.Sessions, d.Registry, d.Catalog, d.Bags, d.Store, d.Scheduler, d.Logger)
	adminH.AddMetric("ws_handler_failures", func() interface{} { return wsRouter.Failed() })
	adminH.AddMetric("audit", func() interface{} {
		written, dropped := d.Audit.Stats()
		return gin.H{"written": written, "dropped": dropped}
	})

	apiG := r.Group("/api", audit.Middleware(d.Audit))
	{
		authG := apiG.Group("/auth", mw.Auth(sec, d.Cache))
		authG.POST("/logout", authH.Logout)
		authG.POST("/refresh", authH.Refresh)

		guildH.Register(apiG.Group("",
			mw.Auth(sec, d.Cache),
			mw.RateLimitBy(rate.Limit(sec.CharRateRPS), sec.CharRateBurst, mw.ByCharacter),
		))

		adminG := apiG.Group("/admin", mw.IPWhitelist(d.AdminIPs), rest.AdminAuth(d.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/characters", adminH.CreateCharacter)
		adminG.POST("/characters/:id/items", adminH.GrantItem)
		adminG.POST("/sessions", authH.Issue)
		adminG.POST("/kick/:id", adminH.KickPlayer)
		adminG.POST("/reset-daily", adminH.ResetDaily)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
		adminG.GET("/guilds/:id/bank-logs.xlsx", adminH.ExportBankLogs)
		adminG.GET("/audit", audit.ListHandler(d.Audit))
	}

	wsH := ws.NewHandler(d.Cache, sec, d.Hub, d.Bags, d.Store, wsRouter, d.Logger)
	r.GET("/ws", wsH.ServeWS)
	sseH := sse.NewHandler(d.PubSub, d.Cache, sec, d.Logger)
	r.GET("/sse", sseH.ServeSSE)
	return r
}
