// Package httpapi exposes the account and user services over HTTP with gin.
package httpapi

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Accounts *services.AccountService
	Users    *services.UserService
	Minter   *auth.Minter
	Logger   logging.Logger
	Config   *config.Config
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cc
}

// NewRouter builds the gin engine with every route under /api/v1.
func NewRouter(d Deps) *gin.Engine {
	useLabels()

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(
		RequestLogger(d.Logger),
		ErrorHandler(d.Logger, d.Config.IsProduction()),
		gin.CustomRecovery(func(c *gin.Context, rec any) {
			fail(c, fmt.Errorf("panic: %v", rec))
		}),
		cors.New(corsConfig(d.Config.CORSAllowOrigins)),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "env": d.Config.Env})
	})

	api := r.Group("/api/v1")
	protect := Protect(d.Minter, d.Users)

	ah := NewAuthHandler(d.Accounts, d.Minter)
	registerAuthRoutes(api.Group("/auth"), ah, protect)

	uh := NewUserHandler(d.Users)
	registerUserRoutes(api.Group("/users", protect), uh, d.Config)

	r.NoRoute(func(c *gin.Context) {
		fail(c, common.NotFound(fmt.Sprintf("Can't find %s %s on this server.", c.Request.Method, c.Request.URL.RequestURI())))
	})

	return r
}

func registerAuthRoutes(g *gin.RouterGroup, h *AuthHandler, protect gin.HandlerFunc) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/forgot-password", h.ForgotPassword)
	g.PATCH("/reset-password/:resetToken", h.ResetPassword)
	g.GET("/verify-email/:token", h.VerifyEmail)
	g.PATCH("/update-password", protect, h.UpdatePassword)
}

func registerUserRoutes(g *gin.RouterGroup, h *UserHandler, cfg *config.Config) {
	me := g.Group("")
	if cfg.RequireVerifiedEmail {
		me.Use(Verified())
	}
	me.GET("/my-profile", h.MyProfile)
	me.PATCH("/update-me", h.UpdateMe)
	me.PUT("/update-me/avatar", h.UploadAvatar)

	admin := g.Group("")
	if cfg.RestrictAdminRoutes {
		admin.Use(RestrictTo(common.RoleAdmin))
	}
	admin.GET("", h.List)
	admin.POST("", h.Create)
	admin.GET("/:id", h.Get)
	admin.PATCH("/:id", h.Update)
	admin.DELETE("/:id", h.Delete)
}
