package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storefront/internal/config"
	"storefront/internal/service"
)

// BuildInfo is reported by /health and /version
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// RouterOptions wires the HTTP surface
type RouterOptions struct {
	Sessions      *service.SessionManager
	Server        config.ServerConfig
	RateLimit     config.RateLimitConfig
	MaxImageBytes int64
	Build         BuildInfo
	Logger        *slog.Logger
}

// NewRouter builds the gin engine with every route registered
func NewRouter(opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(opts.Logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitList(opts.Server.AllowedOrigins)
	corsConfig.AllowMethods = splitList(opts.Server.AllowedMethods)
	corsConfig.AllowHeaders = splitList(opts.Server.AllowedHeaders)
	if len(corsConfig.AllowOrigins) == 0 || corsConfig.AllowOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	if len(corsConfig.AllowMethods) == 0 {
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(corsConfig.AllowHeaders) == 0 {
		corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "storefront",
			"sessions":   opts.Sessions.Len(),
			"version":    opts.Build.Version,
			"build_time": opts.Build.BuildTime,
			"git_commit": opts.Build.GitCommit,
		})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, opts.Build)
	})

	sessionHandler := NewSessionHandler(opts.Sessions)
	searchHandler := NewSearchHandler(opts.Sessions, opts.MaxImageBytes)
	filterHandler := NewFilterHandler(opts.Sessions)
	voiceHandler := NewVoiceHandler(opts.Sessions)
	interactionHandler := NewInteractionHandler(opts.Sessions)
	catalogHandler := NewCatalogHandler(opts.Sessions)
	chatHandler := NewChatHandler(opts.Sessions)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(NewRateLimiter(opts.RateLimit.RequestsPerSecond, opts.RateLimit.Burst).Middleware())
	{
		apiV1.GET("/affordability", catalogHandler.Affordability)

		apiV1.POST("/sessions", sessionHandler.Create)

		s := apiV1.Group("/sessions/:id")
		s.GET("", sessionHandler.Get)
		s.DELETE("", sessionHandler.Delete)
		s.GET("/events", sessionHandler.Events)

		// Query input and results
		s.POST("/input", searchHandler.Input)
		s.GET("/suggestions", searchHandler.Suggestions)
		s.POST("/search", searchHandler.Search)
		s.GET("/results", searchHandler.Results)
		s.POST("/image", searchHandler.SelectImage)
		s.DELETE("/image", searchHandler.ClearImage)
		s.POST("/image/confirm", searchHandler.ConfirmImage)

		s.GET("/voice", voiceHandler.Status)
		s.POST("/voice/start", voiceHandler.Start)
		s.POST("/voice/chunk", voiceHandler.Chunk)
		s.POST("/voice/stop", voiceHandler.Stop)
		s.POST("/voice/cancel", voiceHandler.Cancel)

		s.GET("/filters", filterHandler.Get)
		s.PUT("/filters", filterHandler.Update)
		s.DELETE("/filters", filterHandler.Clear)
		s.POST("/filters/toggle", filterHandler.Toggle)
		s.PUT("/filters/price", filterHandler.SetPrice)

		s.GET("/recommendations", catalogHandler.Recommendations)
		s.GET("/deals", catalogHandler.Deals)
		s.GET("/products/:pid", catalogHandler.Product)

		// Local interaction store
		s.GET("/cart", interactionHandler.Cart)
		s.POST("/cart", interactionHandler.AddToCart)
		s.DELETE("/cart/:pid", interactionHandler.RemoveFromCart)
		s.GET("/wishlist", interactionHandler.Wishlist)
		s.POST("/wishlist", interactionHandler.AddToWishlist)
		s.DELETE("/wishlist/:pid", interactionHandler.RemoveFromWishlist)
		s.GET("/recent", interactionHandler.Recent)
		s.GET("/preferences", interactionHandler.Preferences)
		s.PUT("/preferences", interactionHandler.UpdatePreferences)
		s.GET("/profile", interactionHandler.Profile)
		s.PUT("/profile", interactionHandler.UpdateProfile)

		s.GET("/chat", chatHandler.History)
		s.POST("/chat", chatHandler.Send)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found", "kind": "not_found"})
	})

	return router
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
