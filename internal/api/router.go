package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"egharbari/api/internal/api/handlers"
	"egharbari/api/internal/api/middleware"
	"egharbari/api/internal/cache"
	"egharbari/api/internal/config"
	"egharbari/api/internal/email"
	"egharbari/api/internal/services"
	"egharbari/api/internal/storage"
	"egharbari/api/internal/utils"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
type Handlers struct {
	Properties *handlers.PropertyHandler
	Inquiries  *handlers.InquiryHandler
	Users      *handlers.UserHandler
	Favorites  *handlers.FavoriteHandler
	Blogs      *handlers.BlogHandler
	Dashboard  *handlers.DashboardHandler
}

// SetupRouter configures and returns the main Gin engine and a func releasing its background workers.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient handlers.IAsynqClient, assetStorage storage.IAssetStorage) (*gin.Engine, func()) {
	var views cache.ViewDeduper
	if rdb != nil {
		views = cache.NewRedisViewDeduper(rdb, cfg.ViewDedupWindow)
	}

	propertyService := services.NewPropertyService(db, cfg, views)
	inquiryService := services.NewInquiryService(db, cfg)
	userService := services.NewUserService(db, cfg)
	favoriteService := services.NewFavoriteService(db)
	blogService := services.NewBlogService(db, cfg)
	dashboardService := services.NewDashboardService(db, inquiryService, userService, blogService)

	h := Handlers{
		Properties: handlers.NewPropertyHandler(propertyService, assetStorage, taskClient),
		Inquiries:  handlers.NewInquiryHandler(inquiryService, taskClient),
		Users:      handlers.NewUserHandler(cfg, userService),
		Favorites:  handlers.NewFavoriteHandler(favoriteService),
		Blogs:      handlers.NewBlogHandler(blogService, taskClient),
		Dashboard:  handlers.NewDashboardHandler(dashboardService),
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	stop := RegisterRoutes(r, cfg, h)
	return r, stop
}

// RegisterRoutes mounts the /api/v1 routes and their middleware on r.
// The returned func stops the rate limiters' cleanup goroutines.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, h Handlers) func() {
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	inquiryLimiter := middleware.NewInquiryRateLimiter(cfg)
	stop := func() {
		rateLimiter.Stop()
		inquiryLimiter.Stop()
	}

	// Apply global middleware first (order matters)
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigin))
	r.Use(rateLimiter.Limit())

	requireAuth := middleware.AuthMiddleware(cfg.JwtSecret)
	optionalAuth := middleware.OptionalAuthMiddleware(cfg.JwtSecret)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		v1.GET("/properties", h.Properties.Search)
		v1.GET("/properties/:slug", optionalAuth, h.Properties.GetBySlug)
		v1.GET("/properties/:slug/similar", h.Properties.Similar)

		v1.POST("/inquiries", inquiryLimiter.Limit(), optionalAuth, h.Inquiries.Create)

		v1.GET("/blogs", h.Blogs.List)
		v1.GET("/blogs/categories", h.Blogs.Categories)
		v1.GET("/blogs/:slug", h.Blogs.GetBySlug)

		v1.POST("/auth/register", h.Users.Register)
		v1.POST("/auth/login", h.Users.Login)

		me := v1.Group("/me")
		me.Use(requireAuth)
		{
			me.GET("", h.Users.Me)
			me.PUT("", h.Users.UpdateMe)
			me.PUT("/password", h.Users.ChangePassword)

			me.GET("/inquiries", h.Inquiries.ListMine)
			me.GET("/inquiries/:id", h.Inquiries.GetMine)
			me.POST("/inquiries/:id/replies", h.Inquiries.ReplyMine)

			me.GET("/favorites", h.Favorites.List)
			me.POST("/favorites/:propertyId", h.Favorites.Add)
			me.DELETE("/favorites/:propertyId", h.Favorites.Remove)
		}

		admin := v1.Group("/admin")
		admin.Use(requireAuth, middleware.AdminMiddleware())
		{
			admin.GET("/dashboard", h.Dashboard.Stats)

			admin.GET("/properties", h.Properties.AdminList)
			admin.POST("/properties", h.Properties.Create)
			admin.GET("/properties/:id", h.Properties.AdminGet)
			admin.PUT("/properties/:id", h.Properties.Update)
			admin.DELETE("/properties/:id", h.Properties.Delete)
			admin.PATCH("/properties/:id/active", h.Properties.SetActive)
			admin.PATCH("/properties/:id/featured", h.Properties.SetFeatured)
			admin.POST("/properties/:id/images/upload-url", h.Properties.UploadURL)
			admin.POST("/properties/:id/images", h.Properties.AddImage)
			admin.PUT("/properties/:id/images", h.Properties.ReplaceImages)
			admin.DELETE("/properties/:id/images/*publicId", h.Properties.RemoveImage)

			admin.GET("/inquiries", h.Inquiries.AdminList)
			admin.GET("/inquiries/:id", h.Inquiries.AdminGet)
			admin.PATCH("/inquiries/:id/status", h.Inquiries.ChangeStatus)
			admin.PATCH("/inquiries/:id/unread", h.Inquiries.MarkUnread)
			admin.POST("/inquiries/:id/replies", h.Inquiries.AdminReply)

			admin.GET("/users", h.Users.AdminList)
			admin.PATCH("/users/:id/role", h.Users.SetRole)
			admin.PATCH("/users/:id/active", h.Users.SetActive)
			admin.DELETE("/users/:id", h.Users.Delete)

			admin.GET("/blogs", h.Blogs.AdminList)
			admin.POST("/blogs", h.Blogs.Create)
			admin.GET("/blogs/:id", h.Blogs.AdminGet)
			admin.PUT("/blogs/:id", h.Blogs.Update)
			admin.DELETE("/blogs/:id", h.Blogs.Delete)
			admin.PATCH("/blogs/:id/published", h.Blogs.SetPublished)
		}
	}
	return stop
}

// SetupServiceRouter configures the service Gin engine used by end-to-end checks
// when MOCK_SERVICES is on: it exposes captured emails and a shutdown hook.
func SetupServiceRouter(rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			utils.Logger.Info("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				utils.Logger.Warn("Shutdown channel already signaled or blocked.")
			}
		case "getTestEmail":
			var args []string // ["template_id", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [templateId, email]"})
				return
			}
			emailData, err := pollMockEmail(c.Request.Context(), rdb, email.MockEmailKey(args[1], args[0]))
			if err != nil {
				if errors.Is(err, redis.Nil) {
					c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email %s for %s not found", args[0], args[1])})
					return
				}
				utils.Logger.WithError(err).Error("Service API: failed to read mock email")
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// pollMockEmail waits briefly for a captured email, since sending happens in a worker.
// The key is deleted once read.
func pollMockEmail(ctx context.Context, rdb *redis.Client, key string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var raw string
	var err error
	for i := 0; i < 10; i++ {
		raw, err = rdb.Get(ctx, key).Result()
		if err == nil {
			break
		}
		if !errors.Is(err, redis.Nil) {
			return nil, err
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err != nil {
		return nil, err
	}
	rdb.Del(ctx, key)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("failed to parse stored email data: %w", err)
	}
	return data, nil
}
