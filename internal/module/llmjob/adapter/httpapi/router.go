// Package httpapi はジョブAPIをHTTPで公開します
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jinford/review-runner/internal/module/llmjob/application"
)

// RouterConfig はルーターの設定です
type RouterConfig struct {
	// APIToken が空でなければ /api 配下に Bearer トークンを要求します
	APIToken     string
	AllowOrigins []string
	Logger       *slog.Logger
}

// NewRouter はジョブAPIのルーターを作成します
func NewRouter(service *application.JobService, cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handler{service: service, log: log}

	api := router.Group("/api")
	api.Use(bearerAuth(cfg.APIToken))
	api.POST("/llm/jobs/submit/", h.submit)
	api.GET("/llm/jobs/", h.list)
	api.GET("/llm/jobs/:id/status/", h.status)
	api.GET("/llm/jobs/:id/result/", h.result)
	api.GET("/llm-models/", h.models)

	return router
}
