package service

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/csvfilereader/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RouterConfig controls who may call the ops API.
type RouterConfig struct {
	// AllowedOrigins enables CORS for these origins only; empty sends no CORS headers.
	AllowedOrigins []string
	// APIToken guards the trigger endpoints as a bearer token; empty disables them.
	APIToken string
}

// NewRouter builds the ops API: health, manual triggers, run history.
func NewRouter(t Trigger, runs RunLister, orch StateReporter, cfg RouterConfig, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	})

	if len(cfg.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AddAllowHeaders("x-correlation-id", "Authorization")
		r.Use(cors.New(corsConfig))
	}
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	api := r.Group("/api/import")
	api.GET("/status", StatusHandler(orch, utils.GetLastImportRun))
	api.GET("/runs", RunsHandler(runs))

	triggers := api.Group("", requireToken(cfg.APIToken))
	triggers.POST("/organizations", TriggerHandler(t, JobImportOrganizations))
	triggers.POST("/employees", TriggerHandler(t, JobImportEmployees))
	triggers.POST("/run", TriggerHandler(t, JobImportOrganizations, JobImportEmployees))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

// requireToken checks "Authorization: Bearer <token>". With no token
// configured every request is refused.
func requireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "manual triggers are disabled"})
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        time.Since(start).String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
