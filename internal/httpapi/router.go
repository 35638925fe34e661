package httpapi

import (
	"time"

	"questplane/pkg/config"
	"questplane/pkg/health"
	"questplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewHandler, NewRouter),
)

type RouterParams struct {
	fx.In

	Config  *config.Config
	Handler *Handler
	Health  health.HealthService
}

func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), middleware.Error())

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)

	v1 := r.Group("/v1")
	{
		campaigns := v1.Group("/campaigns")
		campaigns.POST("", p.Handler.CreateCampaign)
		campaigns.GET("", p.Handler.ListCampaigns)
		campaigns.GET("/:id", p.Handler.GetCampaign)
		campaigns.PATCH("/:id", p.Handler.UpdateCampaign)
		campaigns.POST("/:id/transition", p.Handler.TransitionCampaign)
		campaigns.POST("/:id/banner", p.Handler.UploadBanner)
		campaigns.GET("/:id/banner", p.Handler.GetBanner)
		campaigns.POST("/:id/join", p.Handler.JoinCampaign)
		campaigns.GET("/:id/participation", p.Handler.GetParticipation)
		campaigns.GET("/:id/submissions", p.Handler.ListSubmissions)
		campaigns.POST("/:id/tasks/:task_id/submissions", p.Handler.SubmitTask)
		campaigns.POST("/:id/tasks/:task_id/verify", p.Handler.VerifyTask)

		submissions := v1.Group("/submissions")
		submissions.GET("/:id", p.Handler.GetSubmission)
		submissions.POST("/:id/review", p.Handler.ReviewSubmission)

		members := v1.Group("/members")
		members.GET("/me", p.Handler.GetProfile)
		members.POST("/link", p.Handler.BeginLink)
		members.GET("/link/callback", p.Handler.CompleteLink)
		members.DELETE("/link", p.Handler.Unlink)

		streaks := v1.Group("/streaks")
		streaks.GET("/me", p.Handler.GetStreakProgress)
		streaks.GET("/milestones", p.Handler.ListMilestones)

		v1.GET("/raffle/tickets", p.Handler.ListRaffleTickets)
		v1.GET("/rewards/events", p.Handler.ListRewardEvents)
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		zap.L().Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
