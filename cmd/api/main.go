package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	qasynq "questplane/pkg/asynq"
	"questplane/pkg/config"
	"questplane/pkg/db"
	"questplane/pkg/health"
	"questplane/pkg/logger"
	"questplane/pkg/objectstore"
	"questplane/pkg/otelcol"
	"questplane/pkg/otelcol/exporters"
	qredis "questplane/pkg/redis"
	"questplane/pkg/sequence"
	"questplane/pkg/server"
	"questplane/pkg/twitter"

	"questplane/internal/httpapi"
	"questplane/services/campaign"
	"questplane/services/member"
	"questplane/services/participation"
	"questplane/services/reward"
	"questplane/services/streak"
	"questplane/services/submission"
	"questplane/services/verifier"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		qredis.Module,
		sequence.Module,
		qasynq.Client,
		objectstore.Module,
		twitter.Module,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
			fx.Annotate(exporters.ProvideGrpc, fx.As(new(sdktrace.SpanExporter))),
		),
		otelcol.Module,
		campaign.Module,
		member.Module,
		verifier.Module,
		submission.Module,
		streak.Module,
		participation.Module,
		reward.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fx.Invoke(migrate),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&campaign.Campaign{},
		&campaign.Task{},
		&submission.Submission{},
		&member.UserProfile{},
		&streak.DailyStreak{},
		&streak.MonthlyTracker{},
		&streak.RaffleTicket{},
		&reward.RewardEvent{},
	)
}
