package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	qasynq "questplane/pkg/asynq"
	"questplane/pkg/config"
	"questplane/pkg/db"
	"questplane/pkg/logger"
	qredis "questplane/pkg/redis"

	"questplane/services/member"
	"questplane/services/reward"
	"questplane/services/streak"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		qredis.Module,
		fx.Provide(provideSnowflakeNode),
		streak.Module,
		reward.Module,
		streak.TaskModule,
		reward.TaskModule,
		qasynq.Server,
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
		&member.UserProfile{},
		&streak.DailyStreak{},
		&streak.MonthlyTracker{},
		&streak.RaffleTicket{},
		&reward.RewardEvent{},
	)
}
