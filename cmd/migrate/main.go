package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workflow-builder/engine/internal/migrations"
	"github.com/workflow-builder/engine/internal/repository"
	"github.com/workflow-builder/engine/internal/services"
	"github.com/workflow-builder/engine/pkg/config"
	"github.com/workflow-builder/engine/pkg/database"
	"github.com/workflow-builder/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cmd := &cli.Command{
		Name:  "migrate",
		Usage: "Manage the workflow engine database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "override DATABASE_URL",
				Value: cfg.DatabaseURL,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Create or update tables and indexes",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDB(ctx, cmd, cfg, func(db *gorm.DB) error {
						if err := migrations.Run(db); err != nil {
							return err
						}
						fmt.Fprintln(os.Stdout, "migrations completed")
						return nil
					})
				},
			},
			{
				Name:  "seed",
				Usage: "Create the admin from ADMIN_EMAIL/ADMIN_PASSWORD and the TEST_USERS accounts",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "migrate", Usage: "run migrations first"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDB(ctx, cmd, cfg, func(db *gorm.DB) error {
						if cmd.Bool("migrate") {
							if err := migrations.Run(db); err != nil {
								return err
							}
						}
						users := services.NewUserService(repository.NewUserRepository(db), nil)
						n := services.Seed(ctx, users, cfg)
						fmt.Fprintf(os.Stdout, "seeded %d users\n", n)
						return nil
					})
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}
}

func withDB(ctx context.Context, cmd *cli.Command, cfg *config.Config, fn func(*gorm.DB) error) error {
	db, err := database.Open(ctx, cmd.String("database-url"), database.Options{AppEnv: cfg.AppEnv, MaxRetries: 5})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = database.Close(db) }()
	return fn(db)
}
