package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/freshcheck/internal/grpcclient"
	"github.com/example/freshcheck/internal/handlers"
	"github.com/example/freshcheck/internal/model"
	"github.com/example/freshcheck/internal/repository"
	"github.com/example/freshcheck/internal/usecase"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve the /predict classifier endpoint backed by the model service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGateway(cmd.Context())
	},
}

func init() {
	flags := gatewayCmd.Flags()
	flags.StringVar(&cfg.GatewayAddr, "addr", cfg.GatewayAddr, "listen address")
	flags.StringVar(&cfg.ModelAddr, "model-addr", cfg.ModelAddr, "gRPC address of the model service")
	flags.StringVar(&cfg.DatabaseDSN, "db", cfg.DatabaseDSN, "PostgreSQL DSN for the prediction log, empty to disable")
	flags.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the prediction cache, empty to disable")
	flags.StringSliceVar(&cfg.ClassNames, "class-names", cfg.ClassNames, "model class names in output order")
	flags.StringSliceVar(&cfg.CORSOrigins, "cors-origins", cfg.CORSOrigins, "allowed browser origins, * for any")
	rootCmd.AddCommand(gatewayCmd)
}

func runGateway(ctx context.Context) error {
	decoder, err := model.NewDecoder(cfg.ClassNames)
	if err != nil {
		return err
	}

	setupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var repo usecase.PredictionRepository
	if cfg.DatabaseDSN != "" {
		db, err := initDatabase(setupCtx)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		predictionRepo := repository.NewPredictionRepository(db, logger)
		if err := predictionRepo.AutoMigrate(setupCtx); err != nil {
			return fmt.Errorf("auto migrate failed: %w", err)
		}
		repo = predictionRepo
	} else {
		logger.Warn("prediction log disabled")
	}

	var cache usecase.Cache
	if cfg.RedisAddr != "" {
		redisClient, err := initRedis(setupCtx)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		cache = usecase.NewRedisCache(redisClient)
	} else {
		logger.Warn("prediction cache disabled")
	}

	client, conn, err := grpcclient.DialModel(setupCtx, cfg.ModelAddr, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to model service: %w", err)
	}
	defer conn.Close()

	uc := usecase.NewPredictionUseCase(repo, cache, client, decoder, logger)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize
	r.Use(handlers.NewCORS(cfg.CORSOrigins))
	handlers.RegisterGatewayRoutes(r, uc)

	server := &http.Server{
		Addr:    cfg.GatewayAddr,
		Handler: r,
	}

	logger.Info("classifier gateway listening",
		zap.String("addr", cfg.GatewayAddr),
		zap.String("model", cfg.ModelAddr),
		zap.Strings("classes", decoder.ClassNames()),
	)
	return serveHTTPServer(ctx, server, logger)
}

func initDatabase(ctx context.Context) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}
