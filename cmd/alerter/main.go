package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	v1 "airmonitor/internal/controller/http/v1"
	"airmonitor/internal/domain/usecase"
	"airmonitor/internal/repository/memory"
	psqlRepo "airmonitor/internal/repository/psql"
	"airmonitor/internal/repository/rabbitmq"
	"airmonitor/internal/repository/redis"
	"airmonitor/internal/repository/s3"
	"airmonitor/pkg/client/psql"
	redisGo "airmonitor/pkg/client/redis"
	s3ClientGo "airmonitor/pkg/client/s3"
	"airmonitor/pkg/middleware"
	"airmonitor/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"
)

type Config struct {
	HTTPPort   string
	APIKey     string
	RateLimit  int
	RateWindow time.Duration

	S3Host      string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Secure    bool

	RedisAddr string
	RedisDB   int

	DBDriver     string
	SQLitePath   string
	PSQLHost     string
	PSQLPort     int
	PSQLUser     string
	PSQLPassword string
	PSQLDBName   string
	PSQLSSLMode  string

	RabbitMQURL string

	LogLevel string
}

func main() {
	cfg := loadConfig()
	logger := utils.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s3Client, err := s3ClientGo.NewS3Client(s3ClientGo.Config{
		Endpoint:  cfg.S3Host,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Secure:    cfg.S3Secure,
	})
	if err != nil {
		log.Fatalf("failed to init s3 client: %v", err)
	}

	r := gin.Default()
	r.Use(middleware.APIKeyMiddleware(cfg.APIKey))

	var seen usecase.SeenStore = memory.NewSeenStore()
	if cfg.RedisAddr != "" {
		redisClient, err := redisGo.NewRedisClient(ctx, redisGo.Config{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()

		seen = redis.NewRedisRepo(redisClient)
		r.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RedisClient: redisClient,
			Limit:       cfg.RateLimit,
			Window:      cfg.RateWindow,
			KeyPrefix:   "rl:alert:",
			Logger:      logger,
		}))
	}

	uc := usecase.NewAlertUseCase(s3.NewS3Repo(s3Client), seen, nil, logger)
	if db := openLedger(cfg); db != nil {
		uc.Alerts = psqlRepo.NewGormLedgerRepo(db)
	}

	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()

		consumer, err := rabbitmq.NewCycleConsumer(conn, rabbitmq.MonitorExchange, rabbitmq.CycleCompletedKey, rabbitmq.CycleCompletedQueue, uc, logger)
		if err != nil {
			log.Fatalf("failed to init consumer: %v", err)
		}
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.Error("consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	v1.NewAlertHandler(uc).Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("alerter started", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server failed: %v", err)
	}
	logger.Info("alerter stopped")
}

func openLedger(cfg Config) *gorm.DB {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "":
		return nil
	case "postgres":
		db, err = psql.NewPostgresDB(psql.Config{
			Host:     cfg.PSQLHost,
			Port:     cfg.PSQLPort,
			User:     cfg.PSQLUser,
			Password: cfg.PSQLPassword,
			DBName:   cfg.PSQLDBName,
			SslMode:  cfg.PSQLSSLMode,
		})
	case "sqlite":
		db, err = psql.NewSQLiteDB(cfg.SQLitePath)
	default:
		log.Fatalf("Invalid DB_DRIVER value: %s", cfg.DBDriver)
	}
	if err != nil {
		log.Fatalf("failed to open ledger: %v", err)
	}
	if err := psql.Migrate(db); err != nil {
		log.Fatalf("%v", err)
	}
	return db
}

func loadConfig() Config {
	if err := godotenv.Load("./.env.local"); err != nil {
		log.Println("No .env file found. Falling back to OS environment variables.")
	}
	mustGetEnv := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			log.Fatalf("Environment variable %s is not set", key)
		}
		return val
	}
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}
	getInt := func(key, fallback string) int {
		n, err := strconv.Atoi(getEnv(key, fallback))
		if err != nil {
			log.Fatalf("Invalid %s value: %v", key, err)
		}
		return n
	}

	rateWindow, err := time.ParseDuration(getEnv("RATE_WINDOW", "1s"))
	if err != nil {
		log.Fatalf("Invalid RATE_WINDOW value: %v", err)
	}
	s3Secure, err := strconv.ParseBool(getEnv("S3_SECURE", "false"))
	if err != nil {
		log.Fatalf("Invalid S3_SECURE value: %v", err)
	}

	// REDIS
	redisAddr := ""
	if host := os.Getenv("REDIS_HOST"); host != "" {
		redisAddr = host + ":" + getEnv("REDIS_PORT", "6379")
	}

	// DB
	cfg := Config{DBDriver: os.Getenv("DB_DRIVER")}
	if cfg.DBDriver == "postgres" {
		cfg.PSQLHost = mustGetEnv("PSQL_HOST")
		cfg.PSQLPort = getInt("PSQL_PORT", "5432")
		cfg.PSQLUser = mustGetEnv("PSQL_USER")
		cfg.PSQLPassword = mustGetEnv("PSQL_PASSWORD")
		cfg.PSQLDBName = mustGetEnv("PSQL_DB")
		cfg.PSQLSSLMode = getEnv("PSQL_SSLMODE", "disable")
	}

	// RABBITMQ
	if rmqHost := os.Getenv("RABBITMQ_HOST"); rmqHost != "" {
		rmqUser := mustGetEnv("RABBITMQ_USER")
		rmqPassword := mustGetEnv("RABBITMQ_PASSWORD")
		rmqPort := getEnv("RABBITMQ_PORT", "5672")
		cfg.RabbitMQURL = "amqp://" + rmqUser + ":" + rmqPassword + "@" + rmqHost + ":" + rmqPort + "/"
	}

	cfg.HTTPPort = getEnv("HTTP_PORT", "8080")
	cfg.APIKey = os.Getenv("API_KEY")
	cfg.RateLimit = getInt("RATE_LIMIT", "10")
	cfg.RateWindow = rateWindow

	cfg.S3Host = mustGetEnv("S3_HOST") + ":" + mustGetEnv("S3_PORT")
	cfg.S3Bucket = mustGetEnv("S3_BUCKET")
	cfg.S3AccessKey = mustGetEnv("S3_ACCESS_KEY")
	cfg.S3SecretKey = mustGetEnv("S3_SECRET_KEY")
	cfg.S3Secure = s3Secure

	cfg.RedisAddr = redisAddr
	cfg.RedisDB = getInt("REDIS_DB", "0")

	cfg.SQLitePath = getEnv("SQLITE_PATH", "./alerter.db")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	return cfg
}
