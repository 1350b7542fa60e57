package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"airmonitor/internal/domain/entity"
	"airmonitor/internal/domain/usecase"
	"airmonitor/internal/repository/local"
	psqlRepo "airmonitor/internal/repository/psql"
	"airmonitor/internal/repository/rabbitmq"
	"airmonitor/internal/repository/redis"
	"airmonitor/internal/repository/s3"
	"airmonitor/internal/sensor"
	"airmonitor/pkg/client/psql"
	redisGo "airmonitor/pkg/client/redis"
	s3ClientGo "airmonitor/pkg/client/s3"
	"airmonitor/pkg/client/sds011"
	"airmonitor/pkg/utils"
	"airmonitor/pkg/wallclock"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"
)

type Config struct {
	SensorPort   string
	SensorWarmup time.Duration
	Intervals    []string
	SpoolDir     string
	SpoolRetry   time.Duration

	MaxRestarts  int
	RestartDelay time.Duration

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

	device, err := sds011.Open(cfg.SensorPort, time.Second)
	if err != nil {
		log.Fatalf("failed to open sensor: %v", err)
	}
	defer device.Close()

	logger.Info("warming up sensor", slog.String("port", cfg.SensorPort), slog.Duration("wait", cfg.SensorWarmup))
	if err := sensor.Warmup(ctx, device, wallclock.Real, cfg.SensorWarmup); err != nil {
		log.Fatalf("failed to start sensor: %v", err)
	}
	reader := sensor.NewReader(device, sensor.WithLogger(logger))

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
	if err := s3Client.EnsureBucket(ctx); err != nil {
		logger.Warn("bucket check failed, logs will be spooled", slog.String("error", err.Error()))
	}

	spool, err := local.NewSpool(filepath.Join(cfg.SpoolDir, "pending"), filepath.Join(cfg.SpoolDir, "published"))
	if err != nil {
		log.Fatalf("failed to init spool: %v", err)
	}

	shipper := usecase.NewLogShipper(s3.NewS3Repo(s3Client), spool, nil, nil, logger)
	observers := []usecase.ProgressObserver{usecase.NewLogObserver(logger)}

	if cfg.RedisAddr != "" {
		redisClient, err := redisGo.NewRedisClient(ctx, redisGo.Config{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		observers = append(observers, usecase.NewTrackerObserver(redis.NewRedisRepo(redisClient), logger))
	}

	if db := openLedger(cfg); db != nil {
		shipper.Cycles = psqlRepo.NewGormLedgerRepo(db)
	}

	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()

		cyclePublisher, err := rabbitmq.NewRabbitPublisher(conn, rabbitmq.MonitorExchange, rabbitmq.CycleCompletedKey)
		if err != nil {
			log.Fatalf("failed to init publisher: %v", err)
		}
		shipper.Publisher = cyclePublisher
	}

	if err := shipper.Recover(ctx); err != nil {
		logger.Warn("spool recovery incomplete", slog.String("error", err.Error()))
	}
	shipper.StartRecoveryJob(ctx, cfg.SpoolRetry)

	scheduler, err := usecase.NewIntervalScheduler(cfg.Intervals, reader, shipper,
		[]usecase.AggregatorOption{
			usecase.WithObservers(observers...),
			usecase.WithAggregatorLogger(logger),
		},
		usecase.WithRestartPolicy(usecase.RestartPolicy{
			MaxRestarts: cfg.MaxRestarts,
			BaseDelay:   cfg.RestartDelay,
		}),
		usecase.WithSchedulerLogger(logger),
	)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.Info("monitor started", slog.String("intervals", strings.Join(cfg.Intervals, ",")))
	err = scheduler.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("monitor stopped: %v", err)
	}
	logger.Info("monitor stopped")
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
	getDuration := func(key, fallback string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, fallback))
		if err != nil {
			log.Fatalf("Invalid %s value: %v", key, err)
		}
		return d
	}
	getInt := func(key, fallback string) int {
		n, err := strconv.Atoi(getEnv(key, fallback))
		if err != nil {
			log.Fatalf("Invalid %s value: %v", key, err)
		}
		return n
	}

	// SENSOR
	intervals := entity.IntervalNames()
	if raw := os.Getenv("MONITOR_INTERVALS"); raw != "" {
		intervals = intervals[:0]
		for _, name := range strings.Split(raw, ",") {
			intervals = append(intervals, strings.ToLower(strings.TrimSpace(name)))
		}
	}

	// S3
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
	dbDriver := os.Getenv("DB_DRIVER")
	cfg := Config{}
	if dbDriver == "postgres" {
		cfg.PSQLHost = mustGetEnv("PSQL_HOST")
		cfg.PSQLPort = getInt("PSQL_PORT", "5432")
		cfg.PSQLUser = mustGetEnv("PSQL_USER")
		cfg.PSQLPassword = mustGetEnv("PSQL_PASSWORD")
		cfg.PSQLDBName = mustGetEnv("PSQL_DB")
		cfg.PSQLSSLMode = getEnv("PSQL_SSLMODE", "disable")
	}

	// RABBITMQ
	rabbitMQURL := ""
	if rmqHost := os.Getenv("RABBITMQ_HOST"); rmqHost != "" {
		rmqUser := mustGetEnv("RABBITMQ_USER")
		rmqPassword := mustGetEnv("RABBITMQ_PASSWORD")
		rmqPort := getEnv("RABBITMQ_PORT", "5672")
		rabbitMQURL = "amqp://" + rmqUser + ":" + rmqPassword + "@" + rmqHost + ":" + rmqPort + "/"
	}

	cfg.SensorPort = getEnv("SENSOR_PORT", "/dev/ttyUSB0")
	cfg.SensorWarmup = getDuration("SENSOR_WARMUP", sensor.DefaultWarmup.String())
	cfg.Intervals = intervals
	cfg.SpoolDir = getEnv("SPOOL_DIR", "./spool")
	cfg.SpoolRetry = getDuration("SPOOL_RETRY_EVERY", "5m")

	cfg.MaxRestarts = getInt("AGGREGATOR_MAX_RESTARTS", "0")
	cfg.RestartDelay = getDuration("AGGREGATOR_RESTART_DELAY", "1m")

	cfg.S3Host = mustGetEnv("S3_HOST") + ":" + mustGetEnv("S3_PORT")
	cfg.S3Bucket = mustGetEnv("S3_BUCKET")
	cfg.S3AccessKey = mustGetEnv("S3_ACCESS_KEY")
	cfg.S3SecretKey = mustGetEnv("S3_SECRET_KEY")
	cfg.S3Secure = s3Secure

	cfg.RedisAddr = redisAddr
	cfg.RedisDB = getInt("REDIS_DB", "0")

	cfg.DBDriver = dbDriver
	cfg.SQLitePath = getEnv("SQLITE_PATH", "./monitor.db")

	cfg.RabbitMQURL = rabbitMQURL
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	return cfg
}
