package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"airmonitor/internal/domain/usecase"
	"airmonitor/internal/repository/light"
	"airmonitor/internal/repository/rabbitmq"
	"airmonitor/internal/sensor"
	"airmonitor/pkg/client/sds011"
	"airmonitor/pkg/utils"
	"airmonitor/pkg/wallclock"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	SensorPort   string
	SensorWarmup time.Duration
	Every        time.Duration
	NotifyEvery  time.Duration

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

	if err := sensor.Warmup(ctx, device, wallclock.Real, cfg.SensorWarmup); err != nil {
		log.Fatalf("failed to start sensor: %v", err)
	}

	uc := usecase.NewIndicatorUseCase(
		sensor.NewReader(device, sensor.WithLogger(logger)),
		light.NewLogLight(logger),
		nil,
		cfg.NotifyEvery,
		logger,
	)
	uc.Every = cfg.Every

	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()

		notifier, err := rabbitmq.NewRabbitPublisher(conn, rabbitmq.MonitorExchange, rabbitmq.NotificationKey)
		if err != nil {
			log.Fatalf("failed to init publisher: %v", err)
		}
		uc.Notifier = notifier
	}

	logger.Info("indicator started", slog.Duration("every", cfg.Every))
	if err := uc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("indicator stopped: %v", err)
	}
	logger.Info("indicator stopped")
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

	// RABBITMQ
	rabbitMQURL := ""
	if rmqHost := os.Getenv("RABBITMQ_HOST"); rmqHost != "" {
		rmqUser := mustGetEnv("RABBITMQ_USER")
		rmqPassword := mustGetEnv("RABBITMQ_PASSWORD")
		rmqPort := getEnv("RABBITMQ_PORT", "5672")
		rabbitMQURL = "amqp://" + rmqUser + ":" + rmqPassword + "@" + rmqHost + ":" + rmqPort + "/"
	}

	return Config{
		SensorPort:   getEnv("SENSOR_PORT", "/dev/ttyUSB0"),
		SensorWarmup: getDuration("SENSOR_WARMUP", sensor.DefaultWarmup.String()),
		Every:        getDuration("INDICATOR_EVERY", "10s"),
		NotifyEvery:  getDuration("NOTIFY_EVERY", usecase.DefaultNotifyEvery.String()),

		RabbitMQURL: rabbitMQURL,

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}
