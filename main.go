package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds application configuration
type Config struct {
	PDFBucket     string
	EventBusName  string
	S3Region      string
	S3Endpoint    string // For testing with MinIO
	ScratchDir    string
	Port          string
	WebhookSecret string // For signature verification
}

func main() {
	cfg := loadConfig()

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.S3Region),
	)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	s3Client := initS3Client(awsCfg, cfg)
	ebClient := eventbridge.NewFromConfig(awsCfg)

	worker := &Worker{
		config:   cfg,
		store:    &s3Store{client: s3Client},
		renderer: fitzRenderer{},
		events:   &eventBridgePublisher{client: ebClient, busName: cfg.EventBusName},
		metrics:  newMetrics(prometheus.DefaultRegisterer),
	}

	mux := NewMux(worker)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      15 * time.Minute, // jobs are processed inline
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("PDF render worker starting on port %s", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func loadConfig() *Config {
	cfg := &Config{
		PDFBucket:     os.Getenv("S3_BUCKET_PDFS"),
		EventBusName:  os.Getenv("EVENT_BUS_NAME"),
		S3Region:      getEnvOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"), // Optional, for MinIO testing
		ScratchDir:    getEnvOrDefault("SCRATCH_DIR", os.TempDir()),
		Port:          getEnvOrDefault("PORT", "8080"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	}

	// The bucket is checked per invocation so a misconfigured worker still
	// serves health checks; jobs fail with MissingConfiguration until set.
	if cfg.PDFBucket == "" {
		log.Println("Warning: S3_BUCKET_PDFS is not set, jobs will be rejected")
	}
	if cfg.EventBusName == "" {
		log.Println("Warning: EVENT_BUS_NAME is not set, completion events will be skipped")
	}

	return cfg
}

func initS3Client(awsCfg aws.Config, cfg *Config) *s3.Client {
	opts := []func(*s3.Options){}
	if cfg.S3Endpoint != "" {
		// For MinIO/testing
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = &cfg.S3Endpoint
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, opts...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
