package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tams-hls-gateway/internal/manifest"
	"tams-hls-gateway/internal/platform/config"
	"tams-hls-gateway/internal/platform/logger"
	"tams-hls-gateway/internal/platform/metrics"
	"tams-hls-gateway/internal/tams"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	endpoint := config.GetEnv("TAMS_ENDPOINT", "")
	pathPrefix := config.GetEnv("PATH_PREFIX", "")
	defaultSegments := config.GetEnvFloat("DEFAULT_HLS_SEGMENTS", manifest.DefaultSegmentCount)
	upstreamTimeout := config.GetEnvDuration("UPSTREAM_TIMEOUT", tams.DefaultTimeout)
	reloadInterval := config.GetEnvDuration("CODEC_RELOAD_INTERVAL", 5*time.Minute)

	log := logger.New(logLevel, logFormat)

	if endpoint == "" {
		log.Error("TAMS_ENDPOINT must be set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := tokenSource(log)
	client := tams.NewClient(endpoint, tokens, upstreamTimeout)

	table := codecTable(ctx, log)
	if err := table.Refresh(ctx); err != nil {
		log.Warn("initial codec table load failed, using empty table",
			"error", err.Error())
	}
	go table.Run(ctx, reloadInterval, log)

	svc := manifest.NewService(client, table, defaultSegments, pathPrefix)
	met := metrics.New()
	h := manifest.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetCodecMappings(table.Len()) }).ServeHTTP(w, r)
	})
	r.Get("/sources/{sourceId}/output.m3u8", h.GetSourceManifest)
	r.Get("/flows/{flowId}/output.m3u8", h.GetFlowManifest)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"tams_endpoint", endpoint,
		"default_hls_segments", defaultSegments,
		"log_level", logLevel,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// tokenSource builds the bearer-token source for the upstream store: a
// static token when TAMS_TOKEN is set, otherwise OAuth2 client credentials.
func tokenSource(log *slog.Logger) tams.TokenSource {
	if token := config.GetEnv("TAMS_TOKEN", ""); token != "" {
		return tams.StaticToken(token)
	}

	tokenURL := config.GetEnv("TOKEN_URL", "")
	clientID := config.GetEnv("CLIENT_ID", "")
	clientSecret := config.GetEnv("CLIENT_SECRET", "")
	if tokenURL == "" || clientID == "" || clientSecret == "" {
		log.Error("either TAMS_TOKEN or TOKEN_URL, CLIENT_ID and CLIENT_SECRET must be set")
		os.Exit(1)
	}

	return &tams.ClientCredentials{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       strings.Fields(config.GetEnv("TOKEN_SCOPES", "tams-api/read")),
	}
}

// codecTable builds the codec mapping table from its configured backing
// store: an S3 object when CODEC_TABLE_BUCKET is set, else a local JSON
// file, else an empty static table (pass-through mapping only).
func codecTable(ctx context.Context, log *slog.Logger) *manifest.CodecTable {
	if bucket := config.GetEnv("CODEC_TABLE_BUCKET", ""); bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(config.GetEnv("AWS_REGION", "us-east-1")))
		if err != nil {
			log.Error("load AWS config", "error", err.Error())
			os.Exit(1)
		}
		return manifest.NewCodecTable(manifest.S3Loader{
			Client: s3.NewFromConfig(awsCfg),
			Bucket: bucket,
			Key:    config.GetEnv("CODEC_TABLE_KEY", "codecs.json"),
		})
	}
	if path := config.GetEnv("CODEC_TABLE_PATH", ""); path != "" {
		return manifest.NewCodecTable(manifest.FileLoader{Path: path})
	}
	return manifest.NewStaticCodecTable(nil)
}
