package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ruhaverse/shareuptime-social-platform-sub000/configs"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/events"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/feed"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/kafka"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/ratelimit"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/shared/httpx"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/shared/logx"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/shared/redisx"
	"github.com/ruhaverse/shareuptime-social-platform-sub000/internal/trending"
)

func initOTEL(ctx context.Context, log zerolog.Logger) func(context.Context) error {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "otel-collector:4318"
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		log.Fatal().Err(err).Msg("otel exporter")
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("feed-engine"),
		attribute.String("deployment.environment", os.Getenv("ENV")),
	))
	ratio := 1.0
	if s := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); s != "" {
		if f, e := strconv.ParseFloat(s, 64); e == nil && f >= 0 && f <= 1 {
			ratio = f
		}
	}
	tp := trace.NewTracerProvider(
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown
}

func main() {
	cfg := configs.LoadConfig()
	log := logx.New("feed-engine")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTEL := initOTEL(ctx, log)
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTEL(c)
	}()

	// Collaborators must be reachable at boot; everything after boot is
	// retried at its next natural trigger instead of crashing.
	rdb, err := redisx.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("redis")
	}
	defer func(rdb *redis.Client) { _ = rdb.Close() }(rdb)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	store, err := feed.NewStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("feed store migration")
	}

	repo := feed.NewRepository(rdb)
	ranker := feed.NewRanker(feed.RankWeights{
		Like:         cfg.LikeWeight,
		Comment:      cfg.CommentWeight,
		Share:        cfg.ShareWeight,
		DecayCeiling: cfg.RecencyDecayHours,
	})
	social := feed.NewSocialClient(cfg.SocialServiceURL)
	gen := feed.NewGenerator(repo, ranker, social, cfg.PerAuthorPosts, cfg.FollowSetTTL, log)
	svc := feed.NewService(repo, store, gen, cfg.FeedTTL, cfg.MaxFeedSize, log)

	// Event consumers, one reader per topic.
	fan := events.NewFanout(svc, cfg.FanoutWorkers, log)
	consumer := events.NewConsumer(repo, ranker, fan, log)
	postsReader := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.PostsTopic, consumer.HandlePostEvent, log)
	interactionsReader := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.InteractionsTopic, consumer.HandleInteractionEvent, log)
	go func() {
		if err := postsReader.Run(ctx); err != nil {
			log.Error().Err(err).Msg("posts consumer stopped")
		}
	}()
	go func() {
		if err := interactionsReader.Run(ctx); err != nil {
			log.Error().Err(err).Msg("interactions consumer stopped")
		}
	}()

	job := trending.NewJob(repo, ranker, cfg.TrendingWindow, cfg.TrendingInterval, log)
	go job.Run(ctx)

	limiter := ratelimit.New(rdb)
	refreshLimit := func(next http.Handler) http.Handler {
		return limiter.LimitHTTP(cfg.RefreshLimit, cfg.RefreshWindow, func(r *http.Request) (string, error) {
			return httpx.UserFromCtx(r)
		}, next)
	}

	h := feed.NewHandler(svc)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("GET /health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	}))

	// Public:
	mux.Handle("GET /trending", httpx.Wrap(h.GetTrending))

	// Protected. The gateway mounts this service at the feed root, so its
	// public "GET /" reaches us as "GET /feed".
	mux.Handle("GET /feed", httpx.AuthMiddleware(httpx.Wrap(h.GetFeed)))
	mux.Handle("POST /feed/refresh", httpx.AuthMiddleware(refreshLimit(httpx.Wrap(h.Refresh))))

	srv := &http.Server{
		Addr:              cfg.AppPort,
		Handler:           otelhttp.NewHandler(httpx.RequestIDMiddleware(mux), "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.AppPort).Msg("feed engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
