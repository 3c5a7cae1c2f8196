package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	RedisHost string
	RedisPort string
	RedisPass string

	DBHost string
	DBPort string
	DBUser string
	DBPass string
	DBName string

	KafkaBrokers      string
	PostsTopic        string
	InteractionsTopic string
	KafkaGroupID      string

	// Base URL of the social-graph service, used to fill an uncached
	// follow set on demand. Empty disables the on-demand fetch.
	SocialServiceURL string

	FeedTTL        time.Duration
	MaxFeedSize    int
	PerAuthorPosts int
	FollowSetTTL   time.Duration

	TrendingWindow   time.Duration
	TrendingInterval time.Duration

	FanoutWorkers int

	RefreshLimit  int64
	RefreshWindow time.Duration

	// Ranking policy. The formula shape is fixed; only the weights and
	// the decay ceiling are tunable.
	LikeWeight        float64
	CommentWeight     float64
	ShareWeight       float64
	RecencyDecayHours float64
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		AppPort: getEnv("FEED_APP_PORT", ":8085"),

		RedisHost: getEnv("REDIS_HOST", "localhost"),
		RedisPort: getEnv("REDIS_PORT", "6379"),
		RedisPass: getEnv("REDIS_PASS", ""),

		DBHost: getEnv("FEED_DB_HOST", "localhost"),
		DBPort: getEnv("FEED_DB_PORT", "5432"),
		DBUser: getEnv("FEED_DB_USER", "postgres"),
		DBPass: getEnv("FEED_DB_PASS", "postgres"),
		DBName: getEnv("FEED_DB_NAME", "feed_db"),

		KafkaBrokers:      getEnv("KAFKA_BOOTSTRAP_SERVERS", "kafka:9092"),
		PostsTopic:        getEnv("POSTS_TOPIC", "posts.lifecycle"),
		InteractionsTopic: getEnv("INTERACTIONS_TOPIC", "posts.interactions"),
		KafkaGroupID:      getEnv("KAFKA_GROUP_ID", "feed-service"),

		SocialServiceURL: getEnv("SOCIAL_SERVICE_URL", ""),

		FeedTTL:        getEnvDuration("FEED_CACHE_TTL", time.Hour),
		MaxFeedSize:    getEnvInt("FEED_MAX_SIZE", 50),
		PerAuthorPosts: getEnvInt("FEED_POSTS_PER_AUTHOR", 20),
		FollowSetTTL:   getEnvDuration("FOLLOW_SET_TTL", time.Hour),

		TrendingWindow:   getEnvDuration("TRENDING_WINDOW", 24*time.Hour),
		TrendingInterval: getEnvDuration("TRENDING_INTERVAL", 15*time.Minute),

		FanoutWorkers: getEnvInt("FANOUT_WORKERS", 8),

		RefreshLimit:  int64(getEnvInt("REFRESH_RATE_LIMIT", 1)),
		RefreshWindow: getEnvDuration("REFRESH_RATE_WINDOW", time.Minute),

		LikeWeight:        getEnvFloat("FEED_SCORE_WEIGHT_LIKES", 3),
		CommentWeight:     getEnvFloat("FEED_SCORE_WEIGHT_COMMENTS", 5),
		ShareWeight:       getEnvFloat("FEED_SCORE_WEIGHT_SHARES", 10),
		RecencyDecayHours: getEnvFloat("FEED_RECENCY_DECAY_HOURS", 100),
	}
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName,
	)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
