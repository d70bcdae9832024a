package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Scheduler SchedulerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchedulerConfig carries the optimizer defaults and the proposal/job settings
// of the defense scheduling endpoints. Zero values keep the engine defaults.
type SchedulerConfig struct {
	PopulationSize           int
	Generations              int
	MutationRate             float64
	CrossoverRate            float64
	EliteCount               int
	TournamentSize           int
	DiversityThreshold       float64
	StagnationThreshold      int
	MaxRestarts              int
	MixPaired                float64
	MixGreedy                float64
	MixRandom                float64
	Selection                string
	Crossover                string
	CoveragePolicy           string
	CoverageWarningThreshold float64
	EnableLocalSearch        bool
	EnableGapFilling         bool
	EnableEarlyShift         bool
	Workers                  int
	MaxDuration              time.Duration

	ProposalTTL  time.Duration
	QueueWorkers int
	QueueRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Scheduler = loadScheduler(v)

	return cfg, nil
}

func loadScheduler(v *viper.Viper) SchedulerConfig {
	return SchedulerConfig{
		PopulationSize:           v.GetInt("SCHEDULER_POPULATION_SIZE"),
		Generations:              v.GetInt("SCHEDULER_GENERATIONS"),
		MutationRate:             v.GetFloat64("SCHEDULER_MUTATION_RATE"),
		CrossoverRate:            v.GetFloat64("SCHEDULER_CROSSOVER_RATE"),
		EliteCount:               v.GetInt("SCHEDULER_ELITE_COUNT"),
		TournamentSize:           v.GetInt("SCHEDULER_TOURNAMENT_SIZE"),
		DiversityThreshold:       v.GetFloat64("SCHEDULER_DIVERSITY_THRESHOLD"),
		StagnationThreshold:      v.GetInt("SCHEDULER_STAGNATION_THRESHOLD"),
		MaxRestarts:              v.GetInt("SCHEDULER_MAX_RESTARTS"),
		MixPaired:                v.GetFloat64("SCHEDULER_MIX_PAIRED"),
		MixGreedy:                v.GetFloat64("SCHEDULER_MIX_GREEDY"),
		MixRandom:                v.GetFloat64("SCHEDULER_MIX_RANDOM"),
		Selection:                v.GetString("SCHEDULER_SELECTION"),
		Crossover:                v.GetString("SCHEDULER_CROSSOVER"),
		CoveragePolicy:           v.GetString("SCHEDULER_COVERAGE_POLICY"),
		CoverageWarningThreshold: v.GetFloat64("SCHEDULER_COVERAGE_WARNING"),
		EnableLocalSearch:        v.GetBool("SCHEDULER_LOCAL_SEARCH"),
		EnableGapFilling:         v.GetBool("SCHEDULER_GAP_FILLING"),
		EnableEarlyShift:         v.GetBool("SCHEDULER_EARLY_SHIFT"),
		Workers:                  v.GetInt("SCHEDULER_WORKERS"),
		MaxDuration:              parseDuration(v.GetString("SCHEDULER_MAX_DURATION"), 0),
		ProposalTTL:              parseDuration(v.GetString("SCHEDULER_PROPOSAL_TTL"), 30*time.Minute),
		QueueWorkers:             v.GetInt("SCHEDULER_QUEUE_WORKERS"),
		QueueRetries:             v.GetInt("SCHEDULER_QUEUE_RETRIES"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "defense_scheduler")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHEDULER_POPULATION_SIZE", 60)
	v.SetDefault("SCHEDULER_GENERATIONS", 120)
	v.SetDefault("SCHEDULER_MUTATION_RATE", 0.2)
	v.SetDefault("SCHEDULER_CROSSOVER_RATE", 0.8)
	v.SetDefault("SCHEDULER_ELITE_COUNT", 4)
	v.SetDefault("SCHEDULER_TOURNAMENT_SIZE", 4)
	v.SetDefault("SCHEDULER_DIVERSITY_THRESHOLD", 0.15)
	v.SetDefault("SCHEDULER_STAGNATION_THRESHOLD", 8)
	v.SetDefault("SCHEDULER_MAX_RESTARTS", 2)
	v.SetDefault("SCHEDULER_MIX_PAIRED", 0.4)
	v.SetDefault("SCHEDULER_MIX_GREEDY", 0.3)
	v.SetDefault("SCHEDULER_MIX_RANDOM", 0.3)
	v.SetDefault("SCHEDULER_SELECTION", "tournament")
	v.SetDefault("SCHEDULER_CROSSOVER", "uniform")
	v.SetDefault("SCHEDULER_COVERAGE_POLICY", "coverage_first")
	v.SetDefault("SCHEDULER_COVERAGE_WARNING", 0.95)
	v.SetDefault("SCHEDULER_LOCAL_SEARCH", true)
	v.SetDefault("SCHEDULER_GAP_FILLING", true)
	v.SetDefault("SCHEDULER_EARLY_SHIFT", true)
	v.SetDefault("SCHEDULER_WORKERS", 0)
	v.SetDefault("SCHEDULER_MAX_DURATION", "2m")
	v.SetDefault("SCHEDULER_PROPOSAL_TTL", "30m")
	v.SetDefault("SCHEDULER_QUEUE_WORKERS", 1)
	v.SetDefault("SCHEDULER_QUEUE_RETRIES", 1)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
