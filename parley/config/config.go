package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"

	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"
)

type Config struct {
	Port      string `yaml:"port"`
	ClientURL string `yaml:"client_url"`

	StoreDriver string `yaml:"store_driver"`
	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`
	DBUser      string `yaml:"db_user"`
	DBPassword  string `yaml:"db_password"`
	DBHost      string `yaml:"db_host"`
	DBPort      string `yaml:"db_port"`
	DBName      string `yaml:"db_name"`

	LLMProvider      string `yaml:"llm_provider"`
	LLMAPIKey        string `yaml:"llm_api_key"`
	LLMBaseURL       string `yaml:"llm_base_url"`
	LLMModel         string `yaml:"llm_model"`
	TitleModel       string `yaml:"title_model"`
	ChatHistoryTurns int    `yaml:"chat_history_turns"`
	PromptsFile      string `yaml:"prompts_file"`

	JWTSecret string `yaml:"jwt_secret"`

	MinIOEndpoint  string `yaml:"minio_endpoint"`
	MinIOAccessKey string `yaml:"minio_access_key"`
	MinIOSecretKey string `yaml:"minio_secret_key"`
	MinIOBucket    string `yaml:"minio_bucket"`

	LogDir           string `yaml:"log_dir"`
	TelemetryEnabled bool   `yaml:"telemetry_enabled"`
}

var defaults = Config{
	Port:        "4000",
	ClientURL:   "localhost:5173",
	StoreDriver: StoreMongo,
	MongoURI:    "mongodb://localhost:27017",
	MongoDB:     "chatbot",
	DBHost:      "localhost",
	DBPort:      "5432",
	DBName:      "parley",
	LLMProvider: ProviderGemini,
	LLMModel:    "gemini-flash-latest",
	MinIOBucket: "parley-transcripts",
	LogDir:      "./logs",
}

// LoadConfig resolves configuration from, in increasing priority: built-in
// defaults, the YAML file named by PARLEY_CONFIG, a .env file, and the process
// environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults
	if path := os.Getenv("PARLEY_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ClientURL = getEnv("CLIENT_URL", cfg.ClientURL)
	cfg.StoreDriver = getEnv("STORE_DRIVER", cfg.StoreDriver)
	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDB = getEnv("MONGO_DB", cfg.MongoDB)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getEnv("DB_PORT", cfg.DBPort)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.LLMProvider = getEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.LLMAPIKey = getEnv("LLM_API_KEY", getEnv("GEMINI_API_KEY", cfg.LLMAPIKey))
	cfg.LLMBaseURL = getEnv("LLM_BASE_URL", cfg.LLMBaseURL)
	cfg.LLMModel = getEnv("LLM_MODEL", cfg.LLMModel)
	cfg.TitleModel = getEnv("TITLE_MODEL", cfg.TitleModel)
	cfg.PromptsFile = getEnv("PROMPTS_FILE", cfg.PromptsFile)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.MinIOEndpoint = getEnv("MINIO_ENDPOINT", cfg.MinIOEndpoint)
	cfg.MinIOAccessKey = getEnv("MINIO_ACCESS_KEY", cfg.MinIOAccessKey)
	cfg.MinIOSecretKey = getEnv("MINIO_SECRET_KEY", cfg.MinIOSecretKey)
	cfg.MinIOBucket = getEnv("MINIO_BUCKET", cfg.MinIOBucket)
	cfg.LogDir = getEnv("LOG_DIR", cfg.LogDir)

	var err error
	if cfg.ChatHistoryTurns, err = getEnvInt("CHAT_HISTORY_TURNS", cfg.ChatHistoryTurns); err != nil {
		return Config{}, err
	}
	if cfg.TelemetryEnabled, err = getEnvBool("TELEMETRY_ENABLED", cfg.TelemetryEnabled); err != nil {
		return Config{}, err
	}
	if cfg.TitleModel == "" {
		cfg.TitleModel = cfg.LLMModel
	}

	switch cfg.StoreDriver {
	case StoreMongo, StorePostgres:
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

// PostgresDSN builds the connection string for the gorm postgres driver.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// ArchiveEnabled reports whether transcripts should be archived to MinIO.
func (c Config) ArchiveEnabled() bool {
	return c.MinIOEndpoint != ""
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
