package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig
	Storage      StorageConfig
	Recognition  RecognitionConfig
	Conversation ConversationConfig
	Session      SessionConfig
	Ai           AIConfig
	Voice        VoiceConfig
	Backup       BackupConfig
	Schedule     ScheduleConfig
	Tracing      TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	RealtimeLogPath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	PersonaPath        string
	ShutdownTimeout    time.Duration
}

type StorageConfig struct {
	DataDir          string
	FaceStorePath    string
	ConversationPath string
}

type RecognitionConfig struct {
	ModelURL       string // face descriptor service
	ModelTimeout   time.Duration
	BatchSize      int
	MatchThreshold float64
	MinRatio       float64
	DistanceScale  float64
	MaxSamples     int
	DetectionTTL   time.Duration
	DetectionSweep time.Duration
}

type ConversationConfig struct {
	MaxMessagesPerSession int
	MaxSessionsPerUser    int
	SaveEvery             int
	ContextMessages       int
}

type SessionConfig struct {
	IdentifyDelay time.Duration
	GreetCooldown time.Duration
}

type AIConfig struct {
	LLMProvider string // "ollama", "openai", "gemini", "anthropic"
	LLMModel    string
	LLMBaseURL  string
	LLMAPIKey   string
	Temperature float64
	MaxTokens   int
}

type VoiceConfig struct {
	ElevenLabsAPIKey string
	VoiceID          string
	AudioFormat      string
	CartesiaAPIKey   string
	Language         string
}

type BackupConfig struct {
	Endpoint  string // empty disables backups
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

type ScheduleConfig struct {
	CleanupSpec    string
	CleanupDaysOld int
	ForceSaveSpec  string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			RealtimeLogPath:    getEnv("REALTIME_LOG_FILE_PATH", "logs/realtime.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			PersonaPath:        getEnv("PERSONA_FILE", "config/persona.yaml"),
			ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			DataDir:          dataDir,
			FaceStorePath:    getEnv("FACE_STORE_PATH", filepath.Join(dataDir, "face_descriptors.json")),
			ConversationPath: getEnv("CONVERSATION_STORE_PATH", filepath.Join(dataDir, "conversations.json")),
		},
		Recognition: RecognitionConfig{
			ModelURL:       getEnv("FACE_MODEL_URL", "http://localhost:8001"),
			ModelTimeout:   getEnvAsDuration("FACE_MODEL_TIMEOUT", 10*time.Second),
			BatchSize:      getEnvAsInt("RECOGNITION_BATCH_SIZE", 5),
			MatchThreshold: getEnvAsFloat("RECOGNITION_MATCH_THRESHOLD", 0.4),
			MinRatio:       getEnvAsFloat("RECOGNITION_MIN_RATIO", 0.6),
			DistanceScale:  getEnvAsFloat("RECOGNITION_DISTANCE_SCALE", 1.0),
			MaxSamples:     getEnvAsInt("RECOGNITION_MAX_SAMPLES", 5),
			DetectionTTL:   getEnvAsDuration("DETECTION_SESSION_TTL", 30*time.Minute),
			DetectionSweep: getEnvAsDuration("DETECTION_SESSION_SWEEP", 5*time.Minute),
		},
		Conversation: ConversationConfig{
			MaxMessagesPerSession: getEnvAsInt("CONVERSATION_MAX_MESSAGES", 100),
			MaxSessionsPerUser:    getEnvAsInt("CONVERSATION_MAX_SESSIONS", 10),
			SaveEvery:             getEnvAsInt("CONVERSATION_SAVE_EVERY", 5),
			ContextMessages:       getEnvAsInt("CONVERSATION_CONTEXT_MESSAGES", 10),
		},
		Session: SessionConfig{
			IdentifyDelay: getEnvAsDuration("IDENTIFY_DELAY", 2*time.Second),
			GreetCooldown: getEnvAsDuration("GREET_COOLDOWN", 10*time.Minute),
		},
		Ai: AIConfig{
			LLMProvider: getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:    getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:  getEnv("LLM_BASE_URL", "http://localhost:11434"),
			LLMAPIKey:   getEnv("LLM_API_KEY", ""),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 200),
		},
		Voice: VoiceConfig{
			ElevenLabsAPIKey: getEnv("ELEVENLABS_API_KEY", ""),
			VoiceID:          getEnv("ELEVENLABS_VOICE_ID", ""),
			AudioFormat:      getEnv("TTS_FORMAT", "mp3"),
			CartesiaAPIKey:   getEnv("CARTESIA_API_KEY", ""),
			Language:         getEnv("STT_LANGUAGE", "en"),
		},
		Backup: BackupConfig{
			Endpoint:  getEnv("BACKUP_ENDPOINT", ""),
			AccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_SECRET_KEY", ""),
			Bucket:    getEnv("BACKUP_BUCKET", "companion-snapshots"),
			Prefix:    getEnv("BACKUP_PREFIX", "snapshots"),
			UseSSL:    getEnvAsBool("BACKUP_USE_SSL", false),
		},
		Schedule: ScheduleConfig{
			CleanupSpec:    getEnv("CLEANUP_SCHEDULE", "0 3 * * *"),
			CleanupDaysOld: getEnvAsInt("CLEANUP_DAYS_OLD", 30),
			ForceSaveSpec:  getEnv("FORCE_SAVE_SCHEDULE", "@every 5m"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			Insecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "companion-be"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1.0),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("2s", "10m") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
