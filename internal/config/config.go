package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type StoreDriver string

const (
	DriverFile   StoreDriver = "file"
	DriverSQLite StoreDriver = "sqlite"
	DriverRedis  StoreDriver = "redis"
)

type TranscriberKind string

const (
	TranscriberBackend TranscriberKind = "backend"
	TranscriberWhisper TranscriberKind = "whisper"
)

type Config struct {
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://127.0.0.1:5000"`
	APIToken   string `env:"API_TOKEN"`
	BotID      string `env:"BOT_ID,required"`
	Username   string `env:"USERNAME"`

	// Session pacing
	StreamIntervalMs   int `env:"STREAM_INTERVAL_MS" envDefault:"30"`
	SessionUnitMinutes int `env:"SESSION_UNIT_MINUTES" envDefault:"15"`

	// Durable store for title markers, title cache and the pending queue
	StoreDriver StoreDriver `env:"STORE_DRIVER" envDefault:"file"`
	StorePath   string      `env:"STORE_PATH" envDefault:"data/titles.json"`
	SQLitePath  string      `env:"SQLITE_PATH" envDefault:"data/timechat.db"`
	RedisAddr   string      `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisDB     int         `env:"REDIS_DB" envDefault:"0"`

	// Transcription
	Transcriber    TranscriberKind `env:"TRANSCRIBER" envDefault:"backend"`
	OpenAIAPIKey   string          `env:"OPENAI_API_KEY"`
	OpenAIBaseURL  string          `env:"OPENAI_BASE_URL"`
	WhisperModel   string          `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	AudioInputPath string          `env:"AUDIO_INPUT_PATH" envDefault:"data/recording.wav"`

	// Title generation
	TitleScanSpec string `env:"TITLE_SCAN_SPEC" envDefault:"@every 2m"`
	TitleMaxRunes int    `env:"TITLE_MAX_RUNES" envDefault:"48"`
	DefaultTitle  string `env:"DEFAULT_TITLE" envDefault:"New conversation"`

	// Storage
	TranscriptLogPath string `env:"TRANSCRIPT_LOG_PATH" envDefault:"logs/exchanges.jsonl"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// StreamInterval returns the reveal pacing as a duration.
func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.StreamIntervalMs) * time.Millisecond
}
