// Package config resolves process configuration from defaults, an optional
// YAML file, a .env file and PIISCAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key to form its environment variable
// (listen_addr -> PIISCAN_LISTEN_ADDR).
const EnvPrefix = "PIISCAN"

// Viper keys. Each is also a YAML field in the config file.
const (
	KeyListenAddr        = "listen_addr"
	KeyStoreURL          = "store_url"
	KeyPatternFile       = "pattern_file"
	KeyNERURL            = "ner_url"
	KeyLLMURL            = "llm_url"
	KeyLLMModel          = "llm_model"
	KeyLLMAPIKey         = "llm_api_key"
	KeyClassifierTimeout = "classifier_timeout"
	KeyResponder         = "responder"
	KeyResponderURL      = "responder_url"
	KeyResponderModel    = "responder_model"
	KeyResponderAPIKey   = "responder_api_key"
	KeySigningKey        = "signing_key"
	KeyStoreRawInput     = "store_raw_input"
	KeyRateLimitRPM      = "rate_limit_rpm"
	KeyMaxInputChars     = "max_input_chars"
	KeyOTelEnabled       = "otel_enabled"
)

const (
	ResponderCanned = "canned"
	ResponderOpenAI = "openai"
)

const (
	DefaultListenAddr        = ":8080"
	DefaultLLMModel          = "qwen2.5:0.5b"
	DefaultResponderModel    = "gpt-4o-mini"
	DefaultRateLimitRPM      = 600
	DefaultMaxInputChars     = 10000
	DefaultClassifierTimeout = 30 * time.Second
)

// Cfg holds all runtime configuration.
type Cfg struct {
	// Server
	ListenAddr string // PIISCAN_LISTEN_ADDR, or ":"+PORT when only PORT is set

	// Persistence: "" (memory), bolt://path, postgres://...
	StoreURL      string
	StoreRawInput bool // keep the unredacted input in run logs

	// Detection
	PatternFile       string        // optional YAML overriding pattern specs
	NERURL            string        // NER sidecar, e.g. http://sanitize-ner:8001; empty disables
	LLMURL            string        // OpenAI-compatible server for person extraction; empty disables
	LLMModel          string        // e.g. qwen2.5:0.5b
	LLMAPIKey         string        // may be empty for local servers
	ClassifierTimeout time.Duration // budget for all person extractors per call

	// Downstream reply
	Responder       string // canned | openai
	ResponderURL    string // empty uses api.openai.com
	ResponderModel  string
	ResponderAPIKey string

	// Receipts: hex secp256k1 key; empty generates an ephemeral one.
	SigningKey string

	// API limits
	RateLimitRPM  int // requests per minute per client IP; 0 disables
	MaxInputChars int

	OTelEnabled bool
}

// New returns a viper instance with defaults and environment binding set up.
// configFile may be empty.
func New(configFile string) (*viper.Viper, error) {
	// Best-effort: load .env from current directory
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyListenAddr, "")
	v.SetDefault(KeyStoreURL, "")
	v.SetDefault(KeyPatternFile, "")
	v.SetDefault(KeyNERURL, "")
	v.SetDefault(KeyLLMURL, "")
	v.SetDefault(KeyLLMModel, DefaultLLMModel)
	v.SetDefault(KeyLLMAPIKey, "")
	v.SetDefault(KeyClassifierTimeout, DefaultClassifierTimeout)
	v.SetDefault(KeyResponder, ResponderCanned)
	v.SetDefault(KeyResponderURL, "")
	v.SetDefault(KeyResponderModel, DefaultResponderModel)
	v.SetDefault(KeyResponderAPIKey, "")
	v.SetDefault(KeySigningKey, "")
	v.SetDefault(KeyStoreRawInput, true)
	v.SetDefault(KeyRateLimitRPM, DefaultRateLimitRPM)
	v.SetDefault(KeyMaxInputChars, DefaultMaxInputChars)
	v.SetDefault(KeyOTelEnabled, false)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load reads .env (if present), configFile (if set) and environment
// variables and returns a validated Cfg.
func Load(configFile string) (*Cfg, error) {
	v, err := New(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper resolves a Cfg from an already populated viper instance.
func FromViper(v *viper.Viper) (*Cfg, error) {
	cfg := &Cfg{
		ListenAddr:        strings.TrimSpace(v.GetString(KeyListenAddr)),
		StoreURL:          strings.TrimSpace(v.GetString(KeyStoreURL)),
		StoreRawInput:     v.GetBool(KeyStoreRawInput),
		PatternFile:       strings.TrimSpace(v.GetString(KeyPatternFile)),
		NERURL:            strings.TrimRight(strings.TrimSpace(v.GetString(KeyNERURL)), "/"),
		LLMURL:            strings.TrimRight(strings.TrimSpace(v.GetString(KeyLLMURL)), "/"),
		LLMModel:          strings.TrimSpace(v.GetString(KeyLLMModel)),
		LLMAPIKey:         v.GetString(KeyLLMAPIKey),
		ClassifierTimeout: v.GetDuration(KeyClassifierTimeout),
		Responder:         strings.ToLower(strings.TrimSpace(v.GetString(KeyResponder))),
		ResponderURL:      strings.TrimRight(strings.TrimSpace(v.GetString(KeyResponderURL)), "/"),
		ResponderModel:    strings.TrimSpace(v.GetString(KeyResponderModel)),
		ResponderAPIKey:   v.GetString(KeyResponderAPIKey),
		SigningKey:        strings.TrimSpace(v.GetString(KeySigningKey)),
		RateLimitRPM:      v.GetInt(KeyRateLimitRPM),
		MaxInputChars:     v.GetInt(KeyMaxInputChars),
		OTelEnabled:       v.GetBool(KeyOTelEnabled),
	}

	if cfg.ListenAddr == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			cfg.ListenAddr = ":" + port
		} else {
			cfg.ListenAddr = DefaultListenAddr
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// UsingEphemeralKey reports whether receipts will be signed with a key that
// does not survive a restart.
func (c *Cfg) UsingEphemeralKey() bool { return c.SigningKey == "" }

func (c *Cfg) validate() error {
	var errs []error
	switch c.Responder {
	case ResponderCanned:
	case ResponderOpenAI:
		if c.ResponderModel == "" {
			errs = append(errs, errors.New("responder_model is required for the openai responder"))
		}
		if c.ResponderURL == "" && c.ResponderAPIKey == "" {
			errs = append(errs, errors.New("openai responder needs responder_url or responder_api_key"))
		}
	default:
		errs = append(errs, fmt.Errorf("responder must be %q or %q, got %q", ResponderCanned, ResponderOpenAI, c.Responder))
	}
	if c.LLMURL != "" && c.LLMModel == "" {
		errs = append(errs, errors.New("llm_model is required when llm_url is set"))
	}
	if c.RateLimitRPM < 0 {
		errs = append(errs, fmt.Errorf("rate_limit_rpm must not be negative, got %d", c.RateLimitRPM))
	}
	if c.MaxInputChars <= 0 {
		errs = append(errs, fmt.Errorf("max_input_chars must be positive, got %d", c.MaxInputChars))
	}
	if c.ClassifierTimeout <= 0 {
		errs = append(errs, fmt.Errorf("classifier_timeout must be positive, got %s", c.ClassifierTimeout))
	}
	return errors.Join(errs...)
}
