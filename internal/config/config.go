package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Improve  ImproveConfig  `mapstructure:"improve"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
}

type BrowserConfig struct {
	ExecutablePath       string        `mapstructure:"executablePath"`
	Headless             bool          `mapstructure:"headless"`
	UserDataDir          string        `mapstructure:"userDataDir"`
	ActionTimeout        time.Duration `mapstructure:"actionTimeout"`
	LaunchTimeout        time.Duration `mapstructure:"launchTimeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdownTimeout"`
	MaxSessions          int           `mapstructure:"maxSessions"`
	DismissCookieBanners bool          `mapstructure:"dismissCookieBanners"`
	WindowWidth          int           `mapstructure:"windowWidth"`
	WindowHeight         int           `mapstructure:"windowHeight"`
}

// ImproveConfig holds the defaults for improvement runs. CLI flags override
// the apply/assertion fields per run.
type ImproveConfig struct {
	ApplyMode                   string        `mapstructure:"applyMode"` // review, apply
	ApplyAssertions             *bool         `mapstructure:"applyAssertions"`
	Assertions                  string        `mapstructure:"assertions"`           // none, candidates
	AssertionSource             string        `mapstructure:"assertionSource"`      // deterministic, snapshot-cli, snapshot-native
	AssertionApplyPolicy        string        `mapstructure:"assertionApplyPolicy"` // reliable, aggressive
	Provider                    string        `mapstructure:"provider"`             // auto, playwright, playwright-cli
	StepTimeout                 time.Duration `mapstructure:"stepTimeout"`
	CandidateBudget             time.Duration `mapstructure:"candidateBudget"`
	AdoptMargin                 float64       `mapstructure:"adoptMargin"`
	OptionalStepTimeout         time.Duration `mapstructure:"optionalStepTimeout"`
	WaitForNetworkIdle          bool          `mapstructure:"waitForNetworkIdle"`
	NetworkIdleTimeout          time.Duration `mapstructure:"networkIdleTimeout"`
	MaxAppliedAssertionsPerStep int           `mapstructure:"maxAppliedAssertionsPerStep"`
	ReliableMinConfidence       float64       `mapstructure:"reliableMinConfidence"`
	AggressiveMinConfidence     float64       `mapstructure:"aggressiveMinConfidence"`
	CLICommandTimeout           time.Duration `mapstructure:"cliCommandTimeout"`
	TraceDir                    string        `mapstructure:"traceDir"`
}

// LLMConfig configures the optional external ranking service (Ollama chat API).
type LLMConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BaseURL         string        `mapstructure:"baseUrl"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"maxOutputTokens"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	ApiKey         string   `mapstructure:"apiKey"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "15s")
	v.SetDefault("server.idleTimeout", "60s")

	v.SetDefault("browser.executablePath", "") // auto-detect if empty
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.userDataDir", "") // empty means temporary profile
	v.SetDefault("browser.actionTimeout", "10s")
	v.SetDefault("browser.launchTimeout", "30s")
	v.SetDefault("browser.shutdownTimeout", "10s")
	v.SetDefault("browser.maxSessions", 2)
	v.SetDefault("browser.dismissCookieBanners", false)
	v.SetDefault("browser.windowWidth", 1280)
	v.SetDefault("browser.windowHeight", 900)

	v.SetDefault("improve.applyMode", "review")
	v.SetDefault("improve.assertions", "candidates")
	v.SetDefault("improve.assertionSource", "snapshot-native")
	v.SetDefault("improve.assertionApplyPolicy", "reliable")
	v.SetDefault("improve.provider", "auto")
	v.SetDefault("improve.stepTimeout", "10s")
	v.SetDefault("improve.candidateBudget", "3s")
	v.SetDefault("improve.adoptMargin", 0.05)
	v.SetDefault("improve.optionalStepTimeout", "2s")
	v.SetDefault("improve.waitForNetworkIdle", true)
	v.SetDefault("improve.networkIdleTimeout", "2s")
	v.SetDefault("improve.maxAppliedAssertionsPerStep", 3)
	v.SetDefault("improve.reliableMinConfidence", 0.80)
	v.SetDefault("improve.aggressiveMinConfidence", 0.70)
	v.SetDefault("improve.cliCommandTimeout", "20s")
	v.SetDefault("improve.traceDir", "")

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.baseUrl", "http://127.0.0.1:11434")
	v.SetDefault("llm.model", "gemma3:4b")
	v.SetDefault("llm.timeout", "12s")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.maxOutputTokens", 300)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("security.allowedOrigins", []string{"*"})
	v.SetDefault("security.apiKey", "")
}

// Default returns the configuration with every documented default applied
// and no file or environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("config: invalid defaults: " + err.Error())
	}
	return &cfg
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("uitest")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.uitest")
		v.AddConfigPath("/etc/uitest")
	}

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("UITEST")

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
