package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Scorer strategies.
const (
	StrategyHeuristic = "heuristic"
	StrategyModel     = "model"
	StrategyEnsemble  = "ensemble"
)

// Calibration modes.
const (
	CalibrationIdentity = "identity"
	CalibrationLogistic = "logistic"
)

type Config struct {
	Analysis Analysis `yaml:"analysis"`
	Signals  Signals  `yaml:"signals"`
	Scorer   Scorer   `yaml:"scorer"`
	LLM      LLM      `yaml:"llm"`
	Sources  Sources  `yaml:"sources"`
	Fetch    Fetch    `yaml:"fetch"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

type Analysis struct {
	Threshold   float64 `yaml:"threshold"`
	LabelCut    float64 `yaml:"label_cut"`
	Calibration string  `yaml:"calibration"`
	Steepness   float64 `yaml:"steepness"`
	Parallelism int     `yaml:"parallelism"`
}

// Signals overrides the built-in lexicons. Empty lists keep the defaults.
type Signals struct {
	Version            string   `yaml:"version"`
	EmotionalTerms     []string `yaml:"emotional_terms"`
	SensationalPhrases []string `yaml:"sensational_phrases"`
	SyntheticMarkers   []string `yaml:"synthetic_markers"`
	PositiveTerms      []string `yaml:"positive_terms"`
	NegativeTerms      []string `yaml:"negative_terms"`
}

type Scorer struct {
	Strategy    string        `yaml:"strategy"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	MaxInFlight int           `yaml:"max_in_flight"`
	ModelWeight float64       `yaml:"model_weight"`
}

type LLM struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	OllamaURL       string `yaml:"ollama_url"`
	OpenAIModel     string `yaml:"openai_model"`
	GeminiModel     string `yaml:"gemini_model"`
	APIKeyEnv       string `yaml:"api_key_env"`
	GeminiAPIKeyEnv string `yaml:"gemini_api_key_env"`
	MaxTokens       int    `yaml:"max_tokens"`
}

type Sources struct {
	Feeds []Feed     `yaml:"feeds"`
	APIs  APIsConfig `yaml:"apis"`
	// Watchlist maps source domains to a bias note. Entries are added to
	// the built-in list.
	Watchlist map[string]string `yaml:"watchlist"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type APIsConfig struct {
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
}

type NewsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	Query     string `yaml:"query"`
}

type Fetch struct {
	Timeout     time.Duration `yaml:"timeout"`
	FullContent bool          `yaml:"full_content"`
	DaysBack    int           `yaml:"days_back"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for milcheck.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "milcheck")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/milcheck/config.yaml > ./config.yaml.
// An empty path with a nil error means no file was found and the built-in
// defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, _ := parse(nil)
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Analysis: Analysis{
			Threshold:   0.5,
			LabelCut:    0.5,
			Calibration: CalibrationIdentity,
			Steepness:   8,
			Parallelism: 4,
		},
		Scorer: Scorer{
			Strategy:    StrategyHeuristic,
			Timeout:     20 * time.Second,
			MaxAttempts: 2,
			MaxInFlight: 4,
			ModelWeight: 0.5,
		},
		LLM: LLM{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			GeminiModel:     "gemini-1.5-flash",
			APIKeyEnv:       "OPENAI_API_KEY",
			GeminiAPIKeyEnv: "GEMINI_API",
			MaxTokens:       256,
		},
		Sources: Sources{
			Watchlist: map[string]string{
				"daily-mail.com":  "Right-leaning, potential for sensationalism",
				"breitbart.com":   "Far-right, known for strong political bias",
				"theguardian.com": "Left-leaning, generally reliable but with a clear perspective",
			},
			APIs: APIsConfig{
				NewsAPI: NewsAPIConfig{
					APIKeyEnv: "NEWSAPI_KEY",
				},
			},
		},
		Fetch:   Fetch{Timeout: 15 * time.Second, DaysBack: 1},
		Server:  Server{Host: "127.0.0.1", Port: 8000},
		Logging: Logging{Level: "info", Format: "json"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides selected settings from environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("MILCHECK_THRESHOLD"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing MILCHECK_THRESHOLD: %w", err)
		}
		c.Analysis.Threshold = t
	}
	if v := os.Getenv("MILCHECK_SCORER"); v != "" {
		c.Scorer.Strategy = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var problems []string
	if math.IsNaN(c.Analysis.Threshold) || c.Analysis.Threshold <= 0 || c.Analysis.Threshold >= 1 {
		problems = append(problems, fmt.Sprintf("analysis.threshold must be in (0,1), got %v", c.Analysis.Threshold))
	}
	if math.IsNaN(c.Analysis.LabelCut) || c.Analysis.LabelCut <= 0 || c.Analysis.LabelCut >= 1 {
		problems = append(problems, fmt.Sprintf("analysis.label_cut must be in (0,1), got %v", c.Analysis.LabelCut))
	}
	switch c.Analysis.Calibration {
	case CalibrationIdentity:
	case CalibrationLogistic:
		if c.Analysis.Steepness <= 0 {
			problems = append(problems, "analysis.steepness must be positive")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown analysis.calibration %q", c.Analysis.Calibration))
	}
	if c.Analysis.Parallelism < 1 {
		problems = append(problems, "analysis.parallelism must be at least 1")
	}
	switch c.Scorer.Strategy {
	case StrategyHeuristic, StrategyModel, StrategyEnsemble:
	default:
		problems = append(problems, fmt.Sprintf("unknown scorer.strategy %q", c.Scorer.Strategy))
	}
	if c.Scorer.Timeout <= 0 {
		problems = append(problems, "scorer.timeout must be positive")
	}
	if c.Scorer.MaxInFlight < 1 {
		problems = append(problems, "scorer.max_in_flight must be at least 1")
	}
	if c.Scorer.Strategy == StrategyEnsemble && (c.Scorer.ModelWeight <= 0 || c.Scorer.ModelWeight >= 1) {
		problems = append(problems, "scorer.model_weight must be in (0,1) for the ensemble strategy")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ListenAddr returns the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
