package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	KindInput  = "input"
	KindOutput = "output"
)

type AudioConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"` // "synthetic", "auto"
	SampleRate   int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	StrictVolume bool   `mapstructure:"strict_volume" yaml:"strict_volume"` // reject out-of-range volumes instead of clamping
}

type ChannelDefinition struct {
	ID        string  `mapstructure:"id" yaml:"id"`
	Name      string  `mapstructure:"name" yaml:"name"`
	Volume    *int    `mapstructure:"volume,omitempty" yaml:"volume,omitempty"`
	Muted     bool    `mapstructure:"muted" yaml:"muted"`
	Frequency float64 `mapstructure:"frequency,omitempty" yaml:"frequency,omitempty"` // oscillator pitch, inputs only
}

type MeterConfig struct {
	IntervalMs int     `mapstructure:"interval_ms" yaml:"interval_ms"`
	Bias       float64 `mapstructure:"bias" yaml:"bias"`
	Jitter     float64 `mapstructure:"jitter" yaml:"jitter"`
	Seed       uint64  `mapstructure:"seed" yaml:"seed"` // 0 picks a random seed
	Buffer     int     `mapstructure:"buffer" yaml:"buffer"`
}

type PresetsConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	Startup   string `mapstructure:"startup" yaml:"startup"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

type Config struct {
	Audio   AudioConfig         `mapstructure:"audio" yaml:"audio"`
	Inputs  []ChannelDefinition `mapstructure:"inputs" yaml:"inputs"`
	Outputs []ChannelDefinition `mapstructure:"outputs" yaml:"outputs"`
	Routing map[string][]string `mapstructure:"routing" yaml:"routing"` // input id -> output ids
	Meter   MeterConfig         `mapstructure:"meter" yaml:"meter"`
	Presets PresetsConfig       `mapstructure:"presets" yaml:"presets"`
	Server  ServerConfig        `mapstructure:"server" yaml:"server"`
}

const (
	defaultInputVolume  = 75
	defaultOutputVolume = 100
	defaultFrequency    = 440.0
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func intPtr(v int) *int { return &v }

func defaultInputs() []ChannelDefinition {
	return []ChannelDefinition{
		{ID: "microphone", Name: "Default Microphone", Volume: intPtr(75), Frequency: 440},
		{ID: "game", Name: "Game Audio", Volume: intPtr(85), Frequency: 523.25},
		{ID: "music", Name: "Music Player", Volume: intPtr(65), Frequency: 659.25},
		{ID: "browser", Name: "Browser Audio", Volume: intPtr(70), Frequency: 783.99},
	}
}

func defaultOutputs() []ChannelDefinition {
	return []ChannelDefinition{
		{ID: "speakers", Name: "Speakers", Volume: intPtr(100)},
		{ID: "headphones", Name: "Headphones", Volume: intPtr(100)},
		{ID: "stream", Name: "Stream Output", Volume: intPtr(100)},
		{ID: "chat", Name: "Chat Output", Volume: intPtr(100)},
	}
}

func defaultRouting() map[string][]string {
	return map[string][]string{
		"microphone": {"speakers", "headphones", "stream", "chat"},
		"game":       {"speakers", "headphones", "stream"},
		"music":      {"speakers", "headphones", "stream"},
		"browser":    {"speakers", "headphones"},
	}
}

// setDefaults registers scalar defaults so they can also be overridden from
// ROUTEMIX_* environment variables.
func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.backend", "auto")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.strict_volume", false)
	v.SetDefault("meter.interval_ms", 50)
	v.SetDefault("meter.bias", 0.75)
	v.SetDefault("meter.jitter", 20.0)
	v.SetDefault("meter.seed", 0)
	v.SetDefault("meter.buffer", 64)
	v.SetDefault("presets.directory", filepath.Join("~", ".config", "routemix", "presets"))
	v.SetDefault("presets.startup", "")
	v.SetDefault("server.port", "8080")
}

// Default returns the built-in configuration: the four inputs and four
// outputs of the stock mixer layout with their factory routing.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// built-in values always validate
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// Load reads configFile (YAML) on top of the built-in defaults. An empty
// configFile yields the defaults plus any environment overrides.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ROUTEMIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// An explicit empty routing section means "nothing routed"
	if cfg.Routing == nil && v.IsSet("routing") {
		cfg.Routing = map[string][]string{}
	}

	cfg.applyDefaults()
	cfg.Presets.Directory = expandPath(cfg.Presets.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills list and map sections that were absent from the file.
// Slices are not merged with the defaults: a file listing two inputs gets
// exactly two inputs.
func (c *Config) applyDefaults() {
	if len(c.Inputs) == 0 {
		c.Inputs = defaultInputs()
	}
	if len(c.Outputs) == 0 {
		c.Outputs = defaultOutputs()
	}
	if c.Routing == nil {
		c.Routing = c.factoryRouting()
	}

	for i := range c.Inputs {
		if c.Inputs[i].Volume == nil {
			c.Inputs[i].Volume = intPtr(defaultInputVolume)
		}
		if c.Inputs[i].Frequency == 0 {
			c.Inputs[i].Frequency = defaultFrequency
		}
		if c.Inputs[i].Name == "" {
			c.Inputs[i].Name = c.Inputs[i].ID
		}
	}
	for i := range c.Outputs {
		if c.Outputs[i].Volume == nil {
			c.Outputs[i].Volume = intPtr(defaultOutputVolume)
		}
		if c.Outputs[i].Name == "" {
			c.Outputs[i].Name = c.Outputs[i].ID
		}
	}
}

// factoryRouting keeps the stock routes whose endpoints exist in this catalog.
func (c *Config) factoryRouting() map[string][]string {
	known := make(map[string]bool)
	for _, def := range c.Inputs {
		known[def.ID] = true
	}
	for _, def := range c.Outputs {
		known[def.ID] = true
	}

	routing := make(map[string][]string)
	for in, outs := range defaultRouting() {
		if !known[in] {
			continue
		}
		for _, out := range outs {
			if known[out] {
				routing[in] = append(routing[in], out)
			}
		}
	}
	return routing
}

// MeterInterval returns the meter tick period.
func (c *Config) MeterInterval() time.Duration {
	return time.Duration(c.Meter.IntervalMs) * time.Millisecond
}

// VolumeOf returns the configured initial volume of a channel definition.
func (d ChannelDefinition) VolumeOf() int {
	if d.Volume == nil {
		return 0
	}
	return *d.Volume
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if c.Audio.Backend == "" {
		return fmt.Errorf("audio.backend is required")
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got: %d", c.Audio.SampleRate)
	}

	if len(c.Inputs) == 0 {
		return fmt.Errorf("inputs cannot be empty")
	}
	if len(c.Outputs) == 0 {
		return fmt.Errorf("outputs cannot be empty")
	}

	seenIDs := make(map[string]string)
	inputs := make(map[string]bool)
	outputs := make(map[string]bool)

	for i, def := range c.Inputs {
		prefix := fmt.Sprintf("inputs[%d]", i)
		if err := validateChannelDefinition(def, prefix, KindInput, seenIDs); err != nil {
			return err
		}
		inputs[def.ID] = true
	}
	for i, def := range c.Outputs {
		prefix := fmt.Sprintf("outputs[%d]", i)
		if err := validateChannelDefinition(def, prefix, KindOutput, seenIDs); err != nil {
			return err
		}
		outputs[def.ID] = true
	}

	if err := validateRouting(c.Routing, inputs, outputs); err != nil {
		return err
	}

	if c.Meter.IntervalMs <= 0 {
		return fmt.Errorf("meter.interval_ms must be > 0, got: %d", c.Meter.IntervalMs)
	}
	if c.Meter.Bias < 0 {
		return fmt.Errorf("meter.bias must be >= 0, got: %.2f", c.Meter.Bias)
	}
	if c.Meter.Jitter < 0 {
		return fmt.Errorf("meter.jitter must be >= 0, got: %.2f", c.Meter.Jitter)
	}
	if c.Meter.Buffer < 1 {
		return fmt.Errorf("meter.buffer must be >= 1, got: %d", c.Meter.Buffer)
	}

	if c.Presets.Directory == "" {
		return fmt.Errorf("presets.directory is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	return nil
}

// validateChannelDefinition validates a single channel definition
func validateChannelDefinition(def ChannelDefinition, prefix, kind string, seenIDs map[string]string) error {
	if def.ID == "" {
		return fmt.Errorf("%s: 'id' is required", prefix)
	}
	if !idPattern.MatchString(def.ID) {
		return fmt.Errorf("%s: 'id' must be lowercase letters, digits, '-' or '_', got: %s", prefix, def.ID)
	}
	if other, dup := seenIDs[def.ID]; dup {
		return fmt.Errorf("%s: duplicate ID '%s' (already used by %s)", prefix, def.ID, other)
	}
	seenIDs[def.ID] = prefix

	if def.Volume != nil && (*def.Volume < 0 || *def.Volume > 100) {
		return fmt.Errorf("%s: 'volume' must be between 0 and 100, got: %d", prefix, *def.Volume)
	}
	if kind == KindInput && def.Frequency < 0 {
		return fmt.Errorf("%s: 'frequency' must be >= 0, got: %.2f", prefix, def.Frequency)
	}

	return nil
}

// validateRouting ensures every route references a known input and output
func validateRouting(routing map[string][]string, inputs, outputs map[string]bool) error {
	for in, outs := range routing {
		if !inputs[in] {
			return fmt.Errorf("routing: references undefined input '%s'", in)
		}
		for j, out := range outs {
			if !outputs[out] {
				return fmt.Errorf("routing.%s[%d]: references undefined output '%s'", in, j, out)
			}
		}
	}
	return nil
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		homeDir, _ := os.UserHomeDir()
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
