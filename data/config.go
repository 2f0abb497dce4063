package data

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

// Model represents a model definition.
type Model struct {
	Name     string  // Name is the key, not stored in YAML
	Endpoint string  // OpenAI-compatible endpoint
	Key      string  // API key
	Model    string  // Model name
	Temp     float32 // Model temperature
}

// ConfigStore provides typed access to skymind.yaml configuration.
// It wraps viper internally and exposes only typed interfaces.
type ConfigStore struct {
	v *viper.Viper
}

// NewConfigStore creates a new ConfigStore using the existing viper
// configuration. This reuses whatever config file viper has already loaded.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{v: viper.GetViper()}
}

// SetConfigFile sets the configuration file path and loads it if present.
func (c *ConfigStore) SetConfigFile(path string) error {
	c.v.SetConfigFile(path)
	c.v.AutomaticEnv() // Read in environment variables that match

	// Defaults exist even when the file doesn't mention them.
	c.v.SetDefault("log.level", "info")
	c.v.SetDefault("stream.grace_delay_ms", 500)
	c.v.SetDefault("stream.cascade_spacing_ms", 500)
	c.v.SetDefault("stream.machine_id", 0)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := c.v.ReadInConfig(); err != nil {
		return err
	}
	return nil
}

// ConfigFileUsed returns the path to the config file being used.
func (c *ConfigStore) ConfigFileUsed() string {
	return c.v.ConfigFileUsed()
}

// Save writes the current configuration back to its file.
func (c *ConfigStore) Save() error {
	return c.v.WriteConfig()
}

// GetLogLevel returns the configured log level string.
func (c *ConfigStore) GetLogLevel() string {
	return c.v.GetString("log.level")
}

// GetDefaultModel returns the model used for chat generations.
func (c *ConfigStore) GetDefaultModel() Model {
	return c.getModel("models.default")
}

// GetFastModel returns the model used for "fast" quality-of-service
// dispatches (title generation). Falls back to the default model when no
// fast model is configured.
func (c *ConfigStore) GetFastModel() Model {
	m := c.getModel("models.fast")
	if m.Endpoint == "" && m.Model == "" {
		return c.GetDefaultModel()
	}
	return m
}

func (c *ConfigStore) getModel(key string) Model {
	return Model{
		Name:     key,
		Endpoint: c.v.GetString(key + ".endpoint"),
		Key:      c.v.GetString(key + ".key"),
		Model:    c.v.GetString(key + ".model"),
		Temp:     float32(c.v.GetFloat64(key + ".temp")),
	}
}

// GetGraceDelay returns how long completed streams stay visible in the
// registry. Tunable because the right value depends on how slowly the
// presentation layer reads terminal state.
func (c *ConfigStore) GetGraceDelay() time.Duration {
	return time.Duration(c.v.GetInt("stream.grace_delay_ms")) * time.Millisecond
}

// GetCascadeSpacing returns the pause inserted before each backend call a
// title cascade makes. Tunable because it exists purely to stay under the
// backend's rate limiter.
func (c *ConfigStore) GetCascadeSpacing() time.Duration {
	return time.Duration(c.v.GetInt("stream.cascade_spacing_ms")) * time.Millisecond
}

// GetMachineID returns the snowflake machine id for this instance.
func (c *ConfigStore) GetMachineID() int64 {
	return c.v.GetInt64("stream.machine_id")
}
