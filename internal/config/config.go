// Package config loads agentrun configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"agentrun/internal/chat"
	"agentrun/pkg/logger"
)

// Config is the root configuration structure.
type Config struct {
	Log      logger.LogConfig       `mapstructure:"log" yaml:"log"`
	Run      RunConfig              `mapstructure:"run" yaml:"run"`
	Approval ApprovalConfig         `mapstructure:"approval" yaml:"approval"`
	Storage  StorageConfig          `mapstructure:"storage" yaml:"storage"`
	Gateway  GatewayConfig          `mapstructure:"gateway" yaml:"gateway"`
	JSVM     JSVMConfig             `mapstructure:"jsvm" yaml:"jsvm"`
	Agents   map[string]AgentConfig `mapstructure:"agents" yaml:"agents,omitempty"`
	Tools    []ToolConfig           `mapstructure:"tools" yaml:"tools,omitempty"`
}

// RunConfig tunes the run controller.
type RunConfig struct {
	// InterruptTimeout abandons a parked interrupt after this long. Zero waits forever.
	InterruptTimeout    time.Duration `mapstructure:"interrupt_timeout" yaml:"interrupt_timeout"`
	AllowConcurrentSend bool          `mapstructure:"allow_concurrent_send" yaml:"allow_concurrent_send"`
}

// ApprovalConfig configures the human-in-the-loop approval manager.
type ApprovalConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxPending int           `mapstructure:"max_pending" yaml:"max_pending"`
	Audit      bool          `mapstructure:"audit" yaml:"audit"`
}

// StorageConfig points at the sqlite database used for the approval audit log.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// GatewayConfig configures the HTTP/WebSocket gateway.
type GatewayConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr returns host:port.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// JSVMConfig configures script tool execution.
type JSVMConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AgentConfig binds an agent id to its transport parameters.
type AgentConfig struct {
	Name        string `json:"name" mapstructure:"name" yaml:"name"`
	Alias       string `json:"alias" mapstructure:"alias" yaml:"alias,omitempty"`
	Description string `json:"description" mapstructure:"description" yaml:"description,omitempty"`
	// Transcript is a recorded AG-UI event transcript played back by the scripted transport.
	Transcript string `json:"transcript" mapstructure:"transcript" yaml:"transcript,omitempty"`
	// Synchronous delivers scripted events on the caller's goroutine.
	Synchronous bool `json:"synchronous" mapstructure:"synchronous" yaml:"synchronous,omitempty"`
}

// Ref converts the agent config into the reference bound by the run controller.
func (c AgentConfig) Ref(id string) chat.AgentRef {
	name := c.Name
	if name == "" {
		name = id
	}
	alias := c.Alias
	if alias == "" {
		alias = id
	}
	return chat.AgentRef{ID: id, Name: name, Alias: alias}
}

// ToolConfig describes one frontend tool manifest entry.
type ToolConfig struct {
	Name        string         `json:"name" mapstructure:"name" yaml:"name"`
	Label       string         `json:"label" mapstructure:"label" yaml:"label,omitempty"`
	Description string         `json:"description" mapstructure:"description" yaml:"description,omitempty"`
	Parameters  map[string]any `json:"parameters" mapstructure:"parameters" yaml:"parameters,omitempty"`
	// Approval requires a human decision before the tool runs.
	Approval       bool           `json:"approval" mapstructure:"approval" yaml:"approval,omitempty"`
	ApprovalConfig map[string]any `json:"approval_config" mapstructure:"approval_config" yaml:"approval_config,omitempty"`
	Runtime        string         `json:"runtime" mapstructure:"runtime" yaml:"runtime,omitempty"`
	Script         string         `json:"script" mapstructure:"script" yaml:"script,omitempty"`
	ScriptFile     string         `json:"script_file" mapstructure:"script_file" yaml:"script_file,omitempty"`
	Timeout        time.Duration  `json:"timeout" mapstructure:"timeout" yaml:"timeout,omitempty"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads configuration. Priority: ENV > file > defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("AGENTRUN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path returns the configuration file path used by the last Load.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Agent looks up an agent by id.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	if c == nil || c.Agents == nil {
		return AgentConfig{}, false
	}
	a, ok := c.Agents[id]
	return a, ok
}

// AgentIDs returns configured agent ids in sorted order.
func (c *Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for id := range c.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Set sets a configuration value and persists it when a config path is known.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)
	if configPath != "" {
		return save()
	}
	return nil
}

// Save writes the current settings to the config file.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save requires mu to be held.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes cfg as YAML to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Reset clears loaded state. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
