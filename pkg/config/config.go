// Package config loads the settings of a profile store replica.
//
// Settings come from a profilestore.yaml file and from PROFILESTORE_* environment variables,
// e.g. PROFILESTORE_REMOTE_URL for remote.url.
package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oneconcern/profilestore/pkg/errors"
	"github.com/oneconcern/profilestore/pkg/model"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	// EnvPrefix prefixes environment variables
	EnvPrefix = "PROFILESTORE"

	// FileName is the name of the configuration file, without extension
	FileName = "profilestore"
)

// ErrConfig is returned for unreadable or invalid settings
var ErrConfig = errors.New("invalid configuration")

// Remote peer of the replica
type Remote struct {
	Name     string `mapstructure:"name" yaml:"name"`
	URL      string `mapstructure:"url" yaml:"url"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Identity of the commits authored by the replica
type Identity struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Email string `mapstructure:"email" yaml:"email"`
}

// Config holds all settings of a replica
type Config struct {
	DataDir              string        `mapstructure:"dataDir" yaml:"dataDir"`
	ConfigRoot           string        `mapstructure:"configRoot" yaml:"configRoot"`
	HierarchicalProfiles bool          `mapstructure:"hierarchicalProfiles" yaml:"hierarchicalProfiles"`
	Remote               Remote        `mapstructure:"remote" yaml:"remote"`
	Identity             Identity      `mapstructure:"identity" yaml:"identity"`
	FetchTimeout         time.Duration `mapstructure:"fetchTimeout" yaml:"fetchTimeout"`
	PushTimeout          time.Duration `mapstructure:"pushTimeout" yaml:"pushTimeout"`
	PushRetries          int           `mapstructure:"pushRetries" yaml:"pushRetries"`
	RetryBackoff         time.Duration `mapstructure:"retryBackoff" yaml:"retryBackoff"`
	GCEvery              uint64        `mapstructure:"gcEvery" yaml:"gcEvery"`
	PullPeriod           time.Duration `mapstructure:"pullPeriod" yaml:"pullPeriod"`
	PullDelay            time.Duration `mapstructure:"pullDelay" yaml:"pullDelay"`
	GCPeriod             time.Duration `mapstructure:"gcPeriod" yaml:"gcPeriod"`
	ShutdownGrace        time.Duration `mapstructure:"shutdownGrace" yaml:"shutdownGrace"`
	CacheSize            int           `mapstructure:"cacheSize" yaml:"cacheSize"`
	Prefetch             bool          `mapstructure:"prefetch" yaml:"prefetch"`
	LogLevel             string        `mapstructure:"logLevel" yaml:"logLevel"`
}

// Layout of profiles in the repository
func (c Config) Layout() model.Layout {
	return model.Layout{ConfigRoot: c.ConfigRoot, Hierarchical: c.HierarchicalProfiles}
}

// SetDefaults registers the default value of every setting
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dataDir", "")
	v.SetDefault("configRoot", model.DefaultConfigRoot)
	v.SetDefault("hierarchicalProfiles", false)
	v.SetDefault("remote.name", "origin")
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.username", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("identity.name", "profilestore")
	v.SetDefault("identity.email", "profilestore@localhost")
	v.SetDefault("fetchTimeout", 10*time.Second)
	v.SetDefault("pushTimeout", 10*time.Second)
	v.SetDefault("pushRetries", 3)
	v.SetDefault("retryBackoff", 250*time.Millisecond)
	v.SetDefault("gcEvery", 100)
	v.SetDefault("pullPeriod", 30*time.Second)
	v.SetDefault("pullDelay", time.Second)
	v.SetDefault("gcPeriod", time.Hour)
	v.SetDefault("shutdownGrace", 5*time.Second)
	v.SetDefault("cacheSize", 32)
	v.SetDefault("prefetch", false)
	v.SetDefault("logLevel", "info")
}

// New prepares a viper instance for some configuration file.
// With an empty file name, profilestore.yaml is searched in the usual places.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		return v
	}
	v.SetConfigName(FileName)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.profilestore")
	v.AddConfigPath("/etc/profilestore")
	return v
}

// Load reads the settings. A missing configuration file is not an error
// unless the file has been given explicitly.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, ErrConfig.Wrap(err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, ErrConfig.Wrap(err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks settings which have no sensible fallback
func (c Config) Validate() error {
	switch {
	case c.ConfigRoot == "" || strings.HasPrefix(c.ConfigRoot, "/") || strings.Contains(c.ConfigRoot, ".."):
		return ErrConfig.Wrapf("configRoot %q must be a relative path", c.ConfigRoot)
	case c.Remote.Name == "":
		return ErrConfig.Wrapf("remote.name is required")
	case c.PushRetries < 0:
		return ErrConfig.Wrapf("pushRetries must not be negative")
	case c.CacheSize <= 0:
		return ErrConfig.Wrapf("cacheSize must be positive")
	}
	return nil
}

// Watch reports changes of the remote URL in the configuration file.
// Other changes require a restart and are only logged.
func Watch(v *viper.Viper, current Config, l *zap.Logger, onRemoteURL func(string)) {
	if l == nil {
		l = zap.NewNop()
	}
	w := &watcher{url: current.Remote.URL, onRemoteURL: onRemoteURL, l: l}
	v.OnConfigChange(func(e fsnotify.Event) {
		w.changed(v, e)
	})
	v.WatchConfig()
}

type watcher struct {
	url         string
	onRemoteURL func(string)
	l           *zap.Logger
}

func (w *watcher) changed(v *viper.Viper, e fsnotify.Event) {
	c, err := decode(v)
	if err != nil {
		w.l.Warn("ignoring invalid configuration change", zap.String("file", e.Name), zap.Error(err))
		return
	}
	if c.Remote.URL == w.url {
		w.l.Info("configuration changed: restart to apply", zap.String("file", e.Name), zap.Stringer("op", e.Op))
		return
	}
	w.url = c.Remote.URL
	w.onRemoteURL(c.Remote.URL)
}
