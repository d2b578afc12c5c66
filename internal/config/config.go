package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the server's whole configuration surface. Values come
// from defaults, then an optional YAML file, then environment
// variables; later layers win.
type Config struct {
	ListenAddress    string `yaml:"listen_address"`
	LoginPort        int    `yaml:"login_port"`
	ChannelPortStart int    `yaml:"channel_port_start"`
	Channels         int    `yaml:"channels"`
	TickIntervalMs   int    `yaml:"tick_interval_ms"`
	CharacterStore   string `yaml:"character_store_connection"`

	Version    uint16 `yaml:"version"`
	SubVersion string `yaml:"sub_version"`
	Locale     uint8  `yaml:"locale"`

	ObserverListen string `yaml:"observer_listen"`
	DataDir        string `yaml:"data_dir"`
}

// Defaults is the configuration of a bare `./server` run.
func Defaults() Config {
	return Config{
		ListenAddress:    "",
		LoginPort:        8484,
		ChannelPortStart: 8485,
		Channels:         2,
		TickIntervalMs:   50,
		CharacterStore:   "./data/characters.db",
		Version:          95,
		SubVersion:       "1",
		Locale:           8,
		ObserverListen:   "127.0.0.1:8400",
		DataDir:          "./data",
	}
}

// Load reads path over the defaults. A missing file is not an error:
// the defaults (plus environment overrides) are used instead.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c.withEnv()
		}
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("server config: %w", err)
	}
	return c.withEnv()
}

func (c Config) withEnv() (Config, error) {
	if v, ok := os.LookupEnv("LISTEN_ADDRESS"); ok {
		c.ListenAddress = v
	}
	if v, ok := os.LookupEnv("CHARACTER_STORE_CONNECTION"); ok {
		c.CharacterStore = v
	}
	for _, e := range []struct {
		name string
		dst  *int
	}{
		{"LOGIN_PORT", &c.LoginPort},
		{"CHANNEL_PORT_START", &c.ChannelPortStart},
		{"CHANNELS", &c.Channels},
		{"TICK_INTERVAL_MS", &c.TickIntervalMs},
	} {
		v, ok := os.LookupEnv(e.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("server config: %s=%q: %w", e.name, v, err)
		}
		*e.dst = n
	}
	return c, c.validate()
}

func (c Config) validate() error {
	if c.LoginPort <= 0 || c.LoginPort > 65535 {
		return fmt.Errorf("server config: login_port %d out of range", c.LoginPort)
	}
	if c.ChannelPortStart <= 0 || c.ChannelPortStart+c.Channels-1 > 65535 {
		return fmt.Errorf("server config: channel ports %d..%d out of range",
			c.ChannelPortStart, c.ChannelPortStart+c.Channels-1)
	}
	if c.Channels < 1 {
		return fmt.Errorf("server config: need at least one channel, got %d", c.Channels)
	}
	if c.TickIntervalMs <= 0 {
		return fmt.Errorf("server config: tick_interval_ms must be positive, got %d", c.TickIntervalMs)
	}
	if c.Locale < 1 || c.Locale > 10 {
		return fmt.Errorf("server config: locale %d out of range", c.Locale)
	}
	return nil
}
