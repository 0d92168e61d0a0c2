// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the monitor configuration. Files may be INI, YAML,
// TOML or JSON; every value can be overridden from JFYMON_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. JFYMON_GLOBAL_POLL_INTERVAL
const EnvPrefix = "JFYMON"

// inverterSectionPrefix marks the sections describing one inverter each
const inverterSectionPrefix = "inverter"

// Config is the complete monitor configuration
type Config struct {
	Global    Global
	Inverters []Inverter
}

// Global holds the [global] section
type Global struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"`
	LogPath          string        `mapstructure:"logpath"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RegisterAttempts int           `mapstructure:"register_attempts"`
	Capture          string        `mapstructure:"capture"`
	HTTPListen       string        `mapstructure:"http_listen"`

	UseStore     bool   `mapstructure:"usesstore"`
	InfluxURL    string `mapstructure:"influx_url"`
	InfluxToken  string `mapstructure:"influx_token"`
	InfluxOrg    string `mapstructure:"influx_org"`
	InfluxBucket string `mapstructure:"influx_bucket"`

	MQTTBroker   string `mapstructure:"mqtt_broker"`
	MQTTTopic    string `mapstructure:"mqtt_topic"`
	MQTTUsername string `mapstructure:"mqtt_username"`
	MQTTPassword string `mapstructure:"mqtt_password"`

	BridgeUsername string `mapstructure:"bridge_username"`
}

// Inverter holds one [inverter-N] section
type Inverter struct {
	Section        string `mapstructure:"-"`
	Name           string `mapstructure:"name"`
	DevName        string `mapstructure:"devname"`
	Baud           int    `mapstructure:"baud"`
	LogPath        string `mapstructure:"logpath"`
	PVOutputAPIKey string `mapstructure:"pvoutput_apikey"`
	PVOutputSysID  string `mapstructure:"pvoutput_sysid"`
}

// HasPVOutput reports whether uploads are configured for the inverter
func (i Inverter) HasPVOutput() bool {
	return i.PVOutputAPIKey != "" && i.PVOutputSysID != ""
}

// InfluxEnabled reports whether readings go to the time-series store
func (g Global) InfluxEnabled() bool {
	return g.UseStore && g.InfluxURL != ""
}

// setDefaults registers default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", "info")
	v.SetDefault("global.log_format", "console")
	v.SetDefault("global.logpath", "/var/log/jfy")
	v.SetDefault("global.poll_interval", 30*time.Second)
	v.SetDefault("global.settle_delay", time.Second)
	v.SetDefault("global.max_attempts", 10)
	v.SetDefault("global.register_attempts", 1)
	v.SetDefault("global.usesstore", false)
	v.SetDefault("global.influx_bucket", "solar")
	v.SetDefault("global.mqtt_topic", "jfy")
}

// New returns a viper instance with defaults and environment overrides
// but no file loaded
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration file at path. The format follows the file
// extension; .cfg and .conf files are read as INI.
func Load(path string) (*Config, error) {
	return Read(New(), path)
}

// Read loads path into v, which may carry bound flags, and decodes it
func Read(v *viper.Viper, path string) (*Config, error) {
	v.SetConfigFile(path)
	switch strings.ToLower(pathExt(path)) {
	case "cfg", "conf":
		v.SetConfigType("ini")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return FromViper(v)
}

// FromViper decodes a loaded viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	// Unmarshal rather than UnmarshalKey so defaults and environment
	// overrides are merged into the section
	var file struct {
		Global Global `mapstructure:"global"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode [global]: %w", err)
	}
	cfg := &Config{Global: file.Global}

	var sections []string
	for key := range v.AllSettings() {
		if strings.HasPrefix(key, inverterSectionPrefix) {
			sections = append(sections, key)
		}
	}
	sort.Strings(sections)

	for _, section := range sections {
		inv := Inverter{Section: section}
		if err := v.UnmarshalKey(section, &inv); err != nil {
			return nil, fmt.Errorf("decode [%s]: %w", section, err)
		}
		if inv.Name == "" {
			inv.Name = section
		}
		if inv.Baud == 0 {
			inv.Baud = 9600
		}
		if inv.LogPath == "" {
			inv.LogPath = cfg.Global.LogPath
		}
		cfg.Inverters = append(cfg.Inverters, inv)
	}
	return cfg, nil
}

// Validate reports every problem found in the configuration
func (c *Config) Validate() error {
	var errs []error
	if c.Global.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive"))
	}
	if c.Global.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle_delay must not be negative"))
	}
	if c.Global.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1"))
	}
	if c.Global.RegisterAttempts < 1 {
		errs = append(errs, fmt.Errorf("register_attempts must be at least 1"))
	}
	if c.Global.UseStore && c.Global.InfluxURL == "" {
		errs = append(errs, fmt.Errorf("usesstore is set but influx_url is empty"))
	}
	if len(c.Inverters) == 0 {
		errs = append(errs, fmt.Errorf("no [%s-N] sections", inverterSectionPrefix))
	}

	seen := map[string]string{}
	for _, inv := range c.Inverters {
		if inv.DevName == "" {
			errs = append(errs, fmt.Errorf("[%s]: devname is required", inv.Section))
			continue
		}
		if other, ok := seen[inv.DevName]; ok {
			errs = append(errs, fmt.Errorf("[%s]: devname %s already used by [%s]", inv.Section, inv.DevName, other))
		}
		seen[inv.DevName] = inv.Section
		if (inv.PVOutputAPIKey == "") != (inv.PVOutputSysID == "") {
			errs = append(errs, fmt.Errorf("[%s]: pvoutput_apikey and pvoutput_sysid must be set together", inv.Section))
		}
	}
	return errors.Join(errs...)
}

func pathExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 && !strings.ContainsRune(path[i:], '/') {
		return path[i+1:]
	}
	return ""
}
