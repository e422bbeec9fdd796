/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config loads and validates the agent's configuration from flags,
// environment variables, and an optional YAML file, the same layering the
// teacher binds through viper.
package config

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EventSettings controls the tag ring and the kernel provider allow-list.
type EventSettings struct {
	// MaxEventsPerTag is the per-tag ring capacity. Default 10000.
	MaxEventsPerTag int `mapstructure:"max-events-per-tag"`
	// EnabledProviders lists kernel provider names. It is decoded from
	// configuration but not read by the event source, which always enables
	// the FileIO and Process providers.
	EnabledProviders []string `mapstructure:"enabled-providers"`
	// EnabledEventNames lists event kinds. It is decoded from configuration
	// but not read by any component: events are not filtered by kind.
	EnabledEventNames []string `mapstructure:"enabled-event-names"`
}

// PipeSettings controls the named-pipe IPC endpoint.
type PipeSettings struct {
	// PipeName is the well-known endpoint name, default "ProcTailIPC".
	PipeName string `mapstructure:"pipe-name"`
	// MaxConcurrentConnections bounds the number of simultaneous clients.
	MaxConcurrentConnections int `mapstructure:"max-concurrent-connections"`
	// ConnectionTimeoutSeconds is the per-handler response deadline.
	ConnectionTimeoutSeconds int `mapstructure:"connection-timeout-seconds"`
	// BufferSize is the read/write buffer size hint passed to go-winio.
	BufferSize int `mapstructure:"buffer-size"`
	// MaxMessageBytes caps the accepted frame payload size.
	MaxMessageBytes int `mapstructure:"max-message-bytes"`
	// RequestsPerSecond bounds the sustained request rate per connection.
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
}

// SecuritySettings controls access-control policy for the IPC endpoint.
type SecuritySettings struct {
	// RequireAdministrator hard-defaults to true: the agent refuses to
	// start without the OS privilege required for kernel tracing.
	RequireAdministrator bool `mapstructure:"require-administrator"`
	// AllowedUsers lists account names. It is decoded from configuration
	// but not read by the IPC router: callers are not checked against it,
	// and access to the endpoint rests on the pipe's security descriptor.
	AllowedUsers []string `mapstructure:"allowed-users"`
}

// LogSettings controls the logging sink. Not part of spec.md's recognized
// keys, but the ambient stack the teacher always carries regardless of
// feature non-goals.
type LogSettings struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max-size-mb"`
	MaxBackups int    `mapstructure:"max-backups"`
	MaxAgeDays int    `mapstructure:"max-age-days"`
}

// Config is the fully-resolved agent configuration.
type Config struct {
	EventSettings    EventSettings    `mapstructure:"event-settings"`
	PipeSettings     PipeSettings     `mapstructure:"pipe-settings"`
	SecuritySettings SecuritySettings `mapstructure:"security-settings"`
	LogSettings      LogSettings      `mapstructure:"log-settings"`

	// KcapFile mirrors the name of the teacher's capture toggle. It is
	// decoded from configuration but not read by any component; no capture
	// or replay takes place.
	KcapFile string `mapstructure:"kcap-file"`
}

// HandlerTimeout returns the configured connection timeout as a duration.
func (c *Config) HandlerTimeout() time.Duration {
	return time.Duration(c.PipeSettings.ConnectionTimeoutSeconds) * time.Second
}

// New returns a Config populated with the documented defaults.
func New() *Config {
	return &Config{
		EventSettings: EventSettings{
			MaxEventsPerTag:   10000,
			EnabledProviders:  []string{"Microsoft-Windows-Kernel-FileIO", "Microsoft-Windows-Kernel-Process"},
			EnabledEventNames: nil,
		},
		PipeSettings: PipeSettings{
			PipeName:                 `ProcTailIPC`,
			MaxConcurrentConnections: 10,
			ConnectionTimeoutSeconds: 30,
			BufferSize:               65536,
			MaxMessageBytes:          10 * 1024 * 1024,
			RequestsPerSecond:        50,
		},
		SecuritySettings: SecuritySettings{
			RequireAdministrator: true,
		},
		LogSettings: LogSettings{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// AddFlags registers the subset of configuration keys that are sensible to
// override from the command line onto fs, mirroring the teacher's pattern
// of binding pflag.FlagSet into viper.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config-file", "", "path to the YAML configuration file")
	fs.String("pipe-settings.pipe-name", "ProcTailIPC", "named pipe endpoint name")
	fs.Int("event-settings.max-events-per-tag", 10000, "per-tag ring buffer capacity")
	fs.String("log-settings.level", "info", "log level")
	fs.String("log-settings.file", "", "rotating log file path")
}

// Load resolves configuration from defaults, an optional YAML file, and
// environment variables prefixed PROCTAIL_, with flags taking precedence
// over all of them.
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	cfg := New()

	v.SetEnvPrefix("proctail")
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	if path := v.GetString("config-file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, err
	}

	// RequireAdministrator hard-defaults true: config files can't weaken it.
	cfg.SecuritySettings.RequireAdministrator = true

	return cfg, nil
}
