/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads host configuration from config.toml and environment
// variables, with the environment taking precedence over the file. No
// command-line flag overrides these values.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds runtime configuration for the component host.
type Config struct {
	// Root directory for component storage.
	StorageRoot string

	// Root directory for per-component secrets sidecars.
	SecretsRoot string

	HTTPTimeout time.Duration
	OCITimeout  time.Duration

	// DisableBuiltinTools makes the dispatcher reject every built-in
	// admin tool call with BuiltinsDisabled.
	DisableBuiltinTools bool

	// DownloadConcurrency bounds simultaneous HTTP/OCI fetches.
	DownloadConcurrency int

	// WarmupConcurrency bounds the startup background compile loader;
	// the effective value is min(WarmupConcurrency, runtime.NumCPU()).
	WarmupConcurrency int

	BindHost string
	Port     string
}

const (
	envPrefix              = "WASSHOST_"
	envStorageRoot         = envPrefix + "STORAGE_ROOT"
	envSecretsRoot         = envPrefix + "SECRETS_ROOT"
	envHTTPTimeoutSecs     = "HTTP_TIMEOUT_SECS"
	envOCITimeoutSecs      = "OCI_TIMEOUT_SECS"
	envDisableBuiltinTools = envPrefix + "DISABLE_BUILTIN_TOOLS"
	envDownloadConcurrency = envPrefix + "DOWNLOAD_CONCURRENCY"
	envWarmupConcurrency   = envPrefix + "WARMUP_CONCURRENCY"
	envConfigFile          = envPrefix + "CONFIG_FILE"
	envBindHost            = "BIND_HOST"
	envPort                = "PORT"
)

const (
	defaultStorageRoot         = "./components"
	defaultSecretsRoot         = "./secrets"
	defaultHTTPTimeout         = 30 * time.Second
	defaultOCITimeout          = 30 * time.Second
	defaultDownloadConcurrency = 8
	defaultWarmupConcurrency   = 4
	defaultBindHost            = "127.0.0.1"
	defaultPort                = "9001"
)

// fileConfig mirrors the subset of Config that may be set from config.toml.
type fileConfig struct {
	StorageRoot         string `toml:"storage_root"`
	SecretsRoot         string `toml:"secrets_root"`
	HTTPTimeoutSecs      int   `toml:"http_timeout_secs"`
	OCITimeoutSecs       int   `toml:"oci_timeout_secs"`
	DisableBuiltinTools bool   `toml:"disable_builtin_tools"`
	DownloadConcurrency int    `toml:"download_concurrency"`
	WarmupConcurrency   int    `toml:"warmup_concurrency"`
	BindHost            string `toml:"bind_host"`
	Port                string `toml:"port"`
}

// defaultConfigPaths returns the discovery order for config.toml when
// WASSHOST_CONFIG_FILE is not set: the current directory, then the OS
// per-user config directory.
func defaultConfigPaths() []string {
	paths := []string{"./componenthost.toml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "componenthost", "config.toml"))
	}
	return paths
}

// Load builds a Config from config.toml (if present) overridden by
// WASSHOST_-prefixed environment variables plus the unprefixed PORT,
// BIND_HOST, HTTP_TIMEOUT_SECS and OCI_TIMEOUT_SECS.
func Load() (*Config, error) {
	fc, err := loadFile()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StorageRoot:         firstNonEmpty(fc.StorageRoot, defaultStorageRoot),
		SecretsRoot:         firstNonEmpty(fc.SecretsRoot, defaultSecretsRoot),
		HTTPTimeout:         secondsOrDefault(fc.HTTPTimeoutSecs, defaultHTTPTimeout),
		OCITimeout:          secondsOrDefault(fc.OCITimeoutSecs, defaultOCITimeout),
		DisableBuiltinTools: fc.DisableBuiltinTools,
		DownloadConcurrency: intOrDefault(fc.DownloadConcurrency, defaultDownloadConcurrency),
		WarmupConcurrency:   intOrDefault(fc.WarmupConcurrency, defaultWarmupConcurrency),
		BindHost:            firstNonEmpty(fc.BindHost, defaultBindHost),
		Port:                firstNonEmpty(fc.Port, defaultPort),
	}

	cfg.StorageRoot = getEnvString(envStorageRoot, cfg.StorageRoot)
	cfg.SecretsRoot = getEnvString(envSecretsRoot, cfg.SecretsRoot)
	cfg.HTTPTimeout = getEnvSeconds(envHTTPTimeoutSecs, cfg.HTTPTimeout)
	cfg.OCITimeout = getEnvSeconds(envOCITimeoutSecs, cfg.OCITimeout)
	cfg.DisableBuiltinTools = getEnvBool(envDisableBuiltinTools, cfg.DisableBuiltinTools)
	cfg.DownloadConcurrency = getEnvInt(envDownloadConcurrency, cfg.DownloadConcurrency)
	cfg.WarmupConcurrency = getEnvInt(envWarmupConcurrency, cfg.WarmupConcurrency)
	cfg.BindHost = getEnvString(envBindHost, cfg.BindHost)
	cfg.Port = getEnvString(envPort, cfg.Port)

	return cfg, nil
}

func loadFile() (*fileConfig, error) {
	fc := &fileConfig{}

	path := os.Getenv(envConfigFile)
	if path != "" {
		if _, err := toml.DecodeFile(path, fc); err != nil {
			return nil, err
		}
		return fc, nil
	}

	for _, candidate := range defaultConfigPaths() {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if _, err := toml.DecodeFile(candidate, fc); err != nil {
			return nil, err
		}
		break
	}
	return fc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intOrDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func secondsOrDefault(secs int, def time.Duration) time.Duration {
	if secs == 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}
