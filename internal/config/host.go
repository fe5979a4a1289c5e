package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultHost is used when no host is configured anywhere.
const DefaultHost = "http://localhost:8080"

// HostEnvKey names the environment variable and .env key holding the host.
const HostEnvKey = "HOST"

// HostSource tells where the resolved host came from.
type HostSource string

// Host sources in order of precedence.
const (
	HostFromEnv     HostSource = "env"
	HostFromDotEnv  HostSource = "dotenv"
	HostFromConfig  HostSource = "config"
	HostFromDefault HostSource = "default"
)

// ResolveHost resolves the target base URL once at startup: the HOST
// environment variable, then the HOST key of the .env file at dotEnvPath,
// then configured (the YAML target.baseURL), then DefaultHost. A missing
// .env file is not an error.
func ResolveHost(dotEnvPath, configured string) (string, HostSource, error) {
	env := viper.New()
	if err := env.BindEnv("host", HostEnvKey); err != nil {
		return "", "", fmt.Errorf("binding %s: %w", HostEnvKey, err)
	}
	if host := strings.TrimSpace(env.GetString("host")); host != "" {
		return host, HostFromEnv, nil
	}

	if dotEnvPath != "" {
		host, err := readDotEnvHost(dotEnvPath)
		if err != nil {
			return "", "", err
		}
		if host != "" {
			return host, HostFromDotEnv, nil
		}
	}

	if configured != "" {
		return configured, HostFromConfig, nil
	}
	return DefaultHost, HostFromDefault, nil
}

func readDotEnvHost(path string) (string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimSpace(v.GetString(strings.ToLower(HostEnvKey))), nil
}
