// Package config loads and validates the daemon configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"sync"

	"github.com/pftabled/pftabled/log"
	"github.com/pftabled/pftabled/log/loggers"
)

// Built-in defaults, used when neither the command line, the
// environment nor the configuration file say otherwise.
const (
	DefaultTable  = "pftabled"
	DefaultSocket = "/var/run/pftabled.sock"
	DefaultCACert = "ca.pem"
	DefaultCert   = "cert.pem"
	DefaultKey    = "cert.key"
)

// Environment variables, checked after the command line flags and
// before the configuration file.
const (
	EnvTable   = "TABLE_NAME"
	EnvSocket  = "SOCKET_FILE"
	EnvCACert  = "SSL_CA"
	EnvCert    = "SSL_CERT"
	EnvKey     = "SSL_KEY"
	EnvCommand = "TABLE_COMMAND"
)

type tlsOptions struct {
	CACert     string `json:"CACert"`
	ServerCert string `json:"ServerCert"`
	ServerKey  string `json:"ServerKey"`
}

// Config holds the values loaded from the configuration file.
type Config struct {
	LogLevel *int32                 `json:"LogLevel"`
	Table    string                 `json:"Table"`
	Socket   string                 `json:"Socket"`
	Preload  string                 `json:"Preload"`
	TLS      tlsOptions             `json:"TLS"`
	LogFile  string                 `json:"LogFile"`
	Loggers  []loggers.LoggerConfig `json:"Loggers"`

	LogUTC   bool `json:"LogUTC"`
	LogMicro bool `json:"LogMicro"`

	sync.RWMutex
}

// Parse determines if the given configuration is ok.
func Parse(rawConfig interface{}) (conf Config, err error) {
	if vt := reflect.ValueOf(rawConfig).Kind(); vt == reflect.String {
		err = json.Unmarshal([]byte(rawConfig.(string)), &conf)
	} else {
		err = json.Unmarshal(rawConfig.([]uint8), &conf)
	}
	return
}

// Load loads the content of a file from disk.
func Load(configFile string) ([]byte, error) {
	raw, err := ioutil.ReadFile(configFile)
	if err != nil || len(raw) == 0 {
		return nil, err
	}

	return raw, nil
}

// Save writes daemon configuration to disk.
func Save(configFile, rawConfig string) (err error) {
	if _, err = Parse(rawConfig); err != nil {
		return fmt.Errorf("Error parsing configuration %s: %s", rawConfig, err)
	}

	if err = ioutil.WriteFile(configFile, []byte(rawConfig), 0600); err != nil {
		log.Error("writing configuration to disk: %s", err)
		return err
	}
	return nil
}

// Resolve returns the first value that is set, in the order the daemon
// documents: command line flag, environment variable, configuration
// file, built-in default.
func Resolve(flagValue, envName, fileValue, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envName); envValue != "" {
		return envValue
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}
