// Package config contains the configuration of the verifier service and
// its host-side collaborators.
package config

import (
	"fmt"
	"os"

	"github.com/attestvm/attestvm/pkg/storage"
	"gopkg.in/yaml.v3"
)

// Version is the version of the binary, set at build time.
var Version string

// Defaults applied before unmarshaling.
const (
	// DefaultGasLimit is the execution gas limit used when a caller does
	// not provide one.
	DefaultGasLimit = 1000000
	// DefaultKeystoreKey is the storage key of the sealed signing keypair.
	DefaultKeystoreKey = "keystore.dat"
	// DefaultIdentity is the module identity string the local platform
	// derives its measurement from.
	DefaultIdentity = "attestvm contract verifier v1"
	// DefaultProgramCacheSize bounds the validated-program cache.
	DefaultProgramCacheSize = 128
	// DefaultPlatformSecret seeds seal-key derivation of the local
	// software platform. It is a placeholder for a hardware root of
	// trust and offers no protection against a host reading it here.
	DefaultPlatformSecret = "insecure local platform secret"
)

// Config is the top-level struct representing the verifier configuration.
type Config struct {
	EnclaveConfiguration     EnclaveConfiguration     `yaml:"EnclaveConfiguration"`
	ApplicationConfiguration ApplicationConfiguration `yaml:"ApplicationConfiguration"`
}

// EnclaveConfiguration holds the settings of the trust boundary itself.
type EnclaveConfiguration struct {
	// Identity is the module identity string, it decides the local
	// platform measurement and thereby the sealing key.
	Identity string `yaml:"Identity"`
	// PlatformSecret seeds seal-key derivation of the local platform.
	PlatformSecret string `yaml:"PlatformSecret"`
	// KeystoreKey is the storage key the sealed signing keypair lives
	// under.
	KeystoreKey string `yaml:"KeystoreKey"`
	// RequireSealedKey refuses to start when the sealed keystore fails
	// authentication instead of regenerating a fresh keypair.
	RequireSealedKey bool `yaml:"RequireSealedKey"`
	// DefaultGasLimit is used by boundary calls without an explicit limit.
	DefaultGasLimit uint64 `yaml:"DefaultGasLimit"`
	// ProgramCacheSize is the size of the validated-program cache.
	ProgramCacheSize int `yaml:"ProgramCacheSize"`
}

// ApplicationConfiguration holds the host-side settings.
type ApplicationConfiguration struct {
	LogLevel        string                  `yaml:"LogLevel"`
	DBConfiguration storage.DBConfiguration `yaml:"DBConfiguration"`
}

// Load attempts to load the config from the given path.
func Load(path string) (Config, error) {
	configData, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}
	return Unmarshal(configData)
}

// Unmarshal unmarshals the config from the given bytes applying the
// defaults first.
func Unmarshal(data []byte) (Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("problem unmarshaling config data: %w", err)
	}
	return config, nil
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	return Config{
		EnclaveConfiguration: EnclaveConfiguration{
			Identity:         DefaultIdentity,
			PlatformSecret:   DefaultPlatformSecret,
			KeystoreKey:      DefaultKeystoreKey,
			DefaultGasLimit:  DefaultGasLimit,
			ProgramCacheSize: DefaultProgramCacheSize,
		},
		ApplicationConfiguration: ApplicationConfiguration{
			DBConfiguration: storage.DBConfiguration{
				Type: storage.InMemory,
			},
		},
	}
}
