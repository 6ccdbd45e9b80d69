package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"

	"github.com/BurntSushi/toml"

	"taskmarket/crypto"
)

// Config is the node-level configuration for the task market service: where
// it listens, where it persists state, and the operator key whose address
// becomes the market's admin and the dispute module's owner at first boot.
type Config struct {
	ListenAddress    string   `toml:"ListenAddress"`
	RPCAddress       string   `toml:"RPCAddress"`
	DataDir          string   `toml:"DataDir"`
	AdminKey         string   `toml:"AdminKey"`
	AdminKeystore    string   `toml:"AdminKeystore"`
	JWTSecret        string   `toml:"JWTSecret"`
	DisputeResolvers []string `toml:"DisputeResolvers"`
}

// Load loads the configuration from the given path, writing out a freshly
// generated default when the file does not yet exist.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	dirty := false
	if cfg.AdminKey == "" && cfg.AdminKeystore == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.AdminKey = hex.EncodeToString(key.Bytes())
		dirty = true
	}
	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		dirty = true
	}

	if dirty {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	secret, err := randomSecret()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress:    ":6001",
		RPCAddress:       ":8080",
		DataDir:          "./taskmarket-data",
		AdminKey:         hex.EncodeToString(key.Bytes()),
		JWTSecret:        secret,
		DisputeResolvers: []string{},
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
