// Command taskmarketctl is an operator utility for taskmarketd deployments:
// today it migrates a plaintext AdminKey out of a config file into an
// encrypted keystore, mirroring how validator keys are migrated off disk in
// the node this service was adapted from.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"taskmarket/crypto"
)

const (
	migrateCommand  = "migrate-keystore"
	defaultPassEnv  = "TASKMARKET_ADMIN_PASSPHRASE"
	defaultConfig   = "./taskmarketd.toml"
	defaultKeystore = "admin.keystore"
)

// fileConfig mirrors config.Config's on-disk shape without importing the
// config package, so this tool can migrate a config written before any
// future field additions without being coupled to the runtime struct.
type fileConfig struct {
	ListenAddress    string   `toml:"ListenAddress"`
	RPCAddress       string   `toml:"RPCAddress"`
	DataDir          string   `toml:"DataDir"`
	AdminKey         string   `toml:"AdminKey"`
	AdminKeystore    string   `toml:"AdminKeystore"`
	JWTSecret        string   `toml:"JWTSecret"`
	DisputeResolvers []string `toml:"DisputeResolvers"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case migrateCommand:
		runMigrate(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: taskmarketctl %s -config <path> [-keystore <path>] [-pass-env <name>] [-force]\n", migrateCommand)
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet(migrateCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "path to the taskmarketd config file")
	keystorePath := fs.String("keystore", "", "output path for the generated keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "overwrite an existing keystore file")
	fs.Parse(args)

	if err := migrateKeystore(*configPath, *keystorePath, *passEnv, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func migrateKeystore(configPath, keystorePath, passEnv string, force bool) error {
	var cfg fileConfig
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if cfg.AdminKey == "" {
		return fmt.Errorf("config %s does not contain an AdminKey field to migrate", configPath)
	}
	if cfg.AdminKeystore != "" {
		return fmt.Errorf("config %s already references a keystore", configPath)
	}

	if keystorePath == "" {
		dir := filepath.Dir(configPath)
		if dir == "." || dir == "" {
			keystorePath = defaultKeystore
		} else {
			keystorePath = filepath.Join(dir, defaultKeystore)
		}
	}

	if !force {
		if _, err := os.Stat(keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use -force to overwrite)", keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	passphrase := ""
	if passEnv != "" {
		val, ok := os.LookupEnv(passEnv)
		if !ok {
			return fmt.Errorf("environment variable %s is not set", passEnv)
		}
		passphrase = val
	}

	keyBytes, err := hex.DecodeString(cfg.AdminKey)
	if err != nil {
		return fmt.Errorf("invalid AdminKey hex: %w", err)
	}
	key, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return fmt.Errorf("invalid AdminKey: %w", err)
	}

	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}

	cfg.AdminKey = ""
	cfg.AdminKeystore = keystorePath
	if cfg.DisputeResolvers == nil {
		cfg.DisputeResolvers = []string{}
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to rewrite config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(&cfg); err != nil {
		return fmt.Errorf("failed to rewrite config: %w", err)
	}

	fmt.Printf("migrated admin key to %s\n", keystorePath)
	return nil
}
