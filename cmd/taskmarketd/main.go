// Command taskmarketd boots the task market service: it wires the four
// native engines (identity, listing, market, dispute) to in-memory storage,
// installs the configured resolvers and dispute module, and serves the
// REST surface described in SPEC_FULL.md over HTTP.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"taskmarket/app"
	"taskmarket/config"
	"taskmarket/crypto"
	nativecommon "taskmarket/native/common"
	"taskmarket/observability/logging"
	"taskmarket/rpc"
	"taskmarket/rpc/middleware"
	"taskmarket/storage"
)

func main() {
	var cfgPath, keystorePath string
	flag.StringVar(&cfgPath, "config", "taskmarketd.toml", "path to task market configuration")
	flag.StringVar(&keystorePath, "admin-keystore", "", "path to an encrypted keystore holding the admin key, in place of the config file's plaintext AdminKey")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TASKMARKET_ENV"))
	slogger := logging.Setup("taskmarketd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	adminKey, err := loadAdminKey(cfg, keystorePath)
	if err != nil {
		log.Fatalf("load admin key: %v", err)
	}
	var admin [20]byte
	copy(admin[:], adminKey.PubKey().Address().Bytes())

	// The market and dispute module each need a distinct custody/callback
	// address; derive them deterministically from the admin key so a single
	// configured key fully bootstraps the deployment.
	marketSelf := deriveSubAddress(admin, "market")
	disputeSelf := deriveSubAddress(admin, "dispute")

	module := app.New(admin, marketSelf, disputeSelf)

	if err := module.RegisterDisputeModule(admin); err != nil {
		slogger.Error("failed to register dispute module", "error", err)
		os.Exit(1)
	}

	for _, resolver := range cfg.DisputeResolvers {
		addr, err := crypto.DecodeAddress(resolver)
		if err != nil {
			slogger.Error("invalid dispute resolver address", "address", resolver, "error", err)
			os.Exit(1)
		}
		var resolverAddr [20]byte
		copy(resolverAddr[:], addr.Bytes())
		if err := module.Dispute.SetResolver(admin, resolverAddr, true); err != nil {
			slogger.Error("failed to register dispute resolver", "address", resolver, "error", err)
			os.Exit(1)
		}
	}

	auth := middleware.NewAuthenticator(middleware.AuthConfig{HMACSecret: cfg.JWTSecret})
	limiter := middleware.NewRateLimiter(middleware.RateLimit{RatePerSecond: 10, Burst: 20})
	quotaGuard := middleware.NewQuotaGuard(
		storage.NewQuotaStore(),
		"taskmarket",
		nativecommon.Quota{
			MaxRequestsPerMin: 600,
			MaxNHBPerEpoch:    0,
			EpochSeconds:      3600,
		},
	)

	server := rpc.NewServer(rpc.Config{
		Module:  module,
		Logger:  slogger,
		Auth:    auth,
		Limiter: limiter,
		Quota:   quotaGuard,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slogger.Info("taskmarketd listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("http server exited", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	slogger.Info("taskmarketd shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		slogger.Error("graceful shutdown failed", "error", err)
	}
}

// loadAdminKey resolves the operator key either from an encrypted keystore
// file (passphrase read from TASKMARKET_ADMIN_PASSPHRASE) or, when no
// keystore path is given on the command line or in the config, from the
// config file's plaintext hex AdminKey.
func loadAdminKey(cfg *config.Config, keystorePath string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(keystorePath) == "" {
		keystorePath = cfg.AdminKeystore
	}
	if strings.TrimSpace(keystorePath) == "" {
		adminKeyBytes, err := hex.DecodeString(cfg.AdminKey)
		if err != nil {
			return nil, fmt.Errorf("decode admin key: %w", err)
		}
		return crypto.PrivateKeyFromBytes(adminKeyBytes)
	}
	passphrase := os.Getenv("TASKMARKET_ADMIN_PASSPHRASE")
	if passphrase == "" {
		return nil, fmt.Errorf("TASKMARKET_ADMIN_PASSPHRASE must be set to unlock %s", keystorePath)
	}
	return crypto.LoadFromKeystore(keystorePath, passphrase)
}

// deriveSubAddress hashes the admin address with a role label to obtain a
// stable, distinct 20-byte address for the market's and dispute module's
// own custody/callback identities, so a single operator key can bootstrap
// the whole deployment without generating and tracking extra keypairs.
func deriveSubAddress(admin [20]byte, role string) [20]byte {
	digest := ethcrypto.Keccak256(admin[:], []byte(role))
	var out [20]byte
	copy(out[:], digest[len(digest)-20:])
	return out
}
