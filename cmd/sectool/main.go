// Command sectool is the operational CLI for the security core: hashing and
// checking passwords, generating strong passwords and signing secrets,
// applying the session-store schema, and verifying the deployed configuration.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/medisafe/vaultcore/internal/app"
	"github.com/medisafe/vaultcore/internal/config"
	"github.com/medisafe/vaultcore/internal/migrate"
	"github.com/medisafe/vaultcore/internal/password"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	hashPw := flag.String("hash-password", "", "validate and hash a password at the target cost")
	checkPw := flag.String("check-password", "", "candidate password to check (requires -against)")
	against := flag.String("against", "", "stored bcrypt hash to check the candidate against")
	generate := flag.Bool("generate-password", false, "generate a strong random password")
	length := flag.Int("length", password.DefaultGeneratedLength, "generated password length")
	secret := flag.Bool("generate-secret", false, "generate a 32-byte hex signing secret")
	cost := flag.Int("cost", 0, "bcrypt cost factor (default: BCRYPT_COST from the environment)")
	migrateUp := flag.Bool("migrate", false, "apply session-store migrations")
	dsn := flag.String("dsn", "", "PostgreSQL DSN for -migrate (default: DATABASE_URL)")
	checkCfg := flag.Bool("check-config", false, "load the environment configuration and assemble the core")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if *showVersion {
		fmt.Printf("sectool %s (%s)\n", version, buildDate)
		return
	}

	// Password commands work without a complete environment; the configuration
	// only contributes the cost default when it loads.
	cfg, cfgErr := config.Load()
	targetCost := *cost
	if targetCost == 0 {
		targetCost = password.DefaultCost
		if cfgErr == nil {
			targetCost = cfg.BcryptCost
		}
	}
	hasher := password.NewHasher(targetCost, logger)

	switch {
	case *hashPw != "":
		hash, err := hasher.HashPassword(*hashPw)
		if err != nil {
			logger.Fatal("hash password", zap.Error(err))
		}
		fmt.Println(hash)

	case *checkPw != "":
		if *against == "" {
			logger.Fatal("missing stored hash (-against)")
		}
		if hasher.ComparePassword(*checkPw, *against) {
			fmt.Println("match")
			return
		}
		fmt.Println("no match")
		os.Exit(1)

	case *generate:
		pw, err := hasher.GenerateSecurePassword(*length)
		if err != nil {
			logger.Fatal("generate password", zap.Error(err))
		}
		strength := hasher.EstimateStrength(pw)
		fmt.Println(pw)
		fmt.Printf("strength: %d/4 (%s)\n", strength.Score, strength.Description)

	case *secret:
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			logger.Fatal("generate secret", zap.Error(err))
		}
		fmt.Println(hex.EncodeToString(b))

	case *migrateUp:
		target := *dsn
		if target == "" && cfgErr == nil {
			target = cfg.DatabaseURL
		}
		if target == "" {
			logger.Fatal("missing PostgreSQL DSN (-dsn or DATABASE_URL)")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := migrate.Up(ctx, target); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		logger.Info("migrations applied")

	case *checkCfg:
		if cfgErr != nil {
			logger.Fatal("load configuration", zap.Error(cfgErr))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a, err := app.New(ctx, cfg, nil, logger)
		if err != nil {
			logger.Fatal("assemble core", zap.Error(err))
		}
		a.Close()
		store := "memory"
		if cfg.DatabaseURL != "" {
			store = "postgres"
		}
		fmt.Printf("configuration ok: %d master keys, active %s, session store %s\n",
			len(cfg.MasterKeys), cfg.MasterKeyID, store)

	default:
		flag.Usage()
		os.Exit(2)
	}
}
