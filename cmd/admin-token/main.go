package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/adboard-backend/pkg/auth"
	"github.com/angelmondragon/adboard-backend/pkg/config"
	"github.com/angelmondragon/adboard-backend/pkg/logger"
)

func main() {
	subject := flag.String("subject", "", "operator identity recorded in the token")
	ttl := flag.Duration("ttl", 0, "override the configured token lifetime")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "admin-token", Output: os.Stderr})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.LoadJWT()
	if err != nil {
		logg.Error(ctx, "failed to load jwt config", err)
		os.Exit(1)
	}
	if *ttl > 0 {
		cfg.TTL = *ttl
	}

	token, err := auth.MintAdminToken(cfg, time.Now(), auth.AdminTokenPayload{Subject: *subject})
	if err != nil {
		logg.Error(ctx, "failed to mint admin token", err)
		os.Exit(2)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{"subject": *subject, "ttl": cfg.TTL.String()}), "admin token minted")
	fmt.Println(token)
}
