package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jsa498/digitalmarketing/internal/config"
	"github.com/jsa498/digitalmarketing/internal/identity"
	"github.com/jsa498/digitalmarketing/internal/logger"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue a bearer token for POST /api/v1/session",
		Long: `Issue a token the configured identity resolver accepts.
With IDENTITY_TYPE=jwt this signs an HS256 token with JWT_SECRET.
With IDENTITY_TYPE=redis this creates a session key in Redis.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			var token string
			switch cfg.Identity.Type {
			case "redis":
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Cache.RedisAddress(),
					Password: cfg.Cache.RedisPassword,
					DB:       cfg.Cache.RedisDB,
				})
				defer client.Close()

				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				defer cancel()
				token, err = identity.NewRedisSessionResolver(client, logger.Discard()).CreateSession(ctx, args[0])
			default:
				if cfg.Identity.JWTSecret == "" {
					return errors.New("JWT_SECRET is not set")
				}
				token, err = identity.NewJWTResolver(cfg.Identity.JWTSecret, cfg.Identity.JWTIssuer).Sign(args[0], ttl)
			}
			if err != nil {
				return errors.Wrap(err, "failed to issue token")
			}

			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().Duration("ttl", time.Hour, "JWT lifetime")

	return cmd
}
