package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jsa498/digitalmarketing/internal/app"
	"github.com/jsa498/digitalmarketing/internal/config"
	"github.com/jsa498/digitalmarketing/internal/logger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "cartctl",
		Short:         "Inspect and edit the local shopping cart",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("user", "u", "", "Sign in as this user before running the command")
	rootCmd.PersistentFlags().Duration("timeout", 15*time.Second, "Time allowed for remote sync and queued writes")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(removeCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withAgent builds the cart agent, signs in when --user is set, runs fn and
// waits for queued remote writes before closing.
func withAgent(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, _ := cmd.Flags().GetString("log-level")
	userID, _ := cmd.Flags().GetString("user")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	log := logger.New(logger.Options{
		Level:       level,
		Development: true,
		Out:         os.Stderr,
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if userID != "" {
		if err := a.Service.SignIn(ctx, userID); err != nil {
			return err
		}
		if st := a.Service.Status(); st.LastError != "" {
			fmt.Fprintf(os.Stderr, "warning: sync %s: %s\n", st.State, st.LastError)
		}
	}

	if err := fn(ctx, a); err != nil {
		return err
	}

	if err := a.Service.Flush(ctx); err != nil {
		return errors.Wrap(err, "queued cart writes did not finish")
	}
	return nil
}
