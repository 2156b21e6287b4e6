package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/sungazer/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

// cli carries state shared by all subcommands.
type cli struct {
	configFile string
	envFile    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "sungazer",
		Short:         "Aggregate solar site telemetry from SolarEdge, Enphase and Generac",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newServeCmd(c),
		newFetchCmd(c),
		newCredentialsCmd(c),
	)

	return root
}

// load reads the dotenv file, the configuration and installs the logger.
func (c *cli) load() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	v := viper.New()
	if c.configFile != "" {
		v.SetConfigFile(c.configFile)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	c.cfg = cfg

	slog.SetDefault(newLogger(cfg, os.Stderr))
	return nil
}
