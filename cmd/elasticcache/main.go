// Package main is the entry point for the elasticcache command.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CreativeUnicorns/elasticcache"
	"github.com/CreativeUnicorns/elasticcache/config"
	"github.com/CreativeUnicorns/elasticcache/store"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "elasticcache",
		Short:         "Tag-aware cache backed by Elasticsearch",
		Long:          "Serve and administer a tag-indexed, TTL-aware cache stored in an Elasticsearch index",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flags.String("host", "localhost", "Elasticsearch hostname")
	flags.Int("port", 9200, "Elasticsearch port")
	flags.String("index", elasticcache.DefaultIndexName, "Cache index name")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		serveCmd(),
		gcCmd(),
		flushCmd(),
		flushTagCmd(),
		findCmd(),
		getCmd(),
		setCmd(),
		removeCmd(),
	)

	return rootCmd
}

// session is an opened backend together with its configuration and logger.
type session struct {
	cfg     *config.Config
	logger  *elasticcache.DefaultLogger
	backend *elasticcache.Backend
}

func (s *session) Close() {
	if err := s.backend.Close(); err != nil {
		s.logger.Error("Failed to close backend", "error", err)
	}
}

// openSession loads the configuration for cmd, connects to the cluster and initializes the
// backend.
func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger()

	es, err := store.NewElasticStore(ctx, cfg.ElasticConfig())
	if err != nil {
		return nil, err
	}

	backend, err := elasticcache.New(ctx, es, cfg.BackendOptions(logger)...)
	if err != nil {
		_ = es.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, backend: backend}, nil
}
