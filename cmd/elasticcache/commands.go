package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CreativeUnicorns/elasticcache"
	"github.com/CreativeUnicorns/elasticcache/api"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			apiServer, err := api.NewServer(api.Config{
				ListenAddress: s.cfg.Server.ListenAddress,
				Backend:       s.backend,
				Logger:        s.logger,
			})
			if err != nil {
				return err
			}

			gc := elasticcache.NewGarbageCollector(s.backend, s.cfg.Server.GCInterval, s.logger)
			gc.Start()
			defer gc.Stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- apiServer.Start()
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-errCh:
				return err
			case <-quit:
			}
			s.logger.Info("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := apiServer.Stop(ctx); err != nil {
				s.logger.Error("Server shutdown failed", "error", err)
				return err
			}

			s.logger.Info("Server exited gracefully")
			return nil
		},
	}

	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().Duration("gc-interval", 0, "Interval between garbage collections (0 disables)")

	return cmd
}

func gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove expired entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				return s.backend.CollectGarbage(ctx)
			})
		},
	}
}

func flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Remove every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				return s.backend.Flush(ctx)
			})
		},
	}
}

func flushTagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush-tag <tag>...",
		Short: "Remove every entry carrying any of the given tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				return s.backend.FlushByTags(ctx, args...)
			})
		},
	}
}

func findCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <tag>",
		Short: "List the identifiers of entries carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				ids, err := s.backend.FindIdentifiersByTag(ctx, args[0])
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <identifier>",
		Short: "Print the content of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				content, found, err := s.backend.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("entry %q not found", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), content)
				return nil
			})
		},
	}
}

func setCmd() *cobra.Command {
	var (
		tags     []string
		lifetime time.Duration
	)

	cmd := &cobra.Command{
		Use:   "set <identifier> <content>",
		Short: "Store an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				if cmd.Flags().Changed("lifetime") {
					return s.backend.SetWithLifetime(ctx, args[0], args[1], tags, lifetime)
				}
				return s.backend.Set(ctx, args[0], args[1], tags)
			})
		},
	}

	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag to attach (repeatable)")
	cmd.Flags().DurationVar(&lifetime, "lifetime", 0, "Entry lifetime (0 means unlimited; default from configuration)")

	return cmd
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <identifier>",
		Short: "Remove an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				removed, err := s.backend.Remove(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return errors.New("nothing removed")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

// withSession opens a session for a one-shot command and closes it once fn returns.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}
