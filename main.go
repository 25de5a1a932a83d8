package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stevemurr/treestore/config"
	"github.com/stevemurr/treestore/handler"
	"github.com/stevemurr/treestore/schema"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/store"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file")
	rootCmd.AddCommand(serveCmd, docCmd, blobCmd)
}

var rootCmd = &cobra.Command{
	Use:           "treestore",
	Short:         "Key-path document and blob storage",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve documents, blobs and schemas over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := open()
		if err != nil {
			return err
		}
		defer env.close()

		h := handler.New(env.docs, env.blobs, env.schemas, env.log)
		wrapped := handlers.CORS(
			handlers.AllowedOrigins(env.cfg.Origins()),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(h)

		out := env.log.Logger.Writer()
		defer out.Close()
		server := &http.Server{
			Addr:    env.cfg.Addr(),
			Handler: handlers.CombinedLoggingHandler(out, wrapped),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdown); err != nil {
				env.log.WithError(err).Warn("shutdown")
			}
		}()

		env.log.WithFields(logrus.Fields{
			"addr":  server.Addr,
			"store": env.cfg.StoreBackend,
			"blobs": env.cfg.BlobBackend,
			"data":  env.cfg.DataDir,
		}).Info("treestore starting")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		env.log.Info("treestore stopped")
		return nil
	},
}

// environment is everything a command needs, built from the config file
// and the environment.
type environment struct {
	cfg     *config.Config
	log     *logrus.Entry
	raw     *storage.InstrumentedDocuments
	docs    *schema.Guarded
	blobs   *storage.InstrumentedBlobs
	schemas *schema.Registry
}

func open() (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	log := logrus.NewEntry(logger)

	raw, err := store.NewDocumentStorage(cfg.StoreOptions(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create store (backend=%s): %w", cfg.StoreBackend, err)
	}
	blobs, err := store.NewBinaryStorage(cfg.StoreOptions(log))
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to create blob store (backend=%s): %w", cfg.BlobBackend, err)
	}
	reg := schema.NewRegistry(raw)
	return &environment{
		cfg:     cfg,
		log:     log,
		raw:     raw,
		docs:    schema.Guard(raw, reg),
		blobs:   blobs,
		schemas: reg,
	}, nil
}

func (e *environment) close() {
	if err := e.blobs.Close(); err != nil {
		e.log.WithError(err).Warn("close blob store")
	}
	if err := e.raw.Close(); err != nil {
		e.log.WithError(err).Warn("close store")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "treestore:", err)
		os.Exit(1)
	}
}
