// Package cli provides the command-line entry point for the
// multidimensional database server: configuration loading via
// spf13/viper, service wiring (server.Server, the Redis-backed worker
// gateway, the echo-based REST adapter), and graceful shutdown
// handling. Grounded on the teacher's cli/root.go: same
// cobra.Command/viper.BindPFlag/AutomaticEnv bootstrap and the same
// background-goroutine-plus-signal-channel shutdown shape, generalized
// from the teacher's RabbitMQ/CouchDB/JWT service trio to this server's
// persistence root, worker queue, and REST adapter.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"molap.evalgo.org/config"
	"molap.evalgo.org/logging"
	"molap.evalgo.org/queue"
	"molap.evalgo.org/server"
	"molap.evalgo.org/transport"
	"molap.evalgo.org/worker"
)

var cfgFile string

// RootCmd is the main entry point: "molapd [flags]".
var RootCmd = &cobra.Command{
	Use:   "molapd",
	Short: "an in-memory multidimensional database server",
	Long: `molapd

An in-memory multidimensional (OLAP) database server: dimensions with
consolidation hierarchies, cubes of sparse cells, rule-based
calculations, cell-level access control, optimistic-concurrency tokens,
and snapshot-plus-journal persistence, exposed over a small REST API.

Configuration can be provided via command-line flags, environment
variables (MOLAP_ prefix), or a YAML configuration file.`,
	Run: runServer,
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.molapd.yaml)")
	RootCmd.PersistentFlags().String("root-dir", "", "server persistence root directory")
	RootCmd.PersistentFlags().String("listen-addr", "", "HTTP listen address")
	RootCmd.PersistentFlags().String("redis-url", "", "Redis URL for the worker gateway")
	RootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	RootCmd.PersistentFlags().String("log-format", "", "log format (text|json)")

	viper.BindPFlag("root_dir", RootCmd.PersistentFlags().Lookup("root-dir"))
	viper.BindPFlag("listen_addr", RootCmd.PersistentFlags().Lookup("listen-addr"))
	viper.BindPFlag("redis_url", RootCmd.PersistentFlags().Lookup("redis-url"))
	viper.BindPFlag("log_level", RootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", RootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".molapd")
	}

	viper.SetEnvPrefix("MOLAP")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func runServer(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logger.WithField("component", "cli")

	srv := server.New(cfg.RootDir, cfg.SessionTTL)

	if cfg.RedisURL != "" {
		q, err := queue.New(context.Background(), queue.Config{RedisURL: cfg.RedisURL})
		if err != nil {
			log.WithError(err).Warn("worker queue unavailable, external login/functions disabled")
		} else {
			defer q.Close()
			srv.Worker = worker.New(q, log, cfg.WorkerTimeout)
		}
	}

	if err := loadExistingDatabases(srv); err != nil {
		log.WithError(err).Warn("could not reload persisted databases")
	}

	e := transport.New(srv)

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("starting server")
		if err := e.Start(cfg.ListenAddr); err != nil {
			log.WithError(err).Info("server stopped accepting connections")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("echo shutdown")
	}
	if err := srv.SaveAll(); err != nil {
		log.WithError(err).Error("save on shutdown")
	}
}

// loadExistingDatabases restores every database directory already
// present under the server's persistence root (spec §4.7: a server
// restart must pick back up where the last save left off).
func loadExistingDatabases(srv *server.Server) error {
	entries, err := os.ReadDir(srv.Root())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := srv.LoadDatabase(entry.Name()); err != nil {
			return fmt.Errorf("load database %q: %w", entry.Name(), err)
		}
	}
	return nil
}
