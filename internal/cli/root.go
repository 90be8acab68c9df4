package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/logging"
	"github.com/lazypower/rapport/internal/store"
)

var (
	configPath string
	dbOverride string
)

var rootCmd = &cobra.Command{
	Use:   "rapport",
	Short: "Per-user favorability scores for conversational agents",
	Long: "Rapport keeps a favorability level for every user of an agent, per group or private session,\n" +
		"and maps it to a behavior tier. Single Go binary backed by SQLite.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (toml, yaml or json)")
	rootCmd.PersistentFlags().StringVar(&dbOverride, "db", "", "database path (overrides database.path)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tierCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(userCmd)
}

// app bundles what every data command needs.
type app struct {
	cfg config.Config
	log *zap.Logger
	db  *store.DB
	eng *engine.Engine
}

func (a *app) Close() {
	if a.eng != nil {
		a.eng.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.log.Sync()
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	if dbOverride != "" {
		cfg.Database.Path = dbOverride
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// openDB resolves the database path and opens it, migrating if needed.
func openDB(cfg config.Config, log *zap.Logger) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath, store.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// setup loads config, opens the store and builds the engine. Config and
// migration failures are fatal.
func setup() (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	table, err := cfg.TierTable()
	if err != nil {
		return nil, err
	}
	a.db, err = openDB(cfg, log)
	if err != nil {
		return nil, err
	}
	a.eng, err = engine.New(a.db, table, cfg, engine.WithLogger(log))
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// sessionArg parses the "type:id" session argument, e.g. group:12345.
func sessionArg(s string) (store.SessionKey, error) {
	return store.ParseSessionKey(s)
}
