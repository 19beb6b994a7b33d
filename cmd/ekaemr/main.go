package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/SanteonNL/ekaemr/cmd/ekaemr/config"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/converter"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/client"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/coding"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/fhir/conceptmap"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/mapper"
	"github.com/SanteonNL/ekaemr/cmd/ekaemr/store"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ekaemr",
		Short:         "Convert FHIR R4 Bundles to EKA EMR records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env", ".env", "path to an optional .env file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(convertCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr })).
		With().
		Timestamp().
		Caller().
		Logger()
}

// app holds the services shared by serve and convert
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	client    *client.FHIRClient
	converter *converter.ConverterService
	cache     *converter.ResultCache
	db        *sqlx.DB
	store     *store.ConversionStore
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp wires the converter. The database is only opened when withStore is
// set and DATABASE_URL is configured.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, withStore bool) (*app, error) {
	a := &app{
		cfg:    cfg,
		log:    log,
		client: client.NewFHIRClient(cfg.ClientConfig(), log),
	}

	repo := conceptmap.NewConceptMapRepository(log, cfg.ConceptMapDir)
	if err := repo.LoadConceptMaps(); err != nil {
		return nil, fmt.Errorf("failed to load concept maps: %w", err)
	}
	if err := repo.LoadRemote(ctx, a.client, cfg.ConceptMapURLs); err != nil {
		return nil, fmt.Errorf("failed to load remote concept maps: %w", err)
	}

	var translator coding.Translator
	if repo.Count() > 0 {
		translator = conceptmap.NewConceptMapService(repo, log)
	}
	resolver := coding.NewResolver(cfg.ResolverConfig(), translator, log)

	a.cache = converter.NewResultCache(cfg.CacheConfig(), log)

	svc, err := converter.NewConverterService(converter.ConverterConfig{
		Log:      log,
		Registry: mapper.DefaultRegistry(),
		Resolver: resolver,
		Cache:    a.cache,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create converter: %w", err)
	}
	a.converter = svc

	if withStore && cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.db = db
		a.store = store.NewConversionStore(db, log)
		if err := a.store.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	log.Info().
		Int("concept_maps", repo.Count()).
		Strs("priority_systems", resolver.PrioritySystems()).
		Bool("store", a.store != nil).
		Msg("Converter ready")

	return a, nil
}

func (a *app) defaultOptions() converter.Options {
	return converter.Options{
		Lenient: a.cfg.Lenient,
		Workers: a.cfg.Workers,
	}
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Stop()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
