package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/config"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/database"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/export"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type exportFlags struct {
	configFile         string
	compress           bool
	noCompress         bool
	keepFiles          bool
	tables             []string
	withReplication    bool
	withoutReplication bool
	withFullExport     bool
	withoutFullExport  bool
	checkCompleteness  bool
}

func newRootCommand() *cobra.Command {
	flags := &exportFlags{}
	configViper := config.NewViper()

	cmd := &cobra.Command{
		Use:           "export-all-tables",
		Short:         "Dump every exported table into bundles and an optional replication packet",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageError{err: fmt.Errorf("unexpected arguments: %v", args)}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, configViper, flags)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	defaults := config.NewViper()
	fs := cmd.Flags()
	fs.StringVar(&flags.configFile, "config", "", "Path to configuration file")
	fs.String("output-dir", defaults.GetString("export.output_dir"), "Directory receiving bundles, checksums and the lock file")
	fs.String("tmp-dir", defaults.GetString("export.tmp_dir"), "Directory holding the per-run work directory")
	fs.String("database", defaults.GetString("database.dsn"), "SQLite path or PostgreSQL DSN")
	fs.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	fs.String("replication-callback", defaults.GetString("export.replication_callback"), "Command run with the path of each new replication bundle")
	fs.BoolVar(&flags.compress, "compress", true, "Archive the dumps into compressed bundles")
	fs.BoolVar(&flags.noCompress, "nocompress", false, "Leave the dumps uncompressed (requires --keep-files)")
	fs.BoolVar(&flags.keepFiles, "keep-files", false, "Keep the work directory after the run")
	fs.StringArrayVar(&flags.tables, "table", nil, "Export only this table (repeatable)")
	fs.BoolVar(&flags.withReplication, "with-replication", false, "Produce a replication packet")
	fs.BoolVar(&flags.withoutReplication, "without-replication", false, "Do not produce a replication packet")
	fs.BoolVar(&flags.withFullExport, "with-full-export", true, "Produce the full export bundles")
	fs.BoolVar(&flags.withoutFullExport, "without-full-export", false, "Do not produce the full export bundles")
	fs.BoolVar(&flags.checkCompleteness, "check-completeness", false, "Compare the exported table list with the schema and exit")

	for key, flag := range map[string]string{
		"export.output_dir":           "output-dir",
		"export.tmp_dir":              "tmp-dir",
		"database.dsn":                "database",
		"log.level":                   "log-level",
		"export.replication_callback": "replication-callback",
	} {
		if err := configViper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

// options resolves the paired flags; conflicting pairs are usage errors.
func (f *exportFlags) options(cmd *cobra.Command, cfg config.ExportConfig) (export.Options, error) {
	changed := cmd.Flags().Changed
	if changed("compress") && changed("nocompress") && f.compress && f.noCompress {
		return export.Options{}, errors.New("--compress and --nocompress are mutually exclusive")
	}
	if changed("with-replication") && changed("without-replication") {
		return export.Options{}, errors.New("--with-replication and --without-replication are mutually exclusive")
	}
	if changed("with-full-export") && changed("without-full-export") {
		return export.Options{}, errors.New("--with-full-export and --without-full-export are mutually exclusive")
	}

	opts := export.Options{
		OutputDir:       cfg.OutputDir,
		TmpDir:          cfg.TmpDir,
		Compress:        f.compress && !f.noCompress,
		KeepFiles:       f.keepFiles,
		Tables:          f.tables,
		WithReplication: f.withReplication && !f.withoutReplication,
		WithFullExport:  f.withFullExport && !f.withoutFullExport,
	}
	return opts, opts.Validate()
}

func runExport(cmd *cobra.Command, configViper *viper.Viper, flags *exportFlags) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	if flags.configFile != "" {
		configViper.SetConfigFile(flags.configFile)
		if err := configViper.ReadInConfig(); err != nil {
			return usageError{err: err}
		}
	}
	cfg, err := config.LoadExport(configViper)
	if err != nil {
		return usageError{err: err}
	}

	var opts export.Options
	if !flags.checkCompleteness {
		opts, err = flags.options(cmd, cfg)
		if err != nil {
			return usageError{err: err}
		}
	}

	logger, err := logging.NewCLILogger(cfg.LogLevel)
	if err != nil {
		return usageError{err: err}
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := export.NewDatabaseStore(db)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if flags.checkCompleteness {
		report, err := export.CheckCompleteness(ctx, store)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report.Render())
		return nil
	}

	archiver := export.NewCommandArchiver(export.CommandArchiverConfig{
		TarBinary:        cfg.TarBinary,
		GPGBinary:        cfg.GPGBinary,
		SignKey:          cfg.GPGSignKey,
		EncryptRecipient: cfg.GPGEncryptKey,
		Logger:           logger,
	})
	if cfg.ReplicationCallback != "" {
		opts.ReplicationCallback = func(ctx context.Context, bundlePath string) error {
			return archiver.RunCallback(ctx, cfg.ReplicationCallback, bundlePath)
		}
	}

	sequencer, err := export.NewSequencer(export.SequencerConfig{
		Store:        store,
		Archiver:     archiver,
		Clock:        time.Now,
		Logger:       logger,
		ReleaseStore: sqlDB.Close,
	})
	if err != nil {
		return err
	}

	result, err := sequencer.Run(ctx, opts)
	if err != nil {
		if result.Preserved {
			logger.Error("replication staging rows were cleared; work directory preserved",
				zap.String("work_dir", result.WorkDir))
		}
		return err
	}

	out := cmd.OutOrStdout()
	if result.ReplicationSequence != nil {
		fmt.Fprintf(out, "replication sequence: %d\n", *result.ReplicationSequence)
	}
	for _, artifact := range result.Artifacts {
		fmt.Fprintln(out, artifact)
	}
	if opts.KeepFiles {
		fmt.Fprintf(out, "work directory: %s\n", result.WorkDir)
	}
	return nil
}
