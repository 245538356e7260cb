package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	lockFileName          = ".export-all-tables.lock"
	dumpDirName           = "mbdump"
	timestampFile         = "TIMESTAMP"
	schemaSequenceFile    = "SCHEMA_SEQUENCE"
	replicationSeqFile    = "REPLICATION_SEQUENCE"
	copyingFile           = "COPYING"
	readmeFile            = "README"
	replicationBundleName = "replication-%d.tar.bz2"
)

var syncFilesystems = unix.Sync

// Options selects what an export run produces.
type Options struct {
	OutputDir           string
	TmpDir              string
	Compress            bool
	KeepFiles           bool
	Tables              []string
	WithReplication     bool
	WithFullExport      bool
	ReplicationCallback func(ctx context.Context, bundlePath string) error
}

// Validate rejects flag combinations that would produce nothing usable.
func (o Options) Validate() error {
	if !o.Compress && !o.KeepFiles {
		return fmt.Errorf("%w: --nocompress requires --keep-files", ErrInvalidOptions)
	}
	if !o.WithReplication && !o.WithFullExport {
		return fmt.Errorf("%w: nothing to do with --without-full-export and --without-replication", ErrInvalidOptions)
	}
	if o.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidOptions)
	}
	_, err := SelectTables(o.Tables)
	return err
}

// Result describes a finished export run.
type Result struct {
	RunID               string
	WorkDir             string
	Timestamp           time.Time
	SchemaSequence      int
	ReplicationSequence *int64
	ReplicationPacket   bool
	Dumps               []TableDump
	Artifacts           []string
	Preserved           bool
}

// SequencerConfig lists the collaborators of the export sequencer.
type SequencerConfig struct {
	Store    Store
	Archiver ArchiveSigner
	Clock    func() time.Time
	Logger   *zap.Logger
	// ReleaseStore, when set, is called once the snapshot is dumped, before any archiving.
	ReleaseStore func() error
}

// Sequencer runs full and incremental exports.
type Sequencer struct {
	store        Store
	archiver     ArchiveSigner
	clock        func() time.Time
	logger       *zap.Logger
	releaseStore func() error
}

// NewSequencer validates dependencies and constructs a Sequencer.
func NewSequencer(cfg SequencerConfig) (*Sequencer, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Archiver == nil {
		return nil, errMissingArchiver
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		store:        cfg.Store,
		archiver:     cfg.Archiver,
		clock:        clock,
		logger:       logger,
		releaseStore: cfg.ReleaseStore,
	}, nil
}

type runState struct {
	opts       Options
	result     *Result
	dumpDir    string
	pending    []string
	logger     *zap.Logger
	cleared    bool
	sequence   *int64
	controlSeq int
}

// Run performs one export. The work directory is removed afterwards unless files are kept or
// replication staging rows were already cleared by a run that then failed.
func (s *Sequencer) Run(ctx context.Context, opts Options) (result Result, err error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	tables, _ := SelectTables(opts.Tables)

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("export: create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(opts.OutputDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return Result{}, fmt.Errorf("export: acquire lock: %w", err)
	}
	if !locked {
		return Result{}, ErrLockContention
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			s.logger.Warn("failed to release export lock", zap.Error(unlockErr))
		}
	}()

	workDir, err := os.MkdirTemp(opts.TmpDir, "export-")
	if err != nil {
		return Result{}, fmt.Errorf("export: create work dir: %w", err)
	}
	runID := uuid.NewString()
	state := &runState{
		opts:    opts,
		result:  &Result{RunID: runID, WorkDir: workDir, Timestamp: s.clock().UTC()},
		dumpDir: filepath.Join(workDir, dumpDirName),
		logger:  s.logger.With(zap.String("run_id", runID)),
	}
	defer func() {
		result = *state.result
		if cleanupErr := s.cleanup(state, err); cleanupErr != nil {
			err = multierror.Append(err, cleanupErr).ErrorOrNil()
		}
	}()

	state.logger.Info("export started",
		zap.String("work_dir", workDir),
		zap.Strings("tables", tables),
		zap.Bool("replication", opts.WithReplication),
		zap.Bool("full_export", opts.WithFullExport))

	if err := os.MkdirAll(state.dumpDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("export: create dump dir: %w", err)
	}
	snapshotErr := s.dumpSnapshot(ctx, state, tables)
	s.release(state)
	if snapshotErr != nil {
		return Result{}, snapshotErr
	}
	if err := s.writeMarkers(state); err != nil {
		return Result{}, err
	}

	if state.result.ReplicationPacket && opts.Compress {
		if err := s.archiveReplication(ctx, state); err != nil {
			return Result{}, err
		}
	}
	if opts.WithFullExport && opts.Compress {
		if err := s.archiveFullExport(ctx, state, tables); err != nil {
			return Result{}, err
		}
	}

	syncFilesystems()
	state.logger.Info("export finished",
		zap.Int("artifacts", len(state.result.Artifacts)),
		zap.Duration("elapsed", s.clock().Sub(state.result.Timestamp)))
	return *state.result, nil
}

// release hands the storage connection back; a failure here does not affect the dumped files.
func (s *Sequencer) release(state *runState) {
	if s.releaseStore == nil {
		return
	}
	if err := s.releaseStore(); err != nil {
		state.logger.Warn("failed to release storage", zap.Error(err))
		return
	}
	state.logger.Debug("storage released")
}

// dumpSnapshot writes every selected table and the replication packet from one transaction.
func (s *Sequencer) dumpSnapshot(ctx context.Context, state *runState, tables []string) error {
	err := s.store.Snapshot(ctx, func(snapshot Snapshot) error {
		control, err := snapshot.Control(ctx)
		if err != nil {
			return err
		}
		state.controlSeq = control.CurrentSchemaSequence
		state.sequence = control.CurrentReplicationSequence

		if containsTable(tables, tableEditorSanitised) {
			if err := snapshot.CreateSanitizedEditorView(ctx); err != nil {
				return err
			}
		}
		for _, table := range tables {
			if table == tableReplicationControl {
				continue
			}
			if err := s.dumpTable(ctx, state, snapshot, table); err != nil {
				return err
			}
		}

		if state.opts.WithReplication {
			if err := s.advanceReplication(ctx, state, snapshot); err != nil {
				return err
			}
		}

		if err := s.dumpTable(ctx, state, snapshot, tableReplicationControl); err != nil {
			return err
		}
		if containsTable(tables, tableEditorSanitised) {
			return snapshot.DropSanitizedEditorView(ctx)
		}
		return nil
	})
	if err != nil {
		state.cleared = false
		state.result.ReplicationPacket = false
		return err
	}
	if state.cleared {
		state.result.Preserved = true
	}
	state.result.SchemaSequence = state.controlSeq
	state.result.ReplicationSequence = state.sequence
	return nil
}

func (s *Sequencer) advanceReplication(ctx context.Context, state *runState, snapshot Snapshot) error {
	pending, err := snapshot.PendingCount(ctx)
	if err != nil {
		return err
	}
	if pending == 0 && state.sequence != nil {
		state.logger.Info("no pending replication data", zap.Int64("replication_sequence", *state.sequence))
		return nil
	}

	next := int64(0)
	if state.sequence != nil {
		next = *state.sequence + 1
	}
	state.pending, err = snapshot.PendingTables(ctx)
	if err != nil {
		return err
	}
	for _, table := range ReplicationTables {
		if err := s.dumpTable(ctx, state, snapshot, table); err != nil {
			return err
		}
	}
	if err := snapshot.ClearPending(ctx); err != nil {
		return err
	}
	if err := snapshot.AdvanceReplicationSequence(ctx, next, state.result.Timestamp); err != nil {
		return err
	}
	state.cleared = true
	state.sequence = &next
	state.result.ReplicationPacket = true
	state.logger.Info("replication sequence advanced",
		zap.Int64("pending_rows", pending),
		zap.Int64("replication_sequence", next),
		zap.Strings("pending_tables", state.pending))
	return nil
}

func (s *Sequencer) dumpTable(ctx context.Context, state *runState, snapshot Snapshot, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(state.dumpDir, table)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	dump, err := snapshot.DumpTable(ctx, table, file)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("export: close %s: %w", path, closeErr)
	}
	if err != nil {
		return err
	}
	state.result.Dumps = append(state.result.Dumps, dump)
	state.logger.Info("table dumped",
		zap.String("table", table),
		zap.Int64("rows", dump.Rows),
		zap.String("size", humanize.Bytes(uint64(dump.Bytes))))
	return nil
}

func (s *Sequencer) writeMarkers(state *runState) error {
	replication := ""
	if state.opts.WithReplication && state.sequence != nil {
		replication = strconv.FormatInt(*state.sequence, 10)
	}
	markers := map[string]string{
		timestampFile:      FormatTimestamp(state.result.Timestamp),
		schemaSequenceFile: strconv.Itoa(state.controlSeq),
		replicationSeqFile: replication,
	}
	for name, content := range markers {
		path := filepath.Join(state.result.WorkDir, name)
		if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
			return fmt.Errorf("export: write %s: %w", name, err)
		}
	}
	readme, err := readmeText()
	if err != nil {
		return fmt.Errorf("export: load readme: %w", err)
	}
	if err := os.WriteFile(filepath.Join(state.result.WorkDir, readmeFile), readme, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", readmeFile, err)
	}
	return nil
}

func (s *Sequencer) archiveReplication(ctx context.Context, state *runState) error {
	bundle := filepath.Join(state.opts.OutputDir, fmt.Sprintf(replicationBundleName, *state.sequence))
	members := make([]string, 0, len(ReplicationTables))
	for _, table := range ReplicationTables {
		members = append(members, filepath.Join(dumpDirName, table))
	}
	if err := s.archive(ctx, state, bundle, MostRestrictiveLicense(state.pending), members); err != nil {
		return err
	}
	if state.opts.ReplicationCallback != nil {
		if err := state.opts.ReplicationCallback(ctx, bundle); err != nil {
			return fmt.Errorf("export: replication callback: %w", err)
		}
	}
	return nil
}

func (s *Sequencer) archiveFullExport(ctx context.Context, state *runState, tables []string) error {
	var public []string
	var private []string
	for _, group := range Groups {
		members := make([]string, 0, len(group.Tables))
		for _, table := range group.Tables {
			if containsTable(tables, table) {
				members = append(members, filepath.Join(dumpDirName, table))
			}
		}
		if len(members) == 0 {
			continue
		}
		bundle := filepath.Join(state.opts.OutputDir, group.BundleName())
		if err := s.archive(ctx, state, bundle, group.License, members); err != nil {
			return err
		}
		if group.Private() {
			private = append(private, bundle)
		} else {
			public = append(public, bundle)
		}
	}

	if len(public) > 0 {
		sums, err := writeChecksums(state.opts.OutputDir, public)
		if err != nil {
			return err
		}
		state.result.Artifacts = append(state.result.Artifacts, sums...)
		for _, path := range sums {
			signature, err := s.archiver.Sign(ctx, path)
			if err != nil {
				return err
			}
			if signature != "" {
				state.result.Artifacts = append(state.result.Artifacts, signature)
			}
		}
	}

	for _, bundle := range private {
		encrypted, err := s.archiver.Encrypt(ctx, bundle)
		if err != nil {
			return err
		}
		if encrypted == "" {
			continue
		}
		if err := os.Remove(bundle); err != nil {
			return fmt.Errorf("export: remove plaintext %s: %w", bundle, err)
		}
		state.result.Artifacts = replacePath(state.result.Artifacts, bundle, encrypted)
		state.logger.Info("private bundle encrypted", zap.String("bundle", encrypted))
	}
	return nil
}

// archive writes the license for the bundle into the work dir and compresses the members with the shared marker files.
func (s *Sequencer) archive(ctx context.Context, state *runState, bundle string, license License, members []string) error {
	text, err := license.Text()
	if err != nil {
		return fmt.Errorf("export: load license %s: %w", license, err)
	}
	if err := os.WriteFile(filepath.Join(state.result.WorkDir, copyingFile), text, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", copyingFile, err)
	}
	all := append([]string{copyingFile, readmeFile, timestampFile, schemaSequenceFile, replicationSeqFile}, members...)
	if err := s.archiver.Archive(ctx, bundle, state.result.WorkDir, all); err != nil {
		return err
	}
	state.result.Artifacts = append(state.result.Artifacts, bundle)

	size := "unknown"
	if info, statErr := os.Stat(bundle); statErr == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	state.logger.Info("bundle written",
		zap.String("bundle", bundle),
		zap.Stringer("license", license),
		zap.String("size", size))
	return nil
}

func (s *Sequencer) cleanup(state *runState, runErr error) error {
	keep := state.opts.KeepFiles
	if runErr != nil && state.result.Preserved {
		keep = true
		state.logger.Warn("export failed after clearing replication staging; keeping work dir",
			zap.String("work_dir", state.result.WorkDir),
			zap.Error(runErr))
	}
	if errors.Is(runErr, context.Canceled) {
		syncFilesystems()
	}
	if keep {
		state.logger.Info("export files kept", zap.String("work_dir", state.result.WorkDir))
		return nil
	}

	var result *multierror.Error
	if err := os.RemoveAll(state.result.WorkDir); err != nil {
		result = multierror.Append(result, fmt.Errorf("export: remove work dir: %w", err))
	}
	return result.ErrorOrNil()
}

func containsTable(tables []string, table string) bool {
	for _, candidate := range tables {
		if candidate == table {
			return true
		}
	}
	return false
}

func replacePath(paths []string, old, replacement string) []string {
	for index, path := range paths {
		if path == old {
			paths[index] = replacement
		}
	}
	return paths
}
