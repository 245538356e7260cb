package export_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/database"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/export"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type archiveCall struct {
	path    string
	members []string
	copying string
}

type fakeSigner struct {
	archives  []archiveCall
	signed    []string
	encrypted []string
	signing   bool
	encrypt   bool
}

func (f *fakeSigner) Archive(_ context.Context, archivePath, baseDir string, members []string) error {
	copying, err := os.ReadFile(filepath.Join(baseDir, "COPYING"))
	if err != nil {
		return err
	}
	f.archives = append(f.archives, archiveCall{path: archivePath, members: members, copying: string(copying)})
	return os.WriteFile(archivePath, []byte(strings.Join(members, "\n")), 0o644)
}

func (f *fakeSigner) Sign(_ context.Context, path string) (string, error) {
	if !f.signing {
		return "", nil
	}
	f.signed = append(f.signed, filepath.Base(path))
	signature := path + ".asc"
	return signature, os.WriteFile(signature, []byte("signature"), 0o644)
}

func (f *fakeSigner) Encrypt(_ context.Context, path string) (string, error) {
	if !f.encrypt {
		return "", nil
	}
	f.encrypted = append(f.encrypted, filepath.Base(path))
	encrypted := path + ".gpg"
	return encrypted, os.WriteFile(encrypted, []byte("ciphertext"), 0o644)
}

func (f *fakeSigner) archiveNames() []string {
	names := make([]string, 0, len(f.archives))
	for _, call := range f.archives {
		names = append(names, filepath.Base(call.path))
	}
	return names
}

type exportFixture struct {
	db        *gorm.DB
	store     *export.DatabaseStore
	signer    *fakeSigner
	sequencer *export.Sequencer
	outputDir string
	tmpDir    string
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	root := t.TempDir()
	db, err := database.Open(filepath.Join(root, "export.db"), zap.NewNop())
	require.NoError(t, err)
	store, err := export.NewDatabaseStore(db)
	require.NoError(t, err)
	signer := &fakeSigner{}
	sequencer, err := export.NewSequencer(export.SequencerConfig{
		Store:    store,
		Archiver: signer,
		Clock:    func() time.Time { return time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	outputDir := filepath.Join(root, "out")
	tmpDir := filepath.Join(root, "tmp")
	require.NoError(t, os.MkdirAll(tmpDir, 0o755))
	return &exportFixture{db: db, store: store, signer: signer, sequencer: sequencer, outputDir: outputDir, tmpDir: tmpDir}
}

func (f *exportFixture) options() export.Options {
	return export.Options{OutputDir: f.outputDir, TmpDir: f.tmpDir, Compress: true}
}

func (f *exportFixture) stagePendingChange(t *testing.T, table string) {
	t.Helper()
	change := export.PendingChange{Table: table, Op: "i", XID: 42}
	require.NoError(t, f.db.Create(&change).Error)
	require.NoError(t, f.db.Create(&export.PendingData{SeqID: change.SeqID, IsKey: false, Data: `"id"='1'`}).Error)
}

func (f *exportFixture) control(t *testing.T) export.ReplicationControl {
	t.Helper()
	var control export.ReplicationControl
	require.NoError(t, f.db.Take(&control).Error)
	return control
}

func dumpedFiles(t *testing.T, workDir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(workDir, "mbdump"))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func readMarker(t *testing.T, workDir, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(workDir, name))
	require.NoError(t, err)
	return strings.TrimSpace(string(content))
}

func TestOptionsValidateRejectsUnusableCombinations(t *testing.T) {
	testCases := []struct {
		name    string
		options export.Options
	}{
		{name: "nocompress without keep files", options: export.Options{OutputDir: "out", WithFullExport: true}},
		{name: "nothing to export", options: export.Options{OutputDir: "out", Compress: true}},
		{name: "unknown table", options: export.Options{OutputDir: "out", Compress: true, WithFullExport: true, Tables: []string{"nope"}}},
		{name: "missing output dir", options: export.Options{Compress: true, WithFullExport: true}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.ErrorIs(t, testCase.options.Validate(), export.ErrInvalidOptions)
		})
	}
}

func TestRunWithTableFilterProducesOnlyRequestedFiles(t *testing.T) {
	fixture := newExportFixture(t)
	options := fixture.options()
	options.Compress = false
	options.KeepFiles = true
	options.WithFullExport = true
	options.Tables = []string{"artist"}

	result, err := fixture.sequencer.Run(context.Background(), options)
	require.NoError(t, err)

	assert.Equal(t, []string{"artist", "replication_control"}, dumpedFiles(t, result.WorkDir))
	assert.Empty(t, fixture.signer.archives)
	assert.Equal(t, "", readMarker(t, result.WorkDir, "REPLICATION_SEQUENCE"))
	assert.Equal(t, "29", readMarker(t, result.WorkDir, "SCHEMA_SEQUENCE"))
	assert.Equal(t, "2026-03-02 10:30:00+00", readMarker(t, result.WorkDir, "TIMESTAMP"))
}

func TestRunWithTableFilterIncludesReplicationTables(t *testing.T) {
	fixture := newExportFixture(t)
	fixture.stagePendingChange(t, "artist")
	options := fixture.options()
	options.Compress = false
	options.KeepFiles = true
	options.WithReplication = true
	options.Tables = []string{"artist"}

	result, err := fixture.sequencer.Run(context.Background(), options)
	require.NoError(t, err)

	assert.Equal(t, []string{"artist", "dbmirror_pending", "dbmirror_pendingdata", "replication_control"}, dumpedFiles(t, result.WorkDir))
}

func TestReplicationSequenceStartsAtZeroAndHoldsWithoutNewData(t *testing.T) {
	fixture := newExportFixture(t)
	fixture.stagePendingChange(t, "release")
	options := fixture.options()
	options.KeepFiles = true
	options.WithReplication = true

	var callbacks []string
	options.ReplicationCallback = func(_ context.Context, bundle string) error {
		callbacks = append(callbacks, filepath.Base(bundle))
		return nil
	}

	first, err := fixture.sequencer.Run(context.Background(), options)
	require.NoError(t, err)
	require.NotNil(t, first.ReplicationSequence)
	assert.Equal(t, int64(0), *first.ReplicationSequence)
	assert.True(t, first.ReplicationPacket)
	assert.Equal(t, "0", readMarker(t, first.WorkDir, "REPLICATION_SEQUENCE"))

	control := fixture.control(t)
	require.NotNil(t, control.CurrentReplicationSequence)
	assert.Equal(t, int64(0), *control.CurrentReplicationSequence)
	var pending int64
	require.NoError(t, fixture.db.Model(&export.PendingChange{}).Count(&pending).Error)
	assert.Zero(t, pending)
	require.NoError(t, fixture.db.Model(&export.PendingData{}).Count(&pending).Error)
	assert.Zero(t, pending)

	assert.Equal(t, []string{"replication-0.tar.bz2"}, fixture.signer.archiveNames())
	assert.Equal(t, []string{"replication-0.tar.bz2"}, callbacks)
	publicDomain, err := export.LicensePublicDomain.Text()
	require.NoError(t, err)
	assert.Equal(t, string(publicDomain), fixture.signer.archives[0].copying)

	second, err := fixture.sequencer.Run(context.Background(), options)
	require.NoError(t, err)
	require.NotNil(t, second.ReplicationSequence)
	assert.Equal(t, int64(0), *second.ReplicationSequence)
	assert.False(t, second.ReplicationPacket)
	assert.Equal(t, "0", readMarker(t, second.WorkDir, "REPLICATION_SEQUENCE"))
	assert.Len(t, fixture.signer.archives, 1)
	assert.Len(t, callbacks, 1)
}

func TestReplicationBundleUsesMostRestrictiveLicense(t *testing.T) {
	fixture := newExportFixture(t)
	fixture.stagePendingChange(t, "artist")
	fixture.stagePendingChange(t, "editor_collection")
	options := fixture.options()
	options.WithReplication = true

	_, err := fixture.sequencer.Run(context.Background(), options)
	require.NoError(t, err)

	restricted, err := export.LicenseRestricted.Text()
	require.NoError(t, err)
	require.Len(t, fixture.signer.archives, 1)
	assert.Equal(t, string(restricted), fixture.signer.archives[0].copying)
}

func TestFullExportBundlesSignsAndEncrypts(t *testing.T) {
	fixture := newExportFixture(t)
	fixture.signer.signing = true
	fixture.signer.encrypt = true
	options := fixture.options()
	options.WithFullExport = true

	result, err := fixture.sequencer.Run(context.Background(), options)
	require.NoError(t, err)

	names := fixture.signer.archiveNames()
	assert.Contains(t, names, "mbdump.tar.bz2")
	assert.Contains(t, names, "mbdump-editor.tar.bz2")
	assert.Contains(t, names, "mbdump-private.tar.bz2")
	assert.Len(t, names, len(export.Groups))
	assert.Equal(t, []string{"MD5SUMS", "SHA256SUMS"}, fixture.signer.signed)
	assert.Equal(t, []string{"mbdump-private.tar.bz2"}, fixture.signer.encrypted)

	_, err = os.Stat(filepath.Join(fixture.outputDir, "mbdump-private.tar.bz2"))
	assert.True(t, os.IsNotExist(err), "plaintext private bundle must be removed")
	assert.Contains(t, result.Artifacts, filepath.Join(fixture.outputDir, "mbdump-private.tar.bz2.gpg"))
	assert.Contains(t, result.Artifacts, filepath.Join(fixture.outputDir, "SHA256SUMS.asc"))

	sums, err := os.ReadFile(filepath.Join(fixture.outputDir, "MD5SUMS"))
	require.NoError(t, err)
	assert.Contains(t, string(sums), "*mbdump.tar.bz2")
	assert.NotContains(t, string(sums), "private")

	for _, call := range fixture.signer.archives {
		assert.Contains(t, call.members, "COPYING")
		assert.Contains(t, call.members, "README")
		assert.Contains(t, call.members, "TIMESTAMP")
	}

	_, err = os.Stat(result.WorkDir)
	assert.True(t, os.IsNotExist(err), "work dir must be removed without --keep-files")
}

func TestSanitizedEditorHidesCredentials(t *testing.T) {
	fixture := newExportFixture(t)
	editor := catalog.Editor{Name: "alice", Email: "alice@example.com", Password: "secret-hash", Bio: "collector"}
	require.NoError(t, fixture.db.Create(&editor).Error)
	options := fixture.options()
	options.Compress = false
	options.KeepFiles = true
	options.WithFullExport = true
	options.Tables = []string{"editor"}

	result, err := fixture.sequencer.Run(context.Background(), options)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(result.WorkDir, "mbdump", "editor_sanitised"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "alice")
	assert.Contains(t, string(content), "collector")
	assert.NotContains(t, string(content), "alice@example.com")
	assert.NotContains(t, string(content), "secret-hash")
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	fixture := newExportFixture(t)
	require.NoError(t, os.MkdirAll(fixture.outputDir, 0o755))
	held := flock.New(filepath.Join(fixture.outputDir, ".export-all-tables.lock"))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = held.Unlock() })

	options := fixture.options()
	options.WithFullExport = true
	_, err = fixture.sequencer.Run(context.Background(), options)
	assert.ErrorIs(t, err, export.ErrLockContention)
	assert.Empty(t, fixture.signer.archives)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	fixture := newExportFixture(t)
	fixture.stagePendingChange(t, "artist")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	options := fixture.options()
	options.WithFullExport = true
	options.WithReplication = true
	result, err := fixture.sequencer.Run(ctx, options)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, result.Preserved)

	var pending int64
	require.NoError(t, fixture.db.Model(&export.PendingChange{}).Count(&pending).Error)
	assert.Equal(t, int64(1), pending, "cancelled run must leave staging rows in place")
}

func TestCheckCompletenessReportsSchemaDrift(t *testing.T) {
	fixture := newExportFixture(t)

	report, err := export.CheckCompleteness(context.Background(), fixture.store)
	require.NoError(t, err)
	assert.True(t, report.Complete(), "unexpected drift: %+v", report)

	require.NoError(t, fixture.db.Exec("CREATE TABLE orphan (id INTEGER PRIMARY KEY)").Error)
	report, err = export.CheckCompleteness(context.Background(), fixture.store)
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan"}, report.Missing)
	assert.Empty(t, report.Unexpected)
	assert.Contains(t, report.Render(), "orphan")
}

func TestStorageIsReleasedBeforeArchiving(t *testing.T) {
	fixture := newExportFixture(t)
	sqlDB, err := fixture.db.DB()
	require.NoError(t, err)

	releases := 0
	archivedBeforeRelease := -1
	sequencer, err := export.NewSequencer(export.SequencerConfig{
		Store:    fixture.store,
		Archiver: fixture.signer,
		ReleaseStore: func() error {
			releases++
			archivedBeforeRelease = len(fixture.signer.archives)
			return sqlDB.Close()
		},
	})
	require.NoError(t, err)

	options := fixture.options()
	options.WithFullExport = true
	_, err = sequencer.Run(context.Background(), options)
	require.NoError(t, err)

	assert.Equal(t, 1, releases)
	assert.Equal(t, 0, archivedBeforeRelease, "storage must be released before the first bundle")
	assert.NotEmpty(t, fixture.signer.archives)
	assert.Error(t, sqlDB.Ping(), "connection pool must be closed")
}
