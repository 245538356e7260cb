package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedCommand struct {
	name string
	args []string
}

func stubCommands(t *testing.T, mode string) *[]capturedCommand {
	t.Helper()
	var captured []capturedCommand
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append(captured, capturedCommand{name: name, args: append([]string(nil), args...)})
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("ARCHIVER_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return &captured
}

func TestArchiveInvokesTarWithBzip2(t *testing.T) {
	captured := stubCommands(t, "success")
	archiver := NewCommandArchiver(CommandArchiverConfig{TarBinary: "/usr/bin/tar"})

	err := archiver.Archive(context.Background(), "/out/mbdump.tar.bz2", "/work", []string{"COPYING", "mbdump/artist"})
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	call := (*captured)[0]
	assert.Equal(t, "/usr/bin/tar", call.name)
	assert.Equal(t, []string{"--create", "--bzip2", "--file", "/out/mbdump.tar.bz2", "--directory", "/work", "--", "COPYING", "mbdump/artist"}, call.args)
}

func TestArchiveRejectsEmptyMemberList(t *testing.T) {
	captured := stubCommands(t, "success")
	archiver := NewCommandArchiver(CommandArchiverConfig{})

	err := archiver.Archive(context.Background(), "/out/empty.tar.bz2", "/work", nil)
	assert.Error(t, err)
	assert.Empty(t, *captured)
}

func TestToolFailureWrapsExternalToolError(t *testing.T) {
	stubCommands(t, "failure")
	archiver := NewCommandArchiver(CommandArchiverConfig{})

	err := archiver.Archive(context.Background(), "/out/mbdump.tar.bz2", "/work", []string{"COPYING"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalTool)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "tar", toolErr.Tool)
	assert.Contains(t, toolErr.Stderr, "tar: cannot open")
}

func TestSignAndEncryptAreSkippedWithoutKeys(t *testing.T) {
	captured := stubCommands(t, "success")
	archiver := NewCommandArchiver(CommandArchiverConfig{})

	signature, err := archiver.Sign(context.Background(), "/out/MD5SUMS")
	require.NoError(t, err)
	assert.Empty(t, signature)

	encrypted, err := archiver.Encrypt(context.Background(), "/out/mbdump-private.tar.bz2")
	require.NoError(t, err)
	assert.Empty(t, encrypted)
	assert.Empty(t, *captured)
}

func TestSignAndEncryptUseConfiguredKeys(t *testing.T) {
	captured := stubCommands(t, "success")
	archiver := NewCommandArchiver(CommandArchiverConfig{GPGBinary: "gpg2", SignKey: "EXPORT-KEY", EncryptRecipient: "ops@example.com"})

	signature, err := archiver.Sign(context.Background(), "/out/MD5SUMS")
	require.NoError(t, err)
	assert.Equal(t, "/out/MD5SUMS.asc", signature)

	encrypted, err := archiver.Encrypt(context.Background(), "/out/mbdump-private.tar.bz2")
	require.NoError(t, err)
	assert.Equal(t, "/out/mbdump-private.tar.bz2.gpg", encrypted)

	require.Len(t, *captured, 2)
	assert.Equal(t, "gpg2", (*captured)[0].name)
	assert.Contains(t, (*captured)[0].args, "EXPORT-KEY")
	assert.Contains(t, (*captured)[0].args, "--detach-sign")
	assert.Contains(t, (*captured)[1].args, "ops@example.com")
	assert.Contains(t, (*captured)[1].args, "--encrypt")
}

func TestRunCallbackAppendsBundlePath(t *testing.T) {
	captured := stubCommands(t, "success")
	archiver := NewCommandArchiver(CommandArchiverConfig{})

	require.NoError(t, archiver.RunCallback(context.Background(), "/usr/local/bin/publish --quiet", "/out/replication-4.tar.bz2"))
	require.Len(t, *captured, 1)
	assert.Equal(t, "/usr/local/bin/publish", (*captured)[0].name)
	assert.Equal(t, []string{"--quiet", "/out/replication-4.tar.bz2"}, (*captured)[0].args)
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("ARCHIVER_HELPER_MODE") {
	case "failure":
		fmt.Fprintln(os.Stderr, "tar: cannot open: No such file or directory")
		os.Exit(2)
	default:
		os.Exit(0)
	}
}
