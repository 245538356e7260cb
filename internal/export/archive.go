package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

var commandContext = exec.CommandContext

// ArchiveSigner performs the compression, signing and encryption steps of an export.
type ArchiveSigner interface {
	// Archive writes a bzip2-compressed tarball of members, relative to baseDir, to archivePath.
	Archive(ctx context.Context, archivePath, baseDir string, members []string) error
	// Sign writes a detached signature of path and returns its location, or "" when signing is disabled.
	Sign(ctx context.Context, path string) (string, error)
	// Encrypt writes an encrypted copy of path and returns its location, or "" when encryption is disabled.
	Encrypt(ctx context.Context, path string) (string, error)
}

// CommandArchiverConfig configures the archiver that shells out to tar and gpg.
type CommandArchiverConfig struct {
	TarBinary        string
	GPGBinary        string
	SignKey          string
	EncryptRecipient string
	Logger           *zap.Logger
}

// CommandArchiver implements ArchiveSigner with tar and gpg.
type CommandArchiver struct {
	tar       string
	gpg       string
	signKey   string
	recipient string
	logger    *zap.Logger
}

// NewCommandArchiver builds a CommandArchiver, defaulting binaries to tar and gpg on PATH.
func NewCommandArchiver(cfg CommandArchiverConfig) *CommandArchiver {
	tar := strings.TrimSpace(cfg.TarBinary)
	if tar == "" {
		tar = "tar"
	}
	gpg := strings.TrimSpace(cfg.GPGBinary)
	if gpg == "" {
		gpg = "gpg"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandArchiver{
		tar:       tar,
		gpg:       gpg,
		signKey:   strings.TrimSpace(cfg.SignKey),
		recipient: strings.TrimSpace(cfg.EncryptRecipient),
		logger:    logger,
	}
}

func (a *CommandArchiver) Archive(ctx context.Context, archivePath, baseDir string, members []string) error {
	if len(members) == 0 {
		return fmt.Errorf("export: archive %s: no members", archivePath)
	}
	args := append([]string{"--create", "--bzip2", "--file", archivePath, "--directory", baseDir, "--"}, members...)
	return a.run(ctx, a.tar, args...)
}

func (a *CommandArchiver) Sign(ctx context.Context, path string) (string, error) {
	if a.signKey == "" {
		return "", nil
	}
	signature := path + ".asc"
	if err := a.run(ctx, a.gpg,
		"--batch", "--yes", "--armor",
		"--local-user", a.signKey,
		"--output", signature,
		"--detach-sign", path,
	); err != nil {
		return "", err
	}
	return signature, nil
}

func (a *CommandArchiver) Encrypt(ctx context.Context, path string) (string, error) {
	if a.recipient == "" {
		return "", nil
	}
	encrypted := path + ".gpg"
	if err := a.run(ctx, a.gpg,
		"--batch", "--yes", "--trust-model", "always",
		"--recipient", a.recipient,
		"--output", encrypted,
		"--encrypt", path,
	); err != nil {
		return "", err
	}
	return encrypted, nil
}

// RunCallback invokes a caller-supplied command with the bundle path appended to its arguments.
func (a *CommandArchiver) RunCallback(ctx context.Context, command, bundlePath string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	args := append(fields[1:], bundlePath)
	return a.run(ctx, fields[0], args...)
}

func (a *CommandArchiver) run(ctx context.Context, name string, args ...string) error {
	cmd := commandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = os.Stderr
	a.logger.Debug("running external tool", zap.String("tool", name), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &ToolError{Tool: name, Args: args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

var _ ArchiveSigner = (*CommandArchiver)(nil)
