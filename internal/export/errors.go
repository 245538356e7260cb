package export

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLockContention indicates that another export run holds the export lock.
	ErrLockContention = errors.New("export: another export is running")
	// ErrExternalTool indicates that a compression, checksum or signing step failed.
	ErrExternalTool = errors.New("export: external tool failed")
	// ErrInvalidOptions indicates an unusable flag combination.
	ErrInvalidOptions = errors.New("export: invalid options")

	errMissingStore    = errors.New("export: store is required")
	errMissingArchiver = errors.New("export: archive signer is required")
)

// ToolError describes a failed external command.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	message := fmt.Sprintf("%s %s: %v", e.Tool, strings.Join(e.Args, " "), e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		message += ": " + stderr
	}
	return message
}

func (e *ToolError) Unwrap() []error {
	return []error{ErrExternalTool, e.Err}
}
