// Package fsutil provides filesystem helpers shared by the download and config layers.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// File and directory permission constants, used consistently throughout the
// application.
const (
	// FileModeDefault is the default mode for regular files (-rw-r--r--).
	FileModeDefault = 0o644
	// FileModeSecure is used for sensitive files such as stored credentials (-rw-r-----).
	FileModeSecure = 0o640
	// DirModeDefault is the default mode for directories (drwxr-xr-x).
	DirModeDefault = 0o755
	// DirModeSecure is used for sensitive directories (drwxr-x---).
	DirModeSecure = 0o750
)

// Move moves a file from src to dst. It first attempts an atomic os.Rename and
// falls back to copy + delete when src and dst are on different filesystems.
func Move(src, dst string) error {
	if src == "" || dst == "" {
		return fmt.Errorf("source and destination paths cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(dst), DirModeDefault); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", filepath.Dir(dst), err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossFilesystemError(err) {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}
	return copyThenRemove(src, dst)
}

// isCrossFilesystemError reports whether an os.Rename failure indicates a
// cross-filesystem boundary (EXDEV) requiring the copy + delete fallback.
// errors.Is unwraps through os.LinkError and os.PathError alike.
func isCrossFilesystemError(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("failed to create destination %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close destination %s: %w", dst, err)
	}
	return os.Remove(src)
}
