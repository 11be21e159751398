// Package utils provides file helpers shared by the finnctl packages
package utils

import (
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data next to path and renames it into place,
// so readers see either the old or the new content. Parent directories are created.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, perm); err != nil {
		os.Remove(tempFile)
		return err
	}
	// WriteFile keeps the mode of an existing temp file
	if err := os.Chmod(tempFile, perm); err != nil {
		os.Remove(tempFile)
		return err
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return err
	}
	return nil
}

// CopyFileAtomic copies src to dst through a temporary file, so dst only ever appears complete
func CopyFileAtomic(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	tempFile := dst + ".tmp"
	out, err := os.OpenFile(tempFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tempFile)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}
	if err := os.Rename(tempFile, dst); err != nil {
		os.Remove(tempFile)
		return err
	}
	return nil
}

// FileExists checks if a regular file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirectoryExists checks if a directory exists
func DirectoryExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
