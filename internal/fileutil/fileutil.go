// Package fileutil holds the file system helpers shared by protect and
// access: source validation, collision-free output names and best-effort
// cleanup.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/redaqt/pdo-go/internal/apierrors"
)

// TimestampLayout is appended to output names that would collide.
const TimestampLayout = "20060102_150405"

// maxSuffix bounds the numeric suffixes tried after a timestamp collision.
const maxSuffix = 10000

// ValidateReadable checks that path names a regular file the process can
// open for reading.
func ValidateReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return apierrors.NewFileError("stat", path, err)
	}
	if info.IsDir() {
		return apierrors.NewFileError("open", path, fmt.Errorf("%s is a directory", path))
	}
	f, err := os.Open(path)
	if err != nil {
		return apierrors.NewFileError("open", path, err)
	}
	return f.Close()
}

// NonCollidingPath returns path if nothing exists there, otherwise
// name_YYYYMMDD_HHMMSS.ext, then name_YYYYMMDD_HHMMSS_1.ext and so on.
func NonCollidingPath(path string, now time.Time) (string, error) {
	if !exists(path) {
		return path, nil
	}

	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stamp := now.Format(TimestampLayout)

	candidate := filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, stamp, ext))
	for n := 1; exists(candidate); n++ {
		if n > maxSuffix {
			return "", apierrors.NewFileError("name", path, errors.New("no free output name"))
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%s_%d%s", stem, stamp, n, ext))
	}
	return candidate, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// RemoveBestEffort deletes paths, logging failures at Warn. It never fails.
func RemoveBestEffort(logger *zap.Logger, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to remove temporary file", zap.String("path", p), zap.Error(err))
		}
	}
}
