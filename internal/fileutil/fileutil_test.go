package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/redaqt/pdo-go/internal/apierrors"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestValidateReadable(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	writeFile(t, file)

	if err := ValidateReadable(file); err != nil {
		t.Errorf("ValidateReadable(file) error = %v", err)
	}
	if err := ValidateReadable(filepath.Join(dir, "missing")); !errors.Is(err, apierrors.ErrFileNotFound) {
		t.Errorf("ValidateReadable(missing) error = %v, want ErrFileNotFound", err)
	}
	if err := ValidateReadable(dir); !errors.Is(err, apierrors.ErrOSWriteFailure) {
		t.Errorf("ValidateReadable(dir) error = %v, want ErrOSWriteFailure", err)
	}
}

func TestNonCollidingPath(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 15, 9, 8, 7, 0, time.UTC)
	path := filepath.Join(dir, "report.pdf")

	got, err := NonCollidingPath(path, now)
	if err != nil || got != path {
		t.Fatalf("NonCollidingPath(free) = %q, %v; want %q", got, err, path)
	}

	writeFile(t, path)
	want := filepath.Join(dir, "report_20261015_090807.pdf")
	if got, _ := NonCollidingPath(path, now); got != want {
		t.Errorf("NonCollidingPath() = %q, want %q", got, want)
	}

	writeFile(t, want)
	want = filepath.Join(dir, "report_20261015_090807_1.pdf")
	if got, _ := NonCollidingPath(path, now); got != want {
		t.Errorf("NonCollidingPath() = %q, want %q", got, want)
	}

	noExt := filepath.Join(dir, "README")
	writeFile(t, noExt)
	if got, _ := NonCollidingPath(noExt, now); got != filepath.Join(dir, "README_20261015_090807") {
		t.Errorf("NonCollidingPath(no ext) = %q", got)
	}
}

func TestRemoveBestEffort(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tmp")
	writeFile(t, file)

	nonEmpty := filepath.Join(dir, "sub")
	if err := os.Mkdir(nonEmpty, 0o700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(nonEmpty, "child"))

	core, logs := observer.New(zap.WarnLevel)
	RemoveBestEffort(zap.New(core), file, "", filepath.Join(dir, "missing"), nonEmpty)

	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Error("file was not removed")
	}
	if logs.Len() != 1 {
		t.Errorf("warnings = %d, want 1 (non-empty directory only)", logs.Len())
	}
}
