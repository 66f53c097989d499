package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := Acquire(stateDir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	lockPath := filepath.Join(stateDir, LockFileName)
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("Expected lock file to exist: %v", err)
	}
	if !strings.HasPrefix(string(data), "pid=") {
		t.Errorf("Expected pid entry in lock file, got %q", data)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Expected lock file removed after release")
	}
}

func TestAcquireCreatesStateDir(t *testing.T) {
	stateDir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := Acquire(stateDir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(stateDir); err != nil {
		t.Errorf("Expected state directory created: %v", err)
	}
}

func TestSecondAcquireFails(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := Acquire(stateDir)
	if err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	defer lock.Release()

	_, err = Acquire(stateDir)
	if err == nil {
		t.Fatal("Expected second acquire to fail")
	}
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("Expected HeldError, got %T: %v", err, err)
	}
	if !strings.Contains(held.Error(), "another U-Well instance") {
		t.Errorf("Unexpected error message: %q", held.Error())
	}
	if !strings.Contains(held.Holder, "running") {
		t.Errorf("Expected holder liveness in message, got %q", held.Holder)
	}
}

func TestReleaseTwiceIsSafe(t *testing.T) {
	lock, err := Acquire(t.TempDir())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Second release failed: %v", err)
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	stateDir := t.TempDir()

	first, err := Acquire(stateDir)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	second, err := Acquire(stateDir)
	if err != nil {
		t.Fatalf("Expected re-acquire after release, got %v", err)
	}
	second.Release()
}

func TestExtractPID(t *testing.T) {
	tests := []struct {
		content  string
		expected int
	}{
		{"pid=1234\n", 1234},
		{"pid=9", 9},
		{"no pid here", 0},
		{"pid=", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := extractPID(tt.content); got != tt.expected {
			t.Errorf("extractPID(%q) = %d, want %d", tt.content, got, tt.expected)
		}
	}
}
