package affected

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// writeLauncher creates an executable shell script standing in for npx.
func writeLauncher(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell launcher needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "launcher")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecExecutor_RunsInDir(t *testing.T) {
	launcher := writeLauncher(t, `printf '["%s"]' "$(basename "$PWD")"`)
	dir := filepath.Join(t.TempDir(), "ws")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := NewRunner(dir, WithCommand(launcher)).Run(context.Background(), Query{Mode: ModeUncommitted})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(got) != 1 || got[0] != "ws" {
		t.Errorf("Run() = %v, want [ws]", got)
	}
}

func TestExecExecutor_CancelWithHeldPipe(t *testing.T) {
	// The background sleep inherits stdout and outlives the killed shell,
	// the way node outlives npx.
	launcher := writeLauncher(t, "sleep 20 &\nwait")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewRunner(t.TempDir(), WithCommand(launcher)).Run(ctx, Query{Mode: ModeUncommitted})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Run() expected error after cancellation, got nil")
	}
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("Run() error = %v, want ErrCommandFailed", err)
	}
	if limit := waitDelay + 5*time.Second; elapsed > limit {
		t.Errorf("Run() took %v after cancellation, want under %v", elapsed, limit)
	}
}
