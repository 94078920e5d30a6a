package retention

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	touch(t, filepath.Join(dir, "old.jpg"), now.Add(-48*time.Hour))
	touch(t, filepath.Join(dir, "fresh.jpg"), now.Add(-time.Hour))
	if err := os.Mkdir(filepath.Join(dir, "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	n, err := Sweep(dir, 24*time.Hour, now, testLogger())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, expected 1", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "old.jpg")); !os.IsNotExist(err) {
		t.Error("old.jpg should be removed")
	}
	for _, name := range []string{"fresh.jpg", "keep"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s should be kept: %v", name, err)
		}
	}
}

func TestSweepDisabled(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.jpg"), time.Unix(0, 0))
	if n, err := Sweep(dir, 0, time.Now(), testLogger()); err != nil || n != 0 {
		t.Fatalf("Sweep with zero age = %d, %v", n, err)
	}
}

func TestSweepMissingDir(t *testing.T) {
	if _, err := Sweep(filepath.Join(t.TempDir(), "gone"), time.Hour, time.Now(), testLogger()); err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestStart(t *testing.T) {
	if _, err := Start("@every 1h", t.TempDir(), 0, testLogger()); err == nil {
		t.Error("expected error for zero max age")
	}
	if _, err := Start("not a schedule", t.TempDir(), time.Hour, testLogger()); err == nil {
		t.Error("expected error for invalid schedule")
	}
	c, err := Start("@every 1h", t.TempDir(), time.Hour, testLogger())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Errorf("expected one scheduled entry, got %d", len(c.Entries()))
	}
	<-c.Stop().Done()
}
