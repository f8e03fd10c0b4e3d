package logsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLocalFileSourceDeliversAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "squad.log")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := NewLocalFileSource(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines, err := src.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer src.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("line one\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	select {
	case l := <-lines:
		if l.Text != "line one" || l.Rotated {
			t.Fatalf("unexpected line: %+v", l)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for appended line")
	}
}

func TestLocalFileSourceDetectsTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "squad.log")
	if err := os.WriteFile(path, []byte("existing content that is reasonably long\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := &LocalFileSource{path: path}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines, err := src.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer src.Close()

	time.Sleep(50 * time.Millisecond) // let the watchdog observe the initial size
	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case l := <-lines:
			if l.Rotated {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for rotation marker")
		}
	}
}
