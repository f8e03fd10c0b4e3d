package logsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpcloud/tail"
)

// rotationPollInterval is how often LocalFileSource stats the file to catch
// an in-place truncation that hpcloud/tail's rename-based ReOpen wouldn't
// notice on its own.
const rotationPollInterval = 2 * time.Second

// LocalFileSource tails a file on the local filesystem.
type LocalFileSource struct {
	path string
	tail *tail.Tail
}

// NewLocalFileSource returns a Source for a local log file.
func NewLocalFileSource(path string) *LocalFileSource {
	return &LocalFileSource{path: path}
}

// Watch follows the file, reopening it on rename-based rotation (handled by
// the underlying tail library, which reads the new file from its start) and
// emitting a Rotated
// Line whenever an in-place truncation is detected.
func (l *LocalFileSource) Watch(ctx context.Context) (<-chan Line, error) {
	cleanPath := filepath.Clean(l.path)
	t, err := tail.TailFile(cleanPath, tail.Config{
		Follow: true,
		ReOpen: true,
		Poll:   true,
	})
	if err != nil {
		return nil, err
	}
	l.tail = t

	var lastSize int64
	if info, statErr := os.Stat(cleanPath); statErr == nil {
		lastSize = info.Size()
	}

	out := make(chan Line)
	go func() {
		defer close(out)

		ticker := time.NewTicker(rotationPollInterval)
		defer ticker.Stop()

		for {
			select {
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					continue
				}
				select {
				case out <- Line{Text: strings.TrimSpace(line.Text)}:
				case <-ctx.Done():
					return
				}
			case <-ticker.C:
				info, statErr := os.Stat(cleanPath)
				if statErr != nil {
					continue
				}
				if info.Size() < lastSize {
					select {
					case out <- Line{Rotated: true}:
					case <-ctx.Done():
						return
					}
				}
				lastSize = info.Size()
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close stops following the file.
func (l *LocalFileSource) Close() error {
	if l.tail != nil {
		return l.tail.Stop()
	}
	return nil
}
