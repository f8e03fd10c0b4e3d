package logsource

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog/log"
)

const ftpMaxRetries = 3

// FTPSource polls a remote file over plain FTP using RETR-from-offset.
type FTPSource struct {
	host          string
	port          int
	username      string
	password      string
	path          string
	pollFreq      time.Duration
	readFromStart bool
	retryDelay    time.Duration

	mu          sync.Mutex
	conn        *ftp.ServerConn
	lastPos     int64
	scratchPath string
}

// NewFTPSource returns a Source that tails a remote file reachable over FTP.
func NewFTPSource(cfg Config) *FTPSource {
	digest := md5.Sum([]byte(fmt.Sprintf("%s:%d:%s", cfg.Host, cfg.Port, cfg.FilePath)))
	scratchPath := filepath.Join(os.TempDir(), fmt.Sprintf("squadctl-ftp-%x.tmp", digest))

	return &FTPSource{
		host:          cfg.Host,
		port:          cfg.Port,
		username:      cfg.Username,
		password:      cfg.Password,
		path:          cfg.FilePath,
		pollFreq:      cfg.pollFrequency(),
		readFromStart: cfg.ReadFromStart,
		retryDelay:    time.Second,
		scratchPath:   scratchPath,
	}
}

func (f *FTPSource) Watch(ctx context.Context) (<-chan Line, error) {
	if err := f.connect(); err != nil {
		return nil, err
	}
	if err := f.initializePosition(); err != nil {
		return nil, fmt.Errorf("logsource: initialize ftp position: %w", err)
	}

	out := make(chan Line)
	go func() {
		defer close(out)
		defer os.Remove(f.scratchPath)

		ticker := time.NewTicker(f.pollFreq)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				lines, rotated, err := f.fetchNewData()
				if err != nil {
					log.Error().Err(err).Msg("ftp log source: fetch failed")
					if rerr := f.reconnect(); rerr != nil {
						log.Error().Err(rerr).Msg("ftp log source: reconnect failed")
					}
					continue
				}
				if rotated {
					if !deliver(ctx, out, Line{Rotated: true}) {
						return
					}
				}
				for _, text := range lines {
					if !deliver(ctx, out, Line{Text: text}) {
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (f *FTPSource) fileSizeWithRetry() (int64, error) {
	var size int64
	var err error
	for attempt := 0; attempt < ftpMaxRetries; attempt++ {
		size, err = f.conn.FileSize(f.path)
		if err == nil {
			return size, nil
		}
		if attempt < ftpMaxRetries-1 {
			time.Sleep(f.retryDelay)
			if strings.Contains(err.Error(), "connection") {
				_ = f.reconnectLocked()
			}
		}
	}
	return 0, err
}

func (f *FTPSource) initializePosition() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return fmt.Errorf("ftp connection not established")
	}
	size, err := f.fileSizeWithRetry()
	if err != nil {
		return fmt.Errorf("stat remote file: %w", err)
	}
	if f.readFromStart {
		f.lastPos = 0
	} else {
		f.lastPos = size
	}
	return nil
}

func (f *FTPSource) fetchNewData() ([]string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn == nil {
		return nil, false, fmt.Errorf("ftp connection not established")
	}

	size, err := f.fileSizeWithRetry()
	if err != nil {
		return nil, false, fmt.Errorf("stat remote file: %w", err)
	}
	if size == f.lastPos {
		return nil, false, nil
	}

	rotated := false
	if size < f.lastPos {
		rotated = true
		f.lastPos = 0
	}

	var resp *ftp.Response
	for attempt := 0; attempt < ftpMaxRetries; attempt++ {
		resp, err = f.conn.RetrFrom(f.path, uint64(f.lastPos))
		if err == nil {
			break
		}
		if attempt < ftpMaxRetries-1 {
			time.Sleep(f.retryDelay)
			if strings.Contains(err.Error(), "connection") {
				_ = f.reconnectLocked()
			}
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("retrieve remote delta: %w", err)
	}
	defer resp.Close()

	scratch, err := os.OpenFile(f.scratchPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open scratch file: %w", err)
	}
	n, err := io.Copy(scratch, resp)
	scratch.Close()
	if err != nil {
		return nil, false, fmt.Errorf("copy remote delta: %w", err)
	}
	f.lastPos += n
	if n == 0 {
		return nil, rotated, nil
	}

	content, err := os.ReadFile(f.scratchPath)
	if err != nil {
		return nil, false, fmt.Errorf("read scratch file: %w", err)
	}
	return splitLines(string(content)), rotated, nil
}

func (f *FTPSource) connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectLocked()
}

func (f *FTPSource) connectLocked() error {
	if f.conn != nil {
		f.conn.Quit()
		f.conn = nil
	}
	conn, err := ftp.Dial(fmt.Sprintf("%s:%d", f.host, f.port), ftp.DialWithTimeout(5*time.Second))
	if err != nil {
		return fmt.Errorf("dial ftp: %w", err)
	}
	if err := conn.Login(f.username, f.password); err != nil {
		conn.Quit()
		return fmt.Errorf("ftp login: %w", err)
	}
	f.conn = conn
	return nil
}

func (f *FTPSource) reconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconnectLocked()
}

func (f *FTPSource) reconnectLocked() error {
	log.Info().Str("host", f.host).Msg("ftp log source: reconnecting")
	return f.connectLocked()
}

func (f *FTPSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	os.Remove(f.scratchPath)

	if f.conn == nil {
		return nil
	}
	err := f.conn.Quit()
	f.conn = nil
	if err != nil {
		return fmt.Errorf("logsource: ftp close: %w", err)
	}
	return nil
}
