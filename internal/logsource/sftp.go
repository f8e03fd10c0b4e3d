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

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// SFTPSource polls a remote file over SFTP, copying the delta since its last
// read into a local scratch file each tick.
type SFTPSource struct {
	host          string
	port          int
	username      string
	password      string
	path          string
	pollFreq      time.Duration
	readFromStart bool

	mu             sync.Mutex
	client         *sftp.Client
	sshConn        *ssh.Client
	lastPos        int64
	reconnectDelay time.Duration
	maxDelay       time.Duration
	scratchPath    string
}

// NewSFTPSource returns a Source that tails a remote file reachable over
// SFTP/SSH.
func NewSFTPSource(cfg Config) *SFTPSource {
	digest := md5.Sum([]byte(fmt.Sprintf("%s:%d:%s", cfg.Host, cfg.Port, cfg.FilePath)))
	scratchPath := filepath.Join(os.TempDir(), fmt.Sprintf("squadctl-sftp-%x.tmp", digest))

	return &SFTPSource{
		host:           cfg.Host,
		port:           cfg.Port,
		username:       cfg.Username,
		password:       cfg.Password,
		path:           cfg.FilePath,
		pollFreq:       cfg.pollFrequency(),
		readFromStart:  cfg.ReadFromStart,
		reconnectDelay: time.Second,
		maxDelay:       60 * time.Second,
		scratchPath:    scratchPath,
	}
}

func (s *SFTPSource) Watch(ctx context.Context) (<-chan Line, error) {
	if err := s.connect(); err != nil {
		return nil, err
	}
	if err := s.initializePosition(); err != nil {
		return nil, fmt.Errorf("logsource: initialize sftp position: %w", err)
	}

	out := make(chan Line)
	go func() {
		defer close(out)
		defer os.Remove(s.scratchPath)

		ticker := time.NewTicker(s.pollFreq)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !s.isConnected() {
					log.Warn().Msg("sftp log source: connection check failed, reconnecting")
					if err := s.reconnect(); err != nil {
						log.Error().Err(err).Msg("sftp log source: reconnect failed")
						continue
					}
				}

				lines, rotated, err := s.fetchNewData()
				if err != nil {
					log.Error().Err(err).Msg("sftp log source: fetch failed")
					if err := s.reconnect(); err != nil {
						log.Error().Err(err).Msg("sftp log source: reconnect failed")
					}
					continue
				}

				s.mu.Lock()
				s.reconnectDelay = time.Second
				s.mu.Unlock()

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

func deliver(ctx context.Context, out chan<- Line, l Line) bool {
	select {
	case out <- l:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *SFTPSource) initializePosition() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return fmt.Errorf("sftp client not connected")
	}
	stat, err := s.client.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat remote file: %w", err)
	}
	if s.readFromStart {
		s.lastPos = 0
	} else {
		s.lastPos = stat.Size()
	}
	return nil
}

// fetchNewData downloads the delta since lastPos and returns the new lines
// plus whether a rotation (file shrank) was detected.
func (s *SFTPSource) fetchNewData() ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, false, fmt.Errorf("sftp client not connected")
	}

	stat, err := s.client.Stat(s.path)
	if err != nil {
		return nil, false, fmt.Errorf("stat remote file: %w", err)
	}

	fileSize := stat.Size()
	if fileSize == s.lastPos {
		return nil, false, nil
	}

	rotated := false
	if fileSize < s.lastPos {
		rotated = true
		s.lastPos = 0
	}

	remoteFile, err := s.client.Open(s.path)
	if err != nil {
		return nil, false, fmt.Errorf("open remote file: %w", err)
	}
	defer remoteFile.Close()

	if _, err := remoteFile.Seek(s.lastPos, io.SeekStart); err != nil {
		return nil, false, fmt.Errorf("seek remote file: %w", err)
	}

	scratch, err := os.OpenFile(s.scratchPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open scratch file: %w", err)
	}

	n, err := io.Copy(scratch, remoteFile)
	scratch.Close()
	if err != nil {
		return nil, false, fmt.Errorf("copy remote delta: %w", err)
	}
	s.lastPos += n
	if n == 0 {
		return nil, rotated, nil
	}

	content, err := os.ReadFile(s.scratchPath)
	if err != nil {
		return nil, false, fmt.Errorf("read scratch file: %w", err)
	}
	return splitLines(string(content)), rotated, nil
}

func splitLines(content string) []string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func (s *SFTPSource) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.sshConn == nil {
		return false
	}
	_, err := s.client.ReadDir(filepath.Dir(s.path))
	return err == nil
}

func (s *SFTPSource) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config := &ssh.ClientConfig{
		User:            s.username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
	if s.password != "" {
		config.Auth = append(config.Auth, ssh.Password(s.password))
	}

	sshConn, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", s.host, s.port), config)
	if err != nil {
		return fmt.Errorf("dial ssh: %w", err)
	}
	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("open sftp client: %w", err)
	}

	if s.client != nil {
		s.client.Close()
	}
	if s.sshConn != nil {
		s.sshConn.Close()
	}
	s.sshConn = sshConn
	s.client = client
	return nil
}

func (s *SFTPSource) reconnect() error {
	s.mu.Lock()
	delay := s.reconnectDelay
	if s.reconnectDelay*2 < s.maxDelay {
		s.reconnectDelay *= 2
	} else {
		s.reconnectDelay = s.maxDelay
	}
	s.mu.Unlock()

	log.Info().Str("host", s.host).Dur("delay", delay).Msg("sftp log source: reconnecting")
	time.Sleep(delay)
	return s.connect()
}

func (s *SFTPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	os.Remove(s.scratchPath)

	var errs []string
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		s.client = nil
	}
	if s.sshConn != nil {
		if err := s.sshConn.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		s.sshConn = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("logsource: sftp close: %s", strings.Join(errs, "; "))
	}
	return nil
}
