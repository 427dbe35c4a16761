package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

// ErrDownloadUnsupported is returned when the transport cannot stream files
var ErrDownloadUnsupported = errors.New("log download requires the native ssh transport")

// FileOpener streams a remote file
type FileOpener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// LogReader fetches process logs from the remote host
type LogReader struct {
	executor     remote.Executor
	opener       FileOpener
	roster       *Roster
	defaultLines int
	maxLines     int
	timeout      time.Duration
}

// NewLogReader creates a log reader. opener may be nil.
func NewLogReader(executor remote.Executor, opener FileOpener, roster *Roster, defaultLines, maxLines int, timeout time.Duration) *LogReader {
	return &LogReader{
		executor:     executor,
		opener:       opener,
		roster:       roster,
		defaultLines: defaultLines,
		maxLines:     maxLines,
		timeout:      timeout,
	}
}

// Tail returns the last lines of a process log. Unknown names fail before
// anything is sent to the remote host; remote problems come back as text.
func (r *LogReader) Tail(ctx context.Context, name string, lines int) (string, error) {
	process, err := r.roster.Lookup(name)
	if err != nil {
		return "", err
	}

	switch {
	case lines <= 0:
		lines = r.defaultLines
	case lines > r.maxLines:
		lines = r.maxLines
	}

	line := "tail -n " + strconv.Itoa(lines) + " " + remote.Quote(process.LogPath)
	res := r.executor.Execute(ctx, remote.Run(line, r.timeout))
	if res.Succeeded {
		return res.Stdout, nil
	}

	diagnostic := res.Combined()
	if diagnostic == "" {
		diagnostic = fmt.Sprintf("exit status %d", res.ExitCode)
	}
	return fmt.Sprintf("unable to read %s: %s", process.LogPath, diagnostic), nil
}

// Download copies the whole log file to w
func (r *LogReader) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	process, err := r.roster.Lookup(name)
	if err != nil {
		return 0, err
	}
	if r.opener == nil {
		return 0, ErrDownloadUnsupported
	}

	file, err := r.opener.Open(ctx, process.LogPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open log for %s: %w", name, err)
	}
	defer file.Close()

	n, err := io.Copy(w, file)
	if err != nil {
		return n, fmt.Errorf("failed to stream log for %s: %w", name, err)
	}
	return n, nil
}

// LogPath returns the remote log path for a process
func (r *LogReader) LogPath(name string) (string, error) {
	process, err := r.roster.Lookup(name)
	if err != nil {
		return "", err
	}
	return process.LogPath, nil
}

// CanDownload reports whether whole-file downloads are available
func (r *LogReader) CanDownload() bool {
	return r.opener != nil
}
