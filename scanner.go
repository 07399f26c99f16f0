package geocsv

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ErrEmptyBackingFile is returned when the backing file has no content to
// search. It is fatal: the file is not reopened again.
var ErrEmptyBackingFile = errors.New("backing file is empty")

// ScanState is the position of a cyclicScanner.
//
// Line is the 1-based number of the line the next readLine call returns.
// Wrap counts how many times the file has been read to its end and reopened.
type ScanState struct {
	Line uint64
	Wrap uint64
}

// String implements fmt.Stringer.
func (s ScanState) String() string {
	return fmt.Sprintf("pass %d line %d", s.Wrap, s.Line)
}

// cyclicScanner reads the backing file line by line and starts over from
// the first line after the last one has been returned.
type cyclicScanner struct {
	path   string
	r      *bufio.Reader
	close  func() error
	state  ScanState
	logger *slog.Logger
}

func newCyclicScanner(path string, logger *slog.Logger) (*cyclicScanner, error) {
	s := &cyclicScanner{
		path:   path,
		state:  ScanState{Line: 1},
		logger: logger,
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

// openBackingFile opens path, decompressing it when it carries a .gz or
// .bz2 suffix. The returned cleanup closes the underlying file.
func openBackingFile(path string) (io.Reader, func() error, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	switch {
	case strings.HasSuffix(path, ".bz2"):
		return bzip2.NewReader(fh), fh.Close, nil
	case strings.HasSuffix(path, ".gz"):
		fz, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, nil, fmt.Errorf("creating gzip reader for %s: %w", path, err)
		}
		return fz, func() error {
			fz.Close()
			return fh.Close()
		}, nil
	}
	return fh, fh.Close, nil
}

func (s *cyclicScanner) open() error {
	r, cleanup, err := openBackingFile(s.path)
	if err != nil {
		return err
	}
	s.r = bufio.NewReader(r)
	s.close = cleanup
	return nil
}

// exhausted reports whether the current pass has no more lines.
func (s *cyclicScanner) exhausted() (bool, error) {
	_, err := s.r.Peek(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", s.path, err)
	}
	return false, nil
}

// readLine returns the next line without its line terminator. Once the last
// line of the file has been read the file is reopened, so the state already
// points at line 1 of the next pass when readLine returns.
func (s *cyclicScanner) readLine() (string, error) {
	empty, err := s.exhausted()
	if err != nil {
		return "", err
	}
	if empty {
		return "", fmt.Errorf("%s: %w", s.path, ErrEmptyBackingFile)
	}

	line, err := s.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading %s: %w", s.path, err)
	}
	line = strings.TrimRight(line, "\r\n")
	s.state.Line++

	end, err := s.exhausted()
	if err != nil {
		return "", err
	}
	if end {
		if err := s.rewind(); err != nil {
			return "", err
		}
	}
	return line, nil
}

// rewind closes and reopens the backing file and starts a new pass.
func (s *cyclicScanner) rewind() error {
	s.logger.Debug("rewinding backing file", "path", s.path, "pass", s.state.Wrap+1)
	err := s.close()
	s.close = nil
	if err != nil {
		return fmt.Errorf("closing %s: %w", s.path, err)
	}
	if err := s.open(); err != nil {
		return err
	}
	s.state.Wrap++
	s.state.Line = 1
	return nil
}

// Close releases the file handle.
func (s *cyclicScanner) Close() error {
	if s.close == nil {
		return nil
	}
	err := s.close()
	s.close = nil
	return err
}
