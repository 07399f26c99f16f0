package geocsv

import (
	"fmt"
	"log/slog"
)

// FillMode selects how a LookupCache is refilled from the backing file.
// It is either Bounded or Unbounded.
type FillMode interface {
	fillMode()
}

// Bounded keeps at most Capacity records in memory. The cache is cleared
// and refilled from the current scan position on every miss.
type Bounded struct {
	Capacity uint
}

// Unbounded loads the whole backing file on first use and never scans it
// again.
type Unbounded struct{}

func (Bounded) fillMode()   {}
func (Unbounded) fillMode() {}

func (b Bounded) String() string { return fmt.Sprintf("bounded(%d)", b.Capacity) }
func (Unbounded) String() string { return "unbounded" }

// CacheStats holds lookup counters of a LookupCache.
type CacheStats struct {
	Hits      uint64 // lookups served from memory without reading
	Misses    uint64 // lookups that had to scan (or were absent)
	Refills   uint64 // window refills, bounded mode only
	LinesRead uint64 // lines read from the backing file
}

// LookupCache serves records by ID from a backing file that may not fit
// in memory.
//
// Not safe for concurrent use: at most one Find may run at a time.
type LookupCache struct {
	cols    Columns
	mode    FillMode
	records map[int64]Record
	scanner *cyclicScanner
	mark    markTracker
	filled  bool
	stats   CacheStats
	logger  *slog.Logger
}

// OpenLookupCache opens the backing file at path. The file is not read
// until the first Find.
func OpenLookupCache(path string, cols Columns, mode FillMode, logger *slog.Logger) (*LookupCache, error) {
	if logger == nil {
		logger = discardLogger()
	}
	switch m := mode.(type) {
	case Bounded:
		if m.Capacity == 0 {
			return nil, fmt.Errorf("%w: cache capacity must be at least 1", ErrInvalidConfig)
		}
	case Unbounded:
	default:
		return nil, fmt.Errorf("%w: unknown fill mode %T", ErrInvalidConfig, mode)
	}
	if err := cols.validate(); err != nil {
		return nil, err
	}

	s, err := newCyclicScanner(path, logger)
	if err != nil {
		return nil, err
	}
	return &LookupCache{
		cols:    cols,
		mode:    mode,
		records: make(map[int64]Record),
		scanner: s,
		logger:  logger,
	}, nil
}

// Find returns the record with the given id. The second return value is
// false when id does not occur in the backing file. A non-nil error means
// the backing file could not be read and is fatal.
func (c *LookupCache) Find(id int64) (Record, bool, error) {
	if r, ok := c.records[id]; ok {
		c.stats.Hits++
		return r, true, nil
	}
	c.stats.Misses++

	var (
		r     Record
		found bool
		err   error
	)
	switch m := c.mode.(type) {
	case Bounded:
		r, found, err = c.findBounded(id, m.Capacity)
	case Unbounded:
		r, found, err = c.findUnbounded(id)
	}
	if err != nil {
		return Record{}, false, err
	}
	if !found {
		c.logger.Debug("id not found in backing file", "id", id, "state", c.scanner.state.String())
	}
	return r, found, nil
}

// findBounded refills the window until id shows up or one full cycle of
// the file has been read.
func (c *LookupCache) findBounded(id int64, capacity uint) (Record, bool, error) {
	c.mark.mark(c.scanner.state)
	for {
		clear(c.records)
		c.stats.Refills++
		for n := uint(0); n < capacity && !c.mark.hasPassed(); {
			r, ok, err := c.next()
			if err != nil {
				return Record{}, false, err
			}
			if ok {
				c.records[r.ID] = r
				n++
			}
		}
		if r, ok := c.records[id]; ok {
			return r, true, nil
		}
		if c.mark.hasPassed() {
			return Record{}, false, nil
		}
	}
}

// findUnbounded loads the whole file on first use. Afterwards every id of
// the file is resident, so a miss is final.
func (c *LookupCache) findUnbounded(id int64) (Record, bool, error) {
	if c.filled {
		return Record{}, false, nil
	}
	c.logger.Info("loading backing file into memory", "path", c.scanner.path)
	c.mark.mark(c.scanner.state)
	for !c.mark.hasPassed() {
		r, ok, err := c.next()
		if err != nil {
			return Record{}, false, err
		}
		if ok {
			c.records[r.ID] = r
		}
	}
	c.filled = true
	c.logger.Info("backing file loaded", "records", len(c.records), "lines", c.stats.LinesRead)

	r, ok := c.records[id]
	return r, ok, nil
}

// next reads and parses one line, advancing the mark.
func (c *LookupCache) next() (Record, bool, error) {
	lineNo := c.scanner.state.Line
	line, err := c.scanner.readLine()
	if err != nil {
		return Record{}, false, err
	}
	c.stats.LinesRead++
	c.mark.update(c.scanner.state)
	r, ok := parseRecord(line, c.cols, lineNo, c.logger)
	return r, ok, nil
}

// State returns the current scan position.
func (c *LookupCache) State() ScanState { return c.scanner.state }

// Len returns the number of resident records.
func (c *LookupCache) Len() int { return len(c.records) }

// Mode returns the fill mode the cache was opened with.
func (c *LookupCache) Mode() FillMode { return c.mode }

// Stats returns a snapshot of the lookup counters.
func (c *LookupCache) Stats() CacheStats { return c.stats }

// Close releases the backing file handle.
func (c *LookupCache) Close() error {
	return c.scanner.Close()
}
