package geocsv

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// EntityKind distinguishes the entity types of a stream.
type EntityKind int

const (
	Node EntityKind = iota
	Way
	Relation
	Bound
)

func (k EntityKind) String() string {
	switch k {
	case Node:
		return "node"
	case Way:
		return "way"
	case Relation:
		return "relation"
	case Bound:
		return "bound"
	}
	return fmt.Sprintf("EntityKind(%d)", int(k))
}

// Tag is a key/value pair attached to an entity. Keys are not unique.
type Tag struct {
	Key   string
	Value string
}

// Entity is one unit of the stream. Only nodes are looked up; everything
// else passes through unchanged.
type Entity struct {
	Kind EntityKind
	ID   int64
	Lat  float64
	Lon  float64
	Tags []Tag
}

// Sink receives entities after they have been processed.
type Sink interface {
	Process(e *Entity) error
	Complete() error
	Release()
}

// ImportStats are the counters of an Importer.
type ImportStats struct {
	Processed int64
	Succeeded int64
	Failed    int64
}

// Importer merges payloads from the backing file into a stream of nodes.
//
// Process must not be called concurrently. ProgressMessage and
// TaskDescription may be called from any goroutine.
type Importer struct {
	cfg    *Config
	cache  *LookupCache
	policy *MatchPolicy
	audit  *auditLog
	sink   Sink
	logger *slog.Logger

	processed atomic.Int64
	succeeded atomic.Int64
	current   atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// NewImporter validates the configuration and opens the backing file (and
// the audit log in RejectAndLog mode). Entities are forwarded to sink.
//
// Example:
//
//	im, err := NewImporter(sink,
//	    WithInputPath("addresses.csv"),
//	    WithColumns(1, 4),
//	    WithCoordinateColumns(2, 3),
//	    WithOutputTag("addr:street"),
//	    WithMaxDistance(50),
//	    WithPolicy(RejectAndLog),
//	)
func NewImporter(sink Sink, opts ...Option) (*Importer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: a sink is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = discardLogger()
	}

	cache, err := OpenLookupCache(cfg.InputPath, cfg.Columns, cfg.Fill, logger)
	if err != nil {
		return nil, fmt.Errorf("opening lookup cache: %w", err)
	}
	im := &Importer{
		cfg:    cfg,
		cache:  cache,
		policy: NewMatchPolicy(cfg.Policy, cfg.MaxDistance, logger),
		sink:   sink,
		logger: logger,
	}
	if cfg.Policy == RejectAndLog {
		if im.audit, err = createAuditLog(cfg.InputPath); err != nil {
			cache.Close()
			return nil, err
		}
	}
	return im, nil
}

// removeTag deletes the first tag whose key matches key case-insensitively.
// Later tags with the same key are kept.
func removeTag(tags []Tag, key string) []Tag {
	for i, t := range tags {
		if strings.EqualFold(t.Key, key) {
			return slices.Delete(tags, i, i+1)
		}
	}
	return tags
}

// Process looks up e, merges the payload and forwards e to the sink.
// Errors are fatal: the backing file, the audit log or the sink failed.
func (im *Importer) Process(e *Entity) error {
	if e.Kind != Node {
		return im.sink.Process(e)
	}
	im.current.Store(e.ID)

	e.Tags = removeTag(e.Tags, im.cfg.OutputTag)

	value, err := im.lookup(e.ID, e.Lat, e.Lon)
	if err != nil {
		return err
	}
	// processed is bumped first so a concurrent Stats never sees
	// succeeded > processed.
	im.processed.Add(1)
	if value != "" {
		e.Tags = append(e.Tags, Tag{Key: im.cfg.OutputTag, Value: value})
		im.succeeded.Add(1)
	}

	return im.sink.Process(e)
}

// lookup returns the value for the output tag, or "" when there is none.
func (im *Importer) lookup(id int64, lat, lon float64) (string, error) {
	rec, found, err := im.cache.Find(id)
	if err != nil {
		return "", fmt.Errorf("looking up node %d: %w", id, err)
	}
	if !found {
		return "", nil
	}
	out := im.policy.Decide(rec, lat, lon)
	if out.Audit != nil && im.audit != nil {
		if err := im.audit.Append(*out.Audit); err != nil {
			return "", err
		}
	}
	return out.Payload, nil
}

// Stats returns the current counters.
func (im *Importer) Stats() ImportStats {
	s := im.succeeded.Load()
	p := im.processed.Load()
	return ImportStats{Processed: p, Succeeded: s, Failed: p - s}
}

// CacheStats returns the lookup cache counters. Not safe to call while
// Process runs.
func (im *Importer) CacheStats() CacheStats {
	return im.cache.Stats()
}

// ProgressMessage describes how far the import has come.
func (im *Importer) ProgressMessage() string {
	s := im.Stats()
	return fmt.Sprintf("current node: %d, processed: %d, tagged: %d", im.current.Load(), s.Processed, s.Succeeded)
}

// TaskDescription names the import.
func (im *Importer) TaskDescription() string {
	return fmt.Sprintf("CSV import of %s into tag %q (%v cache)", im.cfg.InputPath, im.cfg.OutputTag, im.cache.Mode())
}

// close releases the backing file and the audit log exactly once.
func (im *Importer) close() error {
	im.closeOnce.Do(func() {
		var errs []error
		if im.audit != nil {
			errs = append(errs, im.audit.Close())
		}
		if err := im.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", im.cfg.InputPath, err))
		}
		im.closeErr = errors.Join(errs...)
	})
	return im.closeErr
}

// Complete finishes the import: the audit log is flushed, final counts are
// logged and the sink is completed.
func (im *Importer) Complete() error {
	cerr := im.close()
	s := im.Stats()
	im.logger.Info("import finished",
		"processed", s.Processed,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
	)
	if err := im.sink.Complete(); err != nil {
		return errors.Join(cerr, err)
	}
	return cerr
}

// Release frees all resources. It is safe to call after Complete and on
// error paths.
func (im *Importer) Release() {
	if err := im.close(); err != nil {
		im.logger.Error("releasing importer", "error", err)
	}
	im.sink.Release()
}
