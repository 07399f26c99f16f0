package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/andreiashu/geocsv"
)

// jsonTag is the wire form of a tag.
type jsonTag struct {
	K string `json:"k"`
	V string `json:"v"`
}

// jsonEntity is one line of a JSON-lines entity stream.
type jsonEntity struct {
	Type string    `json:"type,omitempty"`
	ID   int64     `json:"id"`
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
	Tags []jsonTag `json:"tags,omitempty"`
}

func parseKind(s string) (geocsv.EntityKind, error) {
	switch strings.ToLower(s) {
	case "", "node":
		return geocsv.Node, nil
	case "way":
		return geocsv.Way, nil
	case "relation":
		return geocsv.Relation, nil
	case "bound":
		return geocsv.Bound, nil
	}
	return 0, fmt.Errorf("unknown entity type %q", s)
}

func (j jsonEntity) entity() (*geocsv.Entity, error) {
	kind, err := parseKind(j.Type)
	if err != nil {
		return nil, err
	}
	e := &geocsv.Entity{Kind: kind, ID: j.ID, Lat: j.Lat, Lon: j.Lon}
	for _, t := range j.Tags {
		e.Tags = append(e.Tags, geocsv.Tag{Key: t.K, Value: t.V})
	}
	return e, nil
}

func fromEntity(e *geocsv.Entity) jsonEntity {
	j := jsonEntity{Type: e.Kind.String(), ID: e.ID, Lat: e.Lat, Lon: e.Lon}
	for _, t := range e.Tags {
		j.Tags = append(j.Tags, jsonTag{K: t.Key, V: t.Value})
	}
	return j
}

// processor is the part of geocsv.Importer the stream reader drives.
type processor interface {
	Process(e *geocsv.Entity) error
}

// pump decodes entities from r and hands each to p. Blank lines are skipped.
// It returns ctx.Err() once ctx is done, even while r is blocked in Read.
func pump(ctx context.Context, r io.Reader, p processor) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- scanner.Err()
	}()

	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var text string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				if err := <-errc; err != nil {
					return fmt.Errorf("reading entities: %w", err)
				}
				return nil
			}
			text = l
		}
		lineNo++
		line := strings.TrimSpace(text)
		if line == "" {
			continue
		}
		var j jsonEntity
		if err := json.Unmarshal([]byte(line), &j); err != nil {
			return fmt.Errorf("decoding entity on line %d: %w", lineNo, err)
		}
		e, err := j.entity()
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := p.Process(e); err != nil {
			return err
		}
	}
}

// jsonSink writes entities as JSON lines.
type jsonSink struct {
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer // nil for stdout
}

func newJSONSink(w io.Writer, closer io.Closer) *jsonSink {
	bw := bufio.NewWriter(w)
	return &jsonSink{w: bw, enc: json.NewEncoder(bw), closer: closer}
}

func (s *jsonSink) Process(e *geocsv.Entity) error {
	if err := s.enc.Encode(fromEntity(e)); err != nil {
		return fmt.Errorf("writing entity %d: %w", e.ID, err)
	}
	return nil
}

func (s *jsonSink) Complete() error {
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flushing output: %w", err)
	}
	return nil
}

func (s *jsonSink) Release() {
	if s.closer != nil {
		s.closer.Close()
		s.closer = nil
	}
}
