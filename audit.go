package geocsv

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// auditHeader is the second line of every audit log.
const auditHeader = "; osmId,lat,lon,csvLat,csvLon,csvData,deviation"

// auditSuffix is appended to the source base name to form the audit log name.
const auditSuffix = "-dirtyNodes.csv"

// AuditPath returns the audit log path for a backing file: a sibling named
// after the source without its extensions, e.g. nodes.csv.gz ->
// nodes-dirtyNodes.csv.
func AuditPath(source string) string {
	base := filepath.Base(source)
	for _, ext := range []string{".gz", ".bz2"} {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(source), base+auditSuffix)
}

// auditLog appends rejected matches to a CSV file.
type auditLog struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

// createAuditLog creates (or truncates) the audit log for source and writes
// its two comment lines.
func createAuditLog(source string) (*auditLog, error) {
	path := AuditPath(source)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating audit log %s: %w", path, err)
	}
	a := &auditLog{path: path, f: f, w: bufio.NewWriter(f)}
	if _, err := fmt.Fprintf(a.w, "; %s\n%s\n", source, auditHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing audit log %s: %w", path, err)
	}
	return a, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Append writes one entry.
func (a *auditLog) Append(e AuditEntry) error {
	line := strings.Join([]string{
		strconv.FormatInt(e.ID, 10),
		formatFloat(e.QueryLat),
		formatFloat(e.QueryLon),
		formatFloat(e.RecordLat),
		formatFloat(e.RecordLon),
		e.Payload,
		formatFloat(e.Distance),
	}, ",")
	if _, err := a.w.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("writing audit log %s: %w", a.path, err)
	}
	return nil
}

// Close flushes buffered entries and closes the file.
func (a *auditLog) Close() error {
	ferr := a.w.Flush()
	cerr := a.f.Close()
	if ferr != nil {
		return fmt.Errorf("flushing audit log %s: %w", a.path, ferr)
	}
	if cerr != nil {
		return fmt.Errorf("closing audit log %s: %w", a.path, cerr)
	}
	return nil
}
