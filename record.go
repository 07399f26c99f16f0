package geocsv

import (
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// commentPrefix marks lines of the backing file that are never parsed.
const commentPrefix = ";"

// Record is one parsed line of the backing file.
//
// Identity is the ID alone; the position of a node may change between
// exports, so two records with the same ID describe the same node.
type Record struct {
	ID      int64
	Lat     float64 // Unknown when not configured or unparsable
	Lon     float64 // Unknown when not configured or unparsable
	Payload string
}

// Equal reports whether r and o refer to the same ID.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID
}

// HasPosition reports whether both coordinates are known.
func (r Record) HasPosition() bool {
	return !IsUnknown(r.Lat) && !IsUnknown(r.Lon)
}

// Unknown is the sentinel for a coordinate that is not available.
var Unknown = math.NaN()

// IsUnknown reports whether v is the unknown-coordinate sentinel
// (or any other non-finite value).
func IsUnknown(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Columns holds the 1-based column positions of the backing file.
// Lat and Lon are zero when the file carries no coordinates.
type Columns struct {
	ID      int
	Lat     int
	Lon     int
	Payload int
}

// HasCoordinates reports whether latitude and longitude columns are set.
func (c Columns) HasCoordinates() bool {
	return c.Lat > 0 && c.Lon > 0
}

// width returns the minimum number of fields a line must have.
func (c Columns) width() int {
	return max(c.ID, c.Lat, c.Lon, c.Payload)
}

// parseRecord turns a raw line into a Record. The second return value is
// false when the line must be skipped. lineNo is only used for diagnostics.
func parseRecord(line string, cols Columns, lineNo uint64, logger *slog.Logger) (Record, bool) {
	if line == "" || strings.HasPrefix(line, commentPrefix) {
		logger.Debug("skipping empty or comment line", "line", lineNo)
		return Record{}, false
	}

	fields := strings.Split(line, ",")
	if len(fields) < cols.width() {
		logger.Warn("line is too short", "line", lineNo, "fields", len(fields), "want", cols.width())
		return Record{}, false
	}

	id, err := strconv.ParseInt(fields[cols.ID-1], 10, 64)
	if err != nil {
		logger.Warn("malformed id", "line", lineNo, "value", fields[cols.ID-1], "error", err)
		return Record{}, false
	}

	r := Record{
		ID:      id,
		Lat:     Unknown,
		Lon:     Unknown,
		Payload: fields[cols.Payload-1],
	}

	if cols.HasCoordinates() {
		lat, errLat := strconv.ParseFloat(fields[cols.Lat-1], 64)
		lon, errLon := strconv.ParseFloat(fields[cols.Lon-1], 64)
		if errLat != nil || errLon != nil {
			// Keep the record; only the distance check is lost.
			logger.Warn("malformed coordinates", "line", lineNo, "id", id,
				"lat", fields[cols.Lat-1], "lon", fields[cols.Lon-1])
		} else {
			r.Lat, r.Lon = lat, lon
		}
	}
	return r, true
}
