package geocsv

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
)

// ErrInvalidConfig is returned by NewImporter and OpenLookupCache when the
// configuration cannot work. Nothing has been processed when it is returned.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultCacheCapacity is the number of records a bounded cache holds
// unless configured otherwise.
const DefaultCacheCapacity = 5000

// Config contains configuration options for an Importer.
type Config struct {
	InputPath   string       // Backing CSV file
	OutputTag   string       // Tag key the payload is written to
	Columns     Columns      // 1-based column positions
	Fill        FillMode     // Bounded (default) or Unbounded
	MaxDistance float64      // Meters; +Inf disables the check
	Policy      PolicyMode   // What to do with matches farther than MaxDistance
	Logger      *slog.Logger // nil discards diagnostics
}

// Option is a functional option for configuring an Importer.
type Option func(*Config)

// WithInputPath sets the backing CSV file.
func WithInputPath(path string) Option {
	return func(c *Config) {
		c.InputPath = path
	}
}

// WithOutputTag sets the tag key the payload is stored under.
func WithOutputTag(key string) Option {
	return func(c *Config) {
		c.OutputTag = key
	}
}

// WithColumns sets the id and payload column positions.
func WithColumns(idPos, payloadPos int) Option {
	return func(c *Config) {
		c.Columns.ID = idPos
		c.Columns.Payload = payloadPos
	}
}

// WithCoordinateColumns sets the latitude and longitude column positions.
func WithCoordinateColumns(latPos, lonPos int) Option {
	return func(c *Config) {
		c.Columns.Lat = latPos
		c.Columns.Lon = lonPos
	}
}

// WithCacheCapacity selects a bounded cache of n records.
func WithCacheCapacity(n uint) Option {
	return func(c *Config) {
		c.Fill = Bounded{Capacity: n}
	}
}

// WithUnboundedCache loads the whole backing file into memory on first use.
func WithUnboundedCache() Option {
	return func(c *Config) {
		c.Fill = Unbounded{}
	}
}

// WithMaxDistance sets the distance in meters above which Policy applies.
func WithMaxDistance(meters float64) Option {
	return func(c *Config) {
		c.MaxDistance = meters
	}
}

// WithPolicy sets the action taken on matches that are too far away.
func WithPolicy(mode PolicyMode) Option {
	return func(c *Config) {
		c.Policy = mode
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// defaultConfig returns the default configuration.
func defaultConfig() *Config {
	return &Config{
		Fill:        Bounded{Capacity: DefaultCacheCapacity},
		MaxDistance: math.Inf(1),
		Policy:      Warn,
	}
}

func (c Columns) validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: id column must be greater than 0, got %d", ErrInvalidConfig, c.ID)
	}
	if c.Payload <= 0 {
		return fmt.Errorf("%w: payload column must be greater than 0, got %d", ErrInvalidConfig, c.Payload)
	}
	if c.Lat < 0 || c.Lon < 0 || (c.Lat > 0) != (c.Lon > 0) {
		return fmt.Errorf("%w: lat and lon columns must both be set or both be unset, got %d and %d",
			ErrInvalidConfig, c.Lat, c.Lon)
	}
	return nil
}

// validate checks the configuration before anything is opened.
func (c *Config) validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("%w: an input file is required", ErrInvalidConfig)
	}
	fi, err := os.Stat(c.InputPath)
	if err != nil {
		return fmt.Errorf("%w: %s is not readable: %v", ErrInvalidConfig, c.InputPath, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrInvalidConfig, c.InputPath)
	}
	if err := c.Columns.validate(); err != nil {
		return err
	}
	if c.OutputTag == "" {
		return fmt.Errorf("%w: an output tag is required", ErrInvalidConfig)
	}
	if math.IsNaN(c.MaxDistance) || c.MaxDistance <= 0 {
		return fmt.Errorf("%w: max distance must be positive, got %v", ErrInvalidConfig, c.MaxDistance)
	}
	if !math.IsInf(c.MaxDistance, 1) && !c.Columns.HasCoordinates() {
		return fmt.Errorf("%w: lat and lon columns are required when a max distance is set", ErrInvalidConfig)
	}
	if b, ok := c.Fill.(Bounded); ok && b.Capacity == 0 {
		return fmt.Errorf("%w: cache capacity must be at least 1", ErrInvalidConfig)
	}
	if !c.Policy.valid() {
		return fmt.Errorf("%w: unknown policy %d", ErrInvalidConfig, c.Policy)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
