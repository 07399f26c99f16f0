// Command geocsv-import merges data from a CSV file into a stream of nodes.
//
// Usage:
//
//	geocsv-import --inputCSV addresses.csv --idPos 1 --latPos 2 --lonPos 3 \
//	    --tagDataPos 4 --outputTag addr:street --maxDist 50 \
//	    --maxDistAction rejectandlog < nodes.jsonl > tagged.jsonl
//
// Nodes are read as JSON lines ({"id":1,"lat":48.1,"lon":11.5,"tags":[...]}).
// Every flag can also be set in a config file (--config) or through a
// GEOCSV_<FLAG> environment variable.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/andreiashu/geocsv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// After the first signal, a second one gets the default handling.
		<-ctx.Done()
		stop()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "geocsv-import",
		Short:         "Merge CSV data into a stream of geotagged nodes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.String("config", "", "Config file (json, yaml or toml)")
	f.String("inputCSV", "", "CSV file with the data to import")
	f.Int("idPos", 0, "Column of the node id (1-based)")
	f.Int("latPos", 0, "Column of the latitude (1-based, 0 = none)")
	f.Int("lonPos", 0, "Column of the longitude (1-based, 0 = none)")
	f.Int("tagDataPos", 0, "Column of the tag value (1-based)")
	f.String("outputTag", "", "Tag key the value is stored under")
	f.Float64("maxDist", math.Inf(1), "Maximum distance in meters between node and CSV position")
	f.String("maxDistAction", geocsv.Warn.String(), "Action for too distant nodes: warn, reject or rejectandlog")
	f.Int("csvCacheSize", geocsv.DefaultCacheCapacity, "Number of CSV records held in memory")
	f.Bool("unboundedCache", false, "Load the whole CSV file into memory")
	f.String("in", "", "Input entity stream (default stdin)")
	f.String("out", "", "Output entity stream (default stdout)")
	f.Duration("progress", 0, "Progress report interval (0 = off)")
	f.BoolP("debug", "d", false, "Debug logging")

	return cmd
}

// loadConfig binds flags, GEOCSV_* environment variables and the optional
// config file into v. Flags set on the command line win.
func loadConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	v.SetEnvPrefix("GEOCSV")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", file, err)
		}
	}
	return nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// importerOptions translates the settings in v into importer options.
func importerOptions(v *viper.Viper, logger *slog.Logger) ([]geocsv.Option, error) {
	policy, err := geocsv.ParsePolicyMode(v.GetString("maxDistAction"))
	if err != nil {
		return nil, err
	}
	opts := []geocsv.Option{
		geocsv.WithInputPath(v.GetString("inputCSV")),
		geocsv.WithColumns(v.GetInt("idPos"), v.GetInt("tagDataPos")),
		geocsv.WithCoordinateColumns(v.GetInt("latPos"), v.GetInt("lonPos")),
		geocsv.WithOutputTag(v.GetString("outputTag")),
		geocsv.WithMaxDistance(v.GetFloat64("maxDist")),
		geocsv.WithPolicy(policy),
		geocsv.WithLogger(logger),
	}
	if v.GetBool("unboundedCache") {
		opts = append(opts, geocsv.WithUnboundedCache())
	} else {
		n := v.GetInt("csvCacheSize")
		if n <= 0 {
			return nil, fmt.Errorf("%w: csvCacheSize must be positive, got %d", geocsv.ErrInvalidConfig, n)
		}
		opts = append(opts, geocsv.WithCacheCapacity(uint(n)))
	}
	return opts, nil
}

func run(ctx context.Context, v *viper.Viper, stdin io.Reader, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, v.GetBool("debug"))

	opts, err := importerOptions(v, logger)
	if err != nil {
		return err
	}

	in := stdin
	if path := v.GetString("in"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening input stream: %w", err)
		}
		defer f.Close()
		in = f
	}

	var sink *jsonSink
	if path := v.GetString("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output stream: %w", err)
		}
		sink = newJSONSink(f, f)
	} else {
		sink = newJSONSink(stdout, nil)
	}

	im, err := geocsv.NewImporter(sink, opts...)
	if err != nil {
		sink.Release()
		return err
	}
	defer im.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		geocsv.RunProgressMonitor(gctx, im, v.GetDuration("progress"), logger)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		if err := pump(gctx, in, im); err != nil {
			return err
		}
		return im.Complete()
	})
	return g.Wait()
}
