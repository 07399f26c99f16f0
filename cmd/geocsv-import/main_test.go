package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/andreiashu/geocsv"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func decodeAll(t *testing.T, data string) []jsonEntity {
	t.Helper()
	var out []jsonEntity
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		if line == "" {
			continue
		}
		var j jsonEntity
		if err := json.Unmarshal([]byte(line), &j); err != nil {
			t.Fatalf("decoding %q: %v", line, err)
		}
		out = append(out, j)
	}
	return out
}

func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "streets.csv", "; id,lat,lon,street\n1,48.0,11.0,Hauptstraße\n2,48.0,11.0,Nebenweg\n")

	in := strings.Join([]string{
		`{"id":1,"lat":48.0,"lon":11.0,"tags":[{"k":"ADDR:STREET","v":"old"}]}`,
		`{"type":"way","id":5,"tags":[{"k":"highway","v":"residential"}]}`,
		`{"id":2,"lat":10.0,"lon":11.0}`,
		`{"id":3,"lat":48.0,"lon":11.0}`,
	}, "\n")

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetIn(strings.NewReader(in))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{
		"--inputCSV", csv,
		"--idPos", "1", "--latPos", "2", "--lonPos", "3", "--tagDataPos", "4",
		"--outputTag", "addr:street",
		"--maxDist", "100",
		"--maxDistAction", "rejectandlog",
		"--csvCacheSize", "1",
	})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v\n%s", err, stderr.String())
	}

	got := decodeAll(t, stdout.String())
	if len(got) != 4 {
		t.Fatalf("got %d entities, want 4:\n%s", len(got), stdout.String())
	}
	if len(got[0].Tags) != 1 || got[0].Tags[0] != (jsonTag{K: "addr:street", V: "Hauptstraße"}) {
		t.Errorf("node 1 tags = %v", got[0].Tags)
	}
	if got[1].Type != "way" || len(got[1].Tags) != 1 || got[1].Tags[0].K != "highway" {
		t.Errorf("way passed through as %+v", got[1])
	}
	if len(got[2].Tags) != 0 {
		t.Errorf("too distant node 2 tags = %v, want none", got[2].Tags)
	}
	if len(got[3].Tags) != 0 {
		t.Errorf("absent node 3 tags = %v, want none", got[3].Tags)
	}
	if !strings.Contains(stderr.String(), "import finished") {
		t.Errorf("stderr missing final counts:\n%s", stderr.String())
	}

	audit, err := os.ReadFile(filepath.Join(dir, "streets-dirtyNodes.csv"))
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	if !strings.Contains(string(audit), "\n2,10,11,48,11,Nebenweg,") {
		t.Errorf("audit log missing node 2:\n%s", audit)
	}
}

func TestRootCommandFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "names.csv", "7,Seven\n")
	cfg := writeFile(t, dir, "geocsv.yaml", strings.Join([]string{
		"inputCSV: " + csv,
		"idPos: 1",
		"tagDataPos: 2",
		"outputTag: name",
		"unboundedCache: true",
	}, "\n"))
	out := filepath.Join(dir, "out.jsonl")
	in := writeFile(t, dir, "in.jsonl", `{"id":7,"lat":1,"lon":2}`+"\n")

	cmd := newRootCommand()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfg, "--in", in, "--out", out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	got := decodeAll(t, string(data))
	if len(got) != 1 || len(got[0].Tags) != 1 || got[0].Tags[0] != (jsonTag{K: "name", V: "Seven"}) {
		t.Errorf("output = %s", data)
	}
}

func TestRootCommandInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	csv := writeFile(t, dir, "names.csv", "7,Seven\n")

	tests := []struct {
		name string
		args []string
	}{
		{"no output tag", []string{"--inputCSV", csv, "--idPos", "1", "--tagDataPos", "2"}},
		{"bad policy", []string{"--inputCSV", csv, "--idPos", "1", "--tagDataPos", "2", "--outputTag", "x", "--maxDistAction", "explode"}},
		{"zero cache", []string{"--inputCSV", csv, "--idPos", "1", "--tagDataPos", "2", "--outputTag", "x", "--csvCacheSize", "0"}},
		{"max distance without coordinates", []string{"--inputCSV", csv, "--idPos", "1", "--tagDataPos", "2", "--outputTag", "x", "--maxDist", "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand()
			cmd.SetIn(strings.NewReader(""))
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if !errors.Is(err, geocsv.ErrInvalidConfig) {
				t.Errorf("Execute() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	v := viper.New()
	v.Set("inputCSV", writeFile(t, dir, "names.csv", "7,Seven\n"))
	v.Set("idPos", 1)
	v.Set("tagDataPos", 2)
	v.Set("outputTag", "name")
	v.Set("maxDist", math.Inf(1))
	v.Set("maxDistAction", "warn")
	v.Set("csvCacheSize", 10)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- run(ctx, v, newBlockingReader(t), &bytes.Buffer{}, &bytes.Buffer{}) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
