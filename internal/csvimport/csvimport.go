// Package csvimport loads locally exported request CSV files through
// the declarative pipeline. Export chunks follow the collaborator's
// naming convention (request_<form_label>_<stamp>_<n>_<seq>.csv); files
// sharing a label, stamp, and chunk number form one group, ordered by
// sequence, and each group runs the pipeline document bound to its
// form label.
package csvimport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"gopkg.in/yaml.v3"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
	"github.com/jobcan-tools/jobcan-di/internal/loader"
	"github.com/jobcan-tools/jobcan-di/internal/pipeline"
	"github.com/jobcan-tools/jobcan-di/internal/sqlschema"
)

// DefaultPattern is the stock filename convention. A custom pattern
// must keep the form_label and seq capture groups; stamp and n are
// optional grouping keys.
const DefaultPattern = `^request_(?P<form_label>.+)_(?P<stamp>\d{14})_(?P<n>\d+)_(?P<seq>\d+)\.csv$`

// Config is the csv_import.yaml document.
type Config struct {
	// Pattern overrides DefaultPattern.
	Pattern string `yaml:"pattern"`
	// Encoding is the default CSV encoding (IANA name); UTF-8 when empty.
	Encoding string `yaml:"encoding"`
	// Pipelines bind form labels to pipeline documents.
	Pipelines []Binding `yaml:"pipelines"`
}

// Binding routes one form label to its TOML pipeline document.
type Binding struct {
	FormLabel string `yaml:"form_label"`
	// Pipeline is the document path, relative to the config directory.
	Pipeline string `yaml:"pipeline"`
	// SourceName is the raw-source name injected into the document's
	// data link; "csv_<form_label>" when empty.
	SourceName string `yaml:"source_name"`
	// Encoding overrides the config-level default for this label.
	Encoding string `yaml:"encoding"`
}

// LoadConfig reads csv_import.yaml. A missing file yields the zero
// config without complaint (the file is optional); an unreadable or
// malformed one yields the zero config plus a warning.
func LoadConfig(path string) (Config, *dierr.Warning) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, dierr.NewWarning(dierr.InvalidConfigFilePath).
			With("path", path).
			With("error", err.Error())
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, dierr.NewWarning(dierr.InvalidConfigFilePath).
			With("path", path).
			With("error", err.Error())
	}
	return cfg, nil
}

// Group is one import unit: the chunk files of a single export, in
// sequence order.
type Group struct {
	FormLabel string
	Stamp     string
	N         string
	// Files are absolute paths sorted by the seq capture.
	Files []string
}

// Importer scans a directory for export groups and runs each through
// its bound pipeline.
type Importer struct {
	cfg     Config
	baseDir string
	pattern *regexp.Regexp
}

// New compiles the configured pattern. baseDir anchors relative
// pipeline and database paths, normally the config directory.
func New(cfg Config, baseDir string) (*Importer, error) {
	pat := cfg.Pattern
	if pat == "" {
		pat = DefaultPattern
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("csv pattern: %w", err)
	}
	names := re.SubexpNames()
	for _, required := range []string{"form_label", "seq"} {
		if !contains(names, required) {
			return nil, fmt.Errorf("csv pattern: capture group %q missing", required)
		}
	}
	return &Importer{cfg: cfg, baseDir: baseDir, pattern: re}, nil
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

type groupKey struct {
	label, stamp, n string
}

type member struct {
	path string
	seq  int
}

// Scan matches every file in dir against the pattern and groups the
// hits. Non-matching files are ignored. Group order is deterministic:
// label, then stamp, then chunk number.
func (im *Importer) Scan(dir string) ([]Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	groups := map[groupKey][]member{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := im.pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		caps := map[string]string{}
		for i, name := range im.pattern.SubexpNames() {
			if name != "" {
				caps[name] = match[i]
			}
		}
		seq, err := strconv.Atoi(caps["seq"])
		if err != nil {
			continue
		}
		key := groupKey{label: caps["form_label"], stamp: caps["stamp"], n: caps["n"]}
		groups[key] = append(groups[key], member{
			path: filepath.Join(dir, entry.Name()),
			seq:  seq,
		})
	}

	out := make([]Group, 0, len(groups))
	for key, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })
		g := Group{FormLabel: key.label, Stamp: key.stamp, N: key.n}
		for _, m := range members {
			g.Files = append(g.Files, m.path)
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FormLabel != b.FormLabel {
			return a.FormLabel < b.FormLabel
		}
		if a.Stamp != b.Stamp {
			return a.Stamp < b.Stamp
		}
		return a.N < b.N
	})
	return out, nil
}

// Import runs every group found in dir through its bound pipeline.
// Per-group problems (no binding, unreadable CSV, bad document) are
// warnings and the remaining groups still run; a pipeline-level fatal
// (target database unreachable) aborts.
func (im *Importer) Import(ctx context.Context, dir string) ([]*dierr.Warning, *dierr.Fatal) {
	groups, err := im.Scan(dir)
	if err != nil {
		return nil, dierr.FatalFrom(dierr.Unexpected, err).With("dir", dir)
	}

	var warnings []*dierr.Warning
	for _, group := range groups {
		groupWarnings, fatal := im.importGroup(ctx, group)
		warnings = append(warnings, groupWarnings...)
		if fatal != nil {
			return warnings, fatal
		}
	}
	return warnings, nil
}

func (im *Importer) importGroup(ctx context.Context, group Group) ([]*dierr.Warning, *dierr.Fatal) {
	binding := im.binding(group.FormLabel)
	if binding == nil {
		return []*dierr.Warning{dierr.NewWarning(dierr.InvalidConfigFilePath).
			With("form_label", group.FormLabel).
			With("error", "no pipeline bound for form label")}, nil
	}

	units, err := im.readGroup(group, binding)
	if err != nil {
		return []*dierr.Warning{dierr.NewWarning(dierr.CsvReadFailed).
			With("form_label", group.FormLabel).
			With("error", err.Error())}, nil
	}

	def, warn := im.parseDocument(binding)
	if warn != nil {
		return []*dierr.Warning{warn}, nil
	}

	sourceName := binding.SourceName
	if sourceName == "" {
		sourceName = "csv_" + group.FormLabel
	}
	if err := def.Link.AddSource(pipeline.NewRawSource(
		sourceName, pipeline.MultipleJSONEntries, "results", units)); err != nil {
		return []*dierr.Warning{dierr.NewWarning(dierr.InvalidConfigFilePath).
			With("form_label", group.FormLabel).
			With("error", err.Error())}, nil
	}

	return loader.RunDocument(ctx, def)
}

func (im *Importer) binding(formLabel string) *Binding {
	for i := range im.cfg.Pipelines {
		if im.cfg.Pipelines[i].FormLabel == formLabel {
			return &im.cfg.Pipelines[i]
		}
	}
	return nil
}

// parseDocument reads and parses the bound pipeline document, anchoring
// a relative SQLite target path at the importer's base directory.
func (im *Importer) parseDocument(binding *Binding) (*pipeline.Definition, *dierr.Warning) {
	path := im.resolve(binding.Pipeline)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dierr.NewWarning(dierr.InvalidConfigFilePath).
			With("path", path).
			With("error", err.Error())
	}
	def, err := pipeline.ParseDocument(data)
	if err != nil {
		return nil, dierr.NewWarning(dierr.InvalidConfigFilePath).
			With("path", path).
			With("error", err.Error())
	}
	if def.TableDefinition.Dialect == sqlschema.DialectSQLite {
		def.TableDefinition.Path = im.resolve(def.TableDefinition.Path)
	}
	return def, nil
}

func (im *Importer) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || im.baseDir == "" {
		return path
	}
	return filepath.Join(im.baseDir, path)
}

// readGroup decodes and parses every chunk of a group into map units
// keyed by the chunk's own header row. All values stay strings; the
// pipeline's conversion methods handle typing.
func (im *Importer) readGroup(group Group, binding *Binding) ([]pipeline.Unit, error) {
	encodingName := binding.Encoding
	if encodingName == "" {
		encodingName = im.cfg.Encoding
	}

	var units []pipeline.Unit
	for _, path := range group.Files {
		fileUnits, err := readFile(path, encodingName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		units = append(units, fileUnits...)
	}
	return units, nil
}

func readFile(path, encodingName string) ([]pipeline.Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if dec := lookupDecoder(encodingName); dec != nil {
		r = dec.Reader(f)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // header decides per file, short rows pad below

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var units []pipeline.Unit
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) > len(header) {
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(record), len(header))
		}
		unit := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				unit[col] = record[i]
			} else {
				unit[col] = ""
			}
		}
		units = append(units, unit)
	}
	return units, nil
}

// lookupDecoder resolves an IANA encoding name. UTF-8 and unknown
// names pass bytes through untouched.
func lookupDecoder(name string) *encoding.Decoder {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil
	}
	e, err := ianaindex.IANA.Encoding(name)
	if err != nil || e == nil {
		return nil
	}
	return e.NewDecoder()
}
