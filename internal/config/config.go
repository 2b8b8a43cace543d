// Package config defines the configuration model for an ETL run. A Pipeline is
// decoded from a JSON or YAML file (chosen by extension), adjusted by
// environment overrides and then linted by ValidatePipeline.
//
// Example (trimmed):
//
//	job: nightly
//	storage: { kind: postgres, dsn: "postgresql://...", auto_migrate: true }
//	sources:
//	  categories: { path: data/product_categories.csv }
//	  products:   { path: data/products.csv, options: { comma: ";" } }
//	runtime: { chunk_size: 10000, max_parallel: 4 }
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultChunkSize   = 10000
	DefaultMaxParallel = 4
	DefaultDimStart    = "2021-01-01"
	DefaultDimEnd      = "2025-12-31"
)

// Pipeline is the top-level object decoded from a job file.
type Pipeline struct {
	// Job names the run for logs and metrics labels.
	Job string `json:"job" yaml:"job"`

	Storage Storage `json:"storage" yaml:"storage"`

	// Sources maps a relation key (categories, products, customers, orders,
	// order_items) to its flat file.
	Sources map[string]Source `json:"sources" yaml:"sources"`

	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Policy  Policy        `json:"policy" yaml:"policy"`
	DimTime DimTime       `json:"dim_time" yaml:"dim_time"`

	// Resources carries per-task hints keyed by task name (e.g. "load:orders").
	// They are reported to the host, not enforced.
	Resources map[string]Resources `json:"resources" yaml:"resources"`
}

// Storage selects and configures the backend.
type Storage struct {
	// Kind is one of "postgres", "sqlite", "mssql".
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`

	// AutoMigrate creates missing tables, partitions and views before the run.
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate"`

	Partitions Partitions `json:"partitions" yaml:"partitions"`
}

// Partitions bounds the yearly order partitions created on Postgres. Rows
// outside the range land in the default partition.
type Partitions struct {
	FromYear int `json:"from_year" yaml:"from_year"`
	ToYear   int `json:"to_year" yaml:"to_year"`
}

// Source is one flat file and its parser options.
type Source struct {
	Path string `json:"path" yaml:"path"`

	// Options for the CSV reader: comma (string), has_header (bool),
	// trim_space (bool), lazy_quotes (bool), header_map (object).
	Options Options `json:"options" yaml:"options"`
}

// RuntimeConfig controls batching and task concurrency.
type RuntimeConfig struct {
	ChunkSize   int `json:"chunk_size" yaml:"chunk_size"`
	MaxParallel int `json:"max_parallel" yaml:"max_parallel"`
}

// Policy holds behavior switches for record-level defects.
type Policy struct {
	// FailOnEmptyBatch fails a task when validation removes every record of a
	// non-empty batch. Off by default: the batch is skipped.
	FailOnEmptyBatch bool `json:"fail_on_empty_batch" yaml:"fail_on_empty_batch"`
}

// DimTime is the inclusive calendar range generated into dim_time.
type DimTime struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Resources is a resource hint for one task.
type Resources struct {
	CPU    string `json:"cpu" yaml:"cpu"`
	Memory string `json:"memory" yaml:"memory"`
}

// Load reads a pipeline file. Files ending in .yaml or .yml are decoded as
// YAML, anything else as JSON. Defaults are applied; env overrides are not.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var p Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		p, err = decodeYAML(b)
	default:
		err = json.Unmarshal(b, &p)
	}
	if err != nil {
		return Pipeline{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	p.ApplyDefaults()
	return p, nil
}

// ApplyDefaults fills zero values with the built-in defaults.
func (p *Pipeline) ApplyDefaults() {
	if p.Runtime.ChunkSize <= 0 {
		p.Runtime.ChunkSize = DefaultChunkSize
	}
	if p.Runtime.MaxParallel <= 0 {
		p.Runtime.MaxParallel = DefaultMaxParallel
	}
	if p.DimTime.Start == "" {
		p.DimTime.Start = DefaultDimStart
	}
	if p.DimTime.End == "" {
		p.DimTime.End = DefaultDimEnd
	}
	if p.Storage.Partitions.FromYear == 0 {
		p.Storage.Partitions.FromYear = 2021
	}
	if p.Storage.Partitions.ToYear == 0 {
		p.Storage.Partitions.ToYear = 2025
	}
	if p.Sources == nil {
		p.Sources = map[string]Source{}
	}
}

// Options is a small helper to fetch typed values from free-form maps. It
// performs only minimal coercion and returns the provided default when a key
// is absent or of an unexpected type. JSON numbers arrive as float64 and YAML
// numbers as int; both are accepted.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Used for the CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns the string entries of an object value. Non-string values
// are ignored; a missing key yields an empty map.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// UnmarshalJSON makes a missing or null options object decode to an empty,
// non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
