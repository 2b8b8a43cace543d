package config

import (
	"fmt"
	"strings"
	"time"

	"shopetl/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single lint finding. Path is a dotted path into the
// config (e.g. "storage.kind", "sources.orders.path").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation of p without mutating it.
// Callers decide whether warnings are fatal.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics and logs will use \"etl\"",
		})
	}
	issues = append(issues, validateStorage(p.Storage)...)
	issues = append(issues, validateSources(p.Sources)...)
	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateDimTime(p.DimTime)...)
	issues = append(issues, validateResources(p.Resources)...)
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	switch strings.TrimSpace(s.Kind) {
	case "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	case "postgres", "sqlite", "mssql":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; expected postgres, sqlite or mssql", s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty (or set DATABASE_URL)",
		})
	}
	if s.Partitions.FromYear > s.Partitions.ToYear {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.partitions",
			Message:  fmt.Sprintf("from_year %d is after to_year %d", s.Partitions.FromYear, s.Partitions.ToYear),
		})
	}
	return issues
}

func validateSources(srcs map[string]Source) []Issue {
	var issues []Issue

	known := map[string]bool{}
	for _, r := range schema.SourceRelations {
		known[r.Key()] = true
		src, ok := srcs[r.Key()]
		if !ok || strings.TrimSpace(src.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "sources." + r.Key() + ".path",
				Message:  fmt.Sprintf("no source file for %s", r),
			})
			continue
		}
		if c := src.Options.String("comma", ","); len([]rune(c)) != 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "sources." + r.Key() + ".options.comma",
				Message:  fmt.Sprintf("comma must be a single character, got %q", c),
			})
		}
	}
	for k := range srcs {
		if !known[k] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "sources." + k,
				Message:  "unknown relation; source will be ignored",
			})
		}
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.ChunkSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.chunk_size",
			Message:  fmt.Sprintf("chunk_size=%d; must be positive", r.ChunkSize),
		})
	}
	if r.MaxParallel <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_parallel",
			Message:  fmt.Sprintf("max_parallel=%d; must be positive", r.MaxParallel),
		})
	}
	return issues
}

func validateDimTime(d DimTime) []Issue {
	var issues []Issue

	start, err := time.Parse(time.DateOnly, d.Start)
	if err != nil {
		issues = append(issues, Issue{SeverityError, "dim_time.start", fmt.Sprintf("not a date: %q", d.Start)})
	}
	end, err2 := time.Parse(time.DateOnly, d.End)
	if err2 != nil {
		issues = append(issues, Issue{SeverityError, "dim_time.end", fmt.Sprintf("not a date: %q", d.End)})
	}
	if err == nil && err2 == nil && end.Before(start) {
		issues = append(issues, Issue{SeverityError, "dim_time", "end is before start"})
	}
	return issues
}

func validateResources(res map[string]Resources) []Issue {
	var issues []Issue
	for task, r := range res {
		if !strings.Contains(task, ":") {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "resources." + task,
				Message:  "task names look like \"load:orders\"; this hint will not match any task",
			})
		}
		if r.CPU == "" && r.Memory == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "resources." + task,
				Message:  "empty resource hint",
			})
		}
	}
	return issues
}
