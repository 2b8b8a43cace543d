package extract

import (
	"strings"

	"shopetl/internal/config"
)

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// Options controls how a delimited file is split into records.
type Options struct {
	// Comma is the field delimiter. When zero, ',' is used.
	Comma rune

	// HasHeader indicates the first line names the columns. Without a header
	// Columns supplies the names positionally.
	HasHeader bool
	Columns   []string

	// TrimSpace trims leading/trailing whitespace from every field.
	TrimSpace bool

	// LazyQuotes relaxes quote handling (csv.Reader.LazyQuotes).
	LazyQuotes bool

	// HeaderMap maps source header names to canonical column names. Headers
	// without an entry are lower-cased with spaces turned into underscores.
	HeaderMap map[string]string
}

// OptionsFrom reads CSV options from a source's free-form options bag.
// Defaults: comma ',', has_header true, trim_space true.
func OptionsFrom(o config.Options) Options {
	hm := o.StringMap("header_map")
	if len(hm) == 0 {
		hm = nil
	}
	return Options{
		Comma:      o.Rune("comma", ','),
		HasHeader:  o.Bool("has_header", true),
		TrimSpace:  o.Bool("trim_space", true),
		LazyQuotes: o.Bool("lazy_quotes", false),
		HeaderMap:  hm,
	}
}

func normalizeHeaders(h []string, opt Options) []string {
	res := make([]string, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimPrefix(c, utf8BOM)
		}
		if opt.HeaderMap != nil {
			if m, ok := opt.HeaderMap[c]; ok {
				res[i] = m
				continue
			}
		}
		res[i] = strings.ReplaceAll(strings.ToLower(c), " ", "_")
	}
	return res
}
