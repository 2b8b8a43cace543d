package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// decodeYAML strictly decodes a YAML pipeline; unknown keys are an error so
// typos in hand-written job files surface before a run.
func decodeYAML(b []byte) (Pipeline, error) {
	var p Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("yaml: %w", err)
	}
	for k, s := range p.Sources {
		if s.Options == nil {
			s.Options = Options{}
			p.Sources[k] = s
		}
	}
	return p, nil
}
