// SPDX-License-Identifier: MIT

// Package catalog models dataset catalog records: a dataset's descriptive
// facts, its configuration variants and their feature schemas.
package catalog

import (
	"fmt"

	"github.com/oapi-codegen/runtime/types"

	"github.com/irfnrdh/tensorflow-datasets/internal/features"
)

// SizeUnknown marks a byte size that has not been measured.
const SizeUnknown int64 = -1

// SupervisedKeys names the input/target field pair for supervised training.
type SupervisedKeys struct {
	Input  string `json:"input"`
	Target string `json:"target"`
}

// ConfigInfo is one configuration variant of a dataset: a named preset that
// produces a distinct data slice. Zero-valued fields inherit from the dataset
// record during effective-config resolution.
type ConfigInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Version     Version          `json:"version,omitempty"`
	SizeBytes   int64            `json:"size_bytes"`
	Features    *features.Dict   `json:"features,omitempty"`
	URLs        []string         `json:"urls,omitempty"`
	Splits      map[string]int64 `json:"splits,omitempty"`
}

// DatasetInfo is the catalog record of one dataset.
type DatasetInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Homepage    string          `json:"homepage,omitempty"`
	Citation    string          `json:"citation,omitempty"`
	Version     Version         `json:"version"`
	Features    *features.Dict  `json:"features,omitempty"`
	Supervised  *SupervisedKeys `json:"supervised_keys,omitempty"`
	URLs        []string        `json:"urls,omitempty"`
	Configs     []ConfigInfo    `json:"configs,omitempty"`
	ReleaseDate *types.Date     `json:"release_date,omitempty"`
}

// FullName joins a dataset and config name as "<dataset>/<config>". A config
// named like its dataset (the implicit variant of a config-less dataset)
// collapses to the bare dataset name.
func FullName(dataset, config string) string {
	if config == "" || config == dataset {
		return dataset
	}
	return dataset + "/" + config
}

// Validate checks the record's internal consistency: canonical names, a set
// version, unique config names, and supervised keys that refer to declared
// fields. Content-level checks (citation shape, URL schemes, empty feature
// lists) belong to the linter, not here.
func (d *DatasetInfo) Validate() error {
	if !IsNormalized(d.Name) {
		return fmt.Errorf("catalog: dataset name %q is not a canonical identifier", d.Name)
	}
	if d.Version.IsZero() {
		return fmt.Errorf("catalog: dataset %q has no version", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Configs))
	for _, c := range d.Configs {
		if !IsNormalized(c.Name) {
			return fmt.Errorf("catalog: dataset %q: config name %q is not a canonical identifier", d.Name, c.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("catalog: dataset %q: duplicate config %q", d.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	if d.Supervised != nil {
		if err := d.validateSupervised(); err != nil {
			return err
		}
	}
	return nil
}

func (d *DatasetInfo) validateSupervised() error {
	if d.Features == nil {
		return fmt.Errorf("catalog: dataset %q declares supervised keys without a feature schema", d.Name)
	}
	for _, field := range []string{d.Supervised.Input, d.Supervised.Target} {
		if _, ok := d.Features.Field(field); !ok {
			return fmt.Errorf("catalog: dataset %q: supervised key %q is not a declared field", d.Name, field)
		}
	}
	return nil
}

// EffectiveConfigs resolves the configuration variants a dataset presents. A
// dataset without explicit configs yields one implicit variant named after
// the dataset. Explicit variants inherit version, features and reference URLs
// from the dataset record where they do not override them.
func (d *DatasetInfo) EffectiveConfigs() []ConfigInfo {
	if len(d.Configs) == 0 {
		return []ConfigInfo{{
			Name:      d.Name,
			Version:   d.Version,
			SizeBytes: SizeUnknown,
			Features:  d.Features,
			URLs:      d.URLs,
		}}
	}
	out := make([]ConfigInfo, len(d.Configs))
	for i, c := range d.Configs {
		if c.Version.IsZero() {
			c.Version = d.Version
		}
		if c.Features == nil {
			c.Features = d.Features
		}
		if len(c.URLs) == 0 {
			c.URLs = d.URLs
		}
		out[i] = c
	}
	return out
}

// Config returns the effective variant with the given name.
func (d *DatasetInfo) Config(name string) (ConfigInfo, bool) {
	for _, c := range d.EffectiveConfigs() {
		if c.Name == name {
			return c, true
		}
	}
	return ConfigInfo{}, false
}
