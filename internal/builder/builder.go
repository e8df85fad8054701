// SPDX-License-Identifier: MIT

// Package builder produces dataset records and split examples. Builders are
// registered by dataset name; the manifest builder declares datasets in YAML,
// the label-mapped variant additionally generates labeled file examples.
package builder

import (
	"context"
	"fmt"

	"github.com/irfnrdh/tensorflow-datasets/internal/catalog"
	"github.com/irfnrdh/tensorflow-datasets/internal/download"
	"github.com/irfnrdh/tensorflow-datasets/internal/features"
)

// Example is one generated record: a unique key plus field values conforming
// to the dataset's feature schema.
type Example struct {
	Key    string
	Values map[string]any
}

// SplitSource names a split and streams its examples through emit. Generate
// stops when emit returns an error.
type SplitSource struct {
	Name     string
	Generate func(ctx context.Context, emit func(Example) error) error
}

// Builder builds one dataset: its catalog record and, where the dataset
// generates data, its split examples.
type Builder interface {
	Name() string
	Info() (*catalog.DatasetInfo, error)
	Splits(ctx context.Context, dm *download.Manager) ([]SplitSource, error)
}

// Collect drains a split source into memory, enforcing key uniqueness.
// Duplicate keys within a split are a generation error.
func Collect(ctx context.Context, src SplitSource) ([]Example, error) {
	seen := make(map[string]struct{})
	var out []Example
	err := src.Generate(ctx, func(ex Example) error {
		if _, dup := seen[ex.Key]; dup {
			return fmt.Errorf("builder: split %q: duplicate example key %q", src.Name, ex.Key)
		}
		seen[ex.Key] = struct{}{}
		out = append(out, ex)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConformsTo checks an example against a feature schema: the value fields
// must match the schema fields exactly, and class-label values given as
// strings must name declared classes.
func ConformsTo(dict *features.Dict, ex Example) error {
	if dict == nil {
		return fmt.Errorf("builder: example %q checked against a nil schema", ex.Key)
	}
	for _, name := range dict.Names() {
		val, ok := ex.Values[name]
		if !ok {
			return fmt.Errorf("builder: example %q is missing field %q", ex.Key, name)
		}
		spec, _ := dict.Field(name)
		if cl, isLabel := spec.(*features.ClassLabel); isLabel {
			if s, isStr := val.(string); isStr {
				if _, known := cl.Index(s); !known {
					return fmt.Errorf("builder: example %q: %q is not a class of field %q", ex.Key, s, name)
				}
			}
		}
	}
	for name := range ex.Values {
		if _, ok := dict.Field(name); !ok {
			return fmt.Errorf("builder: example %q has undeclared field %q", ex.Key, name)
		}
	}
	return nil
}
