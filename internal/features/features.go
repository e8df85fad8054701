// SPDX-License-Identifier: MIT

// Package features models the declared schema of dataset records: the set of
// named fields and the type of value each field carries.
package features

import (
	"fmt"
	"sort"
	"strings"
)

// DType is the primitive value type of a feature.
type DType string

const (
	DTypeString  DType = "string"
	DTypeInt64   DType = "int64"
	DTypeFloat32 DType = "float32"
	DTypeUint8   DType = "uint8"
	DTypeBool    DType = "bool"
)

// Kind identifies the concrete feature spec type.
type Kind string

const (
	KindText       Kind = "text"
	KindImage      Kind = "image"
	KindClassLabel Kind = "class_label"
	KindScalar     Kind = "scalar"
	KindSequence   Kind = "sequence"
)

// Spec describes a single feature: what kind of field it is and the primitive
// type of its values. String returns the canonical schema text used on
// catalog pages.
type Spec interface {
	Kind() Kind
	DType() DType
	String() string
}

// Text is a free-form UTF-8 text feature.
type Text struct{}

func (Text) Kind() Kind     { return KindText }
func (Text) DType() DType   { return DTypeString }
func (Text) String() string { return "Text(dtype=string)" }

// Image is an encoded image feature. Shape holds the declared dimensions;
// -1 marks an unknown dimension. A nil shape means fully unknown.
type Image struct {
	Shape []int
}

func (Image) Kind() Kind   { return KindImage }
func (Image) DType() DType { return DTypeUint8 }

func (i Image) String() string {
	if len(i.Shape) == 0 {
		return "Image(dtype=uint8)"
	}
	dims := make([]string, len(i.Shape))
	for n, d := range i.Shape {
		if d < 0 {
			dims[n] = "None"
		} else {
			dims[n] = fmt.Sprintf("%d", d)
		}
	}
	return fmt.Sprintf("Image(shape=(%s), dtype=uint8)", strings.Join(dims, ", "))
}

// ClassLabel is a categorical feature backed by an ordered list of label names.
type ClassLabel struct {
	names []string
	index map[string]int
}

// NewClassLabel builds a ClassLabel from the ordered label names. Duplicate
// names are a construction error.
func NewClassLabel(names []string) (*ClassLabel, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("class label: no names given")
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("class label: empty name at index %d", i)
		}
		if _, dup := index[n]; dup {
			return nil, fmt.Errorf("class label: duplicate name %q", n)
		}
		index[n] = i
	}
	return &ClassLabel{names: append([]string(nil), names...), index: index}, nil
}

func (*ClassLabel) Kind() Kind   { return KindClassLabel }
func (*ClassLabel) DType() DType { return DTypeInt64 }

func (c *ClassLabel) String() string {
	return fmt.Sprintf("ClassLabel(num_classes=%d)", len(c.names))
}

// NumClasses returns the number of label names.
func (c *ClassLabel) NumClasses() int { return len(c.names) }

// Names returns a copy of the ordered label names.
func (c *ClassLabel) Names() []string { return append([]string(nil), c.names...) }

// Index returns the integer value of a label name.
func (c *ClassLabel) Index(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Name returns the label name for an integer value.
func (c *ClassLabel) Name(i int) (string, bool) {
	if i < 0 || i >= len(c.names) {
		return "", false
	}
	return c.names[i], true
}

// Scalar is a single primitive value of an explicit dtype.
type Scalar struct {
	Type DType
}

func (Scalar) Kind() Kind       { return KindScalar }
func (s Scalar) DType() DType   { return s.Type }
func (s Scalar) String() string { return fmt.Sprintf("Scalar(dtype=%s)", s.Type) }

// Sequence is a homogeneous variable-length list of an inner feature.
type Sequence struct {
	Elem Spec
}

func (Sequence) Kind() Kind     { return KindSequence }
func (s Sequence) DType() DType { return s.Elem.DType() }
func (s Sequence) String() string {
	return fmt.Sprintf("Sequence(%s)", s.Elem.String())
}

// Dict is a named mapping of field name to feature spec. Iteration order is
// sorted by field name so rendered schemas are deterministic.
type Dict struct {
	fields map[string]Spec
}

// NewDict builds a Dict from the given fields. Field names must be non-empty.
func NewDict(fields map[string]Spec) (*Dict, error) {
	d := &Dict{fields: make(map[string]Spec, len(fields))}
	for name, spec := range fields {
		if name == "" {
			return nil, fmt.Errorf("feature dict: empty field name")
		}
		if spec == nil {
			return nil, fmt.Errorf("feature dict: field %q has no spec", name)
		}
		d.fields[name] = spec
	}
	return d, nil
}

// MustDict is NewDict that panics on error; intended for fixtures and tests.
func MustDict(fields map[string]Spec) *Dict {
	d, err := NewDict(fields)
	if err != nil {
		panic(err)
	}
	return d
}

// Len returns the number of fields.
func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Names returns the field names sorted.
func (d *Dict) Names() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.fields))
	for n := range d.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Field returns the spec for a field name.
func (d *Dict) Field(name string) (Spec, bool) {
	if d == nil {
		return nil, false
	}
	s, ok := d.fields[name]
	return s, ok
}

// SchemaText renders the canonical multi-line schema block used on catalog
// pages, one field per line, sorted by name.
func (d *Dict) SchemaText() string {
	var b strings.Builder
	b.WriteString("FeaturesDict({\n")
	for _, name := range d.Names() {
		spec := d.fields[name]
		fmt.Fprintf(&b, "    '%s': %s,\n", name, spec.String())
	}
	b.WriteString("})")
	return b.String()
}
