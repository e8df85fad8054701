// SPDX-License-Identifier: MIT

package features

import (
	"encoding/json"
	"fmt"
)

// UnknownKindError reports a feature kind the decoder does not recognise.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("features: unknown kind %q", e.Kind)
}

// specJSON is the wire shape of a single feature spec.
type specJSON struct {
	Kind  Kind            `json:"kind"`
	DType DType           `json:"dtype,omitempty"`
	Shape []int           `json:"shape,omitempty"`
	Names []string        `json:"names,omitempty"`
	Elem  json.RawMessage `json:"elem,omitempty"`
}

func marshalSpec(s Spec) (json.RawMessage, error) {
	out := specJSON{Kind: s.Kind()}
	switch v := s.(type) {
	case Text:
	case *Text:
	case Image:
		out.Shape = v.Shape
	case *Image:
		out.Shape = v.Shape
	case *ClassLabel:
		out.Names = v.Names()
	case Scalar:
		out.DType = v.Type
	case *Scalar:
		out.DType = v.Type
	case Sequence:
		elem, err := marshalSpec(v.Elem)
		if err != nil {
			return nil, err
		}
		out.Elem = elem
	case *Sequence:
		elem, err := marshalSpec(v.Elem)
		if err != nil {
			return nil, err
		}
		out.Elem = elem
	default:
		return nil, fmt.Errorf("features: cannot marshal spec of type %T", s)
	}
	return json.Marshal(out)
}

func unmarshalSpec(raw json.RawMessage) (Spec, error) {
	var w specJSON
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("features: decode spec: %w", err)
	}
	switch w.Kind {
	case KindText:
		return Text{}, nil
	case KindImage:
		return Image{Shape: w.Shape}, nil
	case KindClassLabel:
		cl, err := NewClassLabel(w.Names)
		if err != nil {
			return nil, err
		}
		return cl, nil
	case KindScalar:
		switch w.DType {
		case DTypeString, DTypeInt64, DTypeFloat32, DTypeUint8, DTypeBool:
		default:
			return nil, fmt.Errorf("features: scalar with unknown dtype %q", w.DType)
		}
		return Scalar{Type: w.DType}, nil
	case KindSequence:
		if len(w.Elem) == 0 {
			return nil, fmt.Errorf("features: sequence without elem")
		}
		elem, err := unmarshalSpec(w.Elem)
		if err != nil {
			return nil, err
		}
		return Sequence{Elem: elem}, nil
	default:
		return nil, &UnknownKindError{Kind: string(w.Kind)}
	}
}

// MarshalJSON encodes the dict as a JSON object keyed by field name. Go's
// encoder sorts map keys, so output is deterministic.
func (d *Dict) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, d.Len())
	for _, name := range d.Names() {
		spec, _ := d.Field(name)
		raw, err := marshalSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("features: field %q: %w", name, err)
		}
		fields[name] = raw
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a JSON object keyed by field name.
func (d *Dict) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("features: decode dict: %w", err)
	}
	d.fields = make(map[string]Spec, len(fields))
	for name, raw := range fields {
		if name == "" {
			return fmt.Errorf("features: empty field name")
		}
		spec, err := unmarshalSpec(raw)
		if err != nil {
			return fmt.Errorf("features: field %q: %w", name, err)
		}
		d.fields[name] = spec
	}
	return nil
}
