package model

import "sort"

// Schema describes which canonical fields a source file populates, and from
// which column. Only enabled fields take part in validation scoping and merge
// filtering.
type Schema struct {
	Fields map[Field]string `json:"fields" yaml:"fields"`
}

// NewSchema enables the given fields with the column named after the field.
func NewSchema(fields ...Field) Schema {
	s := Schema{Fields: make(map[Field]string, len(fields))}
	for _, f := range fields {
		s.Fields[f] = string(f)
	}
	return s
}

// Enabled reports whether f is mapped by the schema.
func (s Schema) Enabled(f Field) bool {
	_, ok := s.Fields[f]
	return ok
}

// Column returns the source column mapped to f.
func (s Schema) Column(f Field) string {
	return s.Fields[f]
}

// EnabledFields returns the mapped fields in canonical order.
func (s Schema) EnabledFields() []Field {
	out := make([]Field, 0, len(s.Fields))
	for f := range s.Fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order() < out[j].Order() })
	return out
}
