// Package schema loads the field mapping of an input file: which canonical
// fields it carries and which column each one comes from.
package schema

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/textnorm"
)

// file is the on-disk layout:
//
//	fields:
//	  company_name: Company
//	  country: Country Code
//	  city: ""            # column named "city"
type file struct {
	Fields map[string]string `yaml:"fields"`
}

// Parse decodes a YAML schema document.
func Parse(data []byte) (model.Schema, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return model.Schema{}, eris.Wrap(err, "schema: parse yaml")
	}
	if len(f.Fields) == 0 {
		return model.Schema{}, eris.New("schema: no fields mapped")
	}

	s := model.Schema{Fields: make(map[model.Field]string, len(f.Fields))}
	seen := make(map[string]model.Field, len(f.Fields))
	for name, column := range f.Fields {
		field, err := model.ParseField(name)
		if err != nil {
			return model.Schema{}, eris.Wrap(err, "schema: fields")
		}
		column = strings.TrimSpace(column)
		if column == "" {
			column = string(field)
		}
		key := columnKey(column)
		if other, dup := seen[key]; dup {
			return model.Schema{}, eris.Errorf("schema: column %q mapped to both %s and %s", column, other, field)
		}
		seen[key] = field
		s.Fields[field] = column
	}
	return s, nil
}

// LoadFile reads and parses a YAML schema file.
func LoadFile(path string) (model.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Schema{}, eris.Wrapf(err, "schema: read %s", path)
	}
	return Parse(data)
}

// FromFields enables fields by canonical name, each read from the column of
// the same name.
func FromFields(names []string) (model.Schema, error) {
	fields := make([]model.Field, 0, len(names))
	for _, n := range names {
		f, err := model.ParseField(n)
		if err != nil {
			return model.Schema{}, eris.Wrap(err, "schema: fields")
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return model.Schema{}, eris.New("schema: no fields mapped")
	}
	return model.NewSchema(fields...), nil
}

// Canonical maps every header column that is named exactly like a canonical
// field (case and surrounding spaces ignored) to that field. It is the default
// when no schema file is given; any other column naming needs an explicit
// mapping. The first column wins when a name repeats.
func Canonical(header []string) (model.Schema, error) {
	s := model.Schema{Fields: make(map[model.Field]string)}
	for _, col := range header {
		f, err := model.ParseField(col)
		if err != nil || s.Enabled(f) {
			continue
		}
		s.Fields[f] = strings.TrimSpace(col)
	}
	if len(s.Fields) == 0 {
		return model.Schema{}, eris.Errorf("schema: no canonical columns in header %v; pass a schema file", header)
	}
	return s, nil
}

func columnKey(col string) string {
	return textnorm.Key(col)
}
