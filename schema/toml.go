package schema

import (
	"bytes"
	_ "embed"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/slice/errors"
)

//go:embed default_schema.toml
var defaultSchemaTOML []byte

// fileSchema is the on-disk layout of a schema definition file.
type fileSchema struct {
	Version string      `toml:"version"`
	Classes []fileClass `toml:"class"`
}

type fileClass struct {
	Name       string          `toml:"name"`
	Parent     string          `toml:"parent,omitempty"`
	Abstract   bool            `toml:"abstract,omitempty"`
	Attributes []fileAttribute `toml:"attribute,omitempty"`
}

type fileAttribute struct {
	Name     string   `toml:"name"`
	Type     string   `toml:"type"`
	Multiple bool     `toml:"multiple,omitempty"`
	Defining bool     `toml:"defining,omitempty"`
	Allowed  []string `toml:"allowed,omitempty"`
}

// ParseTOML reads a schema definition.
func ParseTOML(r io.Reader) (*Schema, error) {
	var fs fileSchema
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fs); err != nil {
		return nil, errors.Wrap(err, "decode schema file")
	}
	classes := make([]*Class, 0, len(fs.Classes))
	for _, fc := range fs.Classes {
		c := &Class{Name: fc.Name, Parent: fc.Parent, Abstract: fc.Abstract}
		for _, fa := range fc.Attributes {
			c.Own = append(c.Own, &Attribute{
				Name:     fa.Name,
				Type:     ValueType(fa.Type),
				Multiple: fa.Multiple,
				Defining: fa.Defining,
				Allowed:  fa.Allowed,
			})
		}
		classes = append(classes, c)
	}
	return New(fs.Version, classes...)
}

// LoadFile reads a schema definition from disk.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open schema file %s", path)
	}
	defer f.Close()
	return ParseTOML(f)
}

// WriteTOML writes the schema in definition-file form.
func WriteTOML(w io.Writer, s *Schema) error {
	fs := fileSchema{Version: s.version}
	for _, c := range s.Classes() {
		fc := fileClass{Name: c.Name, Parent: c.Parent, Abstract: c.Abstract}
		for _, a := range c.Own {
			fc.Attributes = append(fc.Attributes, fileAttribute{
				Name:     a.Name,
				Type:     string(a.Type),
				Multiple: a.Multiple,
				Defining: a.Defining,
				Allowed:  a.Allowed,
			})
		}
		fs.Classes = append(fs.Classes, fc)
	}
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return errors.Wrap(enc.Encode(fs), "encode schema file")
}

// Default returns the built-in pathway knowledge-graph schema.
func Default() *Schema {
	s, err := ParseTOML(bytes.NewReader(defaultSchemaTOML))
	if err != nil {
		panic(errors.Wrap(err, "built-in schema is invalid"))
	}
	return s
}
