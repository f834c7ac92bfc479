package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/toricodesthings/policy-extraction-service/internal/fields"
)

//go:embed schema.yaml
var defaultSchema []byte

// Vehicle field groups. The exporter builds its derived sheets from them.
const (
	GroupIdentification = "identificacao"
	GroupCoverage       = "cobertura"
	GroupPremium        = "premio"
	GroupDeductible     = "franquia"
)

// FieldPolicyNumber is the header field used to name the output workbook.
const FieldPolicyNumber = "APÓLICE"

var validGroups = map[string]bool{
	GroupIdentification: true,
	GroupCoverage:       true,
	GroupPremium:        true,
	GroupDeductible:     true,
}

// Field is one named column with its compiled candidates.
type Field struct {
	Name       string
	Group      string
	Money      bool
	Summary    bool
	Candidates []fields.Candidate
}

// Extract applies the field's candidates to text, normalising money fields.
func (f Field) Extract(text string) fields.Value {
	if f.Money {
		return fields.ExtractMoney(f.Candidates, text)
	}
	return fields.Extract(f.Candidates, text)
}

// Schema is the read-only extraction schema shared by every conversion.
type Schema struct {
	Header  []Field
	Vehicle []Field
}

func (s *Schema) HeaderNames() []string  { return names(s.Header) }
func (s *Schema) VehicleNames() []string { return names(s.Vehicle) }

// VehicleFields returns the vehicle fields accepted by keep, in schema order.
func (s *Schema) VehicleFields(keep func(Field) bool) []Field {
	var out []Field
	for _, f := range s.Vehicle {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func names(fs []Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

type schemaFile struct {
	Header  sectionDef `yaml:"header"`
	Vehicle sectionDef `yaml:"vehicle"`
}

type sectionDef struct {
	Labels []string   `yaml:"labels"`
	Fields []fieldDef `yaml:"fields"`
}

type fieldDef struct {
	Name       string         `yaml:"name"`
	Group      string         `yaml:"group"`
	Money      bool           `yaml:"money"`
	Summary    bool           `yaml:"summary"`
	Candidates []candidateDef `yaml:"candidates"`
}

type candidateDef struct {
	Regex     string   `yaml:"regex"`
	Multiline bool     `yaml:"multiline"`
	Label     string   `yaml:"label"`
	Until     []string `yaml:"until"`
	Line      bool     `yaml:"line"`
	NotAfter  []string `yaml:"not_after"`
	Shape     string   `yaml:"shape"`
	Fixed     string   `yaml:"fixed"`
}

var (
	defaultOnce sync.Once
	defaultVal  *Schema
	defaultErr  error
)

// Default returns the embedded schema, compiled once per process.
func Default() (*Schema, error) {
	defaultOnce.Do(func() {
		defaultVal, defaultErr = Parse(defaultSchema)
	})
	return defaultVal, defaultErr
}

// Load reads a schema file, or returns the embedded schema when path is empty.
func Load(path string) (*Schema, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(data)
}

// Raw returns the embedded schema source.
func Raw() []byte {
	return append([]byte(nil), defaultSchema...)
}

// Parse compiles a YAML schema definition.
func Parse(data []byte) (*Schema, error) {
	var def schemaFile
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if len(def.Vehicle.Fields) == 0 {
		return nil, errors.New("schema: no vehicle fields")
	}

	header, err := compileSection("header", def.Header, false)
	if err != nil {
		return nil, err
	}
	vehicle, err := compileSection("vehicle", def.Vehicle, true)
	if err != nil {
		return nil, err
	}
	return &Schema{Header: header, Vehicle: vehicle}, nil
}

func compileSection(section string, def sectionDef, grouped bool) ([]Field, error) {
	seen := make(map[string]bool, len(def.Fields))
	out := make([]Field, 0, len(def.Fields))

	for _, fd := range def.Fields {
		if fd.Name == "" {
			return nil, fmt.Errorf("schema %s: field without name", section)
		}
		if seen[fd.Name] {
			return nil, fmt.Errorf("schema %s: duplicate field %q", section, fd.Name)
		}
		seen[fd.Name] = true

		if grouped && !validGroups[fd.Group] {
			return nil, fmt.Errorf("schema %s: field %q has unknown group %q", section, fd.Name, fd.Group)
		}
		if len(fd.Candidates) == 0 {
			return nil, fmt.Errorf("schema %s: field %q has no candidates", section, fd.Name)
		}

		f := Field{Name: fd.Name, Group: fd.Group, Money: fd.Money, Summary: fd.Summary}
		for i, cd := range fd.Candidates {
			c, err := compileCandidate(cd, def.Labels)
			if err != nil {
				return nil, fmt.Errorf("schema %s: field %q candidate %d: %w", section, fd.Name, i, err)
			}
			f.Candidates = append(f.Candidates, c)
		}
		out = append(out, f)
	}
	return out, nil
}

func compileCandidate(cd candidateDef, sectionLabels []string) (fields.Candidate, error) {
	kinds := 0
	for _, set := range []bool{cd.Regex != "", cd.Label != "", cd.Shape != "", cd.Fixed != ""} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return nil, errors.New("exactly one of regex, label, shape or fixed is required")
	}

	switch {
	case cd.Regex != "":
		return fields.Regex(cd.Regex, cd.Multiline)
	case cd.Label != "":
		stops := cd.Until
		if len(stops) == 0 {
			stops = sectionLabels
		}
		return fields.Bounded(fields.BoundedSpec{
			Label:    cd.Label,
			Stops:    stops,
			Line:     cd.Line,
			NotAfter: cd.NotAfter,
		})
	case cd.Shape != "":
		return fields.ShapeCandidate(cd.Shape)
	default:
		return fields.Fixed(cd.Fixed), nil
	}
}
