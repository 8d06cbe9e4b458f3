package schema

import (
	"strings"

	"golang.org/x/xerrors"
)

// Reserved property names. Every change record carries the document key
// property; the timestamp property is synthesized when absent.
const (
	KeyPropertyName       = "DOCID"
	TimestampPropertyName = "DATE"
)

const (
	// TypeString properties hold free or categorical text.
	TypeString PropertyType = iota
	// TypeInt properties hold signed integers.
	TypeInt
	// TypeFloat properties hold floating point numbers.
	TypeFloat
	// TypeNominal properties hold enumerated labels that are stored but
	// never fed to the index engine.
	TypeNominal
)

// PropertyType enumerates the declared data types a property can have.
type PropertyType uint8

func (t PropertyType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeNominal:
		return "nominal"
	default:
		return "unknown"
	}
}

var (
	// ErrNoTimestampProperty is returned when a schema does not declare
	// the reserved timestamp property.
	ErrNoTimestampProperty = xerrors.New("timestamp property missing from schema")

	// ErrUnknownAliasSource is returned when an alias property names a
	// source property that the schema does not declare.
	ErrUnknownAliasSource = xerrors.New("alias refers to unknown source property")

	// ErrDuplicateProperty is returned when two properties share a name.
	ErrDuplicateProperty = xerrors.New("duplicate property name")
)

// Property describes one declared document property and the way its values
// must be handled by the indexing pipeline.
type Property struct {
	// ID is the engine-facing property identifier; ids start from 1.
	ID uint32
	// Name is the declared property name. Lookups are case-insensitive.
	Name string
	// Type is the declared data type.
	Type PropertyType
	// IsIndex indicates the property participates in the index at all.
	IsIndex bool
	// IsAnalyzed indicates the value must be run through the analyzer to
	// produce a forward-index term stream.
	IsAnalyzed bool
	// IsFilter indicates the value is stored as a filter/sort column.
	IsFilter bool
	// IsMultiValue indicates the raw value is a comma-separated list.
	IsMultiValue bool
	// IsStoreLength requests the engine to keep the document length for
	// this property.
	IsStoreLength bool
	// AnalyzerID selects the analysis configuration for analyzed
	// properties.
	AnalyzerID string
	// AliasOf names the source property this one is an alias of. Alias
	// properties receive an independently analyzed copy of the source
	// value under their own ID.
	AliasOf string
}

// Schema is the immutable name->property lookup table built once at
// configuration load time.
type Schema struct {
	props     []Property
	byName    map[string]*Property
	aliases   map[string][]Property
	timestamp *Property
}

// New builds a Schema from the declared property list. Property ids are
// assigned in declaration order starting from 1. The reserved timestamp
// property must be declared.
func New(props []Property) (*Schema, error) {
	s := &Schema{
		props:   make([]Property, len(props)),
		byName:  make(map[string]*Property, len(props)),
		aliases: make(map[string][]Property),
	}
	copy(s.props, props)

	for i := range s.props {
		p := &s.props[i]
		p.ID = uint32(i + 1)
		key := strings.ToLower(p.Name)
		if _, exists := s.byName[key]; exists {
			return nil, xerrors.Errorf("schema: property %q: %w", p.Name, ErrDuplicateProperty)
		}
		s.byName[key] = p
		if strings.EqualFold(p.Name, TimestampPropertyName) {
			s.timestamp = p
		}
	}
	if s.timestamp == nil {
		return nil, xerrors.Errorf("schema: %w", ErrNoTimestampProperty)
	}

	for i := range s.props {
		p := s.props[i]
		if p.AliasOf == "" {
			continue
		}
		src, ok := s.byName[strings.ToLower(p.AliasOf)]
		if !ok {
			return nil, xerrors.Errorf("schema: alias %q -> %q: %w", p.Name, p.AliasOf, ErrUnknownAliasSource)
		}
		key := strings.ToLower(src.Name)
		s.aliases[key] = append(s.aliases[key], p)
	}
	return s, nil
}

// Lookup returns the schema entry for name, matching case-insensitively.
func (s *Schema) Lookup(name string) (Property, bool) {
	p, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return Property{}, false
	}
	return *p, true
}

// AliasesOf returns the alias properties declared for the given source
// property name, in declaration order.
func (s *Schema) AliasesOf(name string) []Property {
	return s.aliases[strings.ToLower(name)]
}

// Timestamp returns the schema entry for the reserved timestamp property.
func (s *Schema) Timestamp() Property {
	return *s.timestamp
}

// Properties returns all declared properties in declaration order.
func (s *Schema) Properties() []Property {
	out := make([]Property, len(s.props))
	copy(out, s.props)
	return out
}

// NumProperties returns the number of declared properties. Property ids
// occupy the range [1, NumProperties].
func (s *Schema) NumProperties() int {
	return len(s.props)
}

// IsKey reports whether name is the reserved document key property.
func IsKey(name string) bool {
	return strings.EqualFold(name, KeyPropertyName)
}

// IsTimestamp reports whether name is the reserved timestamp property.
func IsTimestamp(name string) bool {
	return strings.EqualFold(name, TimestampPropertyName)
}
