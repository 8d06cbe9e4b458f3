package changerecord

import "strings"

const (
	// OpInsert marks records that add new documents.
	OpInsert OpKind = iota
	// OpUpdate marks records that modify existing documents.
	OpUpdate
	// OpDelete marks records that remove documents.
	OpDelete
)

// OpKind enumerates the operation a change record applies to a document.
type OpKind uint8

func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Code returns the single-letter operation code embedded in change-record
// file names.
func (k OpKind) Code() byte {
	switch k {
	case OpInsert:
		return 'I'
	case OpUpdate:
		return 'U'
	case OpDelete:
		return 'D'
	default:
		return '?'
	}
}

// Property is one (name, raw value) pair of a change record. File order is
// significant and preserved.
type Property struct {
	Name  string
	Value string
}

// Record is one document's worth of properties read from a change-record
// file.
type Record struct {
	Properties []Property
}

// Get returns the raw value for the named property, matching
// case-insensitively. The first occurrence wins.
func (r *Record) Get(name string) (string, bool) {
	for _, p := range r.Properties {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// Set replaces the first occurrence of the named property or appends it.
func (r *Record) Set(name, value string) {
	for i, p := range r.Properties {
		if strings.EqualFold(p.Name, name) {
			r.Properties[i].Value = value
			return
		}
	}
	r.Properties = append(r.Properties, Property{Name: name, Value: value})
}
