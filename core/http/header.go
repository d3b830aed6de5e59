package http

import "strings"

// Field is a single header line.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered, case-insensitive header multimap. Fields keep the
// order in which they were received and duplicates are retained.
type Header struct {
	fields []Field
}

// Add appends a field, keeping any existing values for the same name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces all values for name with a single value. The replaced
// field keeps the position of the first existing one.
func (h *Header) Set(name, value string) {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			h.fields[i].Value = value
			h.delFrom(i+1, name)
			return
		}
	}
	h.Add(name, value)
}

// Get returns the first value for name.
func (h *Header) Get(name string) string {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			return h.fields[i].Value
		}
	}
	return ""
}

// Has reports whether at least one field named name exists.
func (h *Header) Has(name string) bool {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			return true
		}
	}
	return false
}

// Values returns every value for name in receive order.
func (h *Header) Values(name string) []string {
	var values []string
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			values = append(values, h.fields[i].Value)
		}
	}
	return values
}

// Del removes all fields named name.
func (h *Header) Del(name string) {
	h.delFrom(0, name)
}

func (h *Header) delFrom(start int, name string) {
	kept := h.fields[:start]
	for _, f := range h.fields[start:] {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}
	for i := len(kept); i < len(h.fields); i++ {
		h.fields[i] = Field{}
	}
	h.fields = kept
}

// Len returns the number of fields.
func (h *Header) Len() int {
	return len(h.fields)
}

// Fields returns the fields in order. The slice must not be modified.
func (h *Header) Fields() []Field {
	return h.fields
}

// Clone returns a deep copy.
func (h *Header) Clone() Header {
	return Header{fields: append([]Field(nil), h.fields...)}
}
