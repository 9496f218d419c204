// Package form implements settings forms that layer sparse local edits
// over the last settings snapshot fetched from the DNS server.
//
// A form's working value for field F is
//
//	override(F) ?? confirmed(F) ?? default(F)
//
// Overrides record that a field was touched, not that it differs from
// the server: setting a field back to its confirmed value keeps the
// override. Overrides are dropped when a save succeeds or the draft is
// discarded.
package form

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

type Kind int

const (
	String Kind = iota
	Bool
	Int
	List
	Choice
)

// Field describes one editable setting.
type Field struct {
	Name    string // wire parameter name
	Path    string // dotted path in the settings JSON; defaults to Name
	Label   string
	Help    string
	Kind    Kind
	Default string
	Choices []string

	// Sep joins List values on the wire; defaults to ",".
	Sep string
	// Empty is sent for a List with no entries; defaults to "".
	Empty string

	// When gates the field's inclusion in the outgoing payload on the
	// form's current values. Nil means always included.
	When func(Values) bool

	// FromServer converts the server's JSON value when the generic
	// conversion does not fit (lists of objects, nested records).
	FromServer func(v any) (string, bool)
}

func (f Field) path() string {
	if f.Path != "" {
		return f.Path
	}
	return f.Name
}

// IntDefault is the value substituted for unparsable Int input.
func (f Field) IntDefault() int {
	n, _ := strconv.Atoi(f.Default)
	return n
}

// Schema is the set of fields edited by one settings section.
type Schema struct {
	Name   string
	Title  string
	Fields []Field
}

func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Values maps field names to their string form.
type Values map[string]string

// Overrides holds pending edits. A missing key means "defer to the server".
type Overrides map[string]string

func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Snapshot extracts the schema's fields from a settings JSON document.
// Missing and null members are left out so Merge falls back to defaults.
func Snapshot(s *Schema, raw json.RawMessage) (Values, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("form: decode settings: %w", err)
	}

	out := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		v, ok := lookup(doc, f.path())
		if !ok || v == nil {
			continue
		}
		var str string
		if f.FromServer != nil {
			str, ok = f.FromServer(v)
		} else {
			str, ok = stringify(v)
		}
		if ok {
			out[f.Name] = normalize(f, str)
		}
	}
	return out, nil
}

// Merge computes the working values. It does not modify its arguments.
func Merge(s *Schema, confirmed Values, overrides Overrides) Values {
	out := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		if v, ok := overrides[f.Name]; ok {
			out[f.Name] = v
		} else if v, ok := confirmed[f.Name]; ok {
			out[f.Name] = v
		} else {
			out[f.Name] = f.Default
		}
	}
	return out
}

// State is a confirmed snapshot plus pending overrides.
type State struct {
	Schema    *Schema
	Confirmed Values
	Overrides Overrides
}

func NewState(s *Schema, confirmed Values, overrides Overrides) *State {
	if confirmed == nil {
		confirmed = Values{}
	}
	if overrides == nil {
		overrides = Overrides{}
	}
	return &State{Schema: s, Confirmed: confirmed, Overrides: overrides}
}

func (st *State) Current() Values {
	return Merge(st.Schema, st.Confirmed, st.Overrides)
}

func (st *State) Value(name string) string {
	return st.Current()[name]
}

// Set records an override for name.
func (st *State) Set(name, value string) error {
	f, ok := st.Schema.Field(name)
	if !ok {
		return fmt.Errorf("form: %s has no field %q", st.Schema.Name, name)
	}
	st.Overrides[name] = normalize(f, value)
	return nil
}

// Apply takes a submitted form. A field whose submitted value differs from
// the current value becomes an override; equal values leave the field's
// override slot as it is. For repeated keys the last value wins, which
// lets a hidden "false" input precede a checkbox.
func (st *State) Apply(submitted url.Values) {
	current := st.Current()
	for _, f := range st.Schema.Fields {
		vs, ok := submitted[f.Name]
		if !ok || len(vs) == 0 {
			continue
		}
		v := normalize(f, vs[len(vs)-1])
		if v != current[f.Name] {
			st.Overrides[f.Name] = v
		}
	}
}

func (st *State) HasChanges() bool {
	return len(st.Overrides) > 0
}

func (st *State) Touched(name string) bool {
	_, ok := st.Overrides[name]
	return ok
}

// TouchedFields lists overridden field names in schema order.
func (st *State) TouchedFields() []string {
	var out []string
	for _, f := range st.Schema.Fields {
		if st.Touched(f.Name) {
			out = append(out, f.Name)
		}
	}
	return out
}

// Reset discards every override.
func (st *State) Reset() {
	st.Overrides = Overrides{}
}

// Commit replaces the confirmed snapshot with what the server returned
// after a save and clears the overrides.
func (st *State) Commit(confirmed Values) {
	st.Confirmed = confirmed
	st.Reset()
}

// Payload builds the update parameters from the current values, not from
// the overrides alone. Fields gated off by When are omitted. Int fields
// that do not parse as base-10 integers are sent as the field default.
func (st *State) Payload() url.Values {
	current := st.Current()
	out := url.Values{}
	for _, f := range st.Schema.Fields {
		if f.When != nil && !f.When(current) {
			continue
		}
		out.Set(f.Name, encode(f, current[f.Name]))
	}
	return out
}

func encode(f Field, v string) string {
	switch f.Kind {
	case Int:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return strconv.Itoa(f.IntDefault())
		}
		return strconv.Itoa(n)
	case Bool:
		return strconv.FormatBool(v == "true")
	case List:
		items := Lines(v)
		if len(items) == 0 {
			return f.Empty
		}
		sep := f.Sep
		if sep == "" {
			sep = ","
		}
		return strings.Join(items, sep)
	default:
		return strings.TrimSpace(v)
	}
}

func normalize(f Field, v string) string {
	switch f.Kind {
	case Bool:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "1", "yes":
			return "true"
		}
		return "false"
	case List:
		return strings.Join(Lines(v), "\n")
	default:
		return strings.TrimSpace(v)
	}
}

// Lines splits text on newlines, trimming whitespace and dropping blank
// entries.
func Lines(v string) []string {
	var out []string
	for _, line := range strings.FieldsFunc(v, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := stringify(e); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n"), true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := stringify(t[k]); ok {
				parts = append(parts, k+"="+s)
			}
		}
		return strings.Join(parts, " "), true
	}
	return "", false
}
