package conftree

import "fmt"

// Value is one node in a configuration document. The concrete types are
// bool, int64, string, []byte (binary blob), *Dict, and *Array. Anything
// else is rejected at serialization time.
type Value = any

// Dict is a string-keyed mapping that remembers insertion order. Setting
// an existing key replaces the value in place without moving the key, so
// two documents built by the same sequence of stages serialize
// byte-identically.
type Dict struct {
	keys   []string
	values map[string]Value
}

// NewDict returns an empty ordered dictionary.
func NewDict() *Dict {
	return &Dict{values: make(map[string]Value)}
}

// Set stores v under key. A repeated key keeps its original position.
func (d *Dict) Set(key string, v Value) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Get returns the value for key and whether it was present.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// GetString returns the string stored under key, or "" when the key is
// absent or holds a different type.
func (d *Dict) GetString(key string) string {
	if v, ok := d.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Dict returns the child dictionary under key, or nil when the key is
// absent or holds a different type.
func (d *Dict) Dict(key string) *Dict {
	if v, ok := d.values[key]; ok {
		if child, ok := v.(*Dict); ok {
			return child
		}
	}
	return nil
}

// Array returns the child array under key, or nil when the key is absent
// or holds a different type.
func (d *Dict) Array(key string) *Array {
	if v, ok := d.values[key]; ok {
		if child, ok := v.(*Array); ok {
			return child
		}
	}
	return nil
}

// EnsureDict returns the child dictionary under key, creating it first if
// the key is unset. It returns an error when the key already holds a
// non-dictionary value.
func (d *Dict) EnsureDict(key string) (*Dict, error) {
	if v, ok := d.values[key]; ok {
		child, ok := v.(*Dict)
		if !ok {
			return nil, fmt.Errorf("key %q holds %T, not a dict", key, v)
		}
		return child, nil
	}
	child := NewDict()
	d.Set(key, child)
	return child, nil
}

// EnsureArray returns the child array under key, creating it first if the
// key is unset.
func (d *Dict) EnsureArray(key string) (*Array, error) {
	if v, ok := d.values[key]; ok {
		child, ok := v.(*Array)
		if !ok {
			return nil, fmt.Errorf("key %q holds %T, not an array", key, v)
		}
		return child, nil
	}
	child := NewArray()
	d.Set(key, child)
	return child, nil
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of keys.
func (d *Dict) Len() int {
	return len(d.keys)
}

// Array is an ordered list of values.
type Array struct {
	items []Value
}

// NewArray returns an empty array.
func NewArray() *Array {
	return &Array{}
}

// Append adds v to the end of the array.
func (a *Array) Append(v Value) {
	a.items = append(a.items, v)
}

// Items returns the backing slice. Callers must not mutate it.
func (a *Array) Items() []Value {
	return a.items
}

// Len returns the number of items.
func (a *Array) Len() int {
	return len(a.items)
}

// SectionNames lists the top-level sections of a boot configuration
// document, in serialization order.
var SectionNames = []string{
	"ACPI",
	"Booter",
	"DeviceProperties",
	"Kernel",
	"Misc",
	"NVRAM",
	"PlatformInfo",
	"UEFI",
}

// Document is a boot configuration document. The section set is fixed;
// stages mutate the section dictionaries but can never add or remove a
// section.
type Document struct {
	ACPI             *Dict
	Booter           *Dict
	DeviceProperties *Dict
	Kernel           *Dict
	Misc             *Dict
	NVRAM            *Dict
	PlatformInfo     *Dict
	UEFI             *Dict
}

// NewDocument returns a document with all sections present and empty.
func NewDocument() *Document {
	return &Document{
		ACPI:             NewDict(),
		Booter:           NewDict(),
		DeviceProperties: NewDict(),
		Kernel:           NewDict(),
		Misc:             NewDict(),
		NVRAM:            NewDict(),
		PlatformInfo:     NewDict(),
		UEFI:             NewDict(),
	}
}

// Section returns the named top-level section, or nil for an unknown name.
func (doc *Document) Section(name string) *Dict {
	switch name {
	case "ACPI":
		return doc.ACPI
	case "Booter":
		return doc.Booter
	case "DeviceProperties":
		return doc.DeviceProperties
	case "Kernel":
		return doc.Kernel
	case "Misc":
		return doc.Misc
	case "NVRAM":
		return doc.NVRAM
	case "PlatformInfo":
		return doc.PlatformInfo
	case "UEFI":
		return doc.UEFI
	}
	return nil
}

// SetPath writes v at the location named by path. path[0] is a section
// name and the remaining segments walk (and create) nested dictionaries.
// Segments are literal dictionary keys, so keys containing slashes, such
// as PCI device paths, need no escaping.
func (doc *Document) SetPath(path []string, v Value) error {
	if len(path) < 2 {
		return fmt.Errorf("path needs a section and at least one key, got %v", path)
	}
	section := doc.Section(path[0])
	if section == nil {
		return fmt.Errorf("unknown section %q", path[0])
	}

	cur := section
	for _, seg := range path[1 : len(path)-1] {
		child, err := cur.EnsureDict(seg)
		if err != nil {
			return fmt.Errorf("path %v: %w", path, err)
		}
		cur = child
	}
	cur.Set(path[len(path)-1], v)
	return nil
}

// GetPath reads the value at the location named by path, using the same
// addressing rules as SetPath.
func (doc *Document) GetPath(path []string) (Value, bool) {
	if len(path) < 2 {
		return nil, false
	}
	section := doc.Section(path[0])
	if section == nil {
		return nil, false
	}

	cur := section
	for _, seg := range path[1 : len(path)-1] {
		cur = cur.Dict(seg)
		if cur == nil {
			return nil, false
		}
	}
	return cur.Get(path[len(path)-1])
}
