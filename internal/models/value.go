package models

import (
	"sort"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindRef
	KindList
	KindMap
)

// Ref is a reference from one entity attribute to another entity.
// A Ref is a stub until the enricher confirms the referenced entity is
// present in the batch Graph, at which point Loaded is set and the payload
// is read from the Graph by GUID.
type Ref struct {
	GUID     string `json:"guid"`
	TypeName string `json:"typeName"`
	Loaded   bool   `json:"loaded,omitempty"`
}

// IsStub reports whether the reference still awaits enrichment.
func (r *Ref) IsStub() bool {
	return r != nil && r.GUID != "" && r.TypeName != "" && !r.Loaded
}

// Value is a single attribute value. Exactly one of the payload fields is
// meaningful, selected by Kind.
type Value struct {
	Kind ValueKind        `json:"kind"`
	Str  string           `json:"str,omitempty"`
	Num  float64          `json:"num,omitempty"`
	Bool bool             `json:"bool,omitempty"`
	Ref  *Ref             `json:"ref,omitempty"`
	List []Value          `json:"list,omitempty"`
	Map  map[string]Value `json:"map,omitempty"`
}

func Null() Value                  { return Value{} }
func String(s string) Value        { return Value{Kind: KindString, Str: s} }
func Number(f float64) Value       { return Value{Kind: KindNumber, Num: f} }
func Bool(b bool) Value            { return Value{Kind: KindBool, Bool: b} }
func List(items ...Value) Value    { return Value{Kind: KindList, List: items} }
func Map(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// RefTo builds a stub reference value.
func RefTo(typeName, guid string) Value {
	return Value{Kind: KindRef, Ref: &Ref{GUID: guid, TypeName: typeName}}
}

// IsZero reports whether the value is null or an empty string/list/map.
func (v Value) IsZero() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == ""
	case KindNumber:
		return v.Num == 0
	case KindBool:
		return !v.Bool
	case KindRef:
		return v.Ref == nil
	case KindList:
		return len(v.List) == 0
	case KindMap:
		return len(v.Map) == 0
	}
	return true
}

// Text renders scalar values as strings. Refs render as their GUID; lists and
// maps render in a stable order.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindRef:
		if v.Ref == nil {
			return ""
		}
		return v.Ref.GUID
	case KindList:
		out := "["
		for i := range v.List {
			if i > 0 {
				out += ", "
			}
			out += v.List[i].Text()
		}
		return out + "]"
	case KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ", "
			}
			out += k + ": " + v.Map[k].Text()
		}
		return out + "}"
	}
	return ""
}

// Refs returns every reference held directly by v, descending into lists.
func (v Value) Refs() []*Ref {
	switch v.Kind {
	case KindRef:
		if v.Ref != nil {
			return []*Ref{v.Ref}
		}
	case KindList:
		var out []*Ref
		for i := range v.List {
			out = append(out, v.List[i].Refs()...)
		}
		return out
	}
	return nil
}

// FromAny converts a decoded JSON value into a Value. Objects carrying both
// "guid" and "typeName" become stub references.
func FromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case string:
		return String(t)
	case float64:
		return Number(t)
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case bool:
		return Bool(t)
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, FromAny(item))
		}
		return List(items...)
	case map[string]any:
		guid, _ := t["guid"].(string)
		typeName, _ := t["typeName"].(string)
		if guid != "" && typeName != "" {
			return RefTo(typeName, guid)
		}
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = FromAny(item)
		}
		return Map(m)
	}
	return Null()
}

// Clone returns a deep copy of v. References are copied, not shared.
func (v Value) Clone() Value {
	out := v
	if v.Ref != nil {
		r := *v.Ref
		out.Ref = &r
	}
	if v.List != nil {
		out.List = make([]Value, len(v.List))
		for i := range v.List {
			out.List[i] = v.List[i].Clone()
		}
	}
	if v.Map != nil {
		out.Map = make(map[string]Value, len(v.Map))
		for k, item := range v.Map {
			out.Map[k] = item.Clone()
		}
	}
	return out
}
