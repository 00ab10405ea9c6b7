package models

import "sort"

// StatusDeleted marks a soft-deleted source entity.
const StatusDeleted = "DELETED"

// Classification is a classification instance attached to an entity.
type Classification struct {
	TypeName   string           `json:"typeName"`
	EntityGUID string           `json:"entityGuid,omitempty"`
	Attributes map[string]Value `json:"attributes,omitempty"`
}

// EntityHeader is the lightweight form returned by type searches.
type EntityHeader struct {
	GUID                string   `json:"guid"`
	TypeName            string   `json:"typeName"`
	Status              string   `json:"status,omitempty"`
	ClassificationNames []string `json:"classificationNames,omitempty"`
}

// Entity is a fully populated source entity. Stubs never appear as
// Entity values; they only exist as Ref attribute values.
type Entity struct {
	GUID                string           `json:"guid"`
	TypeName            string           `json:"typeName"`
	Status              string           `json:"status,omitempty"`
	Attributes          map[string]Value `json:"attributes"`
	Classifications     []Classification `json:"classifications,omitempty"`
	ClassificationNames []string         `json:"classificationNames,omitempty"`
	// CreateTime and UpdateTime are epoch milliseconds; zero when absent.
	CreateTime int64 `json:"createTime,omitempty"`
	UpdateTime int64 `json:"updateTime,omitempty"`
}

// Attr returns the named attribute.
func (e *Entity) Attr(name string) (Value, bool) {
	if e == nil || e.Attributes == nil {
		return Value{}, false
	}
	v, ok := e.Attributes[name]
	return v, ok
}

// StringAttr returns the named attribute when it holds a string.
func (e *Entity) StringAttr(name string) string {
	v, ok := e.Attr(name)
	if !ok || v.Kind != KindString {
		return ""
	}
	return v.Str
}

// Name returns the "name" attribute, or "" when absent.
func (e *Entity) Name() string {
	return e.StringAttr("name")
}

// AttributeNames returns attribute names in sorted order.
func (e *Entity) AttributeNames() []string {
	names := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Graph is the flat, GUID-keyed entity store for one batch. References
// between entities are resolved by GUID lookup rather than pointers.
type Graph struct {
	entities map[string]*Entity
	order    []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{entities: make(map[string]*Entity)}
}

// Put stores e. An entity already stored under the same GUID is replaced
// in place (last assignment wins) and true is returned.
func (g *Graph) Put(e *Entity) bool {
	if _, ok := g.entities[e.GUID]; ok {
		g.entities[e.GUID] = e
		return true
	}
	g.entities[e.GUID] = e
	g.order = append(g.order, e.GUID)
	return false
}

// Get looks up an entity by GUID.
func (g *Graph) Get(guid string) (*Entity, bool) {
	e, ok := g.entities[guid]
	return e, ok
}

// Len returns the number of stored entities.
func (g *Graph) Len() int { return len(g.order) }

// Entities returns all entities in insertion order.
func (g *Graph) Entities() []*Entity {
	out := make([]*Entity, 0, len(g.order))
	for _, guid := range g.order {
		out = append(out, g.entities[guid])
	}
	return out
}

// OfType returns entities of exactly the given type in insertion order.
func (g *Graph) OfType(typeName string) []*Entity {
	var out []*Entity
	for _, guid := range g.order {
		if e := g.entities[guid]; e.TypeName == typeName {
			out = append(out, e)
		}
	}
	return out
}

// TypeNames returns the distinct type names present, sorted.
func (g *Graph) TypeNames() []string {
	seen := make(map[string]struct{})
	for _, e := range g.entities {
		seen[e.TypeName] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge copies every entity of other into g, later entities winning.
func (g *Graph) Merge(other *Graph) {
	for _, e := range other.Entities() {
		g.Put(e)
	}
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	if e.Attributes != nil {
		out.Attributes = make(map[string]Value, len(e.Attributes))
		for k, v := range e.Attributes {
			out.Attributes[k] = v.Clone()
		}
	}
	if e.Classifications != nil {
		out.Classifications = make([]Classification, len(e.Classifications))
		for i, c := range e.Classifications {
			out.Classifications[i] = c.Clone()
		}
	}
	if e.ClassificationNames != nil {
		out.ClassificationNames = append([]string(nil), e.ClassificationNames...)
	}
	return &out
}

// Clone returns a deep copy of c.
func (c Classification) Clone() Classification {
	out := c
	if c.Attributes != nil {
		out.Attributes = make(map[string]Value, len(c.Attributes))
		for k, v := range c.Attributes {
			out.Attributes[k] = v.Clone()
		}
	}
	return out
}

// TypeSet restricts a batch to some entity types. A nil set allows every type.
type TypeSet map[string]struct{}

// NewTypeSet returns a set of names, or nil when names is empty.
func NewTypeSet(names ...string) TypeSet {
	if len(names) == 0 {
		return nil
	}
	s := make(TypeSet, len(names))
	for _, name := range names {
		s[name] = struct{}{}
	}
	return s
}

// Allows reports whether typeName is part of the set.
func (s TypeSet) Allows(typeName string) bool {
	if s == nil {
		return true
	}
	_, ok := s[typeName]
	return ok
}
