package models

import "sort"

// TypeCategory classifies a source type definition.
type TypeCategory string

const (
	CategoryEntity         TypeCategory = "entity_type"
	CategoryClassification TypeCategory = "classification"
	CategoryEnum           TypeCategory = "enum"
)

// AttributeDef declares one attribute of a type.
type AttributeDef struct {
	Name     string `json:"name"`
	TypeName string `json:"typeName"`
}

// TypeDef is an entity or classification type definition.
type TypeDef struct {
	Name        string         `json:"name"`
	Version     string         `json:"version,omitempty"`
	Description string         `json:"description,omitempty"`
	Category    TypeCategory   `json:"category"`
	Attributes  []AttributeDef `json:"attributeDefs"`
	SuperTypes  []string       `json:"superTypes,omitempty"`
}

// EnumDef lists the allowed values of an enum type, in declaration order.
type EnumDef struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// TypeDictionary is the read-only snapshot of source type definitions used
// for one sync cycle.
type TypeDictionary struct {
	EntityTypes     map[string]TypeDef `json:"entityTypes"`
	Classifications map[string]TypeDef `json:"classificationTypes"`
	Enums           map[string]EnumDef `json:"enumTypes"`
}

// NewTypeDictionary builds a dictionary from flat definition lists. Later
// definitions with the same name replace earlier ones.
func NewTypeDictionary(entityTypes, classifications []TypeDef, enums []EnumDef) TypeDictionary {
	d := TypeDictionary{
		EntityTypes:     make(map[string]TypeDef, len(entityTypes)),
		Classifications: make(map[string]TypeDef, len(classifications)),
		Enums:           make(map[string]EnumDef, len(enums)),
	}
	for _, t := range entityTypes {
		t.Category = CategoryEntity
		d.EntityTypes[t.Name] = t
	}
	for _, t := range classifications {
		t.Category = CategoryClassification
		d.Classifications[t.Name] = t
	}
	for _, e := range enums {
		d.Enums[e.Name] = e
	}
	return d
}

// EntityTypeNames returns entity type names in sorted order.
func (d TypeDictionary) EntityTypeNames() []string {
	return sortedKeys(d.EntityTypes)
}

// ClassificationNames returns classification type names in sorted order.
func (d TypeDictionary) ClassificationNames() []string {
	return sortedKeys(d.Classifications)
}

// Lookup finds a type definition of the given category.
func (d TypeDictionary) Lookup(category TypeCategory, name string) (TypeDef, bool) {
	var (
		t  TypeDef
		ok bool
	)
	switch category {
	case CategoryEntity:
		t, ok = d.EntityTypes[name]
	case CategoryClassification:
		t, ok = d.Classifications[name]
	}
	return t, ok
}

func sortedKeys(m map[string]TypeDef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
