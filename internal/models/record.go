package models

import (
	"strconv"
	"time"
)

// FieldKind is the closed set of tag field kinds in the target catalog.
type FieldKind string

const (
	FieldDouble FieldKind = "double"
	FieldBool   FieldKind = "bool"
	FieldString FieldKind = "string"
	FieldEnum   FieldKind = "enum"
)

// FieldValue is one typed tag field value.
type FieldValue struct {
	Kind   FieldKind `json:"kind"`
	String string    `json:"string,omitempty"`
	Double float64   `json:"double,omitempty"`
	Bool   bool      `json:"bool,omitempty"`
	// Enum holds the enum value's display name.
	Enum string `json:"enum,omitempty"`
}

func StringField(s string) FieldValue  { return FieldValue{Kind: FieldString, String: s} }
func DoubleField(f float64) FieldValue { return FieldValue{Kind: FieldDouble, Double: f} }
func BoolField(b bool) FieldValue      { return FieldValue{Kind: FieldBool, Bool: b} }
func EnumField(name string) FieldValue { return FieldValue{Kind: FieldEnum, Enum: name} }

// Text renders the value the way catalog searches compare it.
func (f FieldValue) Text() string {
	switch f.Kind {
	case FieldDouble:
		return strconv.FormatFloat(f.Double, 'f', -1, 64)
	case FieldBool:
		return strconv.FormatBool(f.Bool)
	case FieldEnum:
		return f.Enum
	}
	return f.String
}

// Tag is a typed payload attached to an entry, or to one of its columns
// when Column is set.
type Tag struct {
	TemplateID string                `json:"template"`
	Fields     map[string]FieldValue `json:"fields"`
	Column     string                `json:"column,omitempty"`
}

// NewTag creates a tag with an empty field map.
func NewTag(templateID string) Tag {
	return Tag{TemplateID: templateID, Fields: make(map[string]FieldValue)}
}

// StringValue returns a string field's value.
func (t Tag) StringValue(field string) (string, bool) {
	f, ok := t.Fields[field]
	if !ok || f.Kind != FieldString {
		return "", false
	}
	return f.String, true
}

// ColumnSchema describes one column of a tabular entry.
type ColumnSchema struct {
	Column      string `json:"column"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Entry is the target catalog entry for one source entity.
type Entry struct {
	// Locator is the fully qualified entry name in the target catalog.
	Locator        string         `json:"name"`
	DisplayName    string         `json:"displayName"`
	Description    string         `json:"description,omitempty"`
	LinkedResource string         `json:"linkedResource"`
	System         string         `json:"userSpecifiedSystem"`
	Type           string         `json:"userSpecifiedType"`
	CreateTime     *time.Time     `json:"createTime,omitempty"`
	UpdateTime     *time.Time     `json:"updateTime,omitempty"`
	Columns        []ColumnSchema `json:"columns,omitempty"`
}

// Record is the publish-ready form of one source entity.
type Record struct {
	ID         string `json:"id"`
	SourceGUID string `json:"sourceGuid"`
	SourceType string `json:"sourceType"`
	Entry      Entry  `json:"entry"`
	Tags       []Tag  `json:"tags"`
}
