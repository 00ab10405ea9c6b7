package models

// TemplateField declares one field of a tag template.
type TemplateField struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Kind        FieldKind `json:"kind"`
	// EnumValues lists allowed display names in order when Kind is FieldEnum.
	EnumValues []string `json:"enumValues,omitempty"`
}

// Template is a tag template: the schema of the fields a tag may carry.
type Template struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"displayName"`
	Fields      []TemplateField `json:"fields"`
}

// SetField adds f, replacing an existing field with the same ID in place.
func (t *Template) SetField(f TemplateField) {
	for i := range t.Fields {
		if t.Fields[i].ID == f.ID {
			t.Fields[i] = f
			return
		}
	}
	t.Fields = append(t.Fields, f)
}

// Field looks up a field by ID.
func (t Template) Field(id string) (TemplateField, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return TemplateField{}, false
}
