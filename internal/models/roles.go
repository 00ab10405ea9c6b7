package models

// Roles names the source types that get structural treatment: extra
// template fields, column tags, and relationship resolution.
type Roles struct {
	Table       string `mapstructure:"table" json:"table"`
	View        string `mapstructure:"view" json:"view"`
	Process     string `mapstructure:"process" json:"process"`
	Column      string `mapstructure:"column" json:"column"`
	Database    string `mapstructure:"database" json:"database"`
	StorageDesc string `mapstructure:"storage_desc" json:"storageDesc"`
}

// DefaultRoles returns the Apache Atlas base model type names.
func DefaultRoles() Roles {
	return Roles{
		Table:       "Table",
		View:        "View",
		Process:     "LoadProcess",
		Column:      "Column",
		Database:    "DB",
		StorageDesc: "StorageDesc",
	}
}
