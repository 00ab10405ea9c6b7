// Package normalize maps source type names onto target field kinds and
// formats identifiers and names into catalog-safe tokens.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/models"
)

const (
	// TemplatePrefix namespaces every template created by this system.
	TemplatePrefix = "apache_atlas"

	// ColumnCategory is the template category of the column reference template.
	ColumnCategory = "column"

	// MaxIDLength is the target catalog limit for entry and template ids.
	MaxIDLength = 64

	// MaxDisplayNameLength is the target catalog limit for display names.
	MaxDisplayNameLength = 200

	// MaxStringValueBytes is the UTF-8 byte limit of a string tag value.
	MaxStringValueBytes = 2000
)

// ErrEmptyName is returned when an identifier is built from an empty name.
var ErrEmptyName = errors.New("empty name")

var (
	invalidIDChars          = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
	invalidDisplayNameChars = regexp.MustCompile(`[^\w\s-]+`)
	validIDStart            = regexp.MustCompile(`^[a-zA-Z_]`)
)

var primitiveKinds = map[string]models.FieldKind{
	"string":  models.FieldString,
	"boolean": models.FieldBool,
	"short":   models.FieldDouble,
	"int":     models.FieldDouble,
	"float":   models.FieldDouble,
	"double":  models.FieldDouble,
}

// FormatIdentifier formats name like FormatName and rejects blank names.
func FormatIdentifier(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyName
	}
	return FormatName(name), nil
}

// FormatName lower-cases name and replaces each space and hyphen with an
// underscore. It does not validate; callers holding names that may be blank
// use FormatIdentifier.
func FormatName(name string) string {
	formatted := strings.ToLower(name)
	formatted = strings.ReplaceAll(formatted, " ", "_")
	return strings.ReplaceAll(formatted, "-", "_")
}

// IsPrimitive reports whether typeName is one of the listed primitive aliases.
func IsPrimitive(typeName string) bool {
	_, ok := primitiveKinds[typeName]
	return ok
}

// ClassifyPrimitive maps a source type name to a target primitive kind.
// Unlisted names are strings.
func ClassifyPrimitive(typeName string) models.FieldKind {
	if kind, ok := primitiveKinds[typeName]; ok {
		return kind
	}
	return models.FieldString
}

// TemplateID builds the namespaced template id for a type.
func TemplateID(name, category, version string) (string, error) {
	formatted, err := FormatIdentifier(name)
	if err != nil {
		return "", fmt.Errorf("building %s template id: %w", category, err)
	}
	id := fmt.Sprintf("%s_%s_%s", TemplatePrefix, category, formatted)
	if version != "" {
		id = fmt.Sprintf("%s_%s", id, FormatName(version))
	}
	return id, nil
}

// ColumnRefTemplateID is the id of the auxiliary column reference template.
func ColumnRefTemplateID() string {
	id, _ := TemplateID("ref", ColumnCategory, "")
	return id
}

// FormatID folds sourceID to ASCII and collapses every run of characters
// outside [a-zA-Z0-9_] into one underscore.
func FormatID(sourceID string) string {
	return ensureValidStart(replaceInvalidIDChars(sourceID))
}

// RecordID derives the stable entry id of a source entity. The type prefix
// keeps ids unique when different types reuse the same source id. Ids over
// MaxIDLength keep a prefix and gain a hash suffix of the full value.
func RecordID(typeName, guid string) (string, error) {
	if strings.TrimSpace(typeName) == "" || strings.TrimSpace(guid) == "" {
		return "", fmt.Errorf("building record id for %q/%q: %w", typeName, guid, ErrEmptyName)
	}
	id := strings.ToLower(ensureValidStart(replaceInvalidIDChars(FormatName(typeName)) + "_" + replaceInvalidIDChars(guid)))
	if len(id) <= MaxIDLength {
		return id, nil
	}
	suffix := fmt.Sprintf("_%08x", uint32(xxhash.Sum64String(id)))
	return id[:MaxIDLength-len(suffix)] + suffix, nil
}

// FormatDisplayName folds name to ASCII, replaces characters other than
// letters, digits, spaces, hyphens and underscores, and truncates.
func FormatDisplayName(name string) string {
	formatted := invalidDisplayNameChars.ReplaceAllString(toASCII(name), "_")
	if len(formatted) > MaxDisplayNameLength {
		formatted = formatted[:MaxDisplayNameLength]
	}
	return formatted
}

// TruncateUTF8 shortens s to at most maxBytes without splitting a rune.
func TruncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ColumnDataType returns a column's declared data type. Base model columns
// use dataType, rdbms columns data_type and hive columns type.
func ColumnDataType(column *models.Entity) string {
	for _, key := range []string{"dataType", "data_type", "type"} {
		if v := column.StringAttr(key); v != "" {
			return v
		}
	}
	return ""
}

func replaceInvalidIDChars(s string) string {
	return invalidIDChars.ReplaceAllString(toASCII(s), "_")
}

func ensureValidStart(id string) string {
	if id != "" && !validIDStart.MatchString(id) {
		return "id_" + id
	}
	return id
}

func toASCII(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
