package metadata

import "strings"

// LogicalType is the administrator-declared type of a field. Several logical
// types share a storage type, so the registry keeps the original.
type LogicalType string

const (
	TypeText        LogicalType = "text"
	TypeTextarea    LogicalType = "textarea"
	TypeNumber      LogicalType = "number"
	TypeDate        LogicalType = "date"
	TypeCheckbox    LogicalType = "checkbox"
	TypeSelect      LogicalType = "select"
	TypeMultiSelect LogicalType = "multi-select"
	TypeUpload      LogicalType = "upload"
)

// Valid reports whether t is one of the known logical types.
func (t LogicalType) Valid() bool {
	switch t {
	case TypeText, TypeTextarea, TypeNumber, TypeDate, TypeCheckbox, TypeSelect, TypeMultiSelect, TypeUpload:
		return true
	}
	return false
}

// HasOptions reports whether the type carries an option list.
func (t LogicalType) HasOptions() bool {
	return t == TypeSelect || t == TypeMultiSelect
}

// FieldDefinition is a custom field as submitted by an administrator and as
// persisted in the field type registry.
type FieldDefinition struct {
	Name     string      `json:"name" validate:"required,max=63"`
	Label    string      `json:"label,omitempty"`
	Type     LogicalType `json:"type" validate:"required,oneof=text textarea number date checkbox select multi-select upload"`
	Required bool        `json:"required"`
	Options  []string    `json:"options,omitempty" validate:"omitempty,dive,required"`
}

// PhoneFieldName is stored as an integer column for compatibility with
// rosters created before phone numbers were kept as text.
const PhoneFieldName = "phone"

// StoragePolicy translates logical types into PostgreSQL column types.
type StoragePolicy struct {
	PhoneAsText bool
}

// ColumnType returns the DDL type for a custom field. The phone carve-out
// only covers text fields; other types keep their usual storage type.
func (p StoragePolicy) ColumnType(f FieldDefinition) string {
	if f.Type == TypeText && strings.EqualFold(f.Name, PhoneFieldName) {
		// Integer phones drop leading zeros and "+" prefixes.
		if p.PhoneAsText {
			return "VARCHAR(32)"
		}
		return "BIGINT"
	}
	return storageTypes[f.Type]
}

var storageTypes = map[LogicalType]string{
	TypeText:        "VARCHAR(255)",
	TypeTextarea:    "TEXT",
	TypeNumber:      "BIGINT",
	TypeDate:        "DATE",
	TypeCheckbox:    "BOOLEAN",
	TypeSelect:      "VARCHAR(255)",
	TypeMultiSelect: "TEXT",
	TypeUpload:      "VARCHAR(512)",
}

var uploadNameFragments = []string{"photo", "image", "file", "upload", "document", "avatar", "attachment"}

// InferLogicalType guesses a logical type from an information_schema
// data_type for columns that have no registry entry.
func InferLogicalType(column, dataType string) LogicalType {
	dt := strings.ToLower(dataType)
	switch {
	case dt == "integer" || dt == "bigint" || dt == "smallint" || dt == "numeric":
		return TypeNumber
	case dt == "boolean":
		return TypeCheckbox
	case dt == "date":
		return TypeDate
	case strings.HasPrefix(dt, "character") || dt == "text":
		name := strings.ToLower(column)
		for _, frag := range uploadNameFragments {
			if strings.Contains(name, frag) {
				return TypeUpload
			}
		}
	}
	return TypeText
}
