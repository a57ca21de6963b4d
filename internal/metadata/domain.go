package metadata

import (
	"fmt"
	"strings"
)

// BaseColumn is a fixed column present in every table of a domain.
type BaseColumn struct {
	Field FieldDefinition
	DDL   string // column type and constraints
	// System columns are maintained by the engine and never accepted from clients.
	System bool
}

// Domain describes one roster kind: its namespace rule, id columns and base columns.
type Domain struct {
	Name   string // URL segment, e.g. "students"
	Entity string // singular, used in route names ("add-student")

	// SharedNamespace is the single namespace used for every category, or
	// empty when each category gets its own namespace.
	SharedNamespace string

	GlobalIDColumn string
	LocalIDColumn  string

	// Guardian rows get a second generated login.
	Guardian bool

	BaseColumns []BaseColumn
}

var (
	genderOptions       = []string{"Male", "Female", "Other"}
	studentRoleOptions  = []string{"student", "class_monitor", "prefect"}
	staffRoleOptions    = []string{"teacher", "principal", "administrator", "accountant", "librarian", "support"}
	knownOptionsByField = map[string]map[string][]string{
		"students": {"gender": genderOptions, "role": studentRoleOptions},
		"staff":    {"gender": genderOptions, "role": staffRoleOptions},
	}
)

var Students = &Domain{
	Name:            "students",
	Entity:          "student",
	SharedNamespace: "students",
	GlobalIDColumn:  "student_id",
	LocalIDColumn:   "roll_number",
	Guardian:        true,
	BaseColumns: []BaseColumn{
		{Field: FieldDefinition{Name: "student_id", Label: "Student ID", Type: TypeNumber}, DDL: "BIGINT PRIMARY KEY", System: true},
		{Field: FieldDefinition{Name: "roll_number", Label: "Roll Number", Type: TypeNumber}, DDL: "BIGINT NOT NULL UNIQUE", System: true},
		{Field: FieldDefinition{Name: "name", Label: "Name", Type: TypeText, Required: true}, DDL: "VARCHAR(255) NOT NULL"},
		{Field: FieldDefinition{Name: "gender", Label: "Gender", Type: TypeSelect, Options: genderOptions}, DDL: "VARCHAR(16)"},
		{Field: FieldDefinition{Name: "role", Label: "Role", Type: TypeSelect, Options: studentRoleOptions}, DDL: "VARCHAR(32) NOT NULL DEFAULT 'student'"},
		{Field: FieldDefinition{Name: "date_of_birth", Label: "Date of Birth", Type: TypeDate}, DDL: "DATE"},
		{Field: FieldDefinition{Name: "email", Label: "Email", Type: TypeText}, DDL: "VARCHAR(255)"},
		{Field: FieldDefinition{Name: "photo", Label: "Photo", Type: TypeUpload}, DDL: "VARCHAR(512)"},
		{Field: FieldDefinition{Name: "guardian_name", Label: "Guardian Name", Type: TypeText}, DDL: "VARCHAR(255)"},
		{Field: FieldDefinition{Name: "username", Label: "Username", Type: TypeText}, DDL: "VARCHAR(64) UNIQUE", System: true},
		{Field: FieldDefinition{Name: "guardian_username", Label: "Guardian Username", Type: TypeText}, DDL: "VARCHAR(64) UNIQUE", System: true},
		{Field: FieldDefinition{Name: "created_at", Label: "Created At", Type: TypeText}, DDL: "TIMESTAMPTZ NOT NULL DEFAULT NOW()", System: true},
		{Field: FieldDefinition{Name: "updated_at", Label: "Updated At", Type: TypeText}, DDL: "TIMESTAMPTZ NOT NULL DEFAULT NOW()", System: true},
	},
}

var Staff = &Domain{
	Name:           "staff",
	Entity:         "staff",
	GlobalIDColumn: "staff_id",
	LocalIDColumn:  "employee_number",
	BaseColumns: []BaseColumn{
		{Field: FieldDefinition{Name: "staff_id", Label: "Staff ID", Type: TypeNumber}, DDL: "BIGINT PRIMARY KEY", System: true},
		{Field: FieldDefinition{Name: "employee_number", Label: "Employee Number", Type: TypeNumber}, DDL: "BIGINT NOT NULL UNIQUE", System: true},
		{Field: FieldDefinition{Name: "name", Label: "Name", Type: TypeText, Required: true}, DDL: "VARCHAR(255) NOT NULL"},
		{Field: FieldDefinition{Name: "gender", Label: "Gender", Type: TypeSelect, Options: genderOptions}, DDL: "VARCHAR(16)"},
		{Field: FieldDefinition{Name: "role", Label: "Role", Type: TypeSelect, Required: true, Options: staffRoleOptions}, DDL: "VARCHAR(32) NOT NULL"},
		{Field: FieldDefinition{Name: "date_of_birth", Label: "Date of Birth", Type: TypeDate}, DDL: "DATE"},
		{Field: FieldDefinition{Name: "email", Label: "Email", Type: TypeText}, DDL: "VARCHAR(255)"},
		{Field: FieldDefinition{Name: "photo", Label: "Photo", Type: TypeUpload}, DDL: "VARCHAR(512)"},
		{Field: FieldDefinition{Name: "username", Label: "Username", Type: TypeText}, DDL: "VARCHAR(64) UNIQUE", System: true},
		{Field: FieldDefinition{Name: "created_at", Label: "Created At", Type: TypeText}, DDL: "TIMESTAMPTZ NOT NULL DEFAULT NOW()", System: true},
		{Field: FieldDefinition{Name: "updated_at", Label: "Updated At", Type: TypeText}, DDL: "TIMESTAMPTZ NOT NULL DEFAULT NOW()", System: true},
	},
}

var domains = map[string]*Domain{
	Students.Name: Students,
	Staff.Name:    Staff,
}

// LookupDomain returns the domain served under the given URL segment, or nil.
func LookupDomain(name string) *Domain {
	return domains[name]
}

// AllDomains returns every registered domain.
func AllDomains() []*Domain {
	return []*Domain{Students, Staff}
}

// BaseColumn returns the base column with the given name (case-insensitive), or nil.
func (d *Domain) BaseColumn(name string) *BaseColumn {
	for i := range d.BaseColumns {
		if strings.EqualFold(d.BaseColumns[i].Field.Name, name) {
			return &d.BaseColumns[i]
		}
	}
	return nil
}

// IsBaseColumn reports whether name is reserved by the domain's base columns.
func (d *Domain) IsBaseColumn(name string) bool {
	return d.BaseColumn(name) != nil
}

// KnownOptions returns the fixed option list for a well-known base column.
func (d *Domain) KnownOptions(column string) []string {
	return knownOptionsByField[d.Name][column]
}

// ResolveNamespace maps a category to the namespace that stores its tables.
func (d *Domain) ResolveNamespace(category string) (Identifier, error) {
	if d.SharedNamespace != "" {
		return fixedIdentifier(d.SharedNamespace), nil
	}
	ns, err := SanitizeNamespace(category)
	if err != nil {
		return Identifier{}, err
	}
	for _, other := range domains {
		if other.SharedNamespace == ns.name {
			return Identifier{}, fmt.Errorf("%w: namespace %q belongs to the %s roster", ErrInvalidIdentifier, category, other.Name)
		}
	}
	return ns, nil
}

// IDColumns returns the global and local id columns as identifiers.
func (d *Domain) IDColumns() (global, local Identifier) {
	return fixedIdentifier(d.GlobalIDColumn), fixedIdentifier(d.LocalIDColumn)
}

// Identifier returns the column name as an identifier.
func (c BaseColumn) Identifier() Identifier {
	return fixedIdentifier(c.Field.Name)
}

// CounterName is the key of the domain's shared global id counter.
func (d *Domain) CounterName() string {
	return d.Name
}
