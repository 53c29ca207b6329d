// Package domain holds the employee roster model and identity outcomes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EmployeeRecord is the reference identity roster entry. The roster is
// loaded wholesale from a roster file and is the single source of truth
// for department whenever a match exists.
//
// Department is a pointer on purpose: nil means the roster has no data for
// this person, while an explicit "Unknown" string means the person was
// classified as unknown. The two are different failure categories for
// data-quality reporting and must never be conflated.
type EmployeeRecord struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Email      *string      `gorm:"type:text;uniqueIndex" json:"email,omitempty"`
	FirstName  string       `gorm:"type:text;not null" json:"first_name"`
	LastName   string       `gorm:"type:text;not null" json:"last_name"`
	Department *string      `gorm:"type:text" json:"department,omitempty"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (EmployeeRecord) TableName() string { return "employees" }

// DeptUnknown is the explicit "classified as unknown" department value.
const DeptUnknown = "Unknown"

// HasExplicitUnknown reports whether the roster explicitly classifies this
// employee's department as Unknown (as opposed to having no data at all).
func (e EmployeeRecord) HasExplicitUnknown() bool {
	return e.Department != nil && *e.Department == DeptUnknown
}

// HasBlankDepartment reports whether the roster carries no department data.
func (e EmployeeRecord) HasBlankDepartment() bool {
	return e.Department == nil || *e.Department == ""
}

// IdentityOutcome is the result of resolving one raw usage row: either a
// roster match or Unidentified.
type IdentityOutcome struct {
	Matched  bool            `json:"matched"`
	Employee *EmployeeRecord `json:"employee,omitempty"`
}

// Unidentified is the zero outcome.
var Unidentified = IdentityOutcome{}
