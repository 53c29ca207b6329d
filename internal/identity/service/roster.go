package service

import (
	"strings"

	identitydomain "github.com/PresidentofMexico/openai-usage-metrics/internal/identity/domain"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/format"
)

// ParseRoster maps a roster export table to employee records. A row needs
// at least an email or a usable name to be kept; a missing department stays
// nil so data-quality reporting can tell "no data" from an explicit
// "Unknown".
func ParseRoster(t format.Table) ([]identitydomain.EmployeeRecord, error) {
	emailCol := t.Column("email", "user email", "email address", "work email")
	firstCol := t.Column("first name", "first_name", "given name")
	lastCol := t.Column("last name", "last_name", "surname", "family name")
	nameCol := t.Column("name", "full name", "display name", "employee name")
	deptCol := t.Column("department", "dept", "org", "team", "cost center")

	if emailCol < 0 && firstCol < 0 && nameCol < 0 {
		return nil, identitydomain.ErrInvalidRoster
	}

	var employees []identitydomain.EmployeeRecord
	for _, row := range t.Rows {
		first := t.Cell(row, firstCol)
		last := t.Cell(row, lastCol)
		if first == "" && last == "" {
			first, last = splitName(t.Cell(row, nameCol))
		}

		var email *string
		if v := strings.ToLower(t.Cell(row, emailCol)); v != "" {
			email = &v
		}
		if email == nil && first == "" && last == "" {
			continue
		}

		var department *string
		if v := t.Cell(row, deptCol); v != "" {
			department = &v
		}

		employees = append(employees, identitydomain.EmployeeRecord{
			Email:      email,
			FirstName:  first,
			LastName:   last,
			Department: department,
		})
	}

	if len(employees) == 0 {
		return nil, identitydomain.ErrEmptyRoster
	}
	return employees, nil
}

func splitName(full string) (first, last string) {
	tokens := strings.Fields(strings.TrimSpace(full))
	if len(tokens) == 0 {
		return "", ""
	}
	if len(tokens) == 1 {
		return tokens[0], ""
	}
	return tokens[0], strings.Join(tokens[1:], " ")
}
