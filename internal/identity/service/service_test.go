package service

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	identitydomain "github.com/PresidentofMexico/openai-usage-metrics/internal/identity/domain"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/identity/repository"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/format"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func str(v string) *string { return &v }

func setupIdentity(t *testing.T) (identitydomain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&identitydomain.EmployeeRecord{},
		&usagedomain.CanonicalUsageRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(ServiceParam{
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(db),
	})
	return svc, db
}

func seedRoster(t *testing.T, svc identitydomain.Service) {
	t.Helper()
	loaded, err := svc.ReplaceRoster(context.Background(), []identitydomain.EmployeeRecord{
		{Email: str("ada@x.com"), FirstName: "Ada", LastName: "Alpha", Department: str("Engineering")},
		{Email: str("bea@x.com"), FirstName: "Bea", LastName: "Beta"},
		{Email: str("cara@x.com"), FirstName: "Cara", LastName: "Gamma", Department: str("Unknown")},
		{FirstName: "Dan", LastName: "Delta", Department: str("Sales")},
	})
	require.NoError(t, err)
	require.Equal(t, 4, loaded)
}

func TestReplaceRoster_DuplicateEmailRejected(t *testing.T) {
	svc, _ := setupIdentity(t)
	seedRoster(t, svc)

	_, err := svc.ReplaceRoster(context.Background(), []identitydomain.EmployeeRecord{
		{Email: str("dupe@x.com"), FirstName: "First", LastName: "Copy"},
		{Email: str("dupe@x.com"), FirstName: "Second", LastName: "Copy"},
	})
	assert.ErrorIs(t, err, identitydomain.ErrDuplicateEmail)

	// The replacement transaction rolled back, so the prior roster still
	// resolves.
	outcome := svc.Resolve("ada@x.com", "")
	assert.True(t, outcome.Matched)
}

func TestResolve_EmailThenNameFallback(t *testing.T) {
	svc, _ := setupIdentity(t)
	seedRoster(t, svc)

	outcome := svc.Resolve("ADA@X.COM", "")
	require.True(t, outcome.Matched)
	assert.Equal(t, "Ada", outcome.Employee.FirstName)

	// No email on the usage row, but the display name splits into a
	// matching first and last name.
	outcome = svc.Resolve("", "Dan Delta")
	require.True(t, outcome.Matched)
	assert.Equal(t, "Sales", *outcome.Employee.Department)

	outcome = svc.Resolve("nobody@x.com", "No Body")
	assert.False(t, outcome.Matched)
}

func TestResolve_EmptyRosterDegradesGracefully(t *testing.T) {
	svc, _ := setupIdentity(t)

	outcome := svc.Resolve("ada@x.com", "Ada Alpha")
	assert.False(t, outcome.Matched)
}

func TestResolveDepartment_RosterWins(t *testing.T) {
	svc, _ := setupIdentity(t)
	seedRoster(t, svc)

	ada := svc.Resolve("ada@x.com", "")
	assert.Equal(t, "Engineering", svc.ResolveDepartment(ada, "General"))

	// A blank roster department leaves the export value untouched.
	bea := svc.Resolve("bea@x.com", "")
	assert.Equal(t, "Design", svc.ResolveDepartment(bea, "Design"))

	// An explicit roster Unknown wins over the export value.
	cara := svc.Resolve("cara@x.com", "")
	assert.Equal(t, "Unknown", svc.ResolveDepartment(cara, "Marketing"))

	assert.Equal(t, "Whatever", svc.ResolveDepartment(identitydomain.Unidentified, "Whatever"))
}

func TestPrimaryDepartment(t *testing.T) {
	svc, _ := setupIdentity(t)

	// A real org unit beats placeholders and Unknown regardless of order.
	assert.Equal(t, "Engineering", svc.PrimaryDepartment([]string{"General", "Engineering", "Unknown"}))
	assert.Equal(t, "Engineering", svc.PrimaryDepartment([]string{"Unknown", "Engineering"}))

	// With only placeholders, the first named one wins.
	assert.Equal(t, "General", svc.PrimaryDepartment([]string{"General", "Unassigned"}))

	assert.Equal(t, "Unknown", svc.PrimaryDepartment([]string{"Unknown", ""}))
	assert.Equal(t, "Unknown", svc.PrimaryDepartment(nil))
}

func TestStats_BlankVersusExplicitUnknown(t *testing.T) {
	svc, _ := setupIdentity(t)
	seedRoster(t, svc)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Employees)
	assert.Equal(t, int64(1), stats.BlankDepartment)
	assert.Equal(t, int64(1), stats.ExplicitUnknown)
}

func TestListUnidentified(t *testing.T) {
	svc, db := setupIdentity(t)
	seedRoster(t, svc)

	node, _ := snowflake.NewNode(2)
	records := []usagedomain.CanonicalUsageRecord{
		{ID: node.Generate(), UserKey: "ada@x.com", DisplayName: "Ada Alpha", UsageCount: 10, Cadence: usagedomain.CadenceMonthly, Feature: "F", ToolSource: "OpenAI"},
		{ID: node.Generate(), UserKey: "ghost@x.com", DisplayName: "Ghost User", UsageCount: 25, Cadence: usagedomain.CadenceMonthly, Feature: "F", ToolSource: "OpenAI"},
	}
	require.NoError(t, db.Create(&records).Error)

	rows, err := svc.ListUnidentified(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ghost@x.com", rows[0].UserKey)
	assert.Equal(t, 25.0, rows[0].UsageCount)
}

func TestParseRoster(t *testing.T) {
	table, err := format.ParseTable(strings.NewReader(strings.Join([]string{
		"Email,First Name,Last Name,Department",
		"ada@x.com,Ada,Alpha,Engineering",
		"bea@x.com,Bea,Beta,",
		",,,Orphans",
	}, "\n")))
	require.NoError(t, err)

	employees, err := ParseRoster(table)
	require.NoError(t, err)
	require.Len(t, employees, 2)

	assert.Equal(t, "ada@x.com", *employees[0].Email)
	assert.Equal(t, "Engineering", *employees[0].Department)
	assert.Nil(t, employees[1].Department)
}

func TestParseRoster_SplitsFullName(t *testing.T) {
	table, err := format.ParseTable(strings.NewReader("Name,Department\nCara De Gamma,Legal\n"))
	require.NoError(t, err)

	employees, err := ParseRoster(table)
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "Cara", employees[0].FirstName)
	assert.Equal(t, "De Gamma", employees[0].LastName)
}

func TestParseRoster_RejectsUnusableTable(t *testing.T) {
	table, err := format.ParseTable(strings.NewReader("Foo,Bar\n1,2\n"))
	require.NoError(t, err)

	_, err = ParseRoster(table)
	assert.ErrorIs(t, err, identitydomain.ErrInvalidRoster)
}
