package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/clock"
	reconciledomain "github.com/PresidentofMexico/openai-usage-metrics/internal/reconcile/domain"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	usagerepository "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNode, _ = snowflake.NewNode(3)

func setupReconcile(t *testing.T) (reconciledomain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&usagedomain.CanonicalUsageRecord{}))
	require.NoError(t, db.Exec("DELETE FROM usage_records").Error)

	svc := New(ServiceParam{
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)),
		Repo:  usagerepository.Provide(db),
	})
	return svc, db
}

func record(user string, start time.Time, cadence usagedomain.Cadence, count float64) usagedomain.CanonicalUsageRecord {
	return usagedomain.CanonicalUsageRecord{
		ID:          testNode.Generate(),
		UserKey:     user,
		PeriodStart: start,
		Cadence:     cadence,
		Feature:     "ChatGPT Messages",
		ToolSource:  "OpenAI",
		UsageCount:  count,
		IngestedAt:  start,
	}
}

func TestRun_CleanDataPasses(t *testing.T) {
	svc, db := setupReconcile(t)
	jan := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	// Four full weeks summing inside tolerance of the monthly figure.
	rows := []usagedomain.CanonicalUsageRecord{
		record("ada@x.com", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), usagedomain.CadenceWeekly, 25),
		record("ada@x.com", time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC), usagedomain.CadenceWeekly, 25),
		record("ada@x.com", time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), usagedomain.CadenceWeekly, 25),
		record("ada@x.com", time.Date(2024, time.January, 22, 0, 0, 0, 0, time.UTC), usagedomain.CadenceWeekly, 25),
	}
	monthly := record("ada@x.com", jan, usagedomain.CadenceMonthly, 100)
	rows = append(rows, monthly)
	require.NoError(t, db.Create(&rows).Error)

	report, err := svc.Run(context.Background(), reconciledomain.RunRequest{})
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Empty(t, report.CadenceMismatches)
	assert.Empty(t, report.Duplicates)
	assert.InDelta(t, 1.0, report.Duplication.Factor, 1e-9)
}

func TestRun_WeeklyMonthlyMismatch(t *testing.T) {
	svc, db := setupReconcile(t)
	jan := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	rows := []usagedomain.CanonicalUsageRecord{
		record("ada@x.com", jan, usagedomain.CadenceWeekly, 10),
		record("ada@x.com", jan, usagedomain.CadenceMonthly, 100),
	}
	require.NoError(t, db.Create(&rows).Error)

	report, err := svc.Run(context.Background(), reconciledomain.RunRequest{})
	require.NoError(t, err)
	assert.False(t, report.Passed)
	require.Len(t, report.CadenceMismatches, 1)

	m := report.CadenceMismatches[0]
	assert.Equal(t, "ada@x.com", m.UserKey)
	assert.InDelta(t, 10, m.WeeklySum, 1e-9)
	assert.InDelta(t, 100, m.MonthlyTotal, 1e-9)
	assert.InDelta(t, 0.9, m.Deviation, 1e-9)
}

func TestRun_ToleranceAllowsSmallDeviation(t *testing.T) {
	svc, db := setupReconcile(t)
	jan := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	// 100.5 vs 100 is 0.5% off, inside the default 1% tolerance.
	rows := []usagedomain.CanonicalUsageRecord{
		record("ada@x.com", jan, usagedomain.CadenceWeekly, 100.5),
		record("ada@x.com", jan, usagedomain.CadenceMonthly, 100),
	}
	require.NoError(t, db.Create(&rows).Error)

	report, err := svc.Run(context.Background(), reconciledomain.RunRequest{})
	require.NoError(t, err)
	assert.True(t, report.Passed)
}

func TestRun_IncompleteMonthSkipped(t *testing.T) {
	svc, db := setupReconcile(t)
	// March 2024 is still in progress at the fake clock's instant.
	mar := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	rows := []usagedomain.CanonicalUsageRecord{
		record("ada@x.com", time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), usagedomain.CadenceWeekly, 10),
		record("ada@x.com", mar, usagedomain.CadenceMonthly, 100),
	}
	require.NoError(t, db.Create(&rows).Error)

	report, err := svc.Run(context.Background(), reconciledomain.RunRequest{})
	require.NoError(t, err)
	assert.Empty(t, report.CadenceMismatches)
}

func TestRun_DuplicationFactorTwo(t *testing.T) {
	svc, db := setupReconcile(t)
	jan := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	// Every logical key present twice, as if a batch were inserted twice
	// without supersession. The factor must come out exactly 2.0 and the
	// deduplicated total must equal one copy's worth.
	var rows []usagedomain.CanonicalUsageRecord
	users := []string{"ada@x.com", "bea@x.com", "cara@x.com"}
	for _, user := range users {
		rows = append(rows,
			record(user, jan, usagedomain.CadenceMonthly, 50),
			record(user, jan, usagedomain.CadenceMonthly, 50),
		)
	}
	require.NoError(t, db.Create(&rows).Error)

	report, err := svc.Run(context.Background(), reconciledomain.RunRequest{})
	require.NoError(t, err)
	assert.False(t, report.Passed)
	assert.Len(t, report.Duplicates, 3)
	assert.Equal(t, int64(6), report.Duplication.TotalRecords)
	assert.Equal(t, int64(3), report.Duplication.UniqueKeys)
	assert.InDelta(t, 300, report.Duplication.RawTotal, 1e-9)
	assert.InDelta(t, 150, report.Duplication.UniqueTotal, 1e-9)
	assert.InDelta(t, 2.0, report.Duplication.Factor, 1e-9)
}

func TestReport_Render(t *testing.T) {
	svc, db := setupReconcile(t)
	jan := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	rows := []usagedomain.CanonicalUsageRecord{
		record("ada@x.com", jan, usagedomain.CadenceMonthly, 50),
		record("ada@x.com", jan, usagedomain.CadenceMonthly, 50),
	}
	require.NoError(t, db.Create(&rows).Error)

	report, err := svc.Run(context.Background(), reconciledomain.RunRequest{})
	require.NoError(t, err)

	text := report.Render()
	assert.Contains(t, text, "duplication factor 2.00")
	assert.Contains(t, text, "result: FAILED")
}
