package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunMigrations_RejectsUnknownDBType(t *testing.T) {
	err := RunMigrations(nil, "oracle")
	assert.EqualError(t, err, "unsupported oracle type")
}

func TestRunMigrations_AcceptsEveryDialectType(t *testing.T) {
	// Every type the dialect layer accepts must get past type validation;
	// with no handle the failure is the missing database, not the type.
	for _, dbType := range []string{"postgres", "mysql", "sqlite"} {
		err := RunMigrations(nil, dbType)
		assert.EqualError(t, err, "migration database handle is required", dbType)
	}
}
