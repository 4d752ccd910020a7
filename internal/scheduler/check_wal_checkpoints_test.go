package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	testhelpers "github.com/aristath/quanport/internal/testing"
)

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := NewCheckWALCheckpointsJob(nil, zerolog.Nop())
	assert.Equal(t, "check_wal_checkpoints", job.Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabase(t *testing.T) {
	job := NewCheckWALCheckpointsJob(nil, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	db := testhelpers.NewTestDB(t)
	job := NewCheckWALCheckpointsJob(db, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCheckDatabaseJob(t *testing.T) {
	assert.Equal(t, "check_database", NewCheckDatabaseJob(nil, zerolog.Nop()).Name())
	assert.NoError(t, NewCheckDatabaseJob(nil, zerolog.Nop()).Run())
	assert.NoError(t, NewCheckDatabaseJob(testhelpers.NewTestDB(t), zerolog.Nop()).Run())
}
