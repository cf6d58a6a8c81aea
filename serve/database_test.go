package serve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobRecordCarriesEventID(t *testing.T) {
	assert.Contains(t, ASSIGNMENT_JOBS_TABLE, "event_id BIGINT NOT NULL")
	assert.Contains(t, INSERT_ASSIGNMENT_JOB, "event_id")
	// one placeholder per inserted column
	assert.Equal(t, 8, strings.Count(INSERT_ASSIGNMENT_JOB, "$"))
}
