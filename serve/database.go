package serve

import (
	"time"

	"github.com/google/uuid"

	"github.com/cdetools/cdecao/caobab"
	db "github.com/cdetools/cdecao/database"
)

// initJobTableIfNotExists creates the assignment_jobs table if it does not exist
func initJobTableIfNotExists() error {
	connPool, err := db.GetDatabaseConnectionPool()
	if err != nil {
		return err
	}
	_, err = connPool.Exec(
		db.GetDatabaseContext(),
		ASSIGNMENT_JOBS_TABLE,
	)
	return err
}

// insertJob records one solved (or unsolvable) assignment job. quality is
// nil when no feasible solution was found.
func insertJob(id uuid.UUID, eventID uint64, numCourses, numParticipants int, quality *caobab.QualityInfo) error {
	connPool, err := db.GetDatabaseConnectionPool()
	if err != nil {
		return err
	}
	var score *int64
	var qualityLack *float64
	if quality != nil {
		s := int64(quality.SolutionScore)
		score = &s
		qualityLack = &quality.SolutionQuality
	}
	_, err = connPool.Exec(
		db.GetDatabaseContext(),
		INSERT_ASSIGNMENT_JOB,
		id,
		eventID,
		numCourses,
		numParticipants,
		quality != nil,
		score,
		qualityLack,
		time.Now().UTC(),
	)
	return err
}
