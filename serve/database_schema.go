package serve

// schema for assignment_jobs table
var ASSIGNMENT_JOBS_TABLE = `CREATE TABLE IF NOT EXISTS assignment_jobs (
		id UUID PRIMARY KEY,
		event_id BIGINT NOT NULL,
		num_courses INTEGER NOT NULL,
		num_participants INTEGER NOT NULL,
		solved BOOLEAN NOT NULL,
		score BIGINT,
		quality DOUBLE PRECISION,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_assignment_jobs_created_at ON assignment_jobs (created_at);
`

var INSERT_ASSIGNMENT_JOB = `INSERT INTO assignment_jobs
	(id, event_id, num_courses, num_participants, solved, score, quality, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
