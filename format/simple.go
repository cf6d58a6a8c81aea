package format

import (
	"encoding/json"
	"io"

	"github.com/cdetools/cdecao/assignment"
)

// simpleData is the simple JSON representation of the input data: the
// canonical serialization of the Participant and Course objects.
type simpleData struct {
	Format       string                   `json:"format"`
	Version      string                   `json:"version"`
	Participants []assignment.Participant `json:"participants"`
	Courses      []assignment.Course      `json:"courses"`
}

// simpleResult is the simple JSON representation of an assignment result.
type simpleResult struct {
	Format     string                `json:"format"`
	Version    string                `json:"version"`
	Assignment assignment.Assignment `json:"assignment"`
}

// ReadSimple reads the list of participants and courses from the simple
// JSON representation. Participant and course indexes are renumbered by
// list position.
func ReadSimple(r io.Reader) ([]assignment.Participant, []assignment.Course, error) {
	var data simpleData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, nil, err
	}
	for i := range data.Participants {
		data.Participants[i].Index = i
	}
	for i := range data.Courses {
		data.Courses[i].Index = i
	}
	return data.Participants, data.Courses, nil
}

// WriteSimpleAssignment writes the calculated course assignment in the
// simple JSON representation.
func WriteSimpleAssignment(w io.Writer, a assignment.Assignment) error {
	return json.NewEncoder(w).Encode(simpleResult{
		Format:     "X-courseassignment-simple",
		Version:    "1.0",
		Assignment: a,
	})
}

// WriteSimpleInput writes the list of participants and courses in the
// simple JSON representation.
func WriteSimpleInput(w io.Writer, participants []assignment.Participant, courses []assignment.Course) error {
	return json.NewEncoder(w).Encode(simpleData{
		Format:       "X-coursedata-simple",
		Version:      "1.0",
		Participants: participants,
		Courses:      courses,
	})
}
