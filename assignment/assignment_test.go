package assignment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChoicesFromList(t *testing.T) {
	choices := ChoicesFromList([]int{3, 0, 2})
	assert.Equal(t, []Choice{
		{CourseIndex: 3, Penalty: 0},
		{CourseIndex: 0, Penalty: 1},
		{CourseIndex: 2, Penalty: 2},
	}, choices)

	assert.Empty(t, ChoicesFromList(nil))
}

func TestInstructorOnly(t *testing.T) {
	p := Participant{Index: 0, Name: "Erna Eventorga"}
	assert.True(t, p.InstructorOnly())
	p.Choices = ChoicesFromList([]int{0})
	assert.False(t, p.InstructorOnly())
}

func TestAssignmentJSON(t *testing.T) {
	a := Assignment{0, 2, NotAssigned, 1}

	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `[0, 2, null, 1]`, string(data))

	var decoded Assignment
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, a, decoded)
}

func TestCheckConsistency(t *testing.T) {
	participants := []Participant{
		{Index: 0, Name: "Participant 0", Choices: ChoicesFromList([]int{0, 1})},
		{Index: 1, Name: "Participant 1", Choices: ChoicesFromList([]int{1, 0})},
	}
	courses := []Course{
		{Index: 0, Name: "Course 0", NumMin: 1, NumMax: 5, Instructors: []int{0}},
		{Index: 1, Name: "Course 1", NumMin: 1, NumMax: 5},
	}
	assert.NoError(t, CheckConsistency(participants, courses))

	// wrong participant index
	broken := append([]Participant(nil), participants...)
	broken[1].Index = 5
	assert.Error(t, CheckConsistency(broken, courses))

	// choice referencing a missing course
	broken = append([]Participant(nil), participants...)
	broken[0].Choices = ChoicesFromList([]int{0, 7})
	assert.Error(t, CheckConsistency(broken, courses))

	// instructor referencing a missing participant
	brokenCourses := append([]Course(nil), courses...)
	brokenCourses[0].Instructors = []int{3}
	assert.Error(t, CheckConsistency(participants, brokenCourses))

	// min size above max size
	brokenCourses = append([]Course(nil), courses...)
	brokenCourses[1].NumMin = 10
	assert.Error(t, CheckConsistency(participants, brokenCourses))
}

func TestFormat(t *testing.T) {
	participants := []Participant{
		{Index: 0, Name: "Anton Administrator", Choices: ChoicesFromList([]int{0, 1})},
		{Index: 1, Name: "Bertalotta Beispiel", Choices: ChoicesFromList([]int{0, 1})},
		{Index: 2, Name: "Charlie Clown", Choices: ChoicesFromList([]int{1, 0})},
	}
	courses := []Course{
		{Index: 0, Name: "1. Gardening", NumMin: 1, NumMax: 5, Instructors: []int{1}},
		{Index: 1, Name: "2. Yodeling", NumMin: 1, NumMax: 5,
			HiddenParticipantNames: []string{"Emilia E. Eventis"}},
	}
	a := Assignment{0, 0, 1}

	out := Format(a, courses, participants, nil)

	assert.Equal(t, `
===== 1. Gardening =====
(2 participants incl. instructors)
- Anton Administrator
- Bertalotta Beispiel (instr)

===== 2. Yodeling =====
(2 participants incl. instructors)
- Charlie Clown
further attendees (not optimized):
- Emilia E. Eventis
`, out)

	out = Format(a, courses, participants, []string{"Seminar Room, Lecture Hall", "Meeting Room"})
	assert.Contains(t, out, "(possible course rooms: Seminar Room, Lecture Hall)\n")
	assert.Contains(t, out, "(possible course rooms: Meeting Room)\n")
}

func TestCourseList(t *testing.T) {
	courses := []Course{
		{Index: 0, Name: "Gardening"},
		{Index: 1, Name: "Yodeling"},
	}
	assert.Equal(t, "00 Gardening\n01 Yodeling", CourseList(courses))
}
