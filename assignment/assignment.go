// Package assignment holds the shared data model of the course assignment
// problem: courses, participants, their course choices and the resulting
// assignment of participants to courses.
package assignment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NotAssigned marks a participant without an assigned course.
const NotAssigned = -1

// Choice is one course choice of a participant. The penalty expresses the
// rank of the choice: 0 for the first choice, 1 for the second and so on.
type Choice struct {
	CourseIndex int    `json:"course_index"`
	Penalty     uint32 `json:"penalty"`
}

// Participant represents an event participant's data.
type Participant struct {
	// Index of the participant in the list of participants
	Index int `json:"index"`
	// Registration id in the CdE Datenbank
	DBID int `json:"dbid"`
	// Name, mainly used for info/debug output
	Name string `json:"name"`
	// Ordered course choices
	Choices []Choice `json:"choices"`
}

// InstructorOnly reports whether the participant attends only as a course
// instructor. Such participants have no course choices and are never
// assigned as attendees or considered in scores.
func (p *Participant) InstructorOnly() bool {
	return len(p.Choices) == 0
}

// Course represents an event course's data.
type Course struct {
	// Index of the course in the list of courses
	Index int `json:"index"`
	// Course id in the CdE Datenbank
	DBID int `json:"dbid"`
	// Name, mainly used for info/debug output
	Name string `json:"name"`
	// Minimum number of attendees (excl. instructors)
	NumMin int `json:"num_min"`
	// Maximum number of attendees (excl. instructors)
	NumMax int `json:"num_max"`
	// Indexes of the course's instructors in the participant list
	Instructors []int `json:"instructors"`
	// Scaling factor for the course size when matching courses to rooms
	RoomFactor float64 `json:"room_factor"`
	// Fixed offset for the course size when matching courses to rooms
	RoomOffset float64 `json:"room_offset"`
	// A fixed course must not be cancelled
	Fixed bool `json:"fixed_course"`
	// Names of participants that are attending the course but are hidden
	// from the optimization (e.g. pre-assigned registrations)
	HiddenParticipantNames []string `json:"hidden_participant_names,omitempty"`
}

// Assignment maps each participant index to the index of their assigned
// course, or NotAssigned.
type Assignment []int

// MarshalJSON writes the assignment as a JSON array with null entries for
// unassigned participants.
func (a Assignment) MarshalJSON() ([]byte, error) {
	entries := make([]*int, len(a))
	for i, c := range a {
		if c != NotAssigned {
			course := c
			entries[i] = &course
		}
	}
	return json.Marshal(entries)
}

// UnmarshalJSON reads a JSON array with null entries for unassigned
// participants.
func (a *Assignment) UnmarshalJSON(data []byte) error {
	var entries []*int
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*a = make(Assignment, len(entries))
	for i, c := range entries {
		if c == nil {
			(*a)[i] = NotAssigned
		} else {
			(*a)[i] = *c
		}
	}
	return nil
}

// ChoicesFromList builds a Choice list from an ordered list of course
// indexes, assigning penalties by position.
func ChoicesFromList(courseIndexes []int) []Choice {
	choices := make([]Choice, len(courseIndexes))
	for i, c := range courseIndexes {
		choices[i] = Choice{CourseIndex: c, Penalty: uint32(i)}
	}
	return choices
}

// CheckConsistency verifies that a courses/participants data structure is
// consistent in terms of object indexes and cross-referencing indexes.
func CheckConsistency(participants []Participant, courses []Course) error {
	for i, p := range participants {
		if p.Index != i {
			return fmt.Errorf("index of %d. participant is %d", i, p.Index)
		}
		for _, choice := range p.Choices {
			if choice.CourseIndex < 0 || choice.CourseIndex >= len(courses) {
				return fmt.Errorf("choice %d of %d. participant is invalid", choice.CourseIndex, i)
			}
		}
	}
	for i, c := range courses {
		if c.Index != i {
			return fmt.Errorf("index of %d. course is %d", i, c.Index)
		}
		for _, instr := range c.Instructors {
			if instr < 0 || instr >= len(participants) {
				return fmt.Errorf("instructor %d of %d. course is invalid", instr, i)
			}
		}
		if c.NumMin > c.NumMax {
			return fmt.Errorf("min size (%d) > max size (%d) of course %d", c.NumMin, c.NumMax, c.Index)
		}
	}
	return nil
}

// Format renders the calculated course assignment into a human readable
// string (e.g. to print it to stdout).
//
// The output format looks like
//
//	===== Course name =====
//	(3 participants incl. instructors)
//	(possible course rooms: Seminar Room, Meeting Room)
//	- Anton Administrator
//	- Bertalotta Beispiel (instr)
//	further attendees (not optimized):
//	- Charlie Clown
func Format(a Assignment, courses []Course, participants []Participant, possibleRooms []string) string {
	var b strings.Builder
	for ci := range courses {
		c := &courses[ci]
		fmt.Fprintf(&b, "\n===== %s =====\n", c.Name)

		var assigned []*Participant
		for pi, course := range a {
			if course == c.Index {
				assigned = append(assigned, &participants[pi])
			}
		}
		num := len(assigned) + len(c.HiddenParticipantNames)
		fmt.Fprintf(&b, "(%d participants incl. instructors)\n", num)
		if possibleRooms != nil {
			fmt.Fprintf(&b, "(possible course rooms: %s)\n", possibleRooms[c.Index])
		}

		for _, p := range assigned {
			instr := ""
			for _, i := range c.Instructors {
				if i == p.Index {
					instr = " (instr)"
					break
				}
			}
			fmt.Fprintf(&b, "- %s%s\n", p.Name, instr)
		}
		if len(c.HiddenParticipantNames) > 0 {
			b.WriteString("further attendees (not optimized):\n")
			for _, name := range c.HiddenParticipantNames {
				fmt.Fprintf(&b, "- %s\n", name)
			}
		}
	}
	return b.String()
}

// CourseList returns a compact listing of all courses for debug output.
func CourseList(courses []Course) string {
	lines := make([]string, len(courses))
	for i, c := range courses {
		lines[i] = fmt.Sprintf("%02d %s", c.Index, c.Name)
	}
	return strings.Join(lines, "\n")
}
