package caobab

import (
	"fmt"

	"github.com/cdetools/cdecao/assignment"
	"github.com/cdetools/cdecao/bab"
)

// TheoreticalMaxScore calculates a simple upper bound for the solution
// score of the given problem, assuming all course instructors can instruct
// their course and all participants get their best choice.
func TheoreticalMaxScore(participants []assignment.Participant, courses []assignment.Course) bab.Score {
	scores := make([]bab.Score, len(participants))
	for i := range participants {
		for _, choice := range participants[i].Choices {
			if w := bab.Score(edgeWeight(choice)); w > scores[i] {
				scores[i] = w
			}
		}
	}
	for _, course := range courses {
		for _, instr := range course.Instructors {
			// Instructor-only participants are not considered in the
			// score. See runNode.
			if !participants[instr].InstructorOnly() {
				scores[instr] = bab.Score(instructorScore)
			}
		}
	}
	var sum bab.Score
	for _, s := range scores {
		sum += s
	}
	return sum
}

// SolutionQuality calculates a comparable solution quality lack, invariant
// to the number of participants and available course choices. Lower is
// better; 0 means every participant got their first choice.
func SolutionQuality(score bab.Score, participants []assignment.Participant) float64 {
	numReal := 0
	for i := range participants {
		if !participants[i].InstructorOnly() {
			numReal++
		}
	}
	return float64(numReal*int(weightOffset)-int(score)) / float64(numReal)
}

// AssignmentQualityInfo collects per-participant quality data of an
// assignment that was not necessarily produced by the solver, e.g. the
// assignment state already present in a CdE Datenbank export.
type AssignmentQualityInfo struct {
	// Number of course instructors assigned to their own course that are
	// not instructor-only participants.
	NumInstructors int
	// Penalty of the assigned course choice for every other participant.
	AssignedChoicePenalties []uint32
}

// NewAssignmentQualityInfo builds the quality data of the given assignment.
// Participants without assignment count with unassignedPenalty, assigned
// but unchosen courses with unfulfilledPenalty.
func NewAssignmentQualityInfo(
	participants []assignment.Participant,
	courses []assignment.Course,
	a assignment.Assignment,
	unassignedPenalty, unfulfilledPenalty uint32,
) *AssignmentQualityInfo {
	info := &AssignmentQualityInfo{}
	for p := range participants {
		c := a[p]
		if c == assignment.NotAssigned {
			if !participants[p].InstructorOnly() {
				info.AssignedChoicePenalties = append(info.AssignedChoicePenalties, unassignedPenalty)
			}
			continue
		}
		isInstructor := false
		for _, instr := range courses[c].Instructors {
			if instr == p {
				isInstructor = true
				break
			}
		}
		if isInstructor {
			if !participants[p].InstructorOnly() {
				info.NumInstructors++
			}
			continue
		}
		penalty := unfulfilledPenalty
		for _, choice := range participants[p].Choices {
			if choice.CourseIndex == c {
				penalty = choice.Penalty
				break
			}
		}
		info.AssignedChoicePenalties = append(info.AssignedChoicePenalties, penalty)
	}
	return info
}

// Quality returns the quality lack of the collected assignment data.
func (i *AssignmentQualityInfo) Quality() float64 {
	var sum uint64
	for _, p := range i.AssignedChoicePenalties {
		sum += uint64(p)
	}
	numInstructors := i.NumInstructors
	instructorLack := numInstructors * int(bab.Score(weightOffset)-bab.Score(instructorScore))
	return float64(uint64(instructorLack)+sum) / float64(len(i.AssignedChoicePenalties)+numInstructors)
}

// CombinedQuality calculates the quality lack of a combined assignment from
// a solver solution and external assignment quality data.
func CombinedQuality(score bab.Score, participants []assignment.Participant, external *AssignmentQualityInfo) float64 {
	numReal := 0
	for i := range participants {
		if !participants[i].InstructorOnly() {
			numReal++
		}
	}
	var externalPenalties uint64
	for _, p := range external.AssignedChoicePenalties {
		externalPenalties += uint64(p)
	}
	lack := uint64(numReal*int(weightOffset)) - uint64(score) +
		uint64(external.NumInstructors)*uint64(bab.Score(weightOffset)-bab.Score(instructorScore)) +
		externalPenalties
	return float64(lack) / float64(numReal+len(external.AssignedChoicePenalties)+external.NumInstructors)
}

// QualityInfo is the combined quality data of a solver run, as reported to
// the user.
type QualityInfo struct {
	SolutionScore         bab.Score `json:"solution_score"`
	TheoreticalMaxScore   bab.Score `json:"theoretical_max_score"`
	SolutionQuality       float64   `json:"solution_quality"`
	TheoreticalMaxQuality float64   `json:"theoretical_max_quality"`
	OverallQuality        *float64  `json:"overall_quality,omitempty"`
}

// CalculateQuality gathers all quality data of a solution. external may be
// nil if no external assignment data is to be combined.
func CalculateQuality(
	score bab.Score,
	participants []assignment.Participant,
	courses []assignment.Course,
	external *AssignmentQualityInfo,
) QualityInfo {
	maxScore := TheoreticalMaxScore(participants, courses)
	info := QualityInfo{
		SolutionScore:         score,
		TheoreticalMaxScore:   maxScore,
		SolutionQuality:       SolutionQuality(score, participants),
		TheoreticalMaxQuality: SolutionQuality(maxScore, participants),
	}
	if external != nil {
		overall := CombinedQuality(score, participants, external)
		info.OverallQuality = &overall
	}
	return info
}

func (q QualityInfo) String() string {
	s := fmt.Sprintf(`Solution score:                     %9d
(Perfect matching would have been:  %9d)
----------------------------------------------
Solution quality lack:               %8.6f
(Perfect matching would have been:   %8.6f)
`,
		q.SolutionScore, q.TheoreticalMaxScore, q.SolutionQuality, q.TheoreticalMaxQuality)
	if q.OverallQuality != nil {
		s += fmt.Sprintf("New overall assignment quality lack: %8.6f\n", *q.OverallQuality)
	}
	return s
}
