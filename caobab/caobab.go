// Package caobab specializes the generic branch and bound solver from bab
// for the course assignment problem.
//
// It provides the subproblem and solution types as well as the node solver
// that turns Course and Participant objects into the matrices and masks of
// the assignment problem, solves the relaxed subproblem with the hungarian
// method and checks feasibility of the resulting assignment.
package caobab

import (
	"log/slog"
	"math"
	"slices"
	"sort"

	"github.com/cdetools/cdecao/assignment"
	"github.com/cdetools/cdecao/bab"
	"github.com/cdetools/cdecao/hungarian"
)

// weightOffset is the highest edge weight in use. See the docs of
// hungarian.EdgeWeight for thoughts on the value range.
const weightOffset hungarian.EdgeWeight = 50000

// instructorScore is added to the solution score for each assigned course
// instructor who is not an instructor-only participant.
const instructorScore hungarian.Score = hungarian.Score(weightOffset)

func edgeWeight(choice assignment.Choice) hungarian.EdgeWeight {
	return weightOffset - hungarian.EdgeWeight(choice.Penalty)
}

// Solve computes an optimal assignment of participants to courses with the
// branch and bound method. rooms is an optional list of available room
// sizes; when non-nil, solutions are additionally constrained so that every
// course fits into a distinct room. It returns the optimal assignment (or
// nil if the problem has no feasible solution), its score and the solver
// statistics.
func Solve(
	courses []assignment.Course,
	participants []assignment.Participant,
	rooms []int,
	reportNoSolution bool,
	numWorkers int,
) (assignment.Assignment, bab.Score, bab.Statistics) {
	pre := precompute(courses, participants, rooms)

	solution, score, stats := bab.Solve(
		func(sub node) bab.NodeResult[node, assignment.Assignment] {
			return runNode(courses, participants, pre, sub, reportNoSolution)
		},
		node{},
		numWorkers,
	)
	if solution == nil {
		return nil, 0, stats
	}
	return *solution, score, stats
}

// precomputedProblem holds the problem definition for the hungarian method
// that can be reused for every branch and bound node.
type precomputedProblem struct {
	// adjacency matrix generated from the course choices. Each row
	// represents one (possibly dummy) participant, each column one place
	// in a course.
	adjacency *hungarian.Matrix
	// marks rows that do not represent an actual participant. They may
	// not be used to fill mandatory course places.
	dummyRow []bool
	// marks rows that are ignored in every node (instructor-only
	// participants). Extended per node by the course instructors.
	skipRowAlways []bool
	// maps each column to the index of the course the place belongs to
	courseMap []int
	// maps each course index to the column of its first place
	inverseCourseMap []int
	// room sizes in descending order, padded with zeros to the course
	// count. nil if no room check is requested.
	roomSizes []int
}

func precompute(courses []assignment.Course, participants []assignment.Participant, rooms []int) *precomputedProblem {
	// The number of extra dummy rows is the maximum number of rows that
	// may be skipped in any node: all course instructors plus all
	// participants without choices.
	skippable := make([]bool, len(participants))
	for i := range participants {
		skippable[i] = participants[i].InstructorOnly()
	}
	for _, c := range courses {
		for _, instr := range c.Instructors {
			skippable[instr] = true
		}
	}
	maxNumSkipped := 0
	for _, s := range skippable {
		if s {
			maxNumSkipped++
		}
	}
	m := 0
	for _, c := range courses {
		m += c.NumMax
	}
	n := m + maxNumSkipped

	courseMap := make([]int, m)
	inverseCourseMap := make([]int, 0, len(courses))
	k := 0
	for i, c := range courses {
		for j := 0; j < c.NumMax; j++ {
			courseMap[k+j] = i
		}
		inverseCourseMap = append(inverseCourseMap, k)
		k += c.NumMax
	}

	dummyRow := make([]bool, n)
	for i := len(participants); i < n; i++ {
		dummyRow[i] = true
	}

	skipRowAlways := make([]bool, n)
	for i := range participants {
		skipRowAlways[i] = participants[i].InstructorOnly()
	}

	adjacency := hungarian.NewMatrix(n, m)
	for x := range participants {
		for _, choice := range participants[x].Choices {
			for j := 0; j < courses[choice.CourseIndex].NumMax; j++ {
				adjacency.Set(x, inverseCourseMap[choice.CourseIndex]+j, edgeWeight(choice))
			}
		}
	}

	var roomSizes []int
	if rooms != nil {
		roomSizes = slices.Clone(rooms)
		sort.Sort(sort.Reverse(sort.IntSlice(roomSizes)))
		for len(roomSizes) < len(courses) {
			roomSizes = append(roomSizes, 0)
		}
		roomSizes = roomSizes[:len(courses)]
	}

	return &precomputedProblem{
		adjacency:        adjacency,
		dummyRow:         dummyRow,
		skipRowAlways:    skipRowAlways,
		courseMap:        courseMap,
		inverseCourseMap: inverseCourseMap,
		roomSizes:        roomSizes,
	}
}

// node is the parameter set of one subproblem of the branch and bound
// search: the constraints added on top of the relaxed base problem.
type node struct {
	// indexes of the cancelled courses in this node
	cancelled []int
	// indexes of the courses with enforced minimum participant number
	enforced []int
	// course index and new maximum attendee number of courses restricted
	// due to room conflicts. A single course may be listed multiple
	// times; the lowest bound applies. The size excludes instructors and
	// room offsets.
	shrinked [][2]int
}

// Depth orders nodes by the number of added constraints, giving the pseudo
// depth-first behaviour of the parallel search.
func (n node) Depth() int {
	return len(n.cancelled) + len(n.enforced) + len(n.shrinked)
}

func (n node) clone() node {
	return node{
		cancelled: slices.Clone(n.cancelled),
		enforced:  slices.Clone(n.enforced),
		shrinked:  slices.Clone(n.shrinked),
	}
}

// runNode solves a single subproblem. It derives the masks for this node
// (mandatory course places from enforced courses, skipped rows from course
// instructors, skipped columns from cancelled and shrinked courses), runs
// the hungarian method and transforms the matching of participants to
// course places into an assignment of participants to courses. Finally it
// checks feasibility of that assignment and branches if necessary.
func runNode(
	courses []assignment.Course,
	participants []assignment.Participant,
	pre *precomputedProblem,
	current node,
	reportNoSolution bool,
) bab.NodeResult[node, assignment.Assignment] {
	n, m := pre.adjacency.Dims()

	// Skip course instructors of non-cancelled courses.
	skipRow := slices.Clone(pre.skipRowAlways)
	for i, c := range courses {
		if !slices.Contains(current.cancelled, i) {
			for _, instr := range c.Instructors {
				skipRow[instr] = true
			}
		}
	}
	numSkipRow := 0
	for _, s := range skipRow {
		if s {
			numSkipRow++
		}
	}

	effectiveNumMax := make([]int, len(courses))
	for i, c := range courses {
		effectiveNumMax[i] = c.NumMax
	}
	for _, c := range current.cancelled {
		effectiveNumMax[c] = 0
	}
	for _, cs := range current.shrinked {
		effectiveNumMax[cs[0]] = min(effectiveNumMax[cs[0]], cs[1])
	}

	// General feasibility checks, done after counting the course
	// instructors since their number is needed here.
	enforcedPlaces := 0
	for _, c := range current.enforced {
		enforcedPlaces += courses[c].NumMin
	}
	if enforcedPlaces > len(participants)-numSkipRow {
		slog.Debug("skipping branch, too many course places are enforced")
		return bab.NoSolution[node, assignment.Assignment]()
	}
	remainingPlaces := 0
	for _, s := range effectiveNumMax {
		remainingPlaces += s
	}
	if remainingPlaces < len(participants)-numSkipRow {
		slog.Debug("skipping branch, not enough course places are left")
		return bab.NoSolution[node, assignment.Assignment]()
	}
	for x := range participants {
		p := &participants[x]
		if skipRow[x] {
			continue
		}
		allCancelled := true
		for _, choice := range p.Choices {
			if !slices.Contains(current.cancelled, choice.CourseIndex) {
				allCancelled = false
				break
			}
		}
		if allCancelled {
			slog.Debug("skipping branch, not all course choices can be fulfilled")
			if reportNoSolution {
				names := make([]string, len(current.cancelled))
				for i, c := range current.cancelled {
					names[i] = courses[c].Name
				}
				slog.Info("cannot cancel courses, a participant's choices cannot be fulfilled anymore",
					"courses", names, "participant", p.Name)
			}
			return bab.NoSolution[node, assignment.Assignment]()
		}
	}

	// Skip the last course places of cancelled and shrinked courses.
	skipCol := make([]bool, m)
	numSkipCol := 0
	for c, s := range effectiveNumMax {
		delta := courses[c].NumMax - s
		for j := 0; j < delta; j++ {
			skipCol[pre.inverseCourseMap[c]+courses[c].NumMax-1-j] = true
		}
		numSkipCol += delta
	}

	// Skip unneeded dummy rows to make the effective matrix square.
	for i := 0; i < n-m+numSkipCol-numSkipRow; i++ {
		skipRow[len(participants)+i] = true
	}

	mandatoryCol := make([]bool, m)
	for _, c := range current.enforced {
		for j := 0; j < courses[c].NumMin; j++ {
			mandatoryCol[pre.inverseCourseMap[c]+j] = true
		}
	}

	matching, score := hungarian.Solve(pre.adjacency, pre.dummyRow, mandatoryCol, skipRow, skipCol)

	// Convert the course place matching into a course assignment.
	a := make(assignment.Assignment, len(participants))
	for i := range a {
		a[i] = assignment.NotAssigned
	}
	for cp, p := range matching {
		if !skipCol[cp] && p >= 0 && p < len(a) {
			a[p] = pre.courseMap[cp]
		}
	}
	// Add the instructors of non-cancelled courses. Instructor-only
	// participants are not considered in the score; otherwise they would
	// effectively soft-enforce their course to take place.
	for c := range courses {
		if slices.Contains(current.cancelled, c) {
			continue
		}
		for _, instr := range courses[c].Instructors {
			a[instr] = c
			if !participants[instr].InstructorOnly() {
				score += instructorScore
			}
		}
	}

	if pre.roomSizes != nil {
		feasible, constraintSets := checkRoomFeasibility(courses, a, pre.roomSizes, &current)
		if !feasible {
			branches := make([]node, 0, len(constraintSets))
			for _, cs := range constraintSets {
				branch := current.clone()
				branch.shrinked = append(branch.shrinked, cs.shrink...)
				branch.cancelled = append(branch.cancelled, cs.cancel...)
				branches = append(branches, branch)
			}
			return bab.Infeasible[node, assignment.Assignment](branches, bab.Score(score))
		}
	}

	feasible, participantProblem, branchCourse := checkFeasibility(courses, participants, a, &current, skipRow)
	if !feasible {
		var branches []node
		if branchCourse >= 0 {
			// Unless the infeasibility is an unresolvable wrong
			// assignment, enforce the course in one branch.
			if !participantProblem {
				branch := current.clone()
				branch.enforced = append(branch.enforced, branchCourse)
				branches = append(branches, branch)
			}
			if !courses[branchCourse].Fixed {
				branch := current.clone()
				branch.cancelled = append(branch.cancelled, branchCourse)
				branches = append(branches, branch)
			} else if reportNoSolution {
				slog.Info("cannot cancel course, it is fixed", "course", courses[branchCourse].Name)
			}
		}
		return bab.Infeasible[node, assignment.Assignment](branches, bab.Score(score))
	}

	return bab.Feasible[node, assignment.Assignment](a, bab.Score(score))
}

// EffectiveCourseSizes returns the room size every course needs under the
// given assignment: the number of assigned participants (including
// instructors), scaled by the course's room factor and offset. Courses
// without any assigned participant need no room and report size 0.
func EffectiveCourseSizes(a assignment.Assignment, courses []assignment.Course) []int {
	sizes := make([]int, len(courses))
	for _, c := range a {
		if c != assignment.NotAssigned {
			sizes[c]++
		}
	}
	for i := range sizes {
		if sizes[i] > 0 {
			sizes[i] = int(math.Ceil(courses[i].RoomOffset + courses[i].RoomFactor*float64(sizes[i])))
		}
	}
	return sizes
}

// roomConstraintSet is one set of constraints to fix a specific room size
// violation. All its entries are meant to be applied together, on top of
// the constraints already present in the current node.
type roomConstraintSet struct {
	shrink [][2]int
	cancel []int
}

// constants for the constraint set generation heuristic, limiting the
// combinatorial range of courses considered for shrinking.
// Maximum number of selections: 17!/12!/5! = 6188.
const (
	minK    = 5
	maxNToK = 5
	maxN    = 17
)

// checkRoomFeasibility checks the assignment against the available room
// sizes. Rooms and courses are paired by size in descending order; if any
// course is larger than its room, the solution is infeasible and a list of
// alternative constraint sets is generated from the largest conflicting
// course.
//
// Checking all ways of restricting courses to the conflicting room's size
// is combinatorially impossible, so only a range of courses of similar size
// as the conflicting course is considered: every k-selection of that range
// is turned into one constraint set, while all courses smaller than the
// range are restricted unconditionally.
func checkRoomFeasibility(
	courses []assignment.Course,
	a assignment.Assignment,
	rooms []int,
	current *node,
) (bool, []roomConstraintSet) {
	type sizedCourse struct {
		course *assignment.Course
		size   int
	}
	sizes := EffectiveCourseSizes(a, courses)
	courseSize := make([]sizedCourse, len(courses))
	for i := range courses {
		courseSize[i] = sizedCourse{course: &courses[i], size: sizes[i]}
	}

	// Courses ordered by effective size in ascending order; only for
	// finding the largest conflicting course the iteration is reversed.
	sort.SliceStable(courseSize, func(i, j int) bool { return courseSize[i].size < courseSize[j].size })

	conflictingCourseIndex := -1
	for i := len(courseSize) - 1; i >= 0; i-- {
		if courseSize[i].size > rooms[len(courseSize)-1-i] {
			conflictingCourseIndex = i
			break
		}
	}
	if conflictingCourseIndex == -1 {
		return true, nil
	}

	conflictingRoomSize := rooms[len(rooms)-1-conflictingCourseIndex]
	// Index of the smallest course that is too large for the room.
	smallestConflictingCourseIndex := 0
	for i, cs := range courseSize {
		if cs.size > conflictingRoomSize {
			smallestConflictingCourseIndex = i
			break
		}
	}

	k := conflictingCourseIndex - smallestConflictingCourseIndex + 1
	var lowerBound int
	if k < minK {
		if conflictingCourseIndex+1 < minK {
			lowerBound = 0
			k = conflictingCourseIndex + 1
		} else {
			lowerBound = conflictingCourseIndex + 1 - minK
			k = minK
		}
	} else {
		lowerBound = smallestConflictingCourseIndex
	}

	upperBound := conflictingCourseIndex + 1
	if upperBound-lowerBound < maxN {
		upperBound = min(conflictingCourseIndex+maxNToK, lowerBound+maxN, len(courseSize))
	}

	slog.Debug("creating room constraint sets",
		"lower", lowerBound, "upper", upperBound, "k", k, "room_size", conflictingRoomSize)

	var alwaysCourses []*assignment.Course
	for _, cs := range courseSize {
		if cs.size <= conflictingRoomSize {
			alwaysCourses = append(alwaysCourses, cs.course)
		}
	}
	// Cannot fail, allRequired is not set.
	always, _ := createRoomConstraintSet(current, alwaysCourses, conflictingRoomSize, false)

	result := make([]roomConstraintSet, 0, binom(upperBound-lowerBound, k))
	selected := make([]*assignment.Course, k)
	sel := newKSelections(upperBound-lowerBound, k)
	for {
		index, ok := sel.next()
		if !ok {
			break
		}
		for i, idx := range index {
			selected[i] = courseSize[lowerBound+idx].course
		}
		// Only consider selections where every course can actually be
		// cancelled or shrinked.
		cs, ok := createRoomConstraintSet(current, selected, conflictingRoomSize, true)
		if !ok {
			continue
		}
		cs.shrink = append(cs.shrink, always.shrink...)
		cs.cancel = append(cs.cancel, always.cancel...)
		result = append(result, cs)
	}

	slog.Debug("created room constraint sets", "count", len(result))
	return false, result
}

// createRoomConstraintSet builds a constraint set that shrinks the given
// courses to the given room size, turning the shrink into a cancellation
// where the course's minimum size does not fit. Courses that are already
// cancelled, shrinked further, enforced or fixed are skipped; if
// allRequired is set, skipping any course invalidates the whole set.
func createRoomConstraintSet(
	current *node,
	courses []*assignment.Course,
	toSize int,
	allRequired bool,
) (roomConstraintSet, bool) {
	var result roomConstraintSet
	for _, course := range courses {
		if slices.Contains(current.cancelled, course.Index) {
			if allRequired {
				return roomConstraintSet{}, false
			}
			continue
		}
		minSize := int(math.Ceil(course.RoomOffset + course.RoomFactor*float64(course.NumMin+len(course.Instructors))))
		if toSize >= minSize {
			shrinkSize := int(math.Floor((float64(toSize)-course.RoomOffset)/course.RoomFactor)) - len(course.Instructors)
			alreadySmaller := false
			for _, cs := range current.shrinked {
				if cs[0] == course.Index && cs[1] <= shrinkSize {
					alreadySmaller = true
					break
				}
			}
			if alreadySmaller {
				if allRequired {
					return roomConstraintSet{}, false
				}
				continue
			}
			result.shrink = append(result.shrink, [2]int{course.Index, shrinkSize})
		} else {
			if slices.Contains(current.enforced, course.Index) || course.Fixed {
				if allRequired {
					return roomConstraintSet{}, false
				}
				continue
			}
			result.cancel = append(result.cancel, course.Index)
		}
	}
	return result, true
}

// checkFeasibility checks the assignment against the courses' minimum
// sizes and against wrongly assigned participants.
//
// A participant in an unchosen course makes the solution infeasible; in
// that case the smallest non-constrained course with an instructor who
// chose that course is selected for cancellation (participantProblem is
// set, and branchCourse is -1 if no such course exists, making the node a
// dead end). Otherwise, if any course has fewer attendees than its
// minimum, the course with the highest discrepancy is returned to be
// restricted in the following nodes.
func checkFeasibility(
	courses []assignment.Course,
	participants []assignment.Participant,
	a assignment.Assignment,
	current *node,
	isInstructor []bool,
) (feasible bool, participantProblem bool, branchCourse int) {
	courseSize := make([]int, len(courses))
	for p, c := range a {
		if !isInstructor[p] && c != assignment.NotAssigned {
			courseSize[c]++
		}
	}

	for p, c := range a {
		if isInstructor[p] || participants[p].InstructorOnly() {
			continue
		}
		chosen := false
		for _, choice := range participants[p].Choices {
			if choice.CourseIndex == c {
				chosen = true
				break
			}
		}
		if chosen {
			continue
		}
		// Find the smallest non-constrained course that has an
		// instructor who chose the wrongly assigned course.
		best := -1
		for rc := range courses {
			if slices.Contains(current.cancelled, rc) || slices.Contains(current.enforced, rc) {
				continue
			}
			relevant := false
			for _, instr := range courses[rc].Instructors {
				for _, choice := range participants[instr].Choices {
					if choice.CourseIndex == c {
						relevant = true
						break
					}
				}
				if relevant {
					break
				}
			}
			if relevant && (best == -1 || courseSize[rc] < courseSize[best]) {
				best = rc
			}
		}
		return false, true, best
	}

	maxDiscrepancy := 0
	branchCourse = -1
	for c, size := range courseSize {
		if slices.Contains(current.cancelled, c) || size >= courses[c].NumMin {
			continue
		}
		if d := courses[c].NumMin - size; d > maxDiscrepancy {
			maxDiscrepancy = d
			branchCourse = c
		}
	}
	return branchCourse == -1, false, branchCourse
}
