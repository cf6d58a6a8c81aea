package caobab

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdetools/cdecao/assignment"
	"github.com/cdetools/cdecao/hungarian"
)

// Idea: Course 1 or 2 must be cancelled, because otherwise there are not
// enough participants to fill all courses. Course 1 wins due to
// Participant 5's choices, so Course 2 is cancelled.
//
// ... unless there are room constraints: Course 0 needs a large room
// (offset = 10), Course 2 requires more space per participant than
// Course 1. With rooms = [15, 5], Course 1 cannot take place; with
// rooms = [15, 7], Course 1 should win.
func createSimpleProblem() ([]assignment.Participant, []assignment.Course) {
	participants := []assignment.Participant{
		{Index: 0, DBID: 0, Name: "Participant 0", Choices: assignment.ChoicesFromList([]int{1, 2})},
		{Index: 1, DBID: 1, Name: "Participant 1", Choices: assignment.ChoicesFromList([]int{0, 2})},
		{Index: 2, DBID: 2, Name: "Participant 2", Choices: assignment.ChoicesFromList([]int{0, 1})},
		{Index: 3, DBID: 3, Name: "Participant 3", Choices: assignment.ChoicesFromList([]int{0, 1})},
		{Index: 4, DBID: 4, Name: "Participant 4", Choices: assignment.ChoicesFromList([]int{0, 2})},
		{Index: 5, DBID: 5, Name: "Participant 5", Choices: assignment.ChoicesFromList([]int{1, 2})},
	}
	courses := []assignment.Course{
		{Index: 0, DBID: 0, Name: "Wanted Course 0", NumMin: 2, NumMax: 2,
			Instructors: []int{0}, RoomFactor: 1.0, RoomOffset: 10.0},
		{Index: 1, DBID: 1, Name: "Okay Course 1", NumMin: 2, NumMax: 8,
			Instructors: []int{1}, RoomFactor: 2.0},
		{Index: 2, DBID: 2, Name: "Boring Course 2", NumMin: 2, NumMax: 10,
			Instructors: []int{2}, RoomFactor: 1.5},
	}
	return participants, courses
}

// createOtherProblem is used for the assignment tests with rooms.
//
// Resulting number of choices per course:
//
//	course |  1.   2.   3.
//	---------------------
//	0      | 14    4    2
//	1      |  5    9    3
//	2      |  0    6    9
//	3      |  2    1    7
//
// Idea: With rooms 10, 7, 5, course 0 will be restricted to 10
// participants and course 2 will be cancelled. With course 2 enforced,
// course 3 must be cancelled.
func createOtherProblem() ([]assignment.Course, []assignment.Participant) {
	var courses []assignment.Course
	makeCourse := func(min, max int) {
		i := len(courses)
		courses = append(courses, assignment.Course{
			Index: i, DBID: i, Name: fmt.Sprintf("Course %d", i),
			NumMin: min, NumMax: max, RoomFactor: 1.0,
		})
	}
	makeCourse(1, 12)
	makeCourse(1, 10)
	makeCourse(1, 10)
	makeCourse(4, 10)

	var participants []assignment.Participant
	makeParts := func(num int, choices []int) {
		for i := 0; i < num; i++ {
			p := len(participants)
			participants = append(participants, assignment.Participant{
				Index: p, DBID: p, Name: fmt.Sprintf("Participant %d", p),
				Choices: assignment.ChoicesFromList(choices),
			})
		}
	}
	makeParts(6, []int{0, 1, 2})
	makeParts(3, []int{0, 1, 3})
	makeParts(2, []int{0, 2, 1})
	makeParts(2, []int{0, 2, 3})
	makeParts(1, []int{0, 3, 2})
	makeParts(1, []int{1, 0, 2})
	makeParts(2, []int{1, 0, 3})
	makeParts(2, []int{1, 2, 0})
	makeParts(1, []int{3, 0, 1})
	makeParts(1, []int{3, 0, 2})
	return courses, participants
}

func chosePenalty(p *assignment.Participant, course int) (uint32, bool) {
	for _, choice := range p.Choices {
		if choice.CourseIndex == course {
			return choice.Penalty, true
		}
	}
	return 0, false
}

// checkAssignment checks correctness of a feasible solution for the full
// branch and bound problem or a single subproblem. To test a subproblem,
// pass its node; in that case exactly the cancelled courses must have no
// assigned participants.
func checkAssignment(
	t *testing.T,
	courses []assignment.Course,
	participants []assignment.Participant,
	a assignment.Assignment,
	current *node,
) {
	t.Helper()

	courseSize := make([]int, len(courses))
	for p, c := range a {
		require.NotEqual(t, assignment.NotAssigned, c, "participant %d is not assigned", p)
		courseSize[c]++
	}

	for c, size := range courseSize {
		course := &courses[c]
		assert.LessOrEqual(t, size, course.NumMax+len(course.Instructors),
			"maximum size violation for course %d: %d places, %d assigned", c, course.NumMax, size)
		if current != nil {
			if !contains(current.cancelled, c) {
				assert.GreaterOrEqual(t, size, course.NumMin+len(course.Instructors),
					"minimum size violation for course %d: %d required, %d assigned", c, course.NumMin, size)
			} else {
				assert.Equal(t, 0, size, "cancelled course %d has %d participants", c, size)
			}
		} else {
			assert.True(t, size == 0 || size >= course.NumMin+len(course.Instructors),
				"minimum size violation for course %d: %d required, %d assigned", c, course.NumMin, size)
		}
	}
	if current != nil {
		for _, cs := range current.shrinked {
			course := &courses[cs[0]]
			assert.LessOrEqual(t, courseSize[cs[0]], cs[1]+len(course.Instructors),
				"dynamic size constraint for course %d not satisfied: %d > %d",
				cs[0], courseSize[cs[0]], cs[1])
		}
	}

	isInstructor := make([]bool, len(participants))
	for c, course := range courses {
		if courseSize[c] == 0 {
			continue
		}
		for _, instr := range course.Instructors {
			assert.Equal(t, c, a[instr],
				"instructor %d of course %d is assigned to %d", instr, c, a[instr])
			isInstructor[instr] = true
		}
	}

	for p := range participants {
		if isInstructor[p] {
			continue
		}
		_, chosen := chosePenalty(&participants[p], a[p])
		assert.True(t, chosen,
			"course %d of participant %d is none of their choices", a[p], p)
	}
}

func contains(list []int, x int) bool {
	for _, v := range list {
		if v == x {
			return true
		}
	}
	return false
}

func TestPrecomputeProblem(t *testing.T) {
	participants, courses := createSimpleProblem()

	pre := precompute(courses, participants, []int{8, 10})

	m := 0
	for _, c := range courses {
		m += c.NumMax
	}
	numInstructors := 0
	for _, c := range courses {
		numInstructors += len(c.Instructors)
	}
	n := m + numInstructors
	rows, cols := pre.adjacency.Dims()
	assert.Equal(t, n, rows)
	assert.Equal(t, m, cols)
	assert.Len(t, pre.dummyRow, n)
	assert.Len(t, pre.courseMap, m)
	assert.Len(t, pre.inverseCourseMap, len(courses))

	for i, c := range courses {
		base := pre.inverseCourseMap[i]
		for j := 0; j < c.NumMax; j++ {
			assert.Equal(t, i, pre.courseMap[base+j],
				"column %d should be mapped to course %d, as it is within %d columns after %d",
				base+j, i, c.NumMax, base)
		}
	}

	for x := range participants {
		for y := 0; y < m; y++ {
			var expected hungarian.EdgeWeight
			if penalty, ok := chosePenalty(&participants[x], pre.courseMap[y]); ok {
				expected = weightOffset - hungarian.EdgeWeight(penalty)
			}
			assert.Equal(t, expected, pre.adjacency.At(x, y),
				"unexpected edge weight for participant %d with course place %d", x, y)
		}
	}
	for x := len(participants); x < n; x++ {
		for y := 0; y < m; y++ {
			assert.Zero(t, pre.adjacency.At(x, y),
				"edge weight for dummy participant %d with course place %d is not zero", x, y)
		}
	}

	for x := range participants {
		assert.False(t, pre.dummyRow[x])
	}
	for x := len(participants); x < n; x++ {
		assert.True(t, pre.dummyRow[x])
	}

	assert.Equal(t, []int{10, 8, 0}, pre.roomSizes)

	// A second try, without rooms given
	pre = precompute(courses, participants, nil)
	assert.Nil(t, pre.roomSizes)
}

func TestNodeDepth(t *testing.T) {
	node0 := node{}
	node1 := node{cancelled: []int{0}}
	node2 := node{enforced: []int{2}}
	node3 := node{cancelled: []int{1, 2}}
	node4 := node{enforced: []int{0, 1, 2}}
	node5 := node{cancelled: []int{0, 1}, enforced: []int{0, 1}}
	node6 := node{enforced: []int{0, 1, 2}, shrinked: [][2]int{{0, 10}, {1, 20}}}
	node7 := node{cancelled: []int{0, 1}, enforced: []int{0}, shrinked: [][2]int{{0, 10}, {1, 20}, {0, 8}}}

	assert.Less(t, node0.Depth(), node1.Depth())
	assert.Less(t, node0.Depth(), node2.Depth())
	assert.Less(t, node1.Depth(), node3.Depth())
	assert.Less(t, node2.Depth(), node3.Depth())
	assert.Less(t, node2.Depth(), node4.Depth())
	assert.Less(t, node4.Depth(), node5.Depth())
	assert.Less(t, node4.Depth(), node6.Depth())
	assert.Less(t, node5.Depth(), node6.Depth())
	assert.Less(t, node5.Depth(), node7.Depth())
	assert.Less(t, node6.Depth(), node7.Depth())
}

func TestCheckFeasibility(t *testing.T) {
	participants, courses := createSimpleProblem()

	// A feasible assignment
	a := assignment.Assignment{0, 1, 1, 0, 0, 1}
	isInstructor := []bool{true, true, false, false, false, false}
	current := node{cancelled: []int{2}}
	feasible, participantProblem, branchCourse := checkFeasibility(courses, participants, a, &current, isInstructor)
	assert.True(t, feasible)
	assert.False(t, participantProblem)
	assert.Equal(t, -1, branchCourse)

	// Courses 1 and 2 have too few participants. Course 2 lacks more
	// than course 1.
	a = assignment.Assignment{0, 1, 2, 0, 0, 1}
	isInstructor = []bool{true, true, true, false, false, false}
	current = node{}
	feasible, participantProblem, branchCourse = checkFeasibility(courses, participants, a, &current, isInstructor)
	assert.False(t, feasible)
	assert.False(t, participantProblem)
	assert.Equal(t, 2, branchCourse)

	// Participant 4 has been assigned to the wrong course 1. Course 2
	// should be cancelled to fill course 1 with its instructor.
	a = assignment.Assignment{0, 1, 2, 0, 1, 0}
	isInstructor = []bool{true, true, true, false, false, false}
	current = node{enforced: []int{0}}
	feasible, participantProblem, branchCourse = checkFeasibility(courses, participants, a, &current, isInstructor)
	assert.False(t, feasible)
	assert.True(t, participantProblem)
	assert.Equal(t, 2, branchCourse)
}

func TestRunNodeSimple(t *testing.T) {
	// This test depends on precompute(), checkFeasibility() and
	// hungarian.Solve(), so if it fails, check their test results first.
	participants, courses := createSimpleProblem()
	pre := precompute(courses, participants, nil)

	// Let's get a feasible solution
	current := node{cancelled: []int{1}}
	result := runNode(courses, participants, pre, current, false)
	a, score, ok := result.Solution()
	require.True(t, ok, "expected feasible result")
	checkAssignment(t, courses, participants, a, &current)
	assert.Greater(t, uint32(score), uint32(len(participants))*(uint32(weightOffset)-1))

	// This should also work out
	current = node{cancelled: []int{2}, enforced: []int{1}}
	result = runNode(courses, participants, pre, current, false)
	a, score, ok = result.Solution()
	require.True(t, ok, "expected feasible result")
	checkAssignment(t, courses, participants, a, &current)
	assert.Greater(t, uint32(score), uint32(len(participants))*(uint32(weightOffset)-1))

	// This way, we should not get any solution
	current = node{cancelled: []int{1, 2}}
	result = runNode(courses, participants, pre, current, false)
	assert.True(t, result.IsNoSolution(), "expected no result")

	// This should give an infeasible solution (too few participants in
	// courses 1 and 2)
	current = node{}
	result = runNode(courses, participants, pre, current, false)
	_, _, ok = result.Branches()
	assert.True(t, ok, "expected infeasible result")
}

func TestRunNodeLarge(t *testing.T) {
	const (
		numCourses          = 20
		maxPlacesPerCourse  = 10
		minPlacesPerCourse  = 6
		numParticipants     = 200
		numChoicesPerPerson = 3
	)

	courses := make([]assignment.Course, numCourses)
	for c := range courses {
		courses[c] = assignment.Course{
			Index: c, DBID: c, Name: fmt.Sprintf("Course %d", c),
			NumMin: minPlacesPerCourse, NumMax: maxPlacesPerCourse, RoomFactor: 1.0,
		}
	}
	participants := make([]assignment.Participant, numParticipants)
	for p := range participants {
		choices := make([]int, numChoicesPerPerson)
		for i := range choices {
			choices[i] = (p + i) % numCourses
		}
		participants[p] = assignment.Participant{
			Index: p, DBID: p, Name: fmt.Sprintf("Participant %d", p),
			Choices: assignment.ChoicesFromList(choices),
		}
		if p < numCourses {
			if p == 0 {
				courses[numCourses-1].Instructors = append(courses[numCourses-1].Instructors, p)
			} else {
				courses[p-1].Instructors = append(courses[p-1].Instructors, p)
			}
		}
	}

	pre := precompute(courses, participants, nil)
	current := node{}
	result := runNode(courses, participants, pre, current, false)
	a, score, ok := result.Solution()
	require.True(t, ok, "expected feasible result")
	checkAssignment(t, courses, participants, a, &current)
	assert.Greater(t, uint32(score), uint32(len(participants))*(uint32(weightOffset)-1))
}

func TestSolveSimple(t *testing.T) {
	participants, courses := createSimpleProblem()

	result, score, _ := Solve(courses, participants, nil, false, 0)

	require.NotNil(t, result, "expected to get a result")
	checkAssignment(t, courses, participants, result, nil)
	assert.Greater(t, uint32(score), uint32(len(participants))*(uint32(weightOffset)-1))
	assert.Less(t, uint32(score), uint32(len(participants))*uint32(weightOffset))
	assert.True(t,
		equalAssignment(result, []int{0, 1, 0, 1, 0, 1}) || equalAssignment(result, []int{0, 1, 1, 0, 0, 1}),
		"unexpected assignment: %v", result)
}

func equalAssignment(a assignment.Assignment, expected []int) bool {
	if len(a) != len(expected) {
		return false
	}
	for i := range a {
		if a[i] != expected[i] {
			return false
		}
	}
	return true
}

func courseSizes(a assignment.Assignment, numCourses int) []int {
	sizes := make([]int, numCourses)
	for _, c := range a {
		if c != assignment.NotAssigned {
			sizes[c]++
		}
	}
	return sizes
}

func TestSolveRooms(t *testing.T) {
	courses, participants := createOtherProblem()
	require.NoError(t, assignment.CheckConsistency(participants, courses))
	rooms := []int{10, 5, 8}

	result, score, stats := Solve(courses, participants, rooms, false, 0)

	require.NotNil(t, result, "expected to get a result")
	checkAssignment(t, courses, participants, result, nil)
	assert.Greater(t, uint32(score), uint32(len(participants))*(uint32(weightOffset)-2))
	assert.Less(t, uint32(score), uint32(len(participants))*uint32(weightOffset))

	// We expect
	//  * course 0 shrinked to 10 participants
	//  * course 1 having 7 participants
	//  * course 2 cancelled
	//  * course 3 forced to 4 participants
	assert.Equal(t, []int{10, 7, 0, 4}, courseSizes(result, len(courses)))

	// This solution should require at least three infeasible nodes
	assert.GreaterOrEqual(t, stats.NumInfeasible, uint64(3))
}

func TestSolveRoomsFixedCourse(t *testing.T) {
	courses, participants := createOtherProblem()
	courses[2].Fixed = true
	require.NoError(t, assignment.CheckConsistency(participants, courses))
	rooms := []int{10, 5, 8}

	result, score, _ := Solve(courses, participants, rooms, false, 0)

	require.NotNil(t, result, "expected to get a result")
	checkAssignment(t, courses, participants, result, nil)
	assert.Greater(t, uint32(score), uint32(len(participants))*(uint32(weightOffset)-2))
	assert.Less(t, uint32(score), uint32(len(participants))*uint32(weightOffset))

	sizes := courseSizes(result, len(courses))
	assert.Equal(t, 0, sizes[3])
	assert.GreaterOrEqual(t, sizes[2], 1)
}

func TestSolveFixedCourse(t *testing.T) {
	courses, participants := createOtherProblem()
	courses[2].Fixed = true
	courses[2].NumMin = 5
	require.NoError(t, assignment.CheckConsistency(participants, courses))

	result, score, _ := Solve(courses, participants, nil, false, 0)

	require.NotNil(t, result, "expected to get a result")
	checkAssignment(t, courses, participants, result, nil)
	assert.Greater(t, uint32(score), uint32(len(participants))*(uint32(weightOffset)-2))
	assert.Less(t, uint32(score), uint32(len(participants))*uint32(weightOffset))

	sizes := courseSizes(result, len(courses))
	assert.Equal(t, 0, sizes[3])
	assert.GreaterOrEqual(t, sizes[2], 4)
}

func TestSolveRoomsScaling(t *testing.T) {
	participants, courses := createSimpleProblem()
	require.NoError(t, assignment.CheckConsistency(participants, courses))

	for _, tc := range []struct {
		rooms             []int
		expectedCancelled []bool
	}{
		{[]int{15, 5}, []bool{false, true, false}},
		{[]int{15, 7}, []bool{false, false, true}},
		{[]int{10, 5}, []bool{true, false, false}},
	} {
		result, score, _ := Solve(courses, participants, tc.rooms, false, 0)
		require.NotNil(t, result, "expected to get a result for rooms=%v", tc.rooms)
		checkAssignment(t, courses, participants, result, nil)
		assert.Greater(t, uint32(score), uint32(len(participants))*(uint32(weightOffset)-2))
		assert.Less(t, uint32(score), uint32(len(participants))*uint32(weightOffset))

		for i, size := range courseSizes(result, len(courses)) {
			if tc.expectedCancelled[i] {
				assert.Equal(t, 0, size, "course %d should be cancelled with rooms=%v", i, tc.rooms)
			} else {
				assert.GreaterOrEqual(t, size, 1, "course %d should take place with rooms=%v", i, tc.rooms)
			}
		}
	}

	for _, rooms := range [][]int{{5, 5}, {5}} {
		result, _, _ := Solve(courses, participants, rooms, false, 0)
		assert.Nil(t, result, "no result expected for rooms=%v, assignment is %v", rooms, result)
	}
}
