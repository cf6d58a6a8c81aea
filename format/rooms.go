package format

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/cdetools/cdecao/assignment"
	"github.com/cdetools/cdecao/caobab"
)

// RoomKind is one named kind of course room in the rooms JSON file.
// Multiple room kinds with the same capacity are allowed.
type RoomKind struct {
	// Name of this kind of course room
	Name string `json:"name"`
	// Capacity of a single room of this kind as number of course
	// participants
	Capacity int `json:"capacity"`
	// Number of available rooms of this kind
	Quantity int `json:"quantity"`
}

// ReadRooms reads the available course rooms from a JSON-serialized list
// of room kinds. It returns the flat list of room sizes in descending
// order and the room kinds, likewise sorted by capacity.
func ReadRooms(r io.Reader) ([]int, []RoomKind, error) {
	var kinds []RoomKind
	if err := json.NewDecoder(r).Decode(&kinds); err != nil {
		return nil, nil, err
	}
	sort.SliceStable(kinds, func(i, j int) bool { return kinds[i].Capacity > kinds[j].Capacity })
	var rooms []int
	for _, kind := range kinds {
		for i := 0; i < kind.Quantity; i++ {
			rooms = append(rooms, kind.Capacity)
		}
	}
	return rooms, kinds, nil
}

// RoomKindNames returns a human-readable list of possible course room kind
// names in the form "room kind 1, room kind 2" for each course.
func RoomKindNames(a assignment.Assignment, courses []assignment.Course, kinds []RoomKind) []string {
	var rooms []int
	for _, kind := range kinds {
		for i := 0; i < kind.Quantity; i++ {
			rooms = append(rooms, kind.Capacity)
		}
	}
	courseRooms := possibleCourseRoomSizes(a, courses, rooms)
	result := make([]string, len(courseRooms))
	for i, sizes := range courseRooms {
		var names []string
		for _, size := range sizes {
			for _, kind := range kinds {
				if kind.Capacity == size {
					names = append(names, kind.Name)
				}
			}
		}
		result[i] = strings.Join(names, ", ")
	}
	return result
}

// RoomSizeLists returns a human-readable list of possible course room
// sizes in the form "15, 12, 10" for each course.
func RoomSizeLists(a assignment.Assignment, courses []assignment.Course, rooms []int) []string {
	courseRooms := possibleCourseRoomSizes(a, courses, rooms)
	result := make([]string, len(courseRooms))
	for i, sizes := range courseRooms {
		strs := make([]string, len(sizes))
		for j, size := range sizes {
			strs[j] = strconv.Itoa(size)
		}
		result[i] = strings.Join(strs, ", ")
	}
	return result
}

// possibleCourseRoomSizes returns the possible room sizes for each course
// in descending order. The assignment is assumed to be valid, so a
// matching room exists for every course.
func possibleCourseRoomSizes(a assignment.Assignment, courses []assignment.Course, rooms []int) [][]int {
	sizes := caobab.EffectiveCourseSizes(a, courses)
	order := make([]int, len(courses))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return sizes[order[i]] > sizes[order[j]] })
	sortedRooms := append([]int(nil), rooms...)
	sort.Sort(sort.Reverse(sort.IntSlice(sortedRooms)))

	num := len(courses)
	possible := make([][]int, num)
	for i := 0; i < num; i++ {
		for j := i; j < len(sortedRooms); j++ {
			if sortedRooms[j] < sizes[order[i]] {
				break
			}
			possible[i] = append(possible[i], sortedRooms[j])
			if j < num {
				possible[j] = append(possible[j], sortedRooms[i])
			}
		}
	}

	result := make([][]int, num)
	for i, course := range order {
		// The insertion order above keeps each course's room list
		// monotonically decreasing, so removing adjacent duplicates is
		// sufficient.
		var deduped []int
		for _, size := range possible[i] {
			if len(deduped) == 0 || deduped[len(deduped)-1] != size {
				deduped = append(deduped, size)
			}
		}
		result[course] = deduped
	}
	return result
}
