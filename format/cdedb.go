// Package format reads and writes the file formats understood by the
// optimizer: the CdE Datenbank partial export/import format, the simple
// JSON representation of courses, participants and assignments, and the
// course rooms file.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cdetools/cdecao/assignment"
)

// Supported EVENT_SCHEMA_VERSION range of CdE Datenbank partial exports and
// the version written to result files.
var (
	minimumExportVersion = [2]uint64{7, 0}
	maximumExportVersion = [2]uint64{16, math.MaxUint64}
	outputExportVersion  = [2]uint64{16, 0}
)

// defaultNumMax is assumed as maximum course size when a course has no
// max_size in the export.
const defaultNumMax = 25

// ImportAmbience carries the CdEDB ids required to write a result file
// that can be imported back into the same event.
type ImportAmbience struct {
	EventID uint64
	TrackID uint64
}

// registration status code of actual event participants
const statusParticipant = 2

type cdedbExport struct {
	Kind          string                       `json:"kind"`
	ID            *uint64                      `json:"id"`
	SchemaVersion json.RawMessage              `json:"EVENT_SCHEMA_VERSION"`
	LegacyVersion json.RawMessage              `json:"CDEDB_EXPORT_EVENT_VERSION"`
	Event         *cdedbEvent                  `json:"event"`
	Courses       map[string]cdedbCourse       `json:"courses"`
	Registrations map[string]cdedbRegistration `json:"registrations"`
}

type cdedbEvent struct {
	Parts map[string]cdedbPart `json:"parts"`
}

type cdedbPart struct {
	Tracks map[string]cdedbTrack `json:"tracks"`
}

type cdedbTrack struct {
	Title   *string `json:"title"`
	SortKey *int64  `json:"sortkey"`
}

type cdedbCourse struct {
	Segments  map[string]bool `json:"segments"`
	Nr        *string         `json:"nr"`
	Shortname *string         `json:"shortname"`
	MinSize   *int            `json:"min_size"`
	MaxSize   *int            `json:"max_size"`
	Fields    map[string]any  `json:"fields"`
}

type cdedbRegistration struct {
	Parts   map[string]cdedbRegistrationPart  `json:"parts"`
	Tracks  map[string]cdedbRegistrationTrack `json:"tracks"`
	Persona *cdedbPersona                     `json:"persona"`
}

type cdedbRegistrationPart struct {
	Status *int `json:"status"`
}

type cdedbRegistrationTrack struct {
	CourseID         *uint64  `json:"course_id"`
	CourseInstructor *uint64  `json:"course_instructor"`
	Choices          []uint64 `json:"choices"`
}

type cdedbPersona struct {
	GivenNames *string `json:"given_names"`
	FamilyName *string `json:"family_name"`
}

// ReadCdEDB reads course and participant data from a JSON partial event
// export of the CdE Datenbank.
//
// If the event has multiple course tracks, the CdEDB id of the relevant
// track must be given; with a single track, track may be 0 to select it
// automatically. Only registrations with status Participant in the part of
// the selected track are considered. Existing course assignments and
// cancelled course segments are ignored unless ignoreCancelled or
// ignoreAssigned request otherwise; they will be overridden by importing
// the result file into the CdE Datenbank.
//
// Minimum and maximum course sizes follow the CdEDB convention of
// counting attendees excluding instructors. Courses without a maximum
// size get 25 assumed.
//
// roomFactorField and roomOffsetField optionally name custom CdEDB course
// fields holding the room size factor and offset of each course.
func ReadCdEDB(
	r io.Reader,
	track uint64,
	ignoreCancelled bool,
	ignoreAssigned bool,
	roomFactorField string,
	roomOffsetField string,
) ([]assignment.Participant, []assignment.Course, ImportAmbience, error) {
	var data cdedbExport
	dec := json.NewDecoder(r)
	if err := dec.Decode(&data); err != nil {
		return nil, nil, ImportAmbience{}, err
	}
	if err := checkExportTypeAndVersion(&data); err != nil {
		return nil, nil, ImportAmbience{}, err
	}

	if data.Event == nil || data.Event.Parts == nil {
		return nil, nil, ImportAmbience{}, fmt.Errorf("no 'event' object with 'parts' found in data")
	}
	partID, trackID, err := findTrack(data.Event.Parts, track)
	if err != nil {
		return nil, nil, ImportAmbience{}, err
	}

	if data.Courses == nil {
		return nil, nil, ImportAmbience{}, fmt.Errorf("no 'courses' object found in data")
	}
	type sortedCourse struct {
		sortKey string
		course  assignment.Course
	}
	var courseList []sortedCourse
	var skippedCourseIDs []uint64
	courseKeys := make([]string, 0, len(data.Courses))
	for k := range data.Courses {
		courseKeys = append(courseKeys, k)
	}
	sort.Strings(courseKeys)
	for _, courseKey := range courseKeys {
		courseData := data.Courses[courseKey]
		courseID, err := strconv.ParseUint(courseKey, 10, 64)
		if err != nil {
			return nil, nil, ImportAmbience{}, fmt.Errorf("invalid course id %q: %w", courseKey, err)
		}
		name, status, numMin, numMax, sortKey, err := parseCourseBaseData(courseID, &courseData, trackID)
		if err != nil {
			return nil, nil, ImportAmbience{}, err
		}
		if status == courseNotOffered || (status == courseCancelled && ignoreCancelled) {
			skippedCourseIDs = append(skippedCourseIDs, courseID)
			continue
		}
		roomFactor, roomOffset, err := extractRoomFactorFields(&courseData, name, roomFactorField, roomOffsetField)
		if err != nil {
			return nil, nil, ImportAmbience{}, err
		}
		courseList = append(courseList, sortedCourse{
			sortKey: sortKey,
			course: assignment.Course{
				DBID:       int(courseID),
				Name:       name,
				NumMin:     numMin,
				NumMax:     numMax,
				RoomFactor: roomFactor,
				RoomOffset: roomOffset,
			},
		})
	}

	sort.SliceStable(courseList, func(i, j int) bool { return courseList[i].sortKey < courseList[j].sortKey })
	courses := make([]assignment.Course, len(courseList))
	for i := range courseList {
		courses[i] = courseList[i].course
		courses[i].Index = i
	}

	// Number of (invisible) instructors and attendees already assigned to
	// each course, only filled when ignoreAssigned is set.
	invisibleInstructors := make([]int, len(courses))
	invisibleAttendees := make([]int, len(courses))
	courseIndexByID := make(map[uint64]int, len(courses)+len(skippedCourseIDs))
	for _, c := range courses {
		courseIndexByID[uint64(c.DBID)] = c.Index
	}
	for _, id := range skippedCourseIDs {
		courseIndexByID[id] = skippedCourse
	}

	if data.Registrations == nil {
		return nil, nil, ImportAmbience{}, fmt.Errorf("no 'registrations' object found in data")
	}
	regKeys := make([]string, 0, len(data.Registrations))
	for k := range data.Registrations {
		regKeys = append(regKeys, k)
	}
	sort.Strings(regKeys)

	var participants []assignment.Participant
	for _, regKey := range regKeys {
		regData := data.Registrations[regKey]
		regID, err := strconv.ParseUint(regKey, 10, 64)
		if err != nil {
			return nil, nil, ImportAmbience{}, fmt.Errorf("invalid registration id %q: %w", regKey, err)
		}
		state, name, err := extractParticipantBaseData(regID, &regData, partID)
		if err != nil {
			return nil, nil, ImportAmbience{}, err
		}
		if state != statusParticipant {
			continue
		}

		assignedCourse, instructedCourse, choices, err := parseParticipantCourseData(
			fmt.Sprintf("%s (id=%d)", name, regID), &regData, trackID, courseIndexByID)
		if err != nil {
			return nil, nil, ImportAmbience{}, err
		}

		if ignoreAssigned && assignedCourse != noCourse {
			if instructedCourse == assignedCourse {
				invisibleInstructors[assignedCourse]++
			} else {
				invisibleAttendees[assignedCourse]++
			}
			courses[assignedCourse].HiddenParticipantNames = append(
				courses[assignedCourse].HiddenParticipantNames, name)
			continue
		}

		if len(choices) == 0 && instructedCourse == noCourse {
			slog.Warn("ignoring participant without valid course choices", "participant", name)
			continue
		}

		index := len(participants)
		if instructedCourse != noCourse {
			courses[instructedCourse].Instructors = append(courses[instructedCourse].Instructors, index)
		}
		participants = append(participants, assignment.Participant{
			Index:   index,
			DBID:    int(regID),
			Name:    name,
			Choices: choices,
		})
	}

	for i := range courses {
		adaptCourseForInvisibleParticipants(&courses[i], invisibleInstructors[i], invisibleAttendees[i])
	}

	if data.ID == nil {
		return nil, nil, ImportAmbience{}, fmt.Errorf("no event 'id' found in data")
	}
	return participants, courses, ImportAmbience{EventID: *data.ID, TrackID: trackID}, nil
}

// checkExportTypeAndVersion verifies the export kind ("partial") and that
// the schema version is within the supported range.
func checkExportTypeAndVersion(data *cdedbExport) error {
	if data.Kind == "" {
		return fmt.Errorf("no 'kind' field found in data; is this a correct CdEDB export file?")
	}
	if data.Kind != "partial" {
		return fmt.Errorf("the given JSON file is no 'Partial Export' of the CdE Datenbank")
	}
	var version [2]uint64
	switch {
	case data.SchemaVersion != nil:
		var v []uint64
		if err := json.Unmarshal(data.SchemaVersion, &v); err != nil || len(v) != 2 {
			return fmt.Errorf("'EVENT_SCHEMA_VERSION' is not an array of 2 integers")
		}
		version = [2]uint64{v[0], v[1]}
	case data.LegacyVersion != nil:
		// Old export schema version field.
		var v uint64
		if err := json.Unmarshal(data.LegacyVersion, &v); err != nil {
			return fmt.Errorf("'CDEDB_EXPORT_EVENT_VERSION' is not an integer value")
		}
		version = [2]uint64{v, 0}
	default:
		return fmt.Errorf("no 'EVENT_SCHEMA_VERSION' field found in data; is this a correct CdEDB export file?")
	}
	if versionLess(version, minimumExportVersion) || versionLess(maximumExportVersion, version) {
		return fmt.Errorf(
			"the given CdE Datenbank export is not within the supported version range [%d.%d,%d.%d]",
			minimumExportVersion[0], minimumExportVersion[1],
			maximumExportVersion[0], maximumExportVersion[1])
	}
	return nil
}

func versionLess(a, b [2]uint64) bool {
	return a[0] < b[0] || (a[0] == b[0] && a[1] < b[1])
}

type courseStatus int

const (
	courseNotOffered courseStatus = iota
	courseCancelled
	courseTakesPlace
)

// sentinel course index values for parseParticipantCourseData results
const (
	noCourse      = -1
	skippedCourse = -2
)

// parseCourseBaseData extracts name, status and sizes of one course. The
// course name is composed from the course number and short name for stdout
// output and error messages; the sort key orders courses by their number.
// numMin and numMax follow the CdEDB convention of counting attendees
// excluding instructors.
func parseCourseBaseData(courseID uint64, courseData *cdedbCourse, trackID uint64) (
	name string, status courseStatus, numMin, numMax int, sortKey string, err error) {
	if courseData.Segments == nil {
		return "", 0, 0, 0, "", fmt.Errorf("no 'segments' object found for course %d", courseID)
	}
	if active, ok := courseData.Segments[strconv.FormatUint(trackID, 10)]; !ok {
		status = courseNotOffered
	} else if active {
		status = courseTakesPlace
	} else {
		status = courseCancelled
	}

	if courseData.Nr == nil {
		return "", 0, 0, 0, "", fmt.Errorf("no 'nr' found for course %d", courseID)
	}
	if courseData.Shortname == nil {
		return "", 0, 0, 0, "", fmt.Errorf("no 'shortname' found for course %d", courseID)
	}
	name = fmt.Sprintf("%s. %s", *courseData.Nr, *courseData.Shortname)
	sortKey = fmt.Sprintf("%10s", *courseData.Nr)

	numMax = defaultNumMax
	if courseData.MaxSize != nil {
		numMax = *courseData.MaxSize
	}
	if courseData.MinSize != nil {
		numMin = *courseData.MinSize
	}
	if numMax < numMin {
		return "", 0, 0, 0, "", fmt.Errorf("min participants > max participants for course '%s'", name)
	}
	return name, status, numMin, numMax, sortKey, nil
}

// extractRoomFactorFields reads the room size factor and offset from the
// named custom course fields. A value defaults (1.0 resp. 0.0) when no
// field name is given, the field is missing or it holds a non-numeric
// value.
func extractRoomFactorFields(courseData *cdedbCourse, courseName, factorField, offsetField string) (factor, offset float64, err error) {
	if courseData.Fields == nil {
		return 0, 0, fmt.Errorf("no 'fields' found for course %s", courseName)
	}
	factor = 1.0
	if factorField != "" {
		if v, ok := courseData.Fields[factorField].(float64); ok {
			factor = v
		} else {
			slog.Warn("no numeric room_factor field found in course, using the default value 1.0",
				"field", factorField, "course", courseName)
		}
	}
	if offsetField != "" {
		if v, ok := courseData.Fields[offsetField].(float64); ok {
			offset = v
		} else {
			slog.Warn("no numeric room_offset field found in course, using the default value 0.0",
				"field", offsetField, "course", courseName)
		}
	}
	return factor, offset, nil
}

// extractParticipantBaseData extracts the participation status (for the
// given event part) and the display name of one registration. The name is
// composed from given names and family name; the fancy first name
// selection logic of the CdEDB is not replicated here.
func extractParticipantBaseData(regID uint64, regData *cdedbRegistration, partID uint64) (status int, name string, err error) {
	if regData.Parts == nil {
		return 0, "", fmt.Errorf("no 'parts' found in registration %d", regID)
	}
	if part, ok := regData.Parts[strconv.FormatUint(partID, 10)]; ok {
		if part.Status == nil {
			return 0, "", fmt.Errorf("missing 'status' in registration part record of registration %d", regID)
		}
		status = *part.Status
	}
	if regData.Persona == nil {
		return 0, "", fmt.Errorf("missing 'persona' in registration %d", regID)
	}
	if regData.Persona.GivenNames == nil {
		return 0, "", fmt.Errorf("no 'given_names' found for registration %d", regID)
	}
	if regData.Persona.FamilyName == nil {
		return 0, "", fmt.Errorf("no 'family_name' found for registration %d", regID)
	}
	return status, fmt.Sprintf("%s %s", *regData.Persona.GivenNames, *regData.Persona.FamilyName), nil
}

// parseParticipantCourseData extracts the assigned course, instructed
// course and course choices of one registration. Courses are referenced by
// index according to courseIndexByID; assigned and instructed course are
// noCourse if no course is assigned/instructed or the course is skipped.
// Choices of skipped courses are dropped silently.
func parseParticipantCourseData(
	registrationName string,
	regData *cdedbRegistration,
	trackID uint64,
	courseIndexByID map[uint64]int,
) (assignedCourse, instructedCourse int, choices []assignment.Choice, err error) {
	if regData.Tracks == nil {
		return 0, 0, nil, fmt.Errorf("no 'tracks' found in registration %s", registrationName)
	}
	trackData, ok := regData.Tracks[strconv.FormatUint(trackID, 10)]
	if !ok {
		return 0, 0, nil, fmt.Errorf("registration track data not present for registration %s", registrationName)
	}

	assignedCourse = noCourse
	if trackData.CourseID != nil {
		index, ok := courseIndexByID[*trackData.CourseID]
		if !ok {
			return 0, 0, nil, fmt.Errorf("assigned course %d of registration %s does not exist",
				*trackData.CourseID, registrationName)
		}
		if index != skippedCourse {
			assignedCourse = index
		}
	}
	instructedCourse = noCourse
	if trackData.CourseInstructor != nil {
		index, ok := courseIndexByID[*trackData.CourseInstructor]
		if !ok {
			return 0, 0, nil, fmt.Errorf("instructed course %d of registration %s does not exist",
				*trackData.CourseInstructor, registrationName)
		}
		if index != skippedCourse {
			instructedCourse = index
		}
	}

	if trackData.Choices == nil {
		return 0, 0, nil, fmt.Errorf("no 'choices' found in registration track data of %s", registrationName)
	}
	for i, courseID := range trackData.Choices {
		index, ok := courseIndexByID[courseID]
		if !ok {
			return 0, 0, nil, fmt.Errorf("course choice %d of registration %s does not exist",
				courseID, registrationName)
		}
		if index != skippedCourse {
			choices = append(choices, assignment.Choice{CourseIndex: index, Penalty: uint32(i)})
		}
	}
	if len(choices) == 0 && len(trackData.Choices) > 0 {
		slog.Info("participant only chose cancelled courses", "participant", registrationName)
	}
	return assignedCourse, instructedCourse, choices, nil
}

// adaptCourseForInvisibleParticipants adjusts a course to incorporate the
// participants that are fix-assigned to it and thus ignored by the
// optimization. They appear neither in the participant list nor in the
// exported result, so the course must save them a place: the min and max
// sizes shrink by the number of invisible attendees, the room offset grows
// by all invisible participants and the course becomes fixed.
func adaptCourseForInvisibleParticipants(course *assignment.Course, invisibleInstructors, invisibleAttendees int) {
	course.NumMin = max(course.NumMin-invisibleAttendees, 0)
	course.NumMax = max(course.NumMax-invisibleAttendees, 0)
	total := invisibleInstructors + invisibleAttendees
	course.Fixed = course.Fixed || total != 0
	course.RoomOffset += float64(total) * course.RoomFactor
}

// WriteCdEDB writes the calculated course assignment as a CdE Datenbank
// partial import JSON document. Only assigned participants are written;
// courses without attendees get their track segment cancelled (unless they
// are fixed).
func WriteCdEDB(
	w io.Writer,
	a assignment.Assignment,
	participants []assignment.Participant,
	courses []assignment.Course,
	ambience ImportAmbience,
) error {
	courseSize := make([]int, len(courses))
	for _, c := range a {
		if c != assignment.NotAssigned {
			courseSize[c]++
		}
	}
	trackKey := strconv.FormatUint(ambience.TrackID, 10)

	registrations := make(map[string]any, len(participants))
	for p, c := range a {
		if c == assignment.NotAssigned {
			continue
		}
		registrations[strconv.Itoa(participants[p].DBID)] = map[string]any{
			"tracks": map[string]any{
				trackKey: map[string]any{"course_id": courses[c].DBID},
			},
		}
	}

	coursesJSON := make(map[string]any, len(courses))
	for c, size := range courseSize {
		coursesJSON[strconv.Itoa(courses[c].DBID)] = map[string]any{
			"segments": map[string]any{
				trackKey: size > 0 || courses[c].Fixed,
			},
		}
	}

	doc := map[string]any{
		"EVENT_SCHEMA_VERSION": outputExportVersion,
		"kind":                 "partial",
		"id":                   ambience.EventID,
		"timestamp":            time.Now().UTC().Format("2006-01-02T15:04:05.000-07:00"),
		"courses":              coursesJSON,
		"registrations":        registrations,
	}
	return json.NewEncoder(w).Encode(doc)
}

// findTrack returns the part and track id of the course track selected by
// the user, or of the single course track of the event if track is 0.
func findTrack(parts map[string]cdedbPart, track uint64) (partID, trackID uint64, err error) {
	var found bool
	for partKey, part := range parts {
		if part.Tracks == nil {
			return 0, 0, fmt.Errorf("missing 'tracks' in event part")
		}
		for trackKey := range part.Tracks {
			tid, err := strconv.ParseUint(trackKey, 10, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("invalid track id %q: %w", trackKey, err)
			}
			if track != 0 {
				if tid != track {
					continue
				}
			} else if found {
				summary, err := trackSummary(parts)
				if err != nil {
					return 0, 0, err
				}
				return 0, 0, fmt.Errorf(
					"event has more than one course track; please select one of the tracks:\n%s", summary)
			}
			pid, err := strconv.ParseUint(partKey, 10, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("invalid part id %q: %w", partKey, err)
			}
			partID, trackID = pid, tid
			found = true
			if track != 0 {
				return partID, trackID, nil
			}
		}
	}
	if !found {
		if track != 0 {
			return 0, 0, fmt.Errorf("could not find course track with id %d", track)
		}
		return 0, 0, fmt.Errorf("event has no course track")
	}
	return partID, trackID, nil
}

// trackSummary renders a listing of the event's track ids and titles for
// the track selection error message, ordered by the tracks' sort keys.
func trackSummary(parts map[string]cdedbPart) (string, error) {
	type trackInfo struct {
		id      string
		title   string
		sortKey int64
	}
	var tracks []trackInfo
	maxIDLen := 0
	for _, part := range parts {
		if part.Tracks == nil {
			return "", fmt.Errorf("missing 'tracks' in event part")
		}
		for trackKey, track := range part.Tracks {
			if track.Title == nil {
				return "", fmt.Errorf("missing 'title' in event track")
			}
			if track.SortKey == nil {
				return "", fmt.Errorf("missing 'sortkey' in event track")
			}
			maxIDLen = max(maxIDLen, len(trackKey))
			tracks = append(tracks, trackInfo{id: trackKey, title: *track.Title, sortKey: *track.SortKey})
		}
	}
	sort.SliceStable(tracks, func(i, j int) bool { return tracks[i].sortKey < tracks[j].sortKey })
	lines := make([]string, len(tracks))
	for i, t := range tracks {
		lines[i] = fmt.Sprintf("%*s : %s", maxIDLen, t.id, t.title)
	}
	return strings.Join(lines, "\n"), nil
}
