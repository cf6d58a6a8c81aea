// Package serve implements the HTTP service that solves course assignment
// problems on request, e.g. for the CdE Datenbank orga tooling.
package serve

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"

	"github.com/cdetools/cdecao/assignment"
	"github.com/cdetools/cdecao/caobab"
	"github.com/cdetools/cdecao/config"
	"github.com/cdetools/cdecao/database"
	"github.com/cdetools/cdecao/format"
)

// cborDec decodes CBOR request bodies into JSON-compatible values.
var cborDec, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]any(nil)),
}.DecMode()

// Helper function to write http JSON response
func writeJsonResponse(w http.ResponseWriter, httpStatus int, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		httpStatus = http.StatusInternalServerError
		jsonData = []byte(`{"error": "Internal server error: ` + err.Error() + `"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, err = w.Write(jsonData)
	if err != nil {
		fmt.Println("Failed to write response:", err)
	}
}

// Handle ping request
func handlePing(w http.ResponseWriter, r *http.Request) {
	writeJsonResponse(w, http.StatusOK, map[string]string{"message": "pong"})
}

// assignmentResponse is the body returned for a solved assignment problem.
type assignmentResponse struct {
	ID      uuid.UUID          `json:"id"`
	Score   uint32             `json:"score"`
	Quality caobab.QualityInfo `json:"quality"`
	Import  json.RawMessage    `json:"import"`
}

// Handle request to solve a course assignment problem. The request body is
// a CdE Datenbank partial export, as JSON or CBOR depending on the
// Content-Type header.
func handleSolveAssignment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/cbor") {
		var decoded any
		if err := cborDec.Unmarshal(body, &decoded); err != nil {
			writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		body, err = json.Marshal(decoded)
		if err != nil {
			writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	q := r.URL.Query()
	track, err := strconv.ParseUint(cmp.Or(q.Get("track"), "0"), 10, 64)
	if err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid track id"})
		return
	}
	workers, err := strconv.Atoi(cmp.Or(q.Get("workers"), "0"))
	if err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid workers value"})
		return
	}
	var rooms []int
	if roomsParam := q.Get("rooms"); roomsParam != "" {
		for _, p := range strings.Split(roomsParam, ",") {
			size, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid room sizes"})
				return
			}
			rooms = append(rooms, size)
		}
	}

	participants, courses, ambience, err := format.ReadCdEDB(
		bytes.NewReader(body),
		track,
		q.Get("ignore_cancelled") == "1",
		q.Get("ignore_assigned") == "1",
		q.Get("room_factor_field"),
		q.Get("room_offset_field"),
	)
	if err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := assignment.CheckConsistency(participants, courses); err != nil {
		writeJsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(participants) == 0 {
		writeJsonResponse(w, http.StatusBadRequest,
			map[string]string{"error": "calculating course assignments is only possible with 1 or more participants"})
		return
	}

	id := uuid.New()
	slog.Info("solving assignment problem",
		"id", id, "courses", len(courses), "participants", len(participants))
	result, score, stats := caobab.Solve(courses, participants, rooms, false, workers)
	slog.Info("finished solving assignment problem", "id", id, "stats", stats.String())

	if result == nil {
		recordJob(id, ambience.EventID, len(courses), len(participants), nil)
		writeJsonResponse(w, http.StatusUnprocessableEntity,
			map[string]string{"error": "no feasible solution found", "id": id.String()})
		return
	}

	quality := caobab.CalculateQuality(score, participants, courses, nil)
	var importDoc bytes.Buffer
	if err := format.WriteCdEDB(&importDoc, result, participants, courses, ambience); err != nil {
		writeJsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	recordJob(id, ambience.EventID, len(courses), len(participants), &quality)
	writeJsonResponse(w, http.StatusOK, assignmentResponse{
		ID:      id,
		Score:   uint32(score),
		Quality: quality,
		Import:  json.RawMessage(importDoc.Bytes()),
	})
}

// recordJob stores the job outcome in the database, if one is configured.
func recordJob(id uuid.UUID, eventID uint64, numCourses, numParticipants int, quality *caobab.QualityInfo) {
	if !database.IsConfigured() {
		return
	}
	if err := insertJob(id, eventID, numCourses, numParticipants, quality); err != nil {
		slog.Error("failed to record assignment job", "id", id, "error", err)
	}
}

func newRouter(jwtTokenAuth *jwtauth.JWTAuth) chi.Router {
	r := chi.NewRouter()
	r.Get("/ping", handlePing)
	r.Route("/assignments", func(r chi.Router) {
		r.Use(jwtauth.Verifier(jwtTokenAuth))
		r.Use(jwtauth.Authenticator(jwtTokenAuth))
		r.Post("/", handleSolveAssignment)
	})
	return r
}

func Run(args []string) error {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return fmt.Errorf("JWT_SECRET not set")
	}
	jwtTokenAuth := jwtauth.New("HS256", []byte(jwtSecret), nil)

	if database.IsConfigured() {
		if err := initJobTableIfNotExists(); err != nil {
			return err
		}
	}

	r := newRouter(jwtTokenAuth)

	host := config.GetConfig().Webhook.Host
	if host == "" {
		return fmt.Errorf("webhook host not set in config")
	}
	fmt.Println("Assignment server running on", host)
	err := http.ListenAndServe(host, r)
	return err
}
