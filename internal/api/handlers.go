package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/snarg/aerial/internal/database"
	"github.com/snarg/aerial/internal/listings"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// categoryCodes parses ?category=N,R; the default is new episodes only.
func categoryCodes(r *http.Request) []string {
	param := r.URL.Query().Get("category")
	if param == "" {
		return []string{database.CategoryNew}
	}
	var codes []string
	for _, c := range strings.Split(param, ",") {
		c = strings.TrimSpace(strings.ToUpper(c))
		switch c {
		case database.CategoryNew, database.CategoryRerun, database.CategoryArchive:
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		return []string{database.CategoryNew}
	}
	return codes
}

func recordingID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "recordingID"))
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg("store query failed")
	writeError(w, http.StatusInternalServerError, "store_error", "database query failed")
}

func (s *Server) handleShows(w http.ResponseWriter, r *http.Request) {
	shows, err := s.opts.Store.ShowsWithRecordings(r.Context(), categoryCodes(r))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if shows == nil {
		shows = []database.ShowSummary{}
	}
	writeJSON(w, http.StatusOK, shows)
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	episodes, err := s.opts.Store.EpisodesForShow(r.Context(), chi.URLParam(r, "showID"), categoryCodes(r))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if episodes == nil {
		episodes = []database.EpisodeSummary{}
	}
	writeJSON(w, http.StatusOK, episodes)
}

func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := recordingID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_recording_id", "recording id must be a positive integer")
		return
	}
	detail, err := s.opts.Store.RecordingDetail(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, "not_found", "no such recording")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	id, ok := recordingID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_recording_id", "recording id must be a positive integer")
		return
	}
	// Only the recording row goes now; files and file rows follow on the
	// next reaper pass.
	if err := s.opts.Store.DeleteRecording(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecentRecordings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if p := r.URL.Query().Get("recent"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "bad_limit", "recent must be 1-500")
			return
		}
		limit = n
	}
	recent, err := s.opts.Store.RecentRecordings(r.Context(), limit)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if recent == nil {
		recent = []database.RecordingDetail{}
	}
	writeJSON(w, http.StatusOK, recent)
}

type positionBody struct {
	Position int `json:"position"`
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := recordingID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_recording_id", "recording id must be a positive integer")
		return
	}
	position, err := s.opts.Store.PlaybackPosition(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionBody{Position: position})
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := recordingID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_recording_id", "recording id must be a positive integer")
		return
	}
	var body positionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Position < 0 {
		writeError(w, http.StatusBadRequest, "bad_position", "position must be a non-negative integer")
		return
	}
	if err := s.opts.Store.SetPlaybackPosition(r.Context(), id, body.Position); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryBody struct {
	CategoryCode string `json:"categoryCode"`
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := recordingID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_recording_id", "recording id must be a positive integer")
		return
	}
	code, err := s.opts.Store.CategoryCode(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryBody{CategoryCode: code})
}

func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := recordingID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_recording_id", "recording id must be a positive integer")
		return
	}
	var body categoryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_category", "body must be JSON with categoryCode")
		return
	}
	switch body.CategoryCode {
	case database.CategoryNew, database.CategoryRerun, database.CategoryArchive:
	default:
		writeError(w, http.StatusBadRequest, "bad_category", "categoryCode must be N, R or A")
		return
	}
	if err := s.opts.Store.SetCategoryCode(r.Context(), id, body.CategoryCode); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRetryTranscode deletes the failed transcode row; the next transcode
// tick re-enqueues the raw capture.
func (s *Server) handleRetryTranscode(w http.ResponseWriter, r *http.Request) {
	id, ok := recordingID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_recording_id", "recording id must be a positive integer")
		return
	}
	if err := s.opts.Store.DeleteTranscodedFileRecord(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.opts.Store.ListSubscriptions(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if subs == nil {
		subs = []database.Subscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

type subscribeBody struct {
	Priority int `json:"priority"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	showID := chi.URLParam(r, "showID")
	var body subscribeBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_priority", "body must be JSON with priority")
			return
		}
	}
	if err := s.opts.Store.InsertSubscription(r.Context(), showID, body.Priority); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Store.DeleteSubscription(r.Context(), chi.URLParam(r, "showID")); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	upcoming, err := s.opts.Store.UpcomingRecordings(r.Context(), s.opts.PlanWindow)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if upcoming == nil {
		upcoming = []database.UpcomingRecording{}
	}
	writeJSON(w, http.StatusOK, upcoming)
}

func (s *Server) handleTranscodeFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := s.opts.Store.TranscodeFailures(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if failures == nil {
		failures = []database.TranscodeFailure{}
	}
	writeJSON(w, http.StatusOK, failures)
}

type statusResponse struct {
	RemainingListingHours float64                   `json:"remainingListingHours"`
	TunersAvailable       int                       `json:"tunersAvailable"`
	TunersLeased          int                       `json:"tunersLeased"`
	PlannedCaptureJobs    int                       `json:"plannedCaptureJobs"`
	PendingTranscodes     int                       `json:"pendingTranscodes"`
	Inconsistencies       *database.Inconsistencies `json:"inconsistencies"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	remaining, err := s.opts.Store.RemainingListingTime(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	pendingTranscodes, err := s.opts.Store.PendingTranscodeCount(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	inconsistencies, err := s.opts.Store.FindInconsistencies(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	available, leased := s.opts.Tuners.Counts()
	writeJSON(w, http.StatusOK, statusResponse{
		RemainingListingHours: remaining.Hours(),
		TunersAvailable:       available,
		TunersLeased:          leased,
		PlannedCaptureJobs:    s.opts.Scheduler.PendingCount(),
		PendingTranscodes:     pendingTranscodes,
		Inconsistencies:       inconsistencies,
	})
}

func (s *Server) handleReplan(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Scheduler.Plan(r.Context()); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("replan failed")
		writeError(w, http.StatusInternalServerError, "plan_failed", "replanning failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"plannedCaptureJobs": s.opts.Scheduler.PendingCount()})
}

func (s *Server) handleImportListings(w http.ResponseWriter, r *http.Request) {
	var l listings.Listings
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest, "bad_listings", "body must be a JSON listings document")
		return
	}
	if err := s.opts.Importer.Import(r.Context(), l); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("listings import failed")
		writeError(w, http.StatusInternalServerError, "import_failed", "listings import failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"airings": len(l.Airings)})
}
