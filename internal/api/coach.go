package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/skillsprint/coach/internal/pipeline"
	"github.com/skillsprint/coach/internal/profile"
	"github.com/skillsprint/coach/internal/sprint"
	"github.com/skillsprint/coach/internal/storage"
)

type coachRequest struct {
	Profile profile.Profile     `json:"profile"`
	KPIs    profile.KPISnapshot `json:"kpis"`
	User    *string             `json:"user"`
	Last    json.RawMessage     `json:"last"`
	History json.RawMessage     `json:"history"`
	Context json.RawMessage     `json:"context"`
}

type coachResponse struct {
	pipeline.Result
	Debug *pipeline.Trace `json:"debug,omitempty"`
}

func handleCoach(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req coachRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.User == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user is required")
			return
		}

		res, trace := deps.Coach.Respond(r.Context(), pipeline.Request{
			Profile: req.Profile,
			KPIs:    req.KPIs,
			Tail:    profile.ParseTail(req.Last, req.History, req.Context),
			User:    *req.User,
		})

		out := coachResponse{Result: res}
		if deps.Debug {
			out.Debug = &trace
		}
		writeJSON(w, out)

		record(deps.Store, storage.Interaction{
			Endpoint:      storage.EndpointCoach,
			Utterance:     *req.User,
			Route:         string(trace.Route),
			Topic:         trace.Topic,
			Source:        string(trace.Source),
			Model:         trace.Model,
			UpstreamError: trace.UpstreamError,
			Reply:         res.Reply,
			LatencyMs:     trace.DurationMs,
		})
	}
}

type sprintRequest struct {
	Profile  json.RawMessage     `json:"profile"`
	KPIs     profile.KPISnapshot `json:"kpis"`
	History  []json.RawMessage   `json:"history"`
	Followup *sprint.Followup    `json:"followup"`
	Seed     *sprint.Seed        `json:"seed"`
}

// decode resolves the profile and the KPI snapshot, which older clients
// nest under profile.kpis.
func (s sprintRequest) decode() (sprint.Request, error) {
	out := sprint.Request{
		KPIs:     s.KPIs,
		History:  s.History,
		Followup: s.Followup,
		Seed:     s.Seed,
	}
	if len(s.Profile) > 0 && string(s.Profile) != "null" {
		if err := json.Unmarshal(s.Profile, &out.Profile); err != nil {
			return out, err
		}
		if out.KPIs == nil {
			var nested struct {
				KPIs profile.KPISnapshot `json:"kpis"`
			}
			if err := json.Unmarshal(s.Profile, &nested); err == nil {
				out.KPIs = nested.KPIs
			}
		}
	}
	// A followup without a goals array is an ordinary day request.
	if out.Followup != nil && out.Followup.Goals == nil {
		out.Followup = nil
	}
	return out, nil
}

func handleGenerateSprint(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var body sprintRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req, err := body.decode()
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid profile: %v", err)
			return
		}
		req.Passcode = r.Header.Get(PasscodeHeader)

		res := deps.Sprints.Generate(r.Context(), req)
		writeJSON(w, res)

		in := storage.Interaction{
			Endpoint:      storage.EndpointSprint,
			Route:         "day",
			Source:        string(res.Mode),
			Model:         res.Model,
			UpstreamError: res.ErrorKind,
		}
		switch {
		case res.Day != nil:
			in.Reply = res.Day.Title
		case len(res.FollowupSteps) > 0:
			in.Route = "followup"
			in.Reply = strings.Join(res.FollowupSteps, "\n")
		}
		if req.Seed != nil {
			in.Utterance = req.Seed.Title
		}
		record(deps.Store, in)
	}
}

type diagResponse struct {
	HasKey       bool `json:"hasKey"`
	HasPassVar   bool `json:"hasPassVar"`
	PassProvided bool `json:"passProvided"`
	PassMatches  bool `json:"passMatches"`
}

func handleDiag(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pass := r.Header.Get(PasscodeHeader)
		writeJSON(w, diagResponse{
			HasKey:       deps.Coach.Configured(),
			HasPassVar:   deps.Sprints.PasscodeRequired(),
			PassProvided: pass != "",
			PassMatches:  deps.Sprints.PasscodeMatches(pass),
		})
	}
}

// record writes to the audit log when one is configured. Failures are
// logged and otherwise ignored.
func record(store InteractionStore, in storage.Interaction) {
	if store == nil {
		return
	}
	if _, err := store.SaveInteraction(in); err != nil {
		slog.Warn("recording interaction failed", "endpoint", in.Endpoint, "error", err)
	}
}
