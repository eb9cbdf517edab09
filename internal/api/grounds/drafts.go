package grounds

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Pitchside/internal/api/apiutil"
	"github.com/codr1/Pitchside/internal/onboarding"
)

type draftCreateRequest struct {
	PitchID int64 `json:"pitchId"`
}

type draftResponse struct {
	onboarding.Draft
	NextStep onboarding.Step `json:"nextStep,omitempty"`
}

// POST /api/v1/ground-drafts
func HandleDraftCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req draftCreateRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid JSON body", Err: err})
		return
	}

	draft, err := onboarding.New(uuid.NewString(), req.PitchID, clock.Now().UTC())
	if err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "pitchId", Reason: "must be a positive integer"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	if err := database.Queries.SaveDraft(ctx, draft); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	logger.Info().Str("draft_id", draft.ID).Int64("pitch_id", draft.PitchID).Msg("Ground draft started")
	writeDraft(w, r, http.StatusCreated, draft)
}

// PUT /api/v1/ground-drafts/{id}/{step}
func HandleDraftStep(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	draftID, err := draftIDFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	step, err := onboarding.ParseStep(r.PathValue("step"))
	if err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: err.Error(), Err: err})
		return
	}

	var payload []byte
	if step != onboarding.StepReview {
		if payload, err = apiutil.ReadBody(r); err != nil {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	draft, err := database.Queries.GetDraft(ctx, draftID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	updated, err := onboarding.Apply(draft, step, payload, clock.Now().UTC())
	if err != nil {
		apiutil.WriteError(w, r, draftInputError(err))
		return
	}
	if err := database.Queries.SaveDraft(ctx, updated); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Debug().
		Str("draft_id", draftID).
		Str("step", string(step)).
		Str("next_step", string(updated.NextStep())).
		Msg("Ground draft step saved")
	writeDraft(w, r, http.StatusOK, updated)
}

// POST /api/v1/ground-drafts/{id}/publish
func HandleDraftPublish(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	draftID, err := draftIDFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	draft, err := database.Queries.GetDraft(ctx, draftID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if _, err := onboarding.Build(draft); err != nil {
		apiutil.WriteError(w, r, draftInputError(err))
		return
	}

	ground, err := database.PublishDraft(ctx, draftID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().
		Str("draft_id", draftID).
		Int64("ground_id", ground.ID).
		Msg("Ground published from draft")
	if err := apiutil.WriteJSON(w, http.StatusCreated, ground); err != nil {
		logger.Error().Err(err).Msg("Failed to write ground response")
	}
}

// draftInputError maps a failure of the pure onboarding steps. Anything the
// draft rejects is the caller's input, invariant violations included.
func draftInputError(err error) error {
	if errors.Is(err, onboarding.ErrStepOutOfOrder) {
		return apiutil.HandlerError{Status: http.StatusConflict, Message: err.Error(), Err: err}
	}
	return apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
}

func writeDraft(w http.ResponseWriter, r *http.Request, status int, d onboarding.Draft) {
	if err := apiutil.WriteJSON(w, status, draftResponse{Draft: d, NextStep: d.NextStep()}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("draft_id", d.ID).Msg("Failed to write draft response")
	}
}

func draftIDFromPath(r *http.Request) (string, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return "", apiutil.FieldError{Field: "id", Reason: "must be a draft id"}
	}
	return id.String(), nil
}
