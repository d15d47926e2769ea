package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"chauffeur/internal/autocomplete"
	"chauffeur/internal/documents"
	"chauffeur/internal/metrics"
	"chauffeur/internal/models"
	"chauffeur/internal/wizard"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type estimateRequest struct {
	Mode         models.TripMode `json:"mode" binding:"omitempty,oneof=transfer disposition"`
	Departure    string          `json:"departure" binding:"required,max=300"`
	Arrival      string          `json:"arrival" binding:"max=300"`
	VehicleClass string          `json:"vehicle_class" binding:"max=32"`
}

// trip trims addresses the same way wizard values are trimmed, so the estimate
// endpoint and a submitted form price the same text.
func (r estimateRequest) trip() models.TripRequest {
	mode := r.Mode
	if mode == "" {
		mode = models.ModeTransfer
	}
	return models.TripRequest{
		Mode:         mode,
		Departure:    strings.TrimSpace(r.Departure),
		Arrival:      strings.TrimSpace(r.Arrival),
		VehicleClass: r.VehicleClass,
	}
}

type nextRequest struct {
	Values map[string]interface{} `json:"values"`
}

type gotoRequest struct {
	Step *int `json:"step" binding:"required"`
}

// sessionResponse carries the error envelope next to the session when a step is rejected.
type sessionResponse struct {
	Session   wizard.View             `json:"session"`
	Error     string                  `json:"error,omitempty"`
	Code      string                  `json:"code,omitempty"`
	Details   *wizard.ValidationError `json:"details,omitempty"`
	RequestID string                  `json:"request_id,omitempty"`
}

type submitResponse struct {
	Reference   string               `json:"reference"`
	Form        string               `json:"form"`
	Estimate    models.PriceEstimate `json:"estimate"`
	SubmittedAt time.Time            `json:"submitted_at"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			requestLogger(c).Warn().Err(err).Msg("readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleSiteConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"site":              s.cfg.Site,
		"maps_api_key":      s.cfg.Maps.APIKey,
		"currency":          models.CurrencyEUR,
		"min_query_length":  s.cfg.Autocomplete.MinLength,
		"forms":             s.formNames,
		"disposition_hours": models.DispositionHours,
	})
}

func (s *Server) handleVehicles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"vehicles": s.deps.Fleet.Classes()})
}

func (s *Server) bindEstimate(c *gin.Context) (models.TripRequest, models.PriceEstimate, bool) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return models.TripRequest{}, models.PriceEstimate{}, false
	}
	trip := req.trip()
	return trip, s.deps.Estimator.Estimate(c.Request.Context(), trip), true
}

func (s *Server) handleEstimate(c *gin.Context) {
	_, estimate, ok := s.bindEstimate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, estimate)
}

func (s *Server) handleEstimatePDF(c *gin.Context) {
	trip, estimate, ok := s.bindEstimate(c)
	if !ok {
		return
	}

	data, err := documents.QuotePDF(documents.Quote{
		CompanyName: s.cfg.Site.Name,
		Trip:        trip,
		Vehicle:     s.deps.Fleet.Resolve(trip.VehicleClass),
		Estimate:    estimate,
		IssuedAt:    CurrentTimeFunc(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="devis.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

func (s *Server) handleTariffs(c *gin.Context) {
	data, err := documents.TariffWorkbook(s.deps.Fleet.Classes(), models.DispositionHours)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="tarifs.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (s *Server) handleStartSession(c *gin.Context) {
	state, err := s.deps.Forms.Start(c.Request.Context(), c.Param("form"))
	if err != nil {
		respondError(c, err)
		return
	}
	s.writeSession(c, http.StatusCreated, state, nil)
}

func (s *Server) handleGetSession(c *gin.Context) {
	state, err := s.deps.Forms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	s.writeSession(c, http.StatusOK, state, nil)
}

// handleNext answers 422 with the session and the field errors when the step is invalid.
func (s *Server) handleNext(c *gin.Context) {
	var req nextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	state, err := s.deps.Forms.Next(c.Request.Context(), c.Param("id"), req.Values)
	var verr *wizard.ValidationError
	if errors.As(err, &verr) && state != nil {
		s.writeSession(c, http.StatusUnprocessableEntity, state, verr)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	s.writeSession(c, http.StatusOK, state, nil)
}

func (s *Server) handleBack(c *gin.Context) {
	state, err := s.deps.Forms.Back(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	s.writeSession(c, http.StatusOK, state, nil)
}

func (s *Server) handleGoTo(c *gin.Context) {
	var req gotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	state, err := s.deps.Forms.GoTo(c.Request.Context(), c.Param("id"), *req.Step)
	if err != nil {
		respondError(c, err)
		return
	}
	s.writeSession(c, http.StatusOK, state, nil)
}

func (s *Server) handleSubmit(c *gin.Context) {
	submission, err := s.deps.Forms.Submit(c.Request.Context(), c.Param("id"), c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	if s.deps.Addresses != nil {
		s.deps.Addresses.ReleaseSession(c.Param("id"))
	}

	c.JSON(http.StatusOK, submitResponse{
		Reference:   submission.Reference,
		Form:        submission.Form,
		Estimate:    submission.Estimate,
		SubmittedAt: submission.SubmittedAt,
	})
}

// handleAddresses never fails on upstream trouble: the client just gets no suggestions.
func (s *Server) handleAddresses(c *gin.Context) {
	q := c.Query("q")
	field := c.DefaultQuery("field", "address")
	session := c.Query("session")
	if session == "" {
		// lookups without a session never supersede each other
		session = "anonymous:" + uuid.NewString()
		defer s.deps.Addresses.ReleaseSession(session)
	}

	suggestions, err := s.deps.Addresses.Lookup(c.Request.Context(), session, field, q)
	switch {
	case errors.Is(err, autocomplete.ErrSuperseded):
		c.JSON(http.StatusOK, gin.H{"suggestions": []models.AddressSuggestion{}, "superseded": true})
		return
	case err != nil:
		requestLogger(c).Debug().Err(err).Msg("address lookup aborted")
		metrics.IncAutocomplete("aborted")
		suggestions = nil
	}

	if suggestions == nil {
		suggestions = []models.AddressSuggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (s *Server) writeSession(c *gin.Context, status int, state *models.FormState, verr *wizard.ValidationError) {
	view, err := s.deps.Forms.Describe(state)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := sessionResponse{Session: view}
	if verr != nil {
		resp.Error = "validation failed"
		resp.Code = codeValidation
		resp.Details = verr
		resp.RequestID = c.GetString(ctxRequestID)
	}
	c.JSON(status, resp)
}
