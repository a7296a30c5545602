package property

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/roomkartz/roomkartz-api/internal/auth"
	"github.com/roomkartz/roomkartz-api/internal/httputil"
	"github.com/roomkartz/roomkartz-api/internal/logging"
	"github.com/roomkartz/roomkartz-api/internal/user"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// AddPropertyRequest represents a new listing. Rent may be a number or a
// numeric string.
type AddPropertyRequest struct {
	Address     string              `json:"address"`
	Description string              `json:"description"`
	Rent        json.RawMessage     `json:"rent" swaggertype:"number"`
	Gender      string              `json:"gender"`
	Furnishing  string              `json:"furnishing"`
	Restriction string              `json:"restriction"`
	Images      []string            `json:"images"`
	Status      user.PropertyStatus `json:"status"`
	WiFi        bool                `json:"wifi"`
	AC          bool                `json:"ac"`
	WaterSupply bool                `json:"waterSupply"`
	PowerBackup bool                `json:"powerBackup"`
	Security    bool                `json:"security"`
}

// UpdatePropertyRequest carries the fields an owner may change
type UpdatePropertyRequest struct {
	Rent   json.RawMessage      `json:"rent,omitempty" swaggertype:"number"`
	Status *user.PropertyStatus `json:"status,omitempty"`
}

type AddPropertyResponse struct {
	Status   string         `json:"status"`
	Property *user.Property `json:"property"`
}

type MyPropertiesResponse struct {
	Properties []user.Property `json:"properties"`
}

// parseRent accepts a JSON number or a numeric string. A missing or null
// value returns nil. Anything else yields NaN, which the service rejects
// once the caller is known to be an owner.
func parseRent(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var rent float64
	if err := json.Unmarshal(raw, &rent); err == nil {
		return &rent
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &f
		}
	}

	nan := math.NaN()
	return &nan
}

func callerFrom(r *http.Request) (Caller, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return Caller{}, false
	}
	return Caller{Subject: id.Subject, Role: id.Role}, true
}

func respondError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	code := ""
	switch {
	case errors.Is(err, ErrNotOwner):
		code = httputil.CodeNotOwner
	case errors.Is(err, user.ErrPropertyNotFound):
		code = httputil.CodePropertyNotFound
	case errors.Is(err, ErrInvalidRent):
		code = httputil.CodeInvalidRent
	case errors.Is(err, ErrInvalidStatus):
		code = httputil.CodeInvalidStatus
	case httputil.StatusFor(err) == http.StatusInternalServerError:
		logging.GetLoggerFromContext(r.Context()).Error(msg, "error", err.Error())
	}
	httputil.RespondDomainError(w, err, code)
}

// ListAll returns every property of every user
// @Summary      List all properties
// @Tags         properties
// @Produce      json
// @Success      200 {array} user.Property
// @Router       /api/users/properties [get]
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	props, err := h.service.ListAll(r.Context())
	if err != nil {
		respondError(w, r, err, "failed to fetch properties")
		return
	}
	httputil.RespondJSON(w, props, http.StatusOK)
}

// ListOwn returns the caller's properties
// @Summary      List my properties
// @Tags         properties
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} MyPropertiesResponse
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /api/users/my-properties [get]
func (h *Handler) ListOwn(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	props, err := h.service.ListOwn(r.Context(), c.Subject)
	if err != nil {
		respondError(w, r, err, "failed to fetch own properties")
		return
	}
	httputil.RespondJSON(w, MyPropertiesResponse{Properties: props}, http.StatusOK)
}

// Add creates a property for the calling owner
// @Summary      Add property
// @Description  Owners only. Status defaults to Open. Inline data:image URIs are uploaded when image storage is configured.
// @Tags         properties
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body AddPropertyRequest true "Property"
// @Success      200 {object} AddPropertyResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Not an owner"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /api/users/add-property [post]
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req AddPropertyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("invalid add property request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	p := user.Property{
		Address:     req.Address,
		Description: req.Description,
		Gender:      req.Gender,
		Furnishing:  req.Furnishing,
		Restriction: req.Restriction,
		Images:      req.Images,
		Status:      req.Status,
		WiFi:        req.WiFi,
		AC:          req.AC,
		WaterSupply: req.WaterSupply,
		PowerBackup: req.PowerBackup,
		Security:    req.Security,
	}
	if rent := parseRent(req.Rent); rent != nil {
		p.Rent = *rent
	}

	created, err := h.service.Add(r.Context(), c, p)
	if err != nil {
		respondError(w, r, err, "failed to add property")
		return
	}
	httputil.RespondJSON(w, AddPropertyResponse{Status: "success", Property: created}, http.StatusOK)
}

// Update changes rent or status of one of the caller's properties
// @Summary      Update property
// @Description  Owners only. Only the supplied fields change.
// @Tags         properties
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Property ID"
// @Param        request body UpdatePropertyRequest true "Fields to change"
// @Success      200 {object} user.Property
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Not an owner"
// @Failure      404 {object} httputil.ErrorResponse "Property not found"
// @Router       /api/users/update-property/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req UpdatePropertyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("invalid update property request body", "error", err.Error())
		httputil.RespondDecodeError(w, err)
		return
	}

	patch := user.PropertyPatch{Rent: parseRent(req.Rent), Status: req.Status}
	updated, err := h.service.Update(r.Context(), c, chi.URLParam(r, "id"), patch)
	if err != nil {
		respondError(w, r, err, "failed to update property")
		return
	}
	httputil.RespondJSON(w, updated, http.StatusOK)
}

// Delete removes one of the caller's properties
// @Summary      Delete property
// @Tags         properties
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Property ID"
// @Success      200 {object} httputil.MessageResponse
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      403 {object} httputil.ErrorResponse "Not an owner"
// @Failure      404 {object} httputil.ErrorResponse "Property not found"
// @Router       /api/users/delete-property/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := callerFrom(r)
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	if err := h.service.Delete(r.Context(), c, chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err, "failed to delete property")
		return
	}
	httputil.RespondMessage(w, "Property deleted successfully", http.StatusOK)
}
