package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campsite-reservation/internal/model"
	"github.com/iliyamo/campsite-reservation/internal/repository"
	"github.com/iliyamo/campsite-reservation/internal/service"
)

// ReservationHandler exposes the reservation service over HTTP.  Input
// shape checks (required fields, date format, start before end) happen
// here; the stay rules and all booking decisions belong to the service.
type ReservationHandler struct {
	svc *service.ReservationService
}

// NewReservationHandler constructs a ReservationHandler.  svc must be
// non-nil.
func NewReservationHandler(svc *service.ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{svc: svc}
}

// reservationResponse is the public representation of a reservation.
type reservationResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toResponse(r model.Reservation) reservationResponse {
	return reservationResponse{
		ID:        r.ID,
		Email:     r.Email,
		Status:    string(r.Status),
		StartDate: model.DateKey(r.StartDate),
		EndDate:   model.DateKey(r.EndDate),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toResponses(rs []model.Reservation) []reservationResponse {
	out := make([]reservationResponse, len(rs))
	for i, r := range rs {
		out[i] = toResponse(r)
	}
	return out
}

// GetAvailability handles GET /v1/availability.  start_date and end_date
// are optional but must be given together; without them the default
// window is used.  The answer may lag the most recent bookings.
func (h *ReservationHandler) GetAvailability(c echo.Context) error {
	start, end := c.QueryParam("start_date"), c.QueryParam("end_date")
	var rng *model.DateRange
	switch {
	case start == "" && end == "":
	case start == "" || end == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_date and end_date must be provided together"})
	default:
		r, msg := parseRange(start, end)
		if msg != "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
		}
		rng = &r
	}

	dates, err := h.svc.Availability(c.Request().Context(), rng)
	if errors.Is(err, service.ErrInvalidRange) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": errAvailabilityWindow})
	}
	if err != nil {
		return writeError(c, err)
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = model.DateKey(d)
	}
	return c.JSON(http.StatusOK, echo.Map{"available_dates": out})
}

type createReservationRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// CreateReservation handles POST /v1/reservations.  The holder's names are
// required but not stored; the email identifies the reservation.
func (h *ReservationHandler) CreateReservation(c echo.Context) error {
	var body createReservationRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	email := strings.TrimSpace(body.Email)
	if email == "" || strings.TrimSpace(body.FirstName) == "" || strings.TrimSpace(body.LastName) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, first_name and last_name are required"})
	}
	rng, msg := parseRange(body.StartDate, body.EndDate)
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	res, err := h.svc.Book(c.Request().Context(), email, rng)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toResponse(res))
}

// GetReservation handles GET /v1/reservations/:id?email=.
func (h *ReservationHandler) GetReservation(c echo.Context) error {
	id, email, ok := idAndEmail(c, c.QueryParam("email"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation id and email are required"})
	}
	res, err := h.svc.Get(c.Request().Context(), id, email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(res))
}

// ListReservations handles GET /v1/reservations?email=.  The holder's
// full history is returned, cancelled reservations included.
func (h *ReservationHandler) ListReservations(c echo.Context) error {
	email := strings.TrimSpace(c.QueryParam("email"))
	if email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}
	list, err := h.svc.ListByEmail(c.Request().Context(), email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": toResponses(list)})
}

type modifyReservationRequest struct {
	Email     string `json:"email"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// ModifyReservation handles PUT /v1/reservations/:id.  Only the dates can
// change.  The response lists the cancelled original followed by its
// replacement.
func (h *ReservationHandler) ModifyReservation(c echo.Context) error {
	var body modifyReservationRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	id, email, ok := idAndEmail(c, body.Email)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation id and email are required"})
	}
	rng, msg := parseRange(body.StartDate, body.EndDate)
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	pair, err := h.svc.Modify(c.Request().Context(), id, email, rng)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": toResponses(pair)})
}

// CancelReservation handles DELETE /v1/reservations/:id?email=.  Repeating
// the call returns the already cancelled reservation.
func (h *ReservationHandler) CancelReservation(c echo.Context) error {
	id, email, ok := idAndEmail(c, c.QueryParam("email"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation id and email are required"})
	}
	res, err := h.svc.Cancel(c.Request().Context(), id, email)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toResponse(res))
}

func idAndEmail(c echo.Context, email string) (string, string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	email = strings.TrimSpace(email)
	return id, email, id != "" && email != ""
}

// parseRange parses a YYYY-MM-DD pair.  It returns a client-facing message
// when the input is malformed.
func parseRange(start, end string) (model.DateRange, string) {
	if start == "" || end == "" {
		return model.DateRange{}, "start_date and end_date are required"
	}
	s, err := model.ParseDate(start)
	if err != nil {
		return model.DateRange{}, "invalid date parameters, use YYYY-MM-DD"
	}
	e, err := model.ParseDate(end)
	if err != nil {
		return model.DateRange{}, "invalid date parameters, use YYYY-MM-DD"
	}
	r := model.NewDateRange(s, e)
	if !r.Valid() {
		return model.DateRange{}, "start_date must be before end_date"
	}
	return r, ""
}

const (
	errBookingWindow      = "dates are outside the bookable window or exceed the maximum stay"
	errAvailabilityWindow = "dates must start after today and end within the booking horizon"
)

// writeError maps service and repository errors to HTTP responses.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidRange):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": errBookingWindow})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrCancelled):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	default:
		c.Logger().Errorf("request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
