// internal/desk/handler.go
package desk

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"checkindesk/internal/journal"
	"checkindesk/internal/logging"
	"checkindesk/internal/settings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	desk     *Desk
	validate *validator.Validate
	logger   logrus.FieldLogger
}

func NewHandler(desk *Desk, logger logrus.FieldLogger) *Handler {
	return &Handler{desk: desk, validate: validator.New(), logger: logger}
}

// Routes mounts the desk endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
	r.Route("/desk", func(r chi.Router) {
		r.Get("/", h.HandleView)
		r.Post("/scan", h.HandleScan)
		r.Post("/select", h.HandleSelect)
		r.Post("/more", h.HandleMore)
		r.Post("/confirm", h.HandleConfirm)
		r.Post("/cancel", h.HandleCancel)
		r.Post("/acknowledge", h.HandleAcknowledge)
		r.Post("/redirect", h.HandleRedirect)
		r.Post("/dismiss", h.HandleDismiss)
		r.Get("/records/{index}/notes", h.HandleViewNotes)
		r.Post("/records/{index}/slip", h.HandlePrintSlip)
		r.Post("/notes/close", h.HandleCloseNotes)
		r.Post("/end-session", h.HandleEndSession)
		r.Post("/navigate", h.HandleNavigate)
		r.Post("/settings", h.HandleSettings)
		r.Post("/settings/refresh", h.HandleRefreshSettings)
		r.Get("/journal", h.HandleJournal)
	})
}

type scanRequest struct {
	Barcode     string `json:"itemBarcode"`
	CheckinDate string `json:"checkinDate" validate:"omitempty,datetime=2006-01-02"`
	CheckinTime string `json:"checkinTime" validate:"omitempty,datetime=15:04"`
}

type selectRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
}

type confirmRequest struct {
	Resolution string `json:"claimedReturnedResolution" validate:"omitempty,oneof='Found by library' 'Returned by patron'"`
}

type acknowledgeRequest struct {
	Print bool `json:"print"`
}

type navigateRequest struct {
	Path string `json:"path" validate:"required,startswith=/"`
}

type settingsRequest struct {
	CheckoutTimeout         bool `json:"checkoutTimeout"`
	CheckoutTimeoutDuration int  `json:"checkoutTimeoutDuration" validate:"min=0"`
	WildcardLookupEnabled   bool `json:"wildcardLookupEnabled"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.desk.Snapshot())
}

func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.desk.Submit(r.Context(), SubmitInput{
		Barcode:     req.Barcode,
		CheckinDate: req.CheckinDate,
		CheckinTime: req.CheckinTime,
	})
	h.respond(w, err)
}

func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.desk.SelectItem(r.Context(), *req.Index))
}

func (h *Handler) HandleMore(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.desk.NextPage(r.Context()))
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, h.desk.Confirm(r.Context(), req.Resolution))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.desk.Cancel())
}

func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if !h.decode(w, r, &req) {
		return
	}
	slip, err := h.desk.Acknowledge(req.Print)
	if err != nil {
		h.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		View
		Printed *PrintedSlip `json:"printed,omitempty"`
	}{h.desk.Snapshot(), slip})
}

func (h *Handler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	handoff, err := h.desk.RedirectToCheckout()
	if err != nil {
		h.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handoff)
}

func (h *Handler) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.desk.DismissError())
}

func (h *Handler) HandleViewNotes(w http.ResponseWriter, r *http.Request) {
	index, ok := recordIndex(w, r)
	if !ok {
		return
	}
	h.respond(w, h.desk.ViewNotes(index))
}

func (h *Handler) HandlePrintSlip(w http.ResponseWriter, r *http.Request) {
	index, ok := recordIndex(w, r)
	if !ok {
		return
	}
	slip, err := h.desk.PrintSlip(index)
	if err != nil {
		h.respond(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slip)
}

func recordIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record index"})
		return 0, false
	}
	return index, true
}

func (h *Handler) HandleCloseNotes(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.desk.CloseNotes())
}

func (h *Handler) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.desk.EndSession(r.Context()); err != nil {
		// The list is already cleared; only the notification failed.
		h.logger.WithError(err).Warn("end-session notification failed")
	}
	writeJSON(w, http.StatusOK, h.desk.Snapshot())
}

func (h *Handler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.desk.Navigate(r.Context(), req.Path); err != nil {
		h.logger.WithError(err).Warn("end-session notification failed")
	}
	writeJSON(w, http.StatusOK, h.desk.Snapshot())
}

func (h *Handler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.desk.ApplySettings(&settings.CheckinSettings{
		CheckoutTimeoutEnabled:         req.CheckoutTimeout,
		CheckoutTimeoutDurationMinutes: req.CheckoutTimeoutDuration,
		WildcardLookupEnabled:          req.WildcardLookupEnabled,
	})
	writeJSON(w, http.StatusOK, h.desk.Snapshot())
}

func (h *Handler) HandleRefreshSettings(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.desk.RefreshSettings(r.Context()))
}

type journalQuery struct {
	Sessions []string `validate:"dive,uuid"`
}

func (h *Handler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	q := journalQuery{Sessions: r.URL.Query()["session"]}
	if err := h.validate.Struct(q); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session must be a uuid"})
		return
	}

	entries, err := h.desk.JournalEntries(r.Context(), q.Sessions...)
	switch {
	case errors.Is(err, ErrNoJournal):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	case err != nil:
		logging.LogError(h.logger, "desk", "journal", q.Sessions, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "journal unavailable"})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// decode reads and validates the JSON body. It writes the error response
// and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": validationErrors(verrs)})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

// respond writes the desk view with a status derived from err.
func (h *Handler) respond(w http.ResponseWriter, err error) {
	status := http.StatusOK
	var invalid *ValidationError
	switch {
	case err == nil:
	case errors.As(err, &invalid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrBusy), errors.Is(err, ErrNoAction):
		status = http.StatusConflict
	default:
		logging.LogError(h.logger, "desk", "respond", nil, err)
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, h.desk.Snapshot())
}

// validationErrors maps each failing field to the tag it failed.
func validationErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, ve := range verrs {
		out[ve.Field()] = ve.Tag()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
