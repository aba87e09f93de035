package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/export"
	"salonbook/internal/logging"
	"salonbook/internal/models"
)

const banner = "Server for Hair Salon Booking is running."

func (s *HTTPServer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(banner))
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.deps.HealthChecks))
	healthy := true
	for name, check := range s.deps.HealthChecks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	statusCode := http.StatusOK
	state := "ok"
	if !healthy {
		statusCode = http.StatusServiceUnavailable
		state = "degraded"
	}
	writeJSON(w, statusCode, map[string]any{"status": state, "checks": checks})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	technician := strings.TrimSpace(r.URL.Query().Get("technician"))

	slots, err := s.deps.Bookings.ListBookedSlots(r.Context(), date, technician)
	if err != nil {
		s.logFailure(r, err, "availability query failed")
		writeError(w, statusForError(err), messageForError(err))
		return
	}
	if slots == nil {
		slots = []string{}
	}
	writeJSON(w, http.StatusOK, slots)
}

// bookingPayload is the mini-app wire format.
type bookingPayload struct {
	Timestamp         string    `json:"timestamp"`
	Date              string    `json:"date"`
	Time              string    `json:"time"`
	MainService       string    `json:"mainService"`
	SubService        string    `json:"subService"`
	Technician        string    `json:"technician"`
	Price             flexPrice `json:"price"`
	CustomerName      string    `json:"customerName"`
	PhoneNumber       string    `json:"phoneNumber"`
	Notes             string    `json:"notes"`
	CustomerChannelID string    `json:"customerChannelId"`
}

// flexPrice accepts 300, "300" or an empty value.
type flexPrice int64

func (p *flexPrice) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*p = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("price %q is not a number", raw)
	}
	*p = flexPrice(v)
	return nil
}

func (b bookingPayload) request() *models.BookingRequest {
	req := &models.BookingRequest{
		Date:              b.Date,
		Time:              b.Time,
		Technician:        b.Technician,
		MainService:       b.MainService,
		SubService:        b.SubService,
		Price:             int64(b.Price),
		CustomerName:      b.CustomerName,
		ContactPhone:      b.PhoneNumber,
		Notes:             b.Notes,
		CustomerChannelID: b.CustomerChannelID,
	}
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(b.Timestamp)); err == nil {
		req.SubmittedAt = ts
	}
	return req
}

func (s *HTTPServer) handleBooking(w http.ResponseWriter, r *http.Request) {
	var body bookingPayload
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.deps.Bookings.Submit(r.Context(), body.request())
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			s.logFailure(r, err, "booking failed")
		}
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	notified := res.Notified()
	message := "Booking confirmed successfully."
	if !notified {
		message = "Booking confirmed, but the confirmation message could not be delivered."
	}
	writeJSON(w, http.StatusOK, apiResponse{
		Success:   true,
		Message:   message,
		BookingID: res.Record.ID,
		Notified:  &notified,
	})
}

func (s *HTTPServer) handleTechnicians(w http.ResponseWriter, r *http.Request) {
	techs, err := s.deps.Catalog.ListTechnicians(r.Context())
	if err != nil {
		s.logFailure(r, err, "list technicians failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	names := make([]string, 0, len(techs))
	for _, t := range techs {
		names = append(names, t.Name)
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.deps.Catalog.ServiceCatalog(r.Context())
	if err != nil {
		s.logFailure(r, err, "list services failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	records, err := s.deps.Bookings.ListBookings(r.Context(), from, to)
	if err != nil {
		s.logFailure(r, err, "export query failed")
		writeError(w, statusForError(err), messageForError(err))
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, from, to, records); err != nil {
		s.logFailure(r, err, "export render failed")
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(from, to)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) logFailure(r *http.Request, err error, msg string) {
	logger := logging.FromContext(r.Context(), s.logger)
	event := logger.Error()
	if statusForError(err) != http.StatusInternalServerError {
		event = logger.Warn()
	}
	event.Err(err).Bool("storage", errors.Is(err, domain.ErrStorage)).Msg(msg)
}
