package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/logging"
	"salonbook/internal/metrics"
	"salonbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingService admits or rejects bookings so that a SlotKey is held by at
// most one accepted record. Atomicity is delegated to Ledger.AppendIfAbsent.
type BookingService struct {
	ledger        domain.Ledger
	catalog       domain.CatalogService
	notifier      domain.Notifier
	eventBus      domain.EventPublisher
	scope         models.SlotScope
	ledgerTimeout time.Duration
	notifyTimeout time.Duration
	logger        *zerolog.Logger
	now           func() time.Time
}

var _ domain.BookingService = (*BookingService)(nil)

func NewBookingService(
	ledger domain.Ledger,
	catalog domain.CatalogService,
	notifier domain.Notifier,
	eventBus domain.EventPublisher,
	scope models.SlotScope,
	ledgerTimeout, notifyTimeout time.Duration,
	logger *zerolog.Logger,
) *BookingService {
	if !scope.Valid() {
		scope = models.ScopeSalon
	}
	if ledgerTimeout <= 0 {
		ledgerTimeout = models.DefaultLedgerTimeout * time.Second
	}
	if notifyTimeout <= 0 {
		notifyTimeout = models.DefaultNotifyTimeout * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		ledger:        ledger,
		catalog:       catalog,
		notifier:      notifier,
		eventBus:      eventBus,
		scope:         scope,
		ledgerTimeout: ledgerTimeout,
		notifyTimeout: notifyTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// Scope reports which fields make up a SlotKey.
func (s *BookingService) Scope() models.SlotScope {
	return s.scope
}

// Submit resolves the request against the catalog and reserves it.
// The client price is replaced by the catalog price.
func (s *BookingService) Submit(ctx context.Context, req *models.BookingRequest) (*models.Reservation, error) {
	if req == nil {
		return nil, domain.InvalidField("request", "is empty")
	}
	req.Normalize()
	if err := s.validate(req); err != nil {
		s.reject(ctx, req, models.OutcomeRejectedInvalid, err)
		return nil, err
	}
	if err := s.resolve(ctx, req); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			s.reject(ctx, req, models.OutcomeRejectedInvalid, err)
		}
		return nil, err
	}
	return s.Reserve(ctx, req)
}

func (s *BookingService) resolve(ctx context.Context, req *models.BookingRequest) error {
	if s.catalog == nil {
		return nil
	}
	logger := logging.FromContext(ctx, s.logger)

	if req.MainService == "" {
		return domain.InvalidField("main_service", "is required")
	}
	catalog, err := s.catalog.ServiceCatalog(ctx)
	if err != nil {
		return fmt.Errorf("%w: load service catalog: %w", domain.ErrStorage, err)
	}
	price, ok := catalog.Price(req.MainService, req.SubService)
	if !ok {
		return domain.UnknownEntry("service", models.PriceKey(req.MainService, req.SubService))
	}
	if req.Price != price {
		logger.Warn().
			Int64("client_price", req.Price).
			Int64("catalog_price", price).
			Str("service", req.ServiceLabel()).
			Msg("client price overridden by catalog")
		req.Price = price
	}

	if req.Technician == "" {
		return nil
	}
	tech, err := s.catalog.FindTechnician(ctx, req.Technician)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("%w: load technicians: %w", domain.ErrStorage, err)
	}
	req.TechnicianChannelID = tech.NotifyChannelID
	return nil
}

// Reserve records the request if its slot is free, then notifies the customer
// and the technician. A notification failure does not undo the booking.
func (s *BookingService) Reserve(ctx context.Context, req *models.BookingRequest) (*models.Reservation, error) {
	started := s.now()
	defer func() { metrics.ObserveReservation(time.Since(started)) }()

	if req == nil {
		return nil, domain.InvalidField("request", "is empty")
	}
	req.Normalize()
	if err := s.validate(req); err != nil {
		s.reject(ctx, req, models.OutcomeRejectedInvalid, err)
		return nil, err
	}

	record := &models.BookingRecord{
		ID:             uuid.NewString(),
		SlotKey:        models.NewSlotKey(req, s.scope),
		BookingRequest: *req,
		AcceptedAt:     s.now().UTC(),
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = record.AcceptedAt
	}

	if err := s.append(ctx, record); err != nil {
		outcome := models.OutcomeStorageError
		if errors.Is(err, domain.ErrSlotConflict) {
			outcome = models.OutcomeRejectedConflict
		}
		s.reject(ctx, req, outcome, err)
		return nil, err
	}

	// The record is durable; the caller going away must not cut notifications short.
	notifyCtx := context.WithoutCancel(ctx)
	res := &models.Reservation{Record: record, Outcome: models.OutcomeAcceptedNotified}
	if err := s.notify(notifyCtx, record); err != nil {
		res.Outcome = models.OutcomeAcceptedNotificationFailed
		res.NotifyErr = err
	}

	metrics.IncReservation(string(res.Outcome))
	logging.FromContext(ctx, s.logger).Info().
		Str("booking_id", record.ID).
		Str("slot", record.SlotKey.String()).
		Str("outcome", string(res.Outcome)).
		Msg("booking accepted")

	s.publish(events.EventBookingCreated, record, string(res.Outcome), res.Notified())
	return res, nil
}

func (s *BookingService) append(ctx context.Context, record *models.BookingRecord) error {
	ledgerCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	err := s.ledger.AppendIfAbsent(ledgerCtx, record)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrSlotConflict):
		return err
	case errors.Is(err, domain.ErrStorage):
		return err
	default:
		// timeouts and lock failures surface as transient storage errors
		return fmt.Errorf("%w: %w", domain.ErrStorage, err)
	}
}

func (s *BookingService) notify(ctx context.Context, record *models.BookingRecord) error {
	if s.notifier == nil {
		return nil
	}
	var errs []error
	if record.CustomerChannelID != "" {
		if err := s.send(ctx, "customer", record.CustomerChannelID, CustomerConfirmation(record)); err != nil {
			errs = append(errs, fmt.Errorf("customer: %w", err))
		}
	}
	if record.TechnicianChannelID != "" {
		if err := s.send(ctx, "technician", record.TechnicianChannelID, TechnicianAlert(record)); err != nil {
			errs = append(errs, fmt.Errorf("technician %s: %w", record.Technician, err))
		}
	}
	return errors.Join(errs...)
}

func (s *BookingService) send(ctx context.Context, recipient, channelID, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	err := s.notifier.Send(sendCtx, channelID, text)
	metrics.IncNotification(recipient, err == nil)
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn().Err(err).Str("recipient", recipient).Msg("notification failed")
		if !errors.Is(err, domain.ErrNotifierUnreachable) {
			err = fmt.Errorf("%w: %w", domain.ErrNotifierUnreachable, err)
		}
	}
	return err
}

func (s *BookingService) validate(req *models.BookingRequest) error {
	if req.Date == "" {
		return domain.InvalidField("date", "is required")
	}
	d, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return domain.InvalidField("date", "must be YYYY-MM-DD")
	}
	if req.Time == "" {
		return domain.InvalidField("time", "is required")
	}
	t, err := time.Parse(models.TimeLayout, req.Time)
	if err != nil {
		return domain.InvalidField("time", "must be HH:MM")
	}
	// the slot key is built from these strings, so "9:00" must become "09:00"
	req.Date = d.Format(models.DateLayout)
	req.Time = t.Format(models.TimeLayout)
	if req.Price < 0 {
		return domain.InvalidField("price", "must not be negative")
	}
	if s.scope == models.ScopeTechnician && req.Technician == "" {
		return domain.InvalidField("technician", "is required")
	}
	return nil
}

func (s *BookingService) reject(ctx context.Context, req *models.BookingRequest, outcome string, err error) {
	metrics.IncReservation(outcome)
	logging.FromContext(ctx, s.logger).Info().
		Err(err).
		Str("date", req.Date).
		Str("time", req.Time).
		Str("technician", req.Technician).
		Str("outcome", outcome).
		Msg("booking rejected")

	s.publish(events.EventBookingRejected, &models.BookingRecord{
		SlotKey:        models.NewSlotKey(req, s.scope),
		BookingRequest: *req,
	}, outcome, false)
}

func (s *BookingService) publish(eventType string, record *models.BookingRecord, outcome string, notified bool) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:  record.ID,
		SlotKey:    record.SlotKey.String(),
		Date:       record.Date,
		Time:       record.Time,
		Technician: record.Technician,
		Service:    record.ServiceLabel(),
		Price:      record.Price,
		Customer:   record.CustomerName,
		Outcome:    outcome,
		Notified:   notified,
		AcceptedAt: record.AcceptedAt,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish booking event")
	}
}

// ListBookedSlots returns the distinct booked times of a date in ascending order.
// A non-empty technician narrows the result only in technician scope.
func (s *BookingService) ListBookedSlots(ctx context.Context, date, technician string) ([]string, error) {
	d, err := time.Parse(models.DateLayout, strings.TrimSpace(date))
	if err != nil {
		return nil, domain.InvalidField("date", "must be YYYY-MM-DD")
	}
	date = d.Format(models.DateLayout)
	technician = strings.TrimSpace(technician)
	if s.scope != models.ScopeTechnician {
		technician = ""
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	records, err := s.ledger.QueryByDate(queryCtx, date)
	if err != nil {
		return nil, wrapStorage(err)
	}

	seen := make(map[string]bool, len(records))
	slots := make([]string, 0, len(records))
	for _, r := range records {
		if technician != "" && r.Technician != technician {
			continue
		}
		if seen[r.Time] {
			continue
		}
		seen[r.Time] = true
		slots = append(slots, r.Time)
	}
	sort.Strings(slots)
	return slots, nil
}

// ListBookings returns accepted bookings between from and to inclusive.
func (s *BookingService) ListBookings(ctx context.Context, from, to string) ([]*models.BookingRecord, error) {
	if _, err := time.Parse(models.DateLayout, from); err != nil {
		return nil, domain.InvalidField("from", "must be YYYY-MM-DD")
	}
	if _, err := time.Parse(models.DateLayout, to); err != nil {
		return nil, domain.InvalidField("to", "must be YYYY-MM-DD")
	}
	if from > to {
		return nil, domain.InvalidField("from", "must not be after to")
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	records, err := s.ledger.QueryRange(queryCtx, from, to)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return records, nil
}

func wrapStorage(err error) error {
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}
