package attendee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticketeer/internal/audit"
	"ticketeer/internal/crypto"
	"ticketeer/internal/event"
	"ticketeer/internal/keyring"
	"ticketeer/internal/platform/metrics"
	"ticketeer/internal/recordmap"
	dErrors "ticketeer/pkg/domain-errors"
	"ticketeer/pkg/platform/sentinel"
)

// Local sentinels so the guard can abort its transaction while the service
// maps the cause onto a tagged result.
var (
	errCapacity = errors.New("capacity exceeded")
	errSeal     = errors.New("seal failed")
)

// Service is the atomic registration engine. Its only side effect is the
// attendee row: payment-provider interaction belongs to callers.
type Service struct {
	events  event.Store
	mapper  *recordmap.Mapper
	guard   CapacityGuard
	keys    *keyring.Service
	auditor audit.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures optional collaborators.
type Option func(*Service)

func WithAudit(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.auditor = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(events event.Store, mapper *recordmap.Mapper, guard CapacityGuard, keys *keyring.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		events:  events,
		mapper:  mapper,
		guard:   guard,
		keys:    keys,
		auditor: audit.NopPublisher{},
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Register creates one attendee if the event has room. The capacity check
// and the insert run as one serialized unit per event; sealing happens
// inside that unit but strictly before the row is committed, so a committed
// row is always fully sealed.
func (s *Service) Register(ctx context.Context, params Params) (Result, error) {
	if err := validate(params); err != nil {
		return Result{}, err
	}

	// Setup incomplete is detectable before any write.
	if _, err := s.keys.PublicKey(ctx); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.countEncryptionFailure()
			return Result{Reason: ReasonEncryptionError}, nil
		}
		return Result{}, fmt.Errorf("load public key: %w", err)
	}

	e, err := s.events.FindByID(ctx, params.EventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return Result{}, err
	}
	if !e.Active {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "event is not open for registration")
	}

	var created recordmap.Values
	err = s.guard.WithEventLock(ctx, params.EventID, func(ctx context.Context, maxAttendees, booked int) error {
		if booked+params.Quantity > maxAttendees {
			return errCapacity
		}
		record, err := s.mapper.Insert(ctx, insertValues(params))
		if err != nil {
			// Keys can become unavailable mid-flight; that aborts the unit
			// before anything commits.
			if isSealFailure(err) {
				return fmt.Errorf("%w: %w", errSeal, err)
			}
			return err
		}
		created = record
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errCapacity):
		s.countCapacityRejection()
		s.auditor.Emit(ctx, audit.Event{Action: audit.ActionCapacityRejected, Subject: e.Slug})
		return Result{Reason: ReasonCapacityExceeded}, nil
	case errors.Is(err, errSeal):
		s.countEncryptionFailure()
		s.logger.ErrorContext(ctx, "registration seal failed", "event", e.Slug, "error", err)
		return Result{Reason: ReasonEncryptionError}, nil
	default:
		return Result{}, err
	}

	att := fromValues(created)
	if s.metrics != nil {
		s.metrics.RegistrationsCreated.Inc()
	}
	s.auditor.Emit(ctx, audit.Event{
		Action:  audit.ActionRegistrationCreated,
		Subject: e.Slug,
		Detail:  att.ID,
	})
	return Result{Attendee: att}, nil
}

// ListByEvent returns decrypted attendees for an event. The caller's
// context must carry a request data key or the read transforms fail.
func (s *Service) ListByEvent(ctx context.Context, eventID string) ([]*Attendee, error) {
	records, err := s.mapper.FindAll(ctx, recordmap.Values{"eventId": eventID})
	if err != nil {
		return nil, err
	}
	out := make([]*Attendee, 0, len(records))
	for _, record := range records {
		out = append(out, fromValues(record))
	}
	return out, nil
}

// FindByTicketToken resolves an attendee by the opaque ticket token.
func (s *Service) FindByTicketToken(ctx context.Context, token string) (*Attendee, error) {
	records, err := s.mapper.FindAll(ctx, recordmap.Values{"ticketToken": token})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return fromValues(records[0]), nil
}

// CheckIn flips the encrypted checked-in flag. Returns the attendee and
// whether this call performed the flip (false on a repeat scan). The
// read-then-flip runs under the event lock so two simultaneous scans of the
// same ticket cannot both claim the flip.
func (s *Service) CheckIn(ctx context.Context, ticketToken string) (*Attendee, bool, error) {
	att, err := s.FindByTicketToken(ctx, ticketToken)
	if err != nil {
		return nil, false, err
	}

	var flipped bool
	err = s.guard.WithEventLock(ctx, att.EventID, func(ctx context.Context, _, _ int) error {
		current, err := s.FindByTicketToken(ctx, ticketToken)
		if err != nil {
			return err
		}
		if current.CheckedIn {
			att = current
			return nil
		}
		record, err := s.mapper.Update(ctx, current.ID, recordmap.Values{"checkedIn": "true"})
		if err != nil {
			return err
		}
		if record == nil {
			return sentinel.ErrNotFound
		}
		att = fromValues(record)
		flipped = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if flipped {
		s.auditor.Emit(ctx, audit.Event{Action: audit.ActionAttendeeCheckedIn, Detail: att.ID})
	}
	return att, flipped, nil
}

func validate(params Params) error {
	switch {
	case params.EventID == "":
		return dErrors.New(dErrors.CodeInvalidInput, "event id is required")
	case params.Name == "":
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	case params.Email == "":
		return dErrors.New(dErrors.CodeInvalidInput, "email is required")
	case params.Quantity < 1:
		return dErrors.New(dErrors.CodeInvalidInput, "quantity must be at least 1")
	}
	return nil
}

func insertValues(params Params) recordmap.Values {
	values := recordmap.Values{
		"eventId":   params.EventID,
		"name":      params.Name,
		"email":     params.Email,
		"quantity":  int64(params.Quantity),
		"phone":     optional(params.Phone),
		"paymentId": optional(params.PaymentID),
		"pricePaid": optional(params.PricePaid),
	}
	return values
}

func optional(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromValues(record recordmap.Values) *Attendee {
	att := &Attendee{
		ID:          str(record["id"]),
		EventID:     str(record["eventId"]),
		Name:        str(record["name"]),
		Email:       str(record["email"]),
		Phone:       strPtr(record["phone"]),
		PaymentID:   strPtr(record["paymentId"]),
		PricePaid:   strPtr(record["pricePaid"]),
		CheckedIn:   str(record["checkedIn"]) == "true",
		TicketToken: str(record["ticketToken"]),
	}
	if q, ok := record["quantity"].(int64); ok {
		att.Quantity = int(q)
	}
	if created, ok := record["created"].(time.Time); ok {
		att.Created = created
	}
	return att
}

func (s *Service) countCapacityRejection() {
	if s.metrics != nil {
		s.metrics.CapacityRejections.Inc()
	}
}

func (s *Service) countEncryptionFailure() {
	if s.metrics != nil {
		s.metrics.EncryptionFailures.Inc()
	}
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func strPtr(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func isSealFailure(err error) bool {
	// Keys vanishing mid-flight surfaces as not-found from the key store;
	// anything else from the crypto layer is equally a seal failure.
	return errors.Is(err, sentinel.ErrNotFound) ||
		errors.Is(err, crypto.ErrSeal) ||
		errors.Is(err, crypto.ErrUnseal) ||
		errors.Is(err, crypto.ErrMalformedToken)
}
