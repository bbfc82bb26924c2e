package attendee

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ticketeer/internal/keyring"
	"ticketeer/internal/recordmap"
)

// NewSchema declares the attendee table for the record mapper. Every PII
// column carries a seal/unseal transform pair; this is the single place
// where attendee data crosses the encryption boundary.
func NewSchema(keys *keyring.Service) (*recordmap.Schema, error) {
	seal := sealTransform(keys)
	unseal := unsealTransform(keys)

	return recordmap.NewSchema("attendees", []recordmap.Field{
		{Name: "id", Default: func() any { return uuid.NewString() }},
		{Name: "eventId"},
		{Name: "name", Write: seal, Read: unseal},
		{Name: "email", Write: seal, Read: unseal},
		{Name: "phone", Nullable: true, Write: seal, Read: unseal},
		{Name: "paymentId", Nullable: true, Write: seal, Read: unseal},
		{Name: "pricePaid", Nullable: true, Write: seal, Read: unseal},
		{Name: "quantity", Default: func() any { return int64(1) }},
		// Stored as an encrypted boolean-as-string so even attendance is
		// unreadable without the key hierarchy.
		{Name: "checkedIn", Default: func() any { return "false" }, Write: seal, Read: unseal},
		{Name: "ticketToken", Default: func() any { return uuid.NewString() }},
		{Name: "created", Generated: true},
	})
}

func sealTransform(keys *keyring.Service) recordmap.Transform {
	return func(ctx context.Context, v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("seal: expected string, got %T", v)
		}
		return keys.Seal(ctx, s)
	}
}

func unsealTransform(keys *keyring.Service) recordmap.Transform {
	return func(ctx context.Context, v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unseal: expected string, got %T", v)
		}
		return keys.Unseal(ctx, s)
	}
}
