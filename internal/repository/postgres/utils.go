package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kirinyoku/rehearsal-go/internal/domain"
)

// wrapDBErr maps common DB errors to repository-level errors and wraps them with
// the provided operation name.
func wrapDBErr(op string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", op, translateDBErr(err))
}

func uuidPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}

func datePtr(v pgtype.Date) *string {
	if !v.Valid {
		return nil
	}
	s := v.Time.Format(domain.DateLayout)
	return &s
}

func dateParam(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(domain.DateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func bufferedEnd(b *domain.Booking) time.Time {
	return b.End.Add(time.Duration(b.BufferMinutes) * time.Minute)
}
