package validation

import (
	"testing"
	"time"

	"github.com/kirinyoku/rehearsal-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	Owner int64     `json:"owner_id" validate:"required,gt=0"`
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
	Weeks int       `json:"weeks" validate:"min=1,max=52"`
	Note  string    `json:"note" validate:"max=5"`
}

func TestStruct(t *testing.T) {
	v := New()
	start := time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)

	assert.NoError(t, v.Struct(window{Owner: 1, Start: start, End: start.Add(time.Hour), Weeks: 4}))

	err := v.Struct(window{Start: start, End: start, Weeks: 60, Note: "too long"})
	var verrs domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	byField := map[string]string{}
	for _, e := range verrs {
		byField[e.Field] = e.Reason
	}
	assert.Equal(t, map[string]string{
		"owner_id": "is required",
		"end":      "must be after start",
		"weeks":    "must be at most 52",
		"note":     "must be at most 5 characters",
	}, byField)
}
