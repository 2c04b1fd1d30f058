package source

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

func TestNormalizeVariables(t *testing.T) {
	variables, err := NormalizeVariables([]string{" gdp ", "UNRATE", "gdp"})
	require.NoError(t, err)
	require.Equal(t, []string{"GDP", "UNRATE"}, variables)
}

func TestNormalizeVariablesEmptyList(t *testing.T) {
	_, err := NormalizeVariables(nil)
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestNormalizeVariablesInvalidCodes(t *testing.T) {
	_, err := NormalizeVariables([]string{"GDP", "  ", strings.Repeat("X", 51)})
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	typed, ok := apperrors.As(err)
	require.True(t, ok)
	_, ok = typed.ContextValue(apperrors.CtxActual)
	require.True(t, ok)
}

func TestValidateDateRange(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ValidateDateRange(start, end))
}

func TestValidateDateRangeRejectsReversed(t *testing.T) {
	start := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	err := ValidateDateRange(start, end)
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	// Equal dates are rejected too.
	err = ValidateDateRange(end, end)
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestValidateDateRangeRequiresBothDates(t *testing.T) {
	err := ValidateDateRange(time.Time{}, time.Now())
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestValidateDateRangeBounds(t *testing.T) {
	tooEarly := time.Date(1850, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	err := ValidateDateRange(tooEarly, end)
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	tooLate := time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
	err = ValidateDateRange(end, tooLate)
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestNewUnknownSource(t *testing.T) {
	_, err := New("bloomberg", Options{})
	require.True(t, apperrors.IsKind(err, apperrors.KindConfiguration))

	typed, ok := apperrors.As(err)
	require.True(t, ok)
	require.Contains(t, typed.Suggestion, "fred")
	require.Contains(t, typed.Suggestion, "haver")
}
