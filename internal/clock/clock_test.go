package clock_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/denisvmedia/dedupfs/internal/clock"
)

func TestCoerceUTC_AlreadyUTC(t *testing.T) {
	c := qt.New(t)

	now := time.Now().UTC()
	c.Assert(clock.CoerceUTC(now), qt.Equals, now)
}

func TestCoerceUTC_NaiveLocal(t *testing.T) {
	c := qt.New(t)

	loc := time.FixedZone("TEST", 3*3600)
	naive := time.Date(2026, 1, 2, 3, 4, 5, 0, loc)

	got := clock.CoerceUTC(naive)

	c.Assert(got.Location(), qt.Equals, time.UTC)
	c.Assert(got.Hour(), qt.Equals, 3)
	c.Assert(got.Year(), qt.Equals, 2026)
}

func TestReal_ReturnsUTC(t *testing.T) {
	c := qt.New(t)

	got := clock.Real().Now()

	c.Assert(got.Location(), qt.Equals, time.UTC)
}
