package circulation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRA-backend/internal/platform/db"
)

func TestSettingsFromConfig(t *testing.T) {
	s, err := SettingsFromConfig(db.LibraryConfig{
		LoanLengthDays: 21,
		RenewLimit:     2,
		DailyFine:      "0.25",
		Currency:       db.CurrencyConfig{Symbol: "€", After: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 21, s.DefaultLoanLengthDays)
	assert.Equal(t, 2, s.RenewalLimit)
	assert.Equal(t, "0.25", s.DailyFineRate.String())
	assert.Equal(t, Currency{Symbol: "€", After: true}, s.Currency)

	s, err = SettingsFromConfig(db.LibraryConfig{DailyFine: "0.100"})
	require.NoError(t, err, "trailing zeros are still whole cents")
	assert.Equal(t, "0.1", s.DailyFineRate.String())

	s, err = SettingsFromConfig(db.LibraryConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	bad := []db.LibraryConfig{
		{LoanLengthDays: -1},
		{RenewLimit: -1},
		{DailyFine: "a lot"},
		{DailyFine: "-0.10"},
		{DailyFine: "0.125"},
	}
	for _, c := range bad {
		_, err := SettingsFromConfig(c)
		assert.Error(t, err, "%+v", c)
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlock := k.Lock("item", "", "member", "item")
	assert.Len(t, k.locks, 2)

	acquired, released := make(chan struct{}), make(chan struct{})
	go func() {
		u := k.Lock("member")
		close(acquired)
		u()
		close(released)
	}()
	select {
	case <-acquired:
		t.Fatal("member lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired
	<-released

	// other keys never block each other
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			k.Lock(key)()
		}(key)
	}
	wg.Wait()

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks, "released keys are forgotten")
}
