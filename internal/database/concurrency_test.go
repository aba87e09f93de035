package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"salonbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBooking(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ledger := NewLedger(db)

	ctx := context.Background()

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			record := testRecord("2025-04-01", "10:00", "A")
			record.CustomerName = fmt.Sprintf("Customer %d", id)
			results <- ledger.AppendIfAbsent(ctx, record)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, domain.ErrSlotConflict):
			conflictCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "Only one booking should win the slot")
	assert.Equal(t, numGoroutines-1, conflictCount, "All other bookings should conflict")

	records, err := ledger.QueryByDate(ctx, "2025-04-01")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestConcurrentBooking_DistinctSlots(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ledger := NewLedger(db)

	ctx := context.Background()
	times := []string{"09:00", "10:00", "11:00", "12:00", "13:00"}

	var wg sync.WaitGroup
	errs := make(chan error, len(times))
	for _, tm := range times {
		wg.Add(1)
		go func(tm string) {
			defer wg.Done()
			errs <- ledger.AppendIfAbsent(ctx, testRecord("2025-04-01", tm, ""))
		}(tm)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	records, err := ledger.QueryByDate(ctx, "2025-04-01")
	require.NoError(t, err)
	assert.Len(t, records, len(times))
}
