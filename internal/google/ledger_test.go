package google

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"salonbook/internal/domain"
	"salonbook/internal/models"
	"salonbook/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("lock backend down")
}

func newTestLedger(t *testing.T, scope models.SlotScope) (*fakeSpreadsheet, *SheetsLedger) {
	t.Helper()
	fake, srv := newFakeSpreadsheet(t)
	fake.set(models.BookingSheetName, [][]interface{}{bookingHeaders})
	sheetsSvc := NewSheetsService(srv, sheetID, models.BookingSheetName)
	return fake, NewSheetsLedger(sheetsSvc, repository.NewMemorySlotLocker(), scope)
}

func keyed(r *models.BookingRecord, scope models.SlotScope) *models.BookingRecord {
	r.SlotKey = models.NewSlotKey(&r.BookingRequest, scope)
	return r
}

func TestSheetsLedger_AppendIfAbsent(t *testing.T) {
	ctx := context.Background()
	fake, ledger := newTestLedger(t, models.ScopeSalon)

	require.NoError(t, ledger.AppendIfAbsent(ctx, keyed(sampleRecord("b-1", "2025-04-01", "10:00"), models.ScopeSalon)))

	err := ledger.AppendIfAbsent(ctx, keyed(sampleRecord("b-2", "2025-04-01", "10:00"), models.ScopeSalon))
	assert.ErrorIs(t, err, domain.ErrSlotConflict)

	require.NoError(t, ledger.AppendIfAbsent(ctx, keyed(sampleRecord("b-3", "2025-04-01", "11:00"), models.ScopeSalon)))
	assert.Equal(t, int32(2), fake.appends.Load())
}

func TestSheetsLedger_LegacyRowsBlockSlots(t *testing.T) {
	ctx := context.Background()
	fake, ledger := newTestLedger(t, models.ScopeSalon)
	fake.set(models.BookingSheetName, [][]interface{}{
		bookingHeaders,
		{"2025-03-01T00:00:00.000Z", "2025-04-01", "10:00", "Cut", "", "B", "200", "Y"},
	})

	err := ledger.AppendIfAbsent(ctx, keyed(sampleRecord("b-1", "2025-04-01", "10:00"), models.ScopeSalon))
	assert.ErrorIs(t, err, domain.ErrSlotConflict)
}

func TestSheetsLedger_TechnicianScope(t *testing.T) {
	ctx := context.Background()
	_, ledger := newTestLedger(t, models.ScopeTechnician)

	a := sampleRecord("b-1", "2025-04-01", "10:00")
	b := sampleRecord("b-2", "2025-04-01", "10:00")
	b.Technician = "B"

	require.NoError(t, ledger.AppendIfAbsent(ctx, keyed(a, models.ScopeTechnician)))
	require.NoError(t, ledger.AppendIfAbsent(ctx, keyed(b, models.ScopeTechnician)))

	again := sampleRecord("b-3", "2025-04-01", "10:00")
	assert.ErrorIs(t, ledger.AppendIfAbsent(ctx, keyed(again, models.ScopeTechnician)), domain.ErrSlotConflict)
}

func TestSheetsLedger_Concurrent(t *testing.T) {
	ctx := context.Background()
	fake, ledger := newTestLedger(t, models.ScopeSalon)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := sampleRecord(fmt.Sprintf("b-%d", i), "2025-04-01", "10:00")
			errs <- ledger.AppendIfAbsent(ctx, keyed(r, models.ScopeSalon))
		}(i)
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, domain.ErrSlotConflict)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, int32(1), fake.appends.Load())
}

func TestSheetsLedger_StorageErrors(t *testing.T) {
	ctx := context.Background()
	fake, ledger := newTestLedger(t, models.ScopeSalon)

	fake.fail.Store(true)
	err := ledger.AppendIfAbsent(ctx, keyed(sampleRecord("b-1", "2025-04-01", "10:00"), models.ScopeSalon))
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = ledger.QueryByDate(ctx, "2025-04-01")
	assert.ErrorIs(t, err, domain.ErrStorage)
	fake.fail.Store(false)

	ledger.locker = failingLocker{}
	err = ledger.AppendIfAbsent(ctx, keyed(sampleRecord("b-1", "2025-04-01", "10:00"), models.ScopeSalon))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, int32(0), fake.appends.Load())
}

func TestSheetsLedger_Query(t *testing.T) {
	ctx := context.Background()
	_, ledger := newTestLedger(t, models.ScopeSalon)

	for _, r := range []*models.BookingRecord{
		sampleRecord("b-1", "2025-04-01", "14:00"),
		sampleRecord("b-2", "2025-04-01", "09:00"),
		sampleRecord("b-3", "2025-04-02", "10:00"),
	} {
		require.NoError(t, ledger.AppendIfAbsent(ctx, keyed(r, models.ScopeSalon)))
	}

	day, err := ledger.QueryByDate(ctx, "2025-04-01")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "09:00", day[0].Time)
	assert.Equal(t, "2025-04-01|09:00", day[0].SlotKey.String())

	all, err := ledger.QueryRange(ctx, "2025-04-01", "2025-04-30")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
