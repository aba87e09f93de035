package database

import (
	"context"
	"testing"
	"time"

	"salonbook/internal/domain"
	"salonbook/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(date, tm, technician string) *models.BookingRecord {
	req := models.BookingRequest{
		Date:         date,
		Time:         tm,
		Technician:   technician,
		MainService:  "Cut",
		SubService:   "Wash",
		Price:        300,
		CustomerName: "X",
		ContactPhone: "0800000000",
		SubmittedAt:  time.Now(),
	}
	return &models.BookingRecord{
		ID:             uuid.NewString(),
		SlotKey:        models.NewSlotKey(&req, models.ScopeSalon),
		BookingRequest: req,
		AcceptedAt:     time.Now(),
	}
}

func TestLedger_AppendIfAbsent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ledger := NewLedger(db)
	ctx := context.Background()

	first := testRecord("2025-04-01", "10:00", "A")
	require.NoError(t, ledger.AppendIfAbsent(ctx, first))

	t.Run("SameSlotConflicts", func(t *testing.T) {
		err := ledger.AppendIfAbsent(ctx, testRecord("2025-04-01", "10:00", "B"))
		assert.ErrorIs(t, err, domain.ErrSlotConflict)
	})

	t.Run("RetryOfAcceptedConflicts", func(t *testing.T) {
		retry := *first
		retry.ID = uuid.NewString()
		assert.ErrorIs(t, ledger.AppendIfAbsent(ctx, &retry), domain.ErrSlotConflict)
	})

	t.Run("OtherTimeAccepted", func(t *testing.T) {
		assert.NoError(t, ledger.AppendIfAbsent(ctx, testRecord("2025-04-01", "11:00", "A")))
	})

	t.Run("TechnicianScopeKeysAreIndependent", func(t *testing.T) {
		a := testRecord("2025-04-02", "10:00", "A")
		a.SlotKey = models.NewSlotKey(&a.BookingRequest, models.ScopeTechnician)
		b := testRecord("2025-04-02", "10:00", "B")
		b.SlotKey = models.NewSlotKey(&b.BookingRequest, models.ScopeTechnician)

		require.NoError(t, ledger.AppendIfAbsent(ctx, a))
		require.NoError(t, ledger.AppendIfAbsent(ctx, b))

		records, err := ledger.QueryByDate(ctx, "2025-04-02")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "2025-04-02|10:00|A", records[0].SlotKey.String())
	})
}

func TestLedger_Query(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ledger := NewLedger(db)
	ctx := context.Background()

	for _, r := range []*models.BookingRecord{
		testRecord("2025-04-01", "14:00", "A"),
		testRecord("2025-04-01", "09:30", "A"),
		testRecord("2025-04-03", "10:00", "A"),
		testRecord("2025-05-01", "10:00", "A"),
	} {
		require.NoError(t, ledger.AppendIfAbsent(ctx, r))
	}

	day, err := ledger.QueryByDate(ctx, "2025-04-01")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "09:30", day[0].Time)
	assert.Equal(t, "14:00", day[1].Time)
	assert.Equal(t, int64(300), day[0].Price)
	assert.Equal(t, "Cut", day[0].MainService)
	assert.Equal(t, "2025-04-01|09:30", day[0].SlotKey.String())
	assert.False(t, day[0].AcceptedAt.IsZero())

	empty, err := ledger.QueryByDate(ctx, "2025-04-02")
	require.NoError(t, err)
	assert.Empty(t, empty)

	april, err := ledger.QueryRange(ctx, "2025-04-01", "2025-04-30")
	require.NoError(t, err)
	assert.Len(t, april, 3)

	got, err := ledger.GetByID(ctx, day[0].ID)
	require.NoError(t, err)
	assert.Equal(t, day[0].ID, got.ID)

	_, err = ledger.GetByID(ctx, "missing")
	assert.Error(t, err)
}

func TestLedger_StorageErrors(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	db.Close()

	ctx := context.Background()
	assert.ErrorIs(t, ledger.AppendIfAbsent(ctx, testRecord("2025-04-01", "10:00", "")), domain.ErrStorage)

	_, err := ledger.QueryByDate(ctx, "2025-04-01")
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestLedger_CanceledContext(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ledger := NewLedger(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ledger.AppendIfAbsent(ctx, testRecord("2025-04-01", "10:00", ""))
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.NotErrorIs(t, err, domain.ErrSlotConflict)
}
