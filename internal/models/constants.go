package models

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

// Sheet names used by the original salon spreadsheet.
const (
	BookingSheetName    = "Hair_Salon_Bookings"
	TechnicianSheetName = "Technicians"
	ServiceSheetName    = "Services"
)

const (
	// DefaultLedgerTimeout ограничивает одну операцию с журналом бронирований, секунды
	DefaultLedgerTimeout = 10

	// DefaultNotifyTimeout ограничивает отправку одного сообщения, секунды
	DefaultNotifyTimeout = 5

	// SlotLockTTL время жизни блокировки слота в Redis, секунды
	SlotLockTTL = 30

	// CatalogCacheTTL время жизни кэша каталога услуг и мастеров, секунды
	CatalogCacheTTL = 5 * 60

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60 // 1 минута в секундах
)

// Sync task states.
const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusRetry      = "retry"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)
