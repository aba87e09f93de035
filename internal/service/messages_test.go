package service

import (
	"testing"

	"salonbook/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestMessages(t *testing.T) {
	record := &models.BookingRecord{BookingRequest: *scenarioRequest()}
	record.ContactPhone = "0812345678"

	customer := CustomerConfirmation(record)
	assert.Contains(t, customer, "Date: 2025-04-01")
	assert.Contains(t, customer, "Time: 10:00")
	assert.Contains(t, customer, "Service: Cut + Wash")
	assert.Contains(t, customer, "Technician: A")
	assert.Contains(t, customer, "Price: 300 baht")

	alert := TechnicianAlert(record)
	assert.Contains(t, alert, "Customer: X")
	assert.Contains(t, alert, "Phone: 0812345678")
	assert.Contains(t, alert, "Notes: -")
}
