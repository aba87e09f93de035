package service

import (
	"fmt"
	"strings"

	"salonbook/internal/models"
)

// CustomerConfirmation is pushed to the customer after the slot is recorded.
func CustomerConfirmation(r *models.BookingRecord) string {
	var b strings.Builder
	b.WriteString("✅ Your hair appointment is confirmed!\n")
	fmt.Fprintf(&b, "Date: %s\n", r.Date)
	fmt.Fprintf(&b, "Time: %s\n", r.Time)
	fmt.Fprintf(&b, "Service: %s\n", r.ServiceLabel())
	if r.Technician != "" {
		fmt.Fprintf(&b, "Technician: %s\n", r.Technician)
	}
	fmt.Fprintf(&b, "Price: %d baht\n", r.Price)
	b.WriteString("Thank you for booking with us.")
	return b.String()
}

// TechnicianAlert is pushed to the technician's chat.
func TechnicianAlert(r *models.BookingRecord) string {
	var b strings.Builder
	b.WriteString("📢 New booking!\n")
	fmt.Fprintf(&b, "Date: %s\n", r.Date)
	fmt.Fprintf(&b, "Time: %s\n", r.Time)
	fmt.Fprintf(&b, "Customer: %s\n", r.CustomerName)
	fmt.Fprintf(&b, "Service: %s\n", r.ServiceLabel())
	fmt.Fprintf(&b, "Price: %d baht\n", r.Price)
	if r.Technician != "" {
		fmt.Fprintf(&b, "Technician: %s\n", r.Technician)
	}
	fmt.Fprintf(&b, "Phone: %s\n", dash(r.ContactPhone))
	fmt.Fprintf(&b, "Notes: %s", dash(r.Notes))
	return b.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
