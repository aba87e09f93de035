package bot

import (
	"context"
	"fmt"
	"strings"

	"salonbook/internal/domain"
	"salonbook/internal/models"
)

const (
	cmdStart       = "start"
	cmdHelp        = "help"
	cmdServices    = "services"
	cmdTechnicians = "technicians"
	cmdSlots       = "slots"
)

const helpText = `Available commands:
/services - price list
/technicians - our technicians
/slots YYYY-MM-DD [technician] - booked times for a day
/help - this message`

func (h *WebhookHandler) dispatch(ctx context.Context, chatID int64, command, args string) (string, error) {
	switch command {
	case cmdStart:
		return fmt.Sprintf("👋 Welcome to the salon booking bot!\nYour chat ID is %d.\n\n%s", chatID, helpText), nil
	case cmdHelp:
		return helpText, nil
	case cmdServices:
		return h.servicesText(ctx)
	case cmdTechnicians:
		return h.techniciansText(ctx)
	case cmdSlots:
		return h.slotsText(ctx, args)
	default:
		return "Unknown command. " + helpText, nil
	}
}

func (h *WebhookHandler) servicesText(ctx context.Context) (string, error) {
	services, err := h.catalog.ListServices(ctx)
	if err != nil {
		return "", err
	}
	if len(services) == 0 {
		return "The price list is empty.", nil
	}

	var b strings.Builder
	b.WriteString("💇 Services:\n")
	for _, svc := range services {
		label := (&models.BookingRequest{MainService: svc.MainName, SubService: svc.SubName}).ServiceLabel()
		fmt.Fprintf(&b, "• %s: %d baht\n", label, svc.Price)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (h *WebhookHandler) techniciansText(ctx context.Context) (string, error) {
	techs, err := h.catalog.ListTechnicians(ctx)
	if err != nil {
		return "", err
	}
	if len(techs) == 0 {
		return "No technicians are listed yet.", nil
	}
	var b strings.Builder
	b.WriteString("✂️ Technicians:\n")
	for _, t := range techs {
		fmt.Fprintf(&b, "• %s\n", t.Name)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (h *WebhookHandler) slotsText(ctx context.Context, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", domain.InvalidField("date", "is required")
	}
	date := fields[0]
	technician := strings.Join(fields[1:], " ")

	slots, err := h.bookings.ListBookedSlots(ctx, date, technician)
	if err != nil {
		return "", err
	}

	who := ""
	if technician != "" {
		who = " for " + technician
	}
	if len(slots) == 0 {
		return fmt.Sprintf("📅 %s%s: no bookings yet, every slot is free.", date, who), nil
	}
	return fmt.Sprintf("📅 %s%s booked times:\n%s", date, who, strings.Join(slots, ", ")), nil
}
