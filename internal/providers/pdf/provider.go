package pdf

import (
	"context"
	"io"
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) (io.Reader, error)
	GenerateTicket(ctx context.Context, data TicketData) (io.Reader, error)
}

type ReceiptItem struct {
	Description string
	Qty         int
	UnitPrice   string
	Amount      string
}

type ReceiptData struct {
	OrderID    string
	DatePaid   string
	Status     string
	BillToName string
	BillTo     string
	Items      []ReceiptItem
	Subtotal   string
	Shipping   string
	Total      string
}

type TicketData struct {
	RegistrationID string
	EventTitle     string
	Venue          string
	StartsAt       string
	HolderEmail    string
	Quantity       int
	AmountPaid     string
	Status         string
}
