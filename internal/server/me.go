package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	eventdomain "github.com/smallbiznis/frostclub/internal/event/domain"
	orderdomain "github.com/smallbiznis/frostclub/internal/order/domain"
	"github.com/smallbiznis/frostclub/internal/providers/pdf"
	"github.com/smallbiznis/frostclub/internal/tier"
)

const (
	pdfContentType  = "application/pdf"
	documentDateFmt = "2006-01-02"
)

func (s *Server) GetMe(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": profile})
}

func (s *Server) ListMyOrders(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	orders, err := s.orderSvc.ListByUser(c.Request.Context(), profile.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": orders})
}

func (s *Server) ListMyBookings(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	bookings, err := s.bookingSvc.ListByUser(c.Request.Context(), profile.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bookings})
}

func (s *Server) ListMyRegistrations(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	registrations, err := s.eventSvc.ListRegistrationsByUser(c.Request.Context(), profile.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": registrations})
}

// DownloadOrderReceipt renders a PDF receipt for one of the caller's paid orders.
// Orders owned by someone else are reported as missing.
func (s *Server) DownloadOrderReceipt(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	order, err := s.orderSvc.Get(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order.UserID != profile.ID {
		AbortWithError(c, ErrNotFound)
		return
	}
	if order.Status != orderdomain.StatusProcessing && order.Status != orderdomain.StatusCompleted {
		AbortWithError(c, ErrDocumentUnavailable)
		return
	}

	items := make([]pdf.ReceiptItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, pdf.ReceiptItem{
			Description: item.Name,
			Qty:         item.Quantity,
			UnitPrice:   formatMoney(item.UnitPrice, order.Currency),
			Amount:      formatMoney(item.Amount(), order.Currency),
		})
	}
	data := pdf.ReceiptData{
		OrderID:  order.ID.String(),
		DatePaid: order.UpdatedAt.UTC().Format(documentDateFmt),
		Status:   string(order.Status),
		BillTo:   order.Email,
		Items:    items,
		Subtotal: formatMoney(order.Subtotal, order.Currency),
		Shipping: formatMoney(order.Shipping, order.Currency),
		Total:    formatMoney(order.Total, order.Currency),
	}
	if profile.FullName != nil {
		data.BillToName = *profile.FullName
	}

	doc, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.writePDF(c, "receipt-"+data.OrderID+".pdf", doc)
}

// DownloadRegistrationTicket renders a PDF ticket for a confirmed registration.
func (s *Server) DownloadRegistrationTicket(c *gin.Context) {
	profile, ok := profileFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	ctx := c.Request.Context()
	registration, err := s.eventSvc.GetRegistration(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if registration.UserID != profile.ID {
		AbortWithError(c, ErrNotFound)
		return
	}
	if registration.Status != eventdomain.RegistrationConfirmed {
		AbortWithError(c, ErrDocumentUnavailable)
		return
	}

	// the holder keeps the ticket even if their tier later drops
	event, err := s.eventSvc.Get(ctx, registration.EventID.String(), tier.AvalancheBackstage)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := pdf.TicketData{
		RegistrationID: registration.ID.String(),
		EventTitle:     event.Title,
		StartsAt:       event.StartsAt.UTC().Format("2006-01-02 15:04 MST"),
		HolderEmail:    registration.Email,
		Quantity:       registration.Quantity,
		AmountPaid:     formatMoney(registration.Amount, registration.Currency),
		Status:         string(registration.Status),
	}
	if event.Venue != nil {
		data.Venue = *event.Venue
	}

	doc, err := s.pdf.GenerateTicket(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.writePDF(c, "ticket-"+data.RegistrationID+".pdf", doc)
}

func (s *Server) writePDF(c *gin.Context, filename string, doc io.Reader) {
	raw, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, pdfContentType, raw)
}

// formatMoney renders minor units as "12.34 USD".
func formatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, strings.ToUpper(currency))
}
