package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

func (p *PDFProvider) GenerateTicket(ctx context.Context, ticket TicketData) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := newDocument()

	m.AddRow(20,
		text.NewCol(12, ticket.EventTitle, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	m.AddRow(15,
		text.NewCol(12, ticket.StartsAt, props.Text{Size: 12, Align: align.Center}),
	)
	if ticket.Venue != "" {
		m.AddRow(10,
			text.NewCol(12, ticket.Venue, props.Text{Size: 11, Align: align.Center}),
		)
	}

	m.AddRow(30,
		col.New(6).Add(
			text.New("Ticket holder", props.Text{Style: fontstyle.Bold}),
			text.New(ticket.HolderEmail, props.Text{Top: 5}),
			text.New(fmt.Sprintf("Admits: %d", ticket.Quantity), props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Registration", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(ticket.RegistrationID, props.Text{Top: 5, Align: align.Right}),
			text.New("Paid: "+ticket.AmountPaid, props.Text{Top: 10, Align: align.Right}),
			text.New("Status: "+ticket.Status, props.Text{Top: 15, Align: align.Right}),
		),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(doc.GetBytes()), nil
}
