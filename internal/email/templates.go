package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/money"
)

const textBody = `Hi {{.Name}},

{{if .IsBuyer}}Your purchase of "{{.Title}}" is confirmed.{{else}}"{{.Title}}" has sold.{{end}}

Price: {{.Price}} {{.Currency}}
{{if .IsBuyer}}{{else}}Platform fee: {{.Fee}} {{.Currency}}
You receive: {{.Net}} {{.Currency}}
{{end}}
Funds are held in escrow until {{.Release}}.
Reference: {{.Reference}}
`

const htmlBody = `<p>Hi {{.Name}},</p>
{{if .IsBuyer}}<p>Your purchase of <strong>{{.Title}}</strong> is confirmed.</p>{{else}}<p><strong>{{.Title}}</strong> has sold.</p>{{end}}
<table>
<tr><td>Price</td><td>{{.Price}} {{.Currency}}</td></tr>
{{if not .IsBuyer}}<tr><td>Platform fee</td><td>{{.Fee}} {{.Currency}}</td></tr>
<tr><td>You receive</td><td>{{.Net}} {{.Currency}}</td></tr>{{end}}
</table>
<p>Funds are held in escrow until {{.Release}}.</p>
<p>Reference: {{.Reference}}</p>
`

var (
	textTmpl = texttemplate.Must(texttemplate.New("confirmation.txt").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("confirmation.html").Parse(htmlBody))
)

type confirmationView struct {
	Name      string
	IsBuyer   bool
	Title     string
	Price     string
	Fee       string
	Net       string
	Currency  string
	Release   string
	Reference string
}

type renderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

func renderConfirmation(to Recipient, data ConfirmationData) (renderedEmail, error) {
	if data.Party != PartyBuyer && data.Party != PartySeller {
		return renderedEmail{}, pkgerrors.New(pkgerrors.CodeEmailSend, "unknown confirmation party")
	}
	name := strings.TrimSpace(to.Name)
	if name == "" {
		name = "there"
	}
	view := confirmationView{
		Name:      name,
		IsBuyer:   data.Party == PartyBuyer,
		Title:     data.ListingTitle,
		Price:     money.Format(data.FinalPrice),
		Fee:       money.Format(data.PlatformFee),
		Net:       money.Format(data.SellerReceives),
		Currency:  strings.ToUpper(data.Currency),
		Release:   data.EscrowReleaseDate.UTC().Format("January 2, 2006"),
		Reference: data.TransactionID.String(),
	}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, view); err != nil {
		return renderedEmail{}, pkgerrors.Wrap(pkgerrors.CodeEmailSend, err, "render text body")
	}
	if err := htmlTmpl.Execute(&html, view); err != nil {
		return renderedEmail{}, pkgerrors.Wrap(pkgerrors.CodeEmailSend, err, "render html body")
	}

	subject := fmt.Sprintf("Purchase confirmed: %s", data.ListingTitle)
	if !view.IsBuyer {
		subject = fmt.Sprintf("Your item sold: %s", data.ListingTitle)
	}
	return renderedEmail{Subject: subject, Text: text.String(), HTML: html.String()}, nil
}
