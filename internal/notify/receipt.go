package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/jumpindia/funzone-pos/internal/domain"
)

const receiptTemplate = `<div style="font-family: Arial, sans-serif; max-width: 400px; margin: auto; border: 1px solid #eee; padding: 20px;">
  <div style="text-align: center; margin-bottom: 20px;">
    <h2 style="margin: 0;">Jump India Fun Zone</h2>
    <p style="margin: 0;">Mumbai, India</p>
  </div>
  <hr style="border: none; border-top: 1px dashed #ccc;" />
  <p><strong>Receipt No:</strong> {{.ReceiptNo}}</p>
  <p><strong>Date:</strong> {{.Date}}</p>
  <p><strong>Customer:</strong> {{.CustomerName}}</p>
  <hr style="border: none; border-top: 1px dashed #ccc;" />
  <table style="width: 100%;">
    <thead>
      <tr>
        <th style="text-align: left;">Item</th>
        <th style="text-align: right;">Price</th>
      </tr>
    </thead>
    <tbody>
      {{- range .Items}}
      <tr>
        <td style="padding: 5px;">{{.Name}}</td>
        <td style="padding: 5px; text-align: right;">&#8377;{{printf "%.2f" .Price}}</td>
      </tr>
      {{- end}}
    </tbody>
  </table>
  <hr style="border: none; border-top: 1px dashed #ccc;" />
  <p><strong>Subtotal:</strong> &#8377;{{printf "%.2f" .Subtotal}}</p>
  <p><strong>Discount:</strong> - &#8377;{{printf "%.2f" .DiscountAmount}}</p>
  <p><strong>GST (18%):</strong> &#8377;{{printf "%.2f" .GSTAmount}}</p>
  <hr style="border: none; border-top: 1px dashed #ccc;" />
  <h3 style="text-align: right;">Total: &#8377;{{printf "%.2f" .Total}}</h3>
  <hr style="border: none; border-top: 1px dashed #ccc;" />
  <p><strong>Payment Method:</strong> {{.PaymentMethod}}</p>
  <div style="text-align: center; margin-top: 20px;">
    <p>Thank you for visiting!</p>
  </div>
</div>
`

var receiptTmpl = template.Must(template.New("receipt").Parse(receiptTemplate))

type receiptData struct {
	ReceiptNo      string
	Date           string
	CustomerName   string
	Items          []domain.CartEntry
	Subtotal       float64
	DiscountAmount float64
	GSTAmount      float64
	Total          float64
	PaymentMethod  domain.PaymentMethod
}

// ReceiptNo is the short human-facing receipt number: the last six hex
// characters of the sale id.
func ReceiptNo(sale domain.Sale) string {
	s := strings.ReplaceAll(sale.ID.String(), "-", "")
	return s[len(s)-6:]
}

// RenderReceiptText produces the plain-text receipt used for SMS
// delivery, where the HTML body cannot be sent.
func RenderReceiptText(sale domain.Sale) string {
	var b strings.Builder
	b.WriteString("Thank you for your purchase at Jump India!\n")
	fmt.Fprintf(&b, "Receipt No: %s\n", ReceiptNo(sale))
	fmt.Fprintf(&b, "Date: %s\n", sale.Date.Format("02/01/2006"))
	b.WriteString("--------------------\n")
	for _, item := range sale.Items {
		fmt.Fprintf(&b, "%s - ₹%.2f\n", item.Name, item.Price)
	}
	b.WriteString("--------------------\n")
	fmt.Fprintf(&b, "Subtotal: ₹%.2f\n", sale.Subtotal)
	fmt.Fprintf(&b, "Discount: -₹%.2f\n", sale.DiscountAmount)
	fmt.Fprintf(&b, "GST (18%%): ₹%.2f\n", sale.GSTAmount)
	fmt.Fprintf(&b, "Total: ₹%.2f\n", sale.Total)
	fmt.Fprintf(&b, "Payment: %s", sale.PaymentMethod)
	return b.String()
}

// RenderReceipt produces the HTML receipt body for a completed sale.
func RenderReceipt(sale domain.Sale) (string, error) {
	var buf bytes.Buffer
	err := receiptTmpl.Execute(&buf, receiptData{
		ReceiptNo:      ReceiptNo(sale),
		Date:           sale.Date.Format("02/01/2006 15:04"),
		CustomerName:   sale.CustomerName,
		Items:          sale.Items,
		Subtotal:       sale.Subtotal,
		DiscountAmount: sale.DiscountAmount,
		GSTAmount:      sale.GSTAmount,
		Total:          sale.Total,
		PaymentMethod:  sale.PaymentMethod,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
