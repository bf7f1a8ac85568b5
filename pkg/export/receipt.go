package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Receipt holds the fields rendered onto a payment receipt.
type Receipt struct {
	ReceiptNo   string
	StudentName string
	MonthKey    string
	DueAmount   float64
	AmountPaid  float64
	PaymentDate string
	Footer      string
}

// ReceiptExporter renders payment receipts as PDF documents.
type ReceiptExporter struct{}

// NewReceiptExporter constructs a receipt exporter.
func NewReceiptExporter() *ReceiptExporter {
	return &ReceiptExporter{}
}

// Render produces a single-page PDF receipt.
func (e *ReceiptExporter) Render(r Receipt) ([]byte, error) {
	if r.StudentName == "" || r.MonthKey == "" {
		return nil, fmt.Errorf("receipt requires student name and month")
	}

	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"Receipt No.", r.ReceiptNo},
		{"Student", r.StudentName},
		{"Billing Month", r.MonthKey},
		{"Amount Due", fmt.Sprintf("%.2f", r.DueAmount)},
		{"Amount Paid", fmt.Sprintf("%.2f", r.AmountPaid)},
		{"Payment Date", r.PaymentDate},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, row[1], "1", 1, "", false, 0, "")
	}

	if r.Footer != "" {
		pdf.Ln(8)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, r.Footer, "", "C", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
