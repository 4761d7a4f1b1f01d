package deals

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	SuccessFeeRate    = 0.05
	PlatformShareRate = 0.80
	ProcessorFeeRate  = 0.029
	ProcessorFeeFixed = 0.30
	InvoiceDueDays    = 30
)

// Invoice is the success-fee bill for a deal in closing. It is computed on
// demand and never stored; every computation gets a new number.
type Invoice struct {
	Number           string    `json:"invoice_number"`
	DealID           ID        `json:"deal_id"`
	InvestmentAmount float64   `json:"investment_amount"`
	SuccessFeeRate   float64   `json:"success_fee_rate"`
	SuccessFee       float64   `json:"success_fee"`
	PlatformFee      float64   `json:"platform_fee"`
	ProcessorFee     float64   `json:"processor_fee"`
	TotalDue         float64   `json:"total_due"`
	IssueDate        time.Time `json:"issue_date"`
	DueDate          time.Time `json:"due_date"`
}

// ComputeInvoice bills the success fee for d. PlatformFee is the platform's
// share of the fee and is not added to TotalDue.
func ComputeInvoice(d *Deal, now time.Time) (*Invoice, error) {
	if d.Status != StatusClosing {
		return nil, fmt.Errorf("%w: deal is %s, invoices are issued in closing", ErrNotInvoiceable, d.Status)
	}
	fee := roundCents(d.Amount * SuccessFeeRate)
	processor := roundCents(fee*ProcessorFeeRate + ProcessorFeeFixed)
	return &Invoice{
		Number:           invoiceNumber(now),
		DealID:           d.ID,
		InvestmentAmount: d.Amount,
		SuccessFeeRate:   SuccessFeeRate,
		SuccessFee:       fee,
		PlatformFee:      roundCents(fee * PlatformShareRate),
		ProcessorFee:     processor,
		TotalDue:         roundCents(fee + processor),
		IssueDate:        now,
		DueDate:          now.AddDate(0, 0, InvoiceDueDays),
	}, nil
}

// AmountCents converts TotalDue to the smallest currency unit.
func (inv *Invoice) AmountCents() int64 {
	return int64(math.Round(inv.TotalDue * 100))
}

func invoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%s-%s", now.UTC().Format("20060102150405"), uuid.NewString()[:8])
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
