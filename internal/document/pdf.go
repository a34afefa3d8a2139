package document

import (
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

var (
	colorPrimary = &props.Color{Red: 24, Green: 64, Blue: 96}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// FormatCents renders cents as "USD 12.39".
func FormatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	amount := fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
	if currency = strings.TrimSpace(currency); currency == "" {
		return amount
	}
	return currency + " " + amount
}

func newDocument(title, author string) core.Maroto {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(12).WithRightMargin(12).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(title, true).
		WithAuthor(author, true).
		Build()
	return maroto.New(cfg)
}

func render(m core.Maroto) ([]byte, error) {
	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generate document: %w", err)
	}
	return doc.GetBytes(), nil
}

func titleRow(heading, subheading string) core.Row {
	return row.New(16).Add(
		col.New(12).Add(
			text.New(heading, props.Text{Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1}),
			text.New(subheading, props.Text{Size: 8, Top: 9, Color: colorGray}),
		),
	)
}

func labelValueRow(label, value string, bold bool) core.Row {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	return row.New(6).Add(
		col.New(6),
		col.New(3).Add(text.New(label, props.Text{Style: style, Align: align.Right, Right: 2})),
		col.New(3).Add(text.New(value, props.Text{Style: style, Align: align.Right})),
	)
}

// ReceiptPDF renders a sale receipt with one row per line and the tax and
// tender totals.
func ReceiptPDF(sale domain.Sale, settings domain.Settings) ([]byte, error) {
	m := newDocument("Receipt "+sale.ID, settings.StoreName)
	money := func(c int64) string { return FormatCents(c, settings.Currency) }

	m.AddRows(titleRow(settings.StoreName, fmt.Sprintf("Receipt %s | %s | Terminal %s | Cashier %s",
		sale.ID, sale.CreatedAt.UTC().Format("2006-01-02 15:04"), sale.TerminalID, sale.Cashier)))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))

	header := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{Style: fontstyle.Bold, Size: 8, Align: a, Top: 1}))
	}
	m.AddRows(row.New(7).Add(
		header("Item", 6, align.Left),
		header("Qty", 1, align.Center),
		header("Unit", 2, align.Right),
		header("Amount", 3, align.Right),
	))
	for _, l := range sale.Lines {
		m.AddRows(row.New(6).Add(
			col.New(6).Add(text.New(l.Name+" ("+l.SKU+")", props.Text{Size: 8})),
			col.New(1).Add(text.New(fmt.Sprintf("%d", l.Qty), props.Text{Size: 8, Align: align.Center})),
			col.New(2).Add(text.New(money(l.UnitPriceCents), props.Text{Size: 8, Align: align.Right})),
			col.New(3).Add(text.New(money(l.LineTotalCents), props.Text{Size: 8, Align: align.Right})),
		))
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(labelValueRow("Subtotal", money(sale.SubtotalCents), false))
	if sale.TaxCents > 0 || sale.TaxRatePercent > 0 {
		m.AddRows(labelValueRow(fmt.Sprintf("Tax (%g%%)", sale.TaxRatePercent), money(sale.TaxCents), false))
	}
	m.AddRows(labelValueRow("Total", money(sale.TotalCents), true))
	m.AddRows(labelValueRow("Paid by", sale.PaymentMethod, false))
	if sale.PaymentMethod == domain.PaymentCash {
		m.AddRows(labelValueRow("Tendered", money(sale.TenderedCents), false))
		m.AddRows(labelValueRow("Change", money(sale.ChangeCents), false))
	} else if sale.PaymentReference != "" {
		m.AddRows(labelValueRow("Reference", sale.PaymentReference, false))
	}
	if footer := strings.TrimSpace(settings.ReceiptFooter); footer != "" {
		m.AddRows(line.NewRow(4))
		m.AddRows(row.New(8).Add(col.New(12).Add(
			text.New(footer, props.Text{Size: 8, Align: align.Center, Color: colorGray}),
		)))
	}
	return render(m)
}

// PayslipPDF renders the earnings and deductions of one payroll item.
func PayslipPDF(run domain.PayrollRun, item domain.PayrollItem, settings domain.Settings) ([]byte, error) {
	m := newDocument("Payslip "+item.EmployeeName, settings.StoreName)
	money := func(c int64) string { return FormatCents(c, settings.Currency) }

	period := run.PeriodStart.Format("2006-01-02") + " to " + run.PeriodEnd.Format("2006-01-02")
	m.AddRows(titleRow(settings.StoreName+" payslip", fmt.Sprintf("%s (%s) | Period %s | Run %s | %s",
		item.EmployeeName, item.EmployeeID, period, run.ID, run.Status)))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))

	section := func(label string) core.Row {
		return row.New(8).Add(col.New(12).Add(
			text.New(label, props.Text{Style: fontstyle.Bold, Size: 9, Color: colorPrimary, Top: 2}),
		))
	}

	m.AddRows(section("Earnings"))
	m.AddRows(labelValueRow("Base salary", money(item.BaseSalaryCents), false))
	m.AddRows(labelValueRow("Allowances", money(item.AllowancesCents), false))
	m.AddRows(labelValueRow(fmt.Sprintf("Overtime (%gh @ %s)", item.OvertimeHours, money(item.OvertimeRateCents)),
		money(item.OvertimePayCents), false))
	m.AddRows(labelValueRow("Bonus", money(item.BonusCents), false))
	m.AddRows(labelValueRow(fmt.Sprintf("No pay (%g of %d days)", item.AbsentDays, item.DivisorDays),
		money(-item.NoPayCents), false))
	m.AddRows(labelValueRow("Gross", money(item.GrossCents), true))

	m.AddRows(section("Deductions"))
	m.AddRows(labelValueRow("Recurring", money(item.RecurringDeductionsCents), false))
	for _, loan := range item.Loans {
		m.AddRows(labelValueRow("Loan "+loan.LoanID, money(loan.AmountCents), false))
	}
	m.AddRows(labelValueRow("Ad hoc", money(item.AdHocDeductionsCents), false))
	m.AddRows(labelValueRow("Total deductions", money(item.TotalDeductionsCents), true))

	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(labelValueRow("Net pay", money(item.NetCents), true))
	return render(m)
}
