package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/lakshan9910/studio-sub000/internal/domain"
)

var ErrInvalidSheet = errors.New("invalid spreadsheet")

// ProductRow is one variant line read from an import sheet. Rows sharing a
// product name (case-insensitive) belong to the same product.
type ProductRow struct {
	Row         int
	ProductName string
	Category    string
	Description string
	Variant     domain.VariantInput
}

var headerAliases = map[string]string{
	"name":         "name",
	"product":      "name",
	"product_name": "name",
	"category":     "category",
	"category_id":  "category",
	"description":  "description",
	"sku":          "sku",
	"variant":      "variant",
	"variant_name": "variant",
	"barcode":      "barcode",
	"price":        "price",
	"unit_price":   "price",
	"cost":         "cost",
	"unit_cost":    "cost",
	"stock":        "stock",
	"qty":          "stock",
}

// ParseProductSheet reads the first sheet of an XLSX workbook. The first row
// must be a header naming at least the name, sku and price columns. Rows that
// cannot be parsed are reported as problems and skipped.
func ParseProductSheet(r io.Reader) ([]ProductRow, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidSheet)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: sheet is empty", ErrInvalidSheet)
	}

	columns := mapColumns(rows[0])
	for _, required := range []string{"name", "sku", "price"} {
		if _, ok := columns[required]; !ok {
			return nil, nil, fmt.Errorf("%w: missing %s column", ErrInvalidSheet, required)
		}
	}

	result := make([]ProductRow, 0, len(rows)-1)
	problems := make([]string, 0)
	for i, cells := range rows[1:] {
		rowNo := i + 2
		cell := func(key string) string {
			idx, ok := columns[key]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}
		if isBlankRow(cells) {
			continue
		}

		item := ProductRow{
			Row:         rowNo,
			ProductName: cell("name"),
			Category:    cell("category"),
			Description: cell("description"),
			Variant: domain.VariantInput{
				SKU:     strings.ToUpper(cell("sku")),
				Name:    cell("variant"),
				Barcode: cell("barcode"),
			},
		}
		if item.ProductName == "" || item.Variant.SKU == "" {
			problems = append(problems, fmt.Sprintf("row %d: name and sku are required", rowNo))
			continue
		}
		if item.Variant.Name == "" {
			item.Variant.Name = "Default"
		}

		price, err := parseMoneyCents(cell("price"))
		if err != nil || price < 1 {
			problems = append(problems, fmt.Sprintf("row %d: invalid price %q", rowNo, cell("price")))
			continue
		}
		item.Variant.PriceCents = price

		if raw := cell("cost"); raw != "" {
			cost, err := parseMoneyCents(raw)
			if err != nil || cost < 0 {
				problems = append(problems, fmt.Sprintf("row %d: invalid cost %q", rowNo, raw))
				continue
			}
			item.Variant.CostCents = cost
		}
		if raw := cell("stock"); raw != "" {
			stock, err := strconv.Atoi(raw)
			if err != nil || stock < 0 {
				problems = append(problems, fmt.Sprintf("row %d: invalid stock %q", rowNo, raw))
				continue
			}
			item.Variant.Stock = stock
		}
		result = append(result, item)
	}
	return result, problems, nil
}

func mapColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for idx, raw := range header {
		key := strings.ToLower(strings.TrimSpace(raw))
		key = strings.ReplaceAll(key, " ", "_")
		if canonical, ok := headerAliases[key]; ok {
			if _, seen := columns[canonical]; !seen {
				columns[canonical] = idx
			}
		}
	}
	return columns
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseMoneyCents accepts "12.39", "1,239.00" or "$5" and returns cents.
func parseMoneyCents(raw string) (int64, error) {
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, errors.New("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

func centsValue(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

type sheetWriter struct {
	f         *excelize.File
	header    int
	money     int
	rowByName map[string]int
}

func newSheetWriter() (*sheetWriter, error) {
	f := excelize.NewFile()
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		f.Close()
		return nil, err
	}
	return &sheetWriter{f: f, header: header, money: money, rowByName: map[string]int{}}, nil
}

func (w *sheetWriter) sheet(name string) error {
	if len(w.rowByName) == 0 {
		if err := w.f.SetSheetName("Sheet1", name); err != nil {
			return err
		}
	} else if _, err := w.f.NewSheet(name); err != nil {
		return err
	}
	w.rowByName[name] = 0
	return nil
}

func (w *sheetWriter) row(sheet string, bold bool, values ...any) error {
	w.rowByName[sheet]++
	n := w.rowByName[sheet]
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		return err
	}
	if bold {
		end, err := excelize.CoordinatesToCellName(len(values), n)
		if err != nil {
			return err
		}
		return w.f.SetCellStyle(sheet, cell, end, w.header)
	}
	return nil
}

// moneyColumns formats the data rows of the given columns as money.
func (w *sheetWriter) moneyColumns(sheet string, cols ...string) error {
	last := w.rowByName[sheet]
	if last < 2 {
		return nil
	}
	for _, c := range cols {
		if err := w.f.SetCellStyle(sheet, c+"2", c+strconv.Itoa(last), w.money); err != nil {
			return err
		}
	}
	return nil
}

func (w *sheetWriter) bytes() ([]byte, error) {
	defer w.f.Close()
	var buf bytes.Buffer
	if _, err := w.f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SalesSummaryXLSX renders a summary workbook with totals, payment and top
// variant sheets. Money cells are decimal currency units, not cents.
func SalesSummaryXLSX(summary domain.SalesSummary, currency string) ([]byte, error) {
	w, err := newSheetWriter()
	if err != nil {
		return nil, err
	}

	const totals = "Summary"
	if err := w.sheet(totals); err != nil {
		return nil, err
	}
	lines := [][]any{
		{"Metric", "Value"},
		{"From", summary.From.UTC().Format("2006-01-02 15:04")},
		{"To", summary.To.UTC().Format("2006-01-02 15:04")},
		{"Currency", currency},
		{"Sales", summary.Sales},
		{"Subtotal", centsValue(summary.SubtotalCents)},
		{"Tax", centsValue(summary.TaxCents)},
		{"Total", centsValue(summary.TotalCents)},
		{"Returns", summary.Returns},
		{"Refunds", centsValue(summary.RefundCents)},
		{"Net", centsValue(summary.NetCents)},
		{"Cost of goods", centsValue(summary.CostCents)},
	}
	for i, values := range lines {
		if err := w.row(totals, i == 0, values...); err != nil {
			return nil, err
		}
	}
	if err := w.f.SetColWidth(totals, "A", "B", 18); err != nil {
		return nil, err
	}

	const payments = "By payment"
	if err := w.sheet(payments); err != nil {
		return nil, err
	}
	if err := w.row(payments, true, "Payment method", "Sales", "Total"); err != nil {
		return nil, err
	}
	for _, p := range summary.ByPayment {
		if err := w.row(payments, false, p.PaymentMethod, p.Sales, centsValue(p.TotalCents)); err != nil {
			return nil, err
		}
	}
	if err := w.moneyColumns(payments, "C"); err != nil {
		return nil, err
	}

	const variants = "Top variants"
	if err := w.sheet(variants); err != nil {
		return nil, err
	}
	if err := w.row(variants, true, "SKU", "Name", "Qty", "Revenue"); err != nil {
		return nil, err
	}
	for _, v := range summary.TopVariants {
		if err := w.row(variants, false, v.SKU, v.Name, v.Qty, centsValue(v.RevenueCents)); err != nil {
			return nil, err
		}
	}
	if err := w.moneyColumns(variants, "D"); err != nil {
		return nil, err
	}
	if err := w.f.SetColWidth(variants, "B", "B", 28); err != nil {
		return nil, err
	}

	return w.bytes()
}

// PayrollRunXLSX renders one row per payroll item plus a totals row.
func PayrollRunXLSX(run domain.PayrollRun) ([]byte, error) {
	w, err := newSheetWriter()
	if err != nil {
		return nil, err
	}
	const sheet = "Payroll"
	if err := w.sheet(sheet); err != nil {
		return nil, err
	}

	header := []any{
		"Employee ID", "Employee", "Payroll type", "Divisor days", "Base", "Allowances",
		"OT hours", "OT pay", "Bonus", "Absent days", "No pay", "Gross",
		"Recurring deductions", "Loan deductions", "Ad hoc deductions", "Total deductions", "Net",
	}
	if err := w.row(sheet, true, header...); err != nil {
		return nil, err
	}
	for _, it := range run.Items {
		err := w.row(sheet, false,
			it.EmployeeID, it.EmployeeName, it.PayrollType, it.DivisorDays,
			centsValue(it.BaseSalaryCents), centsValue(it.AllowancesCents),
			it.OvertimeHours, centsValue(it.OvertimePayCents), centsValue(it.BonusCents),
			it.AbsentDays, centsValue(it.NoPayCents), centsValue(it.GrossCents),
			centsValue(it.RecurringDeductionsCents), centsValue(it.LoanDeductionsCents),
			centsValue(it.AdHocDeductionsCents), centsValue(it.TotalDeductionsCents),
			centsValue(it.NetCents),
		)
		if err != nil {
			return nil, err
		}
	}
	err = w.row(sheet, true,
		"TOTAL", fmt.Sprintf("%s to %s", run.PeriodStart.Format("2006-01-02"), run.PeriodEnd.Format("2006-01-02")),
		run.Status, "", "", "", "", "", "", "", "", centsValue(run.TotalGrossCents),
		"", "", "", centsValue(run.TotalDeductionsCents), centsValue(run.TotalNetCents),
	)
	if err != nil {
		return nil, err
	}
	if err := w.moneyColumns(sheet, "E", "F", "H", "I", "K", "L", "M", "N", "O", "P", "Q"); err != nil {
		return nil, err
	}
	if err := w.f.SetColWidth(sheet, "A", "Q", 14); err != nil {
		return nil, err
	}
	return w.bytes()
}
