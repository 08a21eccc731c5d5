package budget

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	// ContentType is the media type of exported workbooks.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	productsSheet = "Productos"
	optionsSheet  = "Opciones"
)

// Export writes the budget as an xlsx workbook with a products sheet and a
// payment options sheet.
func (s *Service) Export(ctx context.Context, id string, w io.Writer) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	f, err := Workbook(b)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("budget: write workbook: %w", err)
	}
	return nil
}

// Workbook renders b into a new workbook.
func Workbook(b Budget) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), productsSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(optionsSheet); err != nil {
		f.Close()
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := writeProducts(f, b, money, bold); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeOptions(f, b, money, bold); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeProducts(f *excelize.File, b Budget, money, bold int) error {
	sh := productsSheet
	if err := f.SetSheetRow(sh, "A1", &[]any{"Código", "Detalle", "Cantidad", "Precio unitario", "Total"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh, "A1", "E1", bold); err != nil {
		return err
	}
	row := 2
	for _, e := range b.Entries {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sh, cell, &[]any{e.Product.Code, e.Product.Name, e.Qty, amount(e.Product.Price), amount(e.LineTotal())}); err != nil {
			return err
		}
		row++
	}
	label, _ := excelize.CoordinatesToCellName(4, row)
	if err := f.SetSheetRow(sh, label, &[]any{"Subtotal", amount(b.Quote.Subtotal)}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh, label, label, bold); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(5, row)
	if err := f.SetCellStyle(sh, "D2", last, money); err != nil {
		return err
	}
	return f.SetColWidth(sh, "B", "B", 40)
}

func writeOptions(f *excelize.File, b Budget, money, bold int) error {
	sh := optionsSheet
	if err := f.SetSheetRow(sh, "A1", &[]any{"Forma de pago", "Cuotas", "Recargo %", "Valor cuota", "Total"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sh, "A1", "E1", bold); err != nil {
		return err
	}
	row := 2
	for _, bd := range b.Quote.Methods {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		pct := bd.Method.Surcharge.Shift(2).Round(2).InexactFloat64()
		if err := f.SetSheetRow(sh, cell, &[]any{bd.Method.Name, bd.Method.Installments, pct, amount(bd.PerInstallment), amount(bd.Total)}); err != nil {
			return err
		}
		row++
	}
	for _, m := range b.Quote.Manual {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sh, cell, &[]any{m.Entry.Label, m.Entry.Installments, nil, amount(m.Entry.AmountPerInstallment), amount(m.Total)}); err != nil {
			return err
		}
		row++
	}
	if row == 2 {
		return f.SetColWidth(sh, "A", "A", 30)
	}
	last, _ := excelize.CoordinatesToCellName(5, row-1)
	if err := f.SetCellStyle(sh, "D2", last, money); err != nil {
		return err
	}
	return f.SetColWidth(sh, "A", "A", 30)
}

func amount(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
