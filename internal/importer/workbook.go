// Package importer reads product catalogs from xlsx workbooks.
package importer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/presupuesto/internal/catalog"
)

var (
	// ErrInvalidWorkbook is returned when the upload cannot be read as a workbook.
	ErrInvalidWorkbook = errors.New("invalid workbook")
	// ErrMissingColumns is returned when the header row lacks a required column.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrNoValidProducts is returned when no row produced a valid product.
	ErrNoValidProducts = errors.New("no valid products")
)

const (
	colCode  = "codigo"
	colName  = "detalle"
	colStock = "stock"
	colPrice = "precio"
)

var headerAliases = map[string]string{
	"codigo":  colCode,
	"código":  colCode,
	"detalle": colName,
	"stock":   colStock,
	"precio":  colPrice,
}

// Result is the outcome of reading one workbook.
type Result struct {
	Products []catalog.Product
	Skipped  int
}

// Reader parses the first sheet of a workbook. It satisfies catalog.WorkbookReader.
type Reader struct{}

// ReadProducts implements catalog.WorkbookReader.
func (Reader) ReadProducts(r io.Reader) ([]catalog.Product, int, error) {
	res, err := Read(r)
	return res.Products, res.Skipped, err
}

// Read parses the first sheet of the workbook in r. The first row holds the
// headers; rows with a missing or unparsable value are skipped.
func Read(r io.Reader) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, fmt.Errorf("%w: workbook has no sheets", ErrInvalidWorkbook)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	if len(rows) == 0 {
		return Result{}, ErrNoValidProducts
	}
	cols, err := headerIndex(rows[0])
	if err != nil {
		return Result{}, err
	}

	res := Result{Products: make([]catalog.Product, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		p, ok := parseRow(row, cols)
		if !ok {
			res.Skipped++
			continue
		}
		res.Products = append(res.Products, p)
	}
	if len(res.Products) == 0 {
		return res, ErrNoValidProducts
	}
	return res, nil
}

func headerIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, 4)
	for i, h := range header {
		name, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	var missing []string
	for _, c := range []string{colCode, colName, colStock, colPrice} {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRow(row []string, cols map[string]int) (catalog.Product, bool) {
	cell := func(name string) string {
		i := cols[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	code := normalizeCode(cell(colCode))
	name := cell(colName)
	if code == "" || name == "" {
		return catalog.Product{}, false
	}
	stock, ok := parseStock(cell(colStock))
	if !ok {
		return catalog.Product{}, false
	}
	price, ok := ParsePrice(cell(colPrice))
	if !ok {
		return catalog.Product{}, false
	}
	return catalog.Product{Code: code, Name: name, Price: price, Stock: stock}, true
}

// ParsePrice accepts values such as "1234.5", "$ 1.234,50" or "99,9".
func ParsePrice(raw string) (decimal.Decimal, bool) {
	s := strings.NewReplacer("$", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, false
	}
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

func parseStock(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, n >= 0
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsInteger() || d.IsNegative() {
		return 0, false
	}
	return int(d.IntPart()), true
}

// normalizeCode turns numeric cells read as "12.0" back into "12".
func normalizeCode(raw string) string {
	if d, err := decimal.NewFromString(raw); err == nil && d.IsInteger() && strings.Contains(raw, ".") {
		return d.String()
	}
	return raw
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
