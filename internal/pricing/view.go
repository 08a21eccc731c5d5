package pricing

// BreakdownView is the presentation form of a Breakdown, amounts rounded to cents.
type BreakdownView struct {
	MethodID       string `json:"methodId"`
	Name           string `json:"name"`
	Installments   int    `json:"installments"`
	SurchargePct   string `json:"surchargePercent"`
	PerInstallment string `json:"perInstallment"`
	Total          string `json:"total"`
}

// ManualView is the presentation form of a ManualBreakdown.
type ManualView struct {
	Label                string `json:"label"`
	Installments         int    `json:"installments"`
	AmountPerInstallment string `json:"amountPerInstallment"`
	Total                string `json:"total"`
}

// QuoteView is the presentation form of a Quote.
type QuoteView struct {
	Subtotal string          `json:"subtotal"`
	Methods  []BreakdownView `json:"methods"`
	Manual   []ManualView    `json:"manual"`
	Options  int             `json:"options"`
}

// ViewBreakdowns renders method breakdowns.
func ViewBreakdowns(in []Breakdown) []BreakdownView {
	out := make([]BreakdownView, 0, len(in))
	for _, b := range in {
		out = append(out, BreakdownView{
			MethodID:       b.Method.ID,
			Name:           b.Method.Name,
			Installments:   b.Method.Installments,
			SurchargePct:   Format(b.Method.Surcharge.Shift(2)),
			PerInstallment: Format(b.PerInstallment),
			Total:          Format(b.Total),
		})
	}
	return out
}

// ViewQuote renders q for API responses.
func ViewQuote(q Quote) QuoteView {
	manual := make([]ManualView, 0, len(q.Manual))
	for _, m := range q.Manual {
		manual = append(manual, ManualView{
			Label:                m.Entry.Label,
			Installments:         m.Entry.Installments,
			AmountPerInstallment: Format(m.Entry.AmountPerInstallment),
			Total:                Format(m.Total),
		})
	}
	return QuoteView{
		Subtotal: Format(q.Subtotal),
		Methods:  ViewBreakdowns(q.Methods),
		Manual:   manual,
		Options:  q.Options(),
	}
}
