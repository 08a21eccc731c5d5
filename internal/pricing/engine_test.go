package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestComputeBreakdownSingleInstallmentNoSurcharge(t *testing.T) {
	out := ComputeBreakdown(dec("100"), []Method{{ID: "efectivo", Installments: 1, Surcharge: decimal.Zero}})
	require.Len(t, out, 1)
	require.True(t, out[0].Total.Equal(dec("100")), "total %s", out[0].Total)
	require.True(t, out[0].PerInstallment.Equal(dec("100")), "per installment %s", out[0].PerInstallment)
}

func TestComputeBreakdownSixInstallmentsWithSurcharge(t *testing.T) {
	out := ComputeBreakdown(dec("100"), []Method{{ID: "tc_6", Installments: 6, Surcharge: dec("0.08")}})
	require.Len(t, out, 1)
	require.True(t, out[0].Total.Equal(dec("108")), "total %s", out[0].Total)
	require.True(t, out[0].PerInstallment.Equal(dec("18")), "per installment %s", out[0].PerInstallment)
}

func TestComputeBreakdownZeroSubtotal(t *testing.T) {
	methods := []Method{
		{ID: "a", Installments: 1, Surcharge: decimal.Zero},
		{ID: "b", Installments: 3, Surcharge: dec("0.1")},
		{ID: "c", Installments: 12, Surcharge: dec("0.45")},
	}
	for _, b := range ComputeBreakdown(decimal.Zero, methods) {
		require.True(t, b.Total.IsZero(), "method %s total %s", b.Method.ID, b.Total)
		require.True(t, b.PerInstallment.IsZero(), "method %s installment %s", b.Method.ID, b.PerInstallment)
	}
}

func TestComputeBreakdownKeepsMethodOrder(t *testing.T) {
	methods := []Method{
		{ID: "tc_6", Installments: 6, Surcharge: dec("0.2")},
		{ID: "efectivo", Installments: 1},
		{ID: "tc_3", Installments: 3, Surcharge: dec("0.1")},
	}
	out := ComputeBreakdown(dec("250"), methods)
	require.Len(t, out, 3)
	for i, b := range out {
		require.Equal(t, methods[i].ID, b.Method.ID)
	}
}

func TestComputeBreakdownEmptyMethods(t *testing.T) {
	out := ComputeBreakdown(dec("100"), nil)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestComputeBreakdownKeepsPrecision(t *testing.T) {
	out := ComputeBreakdown(dec("100"), []Method{{ID: "tc_3", Installments: 3}})
	require.Equal(t, "33.33", Format(out[0].PerInstallment))
	require.False(t, out[0].PerInstallment.Equal(dec("33.33")), "per installment must not be truncated")
	require.True(t, out[0].PerInstallment.Mul(decimal.NewFromInt(3)).Sub(dec("100")).Abs().LessThan(dec("0.000001")))
}

func TestComputeManualBreakdown(t *testing.T) {
	got := ComputeManualBreakdown(ManualEntry{Label: "Promo banco", Installments: 3, AmountPerInstallment: dec("50")})
	require.True(t, got.Total.Equal(dec("150")), "total %s", got.Total)
}

func TestBuildQuote(t *testing.T) {
	q := BuildQuote(dec("200"),
		[]Method{{ID: "tc_3", Installments: 3, Surcharge: dec("0.1")}},
		[]ManualEntry{{Label: "Plan especial", Installments: 4, AmountPerInstallment: dec("60")}},
	)
	require.Equal(t, 2, q.Options())
	require.Equal(t, "220.00", Format(q.Methods[0].Total))
	require.Equal(t, "73.33", Format(q.Methods[0].PerInstallment))
	require.Equal(t, "240.00", Format(q.Manual[0].Total))
}

func TestValidateMethod(t *testing.T) {
	cases := []struct {
		name   string
		method Method
		ok     bool
	}{
		{name: "valid", method: Method{ID: "x", Installments: 1}, ok: true},
		{name: "zero installments", method: Method{ID: "x", Installments: 0}},
		{name: "negative surcharge", method: Method{ID: "x", Installments: 2, Surcharge: dec("-0.1")}},
		{name: "missing id", method: Method{Installments: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMethod(tc.method)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, ErrInvalidMethodConfiguration), "unexpected error %v", err)
		})
	}
}

func TestValidateManual(t *testing.T) {
	require.NoError(t, ValidateManual(ManualEntry{Label: "ok", Installments: 2, AmountPerInstallment: dec("1")}))
	require.ErrorIs(t, ValidateManual(ManualEntry{Label: "  ", Installments: 2, AmountPerInstallment: dec("1")}), ErrInvalidManualEntry)
	require.ErrorIs(t, ValidateManual(ManualEntry{Label: "x", Installments: 0, AmountPerInstallment: dec("1")}), ErrInvalidManualEntry)
	require.ErrorIs(t, ValidateManual(ManualEntry{Label: "x", Installments: 1, AmountPerInstallment: decimal.Zero}), ErrInvalidManualEntry)
}

func TestPercent(t *testing.T) {
	require.True(t, Percent(dec("8")).Equal(dec("0.08")))
}

func TestViewQuoteRoundsAtPresentation(t *testing.T) {
	q := BuildQuote(dec("100"),
		[]Method{{ID: "tc_3", Name: "Tarjeta 3 cuotas", Installments: 3, Surcharge: dec("0.1")}},
		[]ManualEntry{{Label: "Cheque", Installments: 2, AmountPerInstallment: dec("55.5")}},
	)
	v := ViewQuote(q)
	require.Equal(t, "100.00", v.Subtotal)
	require.Equal(t, 2, v.Options)
	require.Equal(t, "10.00", v.Methods[0].SurchargePct)
	require.Equal(t, "36.67", v.Methods[0].PerInstallment)
	require.Equal(t, "110.00", v.Methods[0].Total)
	require.Equal(t, "111.00", v.Manual[0].Total)
	require.Equal(t, "55.50", v.Manual[0].AmountPerInstallment)
}
