package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/presupuesto/internal/catalog"
)

func fixture(t *testing.T) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Codigo", "Detalle", "Stock", "Precio"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"A1", "Tornillo", 10, "12,50"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"A2", "Tuerca", "x", "3"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestSeedReplacesCatalog(t *testing.T) {
	repo := catalog.NewMemoryRepository()
	svc, err := catalog.NewService(catalog.ServiceConfig{Repository: repo})
	require.NoError(t, err)

	summary, err := seed(context.Background(), fixture(t), svc)
	require.NoError(t, err)
	require.Equal(t, "imported 1 products, skipped 1 rows", summary)

	stored, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "12.5", stored[0].Price.String())
}

func TestSeedDryRun(t *testing.T) {
	summary, err := seed(context.Background(), fixture(t), nil)
	require.NoError(t, err)
	require.Equal(t, "parsed 1 products, skipped 1 rows (dry run)", summary)

	_, err = seed(context.Background(), bytes.NewBufferString("not a workbook"), nil)
	require.Error(t, err)
}
