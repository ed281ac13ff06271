package dataset

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/mlpipe/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{DataPath: t.TempDir()}
	require.NoError(t, cfg.EnsureDirs())
	return cfg
}

func TestParsePreview(t *testing.T) {
	data := []byte("InvoiceNo,Quantity,UnitPrice,Country,CustomerID,Returned\n" +
		"536365,6,2.55,United Kingdom,17850,False\n" +
		"536366,2,,France,,True\n" +
		"536367,-1,3.39,,13047,False\n")

	p, err := ParsePreview(data)
	require.NoError(t, err)

	assert.Equal(t, 3, p.Rows)
	assert.Equal(t, 6, p.Columns)
	assert.Equal(t, []string{"InvoiceNo", "Quantity", "UnitPrice", "Country", "CustomerID", "Returned"}, p.ColumnNames)

	assert.Equal(t, map[string]string{
		"InvoiceNo":  DtypeInt,
		"Quantity":   DtypeInt,
		"UnitPrice":  DtypeFloat,
		"Country":    DtypeObject,
		"CustomerID": DtypeFloat,
		"Returned":   DtypeBool,
	}, p.Dtypes)

	assert.Equal(t, map[string]int{
		"InvoiceNo":  0,
		"Quantity":   0,
		"UnitPrice":  1,
		"Country":    1,
		"CustomerID": 1,
		"Returned":   0,
	}, p.NullCounts)

	require.Len(t, p.SampleData, 3)
	first := p.SampleData[0]
	assert.Equal(t, int64(6), first["Quantity"])
	assert.Equal(t, 2.55, first["UnitPrice"])
	assert.Equal(t, "United Kingdom", first["Country"])
	assert.Equal(t, float64(17850), first["CustomerID"])
	assert.Equal(t, false, first["Returned"])
	assert.Nil(t, p.SampleData[1]["UnitPrice"])
	assert.Nil(t, p.SampleData[2]["Country"])
}

func TestParsePreview_SampleLimit(t *testing.T) {
	data := []byte("n\n")
	for i := 0; i < SampleSize+50; i++ {
		data = append(data, "1\n"...)
	}

	p, err := ParsePreview(data)
	require.NoError(t, err)
	assert.Equal(t, SampleSize+50, p.Rows)
	assert.Len(t, p.SampleData, SampleSize)
}

func TestParsePreview_Latin1(t *testing.T) {
	// "Côte" в ISO-8859-1.
	data := []byte("Country\nC\xf4te d'Ivoire\n")

	p, err := ParsePreview(data)
	require.NoError(t, err)
	assert.Equal(t, "Côte d'Ivoire", p.SampleData[0]["Country"])
}

func TestParsePreview_Empty(t *testing.T) {
	_, err := ParsePreview(nil)
	assert.Error(t, err)
}

func TestLoadPreview_Source(t *testing.T) {
	cfg := testConfig(t)

	_, err := LoadPreview(cfg)
	assert.ErrorIs(t, err, ErrNoDataset)

	require.NoError(t, os.WriteFile(cfg.RawPath(config.CanonicalCSV), []byte("a\n1\n2\n"), 0o644))
	p, err := LoadPreview(cfg)
	require.NoError(t, err)
	assert.Equal(t, SourceRaw, p.Source)
	assert.Equal(t, 2, p.Rows)

	require.NoError(t, os.WriteFile(cfg.ProcessedPath(config.CleanedCSV), []byte("a,b\n1,2\n"), 0o644))
	p, err = LoadPreview(cfg)
	require.NoError(t, err)
	assert.Equal(t, SourceProcessed, p.Source)
	assert.Equal(t, 1, p.Rows)
}

// columnsPickle — pickle.dumps(['Quantity', 'UnitPrice', 'Country'], protocol=2).
var columnsPickle = []byte("\x80\x02]q\x00(X\x08\x00\x00\x00Quantityq\x01X\t\x00\x00\x00UnitPriceq\x02X\x07\x00\x00\x00Countryq\x03e.")

func TestLoadModelInfo(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	info, err := LoadModelInfo(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, &ModelInfo{}, info)

	require.NoError(t, os.WriteFile(cfg.ModelPath(config.ModelFile), []byte("model"), 0o644))
	require.NoError(t, os.WriteFile(cfg.ModelPath(config.ColumnsFile), columnsPickle, 0o644))
	require.NoError(t, os.WriteFile(cfg.ProcessedPath(config.CountryMapping),
		[]byte(`{"United Kingdom": 0, "France": 1, "EIRE": 2}`), 0o644))

	info, err = LoadModelInfo(cfg, logger)
	require.NoError(t, err)
	assert.True(t, info.ModelExists)
	assert.False(t, info.ScalerExists)
	assert.True(t, info.ColumnsExists)
	assert.True(t, info.CountryMappingExists)
	assert.False(t, info.StockCodeMappingExists)
	assert.Equal(t, []string{"Quantity", "UnitPrice", "Country"}, info.Features)
	assert.Equal(t, []string{"EIRE", "France", "United Kingdom"}, info.Countries)
}

func TestLoadModelInfo_UnreadableColumns(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.ModelPath(config.ColumnsFile), []byte("not a pickle"), 0o644))

	info, err := LoadModelInfo(cfg, nil)
	require.NoError(t, err)
	assert.True(t, info.ColumnsExists)
	assert.Nil(t, info.Features)
}
