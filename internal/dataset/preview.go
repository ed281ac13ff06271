package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/shaiso/mlpipe/internal/config"
)

// SampleSize — сколько строк попадает в sample_data.
const SampleSize = 100

// Источник превью.
const (
	SourceProcessed = "processed"
	SourceRaw       = "raw"
)

// Типы колонок в терминах pandas, их ждёт web-интерфейс.
const (
	DtypeInt    = "int64"
	DtypeFloat  = "float64"
	DtypeBool   = "bool"
	DtypeObject = "object"
)

// ErrNoDataset — ни cleaned, ни сырого CSV нет.
var ErrNoDataset = errors.New("no dataset available")

// nullTokens — значения, которые считаются пропусками.
var nullTokens = map[string]bool{
	"": true, "NA": true, "N/A": true, "NaN": true, "nan": true,
	"null": true, "NULL": true, "None": true, "<NA>": true,
}

// Preview — сводка по датасету.
type Preview struct {
	Rows        int               `json:"rows"`
	Columns     int               `json:"columns"`
	ColumnNames []string          `json:"column_names"`
	Source      string            `json:"source"`
	SampleData  []map[string]any  `json:"sample_data"`
	Dtypes      map[string]string `json:"dtypes"`
	NullCounts  map[string]int    `json:"null_counts"`
}

// LoadPreview читает cleaned датасет, а если его нет, сырой канонический CSV.
func LoadPreview(cfg *config.Config) (*Preview, error) {
	candidates := []struct {
		path   string
		source string
	}{
		{cfg.ProcessedPath(config.CleanedCSV), SourceProcessed},
		{cfg.RawPath(config.CanonicalCSV), SourceRaw},
	}

	for _, c := range candidates {
		data, err := os.ReadFile(c.path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s dataset: %w", c.source, err)
		}
		p, err := ParsePreview(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s dataset: %w", c.source, err)
		}
		p.Source = c.source
		return p, nil
	}
	return nil, ErrNoDataset
}

// ParsePreview строит Preview из CSV. Не-UTF-8 вход читается как Latin-1:
// сырые выгрузки Online Retail приходят именно так.
func ParsePreview(data []byte) (*Preview, error) {
	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = charmap.ISO8859_1.NewDecoder().Reader(src)
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty csv")
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	cols := make([]*column, len(header))
	for i, name := range header {
		cols[i] = &column{name: name, isInt: true, isFloat: true, isBool: true}
	}

	var sample [][]string
	rows := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rows+1, err)
		}
		for i, c := range cols {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			c.observe(v)
		}
		if rows < SampleSize {
			sample = append(sample, rec)
		}
		rows++
	}

	p := &Preview{
		Rows:        rows,
		Columns:     len(cols),
		ColumnNames: header,
		SampleData:  make([]map[string]any, 0, len(sample)),
		Dtypes:      make(map[string]string, len(cols)),
		NullCounts:  make(map[string]int, len(cols)),
	}
	for _, c := range cols {
		p.Dtypes[c.name] = c.dtype()
		p.NullCounts[c.name] = c.nulls
	}
	for _, rec := range sample {
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			row[c.name] = c.value(v)
		}
		p.SampleData = append(p.SampleData, row)
	}
	return p, nil
}

// column накапливает вывод типа колонки.
type column struct {
	name    string
	nulls   int
	values  int
	isInt   bool
	isFloat bool
	isBool  bool
}

func (c *column) observe(v string) {
	v = strings.TrimSpace(v)
	if nullTokens[v] {
		c.nulls++
		return
	}
	c.values++
	if c.isInt {
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			c.isInt = false
		}
	}
	if c.isFloat {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			c.isFloat = false
		}
	}
	if c.isBool && v != "True" && v != "False" {
		c.isBool = false
	}
}

// dtype повторяет правила pandas: int с пропусками становится float,
// bool с пропусками становится object, пустая колонка — float.
func (c *column) dtype() string {
	switch {
	case c.values == 0:
		return DtypeFloat
	case c.isInt && c.nulls == 0:
		return DtypeInt
	case c.isInt || c.isFloat:
		return DtypeFloat
	case c.isBool && c.nulls == 0:
		return DtypeBool
	default:
		return DtypeObject
	}
}

// value приводит ячейку к типу колонки. Пропуск — nil.
func (c *column) value(raw string) any {
	v := strings.TrimSpace(raw)
	if nullTokens[v] {
		return nil
	}
	switch c.dtype() {
	case DtypeInt:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case DtypeFloat:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case DtypeBool:
		return v == "True"
	default:
		return raw
	}
}
