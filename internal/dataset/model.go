package dataset

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/nlpodyssey/gopickle/pickle"

	"github.com/shaiso/mlpipe/internal/config"
	"github.com/shaiso/mlpipe/internal/domain"
)

// ModelInfo — наличие артефактов обучения и их содержимое.
type ModelInfo struct {
	ModelExists            bool     `json:"model_exists"`
	ScalerExists           bool     `json:"scaler_exists"`
	ColumnsExists          bool     `json:"columns_exists"`
	CountryMappingExists   bool     `json:"country_mapping_exists"`
	StockCodeMappingExists bool     `json:"stockcode_mapping_exists"`
	Features               []string `json:"features,omitempty"`
	Countries              []string `json:"countries,omitempty"`
}

// sequence — list и tuple из gopickle.
type sequence interface {
	Len() int
	Get(i int) any
}

// LoadModelInfo собирает ModelInfo. Нечитаемый columns.pkl не ошибка:
// features просто отсутствуют.
func LoadModelInfo(cfg *config.Config, logger *slog.Logger) (*ModelInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	columnsPath := cfg.ModelPath(config.ColumnsFile)
	countriesPath := cfg.ProcessedPath(config.CountryMapping)

	info := &ModelInfo{
		ModelExists:            domain.FileExists(cfg.ModelPath(config.ModelFile)),
		ScalerExists:           domain.FileExists(cfg.ModelPath(config.ScalerFile)),
		ColumnsExists:          domain.FileExists(columnsPath),
		CountryMappingExists:   domain.FileExists(countriesPath),
		StockCodeMappingExists: domain.FileExists(cfg.ProcessedPath(config.StockCodeMapping)),
	}

	if info.ColumnsExists {
		features, err := ReadFeatures(columnsPath)
		if err != nil {
			logger.Warn("failed to read model features", "path", columnsPath, "error", err)
		} else {
			info.Features = features
		}
	}

	if info.CountryMappingExists {
		countries, err := ReadCountries(countriesPath)
		if err != nil {
			return nil, err
		}
		info.Countries = countries
	}
	return info, nil
}

// ReadFeatures читает список признаков из pickle-файла.
func ReadFeatures(path string) ([]string, error) {
	obj, err := pickle.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unpickle %s: %w", path, err)
	}

	seq, ok := obj.(sequence)
	if !ok {
		return nil, fmt.Errorf("unpickle %s: unexpected %T, want list of names", path, obj)
	}

	features := make([]string, 0, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		features = append(features, fmt.Sprint(seq.Get(i)))
	}
	return features, nil
}

// ReadCountries возвращает ключи country mapping, отсортированные по имени.
func ReadCountries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read country mapping: %w", err)
	}

	var mapping map[string]json.RawMessage
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("parse country mapping: %w", err)
	}

	countries := make([]string, 0, len(mapping))
	for k := range mapping {
		countries = append(countries, k)
	}
	sort.Strings(countries)
	return countries, nil
}
