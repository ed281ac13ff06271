package orchestrator

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/shaiso/mlpipe/internal/config"
	"github.com/shaiso/mlpipe/internal/domain"
)

// Поддерживаемые форматы upload.
const (
	ExtExcel = ".xlsx"
	ExtCSV   = ".csv"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// fallbackStem — имя для файла, от которого после очистки ничего не
// осталось. Дальше файл всё равно переименовывается в каноническое имя.
const fallbackStem = "upload"

// SanitizeFilename приводит имя файла к безопасному виду: только базовое
// имя, диакритика снята, пробелы заменены на "_", прочие символы вне
// ASCII удалены, без ведущих точек.
func SanitizeFilename(name string) string {
	name = baseName(name)
	if folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name,
	); err == nil {
		name = folded
	}
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.TrimLeft(name, "._")
}

func baseName(name string) string {
	return filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
}

// ValidateUpload проверяет имя загружаемого файла и возвращает безопасное имя.
// Формат определяется по исходному имени, до очистки.
func ValidateUpload(filename string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", &domain.ValidationError{Field: "file", Reason: "no file selected"}
	}

	base := baseName(filename)
	ext := filepath.Ext(base)
	switch strings.ToLower(ext) {
	case ExtExcel, ExtCSV:
	default:
		return "", &domain.ValidationError{
			Field:  "file",
			Reason: "unsupported format, only .xlsx and .csv are accepted",
		}
	}

	stem := SanitizeFilename(strings.TrimSuffix(base, ext))
	if stem == "" {
		stem = fallbackStem
	}
	return stem + ext, nil
}

// isExcel — файл требует конвертации.
func isExcel(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ExtExcel)
}

// canonicalName — имя, под которым первый stage ждёт файл.
func canonicalName(name string) string {
	if isExcel(name) {
		return config.CanonicalExcel
	}
	return config.CanonicalCSV
}
