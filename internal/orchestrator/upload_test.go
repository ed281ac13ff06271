package orchestrator

import (
	"errors"
	"testing"

	"github.com/shaiso/mlpipe/internal/config"
	"github.com/shaiso/mlpipe/internal/domain"
)

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"OnlineRetail.xlsx", "OnlineRetail.xlsx", false},
		{"sales data.csv", "sales_data.csv", false},
		{"REPORT.XLSX", "REPORT.XLSX", false},
		{"../../etc/passwd.csv", "passwd.csv", false},
		{`C:\Users\me\data.csv`, "data.csv", false},
		{".hidden.csv", "hidden.csv", false},
		{"данные.xlsx", "upload.xlsx", false},
		{"売上.csv", "upload.csv", false},
		{"ventes été.csv", "ventes_ete.csv", false},
		{"Ökonomie 2011.XLSX", "Okonomie_2011.XLSX", false},
		{".csv", "upload.csv", false},
		{"notes.txt", "", true},
		{"данные.txt", "", true},
		{"archive.xls", "", true},
		{"", "", true},
		{"   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateUpload(tt.in)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("ValidateUpload(%q) error = %v, want ErrValidation", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateUpload(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ValidateUpload(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalName(t *testing.T) {
	if got := canonicalName("data.XLSX"); got != config.CanonicalExcel {
		t.Errorf("canonicalName(xlsx) = %q", got)
	}
	if got := canonicalName("data.csv"); got != config.CanonicalCSV {
		t.Errorf("canonicalName(csv) = %q", got)
	}
}
