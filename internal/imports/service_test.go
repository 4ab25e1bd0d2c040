package imports

import (
	"strings"
	"testing"

	"leadengine/platform/apperr"
)

func TestParse(t *testing.T) {
	csv := strings.Join([]string{
		"Name,Mobile,Email,Pincode,Unknown Column",
		"Asha,9876543210,asha@example.com,110001,ignored",
		", , , ,",
		"Binod,09123456789,,682001,",
	}, "\n")

	records, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Name != "Asha" || records[0].MobileNo != "9876543210" || records[0].Pincode != "110001" {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[1].MobileNo != "09123456789" {
		t.Errorf("mobile should pass through raw, got %q", records[1].MobileNo)
	}
}

func TestParseHeaderAliases(t *testing.T) {
	csv := "PHONE,pin,Agency\n9876543210,110001,Acme\n"

	records, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if records[0].MobileNo != "9876543210" || records[0].Pincode != "110001" || records[0].AgencyName != "Acme" {
		t.Errorf("alias mapping failed: %+v", records[0])
	}
}

func TestParseEmptyFile(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseUnknownHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("foo,bar\n1,2\n"))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseShortRows(t *testing.T) {
	records, err := Parse(strings.NewReader("mobile,name\n9876543210\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 1 || records[0].MobileNo != "9876543210" {
		t.Errorf("short row should still parse, got %+v", records)
	}
}
