package main

import (
	"bytes"
	"strings"
	"testing"

	"golden-ticket/internal/domain/model"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, "file", "", model.StatsSummary{
		TotalCodes:   1234,
		UniqueEmails: 1200,
		ByCampaign:   map[string]int{"camp1": 34, "camp2": 1200},
		ByWebsite:    map[string]int{"a.example": 1234},
	})
	out := buf.String()

	for _, want := range []string{"all campaigns", "backend=file", "1,234", "1,200", "By campaign", "a.example"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "camp2") > strings.Index(out, "camp1") {
		t.Errorf("expected campaigns sorted by count desc:\n%s", out)
	}
}
