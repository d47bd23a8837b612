package plan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	content := `
defaults:
  workbook: company_data.xlsx
  skip_ledger: true
runs:
  - name: vendors
    sheet: vendor
    output: out/vendor.json
  - sheet: nonvendor
    output: gs://reports/nonvendor.json
    skip_ledger: false
    dry_run: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(p.Runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(p.Runs))
	}

	first, second := p.Runs[0], p.Runs[1]
	if first.Workbook != "company_data.xlsx" || first.SkipLedger == nil || !*first.SkipLedger {
		t.Errorf("expected defaults applied, got %+v", first)
	}
	if second.Name != "run-2" || *second.SkipLedger || !second.DryRun {
		t.Errorf("expected run overrides kept, got %+v", second)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no runs":     "runs: []\n",
		"no workbook": "runs:\n  - output: a.json\n",
		"no output":   "runs:\n  - workbook: a.xlsx\n",
		"bad yaml":    "runs: [",
	}
	for name, content := range cases {
		if _, err := Parse([]byte(content)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
