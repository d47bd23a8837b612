package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildFromFile(t *testing.T) {
	path := writeConfig(t, `
workbook: company_data.xlsx
ledger:
  kind: ynab
  budget_id: b-1
  account_id: a-1
fields:
  external:
    amount: ["Total"]
exclusion:
  markers: ["freight"]
id_separator: " / "
`)

	cfg, err := Build(path, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if cfg.Workbook != "company_data.xlsx" || cfg.Sheet != "vendor" || cfg.Output != "report.json" {
		t.Errorf("unexpected run settings: %+v", cfg)
	}
	if cfg.Ledger.TokenEnv != DefaultTokenEnv || cfg.Ledger.RequestsPerHour != 180 {
		t.Errorf("expected ledger defaults, got %+v", cfg.Ledger)
	}

	ext := cfg.ExternalFields()
	if len(ext.Amount) != 1 || ext.Amount[0] != "Total" {
		t.Errorf("expected amount override, got %v", ext.Amount)
	}
	if len(ext.Vendor) == 0 || ext.Separator != " / " {
		t.Errorf("expected defaults kept and separator overridden, got %+v", ext)
	}
	if cfg.LedgerFields().Separator != " / " {
		t.Errorf("expected separator on ledger fields too")
	}
	if m := cfg.Markers(); len(m) != 1 || m[0] != "freight" {
		t.Errorf("unexpected markers %v", m)
	}
}

func TestBuildFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "output: from-file.json\nledger:\n  kind: memory\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output", "", "")
	flags.Bool("skip-ledger", false, "")
	if err := flags.Parse([]string{"--output", "out.csv", "--skip-ledger"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Build(path, flags)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.Output != "out.csv" || !cfg.SkipLedger {
		t.Errorf("expected flags to win, got %+v", cfg)
	}
}

func TestBuildEnv(t *testing.T) {
	path := writeConfig(t, "ledger:\n  kind: memory\n")
	t.Setenv("PAYBILLS_SHEET", "nonvendor")
	t.Setenv("PAYBILLS_JOURNAL_PATH", "/tmp/journal.db")

	cfg, err := Build(path, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.Sheet != "nonvendor" || cfg.Journal.Path != "/tmp/journal.db" {
		t.Errorf("expected env overrides, got %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "ledger:\n  kind: ynab\n")

	_, err := Build(path, nil)
	if err == nil || !strings.Contains(err.Error(), "BudgetID") {
		t.Errorf("expected missing budget to fail validation, got %v", err)
	}

	cfg := &Config{Ledger: Ledger{Kind: "quickbooks"}}
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected unknown ledger kind to fail validation")
	}
}

func TestBuildMissingFile(t *testing.T) {
	if _, err := Build(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Errorf("expected an error for a missing config file")
	}
}

func TestLedgerToken(t *testing.T) {
	t.Setenv("CUSTOM_TOKEN", "secret")
	l := Ledger{TokenEnv: "CUSTOM_TOKEN"}
	if l.Token() != "secret" {
		t.Errorf("expected token from env")
	}
}

func TestValidateSkipLedger(t *testing.T) {
	cfg := &Config{SkipLedger: true, Ledger: Ledger{Kind: LedgerYNAB}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected offline runs to need no ledger credentials, got %v", err)
	}
}

func TestBuildMemoryLedger(t *testing.T) {
	path := writeConfig(t, `
ledger:
  kind: memory
  memory:
    payments:
      - {id: L1, date: "2025-01-03", amount: 42.5, vendor: Z}
    obligations:
      - {id: bill-x, vendor: X, amount_due: "100.00"}
`)

	cfg, err := Build(path, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	mem := cfg.Ledger.Memory
	if len(mem.Payments) != 1 || mem.Payments[0].Amount != "42.5" || mem.Payments[0].Date != "2025-01-03" {
		t.Errorf("unexpected memory payments: %+v", mem.Payments)
	}
	if len(mem.Obligations) != 1 || mem.Obligations[0].AmountDue != "100.00" {
		t.Errorf("unexpected memory obligations: %+v", mem.Obligations)
	}

	bad := writeConfig(t, `
ledger:
  kind: memory
  memory:
    obligations:
      - {id: bill-x, vendor: X, amount_due: lots}
`)
	if _, err := Build(bad, nil); err == nil || !strings.Contains(err.Error(), "AmountDue") {
		t.Errorf("expected a non-numeric amount to fail validation, got %v", err)
	}
}
