// Package reconcile compares the payments read from the external workbook
// with the ones already in the ledger. It is pure: no I/O, no logging, so the
// CLI executors and the HTTP server share the same result.
package reconcile

import (
	"sort"

	"github.com/yurifrl/paybills/pkg/compare"
	"github.com/yurifrl/paybills/pkg/models"
)

// Build indexes both sides by ID and classifies every ID:
//
//   - only external: write-back candidate, tagged external
//   - only ledger:   reported, never resolved automatically
//   - both, Equal:   counted as matched
//   - both, differ:  data_conflict carrying both sides
//
// A duplicated ID within one side keeps the last occurrence.
func Build(external, ledger []models.Payment) *models.DiffReport {
	ext := byID(external)
	led := byID(ledger)

	report := &models.DiffReport{
		ExternalOnly: make([]models.Payment, 0),
		LedgerOnly:   make([]models.Payment, 0),
		Conflicts:    make([]models.Conflict, 0),
	}

	for _, id := range sortedKeys(ext) {
		ep := ext[id]
		lp, ok := led[id]
		if !ok {
			report.ExternalOnly = append(report.ExternalOnly, ep.WithSource(models.SourceExternal))
			continue
		}
		if compare.Equal(ep, lp) {
			report.MatchedCount++
			continue
		}
		report.Conflicts = append(report.Conflicts, models.NewDataConflict(ep, lp))
	}

	for _, id := range sortedKeys(led) {
		if _, ok := ext[id]; ok {
			continue
		}
		report.LedgerOnly = append(report.LedgerOnly, led[id].WithSource(models.SourceLedger))
	}

	return report
}

// Candidates returns the payments that still need to be created in the
// ledger.
func Candidates(r *models.DiffReport) []models.Payment {
	return r.ExternalOnly
}

func byID(payments []models.Payment) map[string]models.Payment {
	idx := make(map[string]models.Payment, len(payments))
	for _, p := range payments {
		idx[p.ID] = p
	}
	return idx
}

func sortedKeys(m map[string]models.Payment) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
