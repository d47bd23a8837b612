package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan is a list of reconciliation runs executed one after the other.
type Plan struct {
	// Defaults apply to runs that leave a field empty.
	Defaults Run   `yaml:"defaults"`
	Runs     []Run `yaml:"runs"`
}

type Run struct {
	Name       string `yaml:"name"`
	Workbook   string `yaml:"workbook"`
	Sheet      string `yaml:"sheet"`
	Output     string `yaml:"output"`
	SkipLedger *bool  `yaml:"skip_ledger"`
	DryRun     bool   `yaml:"dry_run"`
}

func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if len(p.Runs) == 0 {
		return nil, fmt.Errorf("plan has no runs")
	}
	for i := range p.Runs {
		p.Runs[i] = p.Runs[i].withDefaults(p.Defaults)
		r := p.Runs[i]
		if r.Workbook == "" {
			return nil, fmt.Errorf("run %d has no workbook", i+1)
		}
		if r.Output == "" {
			return nil, fmt.Errorf("run %d has no output", i+1)
		}
		if r.Name == "" {
			p.Runs[i].Name = fmt.Sprintf("run-%d", i+1)
		}
	}
	return &p, nil
}

func (r Run) withDefaults(d Run) Run {
	if r.Workbook == "" {
		r.Workbook = d.Workbook
	}
	if r.Sheet == "" {
		r.Sheet = d.Sheet
	}
	if r.Output == "" {
		r.Output = d.Output
	}
	if r.SkipLedger == nil {
		r.SkipLedger = d.SkipLedger
	}
	return r
}

func (p *Plan) Print() {
	for i, r := range p.Runs {
		fmt.Printf("[%d] %s workbook=%s sheet=%s output=%s dry_run=%t\n", i+1, r.Name, r.Workbook, r.Sheet, r.Output, r.DryRun)
	}
}
