package domain

import "time"

// LoadStatus is the outcome of writing one table.
type LoadStatus string

const (
	LoadOK      LoadStatus = "ok"
	LoadFailed  LoadStatus = "failed"
	LoadSkipped LoadStatus = "skipped" // not attempted after an earlier failure
	LoadDropped LoadStatus = "dropped" // collection failed its integrity check
)

// TableLoad summarizes the write of one table. Skipped counts rows that
// already existed or were omitted by policy.
type TableLoad struct {
	Table     string     `json:"table"`
	Attempted int        `json:"attempted"`
	Inserted  int        `json:"inserted"`
	Skipped   int        `json:"skipped"`
	Status    LoadStatus `json:"status"`
}

// LoadReport is returned by the relational loader.
type LoadReport struct {
	Tables []TableLoad `json:"tables"`
	Issues []Issue     `json:"issues,omitempty"`
}

// Completed lists the tables that were written successfully.
func (r LoadReport) Completed() []string {
	var out []string
	for _, t := range r.Tables {
		if t.Status == LoadOK {
			out = append(out, t.Table)
		}
	}
	return out
}

// RunReport is the aggregated outcome of one pipeline run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	RowsRead        int `json:"rows_read"`
	RowsRejected    int `json:"rows_rejected"`
	RowsEnriched    int `json:"rows_enriched"`
	CustomerMatched int `json:"customer_matched"`
	WeatherMatched  int `json:"weather_matched"`

	EntitiesPerTable map[string]int `json:"entities_per_table"`
	Tables           []TableLoad    `json:"tables,omitempty"`

	Warnings []Issue `json:"warnings,omitempty"`
	Errors   []Issue `json:"errors,omitempty"`

	// Completed is true only when every table was written: a store failure
	// or a dropped collection leaves it false.
	Completed bool `json:"completed"`
}

// AddIssues files each issue under warnings or errors by severity.
func (r *RunReport) AddIssues(issues ...Issue) {
	for _, i := range issues {
		if i.Severity() == SeverityError {
			r.Errors = append(r.Errors, i)
		} else {
			r.Warnings = append(r.Warnings, i)
		}
	}
}

// Duration is the wall time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
