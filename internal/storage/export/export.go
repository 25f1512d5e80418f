// Package export writes timestamped flat-file mirrors of the records
// persisted during a run.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/weapply/jobharvest/internal/model"
)

// Exporter accumulates records during a run and flushes them to one JSON
// and one CSV file per run. Safe for concurrent Add calls.
type Exporter struct {
	dir   string
	stamp string

	mu      sync.Mutex
	records []model.Record
}

// New creates the export directory if needed. The timestamp fixes the file
// names for the whole run.
func New(dir string, now time.Time) (*Exporter, error) {
	if dir == "" {
		dir = "exports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Exporter{
		dir:   dir,
		stamp: now.Format("20060102_150405"),
	}, nil
}

// Add buffers one record for the final flush.
func (e *Exporter) Add(rec model.Record) {
	e.mu.Lock()
	e.records = append(e.records, rec)
	e.mu.Unlock()
}

// Flush writes the buffered records to jobs_<stamp>.json and .csv, returning
// the written paths. Called once at the end of the run, including on
// interrupt, so normalized-but-unwritten data is not lost.
func (e *Exporter) Flush() ([]string, error) {
	e.mu.Lock()
	records := append([]model.Record(nil), e.records...)
	e.mu.Unlock()

	if len(records) == 0 {
		return nil, nil
	}

	jsonPath := filepath.Join(e.dir, "jobs_"+e.stamp+".json")
	if err := e.writeJSON(jsonPath, records); err != nil {
		return nil, err
	}
	csvPath := filepath.Join(e.dir, "jobs_"+e.stamp+".csv")
	if err := e.writeCSV(csvPath, records); err != nil {
		return []string{jsonPath}, err
	}
	return []string{jsonPath, csvPath}, nil
}

func (e *Exporter) writeJSON(path string, records []model.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

var csvHeader = []string{
	"id", "title", "slug", "company_title", "category_title",
	"salary_amount", "salary_text", "view_count",
	"created_at", "deadline_at", "apply_link",
	"phones", "emails", "websites",
}

func (e *Exporter) writeCSV(path string, records []model.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(csvRow(rec)); err != nil {
			return fmt.Errorf("write csv row for job %d: %w", rec.Job.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func csvRow(rec model.Record) []string {
	job := rec.Job
	salary := ""
	if job.SalaryAmount != nil {
		salary = strconv.FormatFloat(*job.SalaryAmount, 'f', -1, 64)
	}
	return []string{
		strconv.Itoa(job.ID),
		job.Title,
		job.Slug,
		job.CompanyTitle,
		job.CategoryTitle,
		salary,
		job.SalaryText,
		strconv.Itoa(job.ViewCount),
		formatTime(job.CreatedAt),
		formatTime(job.DeadlineAt),
		job.ApplyLink,
		joinPhones(rec.Children.Phones),
		joinEmails(rec.Children.Emails),
		joinWebsites(rec.Children.Websites),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func joinPhones(phones []model.Phone) string {
	out := ""
	for i, p := range phones {
		if i > 0 {
			out += "; "
		}
		out += p.Phone
	}
	return out
}

func joinEmails(emails []model.Email) string {
	out := ""
	for i, e := range emails {
		if i > 0 {
			out += "; "
		}
		out += e.Email
	}
	return out
}

func joinWebsites(sites []model.Website) string {
	out := ""
	for i, s := range sites {
		if i > 0 {
			out += "; "
		}
		out += s.URL
	}
	return out
}
