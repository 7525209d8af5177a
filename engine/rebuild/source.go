// Package rebuild implements the reconciliation path: loading the canonical
// jobs dataset, rebuilding the knowledge graph from scratch, training
// structural embeddings over it, and atomically swapping the result into the
// live store on a schedule.
package rebuild

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/careerhunt/kg-engine/engine/domain"
	"github.com/careerhunt/kg-engine/engine/graph"
)

// JobRow is one row of the canonical jobs dataset.
type JobRow struct {
	JobID          string
	Title          string
	Company        string
	RequiredSkills []string
}

var requiredColumns = []string{"job_id", "title", "company", "required_skills"}

// LoadJobsCSV reads and validates the canonical source. Any structural
// problem, a missing file, missing required columns, or zero data rows,
// is a source-invalid error that must abort the rebuild.
func LoadJobsCSV(path string) ([]JobRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrSourceInvalid, path, err)
	}
	defer f.Close()
	return readJobs(f)
}

func readJobs(r io.Reader) ([]JobRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", domain.ErrSourceInvalid, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", domain.ErrSourceInvalid, strings.Join(missing, ", "))
	}

	var rows []JobRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read row: %v", domain.ErrSourceInvalid, err)
		}
		field := func(name string) string {
			i := cols[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		rows = append(rows, JobRow{
			JobID:          field("job_id"),
			Title:          field("title"),
			Company:        field("company"),
			RequiredSkills: splitSkills(field("required_skills")),
		})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: source is empty", domain.ErrSourceInvalid)
	}
	return rows, nil
}

func splitSkills(s string) []string {
	var out []string
	for _, sk := range strings.Split(s, ",") {
		if sk = strings.TrimSpace(sk); sk != "" {
			out = append(out, sk)
		}
	}
	return out
}

// BuildGraph constructs the authoritative graph: one job and one company
// node per row joined by a POSTED_BY edge, one skill node per parsed skill
// joined by a REQUIRES_SKILL edge. The incremental-update log is not
// replayed; the dataset alone is the source of truth.
func BuildGraph(rows []JobRow) *graph.Graph {
	g := graph.New()
	for _, row := range rows {
		job := domain.JobID(row.JobID)
		g.Add(job, domain.Metadata{"title": row.Title, "company": row.Company})

		if row.Company != "" {
			company := domain.CompanyID(row.Company)
			g.Add(company, domain.Metadata{"name": row.Company})
			g.AddRelation(job, company, graph.RelPostedBy)
		}
		for _, skill := range row.RequiredSkills {
			sk := domain.SkillID(skill)
			g.Add(sk, domain.Metadata{"name": skill})
			g.AddRelation(job, sk, graph.RelRequiresSkill)
		}
	}
	return g
}
