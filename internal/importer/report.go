package importer

import "encoding/json"

type Status int

const (
	StatusImported Status = iota + 1
	StatusDuplicate
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusImported:
		return "imported"
	case StatusDuplicate:
		return "duplicate"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the classification of one feature.
type Outcome struct {
	Index       int
	Status      Status
	Name        string
	Slug        string
	Fingerprint string
	Reason      string
	Err         error
}

// Report lists one Outcome per input feature, in input order.
type Report struct {
	Total      int
	Imported   int
	Duplicates int
	Errors     int
	Outcomes   []Outcome
}

func newReport(outcomes []Outcome) Report {
	r := Report{Total: len(outcomes), Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case StatusImported:
			r.Imported++
		case StatusDuplicate:
			r.Duplicates++
		default:
			r.Errors++
		}
	}
	return r
}

// ImportedSlugs returns the slugs written by this run, in input order.
func (r Report) ImportedSlugs() []string {
	out := make([]string, 0, r.Imported)
	for _, o := range r.Outcomes {
		if o.Status == StatusImported {
			out = append(out, o.Slug)
		}
	}
	return out
}

type rowError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type reportDetails struct {
	Imported   []string   `json:"imported"`
	Duplicates []string   `json:"duplicates"`
	Errors     []rowError `json:"errors"`
}

type reportJSON struct {
	Total      int           `json:"total"`
	Imported   int           `json:"imported"`
	Duplicates int           `json:"duplicates"`
	Errors     int           `json:"errors"`
	Details    reportDetails `json:"details"`
}

func (r Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		Total:      r.Total,
		Imported:   r.Imported,
		Duplicates: r.Duplicates,
		Errors:     r.Errors,
		Details: reportDetails{
			Imported:   []string{},
			Duplicates: []string{},
			Errors:     []rowError{},
		},
	}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusImported:
			out.Details.Imported = append(out.Details.Imported, o.Name)
		case StatusDuplicate:
			out.Details.Duplicates = append(out.Details.Duplicates, o.Name)
		default:
			out.Details.Errors = append(out.Details.Errors, rowError{Name: o.Name, Error: o.Reason})
		}
	}
	return json.Marshal(out)
}
