package intake

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/priorauth/internal/model"
)

// Row is one parsed CSV record. Err is set when the row could not be mapped
// to a case; the stream continues after a bad row.
type Row struct {
	Line int
	Case model.RawCase
	Err  error
}

// streamRecords reads raw CSV records, header included, onto a channel.
// Both channels are closed when the reader is exhausted, on a fatal read
// error (sent on the error channel) or when ctx is done.
func streamRecords(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	recCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		for line := 1; ; line++ {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "intake: csv cancelled")
				return
			}
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "intake: read csv line %d", line)
				return
			}
			select {
			case recCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "intake: csv cancelled")
				return
			}
		}
	}()

	return recCh, errCh
}

// StreamCSV reads a headered CSV of cases and sends one Row per record.
// A header without a patient_id column is a fatal error.
func StreamCSV(ctx context.Context, r io.Reader) (<-chan Row, <-chan error) {
	rowCh := make(chan Row, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		records, recErrs := streamRecords(ctx, r)

		var cols map[string]int
		line := 0
		for record := range records {
			line++
			if cols == nil {
				cols = headerIndex(record)
				if _, ok := cols["patient_id"]; !ok {
					errCh <- eris.Wrap(ErrMissingField, "intake: csv header has no patient_id column")
					return
				}
				continue
			}

			c, mapErr := caseFromRecord(cols, record)
			select {
			case rowCh <- Row{Line: line, Case: c, Err: mapErr}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "intake: csv cancelled")
				return
			}
		}
		if err := <-recErrs; err != nil {
			errCh <- err
		}
	}()

	return rowCh, errCh
}

// ReadCSV collects every row of a cases CSV. Rows that fail to map are
// returned alongside the good cases, keyed by line number.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.RawCase, map[int]error, error) {
	rows, errs := StreamCSV(ctx, r)
	var cases []model.RawCase
	bad := map[int]error{}
	for row := range rows {
		if row.Err != nil {
			bad[row.Line] = row.Err
			continue
		}
		cases = append(cases, row.Case)
	}
	if err := <-errs; err != nil {
		return cases, bad, err
	}
	return cases, bad, nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		idx[key] = i
	}
	return idx
}

func caseFromRecord(cols map[string]int, record []string) (model.RawCase, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	c := model.RawCase{
		PatientID:           get("patient_id"),
		Name:                get("name"),
		Gender:              get("gender"),
		Diagnosis:           get("diagnosis"),
		ICDCode:             get("icd_code"),
		RequestedMedication: get("requested_medication"),
		Dosage:              get("dosage"),
		Duration:            get("duration"),
		PreviousTreatments:  model.DelimitedList(unwrapListLiteral(get("previous_treatments"))),
		Allergies:           get("allergies"),
		InsuranceTier:       get("insurance_tier"),
		PriorAuthHistory:    get("prior_auth_history"),
		Urgency:             get("urgency"),
		ProviderName:        get("provider_name"),
		MemberID:            get("member_id"),
		SubmissionDate:      get("submission_date"),
		ClinicalNote:        get("clinical_note"),
	}

	if s := get("age"); s != "" {
		age, err := strconv.Atoi(s)
		if err != nil {
			return c, eris.Wrapf(err, "intake: patient %s: age %q", c.PatientID, s)
		}
		c.Age = age
	}
	if s := get("cost_per_month"); s != "" {
		cost, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
		if err != nil {
			return c, eris.Wrapf(err, "intake: patient %s: cost_per_month %q", c.PatientID, s)
		}
		c.CostPerMonth = cost
		c.CostProvided = true
	}
	return c, nil
}

// unwrapListLiteral turns exported list literals like "['A', 'B']" into
// "A, B". Plain delimited strings pass through.
func unwrapListLiteral(s string) string {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `'"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
