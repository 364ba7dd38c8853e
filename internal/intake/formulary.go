package intake

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/priorauth/internal/model"
)

// Drug is one formulary entry.
type Drug struct {
	Name             string  `json:"drug_name"`
	Tier             string  `json:"tier"`
	Cost             float64 `json:"cost"`
	GenericAvailable bool    `json:"generic_available"`
}

// Formulary maps drug names (case-insensitive) to entries.
type Formulary map[string]Drug

// Lookup finds a drug by name.
func (f Formulary) Lookup(name string) (Drug, bool) {
	d, ok := f[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// Apply fills a missing insurance tier or monthly cost from the formulary
// entry of the requested medication. Values already set are kept, including
// an explicit cost of 0.
func (f Formulary) Apply(raw model.RawCase) model.RawCase {
	d, ok := f.Lookup(raw.RequestedMedication)
	if !ok {
		return raw
	}
	if raw.InsuranceTier == "" {
		raw.InsuranceTier = d.Tier
	}
	if !raw.HasCost() {
		raw.CostPerMonth = d.Cost
	}
	return raw
}

// LoadFormulary reads a formulary CSV from disk.
func LoadFormulary(ctx context.Context, path string) (Formulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "intake: open formulary %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ParseFormulary(ctx, f)
}

// ParseFormulary reads drug_name,tier,cost,generic_available rows.
func ParseFormulary(ctx context.Context, r io.Reader) (Formulary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	rows, errs := streamRecords(ctx, r)

	var header map[string]int
	out := Formulary{}
	for rec := range rows {
		if header == nil {
			header = headerIndex(rec)
			if _, ok := header["drug_name"]; !ok {
				return nil, eris.Wrap(ErrMissingField, "intake: formulary header has no drug_name column")
			}
			continue
		}
		d, err := drugFromRecord(header, rec)
		if err != nil {
			return nil, err
		}
		if d.Name != "" {
			out[strings.ToLower(d.Name)] = d
		}
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return out, nil
}

func drugFromRecord(cols map[string]int, rec []string) (Drug, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	d := Drug{Name: get("drug_name"), Tier: get("tier")}
	if s := get("cost"); s != "" {
		cost, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return d, eris.Wrapf(err, "intake: formulary cost for %s", d.Name)
		}
		d.Cost = cost
	}
	if s := get("generic_available"); s != "" {
		generic, err := strconv.ParseBool(s)
		if err != nil {
			return d, eris.Wrapf(err, "intake: formulary generic_available for %s", d.Name)
		}
		d.GenericAvailable = generic
	}
	return d, nil
}
