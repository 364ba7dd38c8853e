// Package intake turns external case records (JSON documents, CSV exports,
// HTTP bodies) into validated RawCases for the pipeline.
package intake

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/priorauth/internal/model"
)

// DecodeJSON reads one case object. previous_treatments may be a string or
// a list of strings. Unknown fields are ignored.
func DecodeJSON(r io.Reader) (model.RawCase, error) {
	var raw model.RawCase
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return model.RawCase{}, eris.Wrap(err, "intake: decode case")
	}
	return raw, nil
}

// DecodeJSONList reads either a single case object or an array of cases.
func DecodeJSONList(r io.Reader) ([]model.RawCase, error) {
	var msg json.RawMessage
	if err := json.NewDecoder(r).Decode(&msg); err != nil {
		return nil, eris.Wrap(err, "intake: decode cases")
	}
	if len(msg) > 0 && msg[0] == '[' {
		var cases []model.RawCase
		if err := json.Unmarshal(msg, &cases); err != nil {
			return nil, eris.Wrap(err, "intake: decode case list")
		}
		return cases, nil
	}
	var one model.RawCase
	if err := json.Unmarshal(msg, &one); err != nil {
		return nil, eris.Wrap(err, "intake: decode case")
	}
	return []model.RawCase{one}, nil
}
