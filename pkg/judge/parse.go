package judge

import (
	"encoding/json"
	"errors"
	"strings"
)

// rawVerdict is the JSON object a model is asked to produce. Field
// aliases cover the spellings models commonly fall back to.
type rawVerdict struct {
	Valid          *bool    `json:"valid"`
	IsValid        *bool    `json:"is_valid"`
	IsValidCamel   *bool    `json:"isValid"`
	Value          any      `json:"value"`
	ExtractedValue any      `json:"extracted_value"`
	Confidence     *float64 `json:"confidence"`
	Reason         string   `json:"reason"`
}

type parsedVerdict struct {
	valid      bool
	value      any
	confidence *float64
	reason     string
}

var errNoVerdict = errors.New("no JSON verdict object in model output")

// parseVerdict extracts the first JSON object with a validity field from
// free-form model output. Code fences and surrounding prose are ignored.
func parseVerdict(text string) (parsedVerdict, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var rv rawVerdict
		if err := dec.Decode(&rv); err == nil {
			if pv, ok := rv.resolve(); ok {
				return pv, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return parsedVerdict{}, errNoVerdict
}

func (rv rawVerdict) resolve() (parsedVerdict, bool) {
	var valid *bool
	for _, v := range []*bool{rv.Valid, rv.IsValid, rv.IsValidCamel} {
		if v != nil {
			valid = v
			break
		}
	}
	if valid == nil {
		return parsedVerdict{}, false
	}
	value := rv.Value
	if value == nil {
		value = rv.ExtractedValue
	}
	return parsedVerdict{valid: *valid, value: value, confidence: rv.Confidence, reason: rv.Reason}, true
}
