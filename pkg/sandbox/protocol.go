package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// reportSchema is the contract for result.json written by driver.py.
const reportSchema = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status":  {"enum": ["ok", "syntax_error", "load_error", "missing", "runtime_error"]},
    "message": {"type": "string"},
    "equal":   {"type": "boolean"},
    "result":  {"type": "string"}
  },
  "allOf": [
    {
      "if":   {"properties": {"status": {"const": "ok"}}},
      "then": {"required": ["equal"]}
    }
  ]
}`

var reportSchemaLoader = gojsonschema.NewStringLoader(reportSchema)

type report struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Equal   bool   `json:"equal"`
	Result  string `json:"result"`
}

// decodeReport validates raw driver output against reportSchema before
// decoding it.
func decodeReport(data []byte) (*report, error) {
	result, err := gojsonschema.Validate(reportSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validate report: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			errs[i] = e.String()
		}
		return nil, fmt.Errorf("report does not match schema: %s", strings.Join(errs, "; "))
	}

	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
