package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadData reads collection records from a YAML file shaped as
//
//	orders:
//	  - price: 10
//	    qty: 2
//	    active: true
//
// Field values must be integers or booleans.
func LoadData(path string) (Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	return ParseData(raw)
}

// ParseData decodes YAML collection records.
func ParseData(raw []byte) (Data, error) {
	var decoded map[string][]map[string]any
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("parse data file: %w", err)
	}

	data := Data{}
	for name, rows := range decoded {
		out := make([]Row, 0, len(rows))
		for i, row := range rows {
			converted := Row{}
			for field, v := range row {
				switch fv := v.(type) {
				case bool:
					converted[field] = fv
				case int:
					converted[field] = int64(fv)
				case int64:
					converted[field] = fv
				default:
					return nil, fmt.Errorf("collection %q row %d field %q: want int or bool, got %T",
						name, i, field, v)
				}
			}
			out = append(out, converted)
		}
		data[name] = out
	}
	return data, nil
}
