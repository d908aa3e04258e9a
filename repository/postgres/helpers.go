package postgres

import "encoding/json"

func marshalJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("[]")
	}
	return b
}

func unmarshalStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var out []string
	_ = json.Unmarshal(data, &out)
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}
