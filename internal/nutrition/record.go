package nutrition

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseRecord reads the six nutrient keys from a JSON object. Absent,
// null or unparseable values become 0; the call never fails.
func ParseRecord(data []byte) Record {
	if !gjson.ValidBytes(data) {
		return Record{}
	}
	obj := gjson.ParseBytes(data)
	if !obj.IsObject() {
		return Record{}
	}
	return Record{
		Sugar:    number(obj.Get("sugar")),
		SatFat:   number(obj.Get("sat_fat")),
		Sodium:   number(obj.Get("sodium")),
		Fiber:    number(obj.Get("fiber")),
		Protein:  number(obj.Get("protein")),
		Calories: number(obj.Get("calories")),
	}
}

func number(v gjson.Result) float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
