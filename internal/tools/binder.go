package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Args holds arguments after binding: every declared parameter is present,
// typed as string, int64, float64, bool, or nil for a null optional.
type Args map[string]any

// String returns a string argument.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Int returns an integer argument.
func (a Args) Int(name string) int64 {
	v, _ := a[name].(int64)
	return v
}

// IntPtr returns an integer argument, or nil when it was bound to null.
func (a Args) IntPtr(name string) *int64 {
	v, ok := a[name].(int64)
	if !ok {
		return nil
	}
	return &v
}

// Float returns a number argument.
func (a Args) Float(name string) float64 {
	v, _ := a[name].(float64)
	return v
}

// Bool returns a boolean argument.
func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

// Bind validates raw arguments against params and fills in defaults.
// Keys in raw that are not declared are ignored.
func Bind(params []ParameterDef, raw map[string]any) (Args, error) {
	args := make(Args, len(params))
	for _, p := range params {
		value, present := raw[p.Name]
		if present && value == nil && !p.Required {
			present = false
		}

		if !present {
			if p.Required {
				return nil, &MissingArgumentError{Param: p.Name}
			}
			def, err := coerce(p, p.Default)
			if err != nil {
				return nil, err
			}
			args[p.Name] = def
			continue
		}

		bound, err := coerce(p, value)
		if err != nil {
			return nil, err
		}
		args[p.Name] = bound
	}
	return args, nil
}

// coerce converts a decoded JSON value to the parameter's declared type.
func coerce(p ParameterDef, value any) (any, error) {
	if value == nil {
		if p.Nullable {
			return nil, nil
		}
		return nil, &TypeMismatchError{Param: p.Name, Expected: p.Type, Value: value}
	}

	mismatch := &TypeMismatchError{Param: p.Name, Expected: p.Type, Value: value}
	switch p.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, mismatch
		}
		return s, nil

	case TypeInteger:
		f, ok := toFloat(value)
		if !ok || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
			return nil, mismatch
		}
		if i, ok := toInt(value); ok {
			return i, nil
		}
		if f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, mismatch
		}
		return int64(f), nil

	case TypeNumber:
		f, ok := toFloat(value)
		if !ok {
			return nil, mismatch
		}
		return f, nil

	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, mismatch
			}
			return b, nil
		}
		return nil, mismatch
	}
	return nil, mismatch
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// toInt keeps full precision for values that already are integers.
func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	}
	return 0, false
}
