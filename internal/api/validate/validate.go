package validate

import (
	"strconv"
	"strings"
	"time"
)

type ErrField struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

type Errs []ErrField

func (e Errs) Error() string {
	var b strings.Builder
	for i, ef := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(ef.Field + ": " + ef.Msg)
	}
	return b.String()
}

// Collect drops the nil checks and returns nil when every check passed.
func Collect(checks ...*ErrField) Errs {
	var out Errs
	for _, c := range checks {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

func Required(field, value string) *ErrField {
	if strings.TrimSpace(value) == "" {
		return &ErrField{Field: field, Msg: "required"}
	}
	return nil
}

func MinInt(field string, v, min int64) *ErrField {
	if v < min {
		return &ErrField{Field: field, Msg: "must be >= " + strconv.FormatInt(min, 10)}
	}
	return nil
}

func NonZero(field string, v int64) *ErrField {
	if v == 0 {
		return &ErrField{Field: field, Msg: "must not be zero"}
	}
	return nil
}

// IntParam parses an optional integer query parameter. Empty yields def.
func IntParam(field, raw string, def int) (int, *ErrField) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, &ErrField{Field: field, Msg: "must be an integer"}
	}
	return n, nil
}

// TimeParam parses an optional RFC 3339 timestamp.
func TimeParam(field, raw string) (*time.Time, *ErrField) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, &ErrField{Field: field, Msg: "must be an RFC 3339 timestamp"}
	}
	return &t, nil
}

// BoolParam accepts 1/0, true/false and yes/no.
func BoolParam(field, raw string) (bool, *ErrField) {
	switch strings.ToLower(raw) {
	case "", "0", "false", "no":
		return false, nil
	case "1", "true", "yes":
		return true, nil
	}
	return false, &ErrField{Field: field, Msg: "must be a boolean"}
}
