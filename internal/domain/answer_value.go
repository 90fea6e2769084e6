package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AnswerKind tags the shape of a stored answer.
type AnswerKind int

const (
	AnswerNull AnswerKind = iota
	AnswerNumber
	AnswerText
	// AnswerScale is an object carrying a "value" field, e.g. {"value": 4, "label": "Easy"}.
	AnswerScale
	// AnswerRaw is any other JSON document (arrays, booleans, objects without "value").
	AnswerRaw
)

// AnswerValue is the participant-supplied answer. The original JSON encoding is kept
// for object and raw kinds so the value round-trips unchanged.
type AnswerValue struct {
	kind AnswerKind
	num  float64
	text string
	raw  json.RawMessage
}

func NumberValue(f float64) AnswerValue { return AnswerValue{kind: AnswerNumber, num: f} }

func TextValue(s string) AnswerValue { return AnswerValue{kind: AnswerText, text: s} }

// ParseAnswerValue classifies an arbitrary JSON document.
func ParseAnswerValue(data []byte) (AnswerValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return AnswerValue{}, nil
	}
	if !json.Valid(data) {
		return AnswerValue{}, fmt.Errorf("answer value is not valid JSON")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return AnswerValue{}, err
		}
		return TextValue(s), nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return AnswerValue{}, err
		}
		kind := AnswerRaw
		if _, ok := fields["value"]; ok {
			kind = AnswerScale
		}
		return AnswerValue{kind: kind, raw: append(json.RawMessage(nil), data...)}, nil
	case '[', 't', 'f':
		return AnswerValue{kind: AnswerRaw, raw: append(json.RawMessage(nil), data...)}, nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return AnswerValue{}, err
		}
		return NumberValue(f), nil
	}
}

func (v AnswerValue) Kind() AnswerKind { return v.kind }

func (v AnswerValue) IsNull() bool { return v.kind == AnswerNull }

// Numeric resolves the value to a number: a raw number, or the "value" field of a
// scale object when that field is a number or a numeric string.
func (v AnswerValue) Numeric() (float64, bool) {
	switch v.kind {
	case AnswerNumber:
		return v.num, true
	case AnswerScale:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(v.raw, &fields); err != nil {
			return 0, false
		}
		inner, err := ParseAnswerValue(fields["value"])
		if err != nil {
			return 0, false
		}
		switch inner.kind {
		case AnswerNumber:
			return inner.num, true
		case AnswerText:
			s := strings.TrimSpace(inner.text)
			if s == "" {
				return 0, false
			}
			f, err := strconv.ParseFloat(s, 64)
			return f, err == nil
		}
	}
	return 0, false
}

// CSVString renders plain strings verbatim and everything else as JSON.
func (v AnswerValue) CSVString() string {
	switch v.kind {
	case AnswerNull:
		return ""
	case AnswerText:
		return v.text
	}
	b, _ := v.MarshalJSON()
	return string(b)
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case AnswerNumber:
		return []byte(strconv.FormatFloat(v.num, 'f', -1, 64)), nil
	case AnswerText:
		return json.Marshal(v.text)
	case AnswerScale, AnswerRaw:
		return v.raw, nil
	}
	return []byte("null"), nil
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	parsed, err := ParseAnswerValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Value stores the answer as a JSON document.
func (v AnswerValue) Value() (driver.Value, error) {
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (v *AnswerValue) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v = AnswerValue{}
		return nil
	case []byte:
		return v.UnmarshalJSON(s)
	case string:
		return v.UnmarshalJSON([]byte(s))
	}
	return fmt.Errorf("scan answer value: unsupported type %T", src)
}
