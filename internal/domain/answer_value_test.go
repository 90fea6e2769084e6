package domain

import (
	"encoding/json"
	"testing"
)

func TestParseAnswerValueKinds(t *testing.T) {
	cases := []struct {
		in   string
		kind AnswerKind
	}{
		{`4`, AnswerNumber},
		{`"free text"`, AnswerText},
		{`{"value": 3, "label": "Neutral"}`, AnswerScale},
		{`{"choice": "a"}`, AnswerRaw},
		{`["a","b"]`, AnswerRaw},
		{`true`, AnswerRaw},
		{`null`, AnswerNull},
	}
	for _, tc := range cases {
		v, err := ParseAnswerValue([]byte(tc.in))
		if err != nil {
			t.Fatalf("parse %s: %v", tc.in, err)
		}
		if v.Kind() != tc.kind {
			t.Fatalf("parse %s: kind %d, want %d", tc.in, v.Kind(), tc.kind)
		}
	}

	if _, err := ParseAnswerValue([]byte(`{broken`)); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestAnswerValueNumeric(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{`4`, 4, true},
		{`{"value": 2}`, 2, true},
		{`{"value": "5"}`, 5, true},
		{`{"value": "n/a"}`, 0, false},
		{`{"value": null}`, 0, false},
		{`"4"`, 0, false},
		{`["4"]`, 0, false},
	}
	for _, tc := range cases {
		v, err := ParseAnswerValue([]byte(tc.in))
		if err != nil {
			t.Fatalf("parse %s: %v", tc.in, err)
		}
		got, ok := v.Numeric()
		if ok != tc.ok || got != tc.want {
			t.Fatalf("numeric %s = (%v,%v), want (%v,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestAnswerValueKeepsOriginalEncoding(t *testing.T) {
	var payload struct {
		Value AnswerValue `json:"value"`
	}
	if err := json.Unmarshal([]byte(`{"value":{"value":4,"label":"Easy"}}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"value":{"value":4,"label":"Easy"}}` {
		t.Fatalf("unexpected encoding %s", out)
	}
	if got := payload.Value.CSVString(); got != `{"value":4,"label":"Easy"}` {
		t.Fatalf("csv string = %s", got)
	}
	if got := TextValue("plain").CSVString(); got != "plain" {
		t.Fatalf("text csv string = %s", got)
	}
}
