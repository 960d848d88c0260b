// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcc

import (
	"fmt"
	"testing"
)

func set(v int) Field { return Field{Value: v, Set: true} }

var unset = Field{}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  ParsedCommand
	}{
		{
			name:  "loco with name",
			token: "L3,1,128,Neue Lok",
			want:  ParsedCommand{set(3), set(1), set(128), "Neue Lok"},
		},
		{
			name:  "turnout",
			token: "W2,0",
			want:  ParsedCommand{set(2), set(0), unset, ""},
		},
		{
			name:  "signal",
			token: "S4,128",
			want:  ParsedCommand{set(4), set(128), unset, ""},
		},
		{
			name:  "single field",
			token: "v40",
			want:  ParsedCommand{set(40), unset, unset, ""},
		},
		{
			name:  "verb only",
			token: "d",
			want:  ParsedCommand{unset, unset, unset, ""},
		},
		{
			name:  "empty middle field stays unset",
			token: "L3,,28",
			want:  ParsedCommand{set(3), unset, set(28), ""},
		},
		{
			name:  "explicit zero is set",
			token: "W0",
			want:  ParsedCommand{set(0), unset, unset, ""},
		},
		{
			name:  "trailing keeps digits and commas",
			token: "L5,0,28,BR 218,2",
			want:  ParsedCommand{set(5), set(0), set(28), "BR 218,2"},
		},
		{
			name:  "trailing keeps case",
			token: "l7,1,128,Taurus",
			want:  ParsedCommand{set(7), set(1), set(128), "Taurus"},
		},
		{
			name:  "third comma at end",
			token: "L3,1,128,",
			want:  ParsedCommand{set(3), set(1), set(128), ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.token)
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.token, got, tt.want)
			}
		})
	}
}

func TestParse_MultiCommandLine(t *testing.T) {
	tokens := SplitCommands("L3,1,128,Neue Lok#S4,3#W1,1")
	if len(tokens) != 3 {
		t.Fatalf("SplitCommands returned %d tokens, want 3", len(tokens))
	}

	want := []ParsedCommand{
		{set(3), set(1), set(128), "Neue Lok"},
		{set(4), set(3), unset, ""},
		{set(1), set(1), unset, ""},
	}
	verbs := []byte{'l', 's', 'w'}
	for i, tok := range tokens {
		if got := Parse(tok); got != want[i] {
			t.Errorf("Parse(%q) = %+v, want %+v", tok, got, want[i])
		}
		if got := Verb(tok); got != verbs[i] {
			t.Errorf("Verb(%q) = %q, want %q", tok, got, verbs[i])
		}
	}
}

func TestSplitCommands_DropsEmpty(t *testing.T) {
	tokens := SplitCommands("#V40##H#")
	if len(tokens) != 2 || tokens[0] != "V40" || tokens[1] != "H" {
		t.Errorf("SplitCommands = %q", tokens)
	}
}

func TestIsDigit(t *testing.T) {
	for c := 0; c < 256; c++ {
		want := c >= '0' && c <= '9'
		if got := IsDigit(byte(c)); got != want {
			t.Errorf("IsDigit(%q) = %v, want %v", c, got, want)
		}
	}
}

func TestField_Or(t *testing.T) {
	if unset.Or(7) != 7 {
		t.Error("unset field should return default")
	}
	if set(0).Or(7) != 0 {
		t.Error("explicit zero should not be replaced by default")
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"29", 29, true},
		{"0", 0, true},
		{"", 0, false},
		{"12a", 0, false},
		{" 1", 0, false},
		{"-1", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseValue(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseValue(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParsePoM(t *testing.T) {
	tests := []struct {
		token           string
		addr, cv, value int
	}{
		{"P3,29,34", 3, 29, 34},
		{"a12*1*5", 12, 1, 5},
		{"P1234,3", 1234, 0, 3},
		{"P", 0, 0, 0},
	}
	for _, tt := range tests {
		addr, cv, value := ParsePoM(tt.token)
		if addr != tt.addr || cv != tt.cv || value != tt.value {
			t.Errorf("ParsePoM(%q) = (%d, %d, %d), want (%d, %d, %d)", tt.token, addr, cv, value, tt.addr, tt.cv, tt.value)
		}
	}
}

func TestParse_LongDigitRunSaturates(t *testing.T) {
	overflow := set(MaxFieldValue + 1)

	got := Parse("f9223372036854775808")
	if got.Primary != overflow {
		t.Errorf("Primary = %+v, want %+v", got.Primary, overflow)
	}

	got = Parse("L3,99999999999999999999999,128")
	if got.Primary != set(3) || got.Secondary != overflow || got.Tertiary != set(128) {
		t.Errorf("Parse() = %+v, want 3, saturated, 128", got)
	}

	got = Parse(fmt.Sprintf("v%d", MaxFieldValue))
	if got.Primary != set(MaxFieldValue) {
		t.Errorf("Primary = %+v, want %d", got.Primary, MaxFieldValue)
	}
}

func TestParseValue_RejectsOverflow(t *testing.T) {
	for _, in := range []string{"9223372036854775808", "18446744073709551617"} {
		if v, ok := ParseValue(in); ok {
			t.Errorf("ParseValue(%q) = (%d, true), want rejection", in, v)
		}
	}
}

func TestParsePoM_LongDigitRunSaturates(t *testing.T) {
	addr, cv, value := ParsePoM("P9223372036854775808,29,99999999999999999999")
	if addr != MaxFieldValue+1 || cv != 29 || value != MaxFieldValue+1 {
		t.Errorf("ParsePoM() = (%d, %d, %d), want (%d, 29, %d)", addr, cv, value, MaxFieldValue+1, MaxFieldValue+1)
	}
}
