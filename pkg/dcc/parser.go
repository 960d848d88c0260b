// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcc

import "strings"

// CommandSeparator joins independent commands on one input line
const CommandSeparator = "#"

// maxFields is the number of numeric fields a command token can carry
const maxFields = 3

// MaxFieldValue bounds every numeric field. Longer digit runs saturate at
// MaxFieldValue+1, which is outside every CV, address, speed and function
// range.
const MaxFieldValue = 1 << 20

// accumulate appends digit d to v, saturating above MaxFieldValue
func accumulate(v, d int) int {
	if v > MaxFieldValue {
		return MaxFieldValue + 1
	}
	v = v*10 + d
	if v > MaxFieldValue {
		return MaxFieldValue + 1
	}
	return v
}

// Field is an optional numeric command argument. An unset field is distinct
// from an explicit zero.
type Field struct {
	Value int
	Set   bool
}

// Or returns the field value, or def when the field is unset
func (f Field) Or(def int) int {
	if !f.Set {
		return def
	}
	return f.Value
}

// ParsedCommand is the result of parsing one command token
type ParsedCommand struct {
	Primary   Field
	Secondary Field
	Tertiary  Field
	Trailing  string
}

// Fields returns the three numeric fields in order
func (p ParsedCommand) Fields() [maxFields]Field {
	return [maxFields]Field{p.Primary, p.Secondary, p.Tertiary}
}

// IsDigit reports whether c is one of the ASCII digits 0-9
func IsDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Parse extracts up to three comma separated numeric fields from a token.
// Non-digit characters are skipped. The third comma ends numeric scanning;
// the rest of the token after it is returned verbatim as Trailing.
func Parse(token string) ParsedCommand {
	var fields [maxFields]Field
	pos := 0
	i := 0
	for i < len(token) {
		c := token[i]
		i++
		if IsDigit(c) {
			d := int(c - '0')
			if fields[pos].Set {
				fields[pos].Value = accumulate(fields[pos].Value, d)
			} else {
				fields[pos] = Field{Value: d, Set: true}
			}
			continue
		}
		if c == ',' {
			pos++
			if pos >= maxFields {
				break
			}
		}
	}
	return ParsedCommand{
		Primary:   fields[0],
		Secondary: fields[1],
		Tertiary:  fields[2],
		Trailing:  token[i:],
	}
}

// SplitCommands splits an input line on '#' into tokens, keeping order and
// dropping empty tokens.
func SplitCommands(line string) []string {
	parts := strings.Split(line, CommandSeparator)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

// Verb returns the case-folded leading character of a token, or 0 for an
// empty token.
func Verb(token string) byte {
	if token == "" {
		return 0
	}
	c := token[0]
	if c >= 'A' && c <= 'Z' {
		c += 'a' - 'A'
	}
	return c
}

// ParseValue parses a string made only of ASCII digits. Any other character,
// or an empty string, is rejected.
func ParseValue(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	v := 0
	for i := 0; i < len(s); i++ {
		if !IsDigit(s[i]) {
			return 0, false
		}
		v = accumulate(v, int(s[i]-'0'))
		if v > MaxFieldValue {
			return 0, false
		}
	}
	return v, true
}

// ParsePoM parses programming-on-main arguments "<verb>addr,cv,value". Fields
// may be separated by ',' or '*'; the verb character is skipped.
func ParsePoM(token string) (addr, cv, value int) {
	field := 0
	val := 0
	for i := 1; i < len(token); i++ {
		c := token[i]
		if IsDigit(c) {
			val = accumulate(val, int(c-'0'))
			continue
		}
		if c != ',' && c != '*' {
			continue
		}
		switch field {
		case 0:
			addr = val
		case 1:
			cv = val
		default:
			continue
		}
		field++
		val = 0
	}
	return addr, cv, val
}
