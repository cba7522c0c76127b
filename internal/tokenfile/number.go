// Copyright 2025 EngFlow Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tokenfile

import (
	"fmt"
	"strings"

	"github.com/EngFlow/ccfront/internal/cc"
)

// NumberClass is the result of re-scanning a pp-number against the C23
// constant grammar.
type NumberClass int

const (
	IntegerConstant NumberClass = iota
	FloatingConstant
)

// numState drives the classifier. The pp-number lexer is deliberately lax;
// this explicit machine applies the real constant syntax: base prefixes,
// digit runs with ' separators (which may not begin, end, or double),
// fraction parts, exponents and suffixes.
type numState int

const (
	stateStart numState = iota
	stateZero           // leading 0: octal, or a base prefix follows
	stateDec            // decimal digits
	stateOct            // digits after a leading 0
	stateHex            // digits after 0x
	stateBin            // digits after 0b
	stateDecFrac        // digits after . in a decimal constant
	stateHexFrac        // digits after . in a hex constant
	stateDecExp         // digits after e/E
	stateHexExp         // digits after p/P
	stateSuffix
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", cc.ErrInvalidNumber, fmt.Sprintf(format, args...))
}

// ClassifyNumber decides whether a pp-number lexeme is an integer or a
// floating constant and validates it. Separator, digit, exponent and
// suffix misuse fail with cc.ErrInvalidNumber.
func ClassifyNumber(lexeme string) (NumberClass, error) {
	state := stateStart
	// Octal digit checking is deferred: 089 is invalid, but 089.5 is a
	// valid decimal floating constant.
	sawNonOctalDigit := false
	lastWasSeparator := false
	sawDigitInRun := false
	suffixStart := -1

	isDigitFor := func(state numState, c byte) bool {
		switch state {
		case stateHex, stateHexFrac:
			return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
		case stateBin:
			return c == '0' || c == '1'
		default:
			return c >= '0' && c <= '9'
		}
	}

	i := 0
scan:
	for ; i < len(lexeme); i++ {
		c := lexeme[i]
		switch state {
		case stateStart:
			switch {
			case c == '0':
				state = stateZero
			case c >= '1' && c <= '9':
				state = stateDec
			case c == '.':
				state = stateDecFrac
				sawDigitInRun = false
				continue
			default:
				return 0, invalid("constant %q cannot start with %q", lexeme, c)
			}
			sawDigitInRun = true

		case stateZero:
			switch {
			case c == 'x' || c == 'X':
				state = stateHex
				sawDigitInRun = false
			case c == 'b' || c == 'B':
				state = stateBin
				sawDigitInRun = false
			case c >= '0' && c <= '9':
				state = stateOct
				if c >= '8' {
					sawNonOctalDigit = true
				}
			case c == '\'':
				state = stateOct
				lastWasSeparator = true
			case c == '.':
				state = stateDecFrac
			case c == 'e' || c == 'E':
				state = stateDecExp
				if err := checkExponentStart(lexeme, &i); err != nil {
					return 0, err
				}
				sawDigitInRun = false
			default:
				suffixStart = i
				break scan
			}

		case stateDec, stateOct, stateHex, stateBin, stateDecFrac, stateHexFrac:
			switch {
			case isDigitFor(state, c):
				if state == stateOct && c >= '8' {
					sawNonOctalDigit = true
				}
				sawDigitInRun = true
				lastWasSeparator = false
			case c == '\'':
				if !sawDigitInRun || lastWasSeparator {
					return 0, invalid("separator misplaced in %q", lexeme)
				}
				lastWasSeparator = true
			case c == '.' && (state == stateDec || state == stateOct):
				if lastWasSeparator {
					return 0, invalid("separator before point in %q", lexeme)
				}
				state = stateDecFrac
			case c == '.' && state == stateHex:
				if lastWasSeparator {
					return 0, invalid("separator before point in %q", lexeme)
				}
				state = stateHexFrac
			case (c == 'e' || c == 'E') && (state == stateDec || state == stateOct || state == stateDecFrac):
				if lastWasSeparator || !sawDigitInRun && state != stateDecFrac {
					return 0, invalid("misplaced exponent in %q", lexeme)
				}
				if state == stateDecFrac && !sawDigitInRun && !strings.ContainsAny(lexeme[:i], "0123456789") {
					return 0, invalid("exponent without digits in %q", lexeme)
				}
				state = stateDecExp
				if err := checkExponentStart(lexeme, &i); err != nil {
					return 0, err
				}
				sawDigitInRun = false
				lastWasSeparator = false
			case (c == 'p' || c == 'P') && (state == stateHex || state == stateHexFrac):
				if lastWasSeparator {
					return 0, invalid("misplaced exponent in %q", lexeme)
				}
				state = stateHexExp
				if err := checkExponentStart(lexeme, &i); err != nil {
					return 0, err
				}
				sawDigitInRun = false
				lastWasSeparator = false
			default:
				suffixStart = i
				break scan
			}

		case stateDecExp, stateHexExp:
			switch {
			case c >= '0' && c <= '9':
				sawDigitInRun = true
				lastWasSeparator = false
			case c == '\'':
				if !sawDigitInRun || lastWasSeparator {
					return 0, invalid("separator misplaced in %q", lexeme)
				}
				lastWasSeparator = true
			default:
				suffixStart = i
				break scan
			}
		}
	}

	if lastWasSeparator {
		return 0, invalid("separator ends digit run in %q", lexeme)
	}

	floating := false
	switch state {
	case stateStart:
		return 0, invalid("empty constant")
	case stateDecFrac, stateDecExp:
		floating = true
	case stateHexFrac:
		return 0, invalid("hex floating constant %q requires a binary exponent", lexeme)
	case stateHexExp:
		floating = true
	case stateHex, stateBin:
		if !sawDigitInRun {
			return 0, invalid("base prefix without digits in %q", lexeme)
		}
	case stateZero, stateDec, stateOct:
	}
	if (state == stateDecExp || state == stateHexExp) && !sawDigitInRun {
		return 0, invalid("exponent without digits in %q", lexeme)
	}
	if state == stateDecFrac && !sawDigitInRun && !strings.ContainsAny(lexeme, "0123456789") {
		return 0, invalid("point without digits in %q", lexeme)
	}

	suffix := ""
	if suffixStart >= 0 {
		suffix = lexeme[suffixStart:]
	}
	if floating {
		if err := checkFloatingSuffix(lexeme, suffix, state == stateHexExp); err != nil {
			return 0, err
		}
		return FloatingConstant, nil
	}

	// A floating suffix on a bare digit sequence is illegal: floating
	// constants need a point or an exponent.
	if isFloatingSuffix(suffix) || suffix == "f" || suffix == "F" {
		return 0, invalid("floating suffix %q on integer constant %q", suffix, lexeme)
	}
	if sawNonOctalDigit {
		return 0, invalid("digit 8 or 9 in octal constant %q", lexeme)
	}
	if err := checkIntegerSuffix(lexeme, suffix); err != nil {
		return 0, err
	}
	return IntegerConstant, nil
}

// checkExponentStart consumes an optional sign after e/E/p/P.
func checkExponentStart(lexeme string, i *int) error {
	if *i+1 < len(lexeme) && (lexeme[*i+1] == '+' || lexeme[*i+1] == '-') {
		*i++
	}
	return nil
}

// checkIntegerSuffix validates the unsigned / width suffix combinations:
// at most one of u/U, at most one of l/L/ll/LL/wb/WB, in either order.
func checkIntegerSuffix(lexeme, suffix string) error {
	sawUnsigned := false
	sawWidth := false
	rest := suffix
	for rest != "" {
		switch {
		case rest[0] == 'u' || rest[0] == 'U':
			if sawUnsigned {
				return invalid("repeated unsigned suffix in %q", lexeme)
			}
			sawUnsigned = true
			rest = rest[1:]
		case strings.HasPrefix(rest, "ll") || strings.HasPrefix(rest, "LL"):
			if sawWidth {
				return invalid("conflicting width suffixes in %q", lexeme)
			}
			sawWidth = true
			rest = rest[2:]
		case rest[0] == 'l' || rest[0] == 'L':
			if sawWidth {
				return invalid("conflicting width suffixes in %q", lexeme)
			}
			sawWidth = true
			rest = rest[1:]
		case strings.HasPrefix(rest, "wb") || strings.HasPrefix(rest, "WB"):
			if sawWidth {
				return invalid("conflicting width suffixes in %q", lexeme)
			}
			sawWidth = true
			rest = rest[2:]
		default:
			return invalid("bad integer suffix %q in %q", suffix, lexeme)
		}
	}
	return nil
}

// isFloatingSuffix recognises the decimal floating suffixes that may
// follow a bare digit sequence.
func isFloatingSuffix(suffix string) bool {
	switch suffix {
	case "df", "dd", "dl", "DF", "DD", "DL":
		return true
	}
	return false
}

// checkFloatingSuffix validates f/F/l/L and the decimal floating suffixes.
// Decimal suffixes are rejected on hex floats.
func checkFloatingSuffix(lexeme, suffix string, isHex bool) error {
	switch suffix {
	case "", "f", "F", "l", "L":
		return nil
	case "df", "dd", "dl", "DF", "DD", "DL":
		if isHex {
			return invalid("decimal floating suffix on hex constant %q", lexeme)
		}
		return nil
	}
	return invalid("bad floating suffix %q in %q", suffix, lexeme)
}
