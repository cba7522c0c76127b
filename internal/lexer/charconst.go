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

package lexer

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/EngFlow/ccfront/internal/cc"
)

// EvaluateCharConst computes the numeric value of a character constant
// token. Only single-code-point constants are supported; multi-character
// constants fail with cc.ErrNotSupported.
func EvaluateCharConst(tok *Token) (int64, error) {
	if !tok.Kind.IsCharConst() {
		return 0, fmt.Errorf("%w: token %q is not a character constant", cc.ErrInvalidLex, tok.Text())
	}
	body := tok.Source
	open := bytes.IndexByte(body, '\'')
	if open < 0 || body[len(body)-1] != '\'' {
		return 0, fmt.Errorf("%w: malformed character constant %q", cc.ErrInvalidLex, tok.Text())
	}
	body = body[open+1 : len(body)-1]
	if len(body) == 0 {
		return 0, fmt.Errorf("%w: empty character constant", cc.ErrInvalidLex)
	}

	value, rest, err := decodeOne(body)
	if err != nil {
		return 0, err
	}
	if len(rest) != 0 {
		return 0, fmt.Errorf("%w: multi-character constant %q", cc.ErrNotSupported, tok.Text())
	}
	return value, nil
}

// decodeOne decodes one character or escape sequence from the constant
// body, returning its value and the unconsumed remainder.
func decodeOne(body []byte) (int64, []byte, error) {
	if body[0] != '\\' {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			return 0, nil, fmt.Errorf("%w: malformed UTF-8 in character constant", cc.ErrInvalidLex)
		}
		return int64(r), body[size:], nil
	}
	if len(body) < 2 {
		return 0, nil, fmt.Errorf("%w: truncated escape sequence", cc.ErrInvalidLex)
	}
	switch c := body[1]; c {
	case '\'', '"', '?', '\\':
		return int64(c), body[2:], nil
	case 'a':
		return 0x07, body[2:], nil
	case 'b':
		return 0x08, body[2:], nil
	case 'f':
		return 0x0c, body[2:], nil
	case 'n':
		return 0x0a, body[2:], nil
	case 'r':
		return 0x0d, body[2:], nil
	case 't':
		return 0x09, body[2:], nil
	case 'v':
		return 0x0b, body[2:], nil
	case 'x':
		return decodeHexEscape(body[2:])
	case 'u':
		return decodeUCNEscape(body[2:], 4)
	case 'U':
		return decodeUCNEscape(body[2:], 8)
	case '0', '1', '2', '3', '4', '5', '6', '7':
		return decodeOctalEscape(body[1:])
	default:
		return 0, nil, fmt.Errorf("%w: unknown escape sequence \\%c", cc.ErrInvalidLex, c)
	}
}

func decodeHexEscape(body []byte) (int64, []byte, error) {
	var value int64
	i := 0
	for ; i < len(body); i++ {
		d := hexDigit(rune(body[i]))
		if d < 0 {
			break
		}
		if value > (1 << 56) {
			return 0, nil, fmt.Errorf("%w: hex escape overflows", cc.ErrInvalidLex)
		}
		value = value<<4 | int64(d)
	}
	if i == 0 {
		return 0, nil, fmt.Errorf("%w: hex escape without digits", cc.ErrInvalidLex)
	}
	return value, body[i:], nil
}

func decodeOctalEscape(body []byte) (int64, []byte, error) {
	var value int64
	i := 0
	for ; i < len(body) && i < 3; i++ {
		if body[i] < '0' || body[i] > '7' {
			break
		}
		value = value<<3 | int64(body[i]-'0')
	}
	return value, body[i:], nil
}

func decodeUCNEscape(body []byte, digits int) (int64, []byte, error) {
	if len(body) < digits {
		return 0, nil, fmt.Errorf("%w: truncated universal character name", cc.ErrInvalidLex)
	}
	var value rune
	for i := range digits {
		d := hexDigit(rune(body[i]))
		if d < 0 {
			return 0, nil, fmt.Errorf("%w: bad hex digit in universal character name", cc.ErrInvalidLex)
		}
		value = value<<4 | rune(d)
	}
	if err := validateUCN(value); err != nil {
		return 0, nil, err
	}
	return int64(value), body[digits:], nil
}
