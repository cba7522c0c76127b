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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngFlow/ccfront/internal/cc"
)

// lexAll drains the lexer, failing the test on any non-EOF error.
func lexAll(t *testing.T, input string) []*Token {
	t.Helper()
	lx := New([]byte(input))
	var tokens []*Token
	for {
		tok, err := lx.Next()
		if errors.Is(err, cc.ErrEOF) {
			return tokens
		}
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}
}

func kinds(tokens []*Token) []Kind {
	out := make([]Kind, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Kind
	}
	return out
}

func TestPunctuatorMaxMunch(t *testing.T) {
	testCases := []struct {
		input    string
		expected []Kind
	}{
		{"<<=", []Kind{KindShiftLeftAssign}},
		{"<<<", []Kind{KindShiftLeft, KindLess}},
		{">>=", []Kind{KindShiftRightAssign}},
		{"->-", []Kind{KindArrow, KindMinus}},
		{"--->", []Kind{KindMinusMinus, KindArrow}},
		{"...", []Kind{KindEllipsis}},
		{"..", []Kind{KindDot, KindDot}},
		{"##", []Kind{KindHashHash}},
		{"# #", []Kind{KindHash, KindHash}},
		{"::", []Kind{KindColonColon}},
		{"+=-=", []Kind{KindPlusAssign, KindMinusAssign}},
		{"&&&", []Kind{KindLogicalAnd, KindAmpersand}},
		{"|||=", []Kind{KindLogicalOr, KindOrAssign}},
		{"==!=", []Kind{KindEqual, KindNotEqual}},
		{"(){}[];,?~@`", []Kind{
			KindLeftParen, KindRightParen, KindLeftBrace, KindRightBrace,
			KindLeftBracket, KindRightBracket, KindSemicolon, KindComma,
			KindQuestion, KindTilde, KindAt, KindBacktick,
		}},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, kinds(lexAll(t, tc.input)), "input %q", tc.input)
	}
}

func TestKeywordRekinding(t *testing.T) {
	tokens := lexAll(t, "int x = sizeof unsigned")
	require.Len(t, tokens, 5)
	assert.Equal(t, KindKeywordInt, tokens[0].Kind)
	assert.Equal(t, KindIdentifier, tokens[1].Kind)
	assert.Equal(t, KindAssign, tokens[2].Kind)
	assert.Equal(t, KindKeywordSizeof, tokens[3].Kind)
	assert.Equal(t, KindKeywordUnsigned, tokens[4].Kind)
	assert.True(t, tokens[3].IsIdentifier())
}

func TestWhitespaceFlags(t *testing.T) {
	tokens := lexAll(t, "a b\nc /*x*/ d\n  e")
	require.Len(t, tokens, 5)

	assert.True(t, tokens[0].IsFirst)
	assert.False(t, tokens[0].HasWhiteSpace)

	assert.False(t, tokens[1].IsFirst)
	assert.True(t, tokens[1].HasWhiteSpace)

	assert.True(t, tokens[2].IsFirst)

	assert.False(t, tokens[3].IsFirst)
	assert.True(t, tokens[3].HasWhiteSpace) // comment collapses to whitespace

	assert.True(t, tokens[4].IsFirst)
	assert.True(t, tokens[4].HasWhiteSpace)
}

func TestBlockCommentSpanningLines(t *testing.T) {
	tokens := lexAll(t, "a /* one\ntwo */ b")
	require.Len(t, tokens, 2)
	assert.True(t, tokens[1].IsFirst) // the comment contained a newline
}

func TestPPNumbers(t *testing.T) {
	testCases := []struct {
		input  string
		lexeme string
	}{
		{"123", "123"},
		{"0x1p-3", "0x1p-3"},
		{"1.5e+10f", "1.5e+10f"},
		{".5", ".5"},
		{"1'000'000", "1'000'000"},
		{"0b1010", "0b1010"},
		{"123abc", "123abc"}, // pp-number is lax on purpose
	}
	for _, tc := range testCases {
		tokens := lexAll(t, tc.input)
		require.Len(t, tokens, 1, "input %q", tc.input)
		assert.Equal(t, KindNumber, tokens[0].Kind, "input %q", tc.input)
		assert.Equal(t, tc.lexeme, string(tokens[0].Source), "input %q", tc.input)
	}
}

func TestStringAndCharPrefixes(t *testing.T) {
	testCases := []struct {
		input    string
		expected Kind
	}{
		{`"abc"`, KindStringLiteral},
		{`u8"abc"`, KindUTF8StringLiteral},
		{`u"abc"`, KindUTF16StringLiteral},
		{`U"abc"`, KindUTF32StringLiteral},
		{`L"abc"`, KindWideStringLiteral},
		{`'a'`, KindCharConst},
		{`u8'a'`, KindUTF8CharConst},
		{`u'a'`, KindUTF16CharConst},
		{`U'a'`, KindUTF32CharConst},
		{`L'a'`, KindWideCharConst},
	}
	for _, tc := range testCases {
		tokens := lexAll(t, tc.input)
		require.Len(t, tokens, 1, "input %q", tc.input)
		assert.Equal(t, tc.expected, tokens[0].Kind, "input %q", tc.input)
		assert.Equal(t, tc.input, string(tokens[0].Source), "input %q", tc.input)
	}
}

func TestPrefixWithoutQuoteIsIdentifier(t *testing.T) {
	tokens := lexAll(t, "u8 u L Ux")
	require.Len(t, tokens, 4)
	for _, tok := range tokens {
		assert.Equal(t, KindIdentifier, tok.Kind)
	}
}

func TestEscapedQuoteInsideLiteral(t *testing.T) {
	tokens := lexAll(t, `"a\"b" 'c'`)
	require.Len(t, tokens, 2)
	assert.Equal(t, `"a\"b"`, string(tokens[0].Source))
}

func TestUnterminatedLiteralFails(t *testing.T) {
	for _, input := range []string{`"abc`, "'a", "\"abc\nd\""} {
		lx := New([]byte(input))
		_, err := lx.Next()
		assert.ErrorIs(t, err, cc.ErrInvalidLex, "input %q", input)
	}
}

func TestUCNResolution(t *testing.T) {
	// é resolves to the UTF-8 encoding of U+00E9.
	tokens := lexAll(t, `caf\u00e9`)
	require.Len(t, tokens, 1)
	assert.Equal(t, KindIdentifier, tokens[0].Kind)
	assert.Equal(t, `caf\u00e9`, string(tokens[0].Source))
	assert.Equal(t, "café", string(tokens[0].Resolved))

	// A plain identifier shares source and resolved bytes.
	tokens = lexAll(t, "café")
	require.Len(t, tokens, 1)
	assert.Equal(t, "café", string(tokens[0].Resolved))
}

func TestUCNValidation(t *testing.T) {
	testCases := []struct {
		input string
		valid bool
	}{
		{`a\u0041`, false}, // below U+00A0
		{`a\u0024`, true},  // $ is an explicit exception
		{`a\ud800`, false},      // surrogate
		{`a\U00110000`, false},
		{`a\U0001F600`, true},
	}
	for _, tc := range testCases {
		lx := New([]byte(tc.input))
		_, err := lx.Next()
		if tc.valid {
			assert.NoError(t, err, "input %q", tc.input)
		} else {
			assert.ErrorIs(t, err, cc.ErrInvalidLex, "input %q", tc.input)
		}
	}
}

func TestSpliceTransparency(t *testing.T) {
	// Lexing with splices equals lexing with the \<LF> pairs removed.
	spliced := "int ma\\\nin() { ret\\\nurn 0; }"
	plain := strings.ReplaceAll(spliced, "\\\n", "")

	got := lexAll(t, spliced)
	expected := lexAll(t, plain)
	require.Equal(t, len(expected), len(got))
	for i := range got {
		assert.Equal(t, expected[i].Kind, got[i].Kind)
		assert.Equal(t, string(expected[i].Resolved), string(got[i].Resolved))
	}
}

func TestTokenPositions(t *testing.T) {
	tokens := lexAll(t, "a\n  bb")
	require.Len(t, tokens, 2)
	assert.Equal(t, 1, tokens[0].Pos.Row)
	assert.Equal(t, 1, tokens[0].Pos.Column)
	assert.Equal(t, 2, tokens[1].Pos.Row)
	assert.Equal(t, 3, tokens[1].Pos.Column)

	// Positions strictly increase along the stream.
	prev := -1
	for _, tok := range lexAll(t, "one two(three)\nfour") {
		assert.Greater(t, tok.Pos.Offset, prev)
		prev = tok.Pos.Offset
	}
}

func TestEvaluateCharConst(t *testing.T) {
	testCases := []struct {
		input    string
		expected int64
	}{
		{`'a'`, 'a'},
		{`'\n'`, 0x0a},
		{`'\0'`, 0},
		{`'\''`, '\''},
		{`'\x41'`, 0x41},
		{`'\101'`, 0101},
		{`'é'`, 0xe9},
		{`u'é'`, 0xe9},
		{`U'\U0001F600'`, 0x1f600},
	}
	for _, tc := range testCases {
		tokens := lexAll(t, tc.input)
		require.Len(t, tokens, 1, "input %q", tc.input)
		got, err := EvaluateCharConst(tokens[0])
		require.NoError(t, err, "input %q", tc.input)
		assert.Equal(t, tc.expected, got, "input %q", tc.input)
	}

	tokens := lexAll(t, `'ab'`)
	_, err := EvaluateCharConst(tokens[0])
	assert.ErrorIs(t, err, cc.ErrNotSupported)
}

func TestLexerTotality(t *testing.T) {
	// Every input terminates with EOF without a lexing error.
	inputs := []string{
		"", "\n\n", "int main() {}", "a+b*c", "/* only a comment */",
		"x\\\ny", "#define A 1\nA",
	}
	for _, input := range inputs {
		lx := New([]byte(input))
		for {
			_, err := lx.Next()
			if errors.Is(err, cc.ErrEOF) {
				break
			}
			require.NoError(t, err, "input %q", input)
		}
	}
}
