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

package cpp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngFlow/ccfront/internal/cc"
)

// preprocess runs the preprocessor over in-memory source and returns the
// emitted lexemes.
func preprocess(t *testing.T, input string) []string {
	t.Helper()
	out, err := tryPreprocess(input)
	require.NoError(t, err)
	return out
}

func tryPreprocess(input string) ([]string, error) {
	p, err := New(nil)
	if err != nil {
		return nil, err
	}
	out := []string{}
	err = p.processBytes([]byte(input), "test.c", func(tok *Token) error {
		out = append(out, tok.Text())
		return nil
	})
	return out, err
}

func joined(t *testing.T, input string) string {
	t.Helper()
	return strings.Join(preprocess(t, input), " ")
}

func TestEndToEndScenarios(t *testing.T) {
	// The literal I/O scenarios of the front end's contract.
	testCases := []struct {
		input    string
		expected string
	}{
		{"#define X 1\nX+X", "1 + 1"},
		{"#define STR(x) #x\nSTR(hello)", `"hello"`},
		{"#define P(a,b) a##b\nP(foo,bar)", "foobar"},
		{"#if 2*3==6\nA\n#else\nB\n#endif", "A"},
		{"#define V(...) f(__VA_ARGS__)\nV(1,2,3)", "f ( 1 , 2 , 3 )"},
		{"#define A B\n#define B A\nA", "A"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestObjectLikeExpansion(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"#define N 10\nint x = N;", "int x = 10 ;"},
		{"#define A B\n#define B 2\nA", "2"},        // rescan picks up B
		{"#define EMPTY\nEMPTY int EMPTY x;", "int x ;"},
		{"#define SELF SELF\nSELF", "SELF"},          // direct self-reference frozen
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestFunctionLikeExpansion(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"#define F(x) (x)\nF(a)", "( a )"},
		{"#define F(x) (x)\nF((a,b))", "( ( a , b ) )"}, // nested parens protect the comma
		{"#define F(x) (x)\nF()", "( )"},                 // empty argument
		{"#define F(a,b) a b\nF(1, 2)", "1 2"},
		{"#define F(x) x\nF", "F"},                       // no paren, no invocation
		{"#define F(x) x\nF + 1", "F + 1"},
		{"#define G(x) x+1\n#define F(x) G(x)*2\nF(G(3))", "3 + 1 + 1 * 2"},
		{"#define ADD(a,b) a+b\nADD(ADD(1,2),3)", "1 + 2 + 3"},
		{"#define CALL(f,x) f(x)\n#define INC(n) n+1\nCALL(INC,5)", "5 + 1"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestInvocationSpansLines(t *testing.T) {
	assert.Equal(t, "( 1 , 2 )", joined(t, "#define F(a,b) (a,b)\nF(1,\n2)"))
}

func TestInvocationAcrossReplacementBoundary(t *testing.T) {
	// The macro name comes out of one expansion, its argument list
	// follows in outer text: a partial invocation that must retry in the
	// outer context.
	testCases := []struct {
		input    string
		expected string
	}{
		{"#define F(x) [x]\n#define NAME F\nNAME(2)", "[ 2 ]"},
		{"#define F(x) [x]\n#define OPEN F(\nOPEN 3)", "[ 3 ]"},
		{"#define F(a,b) [a|b]\n#define HALF F(1,\nHALF 2)", "[ 1 | 2 ]"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestMarkedTokensStayFrozen(t *testing.T) {
	// Mutual recursion terminates by marking, and the marked name is not
	// reconsidered later in the same stream.
	assert.Equal(t, "A A", joined(t, "#define A B\n#define B A\nA A"))
	assert.Equal(t, "x y X", joined(t, "#define X x y X\nX"))
}

func TestStringize(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"#define STR(x) #x\nSTR(a b)", `"a b"`},
		{"#define STR(x) #x\nSTR(a   b)", `"a b"`}, // runs collapse
		{"#define STR(x) #x\nSTR(\"q\")", `"\"q\""`},
		{"#define STR(x) #x\nSTR(1+2)", `"1+2"`},
		// The unexpanded argument is stringized.
		{"#define ONE 1\n#define STR(x) #x\nSTR(ONE)", `"ONE"`},
		{"#define STR(...) #__VA_ARGS__\nSTR(a, b)", `"a, b"`},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestTokenPasting(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"#define P(a,b) a##b\nP(x,1)", "x1"},
		{"#define P(a,b,c) a##b##c\nP(x,y,z)", "xyz"}, // chains left-associate
		{"#define GLUE a ## b\nGLUE", "ab"},
		// Pasted results are rescanned.
		{"#define AB 7\n#define P(a,b) a##b\nP(A,B)", "7"},
		// The unexpanded argument is pasted.
		{"#define ONE 1\n#define P(a,b) a##b\nP(ONE,2)", "ONE2"},
		// Empty argument becomes a placemarker that cancels the paste.
		{"#define P(a,b) a##b\nP(,x)", "x"},
		{"#define P(a,b) a##b\nP(x,)", "x"},
		{"#define P(a,b) [a##b]\nP(,)", "[ ]"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestPasteFormsInvalidToken(t *testing.T) {
	_, err := tryPreprocess("#define P(a,b) a##b\nP(+,-)")
	assert.ErrorIs(t, err, cc.ErrInvalidDirective)
}

func TestHashHashFromHashes(t *testing.T) {
	// # pasted with # yields an inert ## that no later pass treats as
	// the pasting operator.
	assert.Equal(t, "##", joined(t, "#define H(a,b) a##b\nH(#,#)"))
}

func TestVariadicMacros(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"#define V(...) f(__VA_ARGS__)\nV()", "f ( )"},
		{"#define V(a,...) g(a;__VA_ARGS__)\nV(1,2,3)", "g ( 1 ; 2 , 3 )"},
		{"#define V(a,...) g(a;__VA_ARGS__)\nV(1)", "g ( 1 ; )"},
		// __VA_OPT__ with and without tail tokens.
		{"#define F(...) a __VA_OPT__(,) b\nF()", "a b"},
		{"#define F(...) a __VA_OPT__(,) b\nF(1)", "a , b"},
		{"#define F(x,...) x __VA_OPT__([__VA_ARGS__])\nF(1)", "1"},
		{"#define F(x,...) x __VA_OPT__([__VA_ARGS__])\nF(1,2,3)", "1 [ 2 , 3 ]"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestVaOptEmitsTailBeforeB(t *testing.T) {
	// F(1) places the tail after the comma from __VA_OPT__.
	got := joined(t, "#define F(...) a __VA_OPT__(,) __VA_ARGS__ b\nF(1)")
	assert.Equal(t, "a , 1 b", got)
}

func TestMacroRedefinition(t *testing.T) {
	// Identical redefinition is accepted.
	_, err := tryPreprocess("#define N 10\n#define N 10\nN")
	assert.NoError(t, err)
	_, err = tryPreprocess("#define F(a,b) a+b\n#define F(a,b) a+b\n")
	assert.NoError(t, err)

	// Any divergence is rejected.
	for _, input := range []string{
		"#define N 10\n#define N 11\n",
		"#define N 10\n#define N  1 0\n",
		"#define F(a,b) a+b\n#define F(a,c) a+c\n",
		"#define F(a) a\n#define F(a,b) a\n",
		"#define N 10\n#define N(x) x\n",
		"#define F(a,b) a+b\n#define F(a,b) a +b\n", // whitespace matters
	} {
		_, err := tryPreprocess(input)
		assert.ErrorIs(t, err, cc.ErrMacroRedefinition, "input %q", input)
	}
}

func TestUndef(t *testing.T) {
	assert.Equal(t, "10 N", joined(t, "#define N 10\nN\n#undef N\nN"))
	// Undefining an absent macro is silently fine.
	_, err := tryPreprocess("#undef NEVER_DEFINED\n")
	assert.NoError(t, err)
}

func TestPredefinedMacros(t *testing.T) {
	assert.Equal(t, "1", joined(t, "__STDC__"))
	assert.Equal(t, "202311L", joined(t, "__STDC_VERSION__"))

	for _, input := range []string{
		"#define __STDC__ 0\n",
		"#undef __STDC__\n",
	} {
		_, err := tryPreprocess(input)
		assert.ErrorIs(t, err, cc.ErrMacroRedefinition, "input %q", input)
	}
}

func TestDefineValidation(t *testing.T) {
	for _, input := range []string{
		"#define\n",
		"#define F(a,a) a\n",          // duplicate parameter
		"#define F(a,) a\n",           // empty parameter
		"#define F(...,a) x\n",        // ... must be last
		"#define F(a) ## a\n",         // ## first
		"#define F(a) a ##\n",         // ## last
		"#define F(a) # b\n",          // # must precede a parameter
		"#define F(a) __VA_ARGS__\n",  // not variadic
		"#define O __VA_OPT__(x)\n",   // not variadic
	} {
		_, err := tryPreprocess(input)
		assert.ErrorIs(t, err, cc.ErrInvalidDirective, "input %q", input)
	}

	// Function-like only when the paren hugs the name.
	assert.Equal(t, "( x ) x", joined(t, "#define F (x)\nF x"))
}

func TestUCNMacroNameEquality(t *testing.T) {
	// A macro defined with an escaped name matches its plain spelling.
	input := "#define caf" + `\u00e9` + " 42\ncafé"
	assert.Equal(t, "42", joined(t, input))
}

func TestConditionalInclusion(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"#if 1\nA\n#endif", "A"},
		{"#if 0\nA\n#endif", ""},
		{"#if 0\nA\n#else\nB\n#endif", "B"},
		{"#if 0\nA\n#elif 1\nB\n#else\nC\n#endif", "B"},
		{"#if 1\nA\n#elif 1\nB\n#endif", "A"},
		{"#if 0\nA\n#elif 0\nB\n#elif 1\nC\n#elif 1\nD\n#endif", "C"},
		{"#ifdef X\nA\n#endif", ""},
		{"#define X\n#ifdef X\nA\n#endif", "A"},
		{"#ifndef X\nA\n#endif", "A"},
		{"#define X\n#if 0\nA\n#elifdef X\nB\n#endif", "B"},
		{"#if 0\nA\n#elifndef X\nB\n#endif", "B"},
		// Nesting: inner regions inside a dead branch never scan.
		{"#if 0\n#if 1\nA\n#endif\n#else\nB\n#endif", "B"},
		{"#if 1\n#if 0\nA\n#else\nB\n#endif\n#endif", "B"},
		// Directives other than conditionals are dropped in skip zones.
		{"#if 0\n#define N 1\n#error dead\n#endif\nN", "N"},
		// Undefined macro evaluates to 0.
		{"#if UNDEFINED\nA\n#else\nB\n#endif", "B"},
		{"#if defined X\nA\n#else\nB\n#endif", "B"},
		{"#define X\n#if defined(X)\nA\n#endif", "A"},
		{"#if true\nA\n#endif", "A"},
		{"#if false\nA\n#else\nB\n#endif", "B"},
		{"#if 'A' == 65\nY\n#endif", "Y"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestConditionalMismatch(t *testing.T) {
	for _, input := range []string{
		"#endif\n",
		"#else\n",
		"#elif 1\n",
		"#if 1\n",                            // unterminated at EOF
		"#if 1\n#else\n#else\n#endif\n",      // duplicate else
		"#if 1\n#else\n#elif 1\n#endif\n",    // elif after else
	} {
		_, err := tryPreprocess(input)
		assert.ErrorIs(t, err, cc.ErrConditionalMismatch, "input %q", input)
	}
}

func TestIfExpressionArithmetic(t *testing.T) {
	testCases := []struct {
		expr     string
		expected bool
	}{
		{"1 ? 2 : 3", true},
		{"(1 ? 2 : 3) == 2", true},
		{"(0 ? 2 : 3) == 3", true},
		{"(-1 << 1) == -2", true},
		{"(0xFFFFFFFFFFFFFFFFu >> 1) == 0x7FFFFFFFFFFFFFFF", true},
		{"1 + 2 * 3 == 7", true},
		{"(1 + 2) * 3 == 9", true},
		{"10 / 3 == 3 && 10 % 3 == 1", true},
		{"-7 / 2 == -3", true}, // signed division truncates toward zero
		{"1 << 70", false},     // oversized shift yields zero
		{"(-1 >> 70) == -1", true},
		{"~0 == -1", true},
		{"!0 && !!1", true},
		{"1 | 2 | 4", true},
		{"(1 ^ 1) == 0", true},
		{"(3 & 2) == 2", true},
		{"2 < 3 && 3 <= 3 && 4 > 3 && 3 >= 3", true},
		{"-1 < 0", true},
		{"-1 < 0u", false},     // unsigned comparison wraps the negative
		{"1 == 1 != 0", true},
		{"0 ? 1/0 : 1", true},  // untaken branch is never evaluated
		{"1 || 1/0", true},     // short-circuit
		{"1 ? 0 ? 1 : 2 : 3", true}, // nested ternary: (1 ? (0?1:2) : 3) == 2
	}
	for _, tc := range testCases {
		input := "#if " + tc.expr + "\nY\n#else\nN\n#endif"
		expected := "N"
		if tc.expected {
			expected = "Y"
		}
		assert.Equal(t, expected, joined(t, input), "expr %q", tc.expr)
	}
}

func TestIfExpressionErrors(t *testing.T) {
	for _, expr := range []string{
		"1/0", "1%0", "1 +", "* 2", "(1", "1)", "1 ? 2", "1 : 2", "1.5",
	} {
		_, err := tryPreprocess("#if " + expr + "\n#endif\n")
		assert.ErrorIs(t, err, cc.ErrInvalidDirective, "expr %q", expr)
	}
}

func TestIfMacroExpansionInCondition(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"#define N 6\n#if N == 6\nY\n#endif", "Y"},
		{"#define SQ(x) ((x)*(x))\n#if SQ(3) == 9\nY\n#endif", "Y"},
		// defined() runs before expansion, its operand is not expanded.
		{"#define D defined\n#define X 1\n#if defined(X) && X\nY\n#endif", "Y"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestErrorAndWarningDirectives(t *testing.T) {
	_, err := tryPreprocess("#error something broke\n")
	assert.ErrorIs(t, err, cc.ErrInvalidDirective)

	out, err := tryPreprocess("#warning just a note\nx")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out)
}

func TestUnknownDirective(t *testing.T) {
	_, err := tryPreprocess("#frobnicate\n")
	assert.ErrorIs(t, err, cc.ErrInvalidDirective)

	// The null directive is fine.
	_, err = tryPreprocess("#\nx\n")
	assert.NoError(t, err)
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	sys := filepath.Join(dir, "sys")
	require.NoError(t, os.Mkdir(sys, 0o755))
	write := func(path, content string) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(filepath.Join(dir, "local.h"), "#define FROM_LOCAL 1\nlocal_decl;\n")
	write(filepath.Join(sys, "system.h"), "system_decl;\n")
	write(filepath.Join(sys, "local.h"), "wrong_local;\n")
	write(filepath.Join(dir, "main.c"),
		"#include \"local.h\"\n#include <system.h>\nFROM_LOCAL\n")

	p, err := New([]string{sys})
	require.NoError(t, err)
	var out []string
	err = p.ProcessFile(filepath.Join(dir, "main.c"), func(tok *Token) error {
		out = append(out, tok.Text())
		return nil
	})
	require.NoError(t, err)
	// Quoted search prefers the including file's directory.
	assert.Equal(t, []string{"local_decl", ";", "system_decl", ";", "1"}, out)
}

func TestIncludeComputed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "h.h"), []byte("ok;\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"),
		[]byte("#define HDR \"h.h\"\n#include HDR\n"), 0o644))

	p, err := New(nil)
	require.NoError(t, err)
	var out []string
	err = p.ProcessFile(filepath.Join(dir, "main.c"), func(tok *Token) error {
		out = append(out, tok.Text())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok", ";"}, out)
}

func TestIncludeGuard(t *testing.T) {
	dir := t.TempDir()
	guard := "#ifndef H_H\n#define H_H\nonce;\n#endif\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "h.h"), []byte(guard), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"),
		[]byte("#include \"h.h\"\n#include \"h.h\"\n"), 0o644))

	p, err := New(nil)
	require.NoError(t, err)
	var out []string
	err = p.ProcessFile(filepath.Join(dir, "main.c"), func(tok *Token) error {
		out = append(out, tok.Text())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"once", ";"}, out)
}

func TestIncludeNotFound(t *testing.T) {
	_, err := tryPreprocess("#include \"no/such/file.h\"\n")
	assert.Error(t, err)
}

func TestIncludeRecursionLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop.h"),
		[]byte("#include \"loop.h\"\n"), 0o644))

	p, err := New(nil)
	require.NoError(t, err)
	err = p.ProcessFile(filepath.Join(dir, "loop.h"), func(*Token) error { return nil })
	assert.ErrorIs(t, err, cc.ErrInvalidDirective)
}

func TestHasInclude(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "here.h"), []byte("\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte(
		"#if __has_include(\"here.h\")\nA\n#endif\n"+
			"#if __has_include(<missing.h>)\nB\n#endif\n"), 0o644))

	p, err := New(nil)
	require.NoError(t, err)
	var out []string
	err = p.ProcessFile(filepath.Join(dir, "main.c"), func(tok *Token) error {
		out = append(out, tok.Text())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, out)
}

func TestHasCAttribute(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"#if __has_c_attribute(nodiscard)\nY\n#endif", "Y"},
		{"#if __has_c_attribute(fallthrough) == 201904\nY\n#endif", "Y"},
		{"#if __has_c_attribute(vendor_only)\nY\n#else\nN\n#endif", "N"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, joined(t, tc.input), "input %q", tc.input)
	}
}

func TestWhitespaceFlagsOnOutput(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)
	var toks []*Token
	err = p.processBytes([]byte("#define F(x) a x\nF(b)c"), "t.c", func(tok *Token) error {
		toks = append(toks, tok)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, "a", toks[0].Text())
	assert.Equal(t, "b", toks[1].Text())
	assert.True(t, toks[1].HasWhiteSpace) // the space before x survives
	assert.Equal(t, "c", toks[2].Text())
}
