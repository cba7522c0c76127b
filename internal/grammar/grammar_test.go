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

package grammar

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/collections"
)

// expr is a small arithmetic grammar in the tab-separated file format.
const exprGrammar = "" +
	"expr\tterm\n" +
	"expr\texpr\t+\tterm\n" +
	"term\tfactor\n" +
	"term\tterm\t*\tfactor\n" +
	"factor\tidentifier\n" +
	"factor\t(\texpr\t)\n"

func load(t *testing.T, text string) *Grammar {
	t.Helper()
	g, err := Load(strings.NewReader(text))
	require.NoError(t, err)
	return g
}

func TestLoadClassifiesElements(t *testing.T) {
	g := load(t, "# comment line\n\n"+exprGrammar)

	require.Equal(t, "expr", g.Elements[g.Start].Name)
	for _, name := range []string{"expr", "term", "factor"} {
		idx := g.Lookup(name)
		require.GreaterOrEqual(t, idx, 0, name)
		assert.False(t, g.Elements[idx].IsTerminal, name)
		assert.NotEmpty(t, g.Elements[idx].Rules, name)
	}
	for _, name := range []string{"identifier", "+", "*", "(", ")"} {
		idx := g.Lookup(name)
		require.GreaterOrEqual(t, idx, 0, name)
		assert.True(t, g.Elements[idx].IsTerminal, name)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	testCases := []string{
		"lonely\n",                  // no RHS
		"a\tb\tepsilon\n",           // epsilon mixed into a longer RHS
		"identifier\tnumber\n",      // terminal as LHS
		"a\tundefined-nonterminal\n", // NT without rules
	}
	for _, text := range testCases {
		_, err := Load(strings.NewReader(text))
		assert.ErrorIs(t, err, cc.ErrInvalidGrammar, "input %q", text)
	}
}

func TestEpsilonFixpoint(t *testing.T) {
	g := load(t, ""+
		"s\ta\tb\n"+
		"a\tepsilon\n"+
		"a\tidentifier\n"+
		"b\ta\ta\n"+
		"c\tnumber\n")

	assert.True(t, g.IsNullable(g.Lookup("a")))
	assert.True(t, g.IsNullable(g.Lookup("b"))) // all-nullable RHS
	assert.True(t, g.IsNullable(g.Lookup("s")))
	assert.False(t, g.IsNullable(g.Lookup("c")))
	assert.False(t, g.IsNullable(g.Lookup("identifier")))
}

func firstNames(g *Grammar, name string) []string {
	var out []string
	for idx := range g.Elements[g.Lookup(name)].First {
		out = append(out, g.Elements[idx].Name)
	}
	return out
}

func TestFirstSets(t *testing.T) {
	g := load(t, exprGrammar)

	expected := []string{"(", "identifier"}
	for _, nt := range []string{"expr", "term", "factor"} {
		got := firstNames(g, nt)
		assert.ElementsMatch(t, expected, got, "FIRST(%s)", nt)
	}
	assert.ElementsMatch(t, []string{"+"}, firstNames(g, "+"))
}

func TestFirstAcrossNullable(t *testing.T) {
	g := load(t, ""+
		"s\ta\tnumber\n"+
		"a\tepsilon\n"+
		"a\tidentifier\n")
	// a is nullable, so FIRST(s) sees through it to number.
	assert.ElementsMatch(t, []string{"identifier", "number"}, firstNames(g, "s"))
}

func TestFirstOfSequence(t *testing.T) {
	g := load(t, ""+
		"s\ta\tb\n"+
		"a\tepsilon\n"+
		"a\tidentifier\n"+
		"b\tnumber\n")
	extra := collections.SetOf(-1)

	first := g.FirstOfSequence([]int{g.Lookup("a"), g.Lookup("b")}, extra)
	assert.ElementsMatch(t,
		[]int{g.Lookup("identifier"), g.Lookup("number")},
		collections.Sorted(first))

	// A fully nullable sequence folds in the extra lookaheads.
	first = g.FirstOfSequence([]int{g.Lookup("a")}, extra)
	assert.True(t, first.Contains(-1))
	assert.True(t, first.Contains(g.Lookup("identifier")))

	if diff := cmp.Diff(
		collections.Sorted(g.FirstOfSequence(nil, extra)),
		collections.Sorted(extra)); diff != "" {
		t.Errorf("empty sequence FIRST mismatch (-got +want):\n%s", diff)
	}
}

func TestEarleyRecognize(t *testing.T) {
	g := load(t, exprGrammar)

	testCases := []struct {
		input    []string
		expected bool
	}{
		{[]string{"identifier"}, true},
		{[]string{"identifier", "+", "identifier"}, true},
		{[]string{"identifier", "+", "identifier", "*", "identifier"}, true},
		{[]string{"(", "identifier", "+", "identifier", ")", "*", "identifier"}, true},
		{[]string{"identifier", "+"}, false},
		{[]string{"+", "identifier"}, false},
		{[]string{"(", "identifier"}, false},
		{[]string{}, false},
	}
	for _, tc := range testCases {
		got, err := g.Recognize(tc.input)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, got, "input %v", tc.input)
	}

	_, err := g.Recognize([]string{"no-such-terminal"})
	assert.ErrorIs(t, err, cc.ErrInvalidGrammar)
}

func TestEarleyNullable(t *testing.T) {
	g := load(t, ""+
		"s\ta\tnumber\n"+
		"a\tepsilon\n"+
		"a\tidentifier\n")

	for input, expected := range map[string]bool{
		"number":            true,
		"identifier number": true,
		"identifier":        false,
	} {
		var terminals []string
		if input != "" {
			terminals = strings.Fields(input)
		}
		got, err := g.Recognize(terminals)
		require.NoError(t, err)
		assert.Equal(t, expected, got, "input %q", input)
	}
}
