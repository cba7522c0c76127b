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

// Package grammar loads the C23 grammar text and derives the attributes the
// table generator needs: terminal classification, nullability and FIRST
// sets. The grammar context is an explicit value threaded through every
// consumer; nothing here is package-level state.
package grammar

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"bitbucket.org/creachadair/stringset"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/collections"
	"github.com/EngFlow/ccfront/internal/lexer"
)

// Epsilon is the reserved RHS name marking a nullable production. Such a
// rule is folded into the non-terminal's CanGenerateEpsilon flag rather
// than stored; no stored rule has an empty right-hand side.
const Epsilon = "epsilon"

// Rule is one production: an ordered sequence of element indices.
type Rule struct {
	RHS []int
}

// Element is a grammar symbol. Terminals map onto lexer token kinds;
// non-terminals own their rule list.
type Element struct {
	Index      int
	Name       string
	IsTerminal bool
	TokenKind  lexer.Kind // valid for terminals only
	Rules      []Rule     // non-terminals only; empty only when epsilon is the sole production

	CanGenerateEpsilon bool
	First              collections.Set[int] // terminal element indices
}

// Grammar is the immutable element table plus derived attributes.
type Grammar struct {
	Elements []*Element
	Start    int // element index of the start symbol (first LHS in the file)

	byName map[string]int
}

// terminalNames is the fixed allowlist of terminal spellings: every keyword
// and punctuator lexeme, the payload-carrying token classes, and epsilon.
var terminalNames = func() stringset.Set {
	set := stringset.New(
		"identifier", "number", "char-const", "string-literal", Epsilon,
	)
	for kind := lexer.KindLeftBrace; kind <= lexer.KindKeywordNoreturn; kind++ {
		if spelling := kind.Spelling(); spelling != "" {
			set.Add(spelling)
		}
	}
	return set
}()

// terminalKind maps a terminal spelling to the token kind it matches.
func terminalKind(name string) lexer.Kind {
	switch name {
	case "identifier":
		return lexer.KindIdentifier
	case "number":
		return lexer.KindNumber
	case "char-const":
		return lexer.KindCharConst
	case "string-literal":
		return lexer.KindStringLiteral
	}
	for kind := lexer.KindLeftBrace; kind <= lexer.KindKeywordNoreturn; kind++ {
		if kind.Spelling() == name && kind != lexer.KindInertHashHash {
			return kind
		}
	}
	return lexer.KindInvalid
}

// Load parses grammar text: one production per line, LHS and RHS symbols
// separated by tabs. Blank lines and #-prefixed lines are ignored. The
// first LHS becomes the start symbol.
func Load(r io.Reader) (*Grammar, error) {
	g := &Grammar{byName: make(map[string]int), Start: -1}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: production needs at least one RHS symbol", cc.ErrInvalidGrammar, lineNo)
		}
		if terminalNames.Contains(fields[0]) {
			return nil, fmt.Errorf("%w: line %d: terminal %q cannot appear as LHS", cc.ErrInvalidGrammar, lineNo, fields[0])
		}
		lhs := g.intern(fields[0], false)
		if g.Elements[lhs].IsTerminal {
			return nil, fmt.Errorf("%w: line %d: terminal %q cannot appear as LHS", cc.ErrInvalidGrammar, lineNo, fields[0])
		}
		if g.Start < 0 {
			g.Start = lhs
		}

		if len(fields) == 2 && fields[1] == Epsilon {
			g.Elements[lhs].CanGenerateEpsilon = true
			continue
		}
		rule := Rule{RHS: make([]int, 0, len(fields)-1)}
		for _, name := range fields[1:] {
			if name == "" {
				continue
			}
			if name == Epsilon {
				return nil, fmt.Errorf("%w: line %d: epsilon must be the only RHS symbol", cc.ErrInvalidGrammar, lineNo)
			}
			rule.RHS = append(rule.RHS, g.intern(name, true))
		}
		if len(rule.RHS) == 0 {
			return nil, fmt.Errorf("%w: line %d: empty right-hand side", cc.ErrInvalidGrammar, lineNo)
		}
		g.Elements[lhs].Rules = append(g.Elements[lhs].Rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if g.Start < 0 {
		return nil, fmt.Errorf("%w: no productions", cc.ErrInvalidGrammar)
	}
	for _, elem := range g.Elements {
		if !elem.IsTerminal && len(elem.Rules) == 0 && !elem.CanGenerateEpsilon {
			return nil, fmt.Errorf("%w: non-terminal %q has no rules", cc.ErrInvalidGrammar, elem.Name)
		}
	}

	g.computeEpsilon()
	g.computeFirst()
	return g, nil
}

// intern returns the element index for name, creating the element on first
// sight. allowTerminal classifies new names against the terminal allowlist.
func (g *Grammar) intern(name string, allowTerminal bool) int {
	if idx, ok := g.byName[name]; ok {
		return idx
	}
	elem := &Element{
		Index: len(g.Elements),
		Name:  name,
		First: collections.Set[int]{},
	}
	if allowTerminal && terminalNames.Contains(name) {
		elem.IsTerminal = true
		elem.TokenKind = terminalKind(name)
	}
	g.Elements = append(g.Elements, elem)
	g.byName[name] = elem.Index
	return elem.Index
}

// Lookup returns the element index for a symbol name, -1 when absent.
func (g *Grammar) Lookup(name string) int {
	if idx, ok := g.byName[name]; ok {
		return idx
	}
	return -1
}

// IsNullable reports whether the element can derive the empty sequence.
func (g *Grammar) IsNullable(elem int) bool {
	return g.Elements[elem].CanGenerateEpsilon
}

// computeEpsilon runs the nullability fixpoint: a non-terminal is nullable
// if some rule has an all-nullable right-hand side.
func (g *Grammar) computeEpsilon() {
	for changed := true; changed; {
		changed = false
		for _, elem := range g.Elements {
			if elem.IsTerminal || elem.CanGenerateEpsilon {
				continue
			}
			for _, rule := range elem.Rules {
				nullable := true
				for _, rhs := range rule.RHS {
					if !g.Elements[rhs].CanGenerateEpsilon {
						nullable = false
						break
					}
				}
				if nullable {
					elem.CanGenerateEpsilon = true
					changed = true
					break
				}
			}
		}
	}
}

// computeFirst seeds each terminal's FIRST set with itself and propagates
// over the dependency graph with a worklist: an edge leads from a rule's
// LHS to each RHS prefix symbol reachable across nullable symbols. When a
// node's FIRST grows, its predecessors re-enter the queue.
func (g *Grammar) computeFirst() {
	// predecessors[x] holds the LHS elements whose FIRST depends on x.
	predecessors := make(map[int]collections.Set[int])
	addEdge := func(lhs, dep int) {
		if predecessors[dep] == nil {
			predecessors[dep] = collections.Set[int]{}
		}
		predecessors[dep].Add(lhs)
	}

	queue := collections.NewDeque[int](nil)
	for _, elem := range g.Elements {
		if elem.IsTerminal {
			elem.First.Add(elem.Index)
			queue.PushTail(elem.Index)
			continue
		}
		for _, rule := range elem.Rules {
			for _, rhs := range rule.RHS {
				if rhs != elem.Index {
					addEdge(elem.Index, rhs)
				}
				if !g.Elements[rhs].CanGenerateEpsilon {
					break
				}
			}
		}
	}

	for {
		dep, ok := queue.PopHead()
		if !ok {
			break
		}
		for lhs := range predecessors[dep] {
			if g.Elements[lhs].First.AddAll(g.Elements[dep].First) {
				queue.PushTail(lhs)
			}
		}
	}
}

// FirstOfSequence returns FIRST over a sequence of element indices plus,
// when the whole sequence is nullable, the extra lookaheads. This is the
// FIRST(beta L) the LR closure needs.
func (g *Grammar) FirstOfSequence(seq []int, extra collections.Set[int]) collections.Set[int] {
	first := collections.Set[int]{}
	nullable := true
	for _, elem := range seq {
		first.AddAll(g.Elements[elem].First)
		if !g.Elements[elem].CanGenerateEpsilon {
			nullable = false
			break
		}
	}
	if nullable {
		first.AddAll(extra)
	}
	return first
}
