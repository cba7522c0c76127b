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

package lr

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/collections"
)

// Serialized element kinds: a terminal stores its token kind (>= 0); a
// non-terminal stores nonTerminalBase minus its element index, which keeps
// every non-terminal kind negative and distinct from the EOF marker.
const nonTerminalBase = -2

type (
	// Tables is the deserialized form of an automaton file. It mirrors the
	// on-disk layout rather than the in-memory Automaton: consumers index
	// elements and sets by position.
	Tables struct {
		Elements []TableElement
		Sets     []TableSet
	}
	TableElement struct {
		Kind  int32
		Rules [][]int32 // nil for terminals
	}
	TableSet struct {
		Kernel  []TableItem
		Closure []TableItem
	}
	TableItem struct {
		Elem       int32
		Rule       int32
		Dot        int32
		Jump       int32
		Lookaheads []int32
	}
)

// lookaheadKind maps an in-memory lookahead (element index or EOF) to its
// serialized token kind.
func (a *Automaton) lookaheadKind(lookahead int) int32 {
	if lookahead == EOF {
		return EOF
	}
	return int32(a.Grammar.Elements[lookahead].TokenKind)
}

// Write serializes the automaton: the element table with each
// non-terminal's rules, then every item set, kernel before closure.
// Lookahead sets are written sorted so output is reproducible.
func Write(w io.Writer, a *Automaton) error {
	bw := bufio.NewWriter(w)
	out := func(v int32) error {
		return binary.Write(bw, binary.LittleEndian, v)
	}

	if err := out(int32(len(a.Grammar.Elements))); err != nil {
		return err
	}
	for _, elem := range a.Grammar.Elements {
		if elem.IsTerminal {
			if err := out(int32(elem.TokenKind)); err != nil {
				return err
			}
			continue
		}
		if err := out(int32(nonTerminalBase - elem.Index)); err != nil {
			return err
		}
		if err := out(int32(len(elem.Rules))); err != nil {
			return err
		}
		for _, rule := range elem.Rules {
			if err := out(int32(len(rule.RHS))); err != nil {
				return err
			}
			for _, rhs := range rule.RHS {
				if err := out(int32(rhs)); err != nil {
					return err
				}
			}
		}
	}

	if err := out(int32(len(a.Sets))); err != nil {
		return err
	}
	for _, set := range a.Sets {
		if err := out(int32(len(set.Kernel))); err != nil {
			return err
		}
		if err := out(int32(len(set.Closure))); err != nil {
			return err
		}
		for _, it := range set.items() {
			for _, v := range []int32{int32(it.Elem), int32(it.Rule), int32(it.Dot), int32(it.Jump)} {
				if err := out(v); err != nil {
					return err
				}
			}
			lookaheads := collections.Sorted(it.Lookaheads)
			if err := out(int32(len(lookaheads))); err != nil {
				return err
			}
			for _, lookahead := range lookaheads {
				if err := out(a.lookaheadKind(lookahead)); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// Read deserializes a table file produced by Write.
func Read(r io.Reader) (*Tables, error) {
	br := bufio.NewReader(r)
	in := func() (int32, error) {
		var v int32
		err := binary.Read(br, binary.LittleEndian, &v)
		return v, err
	}
	count := func(what string) (int, error) {
		v, err := in()
		if err != nil {
			return 0, fmt.Errorf("reading %s count: %w", what, err)
		}
		if v < 0 {
			return 0, fmt.Errorf("%w: negative %s count %d", cc.ErrInvalidGrammar, what, v)
		}
		return int(v), nil
	}

	numElements, err := count("element")
	if err != nil {
		return nil, err
	}
	tables := &Tables{Elements: make([]TableElement, numElements)}
	for i := range tables.Elements {
		kind, err := in()
		if err != nil {
			return nil, err
		}
		elem := TableElement{Kind: kind}
		if kind <= nonTerminalBase {
			numRules, err := count("rule")
			if err != nil {
				return nil, err
			}
			elem.Rules = make([][]int32, numRules)
			for r := range elem.Rules {
				numRHS, err := count("rhs")
				if err != nil {
					return nil, err
				}
				rhs := make([]int32, numRHS)
				for x := range rhs {
					if rhs[x], err = in(); err != nil {
						return nil, err
					}
				}
				elem.Rules[r] = rhs
			}
		}
		tables.Elements[i] = elem
	}

	numSets, err := count("set")
	if err != nil {
		return nil, err
	}
	tables.Sets = make([]TableSet, numSets)
	for s := range tables.Sets {
		numKernels, err := count("kernel")
		if err != nil {
			return nil, err
		}
		numClosures, err := count("closure")
		if err != nil {
			return nil, err
		}
		readItem := func() (TableItem, error) {
			var it TableItem
			fields := []*int32{&it.Elem, &it.Rule, &it.Dot, &it.Jump}
			for _, field := range fields {
				v, err := in()
				if err != nil {
					return it, err
				}
				*field = v
			}
			numLookaheads, err := count("lookahead")
			if err != nil {
				return it, err
			}
			it.Lookaheads = make([]int32, numLookaheads)
			for i := range it.Lookaheads {
				if it.Lookaheads[i], err = in(); err != nil {
					return it, err
				}
			}
			return it, nil
		}
		set := TableSet{
			Kernel:  make([]TableItem, numKernels),
			Closure: make([]TableItem, numClosures),
		}
		for i := range set.Kernel {
			if set.Kernel[i], err = readItem(); err != nil {
				return nil, err
			}
		}
		for i := range set.Closure {
			if set.Closure[i], err = readItem(); err != nil {
				return nil, err
			}
		}
		tables.Sets[s] = set
	}
	return tables, nil
}
