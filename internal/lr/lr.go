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

// Package lr constructs the canonical LR(1) automaton for a grammar and
// serializes it. The automaton is built offline; the runtime parser is
// hand-written and does not read the tables.
package lr

import (
	"fmt"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/collections"
	"github.com/EngFlow/ccfront/internal/grammar"
)

// EOF is the end-of-input lookahead. It is not a grammar element; the
// serialized form keeps the same value.
const EOF = -1

// Item is a dotted rule with lookaheads. Two items with equal element, rule
// and dot are merged by unioning lookaheads; Jump is the index of the set
// reached by shifting the symbol after the dot, -1 when the item is
// complete.
type Item struct {
	Elem       int
	Rule       int
	Dot        int
	Lookaheads collections.Set[int]
	Jump       int
}

// IsComplete reports whether the dot has reached the end of the rule.
func (it *Item) IsComplete(g *grammar.Grammar) bool {
	return it.Dot == len(g.Elements[it.Elem].Rules[it.Rule].RHS)
}

// nextSymbol returns the element just after the dot, -1 when complete.
func (it *Item) nextSymbol(g *grammar.Grammar) int {
	rhs := g.Elements[it.Elem].Rules[it.Rule].RHS
	if it.Dot >= len(rhs) {
		return -1
	}
	return rhs[it.Dot]
}

// ItemSet holds the kernel (the initiating items) and the closure (items
// added with dot zero). Set identity is kernel identity: same dotted rules
// with identical lookahead sets. Closure items never participate in
// identity.
type ItemSet struct {
	Kernel  []*Item
	Closure []*Item
}

// items iterates kernel then closure.
func (s *ItemSet) items() []*Item {
	all := make([]*Item, 0, len(s.Kernel)+len(s.Closure))
	all = append(all, s.Kernel...)
	return append(all, s.Closure...)
}

// find locates an item by dotted rule in either list.
func (s *ItemSet) find(elem, rule, dot int) *Item {
	for _, it := range s.Kernel {
		if it.Elem == elem && it.Rule == rule && it.Dot == dot {
			return it
		}
	}
	for _, it := range s.Closure {
		if it.Elem == elem && it.Rule == rule && it.Dot == dot {
			return it
		}
	}
	return nil
}

// kernelEquals compares kernels as unordered multisets of (elem, rule,
// dot, lookaheads).
func (s *ItemSet) kernelEquals(kernel []*Item) bool {
	if len(s.Kernel) != len(kernel) {
		return false
	}
	for _, candidate := range kernel {
		existing := s.findKernel(candidate.Elem, candidate.Rule, candidate.Dot)
		if existing == nil || !existing.Lookaheads.Equal(candidate.Lookaheads) {
			return false
		}
	}
	return true
}

func (s *ItemSet) findKernel(elem, rule, dot int) *Item {
	for _, it := range s.Kernel {
		if it.Elem == elem && it.Rule == rule && it.Dot == dot {
			return it
		}
	}
	return nil
}

// Automaton is the canonical LR(1) collection for a grammar.
type Automaton struct {
	Grammar *grammar.Grammar
	Sets    []*ItemSet
}

// Build constructs the canonical collection starting from the start
// symbol's rules with EOF lookahead. It fails with cc.ErrInvalidGrammar on
// a shift/reduce or reduce/reduce conflict.
func Build(g *grammar.Grammar) (*Automaton, error) {
	a := &Automaton{Grammar: g}

	var kernel []*Item
	for ruleIdx := range g.Elements[g.Start].Rules {
		kernel = append(kernel, &Item{
			Elem:       g.Start,
			Rule:       ruleIdx,
			Lookaheads: collections.SetOf(EOF),
			Jump:       -1,
		})
	}
	a.Sets = append(a.Sets, &ItemSet{Kernel: kernel})
	a.close(a.Sets[0])

	// Process sets in discovery order; transitions append new sets.
	for idx := 0; idx < len(a.Sets); idx++ {
		if err := a.transitions(a.Sets[idx]); err != nil {
			return nil, err
		}
	}
	for idx, set := range a.Sets {
		if err := a.checkConflicts(idx, set); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// close runs the closure fixpoint: for each item A -> alpha . B beta [L],
// every rule of B enters the closure with lookaheads FIRST(beta L). Items
// are merged by dotted rule; a lookahead union on an already-processed item
// forces another pass.
func (a *Automaton) close(set *ItemSet) {
	g := a.Grammar
	for changed := true; changed; {
		changed = false
		for _, it := range set.items() {
			next := it.nextSymbol(g)
			if next < 0 || g.Elements[next].IsTerminal {
				continue
			}
			beta := g.Elements[it.Elem].Rules[it.Rule].RHS[it.Dot+1:]
			lookaheads := g.FirstOfSequence(beta, it.Lookaheads)

			for ruleIdx := range g.Elements[next].Rules {
				existing := set.find(next, ruleIdx, 0)
				if existing == nil {
					set.Closure = append(set.Closure, &Item{
						Elem:       next,
						Rule:       ruleIdx,
						Lookaheads: lookaheads.Clone(),
						Jump:       -1,
					})
					changed = true
				} else if existing.Lookaheads.AddAll(lookaheads) {
					changed = true
				}
			}
		}
	}
}

// transitions builds the GOTO sets: items sharing the symbol after the dot
// advance together into a candidate kernel, which either matches a
// registered set or registers a new one. Parent items record the target in
// Jump.
func (a *Automaton) transitions(set *ItemSet) error {
	g := a.Grammar

	// Group items by next symbol, preserving first-seen order for
	// deterministic set numbering.
	var symbols []int
	grouped := make(map[int][]*Item)
	for _, it := range set.items() {
		next := it.nextSymbol(g)
		if next < 0 {
			continue
		}
		if _, seen := grouped[next]; !seen {
			symbols = append(symbols, next)
		}
		grouped[next] = append(grouped[next], it)
	}

	for _, symbol := range symbols {
		parents := grouped[symbol]
		kernel := make([]*Item, 0, len(parents))
		for _, parent := range parents {
			kernel = append(kernel, &Item{
				Elem:       parent.Elem,
				Rule:       parent.Rule,
				Dot:        parent.Dot + 1,
				Lookaheads: parent.Lookaheads.Clone(),
				Jump:       -1,
			})
		}

		target := -1
		for idx, candidate := range a.Sets {
			if candidate.kernelEquals(kernel) {
				target = idx
				break
			}
		}
		if target < 0 {
			target = len(a.Sets)
			next := &ItemSet{Kernel: kernel}
			a.Sets = append(a.Sets, next)
			a.close(next)
		}
		for _, parent := range parents {
			parent.Jump = target
		}
	}
	return nil
}

// checkConflicts rejects grammars whose canonical automaton is not LR(1).
func (a *Automaton) checkConflicts(idx int, set *ItemSet) error {
	g := a.Grammar
	reduceOn := make(map[int]*Item)
	shiftOn := collections.Set[int]{}
	for _, it := range set.items() {
		if next := it.nextSymbol(g); next >= 0 {
			if g.Elements[next].IsTerminal {
				shiftOn.Add(next)
			}
			continue
		}
		for lookahead := range it.Lookaheads {
			if other, dup := reduceOn[lookahead]; dup {
				return fmt.Errorf("%w: reduce/reduce conflict in set %d between %s and %s",
					cc.ErrInvalidGrammar, idx, a.describe(other), a.describe(it))
			}
			reduceOn[lookahead] = it
		}
	}
	for lookahead, it := range reduceOn {
		if shiftOn.Contains(lookahead) {
			return fmt.Errorf("%w: shift/reduce conflict in set %d on %q for %s",
				cc.ErrInvalidGrammar, idx, g.Elements[lookahead].Name, a.describe(it))
		}
	}
	return nil
}

func (a *Automaton) describe(it *Item) string {
	g := a.Grammar
	return fmt.Sprintf("%s(rule %d, dot %d)", g.Elements[it.Elem].Name, it.Rule, it.Dot)
}
