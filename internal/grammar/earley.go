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
	"fmt"

	"github.com/EngFlow/ccfront/internal/cc"
)

// earleyItem is a dotted rule with its origin state. Items are compared by
// value, so a state never holds duplicates.
type earleyItem struct {
	elem   int
	rule   int
	dot    int
	origin int
}

// earleyState is one Earley chart column: a duplicate-suppressing worklist.
type earleyState struct {
	items []earleyItem
	seen  map[earleyItem]struct{}
}

func newEarleyState() *earleyState {
	return &earleyState{seen: make(map[earleyItem]struct{})}
}

func (s *earleyState) add(item earleyItem) {
	if _, dup := s.seen[item]; dup {
		return
	}
	s.seen[item] = struct{}{}
	s.items = append(s.items, item)
}

// Recognize reports whether the sequence of terminal names is a sentence of
// the grammar. It exists to validate the grammar offline; the shipped
// parser does not run it.
func (g *Grammar) Recognize(terminals []string) (bool, error) {
	input := make([]int, len(terminals))
	for i, name := range terminals {
		idx := g.Lookup(name)
		if idx < 0 || !g.Elements[idx].IsTerminal {
			return false, fmt.Errorf("%w: unknown terminal %q", cc.ErrInvalidGrammar, name)
		}
		input[i] = idx
	}

	states := make([]*earleyState, len(input)+1)
	for i := range states {
		states[i] = newEarleyState()
	}
	start := g.Elements[g.Start]
	for ruleIdx := range start.Rules {
		states[0].add(earleyItem{elem: g.Start, rule: ruleIdx})
	}

	for i := 0; i <= len(input); i++ {
		state := states[i]
		for cursor := 0; cursor < len(state.items); cursor++ {
			item := state.items[cursor]
			rhs := g.Elements[item.elem].Rules[item.rule].RHS

			if item.dot == len(rhs) {
				// Completion: advance every item waiting on this element
				// in the origin state.
				for _, waiting := range states[item.origin].items {
					wrhs := g.Elements[waiting.elem].Rules[waiting.rule].RHS
					if waiting.dot < len(wrhs) && wrhs[waiting.dot] == item.elem {
						advanced := waiting
						advanced.dot++
						state.add(advanced)
					}
				}
				continue
			}

			next := g.Elements[rhs[item.dot]]
			if next.IsTerminal {
				if i < len(input) && input[i] == next.Index {
					advanced := item
					advanced.dot++
					states[i+1].add(advanced)
				}
				continue
			}
			// Prediction.
			for ruleIdx := range next.Rules {
				state.add(earleyItem{elem: next.Index, rule: ruleIdx, origin: i})
			}
			if next.CanGenerateEpsilon {
				// Nullable non-terminal: also advance past it directly.
				advanced := item
				advanced.dot++
				state.add(advanced)
			}
		}
	}

	for _, item := range states[len(input)].items {
		if item.elem == g.Start && item.origin == 0 &&
			item.dot == len(start.Rules[item.rule].RHS) {
			return true, nil
		}
	}
	// The whole input may also be derivable from a nullable start symbol.
	if len(input) == 0 && start.CanGenerateEpsilon {
		return true, nil
	}
	return false, nil
}
