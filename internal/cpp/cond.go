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
	"fmt"

	"github.com/EngFlow/ccfront/internal/cc"
)

// condKind distinguishes the #if part of a region from its #else part;
// once the top is ELSE, further #elif or #else directives are errors.
type condKind int

const (
	condIf condKind = iota
	condElse
)

// condState drives conditional inclusion:
//
//	WAIT — no branch of this region has matched yet
//	SCAN — the current branch matched and its tokens flow through
//	DONE — a branch already matched (or an outer region skips); the rest
//	       of the region is dropped
type condState int

const (
	condWait condState = iota
	condScan
	condDone
)

// condEntry is one nested conditional-inclusion region.
type condEntry struct {
	kind  condKind
	state condState
}

// condStack models the nesting of conditional regions within one file.
type condStack []condEntry

// inSkipZone reports whether any region is currently dropping tokens.
// Only the innermost stack where every entry is SCAN emits.
func (s condStack) inSkipZone() bool {
	for _, e := range s {
		if e.state == condWait || e.state == condDone {
			return true
		}
	}
	return false
}

// outerSkipZone ignores the top entry; #elif and #else consult it to
// decide whether evaluating their condition could matter at all.
func (s condStack) outerSkipZone() bool {
	return s[:len(s)-1].inSkipZone()
}

// pushIf opens a region. cond is evaluated by the caller only when the
// enclosing context scans; inside a skip zone the whole region is DONE.
func (s *condStack) pushIf(cond bool) {
	if s.inSkipZone() {
		*s = append(*s, condEntry{kind: condIf, state: condDone})
		return
	}
	state := condWait
	if cond {
		state = condScan
	}
	*s = append(*s, condEntry{kind: condIf, state: state})
}

// wantsElifCondition reports whether an #elif's condition is relevant:
// only when the region is still waiting and no outer region skips.
func (s condStack) wantsElifCondition() (bool, error) {
	if len(s) == 0 {
		return false, fmt.Errorf("%w: #elif without #if", cc.ErrConditionalMismatch)
	}
	top := s[len(s)-1]
	if top.kind == condElse {
		return false, fmt.Errorf("%w: #elif after #else", cc.ErrConditionalMismatch)
	}
	return top.state == condWait && !s.outerSkipZone(), nil
}

// elif transitions the region for an #elif whose condition evaluated to
// cond (callers pass false when the condition was irrelevant).
func (s condStack) elif(cond bool) {
	top := &s[len(s)-1]
	switch {
	case top.state == condScan || top.state == condDone || s.outerSkipZone():
		top.state = condDone
	case cond:
		top.state = condScan
	}
}

// elseBranch transitions the region for #else.
func (s condStack) elseBranch() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: #else without #if", cc.ErrConditionalMismatch)
	}
	top := &s[len(s)-1]
	if top.kind == condElse {
		return fmt.Errorf("%w: duplicate #else", cc.ErrConditionalMismatch)
	}
	top.kind = condElse
	if top.state == condScan || top.state == condDone || s.outerSkipZone() {
		top.state = condDone
	} else {
		top.state = condScan
	}
	return nil
}

// pop closes the region for #endif.
func (s *condStack) pop() error {
	if len(*s) == 0 {
		return fmt.Errorf("%w: #endif without #if", cc.ErrConditionalMismatch)
	}
	*s = (*s)[:len(*s)-1]
	return nil
}
