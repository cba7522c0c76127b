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
	"errors"
	"fmt"
	"strings"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/lexer"
)

// signal is the result variant of processing one token. partialInvocation
// reports that a function-like invocation crossed the current
// replacement-list boundary: the invocation tokens were pushed back and
// the innermost frame's marker was consumed, so the enclosing context must
// retry. It is a condition, not an error.
type signal int

const (
	complete signal = iota
	partialInvocation
)

// activeMacro is one entry of the macro stack: a macro currently being
// expanded, identified by name, bounded on the stream by its marker.
type activeMacro struct {
	name   string
	marker int
}

// expander runs the macro-expansion algorithm over a stream. The main pass
// uses one expander per file; each argument expansion and each #if line
// gets a fresh one, so every pass has its own macro stack.
type expander struct {
	p      *Preprocessor
	active []activeMacro
}

func (x *expander) isActive(name string) bool {
	for _, am := range x.active {
		if am.name == name {
			return true
		}
	}
	return false
}

func (x *expander) popActive() {
	x.active = x.active[:len(x.active)-1]
}

// run drains a self-contained stream, expanding macros and emitting the
// results. A marker reaching this loop is the stream's terminal marker,
// ending the pass (the main file loop never sees one: every frame consumes
// its own).
func (x *expander) run(src *stream, emit func(*Token) error) error {
	for {
		e, err := src.pop()
		if errors.Is(err, cc.ErrEOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if e.isMarker() {
			return nil
		}
		if _, err := x.processOne(e.tok, src, emit); err != nil {
			return err
		}
	}
}

// processOne handles a single token from the stream: emits it, freezes it
// with the marked flag, or expands it as a macro. The returned signal is
// partialInvocation only when this token's own invocation scan consumed
// the caller's replacement-list-end marker.
func (x *expander) processOne(tok *Token, src *stream, emit func(*Token) error) (signal, error) {
	if tok.isPlacemarker() {
		return complete, nil
	}
	if !tok.IsIdentifier() || tok.Marked {
		return complete, emit(tok)
	}
	macro := x.p.macros.lookup(tok.Text())
	if macro == nil {
		return complete, emit(tok)
	}
	if x.isActive(macro.Name) {
		frozen := tok.Clone()
		frozen.Marked = true
		return complete, emit(frozen)
	}

	if !macro.IsFunctionLike {
		body, err := x.substitute(macro, nil)
		if err != nil {
			return complete, err
		}
		return complete, x.scanBody(macro, body, src, emit)
	}

	// Function-like: the name alone is not an invocation; a left paren
	// must follow, possibly across the current replacement-list boundary.
	e, err := src.peek()
	if errors.Is(err, cc.ErrEOF) {
		return complete, emit(tok)
	}
	if err != nil {
		return complete, err
	}
	if e.isMarker() {
		// Look past the innermost boundary. If the invocation continues
		// there, this frame cannot collect it: consume the marker,
		// re-push the name and signal the caller to retry outside.
		marker, _ := src.pop()
		after, err := src.peek()
		if err == nil && (after.isMarker() || after.tok.is(lexer.KindLeftParen)) {
			src.push(tokenEntry(tok))
			return partialInvocation, nil
		}
		if err != nil && !errors.Is(err, cc.ErrEOF) {
			return complete, err
		}
		src.push(marker)
		return complete, emit(tok)
	}
	if !e.tok.is(lexer.KindLeftParen) {
		return complete, emit(tok)
	}

	lparen, _ := src.pop()
	inv, sig, err := x.collectArgs(macro, tok, lparen.tok, src)
	if err != nil || sig == partialInvocation {
		return sig, err
	}
	body, err := x.substitute(macro, inv)
	if err != nil {
		return complete, err
	}
	return complete, x.scanBody(macro, body, src, emit)
}

// scanBody pushes an expansion onto the stream bounded by a fresh marker,
// activates the macro, and rescans until the boundary. A partial signal
// from a nested invocation means this frame's marker is already consumed:
// the frame ends and the retry happens upstream.
func (x *expander) scanBody(macro *Macro, body []*Token, src *stream, emit func(*Token) error) error {
	id := x.p.nextMarkerID()
	src.push(markerEntry(id))
	src.pushTokens(body)
	x.active = append(x.active, activeMacro{name: macro.Name, marker: id})

	for {
		e, err := src.pop()
		if errors.Is(err, cc.ErrEOF) {
			x.popActive()
			return nil
		}
		if err != nil {
			x.popActive()
			return err
		}
		if e.isMarker() {
			x.popActive()
			if e.marker != id {
				// A foreign terminal marker; hand it back.
				src.push(e)
			}
			return nil
		}
		sig, err := x.processOne(e.tok, src, emit)
		if err != nil {
			x.popActive()
			return err
		}
		if sig == partialInvocation {
			x.popActive()
			return nil
		}
	}
}

// invocation holds one function-like call: the macro, the raw arguments,
// and the lazily memoized expansions of each.
type invocation struct {
	macro    *Macro
	args     [][]*Token
	expanded [][]*Token
}

// expandedArg expands argument i on first use and memoizes the result.
// Each argument expands on a fresh macro stack over its own stream,
// terminated by a marker.
func (x *expander) expandedArg(inv *invocation, i int) ([]*Token, error) {
	if inv.expanded[i] != nil {
		return inv.expanded[i], nil
	}
	src := newTokenStream(cloneTokens(inv.args[i]))
	src.front.PushTail(markerEntry(x.p.nextMarkerID()))

	fresh := &expander{p: x.p}
	out := []*Token{}
	err := fresh.run(src, func(tok *Token) error {
		out = append(out, tok)
		return nil
	})
	if err != nil {
		return nil, err
	}
	inv.expanded[i] = out
	return out, nil
}

// collectArgs gathers the invocation's arguments after the left paren.
// Arguments split at top-level commas; a variadic invocation stops
// splitting once the named parameters are filled so the tail keeps its
// commas. Hitting the current replacement-list-end marker first means the
// invocation spans the boundary: everything popped is pushed back and the
// partial signal tells the caller to retry in the outer context.
func (x *expander) collectArgs(macro *Macro, name, lparen *Token, src *stream) (*invocation, signal, error) {
	raw := []*Token{name, lparen}
	var args [][]*Token
	var current []*Token
	sawComma := false
	depth := 1

	finishArg := func() {
		// Straighten the argument: it is one logical unit now, whatever
		// lines it was written across.
		for i, tok := range current {
			tok.IsFirst = false
			if i == 0 {
				tok.HasWhiteSpace = false
			}
		}
		args = append(args, current)
		current = nil
	}

	for depth > 0 {
		e, err := src.pop()
		if errors.Is(err, cc.ErrEOF) {
			return nil, complete, fmt.Errorf("%w: unterminated invocation of macro %q", cc.ErrInvalidDirective, macro.Name)
		}
		if err != nil {
			return nil, complete, err
		}
		if e.isMarker() {
			src.pushTokens(raw)
			return nil, partialInvocation, nil
		}
		tok := e.tok
		raw = append(raw, tok)
		switch {
		case tok.is(lexer.KindLeftParen):
			depth++
			current = append(current, tok)
		case tok.is(lexer.KindRightParen):
			depth--
			if depth == 0 {
				finishArg()
			} else {
				current = append(current, tok)
			}
		case tok.is(lexer.KindComma) && depth == 1 &&
			(!macro.IsVariadic || len(args) < len(macro.Params)):
			sawComma = true
			finishArg()
		default:
			current = append(current, tok)
		}
	}

	// An empty () is zero arguments for a macro that expects none.
	if len(args) == 1 && len(args[0]) == 0 && !sawComma &&
		len(macro.Params) == 0 && !macro.IsVariadic {
		args = nil
	}
	if macro.IsVariadic && len(args) == len(macro.Params) {
		args = append(args, nil) // absent variadic tail
	}

	want := len(macro.Params)
	if macro.IsVariadic {
		want++
	}
	if len(args) != want {
		return nil, complete, fmt.Errorf("%w: macro %q expects %d arguments, got %d",
			cc.ErrInvalidDirective, macro.Name, want, len(args))
	}
	return &invocation{
		macro:    macro,
		args:     args,
		expanded: make([][]*Token, len(args)),
	}, complete, nil
}

// substItem is a substituted body element. Tokens that came from arguments
// are tagged: a ## among them is data, never the pasting operator.
type substItem struct {
	tok     *Token
	fromArg bool
}

// substitute copies the replacement list, applies stringizing, argument
// substitution and __VA_OPT__, then performs the token pasting pass.
// inv is nil for object-like macros.
func (x *expander) substitute(macro *Macro, inv *invocation) ([]*Token, error) {
	items, err := x.substituteList(macro, macro.Replacement, inv)
	if err != nil {
		return nil, err
	}
	return x.paste(items)
}

func (x *expander) substituteList(macro *Macro, list []*Token, inv *invocation) ([]substItem, error) {
	var items []substItem
	for i := 0; i < len(list); i++ {
		tok := list[i]

		// # param stringizes the unexpanded argument.
		if inv != nil && tok.is(lexer.KindHash) && i+1 < len(list) {
			next := list[i+1]
			if next.IsIdentifier() {
				if idx := macro.paramIndex(next.Text()); idx >= 0 {
					items = append(items, substItem{tok: stringize(inv.args[idx], tok)})
					i++
					continue
				}
			}
		}

		// __VA_OPT__(...) keeps or drops its group on the variadic tail.
		if inv != nil && macro.IsVariadic && tok.IsIdentifier() && tok.Text() == "__VA_OPT__" {
			group, end, err := vaOptGroup(list, i)
			if err != nil {
				return nil, err
			}
			i = end
			if variadicTailEmpty(inv) {
				items = append(items, substItem{tok: newPlacemarker()})
				continue
			}
			inner, err := x.substituteList(macro, group, inv)
			if err != nil {
				return nil, err
			}
			items = append(items, inner...)
			continue
		}

		// Parameters substitute their argument: expanded normally, raw
		// when a ## operates on either side.
		if inv != nil && tok.IsIdentifier() {
			if idx := macro.paramIndex(tok.Text()); idx >= 0 {
				nextToPaste := i+1 < len(list) && list[i+1].is(lexer.KindHashHash)
				prevPastes := i > 0 && list[i-1].is(lexer.KindHashHash)

				var arg []*Token
				if nextToPaste || prevPastes {
					arg = cloneTokens(inv.args[idx])
				} else {
					expanded, err := x.expandedArg(inv, idx)
					if err != nil {
						return nil, err
					}
					arg = cloneTokens(expanded)
				}
				if len(arg) == 0 {
					items = append(items, substItem{tok: newPlacemarker(), fromArg: true})
					continue
				}
				arg[0].HasWhiteSpace = tok.HasWhiteSpace
				arg[0].IsFirst = false
				for _, t := range arg {
					items = append(items, substItem{tok: t, fromArg: true})
				}
				continue
			}
		}

		items = append(items, substItem{tok: tok.Clone()})
	}
	return items, nil
}

// vaOptGroup returns the tokens inside __VA_OPT__'s balanced parentheses
// and the index of the closing paren.
func vaOptGroup(list []*Token, i int) ([]*Token, int, error) {
	if i+1 >= len(list) || !list[i+1].is(lexer.KindLeftParen) {
		return nil, 0, fmt.Errorf("%w: __VA_OPT__ requires a parenthesized group", cc.ErrInvalidDirective)
	}
	depth := 1
	for j := i + 2; j < len(list); j++ {
		switch {
		case list[j].is(lexer.KindLeftParen):
			depth++
		case list[j].is(lexer.KindRightParen):
			depth--
			if depth == 0 {
				return list[i+2 : j], j, nil
			}
		}
	}
	return nil, 0, fmt.Errorf("%w: unterminated __VA_OPT__ group", cc.ErrInvalidDirective)
}

// variadicTailEmpty reports whether the __VA_ARGS__ argument is absent or
// consists of no tokens.
func variadicTailEmpty(inv *invocation) bool {
	tail := inv.args[len(inv.macro.Params)]
	return len(tail) == 0
}

// stringize renders argument tokens as a single string-literal token:
// tokens separated by one space where any whitespace stood, backslashes
// and double quotes escaped. The result carries the # token's position
// flags.
func stringize(arg []*Token, hash *Token) *Token {
	var sb strings.Builder
	sb.WriteByte('"')
	for i, tok := range arg {
		if i > 0 && tok.HasWhiteSpace {
			sb.WriteByte(' ')
		}
		for _, b := range []byte(tok.SourceText()) {
			if b == '"' || b == '\\' {
				sb.WriteByte('\\')
			}
			sb.WriteByte(b)
		}
	}
	sb.WriteByte('"')

	text := []byte(sb.String())
	return &Token{
		Base: &lexer.Token{
			Kind:     lexer.KindStringLiteral,
			Source:   text,
			Resolved: text,
		},
		HasWhiteSpace: hash.HasWhiteSpace,
	}
}

// paste performs every ## of the substituted list, left to right, then
// strips the remaining placemarkers. Only ## tokens from the replacement
// list operate; ## arriving through an argument is data.
func (x *expander) paste(items []substItem) ([]*Token, error) {
	var out []*Token
	for i := 0; i < len(items); i++ {
		item := items[i]
		if item.tok.is(lexer.KindHashHash) && !item.fromArg && len(out) > 0 && i+1 < len(items) {
			merged, err := pasteTokens(out[len(out)-1], items[i+1].tok)
			if err != nil {
				return nil, err
			}
			out[len(out)-1] = merged
			i++
			continue
		}
		out = append(out, item.tok)
	}

	final := out[:0]
	for _, tok := range out {
		if !tok.isPlacemarker() {
			final = append(final, tok)
		}
	}
	return final, nil
}

// pasteTokens concatenates two source lexemes and relexes the result,
// which must come out as exactly one token. A placemarker operand is
// absorbed. Two # tokens paste into the inert ## that later passes leave
// alone.
func pasteTokens(left, right *Token) (*Token, error) {
	if left.isPlacemarker() && right.isPlacemarker() {
		return newPlacemarker(), nil
	}
	if left.isPlacemarker() {
		merged := right.Clone()
		merged.HasWhiteSpace = left.HasWhiteSpace
		return merged, nil
	}
	if right.isPlacemarker() {
		return left.Clone(), nil
	}

	if left.is(lexer.KindHash) && right.is(lexer.KindHash) {
		merged := left.Clone()
		merged.Base = &lexer.Token{
			Kind:     lexer.KindInertHashHash,
			Source:   []byte("##"),
			Resolved: []byte("##"),
		}
		return merged, nil
	}

	text := left.SourceText() + right.SourceText()
	lx := lexer.New([]byte(text))
	base, err := lx.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: pasting %q and %q forms an invalid token",
			cc.ErrInvalidDirective, left.SourceText(), right.SourceText())
	}
	if _, err := lx.Next(); !errors.Is(err, cc.ErrEOF) {
		return nil, fmt.Errorf("%w: pasting %q and %q forms more than one token",
			cc.ErrInvalidDirective, left.SourceText(), right.SourceText())
	}
	merged := &Token{
		Base:          base,
		HasWhiteSpace: left.HasWhiteSpace,
	}
	return merged, nil
}
