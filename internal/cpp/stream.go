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

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/collections"
	"github.com/EngFlow/ccfront/internal/lexer"
)

// entry is one element of the token stream: either a preprocessing token
// or a replacement-list-end marker. Markers are a tagged variant, never a
// token spelled in the source; each carries the unique id allocated when
// its macro expansion was pushed.
type entry struct {
	tok    *Token
	marker int // 0 when tok is set
}

func tokenEntry(tok *Token) entry { return entry{tok: tok} }
func markerEntry(id int) entry    { return entry{marker: id} }

func (e entry) isMarker() bool { return e.tok == nil }

// stream is the expansion engine's working queue. Pops come from the
// front; macro expansions are pushed back onto the front; when the front
// is empty, tokens are pulled from the backing source (the file's lexer
// for the main pass, nothing for argument passes).
type stream struct {
	front *collections.Deque[entry]
	pull  func() (*Token, error) // nil for self-contained streams
}

// newStream builds a stream over a pull source.
func newStream(pull func() (*Token, error)) *stream {
	return &stream{front: collections.NewDeque[entry](nil), pull: pull}
}

// newTokenStream builds a self-contained stream over a fixed token list.
func newTokenStream(tokens []*Token) *stream {
	s := newStream(nil)
	for _, tok := range tokens {
		s.front.PushTail(tokenEntry(tok))
	}
	return s
}

// lexerPull adapts a lexer into a pull source.
func lexerPull(lx *lexer.Lexer) func() (*Token, error) {
	return func() (*Token, error) {
		base, err := lx.Next()
		if err != nil {
			return nil, err
		}
		return wrapToken(base), nil
	}
}

// pop removes and returns the next entry. cc.ErrEOF signals exhaustion.
func (s *stream) pop() (entry, error) {
	if e, ok := s.front.PopHead(); ok {
		return e, nil
	}
	if s.pull == nil {
		return entry{}, cc.ErrEOF
	}
	tok, err := s.pull()
	if err != nil {
		return entry{}, err
	}
	return tokenEntry(tok), nil
}

// peek returns the next entry without consuming it.
func (s *stream) peek() (entry, error) {
	if e, ok := s.front.PeekHead(); ok {
		return e, nil
	}
	if s.pull == nil {
		return entry{}, cc.ErrEOF
	}
	tok, err := s.pull()
	if err != nil {
		return entry{}, err
	}
	e := tokenEntry(tok)
	s.front.PushHead(e)
	return e, nil
}

// push returns one entry to the front of the stream.
func (s *stream) push(e entry) { s.front.PushHead(e) }

// pushTokens returns a token list to the front, preserving order.
func (s *stream) pushTokens(tokens []*Token) {
	for i := len(tokens) - 1; i >= 0; i-- {
		s.front.PushHead(tokenEntry(tokens[i]))
	}
}

// atEOF reports whether pop would return cc.ErrEOF.
func (s *stream) atEOF() bool {
	_, err := s.peek()
	return errors.Is(err, cc.ErrEOF)
}
