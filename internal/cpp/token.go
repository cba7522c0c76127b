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

import "github.com/EngFlow/ccfront/internal/lexer"

// Token is a preprocessing token: an immutable lexer token shared between
// copies, plus per-wrapper state. Marked records that the token named an
// active macro during expansion and must never be expanded again; the
// whitespace flags start as the base token's but may be straightened while
// collecting macro arguments.
//
// A placemarker is a synthetic empty token inserted during substitution so
// that ## with an absent operand collapses cleanly. It has no base.
type Token struct {
	Base          *lexer.Token
	Marked        bool
	HasWhiteSpace bool
	IsFirst       bool
	placemarker   bool
}

// wrapToken lifts a lexer token into a preprocessing token.
func wrapToken(base *lexer.Token) *Token {
	return &Token{
		Base:          base,
		HasWhiteSpace: base.HasWhiteSpace,
		IsFirst:       base.IsFirst,
	}
}

// newPlacemarker returns a fresh placemarker token.
func newPlacemarker() *Token { return &Token{placemarker: true} }

// Clone copies the wrapper; the underlying lexer token is shared. The
// Marked flag persists through every copy, which is what guarantees
// expansion terminates.
func (t *Token) Clone() *Token {
	clone := *t
	return &clone
}

// Kind returns the token kind; a placemarker has no kind.
func (t *Token) Kind() lexer.Kind {
	if t.placemarker {
		return lexer.KindInvalid
	}
	return t.Base.Kind
}

// Text returns the resolved lexeme.
func (t *Token) Text() string {
	if t.placemarker {
		return ""
	}
	return t.Base.Text()
}

// SourceText returns the raw lexeme, used by stringizing and pasting.
func (t *Token) SourceText() string {
	if t.placemarker {
		return ""
	}
	if len(t.Base.Source) > 0 {
		return string(t.Base.Source)
	}
	return t.Base.Kind.Spelling()
}

// IsIdentifier reports whether the token can name a macro.
func (t *Token) IsIdentifier() bool {
	return !t.placemarker && t.Base.IsIdentifier()
}

func (t *Token) isPlacemarker() bool { return t.placemarker }

func (t *Token) is(kind lexer.Kind) bool {
	return !t.placemarker && t.Base.Kind == kind
}

// cloneTokens deep-copies a token list at the wrapper level.
func cloneTokens(tokens []*Token) []*Token {
	out := make([]*Token, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Clone()
	}
	return out
}
