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

// Package cpp implements the C23 preprocessor: macro definition and
// expansion (object-like, function-like, variadic, stringizing, token
// pasting, __VA_OPT__), conditional inclusion with a full #if constant
// expression evaluator, file inclusion, and serialization of the resulting
// token stream for the parser.
package cpp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/lexer"
	"github.com/EngFlow/ccfront/internal/tokenfile"
)

// maxIncludeDepth bounds #include recursion; the standard requires
// support for at least 15 levels, real headers stay far below this.
const maxIncludeDepth = 256

// predefinedHeader is the synthetic translation unit that installs the
// predefined macros before any user code. Its entries can be neither
// redefined nor undefined.
const predefinedHeader = `#define __STDC__ 1
#define __STDC_VERSION__ 202311L
#define __STDC_HOSTED__ 1
#define __STDC_UTF_16__ 1
#define __STDC_UTF_32__ 1
#define __x86_64__ 1
#define __linux__ 1
`

// Preprocessor owns the macro table, the include search path, and the
// recursion accounting shared by every file it processes.
type Preprocessor struct {
	macros     *macroTable
	systemDirs []string

	markerID             int
	includeDepth         int
	installingPredefined bool
}

// frame is the per-file state: the token stream over the file's lexer and
// the conditional-inclusion stack, which must balance within the file.
type frame struct {
	path string
	dir  string
	src  *stream
	cond condStack
	emit func(*Token) error
}

// New creates a preprocessor searching the given system include
// directories, with the predefined macros installed.
func New(systemDirs []string) (*Preprocessor, error) {
	p := &Preprocessor{
		macros:     newMacroTable(),
		systemDirs: systemDirs,
	}
	p.installingPredefined = true
	err := p.processBytes([]byte(predefinedHeader), "<predefined>", func(*Token) error {
		return fmt.Errorf("%w: predefined header must not emit tokens", cc.ErrInvalidDirective)
	})
	p.installingPredefined = false
	if err != nil {
		return nil, err
	}
	return p, nil
}

// nextMarkerID allocates a unique replacement-list-end marker id.
func (p *Preprocessor) nextMarkerID() int {
	p.markerID++
	return p.markerID
}

// ProcessFile preprocesses the file at path, passing each output token to
// emit in source order.
func (p *Preprocessor) ProcessFile(path string, emit func(*Token) error) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return p.processBytes(raw, path, emit)
}

// WriteTokenStream preprocesses path and serializes the resulting tokens
// to w in the binary token-stream format.
func (p *Preprocessor) WriteTokenStream(path string, w io.Writer) error {
	tw := tokenfile.NewWriter(w)
	err := p.ProcessFile(path, func(tok *Token) error {
		return tw.Write(tok.Base)
	})
	if err != nil {
		return err
	}
	return tw.Flush()
}

// processBytes runs the per-file loop over in-memory source.
func (p *Preprocessor) processBytes(raw []byte, path string, emit func(*Token) error) error {
	fr := &frame{
		path: path,
		dir:  filepath.Dir(path),
		src:  newStream(lexerPull(lexer.New(raw))),
		emit: emit,
	}
	return p.processFrame(fr)
}

// processFrame is the main loop: directives are recognized on a # that is
// first on its line, skip zones drop everything else, and the remaining
// tokens go through macro expansion.
func (p *Preprocessor) processFrame(fr *frame) error {
	x := &expander{p: p}
	for {
		e, err := fr.src.pop()
		if errors.Is(err, cc.ErrEOF) {
			if len(fr.cond) != 0 {
				return fmt.Errorf("%w: unterminated conditional at end of %s", cc.ErrConditionalMismatch, fr.path)
			}
			return nil
		}
		if err != nil {
			return err
		}
		if e.isMarker() {
			continue
		}
		tok := e.tok

		if tok.is(lexer.KindHash) && tok.IsFirst {
			line, err := p.directiveLine(fr)
			if err != nil {
				return err
			}
			if err := p.dispatch(fr, line); err != nil {
				return err
			}
			continue
		}
		if fr.cond.inSkipZone() {
			continue
		}
		if _, err := x.processOne(tok, fr.src, fr.emit); err != nil {
			return err
		}
	}
}

// directiveLine collects the tokens of the current directive: everything
// up to, but not including, the next line-first token.
func (p *Preprocessor) directiveLine(fr *frame) ([]*Token, error) {
	var line []*Token
	for {
		e, err := fr.src.peek()
		if errors.Is(err, cc.ErrEOF) {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
		if e.isMarker() || e.tok.IsFirst {
			return line, nil
		}
		fr.src.pop()
		line = append(line, e.tok)
	}
}

// handleInclude resolves and recursively processes an #include line.
func (p *Preprocessor) handleInclude(fr *frame, line []*Token) error {
	target, quoted, err := p.parseIncludeTarget(fr, line, true)
	if err != nil {
		return err
	}
	resolved, err := p.resolveInclude(fr, target, quoted)
	if err != nil {
		return err
	}

	if p.includeDepth >= maxIncludeDepth {
		return fmt.Errorf("%w: #include nesting exceeds %d", cc.ErrInvalidDirective, maxIncludeDepth)
	}
	p.includeDepth++
	defer func() { p.includeDepth-- }()

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("reading %s: %w", resolved, err)
	}
	return p.processBytes(raw, resolved, fr.emit)
}

// parseIncludeTarget extracts the header name from an #include line: a
// quoted literal, a < > sequence, or, once, the macro expansion of the
// line re-examined the same way.
func (p *Preprocessor) parseIncludeTarget(fr *frame, line []*Token, allowExpansion bool) (string, bool, error) {
	if len(line) == 0 {
		return "", false, fmt.Errorf("%w: #include without a header name", cc.ErrInvalidDirective)
	}

	if line[0].is(lexer.KindStringLiteral) {
		text := line[0].Text()
		if len(text) < 2 {
			return "", false, fmt.Errorf("%w: malformed header name %q", cc.ErrInvalidDirective, text)
		}
		return text[1 : len(text)-1], true, nil
	}

	if line[0].is(lexer.KindLess) {
		var sb strings.Builder
		for _, tok := range line[1:] {
			if tok.is(lexer.KindGreater) {
				return sb.String(), false, nil
			}
			sb.WriteString(tok.SourceText())
		}
		return "", false, fmt.Errorf("%w: unterminated <header> name", cc.ErrInvalidDirective)
	}

	if !allowExpansion {
		return "", false, fmt.Errorf("%w: bad #include argument %q", cc.ErrInvalidDirective, lineText(line))
	}

	// Neither form: macro-expand the line and retry once.
	src := newTokenStream(cloneTokens(line))
	src.front.PushTail(markerEntry(p.nextMarkerID()))
	x := &expander{p: p}
	var expanded []*Token
	if err := x.run(src, func(tok *Token) error {
		expanded = append(expanded, tok)
		return nil
	}); err != nil {
		return "", false, err
	}
	return p.parseIncludeTarget(fr, expanded, false)
}

// resolveInclude maps a header name to a path: quoted includes try the
// including file's directory first, then fall back to the system
// directories that <...> includes search in order.
func (p *Preprocessor) resolveInclude(fr *frame, name string, quoted bool) (string, error) {
	var candidates []string
	if quoted {
		candidates = append(candidates, filepath.Join(fr.dir, name))
	}
	for _, dir := range p.systemDirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("include %q not found", name)
}

// hasInclude implements the __has_include operator over the same search.
func (p *Preprocessor) hasInclude(fr *frame, group []*Token) bool {
	target, quoted, err := p.parseIncludeTarget(fr, group, true)
	if err != nil {
		return false
	}
	_, err = p.resolveInclude(fr, target, quoted)
	return err == nil
}
