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
	"log"
	"strings"

	"bitbucket.org/creachadair/stringset"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/lexer"
)

// conditionalDirectives are the only directives recognized inside a skip
// zone.
var conditionalDirectives = stringset.New(
	"if", "ifdef", "ifndef", "elif", "elifdef", "elifndef", "else", "endif",
)

// dispatch routes one directive line (the tokens after the #). Inside a
// skip zone everything except conditional inclusion is dropped.
func (p *Preprocessor) dispatch(fr *frame, line []*Token) error {
	if len(line) == 0 {
		return nil // null directive
	}
	name := line[0]
	if !name.IsIdentifier() {
		if fr.cond.inSkipZone() {
			return nil
		}
		return fmt.Errorf("%w: # followed by %q", cc.ErrInvalidDirective, name.Text())
	}

	directive := name.Text()
	if conditionalDirectives.Contains(directive) {
		return p.dispatchConditional(fr, directive, line[1:])
	}
	if fr.cond.inSkipZone() {
		return nil
	}

	switch directive {
	case "define":
		return p.parseDefine(line[1:])
	case "undef":
		if len(line) != 2 || !line[1].IsIdentifier() {
			return fmt.Errorf("%w: #undef requires a single identifier", cc.ErrInvalidDirective)
		}
		return p.macros.undef(line[1].Text())
	case "include":
		return p.handleInclude(fr, line[1:])
	case "error":
		return fmt.Errorf("%w: #error %s", cc.ErrInvalidDirective, lineText(line[1:]))
	case "warning":
		log.Printf("%s: #warning %s", fr.path, lineText(line[1:]))
		return nil
	default:
		return fmt.Errorf("%w: unknown directive #%s", cc.ErrInvalidDirective, directive)
	}
}

// dispatchConditional implements the conditional-inclusion state machine.
// Conditions are evaluated only when the result can matter.
func (p *Preprocessor) dispatchConditional(fr *frame, directive string, rest []*Token) error {
	definedOperand := func() (string, error) {
		if len(rest) != 1 || !rest[0].IsIdentifier() {
			return "", fmt.Errorf("%w: #%s requires a single identifier", cc.ErrInvalidDirective, directive)
		}
		return rest[0].Text(), nil
	}

	evaluate := func() (bool, error) {
		switch directive {
		case "if", "elif":
			if len(rest) == 0 {
				return false, fmt.Errorf("%w: #%s without an expression", cc.ErrInvalidDirective, directive)
			}
			return p.evalCondition(fr, rest)
		case "ifdef", "elifdef":
			name, err := definedOperand()
			if err != nil {
				return false, err
			}
			return p.macros.isDefined(name), nil
		default: // ifndef, elifndef
			name, err := definedOperand()
			if err != nil {
				return false, err
			}
			return !p.macros.isDefined(name), nil
		}
	}

	switch directive {
	case "if", "ifdef", "ifndef":
		cond := false
		if !fr.cond.inSkipZone() {
			var err error
			if cond, err = evaluate(); err != nil {
				return err
			}
		}
		fr.cond.pushIf(cond)
		return nil

	case "elif", "elifdef", "elifndef":
		want, err := fr.cond.wantsElifCondition()
		if err != nil {
			return err
		}
		cond := false
		if want {
			if cond, err = evaluate(); err != nil {
				return err
			}
		}
		fr.cond.elif(cond)
		return nil

	case "else":
		return fr.cond.elseBranch()

	default: // endif
		return fr.cond.pop()
	}
}

// lineText renders a directive line for diagnostics.
func lineText(line []*Token) string {
	var sb strings.Builder
	for i, tok := range line {
		if i > 0 && tok.HasWhiteSpace {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok.SourceText())
	}
	return sb.String()
}

// parseDefine parses `#define name [(params)] replacement-list` and
// installs the macro.
func (p *Preprocessor) parseDefine(line []*Token) error {
	if len(line) == 0 || !line[0].IsIdentifier() {
		return fmt.Errorf("%w: #define requires a macro name", cc.ErrInvalidDirective)
	}
	macro := &Macro{
		Name:       line[0].Text(),
		Predefined: p.installingPredefined,
	}
	rest := line[1:]

	// The form is function-like only when the paren hugs the name.
	if len(rest) > 0 && rest[0].is(lexer.KindLeftParen) && !rest[0].HasWhiteSpace && !rest[0].IsFirst {
		macro.IsFunctionLike = true
		var err error
		if rest, err = parseMacroParams(macro, rest[1:]); err != nil {
			return err
		}
	}

	macro.Replacement = cloneTokens(rest)
	for i, tok := range macro.Replacement {
		tok.IsFirst = false
		if i == 0 {
			tok.HasWhiteSpace = false
		}
	}
	if err := validateReplacement(macro); err != nil {
		return err
	}
	return p.macros.define(macro)
}

// parseMacroParams consumes the parameter list after the opening paren and
// returns the remaining replacement-list tokens.
func parseMacroParams(macro *Macro, rest []*Token) ([]*Token, error) {
	seen := stringset.New()
	expectName := true
	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		switch {
		case tok.is(lexer.KindRightParen):
			if expectName && len(macro.Params) > 0 {
				return nil, fmt.Errorf("%w: trailing comma in parameters of %q", cc.ErrInvalidDirective, macro.Name)
			}
			return rest[i+1:], nil

		case tok.is(lexer.KindComma):
			if expectName {
				return nil, fmt.Errorf("%w: empty parameter in %q", cc.ErrInvalidDirective, macro.Name)
			}
			expectName = true

		case tok.is(lexer.KindEllipsis):
			if !expectName || macro.IsVariadic {
				return nil, fmt.Errorf("%w: misplaced ... in parameters of %q", cc.ErrInvalidDirective, macro.Name)
			}
			macro.IsVariadic = true
			expectName = false
			// ... must close the list.
			if i+1 >= len(rest) || !rest[i+1].is(lexer.KindRightParen) {
				return nil, fmt.Errorf("%w: ... must be the last parameter of %q", cc.ErrInvalidDirective, macro.Name)
			}

		case tok.IsIdentifier():
			if !expectName {
				return nil, fmt.Errorf("%w: missing comma in parameters of %q", cc.ErrInvalidDirective, macro.Name)
			}
			name := tok.Text()
			if name == "__VA_ARGS__" || name == "__VA_OPT__" {
				return nil, fmt.Errorf("%w: %s cannot be a parameter of %q", cc.ErrInvalidDirective, name, macro.Name)
			}
			if !seen.Add(name) {
				return nil, fmt.Errorf("%w: duplicate parameter %q in %q", cc.ErrInvalidDirective, name, macro.Name)
			}
			macro.Params = append(macro.Params, name)
			expectName = false

		default:
			return nil, fmt.Errorf("%w: bad parameter token %q in %q", cc.ErrInvalidDirective, tok.Text(), macro.Name)
		}
	}
	return nil, fmt.Errorf("%w: unterminated parameter list of %q", cc.ErrInvalidDirective, macro.Name)
}

// validateReplacement enforces the define-time constraints on the
// replacement list.
func validateReplacement(macro *Macro) error {
	rl := macro.Replacement
	if len(rl) > 0 {
		if rl[0].is(lexer.KindHashHash) || rl[len(rl)-1].is(lexer.KindHashHash) {
			return fmt.Errorf("%w: ## cannot begin or end the replacement of %q", cc.ErrInvalidDirective, macro.Name)
		}
	}
	for i, tok := range rl {
		if tok.IsIdentifier() && !macro.IsVariadic &&
			(tok.Text() == "__VA_ARGS__" || tok.Text() == "__VA_OPT__") {
			return fmt.Errorf("%w: %s outside a variadic macro in %q", cc.ErrInvalidDirective, tok.Text(), macro.Name)
		}
		if macro.IsFunctionLike && tok.is(lexer.KindHash) {
			ok := i+1 < len(rl) && rl[i+1].IsIdentifier() &&
				macro.paramIndex(rl[i+1].Text()) >= 0
			if !ok {
				return fmt.Errorf("%w: # must precede a parameter in %q", cc.ErrInvalidDirective, macro.Name)
			}
		}
	}
	return nil
}
