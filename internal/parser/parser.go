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

// Package parser is the hand-written recursive-descent parser over the
// C23 grammar. It consumes the preprocessor's token stream, builds the
// AST with an integrated scoped symbol table, and enforces the
// declaration-specifier combinability rules.
package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/EngFlow/ccfront/internal/ast"
	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/lexer"
	"github.com/EngFlow/ccfront/internal/tokenfile"
)

// Parser consumes one token stream and builds a translation unit.
type Parser struct {
	read  func() (*lexer.Token, error)
	buf   []*lexer.Token
	atEOF bool

	scope *ast.Scope
	// protoScope is the prototype scope of the most recently parsed
	// function declarator; a function definition adopts it.
	protoScope *ast.Scope
}

// New creates a parser over a pull source of tokens.
func New(read func() (*lexer.Token, error)) *Parser {
	return &Parser{read: read, scope: ast.NewFileScope()}
}

// NewFromReader parses the serialized token stream the preprocessor
// wrote.
func NewFromReader(r io.Reader) *Parser {
	tr := tokenfile.NewReader(r)
	return New(tr.Read)
}

// NewFromTokens parses an in-memory token slice.
func NewFromTokens(tokens []*lexer.Token) *Parser {
	i := 0
	return New(func() (*lexer.Token, error) {
		if i >= len(tokens) {
			return nil, cc.ErrEOF
		}
		tok := tokens[i]
		i++
		return tok, nil
	})
}

// FileScope returns the root scope with every committed file-scope
// symbol.
func (p *Parser) FileScope() *ast.Scope {
	for s := p.scope; ; s = s.Parent() {
		if s.Parent() == nil {
			return s
		}
	}
}

// peek returns the i-th unconsumed token, nil at end of stream.
func (p *Parser) peek(i int) (*lexer.Token, error) {
	for len(p.buf) <= i && !p.atEOF {
		tok, err := p.read()
		if errors.Is(err, cc.ErrEOF) {
			p.atEOF = true
			break
		}
		if err != nil {
			return nil, err
		}
		p.buf = append(p.buf, tok)
	}
	if i < len(p.buf) {
		return p.buf[i], nil
	}
	return nil, nil
}

// peekKind returns the kind of the i-th unconsumed token, KindInvalid at
// end of stream.
func (p *Parser) peekKind(i int) (lexer.Kind, error) {
	tok, err := p.peek(i)
	if err != nil || tok == nil {
		return lexer.KindInvalid, err
	}
	return tok.Kind, nil
}

// next consumes and returns the next token.
func (p *Parser) next() (*lexer.Token, error) {
	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: unexpected end of token stream", cc.ErrInvalidDecl)
	}
	p.buf = p.buf[1:]
	return tok, nil
}

// accept consumes the next token when it has the given kind.
func (p *Parser) accept(kind lexer.Kind) (bool, error) {
	got, err := p.peekKind(0)
	if err != nil {
		return false, err
	}
	if got != kind {
		return false, nil
	}
	_, err = p.next()
	return true, err
}

// expect consumes the next token, which must have the given kind.
func (p *Parser) expect(kind lexer.Kind) (*lexer.Token, error) {
	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: expected %q, found end of stream", cc.ErrInvalidDecl, kind.Spelling())
	}
	if tok.Kind != kind {
		return nil, fmt.Errorf("%w: expected %q, found %q at %v", cc.ErrInvalidDecl, kind.Spelling(), tok.Text(), tok.Pos)
	}
	return p.next()
}

// ParseTranslationUnit parses the whole stream.
func (p *Parser) ParseTranslationUnit() (*ast.Node, error) {
	unit := ast.NewNode(ast.KindTranslationUnit)
	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return unit, nil
		}
		decl, err := p.parseExternalDeclaration()
		if err != nil {
			return nil, err
		}
		unit.AddChild(decl)
	}
}

// parseExternalDeclaration handles one top-level construct. The shape is
// decided after specifiers and one declarator: a following { begins a
// function definition, anything else is a declaration.
func (p *Parser) parseExternalDeclaration() (*ast.Node, error) {
	attrs, err := p.parseAttributeSequence()
	if err != nil {
		return nil, err
	}

	// [[...]] ; is an attribute declaration.
	if attrs != nil {
		if ok, err := p.accept(lexer.KindSemicolon); err != nil {
			return nil, err
		} else if ok {
			decl := ast.NewNode(ast.KindAttributeDeclaration)
			decl.AddChild(attrs)
			return decl, nil
		}
	}

	if kind, _ := p.peekKind(0); kind == lexer.KindKeywordStaticAssert {
		return p.parseStaticAssert()
	}

	specs, err := p.parseDeclarationSpecifiers()
	if err != nil {
		return nil, err
	}

	// A bare ; after specifiers is allowed when they introduce a tag.
	if ok, err := p.accept(lexer.KindSemicolon); err != nil {
		return nil, err
	} else if ok {
		if !specs.declaresTag {
			return nil, fmt.Errorf("%w: declaration declares nothing", cc.ErrInvalidDecl)
		}
		decl := ast.NewNode(ast.KindDeclaration)
		if attrs != nil {
			decl.AddChild(attrs)
		}
		decl.AddChild(specs.node)
		return decl, nil
	}

	p.protoScope = nil
	declarator, err := p.parseDeclarator(false)
	if err != nil {
		return nil, err
	}

	if kind, _ := p.peekKind(0); kind == lexer.KindLeftBrace && declaratorIsFunction(declarator) {
		return p.parseFunctionDefinition(attrs, specs, declarator)
	}
	return p.finishDeclaration(attrs, specs, declarator)
}

// finishDeclaration parses the rest of an init-declarator list and
// commits each declarator to the symbol table.
func (p *Parser) finishDeclaration(attrs *ast.Node, specs *declSpecs, first *ast.Node) (*ast.Node, error) {
	decl := ast.NewNode(ast.KindDeclaration)
	if attrs != nil {
		decl.AddChild(attrs)
	}
	decl.AddChild(specs.node)

	declarator := first
	for {
		if err := p.commitDeclarator(specs, declarator); err != nil {
			return nil, err
		}
		decl.AddChild(declarator)

		if ok, err := p.accept(lexer.KindAssign); err != nil {
			return nil, err
		} else if ok {
			init, err := p.parseInitializer()
			if err != nil {
				return nil, err
			}
			declarator.AddChild(init)
		}

		if ok, err := p.accept(lexer.KindComma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
		var err error
		if declarator, err = p.parseDeclarator(false); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return decl, nil
}

// parseFunctionDefinition adopts the declarator's prototype scope as the
// body's block scope, moving the parameter entries in.
func (p *Parser) parseFunctionDefinition(attrs *ast.Node, specs *declSpecs, declarator *ast.Node) (*ast.Node, error) {
	if p.protoScope == nil {
		return nil, fmt.Errorf("%w: function body requires a function declarator", cc.ErrInvalidDecl)
	}
	if specs.storage&ast.StorageTypedef != 0 {
		return nil, fmt.Errorf("%w: typedef cannot define a function", cc.ErrInvalidDecl)
	}
	if err := p.commitDeclarator(specs, declarator); err != nil {
		return nil, err
	}

	body := p.scope.NewChild(ast.ScopeBlock)
	if err := body.Transfer(p.protoScope); err != nil {
		return nil, err
	}
	p.protoScope = nil

	saved := p.scope
	p.scope = body
	block, err := p.parseCompoundStatement(false)
	p.scope = saved
	if err != nil {
		return nil, err
	}

	def := ast.NewNode(ast.KindFunctionDefinition)
	if attrs != nil {
		def.AddChild(attrs)
	}
	def.AddChild(specs.node)
	def.AddChild(declarator)
	def.AddChild(block)
	return def, nil
}

// commitDeclarator installs the declarator's identifier in the current
// scope with the linkage and storage derived from the specifiers.
func (p *Parser) commitDeclarator(specs *declSpecs, declarator *ast.Node) error {
	ident := declaratorIdentifier(declarator)
	if ident == nil {
		return fmt.Errorf("%w: declarator without an identifier", cc.ErrInvalidDecl)
	}
	name := string(ident.Value.Tok.Resolved)

	sym := &ast.Symbol{
		Name:      name,
		Namespace: ast.NamespaceOrdinary,
		Storage:   specs.storageClass(),
		Decl:      declarator,
	}
	isFunction := declaratorIsFunction(declarator)
	switch {
	case specs.storage&ast.StorageTypedef != 0:
		sym.Kind = ast.SymbolTypeDef
	case isFunction:
		sym.Kind = ast.SymbolFunction
	default:
		sym.Kind = ast.SymbolObject
	}
	sym.Linkage = p.linkageFor(specs, isFunction)
	return p.scope.Insert(sym)
}

// linkageFor derives linkage: file-scope statics are internal, file-scope
// objects and functions default to external, block-scope functions are
// external too, and other block-scope entities have none unless extern.
func (p *Parser) linkageFor(specs *declSpecs, isFunction bool) ast.Linkage {
	atFileScope := p.scope.Kind == ast.ScopeFile
	switch {
	case specs.storage&ast.StorageTypedef != 0:
		return ast.LinkageNone
	case specs.storage&ast.StorageStatic != 0 && atFileScope:
		return ast.LinkageInternal
	case specs.storage&ast.StorageExtern != 0:
		return ast.LinkageExternal
	case atFileScope || isFunction:
		return ast.LinkageExternal
	default:
		return ast.LinkageNone
	}
}

// declaratorIdentifier finds the identifier leaf of a declarator, nil for
// abstract declarators.
func declaratorIdentifier(declarator *ast.Node) *ast.Node {
	for child := range declarator.Children() {
		if child.Value.Kind == ast.KindIdentifier {
			return child
		}
	}
	return nil
}

// declaratorIsFunction reports whether the declarator declares a
// function. Children are ordered inside-out, so the identifier's direct
// derivation is the first array/function/pointer child: `f(int)` is a
// function, `(*f)(int)` is a pointer object.
func declaratorIsFunction(declarator *ast.Node) bool {
	for child := range declarator.Children() {
		switch child.Value.Kind {
		case ast.KindFunction:
			return true
		case ast.KindPointer, ast.KindArray:
			return false
		}
	}
	return false
}

// parseStaticAssert parses static_assert(expr [, message]);
func (p *Parser) parseStaticAssert() (*ast.Node, error) {
	if _, err := p.expect(lexer.KindKeywordStaticAssert); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindLeftParen); err != nil {
		return nil, err
	}
	node := ast.NewNode(ast.KindStaticAssertDeclaration)
	expr, err := p.parseConditionalExpression()
	if err != nil {
		return nil, err
	}
	node.AddChild(expr)
	if ok, err := p.accept(lexer.KindComma); err != nil {
		return nil, err
	} else if ok {
		msg, err := p.expect(lexer.KindStringLiteral)
		if err != nil {
			return nil, err
		}
		node.AddChild(ast.NewTokenNode(ast.KindString, msg))
	}
	if _, err := p.expect(lexer.KindRightParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return node, nil
}

// parseAttributeSequence parses zero or more [[...]] specifiers; nil when
// none are present.
func (p *Parser) parseAttributeSequence() (*ast.Node, error) {
	var attrs *ast.Node
	for {
		k0, err := p.peekKind(0)
		if err != nil {
			return nil, err
		}
		k1, err := p.peekKind(1)
		if err != nil {
			return nil, err
		}
		if k0 != lexer.KindLeftBracket || k1 != lexer.KindLeftBracket {
			return attrs, nil
		}
		p.next()
		p.next()
		if attrs == nil {
			attrs = ast.NewNode(ast.KindAttributes)
		}
		for {
			if ok, err := p.accept(lexer.KindRightBracket); err != nil {
				return nil, err
			} else if ok {
				if _, err := p.expect(lexer.KindRightBracket); err != nil {
					return nil, err
				}
				break
			}
			attr, err := p.parseAttribute()
			if err != nil {
				return nil, err
			}
			attrs.AddChild(attr)
			if ok, err := p.accept(lexer.KindComma); err != nil {
				return nil, err
			} else if !ok {
				if _, err := p.expect(lexer.KindRightBracket); err != nil {
					return nil, err
				}
				if _, err := p.expect(lexer.KindRightBracket); err != nil {
					return nil, err
				}
				break
			}
		}
	}
}

// parseAttribute parses one attribute token: ident, ident::ident, with an
// optional balanced argument clause that is preserved but not
// interpreted.
func (p *Parser) parseAttribute() (*ast.Node, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	if !tok.IsIdentifier() {
		return nil, fmt.Errorf("%w: expected attribute name, found %q", cc.ErrInvalidDecl, tok.Text())
	}
	attr := ast.NewTokenNode(ast.KindAttribute, tok)
	if ok, err := p.accept(lexer.KindColonColon); err != nil {
		return nil, err
	} else if ok {
		name, err := p.next()
		if err != nil {
			return nil, err
		}
		if !name.IsIdentifier() {
			return nil, fmt.Errorf("%w: expected attribute name after ::", cc.ErrInvalidDecl)
		}
		attr.AddChild(ast.NewTokenNode(ast.KindIdentifier, name))
	}
	if ok, err := p.accept(lexer.KindLeftParen); err != nil {
		return nil, err
	} else if ok {
		depth := 1
		for depth > 0 {
			tok, err := p.next()
			if err != nil {
				return nil, err
			}
			switch tok.Kind {
			case lexer.KindLeftParen:
				depth++
			case lexer.KindRightParen:
				depth--
			}
		}
	}
	return attr, nil
}
