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

package parser

import (
	"fmt"

	"github.com/EngFlow/ccfront/internal/ast"
	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/lexer"
)

// parseDeclarator parses a declarator or, when abstract is true, an
// abstract declarator (the identifier may be omitted). One routine covers
// both shapes.
//
// The result node's children list the derivation inside-out: identifier
// first (when present), then each array/function/pointer in the order the
// type is built, so `int (*f)(int)[3]` yields {identifier f, pointer,
// function, array}.
func (p *Parser) parseDeclarator(abstract bool) (*ast.Node, error) {
	kind := ast.KindDeclarator
	if abstract {
		kind = ast.KindAbstractDeclarator
	}
	declarator := ast.NewNode(kind)

	parts, err := p.parseDeclaratorParts(abstract)
	if err != nil {
		return nil, err
	}
	if !abstract {
		named := false
		for _, part := range parts {
			named = named || part.Value.Kind == ast.KindIdentifier
		}
		if !named {
			return nil, fmt.Errorf("%w: expected an identifier in declarator", cc.ErrInvalidDecl)
		}
	}
	for _, part := range parts {
		declarator.AddChild(part)
	}
	return declarator, nil
}

// parseDeclaratorParts returns the inside-out derivation list: inner
// parts, then this level's postfix array/function derivations, then this
// level's pointers innermost-last.
func (p *Parser) parseDeclaratorParts(abstract bool) ([]*ast.Node, error) {
	pointers, err := p.parsePointerPrefix()
	if err != nil {
		return nil, err
	}

	var parts []*ast.Node
	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	switch {
	case tok == nil:
		// Abstract declarators may end here (e.g. `int *`).
	case tok.Kind == lexer.KindLeftParen && p.parenOpensGrouping():
		p.next()
		inner, err := p.parseDeclaratorParts(abstract)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.KindRightParen); err != nil {
			return nil, err
		}
		parts = inner
	case tok.Kind.IsIdentifier() && tok.Kind == lexer.KindIdentifier:
		p.next()
		parts = append(parts, ast.NewTokenNode(ast.KindIdentifier, tok))
	}

	// Postfix derivations apply in source order.
	for {
		kind, err := p.peekKind(0)
		if err != nil {
			return nil, err
		}
		switch kind {
		case lexer.KindLeftBracket:
			if next, _ := p.peekKind(1); next == lexer.KindLeftBracket {
				// An attribute sequence, not an array declarator.
				attrs, err := p.parseAttributeSequence()
				if err != nil {
					return nil, err
				}
				if len(parts) > 0 {
					parts[len(parts)-1].AddChild(attrs)
				}
				continue
			}
			array, err := p.parseArrayDeclarator()
			if err != nil {
				return nil, err
			}
			parts = append(parts, array)
		case lexer.KindLeftParen:
			fn, err := p.parseFunctionDeclarator()
			if err != nil {
				return nil, err
			}
			parts = append(parts, fn)
		default:
			// Pointers bind last: append them innermost-first reversed.
			for i := len(pointers) - 1; i >= 0; i-- {
				parts = append(parts, pointers[i])
			}
			return parts, nil
		}
	}
}

// parsePointerPrefix collects the leading * derivations with their
// qualifier lists and attributes.
func (p *Parser) parsePointerPrefix() ([]*ast.Node, error) {
	var pointers []*ast.Node
	for {
		ok, err := p.accept(lexer.KindAsterisk)
		if err != nil {
			return nil, err
		}
		if !ok {
			return pointers, nil
		}
		ptr := ast.NewNode(ast.KindPointer)
		for {
			tok, err := p.peek(0)
			if err != nil {
				return nil, err
			}
			if tok == nil {
				break
			}
			if qual, isQual := qualifierKeywords[tok.Kind]; isQual {
				p.next()
				ptr.Value.Qualifiers |= qual
				continue
			}
			if tok.Kind == lexer.KindKeywordAtomic {
				p.next()
				ptr.Value.Qualifiers |= ast.QualAtomic
				continue
			}
			if tok.Kind == lexer.KindLeftBracket {
				if next, _ := p.peekKind(1); next == lexer.KindLeftBracket {
					attrs, err := p.parseAttributeSequence()
					if err != nil {
						return nil, err
					}
					ptr.AddChild(attrs)
					continue
				}
			}
			break
		}
		pointers = append(pointers, ptr)
	}
}

// parenOpensGrouping decides whether a ( in declarator position opens a
// grouping or a parameter list: a following (, * or [ means grouping, a
// plain identifier that is not a typedef name names the inner
// declarator, anything else starts a parameter list.
func (p *Parser) parenOpensGrouping() bool {
	next, err := p.peek(1)
	if err != nil || next == nil {
		return false
	}
	switch next.Kind {
	case lexer.KindLeftParen, lexer.KindAsterisk:
		return true
	case lexer.KindLeftBracket:
		return true
	case lexer.KindIdentifier:
		return !p.scope.IsTypedefName(string(next.Resolved))
	default:
		return false
	}
}

// parseArrayDeclarator parses [ qualifiers? static? size? ].
func (p *Parser) parseArrayDeclarator() (*ast.Node, error) {
	if _, err := p.expect(lexer.KindLeftBracket); err != nil {
		return nil, err
	}
	array := ast.NewNode(ast.KindArray)
	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			break
		}
		if qual, isQual := qualifierKeywords[tok.Kind]; isQual {
			p.next()
			array.Value.Qualifiers |= qual
			continue
		}
		if tok.Kind == lexer.KindKeywordStatic {
			p.next()
			array.Value.Storage |= ast.StorageStatic
			continue
		}
		break
	}
	if ok, err := p.accept(lexer.KindRightBracket); err != nil {
		return nil, err
	} else if ok {
		return array, nil
	}
	size, err := p.parseConditionalExpression()
	if err != nil {
		return nil, err
	}
	array.AddChild(size)
	if _, err := p.expect(lexer.KindRightBracket); err != nil {
		return nil, err
	}
	return array, nil
}

// parseFunctionDeclarator parses a parameter list inside a fresh
// PROTOTYPE scope; the scope is stashed so a following function body can
// adopt the parameter symbols.
func (p *Parser) parseFunctionDeclarator() (*ast.Node, error) {
	if _, err := p.expect(lexer.KindLeftParen); err != nil {
		return nil, err
	}
	fn := ast.NewNode(ast.KindFunction)

	proto := p.scope.NewChild(ast.ScopePrototype)
	saved := p.scope
	p.scope = proto
	defer func() {
		p.scope = saved
		p.protoScope = proto
	}()

	if ok, err := p.accept(lexer.KindRightParen); err != nil {
		return nil, err
	} else if ok {
		return fn, nil
	}

	// `(void)` declares zero parameters.
	if kind, _ := p.peekKind(0); kind == lexer.KindKeywordVoid {
		if next, _ := p.peekKind(1); next == lexer.KindRightParen {
			p.next()
			p.next()
			return fn, nil
		}
	}

	for {
		if ok, err := p.accept(lexer.KindEllipsis); err != nil {
			return nil, err
		} else if ok {
			fn.AddChild(ast.NewNode(ast.KindEllipsisParameter))
			break
		}
		param, err := p.parseParameterDeclaration()
		if err != nil {
			return nil, err
		}
		fn.AddChild(param)
		if ok, err := p.accept(lexer.KindComma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	if _, err := p.expect(lexer.KindRightParen); err != nil {
		return nil, err
	}
	return fn, nil
}

// parseParameterDeclaration parses specifiers plus a declarator that may
// be named, abstract, or absent, and commits named parameters to the
// prototype scope.
func (p *Parser) parseParameterDeclaration() (*ast.Node, error) {
	attrs, err := p.parseAttributeSequence()
	if err != nil {
		return nil, err
	}
	specs, err := p.parseDeclarationSpecifiers()
	if err != nil {
		return nil, err
	}
	param := ast.NewNode(ast.KindParameter)
	if attrs != nil {
		param.AddChild(attrs)
	}
	param.AddChild(specs.node)

	if kind, _ := p.peekKind(0); kind != lexer.KindComma && kind != lexer.KindRightParen && kind != lexer.KindInvalid {
		declarator, err := p.parseDeclarator(true)
		if err != nil {
			return nil, err
		}
		param.AddChild(declarator)
		if ident := declaratorIdentifier(declarator); ident != nil {
			sym := &ast.Symbol{
				Name:      string(ident.Value.Tok.Resolved),
				Kind:      ast.SymbolObject,
				Namespace: ast.NamespaceOrdinary,
				Storage:   specs.storageClass(),
				Decl:      declarator,
			}
			if err := p.scope.Insert(sym); err != nil {
				return nil, err
			}
		}
	}
	return param, nil
}

// parseStructOrUnionSpecifier parses the tag and the optional member
// list; it reports whether a tag was introduced.
func (p *Parser) parseStructOrUnionSpecifier() (*ast.Node, bool, error) {
	tok, err := p.next() // struct or union
	if err != nil {
		return nil, false, err
	}
	kind := ast.KindStructSpecifier
	ns := ast.NamespaceStructTag
	if tok.Kind == lexer.KindKeywordUnion {
		kind = ast.KindUnionSpecifier
		ns = ast.NamespaceUnionTag
	}
	node := ast.NewNode(kind)

	attrs, err := p.parseAttributeSequence()
	if err != nil {
		return nil, false, err
	}
	if attrs != nil {
		node.AddChild(attrs)
	}

	declared := false
	var tag *lexer.Token
	if next, _ := p.peek(0); next != nil && next.Kind == lexer.KindIdentifier {
		p.next()
		tag = next
		node.Value.Tok = tag
		if p.scope.Lookup(ns, string(tag.Resolved)) == nil {
			sym := &ast.Symbol{Name: string(tag.Resolved), Kind: ast.SymbolType, Namespace: ns}
			if err := p.scope.Insert(sym); err != nil {
				return nil, false, err
			}
			declared = true
		}
	}

	ok, err := p.accept(lexer.KindLeftBrace)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if tag == nil {
			return nil, false, fmt.Errorf("%w: struct/union without tag or member list", cc.ErrInvalidDecl)
		}
		return node, declared, nil
	}

	member := p.scope.NewChild(ast.ScopeMember)
	saved := p.scope
	p.scope = member
	defer func() { p.scope = saved }()

	for {
		if ok, err := p.accept(lexer.KindRightBrace); err != nil {
			return nil, false, err
		} else if ok {
			return node, declared, nil
		}
		decl, err := p.parseMemberDeclaration()
		if err != nil {
			return nil, false, err
		}
		node.AddChild(decl)
	}
}

// parseMemberDeclaration parses one member-declarator list, including
// bit-fields.
func (p *Parser) parseMemberDeclaration() (*ast.Node, error) {
	if kind, _ := p.peekKind(0); kind == lexer.KindKeywordStaticAssert {
		return p.parseStaticAssert()
	}
	specs, err := p.parseDeclarationSpecifiers()
	if err != nil {
		return nil, err
	}
	decl := ast.NewNode(ast.KindMember)
	decl.AddChild(specs.node)

	// Anonymous member: struct/union specifier and no declarators.
	if ok, err := p.accept(lexer.KindSemicolon); err != nil {
		return nil, err
	} else if ok {
		return decl, nil
	}

	for {
		var declarator *ast.Node
		if kind, _ := p.peekKind(0); kind != lexer.KindColon {
			if declarator, err = p.parseDeclarator(false); err != nil {
				return nil, err
			}
			decl.AddChild(declarator)
			if ident := declaratorIdentifier(declarator); ident != nil {
				sym := &ast.Symbol{
					Name:      string(ident.Value.Tok.Resolved),
					Kind:      ast.SymbolObject,
					Namespace: ast.NamespaceMember,
					Decl:      declarator,
				}
				if err := p.scope.Insert(sym); err != nil {
					return nil, err
				}
			}
		}
		if ok, err := p.accept(lexer.KindColon); err != nil {
			return nil, err
		} else if ok {
			width, err := p.parseConditionalExpression()
			if err != nil {
				return nil, err
			}
			decl.AddChild(width)
		}
		if ok, err := p.accept(lexer.KindComma); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return decl, nil
}

// parseEnumSpecifier parses the tag, the optional fixed underlying type,
// and the enumerator list. Enumeration constants land in the enclosing
// ordinary namespace.
func (p *Parser) parseEnumSpecifier() (*ast.Node, bool, error) {
	if _, err := p.expect(lexer.KindKeywordEnum); err != nil {
		return nil, false, err
	}
	node := ast.NewNode(ast.KindEnumSpecifier)

	declared := false
	var tag *lexer.Token
	if next, _ := p.peek(0); next != nil && next.Kind == lexer.KindIdentifier {
		p.next()
		tag = next
		node.Value.Tok = tag
		if p.scope.Lookup(ast.NamespaceEnumTag, string(tag.Resolved)) == nil {
			sym := &ast.Symbol{Name: string(tag.Resolved), Kind: ast.SymbolType, Namespace: ast.NamespaceEnumTag}
			if err := p.scope.Insert(sym); err != nil {
				return nil, false, err
			}
			declared = true
		}
	}

	// enum tag : fixed-underlying-type
	if ok, err := p.accept(lexer.KindColon); err != nil {
		return nil, false, err
	} else if ok {
		underlying, err := p.parseTypeName()
		if err != nil {
			return nil, false, err
		}
		node.AddChild(underlying)
	}

	ok, err := p.accept(lexer.KindLeftBrace)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if tag == nil {
			return nil, false, fmt.Errorf("%w: enum without tag or enumerator list", cc.ErrInvalidDecl)
		}
		return node, declared, nil
	}

	for {
		name, err := p.next()
		if err != nil {
			return nil, false, err
		}
		if name.Kind != lexer.KindIdentifier {
			return nil, false, fmt.Errorf("%w: expected enumerator name, found %q", cc.ErrInvalidDecl, name.Text())
		}
		enumerator := ast.NewTokenNode(ast.KindEnumerator, name)
		node.AddChild(enumerator)
		sym := &ast.Symbol{
			Name:      string(name.Resolved),
			Kind:      ast.SymbolEnumConstant,
			Namespace: ast.NamespaceOrdinary,
		}
		if err := p.scope.Insert(sym); err != nil {
			return nil, false, err
		}

		if ok, err := p.accept(lexer.KindAssign); err != nil {
			return nil, false, err
		} else if ok {
			val, err := p.parseConditionalExpression()
			if err != nil {
				return nil, false, err
			}
			enumerator.AddChild(val)
		}
		if ok, err := p.accept(lexer.KindComma); err != nil {
			return nil, false, err
		} else if !ok {
			break
		}
		// Trailing comma before }.
		if kind, _ := p.peekKind(0); kind == lexer.KindRightBrace {
			break
		}
	}
	if _, err := p.expect(lexer.KindRightBrace); err != nil {
		return nil, false, err
	}
	return node, declared, nil
}
