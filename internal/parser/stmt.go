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

// parseCompoundStatement parses { block-items }. When newScope is true a
// fresh block scope wraps the body; the function-definition caller passes
// false because it already built the scope from the prototype.
func (p *Parser) parseCompoundStatement(newScope bool) (*ast.Node, error) {
	if _, err := p.expect(lexer.KindLeftBrace); err != nil {
		return nil, err
	}
	if newScope {
		p.scope = p.scope.NewChild(ast.ScopeBlock)
		defer func() { p.scope = p.scope.Parent() }()
	}

	block := ast.NewNode(ast.KindBlock)
	for {
		if ok, err := p.accept(lexer.KindRightBrace); err != nil {
			return nil, err
		} else if ok {
			return block, nil
		}
		item, err := p.parseBlockItem()
		if err != nil {
			return nil, err
		}
		block.AddChild(item)
	}
}

// parseBlockItem decides between a declaration and a statement.
func (p *Parser) parseBlockItem() (*ast.Node, error) {
	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if p.startsDeclaration(tok) {
		// An identifier that is also a typedef name still starts a
		// statement when followed by a label colon; any other follower
		// starts a declaration.
		if tok.Kind != lexer.KindIdentifier {
			return p.parseLocalDeclaration()
		}
		if next, _ := p.peekKind(1); next != lexer.KindColon {
			return p.parseLocalDeclaration()
		}
	}
	return p.parseStatement()
}

// parseLocalDeclaration is the block-scope declaration path: no function
// definitions here.
func (p *Parser) parseLocalDeclaration() (*ast.Node, error) {
	if kind, _ := p.peekKind(0); kind == lexer.KindKeywordStaticAssert {
		return p.parseStaticAssert()
	}
	attrs, err := p.parseAttributeSequence()
	if err != nil {
		return nil, err
	}
	specs, err := p.parseDeclarationSpecifiers()
	if err != nil {
		return nil, err
	}
	if ok, err := p.accept(lexer.KindSemicolon); err != nil {
		return nil, err
	} else if ok {
		if !specs.declaresTag {
			return nil, fmt.Errorf("%w: declaration declares nothing", cc.ErrInvalidDecl)
		}
		decl := ast.NewNode(ast.KindDeclaration)
		decl.AddChild(specs.node)
		return decl, nil
	}
	declarator, err := p.parseDeclarator(false)
	if err != nil {
		return nil, err
	}
	return p.finishDeclaration(attrs, specs, declarator)
}

// parseStatement handles the statement kinds the front end models:
// compound, if/else, while, return, labeled, expression and null
// statements. switch, for, do, goto, break and continue are not
// recognized and fall through to the expression path.
func (p *Parser) parseStatement() (*ast.Node, error) {
	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: expected statement, found end of stream", cc.ErrInvalidDecl)
	}

	switch tok.Kind {
	case lexer.KindLeftBrace:
		return p.parseCompoundStatement(true)

	case lexer.KindSemicolon:
		p.next()
		return ast.NewNode(ast.KindExpressionStatement), nil

	case lexer.KindKeywordReturn:
		p.next()
		stmt := ast.NewNode(ast.KindReturnStatement)
		if kind, _ := p.peekKind(0); kind != lexer.KindSemicolon {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			stmt.AddChild(expr)
		}
		if _, err := p.expect(lexer.KindSemicolon); err != nil {
			return nil, err
		}
		return stmt, nil

	case lexer.KindKeywordIf:
		p.next()
		if _, err := p.expect(lexer.KindLeftParen); err != nil {
			return nil, err
		}
		stmt := ast.NewNode(ast.KindIfStatement)
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.AddChild(cond)
		if _, err := p.expect(lexer.KindRightParen); err != nil {
			return nil, err
		}
		then, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmt.AddChild(then)
		if ok, err := p.accept(lexer.KindKeywordElse); err != nil {
			return nil, err
		} else if ok {
			alt, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			stmt.AddChild(alt)
		}
		return stmt, nil

	case lexer.KindKeywordWhile:
		p.next()
		if _, err := p.expect(lexer.KindLeftParen); err != nil {
			return nil, err
		}
		stmt := ast.NewNode(ast.KindWhileStatement)
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.AddChild(cond)
		if _, err := p.expect(lexer.KindRightParen); err != nil {
			return nil, err
		}
		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmt.AddChild(body)
		return stmt, nil

	case lexer.KindIdentifier:
		// label: statement
		if next, _ := p.peekKind(1); next == lexer.KindColon {
			name, _ := p.next()
			p.next()
			sym := &ast.Symbol{
				Name:      string(name.Resolved),
				Kind:      ast.SymbolObject,
				Namespace: ast.NamespaceLabel,
			}
			if err := p.scope.Insert(sym); err != nil {
				return nil, err
			}
			return p.parseStatement()
		}
	}

	stmt := ast.NewNode(ast.KindExpressionStatement)
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	stmt.AddChild(expr)
	if _, err := p.expect(lexer.KindSemicolon); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseInitializer parses an expression or a braced initializer list.
// Designators are consumed and not kept in the tree.
func (p *Parser) parseInitializer() (*ast.Node, error) {
	ok, err := p.accept(lexer.KindLeftBrace)
	if err != nil {
		return nil, err
	}
	if !ok {
		return p.parseAssignmentExpression()
	}
	init := ast.NewNode(ast.KindInitializer)
	for {
		if done, err := p.accept(lexer.KindRightBrace); err != nil {
			return nil, err
		} else if done {
			return init, nil
		}
		// Skip designators; the initializer expression follows.
		for {
			if kind, _ := p.peekKind(0); kind == lexer.KindDot {
				p.next()
				if _, err := p.next(); err != nil {
					return nil, err
				}
				continue
			}
			if kind, _ := p.peekKind(0); kind == lexer.KindLeftBracket {
				p.next()
				if _, err := p.parseConditionalExpression(); err != nil {
					return nil, err
				}
				if _, err := p.expect(lexer.KindRightBracket); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if ok, err := p.accept(lexer.KindAssign); err != nil {
			return nil, err
		} else if !ok {
			// No designation.
		}
		item, err := p.parseInitializer()
		if err != nil {
			return nil, err
		}
		init.AddChild(item)
		if ok, err := p.accept(lexer.KindComma); err != nil {
			return nil, err
		} else if !ok {
			if _, err := p.expect(lexer.KindRightBrace); err != nil {
				return nil, err
			}
			return init, nil
		}
	}
}
