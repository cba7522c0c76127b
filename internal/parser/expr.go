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
	"github.com/EngFlow/ccfront/internal/tokenfile"
)

// binaryPrecedence orders the binary operators; higher binds tighter.
var binaryPrecedence = map[lexer.Kind]int{
	lexer.KindLogicalOr:    1,
	lexer.KindLogicalAnd:   2,
	lexer.KindPipe:         3,
	lexer.KindCaret:        4,
	lexer.KindAmpersand:    5,
	lexer.KindEqual:        6,
	lexer.KindNotEqual:     6,
	lexer.KindLess:         7,
	lexer.KindLessEqual:    7,
	lexer.KindGreater:      7,
	lexer.KindGreaterEqual: 7,
	lexer.KindShiftLeft:    8,
	lexer.KindShiftRight:   8,
	lexer.KindPlus:         9,
	lexer.KindMinus:        9,
	lexer.KindAsterisk:     10,
	lexer.KindSlash:        10,
	lexer.KindPercent:      10,
}

var assignOps = map[lexer.Kind]bool{
	lexer.KindAssign:           true,
	lexer.KindPlusAssign:       true,
	lexer.KindMinusAssign:      true,
	lexer.KindMulAssign:        true,
	lexer.KindDivAssign:        true,
	lexer.KindModAssign:        true,
	lexer.KindShiftLeftAssign:  true,
	lexer.KindShiftRightAssign: true,
	lexer.KindAndAssign:        true,
	lexer.KindXorAssign:        true,
	lexer.KindOrAssign:         true,
}

// parseExpression parses a full expression including the comma operator.
func (p *Parser) parseExpression() (*ast.Node, error) {
	expr, err := p.parseAssignmentExpression()
	if err != nil {
		return nil, err
	}
	for {
		ok, err := p.accept(lexer.KindComma)
		if err != nil {
			return nil, err
		}
		if !ok {
			return expr, nil
		}
		rhs, err := p.parseAssignmentExpression()
		if err != nil {
			return nil, err
		}
		seq := ast.NewNode(ast.KindBinaryExpression)
		seq.AddChild(expr)
		seq.AddChild(rhs)
		expr = seq
	}
}

// parseAssignmentExpression parses conditional-expression or
// unary-expression assignment-op assignment-expression; assignment is
// right-associative.
func (p *Parser) parseAssignmentExpression() (*ast.Node, error) {
	lhs, err := p.parseConditionalExpression()
	if err != nil {
		return nil, err
	}
	tok, err := p.peek(0)
	if err != nil || tok == nil || !assignOps[tok.Kind] {
		return lhs, err
	}
	p.next()
	rhs, err := p.parseAssignmentExpression()
	if err != nil {
		return nil, err
	}
	assign := ast.NewTokenNode(ast.KindAssignExpression, tok)
	assign.AddChild(lhs)
	assign.AddChild(rhs)
	return assign, nil
}

// parseConditionalExpression parses the ternary level; it doubles as the
// constant-expression entry point for array sizes and enumerators.
func (p *Parser) parseConditionalExpression() (*ast.Node, error) {
	cond, err := p.parseBinaryExpression(0)
	if err != nil {
		return nil, err
	}
	ok, err := p.accept(lexer.KindQuestion)
	if err != nil || !ok {
		return cond, err
	}
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KindColon); err != nil {
		return nil, err
	}
	alt, err := p.parseConditionalExpression()
	if err != nil {
		return nil, err
	}
	ternary := ast.NewNode(ast.KindConditionalExpression)
	ternary.AddChild(cond)
	ternary.AddChild(then)
	ternary.AddChild(alt)
	return ternary, nil
}

// parseBinaryExpression is precedence climbing over the binary operator
// table.
func (p *Parser) parseBinaryExpression(minPrecedence int) (*ast.Node, error) {
	lhs, err := p.parseCastExpression()
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return lhs, nil
		}
		prec, isBinary := binaryPrecedence[tok.Kind]
		if !isBinary || prec < minPrecedence {
			return lhs, nil
		}
		p.next()
		rhs, err := p.parseBinaryExpression(prec + 1)
		if err != nil {
			return nil, err
		}
		node := ast.NewTokenNode(ast.KindBinaryExpression, tok)
		node.AddChild(lhs)
		node.AddChild(rhs)
		lhs = node
	}
}

// parseCastExpression handles ( type-name ) cast-expression, falling
// through to unary expressions. The paren is a cast only when a type name
// follows it.
func (p *Parser) parseCastExpression() (*ast.Node, error) {
	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if tok != nil && tok.Kind == lexer.KindLeftParen {
		if next, _ := p.peek(1); p.startsTypeName(next) {
			p.next()
			name, err := p.parseTypeName()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.KindRightParen); err != nil {
				return nil, err
			}
			operand, err := p.parseCastExpression()
			if err != nil {
				return nil, err
			}
			cast := ast.NewNode(ast.KindCastExpression)
			cast.AddChild(name)
			cast.AddChild(operand)
			return cast, nil
		}
	}
	return p.parseUnaryExpression()
}

// parseUnaryExpression handles prefix operators and sizeof/alignof.
func (p *Parser) parseUnaryExpression() (*ast.Node, error) {
	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: expected expression, found end of stream", cc.ErrInvalidDecl)
	}

	switch tok.Kind {
	case lexer.KindPlus, lexer.KindMinus, lexer.KindExclamation, lexer.KindTilde,
		lexer.KindAsterisk, lexer.KindAmpersand, lexer.KindPlusPlus, lexer.KindMinusMinus:
		p.next()
		operand, err := p.parseCastExpression()
		if err != nil {
			return nil, err
		}
		node := ast.NewTokenNode(ast.KindUnaryExpression, tok)
		node.AddChild(operand)
		return node, nil

	case lexer.KindKeywordSizeof, lexer.KindKeywordAlignof:
		p.next()
		node := ast.NewTokenNode(ast.KindUnaryExpression, tok)
		if kind, _ := p.peekKind(0); kind == lexer.KindLeftParen {
			if next, _ := p.peek(1); p.startsTypeName(next) {
				p.next()
				name, err := p.parseTypeName()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(lexer.KindRightParen); err != nil {
					return nil, err
				}
				node.AddChild(name)
				return node, nil
			}
		}
		operand, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		node.AddChild(operand)
		return node, nil

	case lexer.KindKeywordGeneric:
		return nil, fmt.Errorf("%w: _Generic", cc.ErrNotSupported)
	}
	return p.parsePostfixExpression()
}

// parsePostfixExpression parses a primary expression and its call,
// index, member and increment suffixes.
func (p *Parser) parsePostfixExpression() (*ast.Node, error) {
	expr, err := p.parsePrimaryExpression()
	if err != nil {
		return nil, err
	}
	for {
		tok, err := p.peek(0)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return expr, nil
		}
		switch tok.Kind {
		case lexer.KindLeftParen:
			p.next()
			call := ast.NewNode(ast.KindCallExpression)
			call.AddChild(expr)
			for {
				if ok, err := p.accept(lexer.KindRightParen); err != nil {
					return nil, err
				} else if ok {
					break
				}
				arg, err := p.parseAssignmentExpression()
				if err != nil {
					return nil, err
				}
				call.AddChild(arg)
				if ok, err := p.accept(lexer.KindComma); err != nil {
					return nil, err
				} else if !ok {
					if _, err := p.expect(lexer.KindRightParen); err != nil {
						return nil, err
					}
					break
				}
			}
			expr = call

		case lexer.KindLeftBracket:
			p.next()
			index := ast.NewNode(ast.KindIndexExpression)
			index.AddChild(expr)
			sub, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			index.AddChild(sub)
			if _, err := p.expect(lexer.KindRightBracket); err != nil {
				return nil, err
			}
			expr = index

		case lexer.KindDot, lexer.KindArrow:
			p.next()
			member, err := p.next()
			if err != nil {
				return nil, err
			}
			if !member.IsIdentifier() {
				return nil, fmt.Errorf("%w: expected member name after %q", cc.ErrInvalidDecl, tok.Text())
			}
			node := ast.NewTokenNode(ast.KindMemberExpression, tok)
			node.AddChild(expr)
			node.AddChild(ast.NewTokenNode(ast.KindIdentifier, member))
			expr = node

		case lexer.KindPlusPlus, lexer.KindMinusMinus:
			p.next()
			node := ast.NewTokenNode(ast.KindUnaryExpression, tok)
			node.AddChild(expr)
			expr = node

		default:
			return expr, nil
		}
	}
}

// parsePrimaryExpression parses identifiers, constants, string literals
// and parenthesized expressions. Numbers are subtyped into integer and
// floating constants here.
func (p *Parser) parsePrimaryExpression() (*ast.Node, error) {
	tok, err := p.next()
	if err != nil {
		return nil, err
	}
	switch {
	case tok.Kind == lexer.KindIdentifier,
		tok.Kind == lexer.KindKeywordTrue,
		tok.Kind == lexer.KindKeywordFalse,
		tok.Kind == lexer.KindKeywordNullptr:
		return ast.NewTokenNode(ast.KindIdentifier, tok), nil

	case tok.Kind == lexer.KindNumber:
		class, err := tokenfile.ClassifyNumber(string(tok.Resolved))
		if err != nil {
			return nil, err
		}
		kind := ast.KindInteger
		if class == tokenfile.FloatingConstant {
			kind = ast.KindFloating
		}
		return ast.NewTokenNode(kind, tok), nil

	case tok.Kind.IsCharConst():
		return ast.NewTokenNode(ast.KindCharConst, tok), nil

	case tok.Kind.IsStringLiteral():
		node := ast.NewTokenNode(ast.KindString, tok)
		// Adjacent string literals concatenate in translation phase 6;
		// the parser keeps them as siblings under one node.
		for {
			next, err := p.peek(0)
			if err != nil {
				return nil, err
			}
			if next == nil || !next.Kind.IsStringLiteral() {
				return node, nil
			}
			p.next()
			node.AddChild(ast.NewTokenNode(ast.KindString, next))
		}

	case tok.Kind == lexer.KindLeftParen:
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.KindRightParen); err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, fmt.Errorf("%w: unexpected %q in expression at %v", cc.ErrInvalidDecl, tok.Text(), tok.Pos)
}
