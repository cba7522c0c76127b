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

// declSpecs accumulates one declaration-specifier run: the bitmask per
// specifier group plus the node recording source order.
type declSpecs struct {
	node *ast.Node

	storage     ast.StorageSpec
	typeSpec    ast.TypeSpec
	qualifiers  ast.TypeQualifier
	funcSpec    ast.FunctionSpec
	declaresTag bool
}

// storageClass maps the storage bitmask to the symbol-table storage
// class.
func (d *declSpecs) storageClass() ast.Storage {
	switch {
	case d.storage&ast.StorageTypedef != 0:
		return ast.StorageClassTypedef
	case d.storage&ast.StorageConstexpr != 0:
		return ast.StorageClassConstexpr
	case d.storage&ast.StorageThreadLocal != 0:
		return ast.StorageClassThreadLocal
	case d.storage&ast.StorageStatic != 0:
		return ast.StorageClassStatic
	case d.storage&ast.StorageExtern != 0:
		return ast.StorageClassExtern
	case d.storage&ast.StorageRegister != 0:
		return ast.StorageClassRegister
	case d.storage&ast.StorageAuto != 0:
		return ast.StorageClassAuto
	default:
		return ast.StorageClassNone
	}
}

var storageKeywords = map[lexer.Kind]ast.StorageSpec{
	lexer.KindKeywordAuto:        ast.StorageAuto,
	lexer.KindKeywordStatic:      ast.StorageStatic,
	lexer.KindKeywordExtern:      ast.StorageExtern,
	lexer.KindKeywordRegister:    ast.StorageRegister,
	lexer.KindKeywordThreadLocal: ast.StorageThreadLocal,
	lexer.KindKeywordTypedef:     ast.StorageTypedef,
	lexer.KindKeywordConstexpr:   ast.StorageConstexpr,
}

var qualifierKeywords = map[lexer.Kind]ast.TypeQualifier{
	lexer.KindKeywordConst:    ast.QualConst,
	lexer.KindKeywordRestrict: ast.QualRestrict,
	lexer.KindKeywordVolatile: ast.QualVolatile,
}

var simpleTypeKeywords = map[lexer.Kind]ast.TypeSpec{
	lexer.KindKeywordVoid:     ast.SpecVoid,
	lexer.KindKeywordBool:     ast.SpecBool,
	lexer.KindKeywordChar:     ast.SpecChar,
	lexer.KindKeywordShort:    ast.SpecShort,
	lexer.KindKeywordInt:      ast.SpecInt,
	lexer.KindKeywordFloat:    ast.SpecFloat,
	lexer.KindKeywordDouble:   ast.SpecDouble,
	lexer.KindKeywordSigned:   ast.SpecSigned,
	lexer.KindKeywordUnsigned: ast.SpecUnsigned,
}

// parseDeclarationSpecifiers consumes the maximal specifier run and
// validates the combination.
func (p *Parser) parseDeclarationSpecifiers() (*declSpecs, error) {
	specs := &declSpecs{node: ast.NewNode(ast.KindDeclarationSpecifiers)}
	sawAny := false
	for {
		progressed, err := p.parseOneSpecifier(specs)
		if err != nil {
			return nil, err
		}
		if !progressed {
			break
		}
		sawAny = true
	}
	if !sawAny {
		tok, _ := p.peek(0)
		found := "end of stream"
		if tok != nil {
			found = fmt.Sprintf("%q at %v", tok.Text(), tok.Pos)
		}
		return nil, fmt.Errorf("%w: expected declaration specifiers, found %s", cc.ErrInvalidDecl, found)
	}
	if err := specs.validate(); err != nil {
		return nil, err
	}
	specs.node.Value.Storage = specs.storage
	specs.node.Value.TypeSpec = specs.typeSpec
	specs.node.Value.Qualifiers = specs.qualifiers
	specs.node.Value.FuncSpec = specs.funcSpec
	return specs, nil
}

// parseOneSpecifier consumes a single specifier if one is next. The
// return value reports progress.
func (p *Parser) parseOneSpecifier(specs *declSpecs) (bool, error) {
	tok, err := p.peek(0)
	if err != nil || tok == nil {
		return false, err
	}

	if spec, ok := storageKeywords[tok.Kind]; ok {
		if specs.storage&spec != 0 {
			return false, fmt.Errorf("%w: duplicate %q", cc.ErrInvalidDecl, tok.Text())
		}
		specs.storage |= spec
		p.next()
		specs.node.AddChildValue(ast.NodeData{Kind: ast.KindStorageSpecifiers, Tok: tok, Storage: spec})
		return true, nil
	}
	if qual, ok := qualifierKeywords[tok.Kind]; ok {
		p.next()
		specs.qualifiers |= qual
		specs.node.AddChildValue(ast.NodeData{Kind: ast.KindTypeQualifiers, Tok: tok, Qualifiers: qual})
		return true, nil
	}

	switch tok.Kind {
	case lexer.KindKeywordInline:
		p.next()
		specs.funcSpec |= ast.FuncInline
		specs.node.AddChildValue(ast.NodeData{Kind: ast.KindFunctionSpecifiers, Tok: tok, FuncSpec: ast.FuncInline})
		return true, nil
	case lexer.KindKeywordNoreturn:
		p.next()
		specs.funcSpec |= ast.FuncNoreturn
		specs.node.AddChildValue(ast.NodeData{Kind: ast.KindFunctionSpecifiers, Tok: tok, FuncSpec: ast.FuncNoreturn})
		return true, nil

	case lexer.KindKeywordLong:
		p.next()
		switch {
		case specs.typeSpec&ast.SpecLongLong != 0:
			return false, fmt.Errorf("%w: too many long", cc.ErrInvalidDecl)
		case specs.typeSpec&ast.SpecLong != 0:
			specs.typeSpec |= ast.SpecLongLong
		default:
			specs.typeSpec |= ast.SpecLong
		}
		specs.node.AddChildValue(ast.NodeData{Kind: ast.KindTypeSpecifiers, Tok: tok, TypeSpec: ast.SpecLong})
		return true, nil

	case lexer.KindKeywordComplex, lexer.KindKeywordImaginary,
		lexer.KindKeywordDecimal32, lexer.KindKeywordDecimal64, lexer.KindKeywordDecimal128:
		return false, fmt.Errorf("%w: %s", cc.ErrNotSupported, tok.Text())

	case lexer.KindKeywordBitInt:
		p.next()
		if err := specs.addTypeSpec(ast.SpecBitInt, tok); err != nil {
			return false, err
		}
		if _, err := p.expect(lexer.KindLeftParen); err != nil {
			return false, err
		}
		width, err := p.parseConditionalExpression()
		if err != nil {
			return false, err
		}
		specs.node.AddChild(width)
		_, err = p.expect(lexer.KindRightParen)
		return err == nil, err

	case lexer.KindKeywordAtomic:
		// _Atomic(...) is a type specifier; bare _Atomic a qualifier.
		if next, _ := p.peekKind(1); next == lexer.KindLeftParen {
			p.next()
			p.next()
			if err := specs.addTypeSpec(ast.SpecAtomic, tok); err != nil {
				return false, err
			}
			name, err := p.parseTypeName()
			if err != nil {
				return false, err
			}
			specs.node.AddChild(name)
			_, err = p.expect(lexer.KindRightParen)
			return err == nil, err
		}
		p.next()
		specs.qualifiers |= ast.QualAtomic
		specs.node.AddChildValue(ast.NodeData{Kind: ast.KindTypeQualifiers, Tok: tok, Qualifiers: ast.QualAtomic})
		return true, nil

	case lexer.KindKeywordStruct, lexer.KindKeywordUnion:
		spec := ast.SpecStruct
		if tok.Kind == lexer.KindKeywordUnion {
			spec = ast.SpecUnion
		}
		if err := specs.addTypeSpec(spec, tok); err != nil {
			return false, err
		}
		node, declared, err := p.parseStructOrUnionSpecifier()
		if err != nil {
			return false, err
		}
		specs.node.AddChild(node)
		specs.declaresTag = specs.declaresTag || declared
		return true, nil

	case lexer.KindKeywordEnum:
		if err := specs.addTypeSpec(ast.SpecEnum, tok); err != nil {
			return false, err
		}
		node, declared, err := p.parseEnumSpecifier()
		if err != nil {
			return false, err
		}
		specs.node.AddChild(node)
		specs.declaresTag = specs.declaresTag || declared
		return true, nil

	case lexer.KindKeywordTypeof, lexer.KindKeywordTypeofUnqual:
		p.next()
		if err := specs.addTypeSpec(ast.SpecTypeof, tok); err != nil {
			return false, err
		}
		if _, err := p.expect(lexer.KindLeftParen); err != nil {
			return false, err
		}
		arg, err := p.parseTypeofArgument()
		if err != nil {
			return false, err
		}
		specs.node.AddChild(arg)
		_, err = p.expect(lexer.KindRightParen)
		return err == nil, err

	case lexer.KindKeywordAlignas:
		p.next()
		if _, err := p.expect(lexer.KindLeftParen); err != nil {
			return false, err
		}
		arg, err := p.parseTypeofArgument()
		if err != nil {
			return false, err
		}
		specs.node.AddChild(arg)
		_, err = p.expect(lexer.KindRightParen)
		return err == nil, err

	case lexer.KindKeywordGeneric:
		return false, fmt.Errorf("%w: _Generic", cc.ErrNotSupported)

	case lexer.KindIdentifier:
		// An identifier is a type specifier iff it resolves to a typedef
		// name and no type specifier was seen yet.
		if specs.typeSpec != 0 || !p.scope.IsTypedefName(string(tok.Resolved)) {
			return false, nil
		}
		p.next()
		specs.typeSpec |= ast.SpecTypedefName
		specs.node.AddChildValue(ast.NodeData{Kind: ast.KindTypeSpecifiers, Tok: tok, TypeSpec: ast.SpecTypedefName})
		return true, nil
	}

	if spec, ok := simpleTypeKeywords[tok.Kind]; ok {
		p.next()
		if err := specs.addTypeSpec(spec, tok); err != nil {
			return false, err
		}
		return true, nil
	}

	// Attributes may interleave with specifiers.
	if k0, _ := p.peekKind(0); k0 == lexer.KindLeftBracket {
		if k1, _ := p.peekKind(1); k1 == lexer.KindLeftBracket {
			attrs, err := p.parseAttributeSequence()
			if err != nil {
				return false, err
			}
			specs.node.AddChild(attrs)
			return true, nil
		}
	}
	return false, nil
}

func (d *declSpecs) addTypeSpec(spec ast.TypeSpec, tok *lexer.Token) error {
	if d.typeSpec&spec != 0 && spec != ast.SpecLong {
		return fmt.Errorf("%w: duplicate %q", cc.ErrInvalidDecl, tok.Text())
	}
	d.typeSpec |= spec
	d.node.AddChildValue(ast.NodeData{Kind: ast.KindTypeSpecifiers, Tok: tok, TypeSpec: spec})
	return nil
}

// exclusiveSpecs are the type specifiers that stand alone: combinable
// with qualifiers and storage, but not with any other type specifier.
var exclusiveSpecs = []struct {
	spec ast.TypeSpec
	name string
}{
	{ast.SpecVoid, "void"},
	{ast.SpecBool, "bool"},
	{ast.SpecFloat, "float"},
	{ast.SpecStruct, "struct"},
	{ast.SpecUnion, "union"},
	{ast.SpecEnum, "enum"},
	{ast.SpecTypedefName, "typedef name"},
	{ast.SpecAtomic, "_Atomic(...)"},
	{ast.SpecTypeof, "typeof"},
}

// validate enforces the C23 combinability rules on the accumulated
// bitmasks.
func (d *declSpecs) validate() error {
	ts := d.typeSpec

	// Storage classes: typedef combines with nothing else; thread_local
	// only with static or extern; at most one of the rest.
	if d.storage&ast.StorageTypedef != 0 && d.storage != ast.StorageTypedef {
		return fmt.Errorf("%w: typedef combined with another storage class", cc.ErrInvalidDecl)
	}
	exclusive := d.storage &^ (ast.StorageThreadLocal | ast.StorageConstexpr)
	if n := countBits(uint64(exclusive)); n > 1 {
		return fmt.Errorf("%w: conflicting storage classes", cc.ErrInvalidDecl)
	}
	if d.storage&ast.StorageThreadLocal != 0 && d.storage&(ast.StorageAuto|ast.StorageRegister) != 0 {
		return fmt.Errorf("%w: thread_local with auto or register", cc.ErrInvalidDecl)
	}
	if d.storage&ast.StorageConstexpr != 0 &&
		d.storage&(ast.StorageExtern|ast.StorageThreadLocal|ast.StorageTypedef) != 0 {
		return fmt.Errorf("%w: constexpr with extern, thread_local or typedef", cc.ErrInvalidDecl)
	}

	// Standalone type specifiers tolerate no company.
	for _, ex := range exclusiveSpecs {
		if ts&ex.spec != 0 && ts != ex.spec {
			return fmt.Errorf("%w: %s combined with other type specifiers", cc.ErrInvalidDecl, ex.name)
		}
	}

	// signed/unsigned pair with char, short, int, long and _BitInt only.
	if ts&ast.SpecSigned != 0 && ts&ast.SpecUnsigned != 0 {
		return fmt.Errorf("%w: both signed and unsigned", cc.ErrInvalidDecl)
	}
	if ts&(ast.SpecSigned|ast.SpecUnsigned) != 0 {
		rest := ts &^ (ast.SpecSigned | ast.SpecUnsigned)
		if rest&^(ast.SpecChar|ast.SpecShort|ast.SpecInt|ast.SpecLong|ast.SpecLongLong|ast.SpecBitInt) != 0 {
			return fmt.Errorf("%w: signed/unsigned with a non-integer type", cc.ErrInvalidDecl)
		}
	}

	// short pairs with int only; char with nothing wider.
	if ts&ast.SpecShort != 0 && ts&^(ast.SpecShort|ast.SpecInt|ast.SpecSigned|ast.SpecUnsigned) != 0 {
		return fmt.Errorf("%w: short combined with a conflicting specifier", cc.ErrInvalidDecl)
	}
	if ts&ast.SpecChar != 0 && ts&^(ast.SpecChar|ast.SpecSigned|ast.SpecUnsigned) != 0 {
		return fmt.Errorf("%w: char combined with a conflicting specifier", cc.ErrInvalidDecl)
	}

	// long pairs with int, long and double.
	if ts&ast.SpecLong != 0 {
		allowed := ast.SpecLong | ast.SpecLongLong | ast.SpecInt | ast.SpecSigned | ast.SpecUnsigned | ast.SpecDouble
		if ts&^allowed != 0 {
			return fmt.Errorf("%w: long combined with a conflicting specifier", cc.ErrInvalidDecl)
		}
		if ts&ast.SpecDouble != 0 && ts&ast.SpecLongLong != 0 {
			return fmt.Errorf("%w: long long double", cc.ErrInvalidDecl)
		}
		if ts&ast.SpecDouble != 0 && ts&(ast.SpecSigned|ast.SpecUnsigned|ast.SpecInt) != 0 {
			return fmt.Errorf("%w: long double with integer specifiers", cc.ErrInvalidDecl)
		}
	}
	if ts&ast.SpecDouble != 0 && ts&^(ast.SpecDouble|ast.SpecLong) != 0 {
		return fmt.Errorf("%w: double combined with a conflicting specifier", cc.ErrInvalidDecl)
	}
	if ts&ast.SpecInt != 0 {
		allowed := ast.SpecInt | ast.SpecShort | ast.SpecLong | ast.SpecLongLong | ast.SpecSigned | ast.SpecUnsigned
		if ts&^allowed != 0 {
			return fmt.Errorf("%w: int combined with a conflicting specifier", cc.ErrInvalidDecl)
		}
	}
	if ts&ast.SpecBitInt != 0 && ts&^(ast.SpecBitInt|ast.SpecSigned|ast.SpecUnsigned) != 0 {
		return fmt.Errorf("%w: _BitInt combined with a conflicting specifier", cc.ErrInvalidDecl)
	}
	return nil
}

func countBits(v uint64) int {
	n := 0
	for ; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// startsTypeName reports whether the token can begin a type name, used to
// separate declarations from statements and casts from expressions.
func (p *Parser) startsTypeName(tok *lexer.Token) bool {
	if tok == nil {
		return false
	}
	if _, ok := simpleTypeKeywords[tok.Kind]; ok {
		return true
	}
	if _, ok := qualifierKeywords[tok.Kind]; ok {
		return true
	}
	switch tok.Kind {
	case lexer.KindKeywordLong, lexer.KindKeywordStruct, lexer.KindKeywordUnion,
		lexer.KindKeywordEnum, lexer.KindKeywordAtomic, lexer.KindKeywordBitInt,
		lexer.KindKeywordTypeof, lexer.KindKeywordTypeofUnqual:
		return true
	case lexer.KindIdentifier:
		return p.scope.IsTypedefName(string(tok.Resolved))
	}
	return false
}

// startsDeclaration extends startsTypeName with storage classes and the
// other declaration-only leaders.
func (p *Parser) startsDeclaration(tok *lexer.Token) bool {
	if tok == nil {
		return false
	}
	if _, ok := storageKeywords[tok.Kind]; ok {
		return true
	}
	switch tok.Kind {
	case lexer.KindKeywordInline, lexer.KindKeywordNoreturn,
		lexer.KindKeywordAlignas, lexer.KindKeywordStaticAssert:
		return true
	}
	return p.startsTypeName(tok)
}

// parseTypeName parses specifier-qualifier-list plus an optional abstract
// declarator, as used by _Atomic(...), casts and sizeof.
func (p *Parser) parseTypeName() (*ast.Node, error) {
	specs, err := p.parseDeclarationSpecifiers()
	if err != nil {
		return nil, err
	}
	if specs.storage != 0 {
		return nil, fmt.Errorf("%w: storage class in type name", cc.ErrInvalidDecl)
	}
	name := ast.NewNode(ast.KindDeclaration)
	name.AddChild(specs.node)

	if kind, _ := p.peekKind(0); kind != lexer.KindRightParen && kind != lexer.KindComma {
		declarator, err := p.parseDeclarator(true)
		if err != nil {
			return nil, err
		}
		name.AddChild(declarator)
	}
	return name, nil
}

// parseTypeofArgument accepts either a type name or an expression.
func (p *Parser) parseTypeofArgument() (*ast.Node, error) {
	tok, err := p.peek(0)
	if err != nil {
		return nil, err
	}
	if p.startsTypeName(tok) {
		return p.parseTypeName()
	}
	return p.parseConditionalExpression()
}
