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

// Package ast defines the abstract syntax tree and the scoped symbol
// tables the parser builds. Nodes form an ordered tree via the generic
// tree container; the typed payload distinguishes grammar productions and
// their refinements (specifier bitmask groups, declarator shapes).
package ast

import (
	"github.com/EngFlow/ccfront/internal/collections"
	"github.com/EngFlow/ccfront/internal/lexer"
)

// NodeKind tags a node with its production or refinement.
type NodeKind int

const (
	KindInvalid NodeKind = iota

	KindTranslationUnit
	KindDeclaration
	KindFunctionDefinition
	KindAttributeDeclaration
	KindStaticAssertDeclaration

	// Specifier groups, refined into bitmasks.
	KindDeclarationSpecifiers
	KindTypeSpecifiers
	KindTypeQualifiers
	KindStorageSpecifiers
	KindFunctionSpecifiers
	KindAttributes
	KindAttribute

	// Declarator shapes.
	KindDeclarator
	KindAbstractDeclarator
	KindPointer
	KindArray
	KindFunction
	KindParameter
	KindEllipsisParameter

	// Statements.
	KindBlock
	KindExpressionStatement
	KindReturnStatement
	KindIfStatement
	KindWhileStatement

	// Expressions.
	KindIdentifier
	KindInteger
	KindFloating
	KindString
	KindCharConst
	KindUnaryExpression
	KindBinaryExpression
	KindAssignExpression
	KindConditionalExpression
	KindCallExpression
	KindIndexExpression
	KindMemberExpression
	KindCastExpression
	KindInitializer

	// Tags.
	KindStructSpecifier
	KindUnionSpecifier
	KindEnumSpecifier
	KindEnumerator
	KindMember
)

// NodeData is the typed payload of one tree node. Only the fields that
// the kind calls for are meaningful.
type NodeData struct {
	Kind NodeKind
	Tok  *lexer.Token // identifier, constant, or operator token

	Storage    StorageSpec
	TypeSpec   TypeSpec
	Qualifiers TypeQualifier
	FuncSpec   FunctionSpec
}

// Node is an ordered tree of NodeData: one parent, ordered children.
type Node = collections.Tree[NodeData]

// NewNode creates a detached node of the given kind.
func NewNode(kind NodeKind) *Node {
	return collections.NewTree(NodeData{Kind: kind})
}

// NewTokenNode creates a leaf carrying a token, e.g. an identifier or a
// constant.
func NewTokenNode(kind NodeKind, tok *lexer.Token) *Node {
	return collections.NewTree(NodeData{Kind: kind, Tok: tok})
}

// StorageSpec is the storage-class-specifier bitmask.
type StorageSpec uint16

const (
	StorageAuto StorageSpec = 1 << iota
	StorageStatic
	StorageExtern
	StorageRegister
	StorageThreadLocal
	StorageTypedef
	StorageConstexpr
)

// TypeSpec is the type-specifier bitmask. Long appears twice because
// `long long` is two long bits.
type TypeSpec uint32

const (
	SpecVoid TypeSpec = 1 << iota
	SpecBool
	SpecChar
	SpecShort
	SpecInt
	SpecLong
	SpecLongLong
	SpecFloat
	SpecDouble
	SpecSigned
	SpecUnsigned
	SpecBitInt
	SpecStruct
	SpecUnion
	SpecEnum
	SpecTypedefName
	SpecAtomic
	SpecTypeof
)

// TypeQualifier is the type-qualifier bitmask.
type TypeQualifier uint8

const (
	QualConst TypeQualifier = 1 << iota
	QualRestrict
	QualVolatile
	QualAtomic
)

// FunctionSpec is the function-specifier bitmask.
type FunctionSpec uint8

const (
	FuncInline FunctionSpec = 1 << iota
	FuncNoreturn
)
