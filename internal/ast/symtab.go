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

package ast

import (
	"fmt"

	"github.com/EngFlow/ccfront/internal/cc"
)

// Namespace separates the disjoint identifier spaces of C: a label, a
// struct tag and an ordinary identifier of the same spelling coexist.
type Namespace int

const (
	NamespaceLabel Namespace = iota
	NamespaceStructTag
	NamespaceUnionTag
	NamespaceEnumTag
	NamespaceMember
	NamespaceOrdinary
	NamespaceAttrStandard
	NamespaceAttrPrefixed

	numNamespaces
)

// Linkage of a declared symbol.
type Linkage int

const (
	LinkageNone Linkage = iota
	LinkageExternal
	LinkageInternal
)

// Storage duration and class of a declared symbol.
type Storage int

const (
	StorageClassNone Storage = iota
	StorageClassAuto
	StorageClassStatic
	StorageClassExtern
	StorageClassRegister
	StorageClassThreadLocal
	StorageClassTypedef
	StorageClassConstexpr
)

// SymbolKind separates objects and functions from type entities.
type SymbolKind int

const (
	SymbolObject SymbolKind = iota
	SymbolFunction
	SymbolType    // a built-in or derived type
	SymbolTypeDef // a typedef entry, always fully resolved
	SymbolEnumConstant
)

// Symbol is one symbol-table entry. Type points at the symbol describing
// the entity's type; for built-in types it is nil and the layout fields
// apply directly.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	Namespace Namespace
	Linkage   Linkage
	Storage   Storage
	Type      *Symbol

	// Layout of built-in types, in bits.
	BitWidth  int
	Precision int
	Padding   int
	Alignment int

	// Decl is the declarator subtree the symbol was committed from.
	Decl *Node
}

// ScopeKind tags a scope with its role in the scope tree.
type ScopeKind int

const (
	ScopeFile ScopeKind = iota
	ScopeBlock
	ScopePrototype
	ScopeMember
)

// Scope is one node of the scope tree: FILE at the root, BLOCK, PROTOTYPE
// and MEMBER scopes beneath. Each scope keeps one map per namespace.
type Scope struct {
	Kind    ScopeKind
	parent  *Scope
	symbols [numNamespaces]map[string]*Symbol
}

// NewFileScope creates the root scope with the built-in type symbols
// installed in the ordinary namespace.
func NewFileScope() *Scope {
	s := newScope(ScopeFile, nil)
	for _, b := range builtinTypes {
		sym := b
		s.symbols[NamespaceOrdinary][sym.Name] = &sym
	}
	return s
}

func newScope(kind ScopeKind, parent *Scope) *Scope {
	s := &Scope{Kind: kind, parent: parent}
	for i := range s.symbols {
		s.symbols[i] = make(map[string]*Symbol)
	}
	return s
}

// builtinTypes are what user typedefs ultimately resolve against. The
// layouts are LP64.
var builtinTypes = []Symbol{
	{Name: "void", Kind: SymbolType, Namespace: NamespaceOrdinary},
	{Name: "_Bool", Kind: SymbolType, Namespace: NamespaceOrdinary, BitWidth: 8, Precision: 1, Padding: 7, Alignment: 8},
	{Name: "char", Kind: SymbolType, Namespace: NamespaceOrdinary, BitWidth: 8, Precision: 8, Alignment: 8},
	{Name: "short", Kind: SymbolType, Namespace: NamespaceOrdinary, BitWidth: 16, Precision: 16, Alignment: 16},
	{Name: "int", Kind: SymbolType, Namespace: NamespaceOrdinary, BitWidth: 32, Precision: 32, Alignment: 32},
	{Name: "long", Kind: SymbolType, Namespace: NamespaceOrdinary, BitWidth: 64, Precision: 64, Alignment: 64},
	{Name: "long long", Kind: SymbolType, Namespace: NamespaceOrdinary, BitWidth: 64, Precision: 64, Alignment: 64},
}

// NewChild opens a nested scope.
func (s *Scope) NewChild(kind ScopeKind) *Scope {
	return newScope(kind, s)
}

// Parent returns the enclosing scope, nil at file scope.
func (s *Scope) Parent() *Scope { return s.parent }

// Insert declares a symbol in this scope. Redeclaration in the same scope
// and namespace fails with cc.ErrInvalidDecl.
func (s *Scope) Insert(sym *Symbol) error {
	m := s.symbols[sym.Namespace]
	if _, exists := m[sym.Name]; exists {
		return fmt.Errorf("%w: redeclaration of %q", cc.ErrInvalidDecl, sym.Name)
	}
	m[sym.Name] = sym
	return nil
}

// Lookup searches this scope only.
func (s *Scope) Lookup(ns Namespace, name string) *Symbol {
	return s.symbols[ns][name]
}

// Resolve searches this scope and then the enclosing chain.
func (s *Scope) Resolve(ns Namespace, name string) *Symbol {
	for scope := s; scope != nil; scope = scope.parent {
		if sym := scope.symbols[ns][name]; sym != nil {
			return sym
		}
	}
	return nil
}

// IsTypedefName reports whether name resolves to a typedef or built-in
// type in the ordinary namespace; this is the lookup that decides whether
// an identifier is a type specifier.
func (s *Scope) IsTypedefName(name string) bool {
	sym := s.Resolve(NamespaceOrdinary, name)
	return sym != nil && (sym.Kind == SymbolTypeDef || sym.Kind == SymbolType)
}

// Transfer moves every symbol of the source scope into this one. Entering
// a function body turns the prototype scope's parameters into block-scope
// entries this way.
func (s *Scope) Transfer(from *Scope) error {
	for ns := range from.symbols {
		for _, sym := range from.symbols[ns] {
			if err := s.Insert(sym); err != nil {
				return err
			}
		}
	}
	return nil
}
