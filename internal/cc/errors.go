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

// Package cc holds the small amount of state shared by every stage of the
// front end: the closed set of error kinds and the exit codes derived from
// them.
package cc

import "errors"

// The error kinds surfaced by the front end. Callers classify failures with
// errors.Is against these sentinels; stages wrap them with fmt.Errorf and %w
// to attach positions and identifiers. The first non-EOF error aborts the
// current translation unit, there is no recovery.
var (
	// ErrEOF terminates token-consuming loops. It is advisory, not a fault.
	ErrEOF = errors.New("end of input")

	ErrInvalidLex          = errors.New("invalid lexeme")
	ErrInvalidDirective    = errors.New("invalid preprocessor directive")
	ErrMacroRedefinition   = errors.New("macro redefinition")
	ErrConditionalMismatch = errors.New("unmatched conditional-inclusion directive")
	ErrInvalidNumber       = errors.New("invalid numeric constant")
	ErrInvalidDecl         = errors.New("invalid declaration")
	ErrInvalidGrammar      = errors.New("grammar is not LR(1)")
	ErrNotSupported        = errors.New("not supported")
)

// ExitCode maps an error to the process exit code reported by the driver.
// nil maps to zero; every kind has a stable positive code so scripted
// callers can dispatch on the failure class.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidLex):
		return 2
	case errors.Is(err, ErrInvalidDirective):
		return 3
	case errors.Is(err, ErrMacroRedefinition):
		return 4
	case errors.Is(err, ErrConditionalMismatch):
		return 5
	case errors.Is(err, ErrInvalidNumber):
		return 6
	case errors.Is(err, ErrInvalidDecl):
		return 7
	case errors.Is(err, ErrInvalidGrammar):
		return 8
	case errors.Is(err, ErrNotSupported):
		return 9
	default:
		return 1 // I/O and everything else
	}
}
