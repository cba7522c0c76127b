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

// ccfront runs the C23 front end over one or more source files: each file
// is preprocessed into a serialized token stream, which the parser then
// turns into an AST with symbol tables. The exit code classifies the
// first failure.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/cpp"
	"github.com/EngFlow/ccfront/internal/parser"
)

type includeDirs []string

func (d *includeDirs) String() string { return fmt.Sprint(*d) }
func (d *includeDirs) Set(value string) error {
	*d = append(*d, value)
	return nil
}

func main() {
	var systemDirs includeDirs
	flag.Var(&systemDirs, "I", "System include directory, searched in order (repeatable)")
	tokensDir := flag.String("tokens", "", "Directory to keep the serialized token streams in (default: temporary)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		log.Fatalf("Program requires at least 1 argument - a C source file or glob pattern")
	}

	sources := []string{}
	for _, arg := range flag.Args() {
		matches, err := doublestar.FilepathGlob(arg)
		if err != nil {
			log.Fatalf("Bad source pattern %q: %v", arg, err)
		}
		if matches == nil {
			// Not a pattern match; let the open fail with a clear error.
			matches = []string{arg}
		}
		sources = append(sources, matches...)
	}

	for _, source := range sources {
		if err := compile(source, systemDirs, *tokensDir, *verbose); err != nil {
			log.Printf("%s: %v", source, err)
			os.Exit(cc.ExitCode(err))
		}
	}
}

// compile runs one source file through preprocessing and parsing.
func compile(source string, systemDirs []string, tokensDir string, verbose bool) error {
	pp, err := cpp.New(systemDirs)
	if err != nil {
		return err
	}

	dir := tokensDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "ccfront")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}
	tokenPath := filepath.Join(dir, filepath.Base(source)+".tokens")

	f, err := os.Create(tokenPath)
	if err != nil {
		return err
	}
	err = pp.WriteTokenStream(source, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if verbose {
		log.Printf("%s: token stream written to %s", source, tokenPath)
	}

	stream, err := os.Open(tokenPath)
	if err != nil {
		return err
	}
	defer stream.Close()

	p := parser.NewFromReader(stream)
	unit, err := p.ParseTranslationUnit()
	if err != nil {
		return err
	}
	if verbose {
		log.Printf("%s: parsed %d external declarations", source, unit.NumChildren())
	}
	return nil
}
