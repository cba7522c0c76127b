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

// lrgen compiles a grammar text file into serialized canonical LR(1)
// tables. With -check, a whitespace-separated sentence of terminal names
// is first validated against the grammar with the Earley recognizer.
package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/grammar"
	"github.com/EngFlow/ccfront/internal/lr"
)

func main() {
	output := flag.String("o", "grammar.lr1", "Output file path for the serialized tables")
	check := flag.String("check", "", "Sentence of terminal names to validate with the Earley recognizer before building")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		log.Fatalf("Program requires exactly 1 argument - a grammar text file")
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Printf("%v", err)
		os.Exit(cc.ExitCode(err))
	}
	g, err := grammar.Load(f)
	f.Close()
	if err != nil {
		log.Printf("%s: %v", flag.Arg(0), err)
		os.Exit(cc.ExitCode(err))
	}
	if *verbose {
		log.Printf("%s: %d grammar elements", flag.Arg(0), len(g.Elements))
	}

	if *check != "" {
		ok, err := g.Recognize(strings.Fields(*check))
		if err != nil {
			log.Printf("check: %v", err)
			os.Exit(cc.ExitCode(err))
		}
		if !ok {
			log.Printf("check: sentence %q is not derivable", *check)
			os.Exit(cc.ExitCode(cc.ErrInvalidGrammar))
		}
		log.Printf("check: sentence accepted")
	}

	a, err := lr.Build(g)
	if err != nil {
		log.Printf("%s: %v", flag.Arg(0), err)
		os.Exit(cc.ExitCode(err))
	}
	if *verbose {
		log.Printf("%s: %d LR(1) item sets", flag.Arg(0), len(a.Sets))
	}

	out, err := os.Create(*output)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(cc.ExitCode(err))
	}
	err = lr.Write(out, a)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		log.Printf("%s: %v", *output, err)
		os.Exit(cc.ExitCode(err))
	}
}
