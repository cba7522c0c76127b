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

// Package tokenfile serializes the preprocessor's output token stream and
// reads it back for the parser. The format is sequential: a 32-bit kind,
// then, for kinds whose lexeme is not recoverable from the kind alone, a
// length-prefixed run of resolved UTF-8 bytes.
package tokenfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/EngFlow/ccfront/internal/cc"
	"github.com/EngFlow/ccfront/internal/lexer"
)

// maxPayload bounds a single token's payload so a corrupt file cannot
// drive allocation.
const maxPayload = 1 << 24

// Writer emits tokens to a binary stream.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends one token. Identifiers store their resolved bytes, so a
// macro name spelled with universal character names round-trips as UTF-8.
func (w *Writer) Write(tok *lexer.Token) error {
	if err := binary.Write(w.w, binary.LittleEndian, uint32(tok.Kind)); err != nil {
		return err
	}
	if !tok.Kind.HasPayload() {
		return nil
	}
	payload := tok.Resolved
	if err := binary.Write(w.w, binary.LittleEndian, uint64(len(payload))); err != nil {
		return err
	}
	_, err := w.w.Write(payload)
	return err
}

// Flush drains buffered output to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }

// Reader deserializes a token stream. Numbers are validated against the
// C23 constant syntax as they are read.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next token, or cc.ErrEOF at the end of the stream. A
// kind outside the token enum or a malformed numeric constant fails.
func (r *Reader) Read() (*lexer.Token, error) {
	var rawKind uint32
	if err := binary.Read(r.r, binary.LittleEndian, &rawKind); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, cc.ErrEOF
		}
		return nil, err
	}
	kind := lexer.Kind(rawKind)
	if kind <= lexer.KindInvalid || kind > lexer.KindKeywordNoreturn {
		return nil, fmt.Errorf("%w: unknown token kind %d in stream", cc.ErrInvalidLex, rawKind)
	}

	tok := &lexer.Token{Kind: kind}
	if kind.HasPayload() {
		var length uint64
		if err := binary.Read(r.r, binary.LittleEndian, &length); err != nil {
			return nil, fmt.Errorf("reading token payload length: %w", err)
		}
		if length > maxPayload {
			return nil, fmt.Errorf("%w: token payload of %d bytes", cc.ErrInvalidLex, length)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r.r, payload); err != nil {
			return nil, fmt.Errorf("reading token payload: %w", err)
		}
		tok.Source = payload
		tok.Resolved = payload
	} else {
		spelling := []byte(kind.Spelling())
		tok.Source = spelling
		tok.Resolved = spelling
	}

	if kind == lexer.KindNumber {
		if _, err := ClassifyNumber(string(tok.Resolved)); err != nil {
			return nil, err
		}
	}
	return tok, nil
}
