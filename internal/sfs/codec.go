package sfs

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"anchorkeeper/internal/logging"
)

var (
	// ErrUnbalanced is returned for a '}' without an open node or an unclosed node at EOF.
	ErrUnbalanced = errors.New("unbalanced braces")
	// ErrDanglingName is returned for a node name not followed by '{'.
	ErrDanglingName = errors.New("node name without body")
)

// SyntaxError reports a decode failure at a specific line.
type SyntaxError struct {
	Line int
	Err  error
	Text string
}

func (e *SyntaxError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("sfs: line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("sfs: line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Document is a decoded save file. Root is an unnamed node holding the
// top-level nodes (normally a single GAME node).
type Document struct {
	Root *Node

	// CRLF is set when the source used Windows line endings; Encode reproduces it.
	CRLF bool
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Root: NewNode("")}
}

// Decode parses ConfigNode text.
func Decode(r io.Reader) (*Document, error) {
	doc := NewDocument()
	stack := []*Node{doc.Root}
	pending := ""
	pendingLine := 0

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		if strings.HasSuffix(raw, "\r") {
			doc.CRLF = true
			raw = strings.TrimSuffix(raw, "\r")
		}
		if lineNo == 1 {
			raw = strings.TrimPrefix(raw, "\ufeff")
		}

		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		top := stack[len(stack)-1]

		switch {
		case line == "{" || (strings.HasSuffix(line, "{") && !strings.Contains(line, "=")):
			name := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			if name == "" {
				if pending == "" {
					return nil, &SyntaxError{Line: lineNo, Err: ErrDanglingName, Text: line}
				}
				name = pending
			} else if pending != "" {
				return nil, &SyntaxError{Line: pendingLine, Err: ErrDanglingName, Text: pending}
			}
			pending = ""
			child := top.AddChild(NewNode(name))
			stack = append(stack, child)

		case line == "}":
			if pending != "" {
				return nil, &SyntaxError{Line: pendingLine, Err: ErrDanglingName, Text: pending}
			}
			if len(stack) == 1 {
				return nil, &SyntaxError{Line: lineNo, Err: ErrUnbalanced, Text: line}
			}
			stack = stack[:len(stack)-1]

		case strings.Contains(line, "="):
			if pending != "" {
				return nil, &SyntaxError{Line: pendingLine, Err: ErrDanglingName, Text: pending}
			}
			key, value, _ := strings.Cut(line, "=")
			top.AddValue(strings.TrimSpace(key), strings.TrimSpace(value))

		default:
			if pending != "" {
				return nil, &SyntaxError{Line: pendingLine, Err: ErrDanglingName, Text: pending}
			}
			pending = line
			pendingLine = lineNo
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("sfs: read: %w", err)
	}
	if pending != "" {
		return nil, &SyntaxError{Line: pendingLine, Err: ErrDanglingName, Text: pending}
	}
	if len(stack) != 1 {
		return nil, &SyntaxError{Line: lineNo, Err: fmt.Errorf("%w: %d node(s) left open", ErrUnbalanced, len(stack)-1)}
	}

	return doc, nil
}

// Encode writes doc as tab-indented ConfigNode text.
func Encode(w io.Writer, doc *Document) error {
	eol := "\n"
	if doc.CRLF {
		eol = "\r\n"
	}
	bw := bufio.NewWriter(w)
	for _, e := range doc.Root.Entries {
		if err := encodeEntry(bw, e, 0, eol); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func encodeEntry(w *bufio.Writer, e Entry, depth int, eol string) error {
	indent := strings.Repeat("\t", depth)
	if e.Node == nil {
		_, err := fmt.Fprintf(w, "%s%s = %s%s", indent, e.Key, e.Value, eol)
		return err
	}
	if _, err := fmt.Fprintf(w, "%s%s%s%s{%s", indent, e.Node.Name, eol, indent, eol); err != nil {
		return err
	}
	for _, child := range e.Node.Entries {
		if err := encodeEntry(w, child, depth+1, eol); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s}%s", indent, eol)
	return err
}

// ReadFile decodes the save file at path.
func ReadFile(path string) (*Document, error) {
	timer := logging.StartTimer(logging.CategoryCodec, "ReadFile "+filepath.Base(path))
	defer timer.Stop()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// WriteFile encodes doc to path through a temp file in the same directory,
// renamed over the target once fully written.
func WriteFile(path string, doc *Document) error {
	timer := logging.StartTimer(logging.CategoryCodec, "WriteFile "+filepath.Base(path))
	defer timer.Stop()

	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		logging.CodecDebug("chmod %s: %v", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}

	logging.CodecDebug("wrote %d bytes to %s", buf.Len(), path)
	return nil
}
