// Copyright (C) 2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package pep508

import (
	"fmt"
	"strings"

	"github.com/datawire/pydist/pkg/python/pep440"
)

// A Marker is a parsed environment marker; the part of a dependency specification after the
// semicolon.
//
//     requests [security] >= 2.8.1 ; python_version < "2.7"
//
// Parsing and evaluation are separate steps with separate failure modes: a malformed marker is
// a parse error, while a well-formed marker that names an unknown environment variable is an
// evaluation error.  A marker that merely evaluates false is neither.
type Marker struct {
	expr markerExpr
	str  string
}

// ParseMarker parses the text of an environment marker, but does not evaluate it.
func ParseMarker(str string) (*Marker, error) {
	toks, err := lexMarker(str)
	if err != nil {
		return nil, fmt.Errorf("pep508.ParseMarker: %w", err)
	}
	p := &markerParser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("pep508.ParseMarker: %w", err)
	}
	if !p.eof() {
		return nil, fmt.Errorf("pep508.ParseMarker: unexpected trailing tokens in %q", str)
	}
	return &Marker{expr: expr, str: expr.String()}, nil
}

// String returns the marker in canonical form (normalized whitespace and quoting).
func (m *Marker) String() string {
	return m.str
}

// Evaluate evaluates the marker against the given environment.  A nil environment means the
// default environment of the running interpreter would be used; callers here must pass one
// explicitly since there is no interpreter to inspect.  Referencing a variable that the
// environment does not define is an error, not a false.
func (m *Marker) Evaluate(env map[string]string) (bool, error) {
	return m.expr.evaluate(env)
}

//
// AST

type markerExpr interface {
	fmt.Stringer
	evaluate(env map[string]string) (bool, error)
}

type markerOr []markerExpr

func (e markerOr) String() string {
	parts := make([]string, 0, len(e))
	for _, sub := range e {
		parts = append(parts, sub.String())
	}
	return strings.Join(parts, " or ")
}

func (e markerOr) evaluate(env map[string]string) (bool, error) {
	for _, sub := range e {
		ok, err := sub.evaluate(env)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type markerAnd []markerExpr

func (e markerAnd) String() string {
	parts := make([]string, 0, len(e))
	for _, sub := range e {
		if _, isOr := sub.(markerOr); isOr {
			parts = append(parts, "("+sub.String()+")")
		} else {
			parts = append(parts, sub.String())
		}
	}
	return strings.Join(parts, " and ")
}

func (e markerAnd) evaluate(env map[string]string) (bool, error) {
	for _, sub := range e {
		ok, err := sub.evaluate(env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// a markerValue is one side of a comparison; either an environment variable reference or a
// quoted literal
type markerValue struct {
	isVar bool
	text  string
}

func (v markerValue) String() string {
	if v.isVar {
		return v.text
	}
	return `"` + v.text + `"`
}

func (v markerValue) resolve(env map[string]string) (string, error) {
	if !v.isVar {
		return v.text, nil
	}
	val, ok := env[v.text]
	if !ok {
		return "", fmt.Errorf("undefined environment marker variable: %q", v.text)
	}
	return val, nil
}

type markerCompare struct {
	lhs markerValue
	op  string
	rhs markerValue
}

func (e markerCompare) String() string {
	return e.lhs.String() + " " + e.op + " " + e.rhs.String()
}

func (e markerCompare) evaluate(env map[string]string) (bool, error) {
	lhs, err := e.lhs.resolve(env)
	if err != nil {
		return false, err
	}
	rhs, err := e.rhs.resolve(env)
	if err != nil {
		return false, err
	}
	switch e.op {
	case "in":
		return strings.Contains(rhs, lhs), nil
	case "not in":
		return !strings.Contains(rhs, lhs), nil
	}

	// Comparisons are version comparisons when both sides parse as versions, and plain string
	// comparisons otherwise.
	lhsVer, lhsErr := pep440.ParseVersion(lhs)
	rhsVer, rhsErr := pep440.ParseVersion(rhs)
	if lhsErr == nil && rhsErr == nil {
		return compareVersions(*lhsVer, e.op, *rhsVer)
	}
	return compareStrings(lhs, e.op, rhs)
}

func compareVersions(lhs pep440.Version, op string, rhs pep440.Version) (bool, error) {
	if op == "~=" {
		spec, err := pep440.ParseSpecifier(op + rhs.String())
		if err != nil {
			return false, err
		}
		return spec.Match(lhs), nil
	}
	cmp := lhs.Cmp(rhs)
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case "==":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	case ">=":
		return cmp >= 0, nil
	case ">":
		return cmp > 0, nil
	case "===":
		return lhs.String() == rhs.String(), nil
	default:
		return false, fmt.Errorf("invalid marker comparison operator: %q", op)
	}
}

func compareStrings(lhs, op, rhs string) (bool, error) {
	cmp := strings.Compare(lhs, rhs)
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case "==", "===":
		return cmp == 0, nil
	case "!=":
		return cmp != 0, nil
	case ">=":
		return cmp >= 0, nil
	case ">":
		return cmp > 0, nil
	case "~=":
		return false, fmt.Errorf("~= requires PEP 440 versions on both sides, got %q and %q", lhs, rhs)
	default:
		return false, fmt.Errorf("invalid marker comparison operator: %q", op)
	}
}

//
// lexer

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokOp   // comparison operator
	tokWord // variable name or keyword (and/or/in/not)
	tokStr  // quoted literal
)

type token struct {
	kind tokenKind
	text string
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func lexMarker(str string) ([]token, error) {
	var toks []token
	for i := 0; i < len(str); {
		c := str[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(str[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string literal in marker: %q", str)
			}
			toks = append(toks, token{tokStr, str[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsAny(string(c), "<>=!~"):
			j := i
			for j < len(str) && strings.ContainsAny(string(str[j]), "<>=!~") {
				j++
			}
			op := str[i:j]
			switch op {
			case "<", "<=", "==", "!=", ">=", ">", "~=", "===":
				toks = append(toks, token{tokOp, op})
			default:
				return nil, fmt.Errorf("invalid operator %q in marker: %q", op, str)
			}
			i = j
		case isWordByte(c):
			j := i
			for j < len(str) && isWordByte(str[j]) {
				j++
			}
			toks = append(toks, token{tokWord, str[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q in marker: %q", c, str)
		}
	}
	return toks, nil
}

//
// parser

type markerParser struct {
	toks []token
	pos  int
}

func (p *markerParser) eof() bool {
	return p.pos >= len(p.toks)
}

func (p *markerParser) peek() (token, bool) {
	if p.eof() {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *markerParser) next() (token, bool) {
	tok, ok := p.peek()
	if ok {
		p.pos++
	}
	return tok, ok
}

func (p *markerParser) parseExpr() (markerExpr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	ret := markerOr{lhs}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokWord || tok.text != "or" {
			break
		}
		p.pos++
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		ret = append(ret, rhs)
	}
	if len(ret) == 1 {
		return ret[0], nil
	}
	return ret, nil
}

func (p *markerParser) parseAnd() (markerExpr, error) {
	lhs, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	ret := markerAnd{lhs}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokWord || tok.text != "and" {
			break
		}
		p.pos++
		rhs, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		ret = append(ret, rhs)
	}
	if len(ret) == 1 {
		return ret[0], nil
	}
	return ret, nil
}

func (p *markerParser) parseAtom() (markerExpr, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of marker")
	}
	if tok.kind == tokLParen {
		p.pos++
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		closer, ok := p.next()
		if !ok || closer.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis in marker")
		}
		return expr, nil
	}
	return p.parseCompare()
}

func (p *markerParser) parseCompare() (markerExpr, error) {
	lhs, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	opTok, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("missing comparison operator in marker")
	}
	var op string
	switch {
	case opTok.kind == tokOp:
		op = opTok.text
	case opTok.kind == tokWord && opTok.text == "in":
		op = "in"
	case opTok.kind == tokWord && opTok.text == "not":
		inTok, ok := p.next()
		if !ok || inTok.kind != tokWord || inTok.text != "in" {
			return nil, fmt.Errorf("expected \"in\" after \"not\" in marker")
		}
		op = "not in"
	default:
		return nil, fmt.Errorf("expected comparison operator, got %q", opTok.text)
	}
	rhs, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return markerCompare{lhs: lhs, op: op, rhs: rhs}, nil
}

// Legacy spellings predating PEP 508, still found in old metadata.
var varAliases = map[string]string{
	"os.name":                        "os_name",
	"sys.platform":                   "sys_platform",
	"platform.machine":               "platform_machine",
	"platform.version":               "platform_version",
	"platform.python_implementation": "platform_python_implementation",
	"python_implementation":          "platform_python_implementation",
}

func (p *markerParser) parseValue() (markerValue, error) {
	tok, ok := p.next()
	if !ok {
		return markerValue{}, fmt.Errorf("unexpected end of marker")
	}
	switch tok.kind {
	case tokStr:
		return markerValue{isVar: false, text: tok.text}, nil
	case tokWord:
		name := tok.text
		if alias, ok := varAliases[name]; ok {
			name = alias
		}
		return markerValue{isVar: true, text: name}, nil
	default:
		return markerValue{}, fmt.Errorf("expected variable or quoted string, got %q", tok.text)
	}
}
