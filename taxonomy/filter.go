// Copyright 2024 The Talaria Authors
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

package taxonomy

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Filter is a parsed boolean taxon-selection expression:
//
//	expr    := or_expr
//	or_expr := and_expr ( "OR" and_expr )*
//	and_expr:= not_expr ( "AND" not_expr )*
//	not_expr:= ["NOT"] atom
//	atom    := NUMBER | NAME | "(" expr ")"
//
// Precedence is NOT > AND > OR. "AND NOT" is accepted as sugar for
// "AND (NOT ...)" during parsing. A NAME may span several words
// ("Escherichia coli"): consecutive tokens that are not keywords or
// parentheses are joined with single spaces.
type Filter struct {
	root node
}

type nodeKind int

const (
	nodeOr nodeKind = iota
	nodeAnd
	nodeNot
	nodeAtom
)

type node struct {
	kind     nodeKind
	children []node
	// atom fields
	isNumber bool
	number   TaxonId
	name     string
}

// ParseFilter parses a boolean taxon filter expression. Unrecognized
// tokens or malformed grammar are hard errors; an unknown taxon name is
// not - it simply never matches (see Evaluate).
func ParseFilter(expr string) (*Filter, error) {
	p := &filterParser{tokens: tokenize(expr)}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, errors.Errorf("taxonomy: unexpected trailing tokens at %v", p.tokens[p.pos:])
	}
	return &Filter{root: n}, nil
}

func tokenize(expr string) []string {
	expr = strings.ReplaceAll(expr, "(", " ( ")
	expr = strings.ReplaceAll(expr, ")", " ) ")
	return strings.Fields(expr)
}

type filterParser struct {
	tokens []string
	pos    int
}

func (p *filterParser) peek() (string, bool) {
	if p.pos >= len(p.tokens) {
		return "", false
	}
	return p.tokens[p.pos], true
}

func (p *filterParser) next() (string, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *filterParser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return node{}, err
	}
	children := []node{left}
	for {
		t, ok := p.peek()
		if !ok || !strings.EqualFold(t, "OR") {
			break
		}
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return node{}, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return node{kind: nodeOr, children: children}, nil
}

func (p *filterParser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return node{}, err
	}
	children := []node{left}
	for {
		t, ok := p.peek()
		if !ok || !strings.EqualFold(t, "AND") {
			break
		}
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return node{}, err
		}
		children = append(children, right)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return node{kind: nodeAnd, children: children}, nil
}

func (p *filterParser) parseNot() (node, error) {
	if t, ok := p.peek(); ok && strings.EqualFold(t, "NOT") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return node{}, err
		}
		return node{kind: nodeNot, children: []node{inner}}, nil
	}
	return p.parseAtom()
}

func (p *filterParser) parseAtom() (node, error) {
	t, ok := p.next()
	if !ok {
		return node{}, errors.New("taxonomy: unexpected end of filter expression")
	}
	if t == "(" {
		inner, err := p.parseOr()
		if err != nil {
			return node{}, err
		}
		closing, ok := p.next()
		if !ok || closing != ")" {
			return node{}, errors.New("taxonomy: missing closing paren")
		}
		return inner, nil
	}
	if strings.EqualFold(t, "AND") || strings.EqualFold(t, "OR") || strings.EqualFold(t, "NOT") || t == ")" {
		return node{}, errors.Errorf("taxonomy: unexpected token %q", t)
	}
	if n, err := strconv.ParseUint(t, 10, 32); err == nil {
		return node{kind: nodeAtom, isNumber: true, number: TaxonId(n)}, nil
	}
	name := t
	for {
		w, ok := p.peek()
		if !ok || w == "(" || w == ")" || strings.EqualFold(w, "AND") || strings.EqualFold(w, "OR") || strings.EqualFold(w, "NOT") {
			break
		}
		p.next()
		name += " " + w
	}
	return node{kind: nodeAtom, name: name}, nil
}

// Evaluate reports whether the filter holds against a sequence's known
// taxon set. An atom naming an unresolvable taxon evaluates to false
// rather than erroring.
func (f *Filter) Evaluate(ix *Index, taxa map[TaxonId]struct{}) bool {
	return evalNode(f.root, ix, taxa)
}

func evalNode(n node, ix *Index, taxa map[TaxonId]struct{}) bool {
	switch n.kind {
	case nodeOr:
		for _, c := range n.children {
			if evalNode(c, ix, taxa) {
				return true
			}
		}
		return false
	case nodeAnd:
		for _, c := range n.children {
			if !evalNode(c, ix, taxa) {
				return false
			}
		}
		return true
	case nodeNot:
		return !evalNode(n.children[0], ix, taxa)
	case nodeAtom:
		var t TaxonId
		if n.isNumber {
			t = n.number
		} else if resolved, ok := ix.ResolveName(n.name); ok {
			t = resolved
		} else {
			return false
		}
		for present := range taxa {
			if ix.IsAncestor(t, present) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
