package ast

import (
	"strconv"
	"strings"
)

// Parse turns a FHIRPath source expression into a syntax tree.
func Parse(input string) (*Node, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, syntaxErrf(0, "empty expression")
	}
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tkEOF {
		return nil, syntaxErrf(tok.pos, "unexpected token %q", tok.value)
	}
	return node, nil
}

// ============================================================================
// Parser: recursive descent with precedence climbing
// ============================================================================

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return token{kind: tkEOF, pos: -1}
}

func (p *parser) advance() token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.advance()
	if t.kind != kind {
		return t, syntaxErrf(t.pos, "expected %s but got %q", what, t.value)
	}
	return t, nil
}

// Operator precedence, lowest to highest:
//
//	implies                      (1)
//	or, xor                      (2)
//	and                          (3)
//	in, contains                 (4)
//	= != ~ !~                    (5)
//	< > <= >=                    (6)
//	|                            (7)  union
//	is, as                       (8)  type operators
//	+ - &                        (9)
//	* / div mod                  (10)
//	unary - +                    (11)
//	. [] ()                      (12)
func (p *parser) infixInfo(tok token) (prec int, op string) {
	switch tok.kind {
	case tkIdent:
		switch tok.value {
		case "implies":
			return 1, "implies"
		case "or":
			return 2, "or"
		case "xor":
			return 2, "xor"
		case "and":
			return 3, "and"
		case "in":
			return 4, "in"
		case "contains":
			return 4, "contains"
		case "is":
			return 8, "is"
		case "as":
			return 8, "as"
		case "div":
			return 10, "div"
		case "mod":
			return 10, "mod"
		}
	case tkEq:
		return 5, "="
	case tkNe:
		return 5, "!="
	case tkEquiv:
		return 5, "~"
	case tkNEquiv:
		return 5, "!~"
	case tkLt:
		return 6, "<"
	case tkGt:
		return 6, ">"
	case tkLe:
		return 6, "<="
	case tkGe:
		return 6, ">="
	case tkPipe:
		return 7, "|"
	case tkPlus:
		return 9, "+"
	case tkMinus:
		return 9, "-"
	case tkAmp:
		return 9, "&"
	case tkStar:
		return 10, "*"
	case tkSlash:
		return 10, "/"
	}
	return -1, ""
}

func (p *parser) parseExpression(minPrec int) (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		prec, op := p.infixInfo(tok)
		if prec < minPrec {
			break
		}
		p.advance()

		// Type operators take a type specifier, not an expression.
		if op == "is" || op == "as" {
			typeName, err := p.parseTypeSpecifier()
			if err != nil {
				return nil, err
			}
			left = &Node{
				Kind:     NdTypeOp,
				Text:     op,
				TypeName: typeName,
				Pos:      tok.pos,
				Children: []*Node{left},
			}
			continue
		}

		right, err := p.parseExpression(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Node{
			Kind:     NdBinary,
			Text:     op,
			Pos:      tok.pos,
			Children: []*Node{left, right},
		}
	}
	return left, nil
}

// parseTypeSpecifier consumes a (possibly qualified) type name.
func (p *parser) parseTypeSpecifier() (string, error) {
	tok, err := p.expect(tkIdent, "type name")
	if err != nil {
		return "", err
	}
	name := tok.value
	for p.peek().kind == tkDot {
		// Qualified: System.Integer, FHIR.Patient.
		p.advance()
		part, err := p.expect(tkIdent, "type name")
		if err != nil {
			return "", err
		}
		name += "." + part.value
	}
	return name, nil
}

func (p *parser) parseUnary() (*Node, error) {
	tok := p.peek()
	if tok.kind == tkMinus || tok.kind == tkPlus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Node{
			Kind:     NdUnary,
			Text:     tok.value,
			Pos:      tok.pos,
			Children: []*Node{operand},
		}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (*Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch tok.kind {
		case tkDot:
			p.advance()
			ident, err := p.expect(tkIdent, "identifier after '.'")
			if err != nil {
				return nil, err
			}
			if p.peek().kind == tkLParen {
				p.advance()
				args, err := p.parseArgList()
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(tkRParen, "')'"); err != nil {
					return nil, err
				}
				node = &Node{
					Kind:     NdInvoke,
					Text:     ident.value,
					Pos:      ident.pos,
					Children: append([]*Node{node}, args...),
				}
			} else {
				member := &Node{Kind: NdIdent, Text: ident.value, Pos: ident.pos}
				node = &Node{Kind: NdDot, Pos: tok.pos, Children: []*Node{node, member}}
			}
		case tkLBrack:
			p.advance()
			idx, err := p.parseExpression(0)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tkRBrack, "']'"); err != nil {
				return nil, err
			}
			node = &Node{Kind: NdIndex, Pos: tok.pos, Children: []*Node{node, idx}}
		default:
			return node, nil
		}
	}
}

// calendarUnits are the bare-word quantity units of the language.
var calendarUnits = map[string]bool{
	"year": true, "years": true, "month": true, "months": true,
	"week": true, "weeks": true, "day": true, "days": true,
	"hour": true, "hours": true, "minute": true, "minutes": true,
	"second": true, "seconds": true, "millisecond": true, "milliseconds": true,
}

func (p *parser) parsePrimary() (*Node, error) {
	tok := p.peek()

	switch tok.kind {
	case tkLParen:
		p.advance()
		inner, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tkRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil

	case tkLBrace:
		p.advance()
		if _, err := p.expect(tkRBrace, "'}'"); err != nil {
			return nil, err
		}
		return &Node{Kind: NdEmpty, Pos: tok.pos}, nil

	case tkString:
		p.advance()
		return &Node{Kind: NdStr, Text: tok.value, Pos: tok.pos}, nil

	case tkNumber:
		p.advance()
		num, err := p.numberNode(tok)
		if err != nil {
			return nil, err
		}
		// A number followed by a unit is a quantity literal: 5 'mg', 2 years.
		next := p.peek()
		if next.kind == tkString {
			p.advance()
			return &Node{Kind: NdQuantity, Text: next.value, Pos: tok.pos,
				Children: []*Node{num}}, nil
		}
		if next.kind == tkIdent && calendarUnits[next.value] {
			p.advance()
			return &Node{Kind: NdQuantity, Text: strings.TrimSuffix(next.value, "s"),
				Pos: tok.pos, Children: []*Node{num}}, nil
		}
		return num, nil

	case tkDateTime:
		p.advance()
		kind := NdDate
		if strings.ContainsRune(tok.value, 'T') {
			kind = NdDateTime
		}
		return &Node{Kind: kind, Text: tok.value, Pos: tok.pos}, nil

	case tkTime:
		p.advance()
		return &Node{Kind: NdTime, Text: tok.value, Pos: tok.pos}, nil

	case tkVariable:
		p.advance()
		return &Node{Kind: NdVariable, Text: tok.value, Pos: tok.pos}, nil

	case tkEnvVar:
		p.advance()
		return &Node{Kind: NdEnvVar, Text: tok.value, Pos: tok.pos}, nil

	case tkIdent:
		p.advance()
		switch tok.value {
		case "true":
			return &Node{Kind: NdBool, Bool: true, Pos: tok.pos}, nil
		case "false":
			return &Node{Kind: NdBool, Bool: false, Pos: tok.pos}, nil
		}
		if p.peek().kind == tkLParen {
			p.advance()
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tkRParen, "')'"); err != nil {
				return nil, err
			}
			return &Node{Kind: NdFunction, Text: tok.value, Pos: tok.pos,
				Children: args}, nil
		}
		return &Node{Kind: NdIdent, Text: tok.value, Pos: tok.pos}, nil

	case tkEOF:
		return nil, syntaxErrf(tok.pos, "unexpected end of expression")

	default:
		return nil, syntaxErrf(tok.pos, "unexpected token %q", tok.value)
	}
}

func (p *parser) numberNode(tok token) (*Node, error) {
	if strings.ContainsRune(tok.value, '.') {
		// Decimal literals stay textual; the analyzer parses them with full
		// precision.
		return &Node{Kind: NdDec, Text: tok.value, Pos: tok.pos}, nil
	}
	i, err := strconv.ParseInt(tok.value, 10, 64)
	if err != nil {
		return nil, syntaxErrf(tok.pos, "invalid integer %q", tok.value)
	}
	return &Node{Kind: NdInt, Int: i, Pos: tok.pos}, nil
}

func (p *parser) parseArgList() ([]*Node, error) {
	var args []*Node
	if p.peek().kind == tkRParen {
		return args, nil
	}
	for {
		// Bare type names in argument position (is(Quantity), ofType(string))
		// are parsed as expressions; the analyzer reinterprets identifier
		// arguments of type functions as specifiers.
		arg, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.peek().kind != tkComma {
			break
		}
		p.advance()
	}
	return args, nil
}
