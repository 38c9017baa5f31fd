package ast

import (
	"strings"
	"unicode"
)

// ============================================================================
// Tokens
// ============================================================================

type tokenKind int

const (
	tkIdent    tokenKind = iota // identifier or keyword
	tkVariable                  // $this, $index, $total
	tkEnvVar                    // %var / %'var'
	tkNumber                    // integer or decimal
	tkString                    // 'single-quoted'
	tkDateTime                  // @... body (date or datetime)
	tkTime                      // @T... body
	tkDot                       // .
	tkLParen                    // (
	tkRParen                    // )
	tkLBrack                    // [
	tkRBrack                    // ]
	tkLBrace                    // {
	tkRBrace                    // }
	tkComma                     // ,
	tkEq                        // =
	tkNe                        // !=
	tkEquiv                     // ~
	tkNEquiv                    // !~
	tkLt                        // <
	tkGt                        // >
	tkLe                        // <=
	tkGe                        // >=
	tkPlus                      // +
	tkMinus                     // -
	tkStar                      // *
	tkSlash                     // /
	tkAmp                       // &
	tkPipe                      // |
	tkEOF                       // end-of-input
)

type token struct {
	kind  tokenKind
	value string
	pos   int
}

// ============================================================================
// Lexer
// ============================================================================

func tokenize(input string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(input)

	for i < n {
		ch := input[i]

		// skip whitespace
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			i++
			continue
		}
		// comments: // to end of line, /* ... */
		if ch == '/' && i+1 < n && input[i+1] == '/' {
			for i < n && input[i] != '\n' {
				i++
			}
			continue
		}
		if ch == '/' && i+1 < n && input[i+1] == '*' {
			end := strings.Index(input[i+2:], "*/")
			if end < 0 {
				return nil, syntaxErrf(i, "unterminated comment")
			}
			i += 2 + end + 2
			continue
		}

		start := i

		switch {
		case ch == '.':
			tokens = append(tokens, token{tkDot, ".", start})
			i++
		case ch == '(':
			tokens = append(tokens, token{tkLParen, "(", start})
			i++
		case ch == ')':
			tokens = append(tokens, token{tkRParen, ")", start})
			i++
		case ch == '[':
			tokens = append(tokens, token{tkLBrack, "[", start})
			i++
		case ch == ']':
			tokens = append(tokens, token{tkRBrack, "]", start})
			i++
		case ch == '{':
			tokens = append(tokens, token{tkLBrace, "{", start})
			i++
		case ch == '}':
			tokens = append(tokens, token{tkRBrace, "}", start})
			i++
		case ch == ',':
			tokens = append(tokens, token{tkComma, ",", start})
			i++
		case ch == '|':
			tokens = append(tokens, token{tkPipe, "|", start})
			i++
		case ch == '&':
			tokens = append(tokens, token{tkAmp, "&", start})
			i++
		case ch == '+':
			tokens = append(tokens, token{tkPlus, "+", start})
			i++
		case ch == '-':
			tokens = append(tokens, token{tkMinus, "-", start})
			i++
		case ch == '*':
			tokens = append(tokens, token{tkStar, "*", start})
			i++
		case ch == '/':
			tokens = append(tokens, token{tkSlash, "/", start})
			i++
		case ch == '=':
			tokens = append(tokens, token{tkEq, "=", start})
			i++
		case ch == '~':
			tokens = append(tokens, token{tkEquiv, "~", start})
			i++
		case ch == '!':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tkNe, "!=", start})
				i += 2
			} else if i+1 < n && input[i+1] == '~' {
				tokens = append(tokens, token{tkNEquiv, "!~", start})
				i += 2
			} else {
				return nil, syntaxErrf(start, "unexpected character '!'")
			}
		case ch == '<':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tkLe, "<=", start})
				i += 2
			} else {
				tokens = append(tokens, token{tkLt, "<", start})
				i++
			}
		case ch == '>':
			if i+1 < n && input[i+1] == '=' {
				tokens = append(tokens, token{tkGe, ">=", start})
				i += 2
			} else {
				tokens = append(tokens, token{tkGt, ">", start})
				i++
			}
		case ch == '\'':
			s, next, err := lexString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tkString, s, start})
			i = next
		case ch == '$':
			i++
			j := i
			for j < n && isIdentByte(input[j]) {
				j++
			}
			if j == i {
				return nil, syntaxErrf(start, "expected variable name after '$'")
			}
			tokens = append(tokens, token{tkVariable, input[i:j], start})
			i = j
		case ch == '%':
			i++
			if i < n && input[i] == '\'' {
				s, next, err := lexString(input, i)
				if err != nil {
					return nil, err
				}
				tokens = append(tokens, token{tkEnvVar, s, start})
				i = next
				break
			}
			j := i
			for j < n && (isIdentByte(input[j]) || input[j] == '-') {
				j++
			}
			if j == i {
				return nil, syntaxErrf(start, "expected variable name after '%%'")
			}
			tokens = append(tokens, token{tkEnvVar, input[i:j], start})
			i = j
		case ch == '@':
			// temporal literal: @YYYY..., @YYYY-MM-DDTHH:MM..., @Thh:mm...
			i++
			isTime := i < n && input[i] == 'T'
			if isTime {
				i++
			}
			j := i
			for j < n && (input[j] == '-' || input[j] == ':' || input[j] == 'T' ||
				input[j] == '+' || input[j] == 'Z' || input[j] == '.' ||
				(input[j] >= '0' && input[j] <= '9')) {
				j++
			}
			if j == i {
				return nil, syntaxErrf(start, "empty temporal literal")
			}
			kind := tkDateTime
			if isTime {
				kind = tkTime
			}
			tokens = append(tokens, token{kind, input[i:j], start})
			i = j
		case ch >= '0' && ch <= '9':
			j := i
			for j < n && input[j] >= '0' && input[j] <= '9' {
				j++
			}
			if j < n && input[j] == '.' && j+1 < n && input[j+1] >= '0' && input[j+1] <= '9' {
				j++
				for j < n && input[j] >= '0' && input[j] <= '9' {
					j++
				}
			}
			tokens = append(tokens, token{tkNumber, input[i:j], start})
			i = j
		case ch == '`':
			// delimited identifier
			j := i + 1
			for j < n && input[j] != '`' {
				j++
			}
			if j >= n {
				return nil, syntaxErrf(start, "unterminated delimited identifier")
			}
			tokens = append(tokens, token{tkIdent, input[i+1 : j], start})
			i = j + 1
		case ch == '_' || unicode.IsLetter(rune(ch)):
			j := i
			for j < n && isIdentByte(input[j]) {
				j++
			}
			tokens = append(tokens, token{tkIdent, input[i:j], start})
			i = j
		default:
			return nil, syntaxErrf(start, "unexpected character %q", string(ch))
		}
	}

	tokens = append(tokens, token{tkEOF, "", n})
	return tokens, nil
}

// lexString consumes a single-quoted string starting at input[start] and
// returns the unescaped body and the index after the closing quote.
func lexString(input string, start int) (string, int, error) {
	i := start + 1 // skip opening quote
	n := len(input)
	var sb strings.Builder
	for i < n && input[i] != '\'' {
		if input[i] == '\\' && i+1 < n {
			i++
			switch input[i] {
			case '\\':
				sb.WriteByte('\\')
			case '\'':
				sb.WriteByte('\'')
			case '"':
				sb.WriteByte('"')
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'f':
				sb.WriteByte('\f')
			default:
				sb.WriteByte(input[i])
			}
		} else {
			sb.WriteByte(input[i])
		}
		i++
	}
	if i >= n {
		return "", 0, syntaxErrf(start, "unterminated string")
	}
	return sb.String(), i + 1, nil
}

func isIdentByte(b byte) bool {
	return b == '_' || unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b))
}
