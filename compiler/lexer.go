package compiler

import (
	"math"
	"strconv"
	"strings"

	"github.com/chazu/nmacro/pkg/symtab"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for macro source
// ---------------------------------------------------------------------------

const (
	// MaxSymbolLen is the longest identifier kept; extra characters are
	// dropped.
	MaxSymbolLen = 100

	// MaxStringLen is the longest string constant kept; extra characters
	// are dropped.
	MaxStringLen = 5000
)

// Lexer tokenizes macro source. Identifiers and constants are resolved
// against the compilation's scope as they are read, so the lexer installs
// new symbols as a side effect.
type Lexer struct {
	input string
	pos   int // offset of the next unread byte
	scope *symtab.Scope
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string, scope *symtab.Scope) *Lexer {
	if scope == nil {
		scope = symtab.NewScope(nil)
	}
	return &Lexer{input: input, scope: scope}
}

// Offset returns the offset of the first byte not yet consumed.
func (l *Lexer) Offset() int {
	return l.pos
}

// at returns the byte at offset i, or 0 past the end of input.
func (l *Lexer) at(i int) byte {
	if i < 0 || i >= len(l.input) {
		return 0
	}
	return l.input[i]
}

func (l *Lexer) ch() byte   { return l.at(l.pos) }
func (l *Lexer) peek() byte { return l.at(l.pos + 1) }

// NextToken returns the next token. A NUL byte ends the input like the end
// of the string does.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	start := l.pos
	c := l.ch()
	switch {
	case c == 0:
		return Token{Type: TokenEOF, Offset: start}
	case isDigit(c):
		return l.readNumber(start)
	case isLetter(c) || c == '$':
		return l.readSymbol(start)
	}

	l.pos++
	tok := func(t TokenType) Token {
		return Token{Type: t, Literal: l.input[start:l.pos], Offset: start}
	}
	switch c {
	case '"':
		return l.readString(start)
	case '\n':
		return tok(TokenNewline)
	case '>':
		return tok(l.follow('=', TokenGE, TokenGT))
	case '<':
		return tok(l.follow('=', TokenLE, TokenLT))
	case '=':
		return tok(l.follow('=', TokenEQ, TokenAssign))
	case '!':
		return tok(l.follow('=', TokenNE, TokenNot))
	case '+':
		return tok(l.follow2('+', TokenIncr, '=', TokenAddEq, TokenPlus))
	case '-':
		return tok(l.follow2('-', TokenDecr, '=', TokenSubEq, TokenMinus))
	case '|':
		return tok(l.follow2('|', TokenOr, '=', TokenOrEq, TokenBitOr))
	case '&':
		return tok(l.follow2('&', TokenAnd, '=', TokenAndEq, TokenBitAnd))
	case '*':
		return tok(l.follow2('*', TokenPow, '=', TokenMulEq, TokenStar))
	case '/':
		return tok(l.follow('=', TokenDivEq, TokenSlash))
	case '%':
		return tok(l.follow('=', TokenModEq, TokenPercent))
	case '^':
		return tok(TokenPow)
	case '(':
		return tok(TokenLParen)
	case ')':
		return tok(TokenRParen)
	case '[':
		return tok(TokenLBracket)
	case ']':
		return tok(TokenRBracket)
	case '{':
		return tok(TokenLBrace)
	case '}':
		return tok(TokenRBrace)
	case ';':
		return tok(TokenSemicolon)
	case ',':
		return tok(TokenComma)
	default:
		return tok(TokenChar)
	}
}

// follow consumes the next byte if it is expect.
func (l *Lexer) follow(expect byte, yes, no TokenType) TokenType {
	if l.ch() == expect {
		l.pos++
		return yes
	}
	return no
}

// follow2 is follow with two alternative second bytes.
func (l *Lexer) follow2(expect1 byte, yes1 TokenType, expect2 byte, yes2 TokenType, no TokenType) TokenType {
	switch l.ch() {
	case expect1:
		l.pos++
		return yes1
	case expect2:
		l.pos++
		return yes2
	}
	return no
}

// skipWhitespaceAndComments skips blanks, backslash-newline pairs and
// comments. Newlines are tokens and are left alone.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch c := l.ch(); {
		case c == '\\' && l.peek() == '\n':
			l.pos += 2
		case c == ' ' || c == '\t':
			l.pos++
		case c == '#':
			l.skipComment()
		default:
			return
		}
	}
}

// skipComment stops before a newline, or after an escaped newline.
func (l *Lexer) skipComment() {
	for c := l.ch(); c != '\n' && c != 0; c = l.ch() {
		if c == '\\' && l.peek() == '\n' {
			l.pos += 2
			return
		}
		l.pos++
	}
}

// nextNonBlank returns the first byte at or after the cursor that is not a
// blank or an escaped newline.
func (l *Lexer) nextNonBlank() byte {
	for i := l.pos; ; {
		switch c := l.at(i); {
		case c == ' ' || c == '\t':
			i++
		case c == '\\' && l.at(i+1) == '\n':
			i += 2
		default:
			return c
		}
	}
}

func (l *Lexer) readNumber(start int) Token {
	for isDigit(l.ch()) {
		l.pos++
	}
	text := l.input[start:l.pos]
	n, err := strconv.Atoi(text)
	if err != nil {
		n = math.MaxInt
	}
	return Token{Type: TokenNumber, Literal: text, Sym: l.scope.InstallIntConst(n), Offset: start}
}

func (l *Lexer) readSymbol(start int) Token {
	if sym := l.matchHyphenated(); sym != nil {
		return Token{Type: TokenSymbol, Literal: l.input[start:l.pos], Sym: sym, Offset: start}
	}

	var name strings.Builder
	name.WriteByte(l.ch())
	l.pos++
	for c := l.ch(); isAlnum(c) || c == '_'; c = l.ch() {
		if name.Len() < MaxSymbolLen {
			name.WriteByte(c)
		}
		l.pos++
	}
	text := name.String()

	if t, ok := reservedWords[text]; ok {
		return Token{Type: t, Literal: text, Offset: start}
	}
	switch text {
	case "delete":
		if l.nextNonBlank() != '(' {
			return Token{Type: TokenDelete, Literal: text, Offset: start}
		}
	case "define":
		// A define starts the next unit; leave it for the caller.
		l.pos = start
		return Token{Type: TokenEOF, Offset: start}
	}

	sym := l.scope.Lookup(text)
	if sym == nil {
		sym = l.scope.Install(text, symtab.ClassForName(text), symtab.Literal{})
	}
	return Token{Type: TokenSymbol, Literal: text, Sym: sym, Offset: start}
}

// matchHyphenated recognizes names like forward-character. The longest run
// of letters, digits, underscores and inner hyphens is taken; it is a
// symbol only if it contains a hyphen and is already known.
func (l *Lexer) matchHyphenated() *symtab.Symbol {
	i := l.pos
	hasDash := false
	for {
		c := l.at(i)
		if c == '-' && isAlnum(l.at(i+1)) {
			hasDash = true
		} else if !isAlnum(c) && c != '_' {
			break
		}
		i++
	}
	if !hasDash {
		return nil
	}
	sym := l.scope.Lookup(l.input[l.pos:i])
	if sym != nil {
		l.pos = i
	}
	return sym
}

var stringEscapes = map[byte]byte{
	'\\': '\\',
	'"':  '"',
	'n':  '\n',
	't':  '\t',
	'b':  '\b',
	'r':  '\r',
	'f':  '\f',
	'a':  '\a',
	'v':  '\v',
	'e':  0x1B,
}

// readString scans a string constant; the opening quote is consumed. The
// constant ends at a closing quote, an unescaped newline or end of input.
func (l *Lexer) readString(start int) Token {
	var buf []byte
	add := func(b byte) {
		if len(buf) < MaxStringLen {
			buf = append(buf, b)
		}
	}

	for {
		c := l.ch()
		if c == '"' || c == '\n' || c == 0 {
			break
		}
		if len(buf) >= MaxStringLen {
			l.pos++
			continue
		}
		if c != '\\' {
			add(c)
			l.pos++
			continue
		}

		backslash := l.pos
		l.pos++
		e := l.ch()
		switch {
		case e == '\n':
			l.pos++
		case e == 'x':
			l.pos++
			if !isHexDigit(l.ch()) {
				add('x')
				break
			}
			v := hexValue(l.ch())
			l.pos++
			if isHexDigit(l.ch()) {
				v = v<<4 | hexValue(l.ch())
				l.pos++
			}
			l.escapedByte(v, backslash, add)
		case isOctalDigit(e):
			if e == '0' {
				l.pos++
			}
			v, digits := 0, 0
			for digits < 3 && isOctalDigit(l.ch()) && (digits < 2 || v <= 037) {
				v = v<<3 | int(l.ch()-'0')
				l.pos++
				digits++
			}
			l.escapedByte(v, backslash, add)
		default:
			if r, ok := stringEscapes[e]; ok {
				add(r)
				l.pos++
			}
			// Otherwise the backslash is dropped and the character is
			// read as an ordinary one on the next pass.
		}
	}
	if c := l.ch(); c == '"' || c == '\n' {
		l.pos++
	}

	text := string(buf)
	return Token{
		Type:    TokenString,
		Literal: l.input[start:l.pos],
		Sym:     l.scope.InstallStringConst(text),
		Offset:  start,
	}
}

// escapedByte adds a numeric escape. A zero value cannot live in a string
// constant: the backslash is kept literally and scanning resumes right
// after it.
func (l *Lexer) escapedByte(v, backslash int, add func(byte)) {
	if v != 0 {
		add(byte(v))
		return
	}
	add('\\')
	l.pos = backslash + 1
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlnum(c byte) bool {
	return isLetter(c) || isDigit(c)
}

func isOctalDigit(c byte) bool {
	return c >= '0' && c <= '7'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) int {
	switch {
	case isDigit(c):
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}

// Tokenize returns every token of input up to and including EOF, using a
// throwaway scope.
func Tokenize(input string) []Token {
	l := NewLexer(input, nil)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}
