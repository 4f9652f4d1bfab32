package compiler

import (
	"fmt"

	"github.com/chazu/nmacro/pkg/symtab"
)

// ---------------------------------------------------------------------------
// Token types for the macro lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenNewline
	TokenChar // any character without a meaning of its own

	// Operands
	TokenNumber    // 42
	TokenString    // "text"
	TokenSymbol    // x, $1, $sub_sep, forward-char
	TokenArgLookup // $args

	// Keywords
	TokenDelete
	TokenIf
	TokenWhile
	TokenElse
	TokenFor
	TokenBreak
	TokenContinue
	TokenReturn
	TokenIn

	// Assignment
	TokenAssign // =
	TokenAddEq  // +=
	TokenSubEq  // -=
	TokenMulEq  // *=
	TokenDivEq  // /=
	TokenModEq  // %=
	TokenAndEq  // &=
	TokenOrEq   // |=

	// Operators
	TokenOr      // ||
	TokenAnd     // &&
	TokenBitOr   // |
	TokenBitAnd  // &
	TokenGT      // >
	TokenGE      // >=
	TokenLT      // <
	TokenLE      // <=
	TokenEQ      // ==
	TokenNE      // !=
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %
	TokenNot     // !
	TokenIncr    // ++
	TokenDecr    // --
	TokenPow     // ^ or **

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenLBrace    // {
	TokenRBrace    // }
	TokenSemicolon // ;
	TokenComma     // ,
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "end of input",
	TokenNewline:   `'\n'`,
	TokenChar:      "CHAR",
	TokenNumber:    "NUMBER",
	TokenString:    "STRING",
	TokenSymbol:    "SYMBOL",
	TokenArgLookup: "ARG_LOOKUP",
	TokenDelete:    "DELETE",
	TokenIf:        "IF",
	TokenWhile:     "WHILE",
	TokenElse:      "ELSE",
	TokenFor:       "FOR",
	TokenBreak:     "BREAK",
	TokenContinue:  "CONTINUE",
	TokenReturn:    "RETURN",
	TokenIn:        "IN",
	TokenAssign:    "'='",
	TokenAddEq:     "ADDEQ",
	TokenSubEq:     "SUBEQ",
	TokenMulEq:     "MULEQ",
	TokenDivEq:     "DIVEQ",
	TokenModEq:     "MODEQ",
	TokenAndEq:     "ANDEQ",
	TokenOrEq:      "OREQ",
	TokenOr:        "OR",
	TokenAnd:       "AND",
	TokenBitOr:     "'|'",
	TokenBitAnd:    "'&'",
	TokenGT:        "GT",
	TokenGE:        "GE",
	TokenLT:        "LT",
	TokenLE:        "LE",
	TokenEQ:        "EQ",
	TokenNE:        "NE",
	TokenPlus:      "'+'",
	TokenMinus:     "'-'",
	TokenStar:      "'*'",
	TokenSlash:     "'/'",
	TokenPercent:   "'%'",
	TokenNot:       "NOT",
	TokenIncr:      "INCR",
	TokenDecr:      "DECR",
	TokenPow:       "POW",
	TokenLParen:    "'('",
	TokenRParen:    "')'",
	TokenLBracket:  "'['",
	TokenRBracket:  "']'",
	TokenLBrace:    "'{'",
	TokenRBrace:    "'}'",
	TokenSemicolon: "';'",
	TokenComma:     "','",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string         // the raw text
	Sym     *symtab.Symbol // for NUMBER, STRING and SYMBOL
	Offset  int            // start offset in the source
}

func (t Token) String() string {
	switch t.Type {
	case TokenChar:
		return fmt.Sprintf("%q", t.Literal)
	case TokenEOF, TokenNewline:
		return t.Type.String()
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types. "delete" and "define" are
// handled separately by the lexer.
var reservedWords = map[string]TokenType{
	"while":    TokenWhile,
	"if":       TokenIf,
	"else":     TokenElse,
	"for":      TokenFor,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"return":   TokenReturn,
	"in":       TokenIn,
	"$args":    TokenArgLookup,
}
