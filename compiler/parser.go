package compiler

import (
	"github.com/chazu/nmacro/pkg/bytecode"
	"github.com/chazu/nmacro/pkg/symtab"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser emitting code as it goes
// ---------------------------------------------------------------------------

// Parser compiles one unit of macro source. There is no syntax tree: every
// construct is emitted into the instruction stream as soon as it is
// recognized, and forward branches are patched when their target is
// reached.
type Parser struct {
	lexer    *Lexer
	curToken Token
	scope    *symtab.Scope
	code     *bytecode.Stream
	loops    loopStack
	nesting  int
}

// NewParser creates a parser for input. Symbols are resolved in scope.
func NewParser(input string, scope *symtab.Scope) *Parser {
	p := &Parser{
		lexer: NewLexer(input, scope),
		scope: scope,
		code:  bytecode.NewStream(),
	}
	p.nextToken()
	return p
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// expect consumes a token of type t or fails.
func (p *Parser) expect(t TokenType) {
	if !p.curTokenIs(t) {
		p.syntaxError(t)
	}
	p.nextToken()
}

// ---------------------------------------------------------------------------
// Units, blocks and statements
// ---------------------------------------------------------------------------

// ParseProgram compiles the whole unit. A unit is either a list of
// statements running to the end of input, or a single braced block; in
// the latter case nothing after the closing brace is read.
func (p *Parser) ParseProgram() (prog *bytecode.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			prog, err = nil, e
		}
	}()

	p.parseBlank()
	if p.curTokenIs(TokenLBrace) {
		p.nextToken()
		p.parseBlank()
		for !p.curTokenIs(TokenRBrace) {
			p.parseStatement()
		}
	} else {
		p.parseStatement()
		for !p.curTokenIs(TokenEOF) {
			p.parseStatement()
		}
	}
	p.emit(bytecode.OpReturnNoVal)
	return p.code.Finish(p.scope, p.lexer.Offset())
}

// parseBlank skips empty lines.
func (p *Parser) parseBlank() {
	for p.curTokenIs(TokenNewline) {
		p.nextToken()
	}
}

// parseBlock compiles a braced statement list or a single statement.
func (p *Parser) parseBlock() {
	p.enter()
	defer p.leave()

	if !p.curTokenIs(TokenLBrace) {
		p.parseStatement()
		return
	}
	p.nextToken()
	p.parseBlank()
	for !p.curTokenIs(TokenRBrace) {
		p.parseStatement()
	}
	p.nextToken()
	p.parseBlank()
}

// parseStatement compiles one statement including the newline ending it
// and any blank lines after it.
func (p *Parser) parseStatement() {
	switch p.curToken.Type {
	case TokenIf:
		p.parseIf()
	case TokenWhile:
		p.parseWhile()
	case TokenFor:
		p.parseFor()
	case TokenBreak, TokenContinue:
		p.parseLoopExit()
	case TokenReturn:
		p.parseReturn()
	case TokenSymbol, TokenDelete, TokenIncr, TokenDecr:
		p.endStatement(p.parseSimpleStatement())
	default:
		p.syntaxError()
	}
}

// endStatement consumes the newline after a statement and the blank lines
// following it. A closing brace or the end of input also ends a statement
// and is left for the caller. afterExpr says the statement ended in an
// expression, which could have gone on with many different tokens.
func (p *Parser) endStatement(afterExpr bool) {
	switch p.curToken.Type {
	case TokenNewline:
		p.nextToken()
		p.parseBlank()
	case TokenRBrace, TokenEOF:
	default:
		if afterExpr {
			p.syntaxError()
		}
		p.syntaxError(TokenNewline)
	}
}

func (p *Parser) parseIf() {
	p.nextToken()
	p.expect(TokenLParen)
	skip := p.parseCond(TokenRParen)
	p.expect(TokenRParen)
	p.parseBlank()
	p.parseBlock()

	if !p.curTokenIs(TokenElse) {
		p.patchHere(skip)
		return
	}
	p.nextToken()
	done := p.emitBranch(bytecode.OpBranch)
	p.patchHere(skip)
	p.parseBlank()
	p.parseBlock()
	p.patchHere(done)
}

// parseCond compiles the condition of an if or a loop and returns the
// placeholder of the branch taken when it is false. An empty condition
// never branches.
func (p *Parser) parseCond(closer TokenType) int {
	if p.curTokenIs(closer) {
		return p.emitBranch(bytecode.OpBranchNever)
	}
	p.parseNumExpr()
	return p.emitBranch(bytecode.OpBranchFalse)
}

func (p *Parser) parseWhile() {
	p.nextToken()
	head := p.code.Here()
	p.loops.push()

	p.expect(TokenLParen)
	exit := p.parseCond(TokenRParen)
	p.expect(TokenRParen)
	p.parseBlank()
	p.parseBlock()

	p.emitBranchTo(bytecode.OpBranch, head)
	p.patchHere(exit)
	p.loops.pop(p.code, p.code.Here(), head)
}

// parseFor compiles both for statement forms. The increment clause of the
// three-clause form is emitted where it appears in the source and then
// swapped behind the body.
func (p *Parser) parseFor() {
	p.nextToken()
	p.loops.push()
	p.expect(TokenLParen)

	if p.curTokenIs(TokenSymbol) {
		sym := p.curToken.Sym
		p.nextToken()
		if p.curTokenIs(TokenIn) {
			p.nextToken()
			p.parseForIn(sym)
			return
		}
		p.parseSymbolStatement(sym)
		p.parseMoreSimpleStatements()
	} else {
		p.parseSimpleStatements(TokenSemicolon)
	}
	p.expect(TokenSemicolon)

	head := p.code.Here()
	exit := p.parseCond(TokenSemicolon)
	p.expect(TokenSemicolon)

	incrStart := p.code.Here()
	p.parseSimpleStatements(TokenRParen)
	incrEnd := p.code.Here()
	p.expect(TokenRParen)
	p.parseBlank()
	p.parseBlock()
	bodyEnd := p.code.Here()

	p.loops.relocate(p.code.SwapCode(incrStart, incrEnd, bodyEnd))
	incr := incrStart + (bodyEnd - incrEnd)

	p.emitBranchTo(bytecode.OpBranch, head)
	p.patchHere(exit)
	p.loops.pop(p.code, p.code.Here(), incr)
}

// parseForIn compiles "for (key in array)"; the opening has been consumed
// up to and including "in".
func (p *Parser) parseForIn(key *symtab.Symbol) {
	p.parseNumExpr()
	p.expect(TokenRParen)

	iter := p.scope.InstallIterator()
	p.emitOpSym(bytecode.OpBeginArrayIter, iter)
	step := p.code.Here()
	p.emitOpSym(bytecode.OpArrayIter, key)
	p.emitSym(iter)
	exit := p.code.EmitPlaceholder()
	p.checkSize()

	p.parseBlank()
	p.parseBlock()

	p.emitBranchTo(bytecode.OpBranch, step)
	p.patchHere(exit)
	p.loops.pop(p.code, p.code.Here(), step)
}

// parseLoopExit compiles break and continue.
func (p *Parser) parseLoopExit() {
	isBreak := p.curTokenIs(TokenBreak)
	p.nextToken()
	p.endStatement(false)

	at := p.emitBranch(bytecode.OpBranch)
	var err error
	if isBreak {
		err = p.loops.addBreak(at)
	} else {
		err = p.loops.addContinue(at)
	}
	if err != nil {
		p.fail(err.Error())
	}
}

func (p *Parser) parseReturn() {
	p.nextToken()
	switch p.curToken.Type {
	case TokenNewline, TokenRBrace, TokenEOF:
		p.endStatement(false)
		p.emit(bytecode.OpReturnNoVal)
		return
	}
	p.parseExpr()
	p.endStatement(true)
	p.emit(bytecode.OpReturn)
}

// ---------------------------------------------------------------------------
// Simple statements: assignments, calls, increments, deletes
// ---------------------------------------------------------------------------

var opAssignOps = map[TokenType]bytecode.Opcode{
	TokenAddEq: bytecode.OpAdd,
	TokenSubEq: bytecode.OpSub,
	TokenMulEq: bytecode.OpMul,
	TokenDivEq: bytecode.OpDiv,
	TokenModEq: bytecode.OpMod,
	TokenAndEq: bytecode.OpBitAnd,
	TokenOrEq:  bytecode.OpBitOr,
}

func incrOp(t TokenType) bytecode.Opcode {
	if t == TokenIncr {
		return bytecode.OpIncr
	}
	return bytecode.OpDecr
}

// parseSimpleStatements compiles a comma separated, possibly empty list of
// simple statements ending before closer.
func (p *Parser) parseSimpleStatements(closer TokenType) {
	if !p.curTokenIs(closer) && !p.curTokenIs(TokenComma) {
		p.parseSimpleStatement()
	}
	p.parseMoreSimpleStatements()
}

func (p *Parser) parseMoreSimpleStatements() {
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		p.parseSimpleStatement()
	}
}

// parseSimpleStatement reports whether the statement ended with an
// expression.
func (p *Parser) parseSimpleStatement() bool {
	switch p.curToken.Type {
	case TokenSymbol:
		sym := p.curToken.Sym
		p.nextToken()
		return p.parseSymbolStatement(sym)

	case TokenDelete:
		p.nextToken()
		if !p.curTokenIs(TokenSymbol) {
			p.syntaxError(TokenSymbol)
		}
		sym := p.curToken.Sym
		p.nextToken()
		if !p.curTokenIs(TokenLBracket) {
			p.syntaxError(TokenLBracket)
		}
		n := p.parseArrayTarget(sym, false)
		p.emitOpImm(bytecode.OpArrayDelete, n)
		return false

	case TokenIncr, TokenDecr:
		op := incrOp(p.curToken.Type)
		p.nextToken()
		if !p.curTokenIs(TokenSymbol) {
			p.syntaxError(TokenSymbol)
		}
		sym := p.curToken.Sym
		p.nextToken()
		if p.curTokenIs(TokenLBracket) {
			n := p.parseArrayTarget(sym, true)
			p.emitArrayUpdate(op, false, n)
			return false
		}
		p.emitOpSym(bytecode.OpPushSym, sym)
		p.emit(op)
		p.emitOpSym(bytecode.OpAssign, sym)
		return false
	}
	p.syntaxError(TokenSymbol, TokenDelete, TokenIncr, TokenDecr)
	return false
}

// parseSymbolStatement compiles a simple statement whose leading symbol has
// been consumed.
func (p *Parser) parseSymbolStatement(sym *symtab.Symbol) bool {
	t := p.curToken.Type
	if op, ok := opAssignOps[t]; ok {
		p.emitOpSym(bytecode.OpPushSym, sym)
		p.nextToken()
		p.parseExpr()
		p.emit(op)
		p.emitOpSym(bytecode.OpAssign, sym)
		return true
	}

	switch t {
	case TokenAssign:
		p.nextToken()
		p.parseExpr()
		p.emitOpSym(bytecode.OpAssign, sym)
		return true

	case TokenLParen:
		p.nextToken()
		n := p.parseArgList(TokenRParen)
		p.expect(TokenRParen)
		p.emitCall(sym, n)
		return false

	case TokenIncr, TokenDecr:
		p.nextToken()
		p.emitOpSym(bytecode.OpPushSym, sym)
		p.emit(incrOp(t))
		p.emitOpSym(bytecode.OpAssign, sym)
		return false

	case TokenLBracket:
		n := p.parseArrayTarget(sym, true)
		t = p.curToken.Type
		if op, ok := opAssignOps[t]; ok {
			p.nextToken()
			p.parseExpr()
			p.emitArrayUpdate(op, true, n)
			return true
		}
		switch t {
		case TokenAssign:
			p.nextToken()
			p.parseExpr()
			p.emitOpImm(bytecode.OpArrayAssign, n)
			return true
		case TokenIncr, TokenDecr:
			p.nextToken()
			p.emitArrayUpdate(incrOp(t), false, n)
			return false
		}
	}
	p.syntaxError()
	return false
}

// parseArrayTarget compiles the array operand of an element store or
// delete: the array held by sym, dereferenced by every bracketed key list
// but the last. It returns the number of keys in the last list, which
// belongs to the caller's instruction. create makes an unset variable hold
// a new empty array.
func (p *Parser) parseArrayTarget(sym *symtab.Symbol, create bool) int {
	p.emitOpSym(bytecode.OpPushArraySym, sym)
	if create {
		p.emitImm(1)
	} else {
		p.emitImm(0)
	}

	p.expect(TokenLBracket)
	n := p.parseArgList(TokenRBracket)
	p.expect(TokenRBracket)
	for p.curTokenIs(TokenLBracket) {
		p.emitOpImm(bytecode.OpArrayRef, n)
		p.nextToken()
		n = p.parseArgList(TokenRBracket)
		p.expect(TokenRBracket)
	}
	return n
}

// parseArgList compiles a comma separated, possibly empty expression list
// ending before closer and returns its length.
func (p *Parser) parseArgList(closer TokenType) int {
	n := 0
	if !p.curTokenIs(closer) && !p.curTokenIs(TokenComma) {
		p.parseExpr()
		n = 1
	}
	for p.curTokenIs(TokenComma) {
		p.nextToken()
		p.parseExpr()
		n++
	}
	return n
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Binding strength of binary operators, loosest first.
const (
	precOr = iota + 1
	precAnd
	precBitOr
	precBitAnd
	precCompare
	precSum
	precProduct
)

type binaryOp struct {
	prec int
	op   bytecode.Opcode
}

var binaryOps = map[TokenType]binaryOp{
	TokenOr:      {precOr, bytecode.OpOr},
	TokenAnd:     {precAnd, bytecode.OpAnd},
	TokenBitOr:   {precBitOr, bytecode.OpBitOr},
	TokenBitAnd:  {precBitAnd, bytecode.OpBitAnd},
	TokenGT:      {precCompare, bytecode.OpGT},
	TokenGE:      {precCompare, bytecode.OpGE},
	TokenLT:      {precCompare, bytecode.OpLT},
	TokenLE:      {precCompare, bytecode.OpLE},
	TokenEQ:      {precCompare, bytecode.OpEQ},
	TokenNE:      {precCompare, bytecode.OpNE},
	TokenIn:      {precCompare, bytecode.OpInArray},
	TokenPlus:    {precSum, bytecode.OpAdd},
	TokenMinus:   {precSum, bytecode.OpSub},
	TokenStar:    {precProduct, bytecode.OpMul},
	TokenSlash:   {precProduct, bytecode.OpDiv},
	TokenPercent: {precProduct, bytecode.OpMod},
}

// startsOperand reports whether t can begin an operand. After a complete
// operand such a token starts the next piece of a concatenation.
func startsOperand(t TokenType) bool {
	switch t {
	case TokenNumber, TokenString, TokenSymbol, TokenArgLookup,
		TokenLParen, TokenNot, TokenIncr, TokenDecr:
		return true
	}
	return false
}

// parseExpr compiles an expression: one or more operands written side by
// side, which concatenates them.
func (p *Parser) parseExpr() {
	p.enter()
	defer p.leave()

	p.parseNumExpr()
	for startsOperand(p.curToken.Type) {
		p.parseNumExpr()
		p.emit(bytecode.OpConcat)
	}
}

// parseNumExpr compiles an expression without concatenation.
func (p *Parser) parseNumExpr() {
	p.parseBinary(precOr)
}

func (p *Parser) parseBinary(minPrec int) {
	p.parseUnary()
	for {
		t := p.curToken.Type
		b, ok := binaryOps[t]
		if !ok || b.prec < minPrec {
			return
		}
		p.nextToken()

		switch t {
		case TokenAnd, TokenOr:
			// Short circuit: the left value is kept as the result when
			// it decides the outcome.
			branch := bytecode.OpBranchFalse
			if t == TokenOr {
				branch = bytecode.OpBranchTrue
			}
			p.emit(bytecode.OpDup)
			skip := p.emitBranch(branch)
			p.parseBinary(b.prec + 1)
			p.emit(b.op)
			p.patchHere(skip)
		default:
			p.parseBinary(b.prec + 1)
			p.emit(b.op)
		}
	}
}

func (p *Parser) parseUnary() {
	p.enter()
	defer p.leave()

	switch p.curToken.Type {
	case TokenMinus:
		p.nextToken()
		p.parseUnary()
		p.emit(bytecode.OpNegate)
	case TokenNot:
		p.nextToken()
		p.parseUnary()
		p.emit(bytecode.OpNot)
	default:
		p.parsePower()
	}
}

// parsePower compiles exponentiation, which groups to the right.
func (p *Parser) parsePower() {
	p.parsePostfix()
	if p.curTokenIs(TokenPow) {
		p.nextToken()
		p.parseUnary()
		p.emit(bytecode.OpPower)
	}
}

// parsePostfix compiles an operand followed by any number of bracketed key
// lists.
func (p *Parser) parsePostfix() {
	p.parsePrimary()
	for p.curTokenIs(TokenLBracket) {
		p.nextToken()
		n := p.parseArgList(TokenRBracket)
		p.expect(TokenRBracket)
		p.emitOpImm(bytecode.OpArrayRef, n)
	}
}

func (p *Parser) parsePrimary() {
	tok := p.curToken
	switch tok.Type {
	case TokenNumber, TokenString:
		p.nextToken()
		p.emitOpSym(bytecode.OpPushSym, tok.Sym)

	case TokenSymbol:
		p.nextToken()
		switch t := p.curToken.Type; t {
		case TokenLParen:
			p.nextToken()
			n := p.parseArgList(TokenRParen)
			p.expect(TokenRParen)
			p.emitCall(tok.Sym, n)
			p.emit(bytecode.OpFetchRetVal)
		case TokenIncr, TokenDecr:
			// x++ yields the old value.
			p.nextToken()
			p.emitOpSym(bytecode.OpPushSym, tok.Sym)
			p.emit(bytecode.OpDup)
			p.emit(incrOp(t))
			p.emitOpSym(bytecode.OpAssign, tok.Sym)
		default:
			p.emitOpSym(bytecode.OpPushSym, tok.Sym)
		}

	case TokenIncr, TokenDecr:
		// ++x yields the new value.
		p.nextToken()
		if !p.curTokenIs(TokenSymbol) {
			p.syntaxError(TokenSymbol)
		}
		sym := p.curToken.Sym
		p.nextToken()
		p.emitOpSym(bytecode.OpPushSym, sym)
		p.emit(incrOp(tok.Type))
		p.emit(bytecode.OpDup)
		p.emitOpSym(bytecode.OpAssign, sym)

	case TokenLParen:
		p.nextToken()
		p.parseExpr()
		p.expect(TokenRParen)

	case TokenArgLookup:
		p.nextToken()
		if !p.curTokenIs(TokenLBracket) {
			p.emit(bytecode.OpPushArgArray)
			return
		}
		p.nextToken()
		if p.curTokenIs(TokenRBracket) {
			p.nextToken()
			p.emit(bytecode.OpPushArgCount)
			return
		}
		p.parseNumExpr()
		p.expect(TokenRBracket)
		p.emit(bytecode.OpPushArg)

	default:
		p.syntaxError()
	}
}
