package expr

import "strings"

// Grammar (case- and whitespace-insensitive):
//
//	expression  := [ "with" context ":" ] body
//	context     := "{" table { "," ( "default" ":" literal | "interval" ":" bool ) } "}"
//	body        := disjunction
//	disjunction := conjunction { "or" conjunction }
//	conjunction := unary { "and" unary }
//	unary       := "not" unary | "if" disjunction "then" disjunction [ "endif" ] | comparison
//	comparison  := additive [ relop additive | "in" "{" literal { "," literal } "}" ]
//	additive    := term { ( "+" | "-" ) term }
//	term        := primary { ( "*" | "/" ) primary }
//	primary     := "(" disjunction ")" | ref | code | number | string | null
//	             | "isnull" "(" additive ")" | "match" "(" additive "," string ")"
//	             | "SUM" "(" additive ")"
//	ref         := "{" [ table "," ] ( code | code "-" digits | "(" code { "," code } ")" ) "}" [ annotation ]
//	             | code [ ":" code ] [ annotation ]
//	annotation  := "[" "get" label "]"

var primaryExpected = []string{
	"(", "column reference", "code", "number", "string", "column code", "null",
	"isnull", "match", "SUM", "not", "if",
}

var relops = map[string]CompareOp{
	"=":  OpEq,
	"!=": OpNe,
	"<>": OpNe,
	"<":  OpLt,
	"<=": OpLe,
	">":  OpGt,
	">=": OpGe,
}

// Parse parses a rule expression. It returns *ParseError on invalid input.
func Parse(src string) (*Expression, error) {
	p := &parser{lx: newLexer(src)}

	var ctx *Context
	if p.isKeyword("with") {
		c, err := p.parseContext()
		if err != nil {
			return nil, err
		}
		ctx = c
	}

	body, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Kind != TokEOF {
		return nil, newParseError(tok, "and", "or", TokEOF.String())
	}

	return &Expression{Source: src, Context: ctx, Body: body}, nil
}

// parser is a recursive-descent parser over tokens pulled lazily from the
// lexer's cursor; buf holds the lookahead.
type parser struct {
	lx  *lexer
	buf []Token
}

func (p *parser) peek() Token {
	return p.peekAt(0)
}

func (p *parser) peekAt(n int) Token {
	for len(p.buf) <= n {
		p.buf = append(p.buf, p.lx.next())
	}
	return p.buf[n]
}

func (p *parser) advance() Token {
	tok := p.peek()
	if tok.Kind != TokEOF {
		p.buf = p.buf[1:]
	}
	return tok
}

func (p *parser) isKeyword(word string) bool {
	tok := p.peek()
	return tok.Kind == TokIdent && tok.Fold == word
}

func (p *parser) isOp(op string) bool {
	tok := p.peek()
	return tok.Kind == TokOp && tok.Text == op
}

func (p *parser) expect(kind TokenKind) (Token, error) {
	tok := p.peek()
	if tok.Kind != kind {
		return Token{}, newParseError(tok, kind.String())
	}
	return p.advance(), nil
}

func (p *parser) expectKeyword(word string) (Token, error) {
	if !p.isKeyword(word) {
		return Token{}, newParseError(p.peek(), word)
	}
	return p.advance(), nil
}

func (p *parser) parseContext() (*Context, error) {
	p.advance() // with
	if _, err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	table := p.peek()
	if table.Kind != TokIdent {
		return nil, newParseError(table, "table id")
	}
	p.advance()
	ctx := &Context{Table: table.Text}

	for p.peek().Kind == TokComma {
		p.advance()
		key := p.peek()
		if key.Kind != TokIdent || (key.Fold != "default" && key.Fold != "interval") {
			return nil, newParseError(key, "default", "interval")
		}
		p.advance()
		if _, err := p.expect(TokColon); err != nil {
			return nil, err
		}
		if key.Fold == "default" {
			lit, err := p.parseContextLiteral()
			if err != nil {
				return nil, err
			}
			ctx.Default = lit
			continue
		}
		val := p.peek()
		if val.Kind != TokIdent || (val.Fold != "true" && val.Fold != "false") {
			return nil, newParseError(val, "true", "false")
		}
		p.advance()
		ctx.Interval = val.Fold == "true"
		ctx.HasInterval = true
	}

	if _, err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokColon); err != nil {
		return nil, err
	}
	return ctx, nil
}

func (p *parser) parseContextLiteral() (*Literal, error) {
	tok := p.peek()
	switch {
	case tok.Kind == TokNumber:
		p.advance()
		return &Literal{Kind: LitNumber, Text: tok.Text, At: tok.Pos}, nil
	case tok.Kind == TokOp && tok.Text == "-" && p.peekAt(1).Kind == TokNumber:
		p.advance()
		num := p.advance()
		return &Literal{Kind: LitNumber, Text: "-" + num.Text, At: tok.Pos}, nil
	case tok.Kind == TokString:
		p.advance()
		return stringLiteral(tok), nil
	case tok.Kind == TokIdent && (tok.Fold == "null" || tok.Fold == "empty"):
		p.advance()
		return &Literal{Kind: LitNull, At: tok.Pos}, nil
	}
	return nil, newParseError(tok, "null", "number", "string")
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Logic{Op: OpOr, Left: left, Right: right, At: left.Pos()}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Logic{Op: OpAnd, Left: left, Right: right, At: left.Pos()}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	switch {
	case p.isKeyword("not"):
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand, At: tok.Pos}, nil
	case p.isKeyword("if"):
		return p.parseConditional()
	}
	return p.parseComparison()
}

func (p *parser) parseConditional() (Node, error) {
	tok := p.advance() // if
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("then"); err != nil {
		return nil, err
	}
	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("endif") {
		p.advance()
	}
	return &Conditional{Cond: cond, Then: then, At: tok.Pos}, nil
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	if p.isKeyword("in") {
		return p.parseIn(left)
	}

	tok := p.peek()
	if tok.Kind != TokOp {
		return left, nil
	}
	op, ok := relops[tok.Text]
	if !ok {
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &Compare{Op: op, Left: left, Right: right, At: left.Pos()}, nil
}

func (p *parser) parseIn(operand Node) (Node, error) {
	p.advance() // in
	if _, err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	var set []Node
	for {
		tok := p.peek()
		elem, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		switch elem.(type) {
		case *Literal, *CodeLiteral:
		default:
			return nil, newParseError(tok, "code", "number", "string", "null")
		}
		set = append(set, elem)
		if p.peek().Kind != TokComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return &In{Operand: operand, Set: set, At: operand.Pos()}, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := ArithOp(p.advance().Text)
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Arith{Op: op, Left: left, Right: right, At: left.Pos()}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := ArithOp(p.advance().Text)
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &Arith{Op: op, Left: left, Right: right, At: left.Pos()}
	}
	return left, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.peek()

	switch tok.Kind {
	case TokLParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	case TokRef:
		p.advance()
		ref := refNode(tok)
		p.parseAnnotation(ref)
		return ref, nil

	case TokCode:
		p.advance()
		return codeLiteral(tok), nil

	case TokNumber:
		p.advance()
		return &Literal{Kind: LitNumber, Text: tok.Text, At: tok.Pos}, nil

	case TokString:
		p.advance()
		return stringLiteral(tok), nil

	case TokOp:
		if tok.Text == "-" && p.peekAt(1).Kind == TokNumber {
			p.advance()
			num := p.advance()
			return &Literal{Kind: LitNumber, Text: "-" + num.Text, At: tok.Pos}, nil
		}

	case TokIdent:
		switch tok.Fold {
		case "isnull":
			return p.parseCall(FuncIsNull)
		case "match":
			return p.parseMatch()
		case "sum":
			return p.parseCall(FuncSum)
		case "null", "empty":
			p.advance()
			return &Literal{Kind: LitNull, At: tok.Pos}, nil
		case "true", "false":
			p.advance()
			return &Literal{Kind: LitBool, Text: tok.Fold, At: tok.Pos}, nil
		}
		if isColumnCode(tok.Text) {
			return p.parseBareRef()
		}
	}

	return nil, newParseError(tok, primaryExpected...)
}

// parseCall parses a single-argument built-in: isnull(x) or SUM(range).
func (p *parser) parseCall(name string) (Node, error) {
	tok := p.advance()
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	arg, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	return &Call{Func: name, Args: []Node{arg}, At: tok.Pos}, nil
}

func (p *parser) parseMatch() (Node, error) {
	tok := p.advance()
	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	arg, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokComma); err != nil {
		return nil, err
	}
	pat, err := p.expect(TokString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}
	pattern := &Literal{Kind: LitString, Text: pat.Text, At: pat.Pos}
	return &Call{Func: FuncMatch, Args: []Node{arg, pattern}, At: tok.Pos}, nil
}

// refNode builds the AST node for a lexed brace reference.
func refNode(tok Token) Node {
	ref, _ := scanRef([]byte(tok.Text), 0)
	switch {
	case ref.Tuple:
		return &TupleRef{Codes: ref.Codes, Table: ref.Table, At: tok.Pos}
	case ref.To != "":
		return &RangeRef{From: ref.From, To: ref.To, Table: ref.Table, At: tok.Pos}
	}
	return &ColumnRef{Code: ref.From, Table: ref.Table, At: tok.Pos}
}

func codeLiteral(tok Token) *CodeLiteral {
	ns, code, _ := scanBracket([]byte(tok.Text), 0, ':')
	return &CodeLiteral{Namespace: ns, Code: code, At: tok.Pos}
}

func (p *parser) parseBareRef() (Node, error) {
	tok := p.advance()
	var ref Node
	if p.peek().Kind == TokColon {
		p.advance()
		end := p.peek()
		if end.Kind != TokIdent || !isColumnCode(end.Text) {
			return nil, newParseError(end, "column code")
		}
		p.advance()
		ref = &RangeRef{From: tok.Text, To: end.Text, At: tok.Pos}
	} else {
		ref = &ColumnRef{Code: tok.Text, At: tok.Pos}
	}
	p.parseAnnotation(ref)
	return ref, nil
}

// parseAnnotation consumes an optional [get LABEL] suffix.
func (p *parser) parseAnnotation(ref Node) {
	tok := p.peek()
	if tok.Kind != TokAnnotation {
		return
	}
	p.advance()
	_, label, _ := scanBracket([]byte(tok.Text), 0, ' ')
	switch r := ref.(type) {
	case *ColumnRef:
		r.Label = label
	case *RangeRef:
		r.Label = label
	case *TupleRef:
		r.Label = label
	}
}

func stringLiteral(tok Token) *Literal {
	if strings.EqualFold(tok.Text, "null") {
		return &Literal{Kind: LitNull, At: tok.Pos}
	}
	return &Literal{Kind: LitString, Text: tok.Text, At: tok.Pos}
}

// isColumnCode reports whether s looks like a column code: c followed by digits.
func isColumnCode(s string) bool {
	if len(s) < 2 || (s[0] != 'c' && s[0] != 'C') {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
