package expr

import (
	"fmt"
	"unicode/utf8"

	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
	"golang.org/x/text/cases"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokNumber
	TokString
	TokRef        // {c0010}, {c0020-0090}, {(c0010, c0020)}, {tB_01.01, c0020}
	TokCode       // [eba_CO:x3]
	TokAnnotation // [get ERI]
	TokLBrace
	TokRBrace
	TokLParen
	TokRParen
	TokLBracket
	TokRBracket
	TokComma
	TokColon
	TokOp
	TokIllegal
)

var tokenNames = map[TokenKind]string{
	TokEOF:        "end of expression",
	TokIdent:      "identifier",
	TokNumber:     "number",
	TokString:     "string",
	TokRef:        "column reference",
	TokCode:       "code",
	TokAnnotation: "annotation",
	TokLBrace:     "{",
	TokRBrace:     "}",
	TokLParen:     "(",
	TokRParen:     ")",
	TokLBracket:   "[",
	TokRBracket:   "]",
	TokComma:      ",",
	TokColon:      ":",
	TokOp:         "operator",
	TokIllegal:    "illegal character",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(k))
}

// Token is a lexical token with its byte offset in the source.
type Token struct {
	Kind TokenKind
	Text string
	// Fold is the case-folded text for identifiers, used for keyword matching.
	Fold string
	Pos  int
}

// describe renders the token the way it is reported in a ParseError.
func (t Token) describe() string {
	switch t.Kind {
	case TokEOF:
		return "end of expression"
	case TokString:
		return fmt.Sprintf("%q", t.Text)
	default:
		return t.Text
	}
}

const (
	whitespaceCode = iota
	refCode
	codeLiteralCode
	annotationCode
	doubleQuotedCode
	singleQuotedCode
	numberCode
	identCode
	lbraceCode
	rbraceCode
	lparenCode
	rparenCode
	lbracketCode
	rbracketCode
	commaCode
	colonCode
	operatorCode
)

var whitespaceMatcher = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
var refMatcher = parsly.NewToken(refCode, "Reference", &refMatch{})
var codeLiteralMatcher = parsly.NewToken(codeLiteralCode, "Code", &codeLiteralMatch{})
var annotationMatcher = parsly.NewToken(annotationCode, "Annotation", &annotationMatch{})
var doubleQuotedMatcher = parsly.NewToken(doubleQuotedCode, "DoubleQuote", matcher.NewBlock('"', '"', '\\'))
var singleQuotedMatcher = parsly.NewToken(singleQuotedCode, "SingleQuote", matcher.NewBlock('\'', '\'', '\\'))
var numberMatcher = parsly.NewToken(numberCode, "Number", &numberMatch{})
var identMatcher = parsly.NewToken(identCode, "Identifier", &identMatch{})
var lbraceMatcher = parsly.NewToken(lbraceCode, "{", matcher.NewByte('{'))
var rbraceMatcher = parsly.NewToken(rbraceCode, "}", matcher.NewByte('}'))
var lparenMatcher = parsly.NewToken(lparenCode, "(", matcher.NewByte('('))
var rparenMatcher = parsly.NewToken(rparenCode, ")", matcher.NewByte(')'))
var lbracketMatcher = parsly.NewToken(lbracketCode, "[", matcher.NewByte('['))
var rbracketMatcher = parsly.NewToken(rbracketCode, "]", matcher.NewByte(']'))
var commaMatcher = parsly.NewToken(commaCode, ",", matcher.NewByte(','))
var colonMatcher = parsly.NewToken(colonCode, ":", matcher.NewByte(':'))

// Two-byte operators come first so that <= is not read as <.
var operatorMatcher = parsly.NewToken(operatorCode, "Operator", matcher.NewFragments(
	[]byte("!="), []byte("<>"), []byte("<="), []byte(">="),
	[]byte("<"), []byte(">"), []byte("="),
	[]byte("+"), []byte("-"), []byte("*"), []byte("/"),
))

// lexCandidates is tried in order; composite tokens precede the single
// bytes they start with.
var lexCandidates = []*parsly.Token{
	refMatcher,
	codeLiteralMatcher,
	annotationMatcher,
	doubleQuotedMatcher,
	singleQuotedMatcher,
	numberMatcher,
	identMatcher,
	lbraceMatcher,
	rbraceMatcher,
	lparenMatcher,
	rparenMatcher,
	lbracketMatcher,
	rbracketMatcher,
	commaMatcher,
	colonMatcher,
	operatorMatcher,
}

var tokenKinds = map[int]TokenKind{
	refCode:          TokRef,
	codeLiteralCode:  TokCode,
	annotationCode:   TokAnnotation,
	doubleQuotedCode: TokString,
	singleQuotedCode: TokString,
	numberCode:       TokNumber,
	identCode:        TokIdent,
	lbraceCode:       TokLBrace,
	rbraceCode:       TokRBrace,
	lparenCode:       TokLParen,
	rparenCode:       TokRParen,
	lbracketCode:     TokLBracket,
	rbracketCode:     TokRBracket,
	commaCode:        TokComma,
	colonCode:        TokColon,
	operatorCode:     TokOp,
}

// lexer reads tokens from a parsly cursor on demand. After an illegal
// character it reports end of expression.
type lexer struct {
	cursor *parsly.Cursor
	fold   cases.Caser
	failed bool
}

func newLexer(src string) *lexer {
	return &lexer{cursor: parsly.NewCursor("", []byte(src), 0), fold: cases.Fold()}
}

func (lx *lexer) next() Token {
	cursor := lx.cursor
	cursor.MatchOne(whitespaceMatcher)
	if lx.failed || cursor.Pos >= cursor.InputSize {
		return Token{Kind: TokEOF, Pos: cursor.InputSize}
	}

	matched := cursor.MatchAny(lexCandidates...)
	switch matched.Code {
	case parsly.EOF:
		return Token{Kind: TokEOF, Pos: cursor.InputSize}
	case parsly.Invalid:
		lx.failed = true
		r, _ := utf8.DecodeRune(cursor.Input[cursor.Pos:])
		return Token{Kind: TokIllegal, Text: string(r), Pos: cursor.Pos}
	}

	text := matched.Text(cursor)
	tok := Token{Kind: tokenKinds[matched.Code], Text: text, Pos: matched.Offset}
	switch tok.Kind {
	case TokIdent:
		tok.Fold = lx.fold.String(text)
	case TokString:
		tok.Text = unquote(text)
	}
	return tok
}

// unquote strips the quotes of a string token. \" and \\ are unescaped;
// any other backslash sequence is kept verbatim so regex escapes like \d
// survive.
func unquote(text string) string {
	quote := text[0]
	body := text[1 : len(text)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) && (body[i+1] == quote || body[i+1] == '\\') {
			out = append(out, body[i+1])
			i++
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// braceRef is a decoded {...} column reference.
type braceRef struct {
	Table string
	From  string
	To    string // set for ranges
	Codes []string
	Tuple bool
}

// scanRef reads a brace reference starting at pos and returns its length,
// or 0 when the input there is not one. Context prefixes and in-sets also
// open with a brace; they fail here and lex as a plain {.
func scanRef(in []byte, pos int) (braceRef, int) {
	var ref braceRef
	if pos >= len(in) || in[pos] != '{' {
		return ref, 0
	}
	i := skipSpace(in, pos+1)

	if w := identLen(in, i); w > 0 && !isColumnCode(string(in[i:i+w])) {
		j := skipSpace(in, i+w)
		if j >= len(in) || in[j] != ',' {
			return ref, 0
		}
		ref.Table = string(in[i : i+w])
		i = skipSpace(in, j+1)
	}

	if i < len(in) && in[i] == '(' {
		i++
		for {
			i = skipSpace(in, i)
			w := identLen(in, i)
			if w == 0 || !isColumnCode(string(in[i:i+w])) {
				return ref, 0
			}
			ref.Codes = append(ref.Codes, string(in[i:i+w]))
			i = skipSpace(in, i+w)
			if i < len(in) && in[i] == ',' {
				i++
				continue
			}
			break
		}
		if i >= len(in) || in[i] != ')' {
			return ref, 0
		}
		ref.Tuple = true
		i++
	} else {
		w := identLen(in, i)
		if w == 0 || !isColumnCode(string(in[i:i+w])) {
			return ref, 0
		}
		ref.From = string(in[i : i+w])
		i = skipSpace(in, i+w)
		if i < len(in) && (in[i] == '-' || in[i] == ':') {
			i = skipSpace(in, i+1)
			// bare digits inherit the prefix letter of the range start
			if w := digitsLen(in, i); w > 0 {
				ref.To = ref.From[:1] + string(in[i:i+w])
				i += w
			} else if w := identLen(in, i); w > 0 && isColumnCode(string(in[i:i+w])) {
				ref.To = string(in[i : i+w])
				i += w
			} else {
				return ref, 0
			}
		}
	}

	i = skipSpace(in, i)
	if i >= len(in) || in[i] != '}' {
		return ref, 0
	}
	return ref, i + 1 - pos
}

type refMatch struct{}

func (m *refMatch) Match(cursor *parsly.Cursor) int {
	_, n := scanRef(cursor.Input, cursor.Pos)
	return n
}

// scanBracket reads [head:tail] or [head tail] and returns both parts and
// the length, or 0 when sep is not found where expected.
func scanBracket(in []byte, pos int, sep byte) (string, string, int) {
	if pos >= len(in) || in[pos] != '[' {
		return "", "", 0
	}
	i := skipSpace(in, pos+1)
	w := identLen(in, i)
	if w == 0 {
		return "", "", 0
	}
	head := string(in[i : i+w])
	i += w
	switch sep {
	case ':':
		i = skipSpace(in, i)
		if i >= len(in) || in[i] != ':' {
			return "", "", 0
		}
		i = skipSpace(in, i+1)
	default:
		j := skipSpace(in, i)
		if j == i {
			return "", "", 0
		}
		i = j
	}
	w = partLen(in, i)
	if w == 0 {
		return "", "", 0
	}
	tail := string(in[i : i+w])
	i = skipSpace(in, i+w)
	if i >= len(in) || in[i] != ']' {
		return "", "", 0
	}
	return head, tail, i + 1 - pos
}

type codeLiteralMatch struct{}

func (m *codeLiteralMatch) Match(cursor *parsly.Cursor) int {
	_, _, n := scanBracket(cursor.Input, cursor.Pos, ':')
	return n
}

type annotationMatch struct{}

func (m *annotationMatch) Match(cursor *parsly.Cursor) int {
	head, _, n := scanBracket(cursor.Input, cursor.Pos, ' ')
	if n == 0 || !equalFoldASCII(head, "get") {
		return 0
	}
	return n
}

type numberMatch struct{}

func (m *numberMatch) Match(cursor *parsly.Cursor) int {
	in := cursor.Input
	n := digitsLen(in, cursor.Pos)
	if n == 0 {
		return 0
	}
	end := cursor.Pos + n
	if end+1 < len(in) && in[end] == '.' && isDigit(in[end+1]) {
		n += 1 + digitsLen(in, end+1)
	}
	return n
}

// identMatch reads identifiers. Dots are identifier parts so that table
// ids like tB_01.02 and code-list namespaces lex as one token.
type identMatch struct{}

func (m *identMatch) Match(cursor *parsly.Cursor) int {
	return identLen(cursor.Input, cursor.Pos)
}

func identLen(in []byte, pos int) int {
	if pos >= len(in) || !isIdentStart(in[pos]) {
		return 0
	}
	return 1 + partLen(in, pos+1)
}

func partLen(in []byte, pos int) int {
	i := pos
	for i < len(in) && isIdentPart(in[i]) {
		i++
	}
	return i - pos
}

func digitsLen(in []byte, pos int) int {
	i := pos
	for i < len(in) && isDigit(in[i]) {
		i++
	}
	return i - pos
}

func skipSpace(in []byte, pos int) int {
	for pos < len(in) && isSpace(in[pos]) {
		pos++
	}
	return pos
}

func equalFoldASCII(s, word string) bool {
	if len(s) != len(word) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != word[i] {
			return false
		}
	}
	return true
}

func isIdentStart(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b == '_'
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || isDigit(b) || b == '.'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}
