package compute

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Evaluate parses and computes an arithmetic expression. Supported: the
// operators + - * / % ^ (power, right associative), parentheses, unary
// minus, the constants pi and e, and the functions listed in funcTable.
// Full-width operator characters are normalized first.
func Evaluate(expr string) (float64, error) {
	p := &parser{toks: tokenize(normalizeExpr(expr))}
	v, err := p.parseExpr(0)
	if err != nil {
		return 0, err
	}
	if !p.done() {
		return 0, fmt.Errorf("unexpected %q", p.peek().text)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not finite")
	}
	return v, nil
}

var fullWidth = strings.NewReplacer(
	"×", "*", "÷", "/", "（", "(", "）", ")", "，", ",",
	"＋", "+", "－", "-", "＝", "=", "　", " ",
)

func normalizeExpr(s string) string {
	s = fullWidth.Replace(s)
	s = strings.ReplaceAll(s, "**", "^")
	return strings.TrimSpace(s)
}

type tokKind int

const (
	tokNumber tokKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokEnd
	tokBad
)

type token struct {
	kind tokKind
	text string
	num  float64
}

func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			// scientific notation tail
			if j < len(s) && (s[j] == 'e' || s[j] == 'E') {
				k := j + 1
				if k < len(s) && (s[k] == '+' || s[k] == '-') {
					k++
				}
				if k < len(s) && s[k] >= '0' && s[k] <= '9' {
					for k < len(s) && s[k] >= '0' && s[k] <= '9' {
						k++
					}
					j = k
				}
			}
			n, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				toks = append(toks, token{kind: tokBad, text: s[i:j]})
			} else {
				toks = append(toks, token{kind: tokNumber, num: n, text: s[i:j]})
			}
			i = j
		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: strings.ToLower(s[i:j])})
			i = j
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ","})
			i++
		case strings.ContainsRune("+-*/%^", rune(c)):
			toks = append(toks, token{kind: tokOp, text: string(c)})
			i++
		default:
			toks = append(toks, token{kind: tokBad, text: string(c)})
			i++
		}
	}
	return append(toks, token{kind: tokEnd})
}

func isIdentByte(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) && c < 0x80
}

var binPrec = map[string]int{
	"+": 1, "-": 1,
	"*": 2, "/": 2, "%": 2,
	"^": 3,
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

var funcTable = map[string]func(args []float64) (float64, error){
	"abs":   unary(math.Abs),
	"sqrt":  unary(math.Sqrt),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"exp":   unary(math.Exp),
	"ln":    unary(math.Log),
	"log":   unary(math.Log10),
	"log2":  unary(math.Log2),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"round": unary(math.Round),
	"pow": func(args []float64) (float64, error) {
		if len(args) != 2 {
			return 0, fmt.Errorf("pow expects 2 arguments")
		}
		return math.Pow(args[0], args[1]), nil
	},
	"min": variadic(math.Min),
	"max": variadic(math.Max),
}

func unary(f func(float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return f(args[0]), nil
	}
}

func variadic(f func(float64, float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) == 0 {
			return 0, fmt.Errorf("expected at least 1 argument")
		}
		v := args[0]
		for _, a := range args[1:] {
			v = f(v, a)
		}
		return v, nil
	}
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEnd {
		p.pos++
	}
	return t
}

func (p *parser) done() bool { return p.peek().kind == tokEnd }

// parseExpr implements precedence climbing over binPrec.
func (p *parser) parseExpr(minPrec int) (float64, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp {
			break
		}
		prec := binPrec[t.text]
		if prec < minPrec {
			break
		}
		p.next()
		nextMin := prec + 1
		if t.text == "^" { // right associative
			nextMin = prec
		}
		right, err := p.parseExpr(nextMin)
		if err != nil {
			return 0, err
		}
		left, err = apply(t.text, left, right)
		if err != nil {
			return 0, err
		}
	}
	return left, nil
}

func (p *parser) parsePrimary() (float64, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return t.num, nil
	case tokOp:
		switch t.text {
		case "-":
			v, err := p.parsePrimary()
			if err != nil {
				return 0, err
			}
			return -v, nil
		case "+":
			return p.parsePrimary()
		}
		return 0, fmt.Errorf("unexpected operator %q", t.text)
	case tokLParen:
		v, err := p.parseExpr(0)
		if err != nil {
			return 0, err
		}
		if p.next().kind != tokRParen {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		return v, nil
	case tokIdent:
		if c, ok := constants[t.text]; ok {
			return c, nil
		}
		f, ok := funcTable[t.text]
		if !ok {
			return 0, fmt.Errorf("unknown name %q", t.text)
		}
		if p.next().kind != tokLParen {
			return 0, fmt.Errorf("%s must be called with parentheses", t.text)
		}
		var args []float64
		if p.peek().kind != tokRParen {
			for {
				a, err := p.parseExpr(0)
				if err != nil {
					return 0, err
				}
				args = append(args, a)
				if p.peek().kind != tokComma {
					break
				}
				p.next()
			}
		}
		if p.next().kind != tokRParen {
			return 0, fmt.Errorf("missing closing parenthesis in %s call", t.text)
		}
		return f(args)
	case tokEnd:
		return 0, fmt.Errorf("unexpected end of expression")
	default:
		return 0, fmt.Errorf("unexpected %q", t.text)
	}
}

func apply(op string, a, b float64) (float64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return math.Mod(a, b), nil
	case "^":
		return math.Pow(a, b), nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}
