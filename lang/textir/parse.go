// Package textir implements a human-writable/readable textual form of
// ast.Program, used by the codegen test suite and the zilgen CLI's
// compile/disasm commands in lieu of the externally-owned ZIL lexer and
// parser this module assumes exist upstream: a single-pass scanner-backed
// reader paired with a symmetrical serializer, using a nested s-expression
// surface close to ZIL's own angle-bracket syntax since what it reads and
// writes is the pre-compile AST rather than already-linearized bytecode.
package textir

import (
	"fmt"

	"github.com/zilgen/zilgen/lang/ast"
)

// Parse reads one textual-IR program and returns its AST.
func Parse(src []byte) (*ast.Program, error) {
	p := &parser{lx: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	prog := &ast.Program{}
	for p.tok.kind != tokEOF {
		if err := p.parseTopForm(prog); err != nil {
			return nil, err
		}
	}
	return prog, nil
}

type parser struct {
	lx  *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expect(k tokenKind, what string) error {
	if p.tok.kind != k {
		return fmt.Errorf("textir: expected %s at offset %d, got %v", what, p.tok.pos, p.tok)
	}
	return p.advance()
}

func (p *parser) expectIdent(name string) error {
	if p.tok.kind != tokIdent || p.tok.text != name {
		return fmt.Errorf("textir: expected %q at offset %d, got %v", name, p.tok.pos, p.tok)
	}
	return p.advance()
}

// parseActivation consumes an optional "# NAME" activation-name suffix
// shared by ROUTINE/PROG/BIND/REPEAT/DO/MAP-*.
func (p *parser) parseActivation() (string, error) {
	if p.tok.kind != tokHash {
		return "", nil
	}
	if err := p.advance(); err != nil {
		return "", err
	}
	if p.tok.kind != tokIdent {
		return "", fmt.Errorf("textir: expected activation name at offset %d", p.tok.pos)
	}
	name := p.tok.text
	return name, p.advance()
}

func (p *parser) parseTopForm(prog *ast.Program) error {
	if err := p.expect(tokLt, "'<'"); err != nil {
		return err
	}
	if p.tok.kind != tokIdent {
		return fmt.Errorf("textir: expected top-level form keyword at offset %d", p.tok.pos)
	}
	kw := p.tok.text
	switch kw {
	case "ROUTINE":
		r, err := p.parseRoutine()
		if err != nil {
			return err
		}
		prog.Routines = append(prog.Routines, r)
	case "GLOBAL":
		g, err := p.parseGlobal()
		if err != nil {
			return err
		}
		prog.Globals = append(prog.Globals, g)
	case "CONSTANT":
		c, err := p.parseConstant()
		if err != nil {
			return err
		}
		prog.Constants = append(prog.Constants, c)
	case "OBJECT":
		o, err := p.parseObject()
		if err != nil {
			return err
		}
		prog.Objects = append(prog.Objects, o)
	default:
		return fmt.Errorf("textir: unknown top-level form %q at offset %d", kw, p.tok.pos)
	}
	return nil
}

func (p *parser) parseRoutine() (*ast.Routine, error) {
	if err := p.advance(); err != nil { // consume ROUTINE
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, fmt.Errorf("textir: expected routine name at offset %d", p.tok.pos)
	}
	r := &ast.Routine{Name: p.tok.text}
	if err := p.advance(); err != nil {
		return nil, err
	}
	act, err := p.parseActivation()
	if err != nil {
		return nil, err
	}
	r.Activation = act

	if err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	seenOptional := false
	for p.tok.kind != tokRParen {
		if p.tok.kind == tokIdent && p.tok.text == "OPTIONAL" {
			seenOptional = true
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.tok.kind == tokIdent && p.tok.text == "AUX" {
			break
		}
		if p.tok.kind == tokLParen {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent {
				return nil, fmt.Errorf("textir: expected parameter name at offset %d", p.tok.pos)
			}
			name := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			r.Optional = append(r.Optional, ast.Param{Name: name, Default: def})
			continue
		}
		if p.tok.kind != tokIdent {
			return nil, fmt.Errorf("textir: expected parameter at offset %d", p.tok.pos)
		}
		name := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if seenOptional {
			r.Optional = append(r.Optional, ast.Param{Name: name})
		} else {
			r.Required = append(r.Required, name)
		}
	}
	if p.tok.kind == tokIdent && p.tok.text == "AUX" {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for p.tok.kind != tokRParen {
			if p.tok.kind == tokLParen {
				if err := p.advance(); err != nil {
					return nil, err
				}
				if p.tok.kind != tokIdent {
					return nil, fmt.Errorf("textir: expected aux name at offset %d", p.tok.pos)
				}
				name := p.tok.text
				if err := p.advance(); err != nil {
					return nil, err
				}
				def, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.expect(tokRParen, "')'"); err != nil {
					return nil, err
				}
				r.Aux = append(r.Aux, ast.Param{Name: name, Default: def})
				continue
			}
			if p.tok.kind != tokIdent {
				return nil, fmt.Errorf("textir: expected aux parameter at offset %d", p.tok.pos)
			}
			r.Aux = append(r.Aux, ast.Param{Name: p.tok.text})
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	for p.tok.kind != tokGt {
		s, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		r.Body = append(r.Body, s)
	}
	return r, p.advance()
}

func (p *parser) parseGlobal() (*ast.Global, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, fmt.Errorf("textir: expected global name at offset %d", p.tok.pos)
	}
	g := &ast.Global{Name: p.tok.text}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokGt {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		g.Value = v
	}
	return g, p.expect(tokGt, "'>'")
}

func (p *parser) parseConstant() (*ast.Constant, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, fmt.Errorf("textir: expected constant name at offset %d", p.tok.pos)
	}
	c := &ast.Constant{Name: p.tok.text}
	if err := p.advance(); err != nil {
		return nil, err
	}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	c.Value = v
	return c, p.expect(tokGt, "'>'")
}

func (p *parser) parseObject() (*ast.Object, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, fmt.Errorf("textir: expected object name at offset %d", p.tok.pos)
	}
	o := &ast.Object{Name: p.tok.text}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return o, p.expect(tokGt, "'>'")
}

// parseExpr parses one statement/expression position (spec grammar's Expr).
func (p *parser) parseExpr() (ast.Node, error) {
	switch p.tok.kind {
	case tokNumber:
		n := &ast.Number{Value: p.tok.num}
		return n, p.advance()
	case tokString:
		n := &ast.String{Value: p.tok.text}
		return n, p.advance()
	case tokChar:
		n := &ast.Char{Value: byte(p.tok.num)}
		return n, p.advance()
	case tokDot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokIdent {
			return nil, fmt.Errorf("textir: expected local name at offset %d", p.tok.pos)
		}
		n := &ast.LocalVar{Name: p.tok.text}
		return n, p.advance()
	case tokComma:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokIdent {
			return nil, fmt.Errorf("textir: expected global name at offset %d", p.tok.pos)
		}
		n := &ast.GlobalVar{Name: p.tok.text}
		return n, p.advance()
	case tokIdent:
		n := &ast.Atom{Name: p.tok.text}
		return n, p.advance()
	case tokLt:
		return p.parseAngleExpr()
	default:
		return nil, fmt.Errorf("textir: unexpected token at offset %d", p.tok.pos)
	}
}

// parseAngleExpr parses any "<...>" form: COND, PROG/BIND/REPEAT/DO/MAP-*,
// TABLE/LTABLE/ITABLE/PTABLE, or a general Form.
func (p *parser) parseAngleExpr() (ast.Node, error) {
	if err := p.advance(); err != nil { // consume '<'
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, fmt.Errorf("textir: expected form operator at offset %d", p.tok.pos)
	}
	op := p.tok.text
	switch op {
	case "COND":
		return p.parseCond()
	case "PROG", "BIND", "REPEAT":
		return p.parseProgLike(op)
	case "DO":
		return p.parseDo()
	case "MAP-CONTENTS", "MAP-DIRECTIONS":
		return p.parseMap(op)
	case "TABLE", "LTABLE", "ITABLE", "PTABLE":
		return p.parseTable(op)
	default:
		return p.parseForm(op)
	}
}

func (p *parser) parseForm(op string) (*ast.Form, error) {
	if err := p.advance(); err != nil { // consume operator ident
		return nil, err
	}
	f := &ast.Form{Op: op}
	act, err := p.parseActivation()
	if err != nil {
		return nil, err
	}
	f.Activation = act
	for p.tok.kind != tokGt {
		o, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		f.Operands = append(f.Operands, o)
	}
	return f, p.advance()
}

func (p *parser) parseCond() (*ast.Cond, error) {
	if err := p.advance(); err != nil { // consume COND
		return nil, err
	}
	c := &ast.Cond{}
	for p.tok.kind != tokGt {
		if err := p.expect(tokLParen, "'('"); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cl := ast.CondClause{Cond: cond}
		for p.tok.kind != tokRParen {
			a, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			cl.Actions = append(cl.Actions, a)
		}
		if err := p.advance(); err != nil { // consume ')'
			return nil, err
		}
		c.Clauses = append(c.Clauses, cl)
	}
	return c, p.advance()
}

var loopKindByName = map[string]ast.LoopKind{
	"PROG": ast.KindProg, "BIND": ast.KindBind, "REPEAT": ast.KindRepeat,
}

func (p *parser) parseProgLike(op string) (*ast.Repeat, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	r := &ast.Repeat{Kind: loopKindByName[op]}
	act, err := p.parseActivation()
	if err != nil {
		return nil, err
	}
	r.Activation = act
	if err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	for p.tok.kind != tokRParen {
		if p.tok.kind == tokLParen {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent {
				return nil, fmt.Errorf("textir: expected binding name at offset %d", p.tok.pos)
			}
			name := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			init, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(tokRParen, "')'"); err != nil {
				return nil, err
			}
			r.Bindings = append(r.Bindings, ast.Binding{Name: name, Initializer: init})
			continue
		}
		if p.tok.kind != tokIdent {
			return nil, fmt.Errorf("textir: expected binding at offset %d", p.tok.pos)
		}
		r.Bindings = append(r.Bindings, ast.Binding{Name: p.tok.text})
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.advance(); err != nil { // consume ')'
		return nil, err
	}
	body, err := p.parseBodyUntilGt()
	if err != nil {
		return nil, err
	}
	r.Body = body
	return r, p.advance()
}

func (p *parser) parseDo() (*ast.Repeat, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	r := &ast.Repeat{Kind: ast.KindDo}
	act, err := p.parseActivation()
	if err != nil {
		return nil, err
	}
	r.Activation = act
	if err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, fmt.Errorf("textir: expected DO variable at offset %d", p.tok.pos)
	}
	spec := &ast.DoSpec{Var: p.tok.text}
	if err := p.advance(); err != nil {
		return nil, err
	}
	start, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	spec.Start = start
	end, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	spec.End = end
	if p.tok.kind != tokRParen {
		step, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		spec.Step = step
	}
	if err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	r.Do = spec
	body, end2, err := p.parseBodyAndEnd()
	if err != nil {
		return nil, err
	}
	r.Body = body
	r.End = end2
	return r, p.advance()
}

func (p *parser) parseMap(op string) (*ast.Repeat, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	kind := ast.KindMapContents
	if op == "MAP-DIRECTIONS" {
		kind = ast.KindMapDirections
	}
	r := &ast.Repeat{Kind: kind}
	act, err := p.parseActivation()
	if err != nil {
		return nil, err
	}
	r.Activation = act
	if err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	if p.tok.kind != tokIdent {
		return nil, fmt.Errorf("textir: expected MAP variable at offset %d", p.tok.pos)
	}
	spec := &ast.MapSpec{Var: p.tok.text}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokIdent {
		spec.SecondVar = p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	target, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	spec.Target = target
	if err := p.expect(tokRParen, "')'"); err != nil {
		return nil, err
	}
	r.Map = spec
	body, end, err := p.parseBodyAndEnd()
	if err != nil {
		return nil, err
	}
	r.Body = body
	r.End = end
	return r, p.advance()
}

// parseBodyUntilGt parses statements up to the closing '>' (PROG/BIND/
// REPEAT never have a separate <END> clause).
func (p *parser) parseBodyUntilGt() ([]ast.Node, error) {
	var body []ast.Node
	for p.tok.kind != tokGt {
		s, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		body = append(body, s)
	}
	return body, nil
}

// parseBodyAndEnd parses DO/MAP-* bodies, which may end in a literal
// "<END ...>" terminal clause before the closing '>'.
func (p *parser) parseBodyAndEnd() ([]ast.Node, []ast.Node, error) {
	var body, end []ast.Node
	for p.tok.kind != tokGt {
		if p.tok.kind == tokLt {
			save := *p.lx
			saveTok := p.tok
			if err := p.advance(); err == nil && p.tok.kind == tokIdent && p.tok.text == "END" {
				if err := p.advance(); err != nil {
					return nil, nil, err
				}
				for p.tok.kind != tokGt {
					s, err := p.parseExpr()
					if err != nil {
						return nil, nil, err
					}
					end = append(end, s)
				}
				if err := p.advance(); err != nil { // consume END's '>'
					return nil, nil, err
				}
				continue
			}
			*p.lx = save
			p.tok = saveTok
		}
		s, err := p.parseExpr()
		if err != nil {
			return nil, nil, err
		}
		body = append(body, s)
	}
	return body, end, nil
}

var tableKindByName = map[string]ast.TableKind{
	"TABLE": ast.TableTABLE, "LTABLE": ast.TableLTABLE,
	"ITABLE": ast.TableITABLE, "PTABLE": ast.TablePTABLE,
}

func (p *parser) parseTable(op string) (*ast.Table, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	t := &ast.Table{Kind: tableKindByName[op]}
	for p.tok.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokIdent {
			return nil, fmt.Errorf("textir: expected table flag at offset %d", p.tok.pos)
		}
		switch p.tok.text {
		case "BYTE":
			t.Flags.Byte = true
		case "STRING":
			t.Flags.String = true
		case "LEXV":
			t.Flags.Lexv = true
		case "LENGTH":
			t.Flags.Length = true
		case "PURE":
			t.Flags.Pure = true
		default:
			return nil, fmt.Errorf("textir: unknown table flag %q at offset %d", p.tok.text, p.tok.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
	}
	if op == "ITABLE" {
		sz, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		t.Size = sz
	}
	for p.tok.kind != tokGt {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		t.Values = append(t.Values, v)
	}
	return t, p.advance()
}
