package textir

import (
	"fmt"
	"strings"

	"github.com/zilgen/zilgen/lang/ast"
)

// Format serializes prog back to the textual IR, in the same surface
// syntax Parse accepts. Used by this package's tests for round-trip
// checks (Parse(Format(p)) reproduces p).
func Format(prog *ast.Program) string {
	var b strings.Builder
	for _, r := range prog.Routines {
		formatRoutine(&b, r)
		b.WriteByte('\n')
	}
	for _, g := range prog.Globals {
		formatGlobal(&b, g)
		b.WriteByte('\n')
	}
	for _, c := range prog.Constants {
		fmt.Fprintf(&b, "<CONSTANT %s %s>\n", c.Name, formatExpr(c.Value))
	}
	for _, o := range prog.Objects {
		fmt.Fprintf(&b, "<OBJECT %s>\n", o.Name)
	}
	return b.String()
}

func formatRoutine(b *strings.Builder, r *ast.Routine) {
	fmt.Fprintf(b, "<ROUTINE %s", r.Name)
	if r.Activation != "" {
		fmt.Fprintf(b, " #%s", r.Activation)
	}
	b.WriteString(" (")
	for i, p := range r.Required {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	if len(r.Optional) > 0 {
		if len(r.Required) > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("OPTIONAL")
		for _, p := range r.Optional {
			b.WriteByte(' ')
			formatParam(b, p)
		}
	}
	if len(r.Aux) > 0 {
		b.WriteByte(' ')
		b.WriteString("AUX")
		for _, p := range r.Aux {
			b.WriteByte(' ')
			formatParam(b, p)
		}
	}
	b.WriteString(")")
	for _, s := range r.Body {
		b.WriteByte(' ')
		b.WriteString(formatExpr(s))
	}
	b.WriteString(">")
}

func formatParam(b *strings.Builder, p ast.Param) {
	if p.Default == nil {
		b.WriteString(p.Name)
		return
	}
	fmt.Fprintf(b, "(%s %s)", p.Name, formatExpr(p.Default))
}

func formatGlobal(b *strings.Builder, g *ast.Global) {
	fmt.Fprintf(b, "<GLOBAL %s", g.Name)
	if g.Value != nil {
		fmt.Fprintf(b, " %s", formatExpr(g.Value))
	}
	b.WriteString(">")
}

func formatExpr(n ast.Node) string {
	switch v := n.(type) {
	case nil:
		return "<>"
	case *ast.Atom:
		return v.Name
	case *ast.Number:
		return fmt.Sprintf("%d", v.Value)
	case *ast.String:
		return fmt.Sprintf("%q", v.Value)
	case *ast.Char:
		return fmt.Sprintf("!\\%c", v.Value)
	case *ast.LocalVar:
		return "." + v.Name
	case *ast.GlobalVar:
		return "," + v.Name
	case *ast.Form:
		return formatForm(v)
	case *ast.Cond:
		return formatCond(v)
	case *ast.Repeat:
		return formatRepeat(v)
	case *ast.Table:
		return formatTable(v)
	default:
		return n.String()
	}
}

func formatForm(f *ast.Form) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s", f.Op)
	if f.Activation != "" {
		fmt.Fprintf(&b, " #%s", f.Activation)
	}
	for _, o := range f.Operands {
		b.WriteByte(' ')
		b.WriteString(formatExpr(o))
	}
	b.WriteString(">")
	return b.String()
}

func formatCond(c *ast.Cond) string {
	var b strings.Builder
	b.WriteString("<COND")
	for _, cl := range c.Clauses {
		fmt.Fprintf(&b, " (%s", formatExpr(cl.Cond))
		for _, a := range cl.Actions {
			b.WriteByte(' ')
			b.WriteString(formatExpr(a))
		}
		b.WriteString(")")
	}
	b.WriteString(">")
	return b.String()
}

func formatRepeat(r *ast.Repeat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s", r.Kind)
	if r.Activation != "" {
		fmt.Fprintf(&b, " #%s", r.Activation)
	}
	b.WriteString(" (")
	switch r.Kind {
	case ast.KindProg, ast.KindBind, ast.KindRepeat:
		for i, bd := range r.Bindings {
			if i > 0 {
				b.WriteByte(' ')
			}
			if bd.Initializer == nil {
				b.WriteString(bd.Name)
			} else {
				fmt.Fprintf(&b, "(%s %s)", bd.Name, formatExpr(bd.Initializer))
			}
		}
	case ast.KindDo:
		fmt.Fprintf(&b, "%s %s %s", r.Do.Var, formatExpr(r.Do.Start), formatExpr(r.Do.End))
		if r.Do.Step != nil {
			fmt.Fprintf(&b, " %s", formatExpr(r.Do.Step))
		}
	case ast.KindMapContents, ast.KindMapDirections:
		b.WriteString(r.Map.Var)
		if r.Map.SecondVar != "" {
			fmt.Fprintf(&b, " %s", r.Map.SecondVar)
		}
		fmt.Fprintf(&b, " %s", formatExpr(r.Map.Target))
	}
	b.WriteString(")")
	for _, s := range r.Body {
		b.WriteByte(' ')
		b.WriteString(formatExpr(s))
	}
	if len(r.End) > 0 {
		b.WriteString(" <END")
		for _, s := range r.End {
			b.WriteByte(' ')
			b.WriteString(formatExpr(s))
		}
		b.WriteString(">")
	}
	b.WriteString(">")
	return b.String()
}

func formatTable(t *ast.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s", t.Kind)
	if t.Flags.Byte {
		b.WriteString(" (BYTE)")
	}
	if t.Flags.String {
		b.WriteString(" (STRING)")
	}
	if t.Flags.Lexv {
		b.WriteString(" (LEXV)")
	}
	if t.Flags.Length {
		b.WriteString(" (LENGTH)")
	}
	if t.Flags.Pure {
		b.WriteString(" (PURE)")
	}
	if t.Size != nil {
		fmt.Fprintf(&b, " %s", formatExpr(t.Size))
	}
	for _, v := range t.Values {
		b.WriteByte(' ')
		b.WriteString(formatExpr(v))
	}
	b.WriteString(">")
	return b.String()
}
