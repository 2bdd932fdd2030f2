package codegen

import (
	"github.com/zilgen/zilgen/lang/ast"
	"github.com/zilgen/zilgen/lang/zmachine"
)

// classify maps an AST value node to a classified operand. Nested
// expressions (forms, COND, REPEAT and friends) are not handled here: the
// caller must have already compiled them so their result sits on the
// stack, and passes variable(0) in their place.
func (rc *rcomp) classify(n ast.Node) (zmachine.Operand, error) {
	switch v := n.(type) {
	case *ast.Number:
		return rc.classifyNumber(v.Value), nil
	case *ast.Char:
		return zmachine.Operand{Type: zmachine.SmallConst, Value: uint16(v.Value)}, nil
	case *ast.String:
		return rc.classifyString(v.Value), nil
	case *ast.LocalVar:
		return rc.classifyLocalRef(v.Name)
	case *ast.GlobalVar:
		return rc.classifyGlobalRef(v.Name)
	case *ast.Atom:
		return rc.classifyAtom(v.Name)
	case *ast.Table:
		return rc.classifyTable(v)
	default:
		// Already-evaluated nested expression: its value is on the stack.
		return zmachine.Operand{Type: zmachine.Variable, Value: 0}, nil
	}
}

// classifyNumber folds a negative literal into its 16-bit two's-complement
// representation before choosing small-const (0..255) vs large-const.
func (rc *rcomp) classifyNumber(v int32) zmachine.Operand {
	u := uint16(int16(v))
	if u <= 255 {
		return zmachine.Operand{Type: zmachine.SmallConst, Value: u}
	}
	return zmachine.Operand{Type: zmachine.LargeConst, Value: u}
}

func (rc *rcomp) classifyString(text string) zmachine.Operand {
	idx := rc.pc.internString(text)
	return zmachine.Operand{Type: zmachine.LargeConst, Value: 0xFC00 | uint16(idx)}
}

func (rc *rcomp) classifyTable(t *ast.Table) (zmachine.Operand, error) {
	idx, err := rc.compileTableLiteral(t)
	if err != nil {
		return zmachine.Operand{}, err
	}
	return zmachine.Operand{Type: zmachine.LargeConst, Value: 0xFF00 | uint16(idx)}, nil
}

// classifyLocalRef implements the `.NAME` fallback chain: local; else
// ZIL0204 and fall back to global/constant/object; else warn with value 1.
func (rc *rcomp) classifyLocalRef(name string) (zmachine.Operand, error) {
	if slot, ok := rc.lookupLocal(name); ok {
		rc.usedLocals[name] = true
		return zmachine.Operand{Type: zmachine.Variable, Value: uint16(slot)}, nil
	}
	if err := rc.pc.diag.Warnf("ZIL0204", "%s: local .%s not bound, falling back to global/constant/object scope", rc.name, name); err != nil {
		return zmachine.Operand{}, err
	}
	if slot, ok := rc.pc.prog.Globals[name]; ok {
		return zmachine.Operand{Type: zmachine.Variable, Value: uint16(slot)}, nil
	}
	if v, ok := rc.pc.lookupConstant(name); ok {
		return rc.classifyNumber(v), nil
	}
	if n, ok := rc.pc.prog.Objects[name]; ok {
		return rc.classifyNumber(int32(n)), nil
	}
	if err := rc.pc.diag.Warnf("ZIL0204", "%s: .%s unresolved in any scope, defaulting to 1", rc.name, name); err != nil {
		return zmachine.Operand{}, err
	}
	return zmachine.Operand{Type: zmachine.SmallConst, Value: 1}, nil
}

// classifyGlobalRef implements the `,NAME` fallback chain: global; else
// object-number small-const; else constant; else routine placeholder.
func (rc *rcomp) classifyGlobalRef(name string) (zmachine.Operand, error) {
	if slot, ok := rc.pc.prog.Globals[name]; ok {
		return zmachine.Operand{Type: zmachine.Variable, Value: uint16(slot)}, nil
	}
	if n, ok := rc.pc.prog.Objects[name]; ok {
		return rc.classifyNumber(int32(n)), nil
	}
	if v, ok := rc.pc.lookupConstant(name); ok {
		return rc.classifyNumber(v), nil
	}
	idx := rc.pc.internRoutine(name)
	return zmachine.Operand{Type: zmachine.LargeConst, Value: 0xFD00 | uint16(idx)}, nil
}

// classifyAtom implements the bare-atom fallback chain: constant, object,
// global, routine placeholder. The last step always succeeds, so no
// diagnostic is issued here; an atom that names nothing becomes a routine
// placeholder and is reported later only if no such routine is defined.
func (rc *rcomp) classifyAtom(name string) (zmachine.Operand, error) {
	if v, ok := rc.pc.lookupConstant(name); ok {
		return rc.classifyNumber(v), nil
	}
	if n, ok := rc.pc.prog.Objects[name]; ok {
		return rc.classifyNumber(int32(n)), nil
	}
	if slot, ok := rc.pc.prog.Globals[name]; ok {
		return zmachine.Operand{Type: zmachine.Variable, Value: uint16(slot)}, nil
	}
	idx := rc.pc.internRoutine(name)
	return zmachine.Operand{Type: zmachine.LargeConst, Value: 0xFD00 | uint16(idx)}, nil
}

// lookupConstant resolves a name against user constants, then the symbol
// table's parser-constant/flag/property spaces, then the action table's
// verb constants, then the T/<> builtins.
func (pc *pcomp) lookupConstant(name string) (int32, bool) {
	if v, ok := pc.prog.Constants[name]; ok {
		return v, true
	}
	if pc.sym != nil {
		if v, ok := pc.sym.ParserConstant(name); ok {
			return int32(v), true
		}
		if v, ok := pc.sym.Flag(name); ok {
			pc.usedFlags.set(name, true)
			return int32(v), true
		}
		if v, ok := pc.sym.Property(name); ok {
			pc.usedProps.set(name, true)
			return int32(v), true
		}
	}
	if pc.cfg.Actions != nil {
		if v, ok := pc.cfg.Actions.VerbConstants[name]; ok {
			return int32(v), true
		}
	}
	switch name {
	case "T":
		return 1, true
	case "<>":
		return 0, true
	}
	return 0, false
}
