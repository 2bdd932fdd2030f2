package codegen

import (
	"github.com/zilgen/zilgen/lang/ast"
	"github.com/zilgen/zilgen/lang/zmachine"
)

// This file implements SET and SETG, ZIL's assignment forms. Both lower to
// the single Z-machine STORE instruction, also reachable directly by name
// for a literal <STORE var,value> form; what makes them special-cased
// rather than handled by the generic emitter is their first operand, which
// names the destination variable by bare atom rather than classifying as an
// ordinary value operand.

// varSlotName extracts the variable name SET/SETG bind to, accepting both
// the idiomatic bare-atom spelling (<SET X 1>) and a .NAME/,NAME spelling
// some ZIL dialects permit.
func varSlotName(n ast.Node) (string, bool) {
	switch v := n.(type) {
	case *ast.Atom:
		return v.Name, true
	case *ast.LocalVar:
		return v.Name, true
	case *ast.GlobalVar:
		return v.Name, true
	default:
		return "", false
	}
}

func (rc *rcomp) compileSet(f *ast.Form) (zmachine.Operand, error) {
	if len(f.Operands) != 2 {
		if err := rc.pc.diag.Errorf("ZIL0306", "%s: SET takes exactly 2 arguments, got %d", rc.name, len(f.Operands)); err != nil {
			return zmachine.Operand{}, err
		}
	}
	name, ok := varSlotName(f.Operands[0])
	if !ok {
		if err := rc.pc.diag.Errorf("ZIL0307", "%s: SET's first argument must name a variable", rc.name); err != nil {
			return zmachine.Operand{}, err
		}
	}
	slot, found := rc.lookupLocal(name)
	if !found {
		if err := rc.pc.diag.Warnf("ZIL0204", "%s: SET target %s not bound locally, falling back to global scope", rc.name, name); err != nil {
			return zmachine.Operand{}, err
		}
		g, ok := rc.pc.prog.Globals[name]
		if !ok {
			if err := rc.pc.diag.Errorf("ZIL0308", "%s: SET target %s is not a known local or global", rc.name, name); err != nil {
				return zmachine.Operand{}, err
			}
		}
		slot = g
	} else {
		rc.usedLocals[name] = true
	}
	return rc.emitStore(slot, f.Operands[1])
}

func (rc *rcomp) compileSetg(f *ast.Form) (zmachine.Operand, error) {
	if len(f.Operands) != 2 {
		if err := rc.pc.diag.Errorf("ZIL0306", "%s: SETG takes exactly 2 arguments, got %d", rc.name, len(f.Operands)); err != nil {
			return zmachine.Operand{}, err
		}
	}
	name, ok := varSlotName(f.Operands[0])
	if !ok {
		if err := rc.pc.diag.Errorf("ZIL0307", "%s: SETG's first argument must name a variable", rc.name); err != nil {
			return zmachine.Operand{}, err
		}
	}
	slot, ok := rc.pc.prog.Globals[name]
	if !ok {
		if err := rc.pc.diag.Errorf("ZIL0309", "%s: SETG target %s is not a declared global", rc.name, name); err != nil {
			return zmachine.Operand{}, err
		}
	}
	return rc.emitStore(slot, f.Operands[1])
}

// emitStore compiles value and emits STORE slot,value, returning the stored
// value so SET/SETG remain usable in value position (ZIL idiom: <SET X
// <SET Y 1>> stores Y's value into X too).
func (rc *rcomp) emitStore(slot int, value ast.Node) (zmachine.Operand, error) {
	v, err := rc.compileValue(value)
	if err != nil {
		return zmachine.Operand{}, err
	}
	op, _ := zmachine.Lookup("store")
	if err := rc.emitInstr(op, []zmachine.Operand{
		{Type: zmachine.SmallConst, Value: uint16(slot)}, v,
	}, nil, nil); err != nil {
		return zmachine.Operand{}, err
	}
	return v, nil
}
