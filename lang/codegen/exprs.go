package codegen

import (
	"github.com/zilgen/zilgen/lang/ast"
	"github.com/zilgen/zilgen/lang/zmachine"
)

// stackResult is the classified-operand shorthand for "the result of whatever was
// just compiled is sitting on the evaluation stack" (the variable(0)
// convention for nested expressions).
var stackResult = zmachine.Operand{Type: zmachine.Variable, Value: 0}

// compileStmt compiles n as a statement, discarding whatever value it
// leaves behind.
func (rc *rcomp) compileStmt(n ast.Node) error {
	_, err := rc.compileValue(n)
	return err
}

// compileValue compiles n and returns a classified operand standing for its
// result: either the node classifies directly (numbers, atoms, variable
// refs, literals) or it is a nested expression that gets emitted first, in
// which case the result is stackResult.
func (rc *rcomp) compileValue(n ast.Node) (zmachine.Operand, error) {
	switch v := n.(type) {
	case *ast.Form:
		return rc.compileForm(v)
	case *ast.Cond:
		if err := rc.compileCond(v); err != nil {
			return zmachine.Operand{}, err
		}
		return stackResult, nil
	case *ast.Repeat:
		if err := rc.compileRepeatFamily(v); err != nil {
			return zmachine.Operand{}, err
		}
		return stackResult, nil
	default:
		return rc.classify(n)
	}
}

// compileForm dispatches a Form node: control-flow special forms (RETURN,
// AGAIN), the arithmetic/comparison/TELL special cases that need non-uniform
// operand handling, a registered generic-emitter builtin, or (falling
// through all of those) an ordinary routine call.
func (rc *rcomp) compileForm(f *ast.Form) (zmachine.Operand, error) {
	switch f.Op {
	case "RETURN":
		return stackResult, rc.compileReturn(f)
	case "AGAIN":
		return stackResult, rc.compileAgain(f)
	}

	if fn, ok := specialForms[f.Op]; ok {
		return fn(rc, f)
	}
	if op, ok := zmachine.Lookup(builtinOpcodeName(f.Op)); ok {
		return rc.emitGeneric(f, op)
	}
	return rc.compileCall(f)
}

// builtinAliases maps a ZIL builtin spelling onto the zmachine opcode name
// it actually compiles to, for builtins whose ZIL name doesn't just
// lowercase/underscore into the Standard's mnemonic. PRINTI and PRINTR are
// deliberately absent: their Z-machine counterparts (PRINT/PRINT_RET)
// encode their text inline in the instruction stream rather than through an
// operand, which doesn't fit this emitter's operand-classification model,
// so they are handled as specialForms instead (see compilePrinti/
// compilePrintr in arithmetic.go), lowering to PRINT_PADDR the same way
// TELL's string tokens do.
var builtinAliases = map[string]string{
	"PRINTD": "print_obj",
	"CRLF":   "new_line",
}

// builtinOpcodeName resolves f.Op to a zmachine opcode table key, checking
// the alias table first (see builtinAliases) and falling back to
// genericOpcodeName's mechanical lowercasing for everything else.
func builtinOpcodeName(op string) string {
	if alias, ok := builtinAliases[op]; ok {
		return alias
	}
	return genericOpcodeName(op)
}

// compileCall treats an unrecognized operator as a user routine name and
// emits a CALL, matching ZIL's rule that any non-builtin operator in call
// position names a routine.
func (rc *rcomp) compileCall(f *ast.Form) (zmachine.Operand, error) {
	if len(f.Operands) > 7 {
		if err := rc.pc.diag.Errorf("ZIL0303", "%s: call to %s has %d arguments, exceeds the 7-argument limit", rc.name, f.Op, len(f.Operands)); err != nil {
			return zmachine.Operand{}, err
		}
	}
	idx := rc.pc.internRoutine(f.Op)
	operands := []zmachine.Operand{{Type: zmachine.LargeConst, Value: 0xFD00 | uint16(idx)}}
	for _, arg := range f.Operands {
		v, err := rc.compileValue(arg)
		if err != nil {
			return zmachine.Operand{}, err
		}
		operands = append(operands, v)
	}
	callOp, _ := zmachine.Lookup(callOpcodeName(rc.pc.cfg.Version))
	store := uint8(0)
	if err := rc.emitInstr(callOp, operands, &store, nil); err != nil {
		return zmachine.Operand{}, err
	}
	return stackResult, nil
}

// callOpcodeName picks the version-appropriate "call and discard nothing,
// always store result" opcode; CALL_VS in V4+, the plain pre-V4 CALL
// otherwise.
func callOpcodeName(version int) string {
	if version >= 4 {
		return "call_vs"
	}
	return "call"
}

// genericOpcodeName lowercases a ZIL builtin spelling (e.g. "GET-PROP") to
// the zmachine opcode table's key convention, turning hyphens and '?' into
// underscores.
func genericOpcodeName(op string) string {
	name := make([]byte, 0, len(op))
	for i := 0; i < len(op); i++ {
		c := op[i]
		switch {
		case c >= 'A' && c <= 'Z':
			name = append(name, c-'A'+'a')
		case c == '-' || c == '?':
			name = append(name, '_')
		default:
			name = append(name, c)
		}
	}
	return string(name)
}

// emitGeneric implements the uniform instruction-emitter shape: validate
// arity/version, compile nested sub-forms left to right, classify, encode.
// It covers every opcode that doesn't need special-cased operand semantics
// (i.e. all but the handful registered in specialForms).
func (rc *rcomp) emitGeneric(f *ast.Form, op zmachine.Opcode) (zmachine.Operand, error) {
	if !op.Available(rc.pc.cfg.Version) {
		if err := rc.pc.diag.Errorf("ZIL0305", "%s: %s requires a different Z-machine version (got V%d)", rc.name, f.Op, rc.pc.cfg.Version); err != nil {
			return zmachine.Operand{}, err
		}
	}

	operands := make([]zmachine.Operand, 0, len(f.Operands))
	for _, arg := range f.Operands {
		v, err := rc.compileValue(arg)
		if err != nil {
			return zmachine.Operand{}, err
		}
		operands = append(operands, v)
	}

	var store *uint8
	if op.IsStore {
		s := uint8(0)
		store = &s
	}
	var branch *zmachine.Branch
	if op.IsBranch {
		// A branch instruction compiled here branches to the fall-through:
		// sense true, offset 2 (rtrue shortcut is offset 1, so 2 steps over a
		// 0-length no-op target). Only the predicates in nativePredicates are
		// compiled as real branch tests inside COND; any other branch opcode
		// reaches this emitter even as a COND test, keeps this placeholder
		// branch and yields the SmallConst 1 below.
		branch = &zmachine.Branch{Sense: true, Offset: 2}
	}
	if err := rc.emitInstr(op, operands, store, branch); err != nil {
		return zmachine.Operand{}, err
	}
	if op.IsStore {
		return stackResult, nil
	}
	return zmachine.Operand{Type: zmachine.SmallConst, Value: 1}, nil
}

// specialForms holds the operators that need non-uniform operand handling
// (variadic reduction, short-circuiting, constant folding, or a dedicated
// scan-and-dispatch like TELL), plus the control-flow family dispatched
// from ast.Repeat/ast.Cond directly rather than through Form.
var specialForms = map[string]func(*rcomp, *ast.Form) (zmachine.Operand, error){
	"+":         (*rcomp).compileAdd,
	"-":         (*rcomp).compileSub,
	"*":         (*rcomp).compileMul,
	"/":         (*rcomp).compileDiv,
	"MIN":       (*rcomp).compileMin,
	"MAX":       (*rcomp).compileMax,
	"ABS":       (*rcomp).compileAbs,
	"EQUAL?":    (*rcomp).compileEqual,
	"=?":        (*rcomp).compileEqual,
	"AND?":      (*rcomp).compileAndPred,
	"OR?":       (*rcomp).compileOrPred,
	"BCOM":      (*rcomp).compileBcom,
	"XOR":       (*rcomp).compileXor,
	"TELL":      (*rcomp).compileTell,
	"PRINT":     (*rcomp).compileTell,
	"ASSIGNED?": (*rcomp).compileAssignedPred,
	"SET":       (*rcomp).compileSet,
	"SETG":      (*rcomp).compileSetg,
	"PRINTI":    (*rcomp).compilePrinti,
	"PRINTR":    (*rcomp).compilePrintr,
}
