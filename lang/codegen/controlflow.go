package codegen

import (
	"github.com/zilgen/zilgen/lang/ast"
	"github.com/zilgen/zilgen/lang/zmachine"
)

// nativePredicates maps a ZIL predicate/comparison operator to the
// zmachine branch-capable opcode that tests it directly, letting COND (and
// the DO/MAP-* termination tests) avoid the push-then-JZ dance a generic
// value compile would otherwise require.
var nativePredicates = map[string]string{
	"ZERO?": "jz", "0?": "jz",
	"EQUAL?": "je", "=?": "je",
	"GRTR?": "jg", "G?": "jg",
	"LESS?": "jl", "L?": "jl",
	"IN?":   "jin",
	"FSET?": "test_attr",
}

// emitBranchTest compiles cond and emits an instruction ending in a branch,
// returning the byte offset of its (always long-form, 2-byte) branch field
// so the caller can patch the target once known. wantSense selects whether
// the branch fires when cond holds (true) or fails (false); for a native
// predicate this maps directly onto the instruction's own branch sense,
// while the bare-value fallback (JZ) has to invert it, since "is zero" is
// the logical opposite of ZIL truthiness.
func (rc *rcomp) emitBranchTest(cond ast.Node, wantSense bool) (int, error) {
	if form, ok := cond.(*ast.Form); ok {
		if form.Op == "NOT" && len(form.Operands) == 1 {
			return rc.emitBranchTest(form.Operands[0], !wantSense)
		}
		if opName, ok := nativePredicates[form.Op]; ok {
			op, _ := zmachine.Lookup(opName)
			operands := make([]zmachine.Operand, 0, len(form.Operands))
			for _, a := range form.Operands {
				v, err := rc.compileValue(a)
				if err != nil {
					return 0, err
				}
				operands = append(operands, v)
			}
			if err := rc.emitInstr(op, operands, nil, &zmachine.Branch{Sense: wantSense, Offset: 9999}); err != nil {
				return 0, err
			}
			return len(rc.code) - 2, nil
		}
	}

	v, err := rc.compileValue(cond)
	if err != nil {
		return 0, err
	}
	jzOp, _ := zmachine.Lookup("jz")
	if err := rc.emitInstr(jzOp, []zmachine.Operand{v}, nil, &zmachine.Branch{Sense: !wantSense, Offset: 9999}); err != nil {
		return 0, err
	}
	return len(rc.code) - 2, nil
}

func isPlainValue(n ast.Node) bool {
	switch n.(type) {
	case *ast.Number, *ast.LocalVar, *ast.GlobalVar, *ast.Atom, *ast.Char:
		return true
	}
	return false
}

// compileCond implements the COND compiler.
func (rc *rcomp) compileCond(c *ast.Cond) error {
	var endJumps []int
	for i, cl := range c.Clauses {
		last := i == len(c.Clauses)-1
		branchPos, err := rc.emitBranchTest(cl.Cond, false) // branch to next clause on failure
		if err != nil {
			return err
		}
		if err := rc.compileCondActions(cl.Actions); err != nil {
			return err
		}
		jumpPos := -1
		if !last {
			jumpPos = rc.emitRaw(0x8C, 0, 0)
		}
		patchBranch(rc, branchPos, len(rc.code))
		if jumpPos >= 0 {
			endJumps = append(endJumps, jumpPos)
		}
	}
	end := len(rc.code)
	for _, pos := range endJumps {
		patchJump(rc, pos, end)
	}
	return nil
}

// compileCondActions compiles one clause's action list, applying the
// implicit-ADD-0 rule so a plain-value tail leaves a value on the stack and
// COND can be used as an expression.
func (rc *rcomp) compileCondActions(actions []ast.Node) error {
	for i, a := range actions {
		if i < len(actions)-1 {
			if err := rc.compileStmt(a); err != nil {
				return err
			}
			continue
		}
		if isPlainValue(a) {
			v, err := rc.classify(a)
			if err != nil {
				return err
			}
			addOp, _ := zmachine.Lookup("add")
			store := uint8(0)
			return rc.emitInstr(addOp, []zmachine.Operand{v, {Type: zmachine.SmallConst, Value: 0}}, &store, nil)
		}
		return rc.compileStmt(a)
	}
	return nil
}

// compileBindings emits the STORE prolog for a PROG/BIND/REPEAT binding
// list. A binding that shadows an existing local saves the old value on the
// stack (returned in shadowed, for restoration at block exit); a binding
// introducing a new name takes a fresh slot, possibly widening the
// routine's high-water mark.
func (rc *rcomp) compileBindings(bindings []ast.Binding) (shadowed []int, err error) {
	storeOp, _ := zmachine.Lookup("store")
	pushOp, _ := zmachine.Lookup("push")
	for _, b := range bindings {
		var value zmachine.Operand
		if b.Initializer != nil {
			value, err = rc.compileValue(b.Initializer)
			if err != nil {
				return nil, err
			}
		} else {
			value = zmachine.Operand{Type: zmachine.SmallConst, Value: 0}
		}

		if slot, ok := rc.lookupLocal(b.Name); ok {
			if err := rc.emitInstr(pushOp, []zmachine.Operand{{Type: zmachine.Variable, Value: uint16(slot)}}, nil, nil); err != nil {
				return nil, err
			}
			shadowed = append(shadowed, slot)
			if err := rc.emitInstr(storeOp, []zmachine.Operand{{Type: zmachine.SmallConst, Value: uint16(slot)}, value}, nil, nil); err != nil {
				return nil, err
			}
			continue
		}

		slot, err := rc.declareLocal(b.Name, 0)
		if err != nil {
			return nil, err
		}
		if err := rc.emitInstr(storeOp, []zmachine.Operand{{Type: zmachine.SmallConst, Value: uint16(slot)}, value}, nil, nil); err != nil {
			return nil, err
		}
	}
	return shadowed, nil
}

// restoreShadowed pulls saved values back into their slots in reverse
// (stack) order.
func (rc *rcomp) restoreShadowed(shadowed []int) error {
	pullOp, _ := zmachine.Lookup("pull")
	for i := len(shadowed) - 1; i >= 0; i-- {
		if err := rc.emitInstr(pullOp, []zmachine.Operand{{Type: zmachine.SmallConst, Value: uint16(shadowed[i])}}, nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// compileRepeatFamily dispatches the PROG/BIND/REPEAT/DO/MAP-CONTENTS/
// MAP-DIRECTIONS family on its LoopKind.
func (rc *rcomp) compileRepeatFamily(r *ast.Repeat) error {
	switch r.Kind {
	case ast.KindDo:
		return rc.compileDo(r)
	case ast.KindMapContents:
		return rc.compileMapContents(r)
	case ast.KindMapDirections:
		return rc.compileMapDirections(r)
	default:
		return rc.compileProgBindRepeat(r)
	}
}

// compileProgBindRepeat handles PROG, BIND and REPEAT: a shared binding
// prolog, then either a linear body (PROG/BIND) or a body followed by an
// implicit backward JUMP to the body start (REPEAT).
func (rc *rcomp) compileProgBindRepeat(r *ast.Repeat) error {
	shadowed, err := rc.compileBindings(r.Bindings)
	if err != nil {
		return err
	}

	block := rc.pushBlock(r.Activation)
	bodyStart := len(rc.code)
	loop := rc.pushLoop(bodyStart, r.Activation, false)

	if err := rc.compileBody(r.Body); err != nil {
		return err
	}

	if r.Kind == ast.KindRepeat {
		pos := rc.emitRaw(0x8C, 0, 0)
		patchJump(rc, pos, bodyStart)
	}

	rc.popLoop()
	rc.finalizeLoopAgain(loop)

	restoreStart := len(rc.code)
	if err := rc.restoreShadowed(shadowed); err != nil {
		return err
	}

	rc.popBlock()
	rc.finalizeBlockExits(block, restoreStart)
	return nil
}

// compileDo implements the DO counted loop.
func (rc *rcomp) compileDo(r *ast.Repeat) error {
	spec := r.Do
	startVal, err := rc.compileValue(spec.Start)
	if err != nil {
		return err
	}
	slot, err := rc.declareLocal(spec.Var, 0)
	if err != nil {
		return err
	}
	storeOp, _ := zmachine.Lookup("store")
	if err := rc.emitInstr(storeOp, []zmachine.Operand{{Type: zmachine.SmallConst, Value: uint16(slot)}, startVal}, nil, nil); err != nil {
		return err
	}

	// Push the start value as the default block result.
	pushOp, _ := zmachine.Lookup("push")
	if err := rc.emitInstr(pushOp, []zmachine.Operand{{Type: zmachine.Variable, Value: uint16(slot)}}, nil, nil); err != nil {
		return err
	}

	ascending, err := rc.doDirection(spec)
	if err != nil {
		return err
	}

	block := rc.pushBlock(r.Activation)
	loopStart := len(rc.code)
	loop := rc.pushLoop(loopStart, r.Activation, false)

	endVal, err := rc.compileValue(spec.End)
	if err != nil {
		return err
	}
	termOp := "jg"
	if !ascending {
		termOp = "jl"
	}
	op, _ := zmachine.Lookup(termOp)
	if err := rc.emitInstr(op, []zmachine.Operand{{Type: zmachine.Variable, Value: uint16(slot)}, endVal},
		nil, &zmachine.Branch{Sense: true, Offset: 9999}); err != nil {
		return err
	}
	exitBranchPos := len(rc.code) - 2

	if err := rc.compileBody(r.Body); err != nil {
		return err
	}

	if err := rc.doStep(spec, slot, ascending); err != nil {
		return err
	}

	backPos := rc.emitRaw(0x8C, 0, 0)
	patchJump(rc, backPos, loopStart)

	patchBranch(rc, exitBranchPos, len(rc.code))

	rc.popLoop()
	rc.finalizeLoopAgain(loop)

	if err := rc.compileBody(r.End); err != nil {
		return err
	}

	rc.popBlock()
	rc.finalizeBlockExits(block, len(rc.code))
	return nil
}

// doDirection resolves the DO spec's counting direction: the sign of a
// constant step, else start > end, else ascending.
func (rc *rcomp) doDirection(spec *ast.DoSpec) (bool, error) {
	if spec.Step != nil {
		if n, ok := spec.Step.(*ast.Number); ok {
			return n.Value >= 0, nil
		}
		return true, nil
	}
	if sn, sok := spec.Start.(*ast.Number); sok {
		if en, eok := spec.End.(*ast.Number); eok {
			return sn.Value <= en.Value, nil
		}
	}
	return true, nil
}

// doStep emits the per-iteration increment/decrement: INC/DEC for a literal
// step of 1 or -1, ADD/SUB otherwise.
func (rc *rcomp) doStep(spec *ast.DoSpec, slot int, ascending bool) error {
	if spec.Step == nil {
		opName := "inc"
		if !ascending {
			opName = "dec"
		}
		op, _ := zmachine.Lookup(opName)
		return rc.emitInstr(op, []zmachine.Operand{{Type: zmachine.SmallConst, Value: uint16(slot)}}, nil, nil)
	}
	if n, ok := spec.Step.(*ast.Number); ok && (n.Value == 1 || n.Value == -1) {
		opName := "inc"
		if n.Value == -1 {
			opName = "dec"
		}
		op, _ := zmachine.Lookup(opName)
		return rc.emitInstr(op, []zmachine.Operand{{Type: zmachine.SmallConst, Value: uint16(slot)}}, nil, nil)
	}
	stepVal, err := rc.compileValue(spec.Step)
	if err != nil {
		return err
	}
	opName := "add"
	if !ascending {
		opName = "sub"
	}
	op, _ := zmachine.Lookup(opName)
	store := uint8(slot)
	return rc.emitInstr(op, []zmachine.Operand{{Type: zmachine.Variable, Value: uint16(slot)}, stepVal}, &store, nil)
}

// compileMapContents implements MAP-CONTENTS.
func (rc *rcomp) compileMapContents(r *ast.Repeat) error {
	spec := r.Map
	varSlot, err := rc.declareLocal(spec.Var, 0)
	if err != nil {
		return err
	}
	nextName := spec.SecondVar
	if nextName == "" {
		nextName = spec.Var + "-NEXT"
	}
	nextSlot, err := rc.declareLocal(nextName, 0)
	if err != nil {
		return err
	}

	target, err := rc.compileValue(spec.Target)
	if err != nil {
		return err
	}
	getChild, _ := zmachine.Lookup("get_child")
	store := uint8(varSlot)
	if err := rc.emitInstr(getChild, []zmachine.Operand{target}, &store, &zmachine.Branch{Sense: true, Offset: 9999}); err != nil {
		return err
	}
	exitBranchPos := len(rc.code) - 2

	block := rc.pushBlock(r.Activation)
	loopStart := len(rc.code)
	loop := rc.pushLoop(loopStart, r.Activation, false)

	getSibling, _ := zmachine.Lookup("get_sibling")
	storeNext := uint8(nextSlot)
	if err := rc.emitInstr(getSibling, []zmachine.Operand{{Type: zmachine.Variable, Value: uint16(varSlot)}},
		&storeNext, &zmachine.Branch{Sense: true, Offset: 2}); err != nil {
		return err
	}

	if err := rc.compileBody(r.Body); err != nil {
		return err
	}

	storeOp, _ := zmachine.Lookup("store")
	if err := rc.emitInstr(storeOp, []zmachine.Operand{
		{Type: zmachine.SmallConst, Value: uint16(varSlot)},
		{Type: zmachine.Variable, Value: uint16(nextSlot)},
	}, nil, nil); err != nil {
		return err
	}

	jz, _ := zmachine.Lookup("jz")
	if err := rc.emitInstr(jz, []zmachine.Operand{{Type: zmachine.Variable, Value: uint16(varSlot)}},
		nil, &zmachine.Branch{Sense: true, Offset: 9999}); err != nil {
		return err
	}
	zeroExitPos := len(rc.code) - 2

	backPos := rc.emitRaw(0x8C, 0, 0)
	patchJump(rc, backPos, loopStart)

	end := len(rc.code)
	patchBranch(rc, exitBranchPos, end)
	patchBranch(rc, zeroExitPos, end)

	rc.popLoop()
	rc.finalizeLoopAgain(loop)
	rc.popBlock()
	rc.finalizeBlockExits(block, end)
	return nil
}

// compileMapDirections implements MAP-DIRECTIONS.
func (rc *rcomp) compileMapDirections(r *ast.Repeat) error {
	spec := r.Map
	dirSlot, err := rc.declareLocal(spec.Var, 0)
	if err != nil {
		return err
	}
	ptSlot, err := rc.declareLocal(spec.SecondVar, 0)
	if err != nil {
		return err
	}

	storeOp, _ := zmachine.Lookup("store")
	maxProp := int32(0)
	if rc.pc.sym != nil {
		maxProp = int32(rc.pc.sym.MaxProperties)
	}
	if err := rc.emitInstr(storeOp, []zmachine.Operand{
		{Type: zmachine.SmallConst, Value: uint16(dirSlot)},
		rc.classifyNumber(maxProp + 1),
	}, nil, nil); err != nil {
		return err
	}

	room, err := rc.compileValue(spec.Target)
	if err != nil {
		return err
	}
	roomSlot, err := rc.declareLocal("", 0)
	if err != nil {
		return err
	}
	if err := rc.emitInstr(storeOp, []zmachine.Operand{{Type: zmachine.SmallConst, Value: uint16(roomSlot)}, room}, nil, nil); err != nil {
		return err
	}

	block := rc.pushBlock(r.Activation)
	loopStart := len(rc.code)
	loop := rc.pushLoop(loopStart, r.Activation, false)

	lowDir := int32(0)
	if rc.pc.sym != nil {
		lowDir = int32(rc.pc.sym.LowDirection)
	}
	decChk, _ := zmachine.Lookup("dec_chk")
	if err := rc.emitInstr(decChk, []zmachine.Operand{{Type: zmachine.Variable, Value: uint16(dirSlot)}, rc.classifyNumber(lowDir)},
		nil, &zmachine.Branch{Sense: true, Offset: 9999}); err != nil {
		return err
	}
	exitBranchPos := len(rc.code) - 2

	getPropAddr, _ := zmachine.Lookup("get_prop_addr")
	storePt := uint8(ptSlot)
	if err := rc.emitInstr(getPropAddr, []zmachine.Operand{
		{Type: zmachine.Variable, Value: uint16(roomSlot)},
		{Type: zmachine.Variable, Value: uint16(dirSlot)},
	}, &storePt, nil); err != nil {
		return err
	}

	jz, _ := zmachine.Lookup("jz")
	if err := rc.emitInstr(jz, []zmachine.Operand{{Type: zmachine.Variable, Value: uint16(ptSlot)}},
		nil, &zmachine.Branch{Sense: true, Offset: 9999}); err != nil {
		return err
	}
	skipEmptyPos := len(rc.code) - 2
	patchBranch(rc, skipEmptyPos, loopStart)

	if err := rc.compileBody(r.Body); err != nil {
		return err
	}

	backPos := rc.emitRaw(0x8C, 0, 0)
	patchJump(rc, backPos, loopStart)

	end := len(rc.code)
	patchBranch(rc, exitBranchPos, end)

	rc.popLoop()
	rc.finalizeLoopAgain(loop)

	if err := rc.compileBody(r.End); err != nil {
		return err
	}

	rc.popBlock()
	rc.finalizeBlockExits(block, len(rc.code))
	return nil
}
