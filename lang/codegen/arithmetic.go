package codegen

import (
	"github.com/zilgen/zilgen/lang/ast"
	"github.com/zilgen/zilgen/lang/zmachine"
)

// This file implements the special-cased instruction emitters: variadic
// arithmetic reduction, MIN/MAX/ABS, multi-ary EQUAL?, short-circuit
// AND?/OR?, version-dependent BCOM, emulated XOR, and TELL's token
// dispatch. ASSIGNED? lives here too since it shares the branch-to-bool
// trampoline these all use.

// identityUnary returns its operand unchanged: the single-operand behavior
// of "+" and "*".
func identityUnary(rc *rcomp, v zmachine.Operand) (zmachine.Operand, error) { return v, nil }

// negateOperand computes 0 - v: the single-operand behavior of "-".
func negateOperand(rc *rcomp, v zmachine.Operand) (zmachine.Operand, error) {
	op, _ := zmachine.Lookup("sub")
	store := uint8(0)
	if err := rc.emitInstr(op, []zmachine.Operand{{Type: zmachine.SmallConst, Value: 0}, v}, &store, nil); err != nil {
		return zmachine.Operand{}, err
	}
	return stackResult, nil
}

// reciprocalOperand computes 1 / v: the single-operand behavior of "/".
func reciprocalOperand(rc *rcomp, v zmachine.Operand) (zmachine.Operand, error) {
	op, _ := zmachine.Lookup("div")
	store := uint8(0)
	if err := rc.emitInstr(op, []zmachine.Operand{{Type: zmachine.SmallConst, Value: 1}, v}, &store, nil); err != nil {
		return zmachine.Operand{}, err
	}
	return stackResult, nil
}

// constValue reports whether n is a compile-time constant (a literal number
// or a name resolving through lookupConstant) and its value.
func constValue(rc *rcomp, n ast.Node) (int32, bool) {
	switch v := n.(type) {
	case *ast.Number:
		return v.Value, true
	case *ast.Atom:
		return rc.pc.lookupConstant(v.Name)
	}
	return 0, false
}

// constOperands reports whether every operand is a compile-time constant,
// returning their values in order if so.
func constOperands(rc *rcomp, operands []ast.Node) ([]int32, bool) {
	vals := make([]int32, len(operands))
	for i, o := range operands {
		v, ok := constValue(rc, o)
		if !ok {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

// compileVariadic implements the generic shape of the variadic arithmetic
// rule: identity for 0 operands, unary for 1, left-to-right
// pairwise reduction through opname for 3+ (2 is just a plain binary op,
// which the reduction loop already degenerates to).
func (rc *rcomp) compileVariadic(f *ast.Form, opname string, identity int32, unary func(*rcomp, zmachine.Operand) (zmachine.Operand, error)) (zmachine.Operand, error) {
	switch len(f.Operands) {
	case 0:
		return rc.classifyNumber(identity), nil
	case 1:
		v, err := rc.compileValue(f.Operands[0])
		if err != nil {
			return zmachine.Operand{}, err
		}
		return unary(rc, v)
	}
	op, _ := zmachine.Lookup(opname)
	acc, err := rc.compileValue(f.Operands[0])
	if err != nil {
		return zmachine.Operand{}, err
	}
	for _, operand := range f.Operands[1:] {
		v, err := rc.compileValue(operand)
		if err != nil {
			return zmachine.Operand{}, err
		}
		store := uint8(0)
		if err := rc.emitInstr(op, []zmachine.Operand{acc, v}, &store, nil); err != nil {
			return zmachine.Operand{}, err
		}
		acc = stackResult
	}
	return acc, nil
}

func (rc *rcomp) compileAdd(f *ast.Form) (zmachine.Operand, error) {
	if vals, ok := constOperands(rc, f.Operands); ok {
		var sum int32
		for _, v := range vals {
			sum += v
		}
		return rc.classifyNumber(sum), nil
	}
	return rc.compileVariadic(f, "add", 0, identityUnary)
}

func (rc *rcomp) compileSub(f *ast.Form) (zmachine.Operand, error) {
	if vals, ok := constOperands(rc, f.Operands); ok {
		switch len(vals) {
		case 0:
			return rc.classifyNumber(0), nil
		case 1:
			return rc.classifyNumber(-vals[0]), nil
		default:
			acc := vals[0]
			for _, v := range vals[1:] {
				acc -= v
			}
			return rc.classifyNumber(acc), nil
		}
	}
	return rc.compileVariadic(f, "sub", 0, negateOperand)
}

func (rc *rcomp) compileMul(f *ast.Form) (zmachine.Operand, error) {
	if vals, ok := constOperands(rc, f.Operands); ok {
		acc := int32(1)
		for _, v := range vals {
			acc *= v
		}
		return rc.classifyNumber(acc), nil
	}
	return rc.compileVariadic(f, "mul", 1, identityUnary)
}

func (rc *rcomp) compileDiv(f *ast.Form) (zmachine.Operand, error) {
	if vals, ok := constOperands(rc, f.Operands); ok {
		switch len(vals) {
		case 0:
			return rc.classifyNumber(1), nil
		case 1:
			if vals[0] == 0 {
				return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0310", "%s: division by zero in constant fold", rc.name)
			}
			return rc.classifyNumber(1 / vals[0]), nil
		default:
			acc := vals[0]
			for _, v := range vals[1:] {
				if v == 0 {
					return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0310", "%s: division by zero in constant fold", rc.name)
				}
				acc /= v
			}
			return rc.classifyNumber(acc), nil
		}
	}
	return rc.compileVariadic(f, "div", 1, reciprocalOperand)
}

// storeScratch stores v into one of the two reserved scratch globals, used
// throughout this file to carry a runtime value across a nested compile
// that would otherwise collide with it on the evaluation stack.
func (rc *rcomp) storeScratch(slot int, v zmachine.Operand) error {
	op, _ := zmachine.Lookup("store")
	return rc.emitInstr(op, []zmachine.Operand{{Type: zmachine.SmallConst, Value: uint16(slot)}, v}, nil, nil)
}

// compileMinMax implements MIN/MAX: constant-fold when every
// operand is constant, otherwise reduce pairwise: each further operand goes
// to scratchSlotB, JL/JG compares it with the running best in scratchSlotA,
// and a forward JUMP skips the STORE into scratchSlotA when A already wins.
// The result is returned as scratchSlotA; nothing is pushed on the stack.
func (rc *rcomp) compileMinMax(f *ast.Form, op string) (zmachine.Operand, error) {
	if vals, ok := constOperands(rc, f.Operands); ok {
		if len(vals) == 0 {
			return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0311", "%s: %s requires at least one operand", rc.name, f.Op)
		}
		best := vals[0]
		for _, v := range vals[1:] {
			if (op == "MIN" && v < best) || (op == "MAX" && v > best) {
				best = v
			}
		}
		return rc.classifyNumber(best), nil
	}
	if len(f.Operands) == 0 {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0311", "%s: %s requires at least one operand", rc.name, f.Op)
	}

	acc, err := rc.compileValue(f.Operands[0])
	if err != nil {
		return zmachine.Operand{}, err
	}
	if err := rc.storeScratch(scratchSlotA, acc); err != nil {
		return zmachine.Operand{}, err
	}
	cmpName := "jg"
	if op == "MIN" {
		cmpName = "jl"
	}
	cmp, _ := zmachine.Lookup(cmpName)
	storeOp, _ := zmachine.Lookup("store")

	for _, operand := range f.Operands[1:] {
		v, err := rc.compileValue(operand)
		if err != nil {
			return zmachine.Operand{}, err
		}
		if err := rc.storeScratch(scratchSlotB, v); err != nil {
			return zmachine.Operand{}, err
		}
		// Branch (to "B wins") when B is strictly better than the running A.
		if err := rc.emitInstr(cmp, []zmachine.Operand{
			{Type: zmachine.Variable, Value: uint16(scratchSlotB)},
			{Type: zmachine.Variable, Value: uint16(scratchSlotA)},
		}, nil, &zmachine.Branch{Sense: true, Offset: 9999}); err != nil {
			return zmachine.Operand{}, err
		}
		branchPos := len(rc.code) - 2
		jumpPos := rc.emitRaw(0x8C, 0, 0) // A already wins: skip the B-store
		patchBranch(rc, branchPos, len(rc.code))
		if err := rc.emitInstr(storeOp, []zmachine.Operand{
			{Type: zmachine.SmallConst, Value: uint16(scratchSlotA)},
			{Type: zmachine.Variable, Value: uint16(scratchSlotB)},
		}, nil, nil); err != nil {
			return zmachine.Operand{}, err
		}
		patchJump(rc, jumpPos, len(rc.code))
	}
	return zmachine.Operand{Type: zmachine.Variable, Value: uint16(scratchSlotA)}, nil
}

func (rc *rcomp) compileMin(f *ast.Form) (zmachine.Operand, error) { return rc.compileMinMax(f, "MIN") }
func (rc *rcomp) compileMax(f *ast.Form) (zmachine.Operand, error) { return rc.compileMinMax(f, "MAX") }

// compileAbs implements ABS: constant-fold, else copy the value to
// scratchSlotA and use JL 0 plus a forward JUMP to negate it in place only
// when negative, the MIN/MAX shape with a fixed comparand. The result is
// returned as scratchSlotA; nothing is pushed on the stack.
func (rc *rcomp) compileAbs(f *ast.Form) (zmachine.Operand, error) {
	if len(f.Operands) != 1 {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0312", "%s: ABS requires exactly 1 operand", rc.name)
	}
	if v, ok := constValue(rc, f.Operands[0]); ok {
		if v < 0 {
			v = -v
		}
		return rc.classifyNumber(v), nil
	}
	v, err := rc.compileValue(f.Operands[0])
	if err != nil {
		return zmachine.Operand{}, err
	}
	if err := rc.storeScratch(scratchSlotA, v); err != nil {
		return zmachine.Operand{}, err
	}
	jl, _ := zmachine.Lookup("jl")
	if err := rc.emitInstr(jl, []zmachine.Operand{
		{Type: zmachine.Variable, Value: uint16(scratchSlotA)},
		{Type: zmachine.SmallConst, Value: 0},
	}, nil, &zmachine.Branch{Sense: true, Offset: 9999}); err != nil {
		return zmachine.Operand{}, err
	}
	branchPos := len(rc.code) - 2
	jumpPos := rc.emitRaw(0x8C, 0, 0) // already non-negative: skip the negation
	patchBranch(rc, branchPos, len(rc.code))
	subOp, _ := zmachine.Lookup("sub")
	store := uint8(scratchSlotA)
	if err := rc.emitInstr(subOp, []zmachine.Operand{
		{Type: zmachine.SmallConst, Value: 0},
		{Type: zmachine.Variable, Value: uint16(scratchSlotA)},
	}, &store, nil); err != nil {
		return zmachine.Operand{}, err
	}
	patchJump(rc, jumpPos, len(rc.code))
	return zmachine.Operand{Type: zmachine.Variable, Value: uint16(scratchSlotA)}, nil
}

// pushBoolConst reifies the 0/1 result of a branch-to-bool trampoline as
// ADD #0,#v -> stack rather than the native "push" opcode: the Z-machine's
// PUSH is a VAR-form instruction, but the source always lowers a boolean
// constant through ADD 0,v instead, so this matches its bit-exact output.
func (rc *rcomp) pushBoolConst(v uint16) error {
	addOp, _ := zmachine.Lookup("add")
	store := uint8(0)
	return rc.emitInstr(addOp, []zmachine.Operand{
		{Type: zmachine.SmallConst, Value: 0},
		{Type: zmachine.SmallConst, Value: v},
	}, &store, nil)
}

// pushBoolFromBranch finishes a branch-to-bool trampoline started by an
// already-emitted instruction whose branch targets forward: fall-through
// pushes 0, the branch target pushes 1, and both paths join past the
// pattern. branchPos is the position of the branch byte(s) within rc.code.
func (rc *rcomp) pushBoolFromBranch(branchPos int) (zmachine.Operand, error) {
	if err := rc.pushBoolConst(0); err != nil {
		return zmachine.Operand{}, err
	}
	jumpPos := rc.emitRaw(0x8C, 0, 0)
	patchBranch(rc, branchPos, len(rc.code))
	if err := rc.pushBoolConst(1); err != nil {
		return zmachine.Operand{}, err
	}
	patchJump(rc, jumpPos, len(rc.code))
	return stackResult, nil
}

// branchToBool emits op over operands with a forward branch on sense, then
// resolves it to a 0/1 stack value via pushBoolFromBranch.
func (rc *rcomp) branchToBool(op zmachine.Opcode, operands []zmachine.Operand, sense bool) (zmachine.Operand, error) {
	if err := rc.emitInstr(op, operands, nil, &zmachine.Branch{Sense: sense, Offset: 9999}); err != nil {
		return zmachine.Operand{}, err
	}
	return rc.pushBoolFromBranch(len(rc.code) - 2)
}

// compileEqual implements EQUAL?/=?: native JE compares one
// value against up to three others directly. 4+ comparands copy the first
// to a scratch global (to survive stack consumption across the nested
// compiles of the rest) and chain JE groups of up to three to a shared
// success trampoline.
func (rc *rcomp) compileEqual(f *ast.Form) (zmachine.Operand, error) {
	if len(f.Operands) < 2 {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0313", "%s: EQUAL? requires at least 2 operands", rc.name)
	}
	je, _ := zmachine.Lookup("je")
	if len(f.Operands) <= 4 {
		operands := make([]zmachine.Operand, 0, len(f.Operands))
		for _, o := range f.Operands {
			v, err := rc.compileValue(o)
			if err != nil {
				return zmachine.Operand{}, err
			}
			operands = append(operands, v)
		}
		return rc.branchToBool(je, operands, true)
	}

	first, err := rc.compileValue(f.Operands[0])
	if err != nil {
		return zmachine.Operand{}, err
	}
	if err := rc.storeScratch(scratchSlotA, first); err != nil {
		return zmachine.Operand{}, err
	}

	rest := f.Operands[1:]
	var successJumps []int
	for i := 0; i < len(rest); i += 3 {
		group := rest[i:min(i+3, len(rest))]
		operands := []zmachine.Operand{{Type: zmachine.Variable, Value: uint16(scratchSlotA)}}
		for _, o := range group {
			v, err := rc.compileValue(o)
			if err != nil {
				return zmachine.Operand{}, err
			}
			operands = append(operands, v)
		}
		if err := rc.emitInstr(je, operands, nil, &zmachine.Branch{Sense: true, Offset: 9999}); err != nil {
			return zmachine.Operand{}, err
		}
		successJumps = append(successJumps, len(rc.code)-2)
	}

	if err := rc.pushBoolConst(0); err != nil {
		return zmachine.Operand{}, err
	}
	endJump := rc.emitRaw(0x8C, 0, 0)

	successLabel := len(rc.code)
	for _, pos := range successJumps {
		patchBranch(rc, pos, successLabel)
	}
	if err := rc.pushBoolConst(1); err != nil {
		return zmachine.Operand{}, err
	}
	patchJump(rc, endJump, len(rc.code))
	return stackResult, nil
}

// compileShortCircuit implements AND?/OR?: isAnd selects
// AND? (short-circuits false on the first falsy subexpression) vs OR?
// (short-circuits true on the first truthy one). The last subexpression's
// own value becomes the whole expression's value when nothing short-circuits.
func (rc *rcomp) compileShortCircuit(f *ast.Form, isAnd bool) (zmachine.Operand, error) {
	if len(f.Operands) == 0 {
		v := int32(0)
		if isAnd {
			v = 1
		}
		return rc.classifyNumber(v), nil
	}
	jz, _ := zmachine.Lookup("jz")
	var shortCircuitJumps []int
	for _, operand := range f.Operands[:len(f.Operands)-1] {
		v, err := rc.compileValue(operand)
		if err != nil {
			return zmachine.Operand{}, err
		}
		if err := rc.emitInstr(jz, []zmachine.Operand{v}, nil, &zmachine.Branch{Sense: isAnd, Offset: 9999}); err != nil {
			return zmachine.Operand{}, err
		}
		shortCircuitJumps = append(shortCircuitJumps, len(rc.code)-2)
	}

	last, err := rc.compileValue(f.Operands[len(f.Operands)-1])
	if err != nil {
		return zmachine.Operand{}, err
	}
	if len(shortCircuitJumps) == 0 {
		return last, nil
	}

	if last != stackResult {
		pushOp, _ := zmachine.Lookup("push")
		if err := rc.emitInstr(pushOp, []zmachine.Operand{last}, nil, nil); err != nil {
			return zmachine.Operand{}, err
		}
	}
	endJump := rc.emitRaw(0x8C, 0, 0)
	shortCircuitLabel := len(rc.code)
	for _, pos := range shortCircuitJumps {
		patchBranch(rc, pos, shortCircuitLabel)
	}
	shortVal := uint16(1)
	if isAnd {
		shortVal = 0
	}
	if err := rc.pushBoolConst(shortVal); err != nil {
		return zmachine.Operand{}, err
	}
	patchJump(rc, endJump, len(rc.code))
	return stackResult, nil
}

func (rc *rcomp) compileAndPred(f *ast.Form) (zmachine.Operand, error) { return rc.compileShortCircuit(f, true) }
func (rc *rcomp) compileOrPred(f *ast.Form) (zmachine.Operand, error)  { return rc.compileShortCircuit(f, false) }

// bcomValue emulates BCOM on an already-classified runtime operand, writing
// the result into slot and returning variable(slot) rather than leaving it
// on the stack, so callers (XOR below) can combine several such results
// without stack-ordering ambiguity.
func (rc *rcomp) bcomValue(v zmachine.Operand, slot int) (zmachine.Operand, error) {
	if rc.pc.cfg.Version <= 4 {
		notOp, _ := zmachine.Lookup("not")
		store := uint8(slot)
		if err := rc.emitInstr(notOp, []zmachine.Operand{v}, &store, nil); err != nil {
			return zmachine.Operand{}, err
		}
		return zmachine.Operand{Type: zmachine.Variable, Value: uint16(slot)}, nil
	}
	// V≥5: NOT's 1OP slot was reused by CALL_1N. Emulate as 0 - (x + 1).
	addOp, _ := zmachine.Lookup("add")
	addStore := uint8(slot)
	if err := rc.emitInstr(addOp, []zmachine.Operand{v, {Type: zmachine.SmallConst, Value: 1}}, &addStore, nil); err != nil {
		return zmachine.Operand{}, err
	}
	subOp, _ := zmachine.Lookup("sub")
	subStore := uint8(slot)
	if err := rc.emitInstr(subOp, []zmachine.Operand{
		{Type: zmachine.SmallConst, Value: 0},
		{Type: zmachine.Variable, Value: uint16(slot)},
	}, &subStore, nil); err != nil {
		return zmachine.Operand{}, err
	}
	return zmachine.Operand{Type: zmachine.Variable, Value: uint16(slot)}, nil
}

func (rc *rcomp) compileBcom(f *ast.Form) (zmachine.Operand, error) {
	if len(f.Operands) != 1 {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0314", "%s: BCOM requires exactly 1 operand", rc.name)
	}
	if v, ok := constValue(rc, f.Operands[0]); ok {
		return rc.classifyNumber(^v), nil
	}
	val, err := rc.compileValue(f.Operands[0])
	if err != nil {
		return zmachine.Operand{}, err
	}
	if err := rc.storeScratch(scratchSlotA, val); err != nil {
		return zmachine.Operand{}, err
	}
	return rc.bcomValue(zmachine.Operand{Type: zmachine.Variable, Value: uint16(scratchSlotA)}, scratchSlotA)
}

// compileXor emulates XOR as (A OR B) AND NOT(A AND B), constant-folding
// when possible. Two anonymous locals hold the AND and OR
// intermediates so the final AND's two operands never collide on the stack.
func (rc *rcomp) compileXor(f *ast.Form) (zmachine.Operand, error) {
	if len(f.Operands) != 2 {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0315", "%s: XOR requires exactly 2 operands", rc.name)
	}
	if vals, ok := constOperands(rc, f.Operands); ok {
		return rc.classifyNumber(vals[0] ^ vals[1]), nil
	}

	a, err := rc.compileValue(f.Operands[0])
	if err != nil {
		return zmachine.Operand{}, err
	}
	if err := rc.storeScratch(scratchSlotA, a); err != nil {
		return zmachine.Operand{}, err
	}
	b, err := rc.compileValue(f.Operands[1])
	if err != nil {
		return zmachine.Operand{}, err
	}
	if err := rc.storeScratch(scratchSlotB, b); err != nil {
		return zmachine.Operand{}, err
	}
	opA := zmachine.Operand{Type: zmachine.Variable, Value: uint16(scratchSlotA)}
	opB := zmachine.Operand{Type: zmachine.Variable, Value: uint16(scratchSlotB)}

	bothSlot, err := rc.declareLocal("", 0)
	if err != nil {
		return zmachine.Operand{}, err
	}
	eitherSlot, err := rc.declareLocal("", 0)
	if err != nil {
		return zmachine.Operand{}, err
	}

	andOp, _ := zmachine.Lookup("and")
	bothStore := uint8(bothSlot)
	if err := rc.emitInstr(andOp, []zmachine.Operand{opA, opB}, &bothStore, nil); err != nil {
		return zmachine.Operand{}, err
	}
	orOp, _ := zmachine.Lookup("or")
	eitherStore := uint8(eitherSlot)
	if err := rc.emitInstr(orOp, []zmachine.Operand{opA, opB}, &eitherStore, nil); err != nil {
		return zmachine.Operand{}, err
	}

	notBoth, err := rc.bcomValue(zmachine.Operand{Type: zmachine.Variable, Value: uint16(bothSlot)}, bothSlot)
	if err != nil {
		return zmachine.Operand{}, err
	}

	finalAnd, _ := zmachine.Lookup("and")
	finalStore := uint8(0)
	if err := rc.emitInstr(finalAnd, []zmachine.Operand{
		{Type: zmachine.Variable, Value: uint16(eitherSlot)}, notBoth,
	}, &finalStore, nil); err != nil {
		return zmachine.Operand{}, err
	}
	return stackResult, nil
}

// compileTell implements TELL's token scan. PRINT shares the
// same emitter: both take a flat list of tokens to print in sequence.
func (rc *rcomp) compileTell(f *ast.Form) (zmachine.Operand, error) {
	for _, tok := range f.Operands {
		if err := rc.emitTellToken(tok); err != nil {
			return zmachine.Operand{}, err
		}
	}
	return zmachine.Operand{Type: zmachine.SmallConst, Value: 1}, nil
}

var tellPrefixOpcodes = map[string]string{
	"D": "print_obj",
	"N": "print_num",
	"C": "print_char",
	"P": "print_paddr",
	"A": "print_addr",
}

func (rc *rcomp) emitTellToken(tok ast.Node) error {
	switch v := tok.(type) {
	case *ast.String:
		op, _ := zmachine.Lookup("print_paddr")
		return rc.emitInstr(op, []zmachine.Operand{rc.classifyString(v.Value)}, nil, nil)

	case *ast.Atom:
		if v.Name == "CR" {
			op, _ := zmachine.Lookup("new_line")
			return rc.emitInstr(op, nil, nil, nil)
		}
		val, err := rc.classifyAtom(v.Name)
		if err != nil {
			return err
		}
		op, _ := zmachine.Lookup("print_num")
		return rc.emitInstr(op, []zmachine.Operand{val}, nil, nil)

	case *ast.Form:
		opName, ok := tellPrefixOpcodes[v.Op]
		if !ok || len(v.Operands) != 1 {
			if err := rc.pc.diag.Warnf("ZIL0316", "%s: unrecognized TELL token %s, defaulting to PRINT_NUM", rc.name, v.Op); err != nil {
				return err
			}
			val, err := rc.compileValue(tok)
			if err != nil {
				return err
			}
			op, _ := zmachine.Lookup("print_num")
			return rc.emitInstr(op, []zmachine.Operand{val}, nil, nil)
		}
		val, err := rc.compileValue(v.Operands[0])
		if err != nil {
			return err
		}
		op, _ := zmachine.Lookup(opName)
		return rc.emitInstr(op, []zmachine.Operand{val}, nil, nil)

	default:
		val, err := rc.compileValue(tok)
		if err != nil {
			return err
		}
		op, _ := zmachine.Lookup("print_num")
		return rc.emitInstr(op, []zmachine.Operand{val}, nil, nil)
	}
}

// compilePrinti implements PRINTI: a single inline string literal, printed
// via PRINT_PADDR against an interned string placeholder (see
// emitTellToken's *ast.String case, which this mirrors exactly).
func (rc *rcomp) compilePrinti(f *ast.Form) (zmachine.Operand, error) {
	s, ok := singleStringOperand(f)
	if !ok {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0318", "%s: PRINTI requires exactly one string literal argument", rc.name)
	}
	op, _ := zmachine.Lookup("print_paddr")
	if err := rc.emitInstr(op, []zmachine.Operand{rc.classifyString(s)}, nil, nil); err != nil {
		return zmachine.Operand{}, err
	}
	return zmachine.Operand{Type: zmachine.SmallConst, Value: 1}, nil
}

// compilePrintr implements PRINTR: PRINTI's string, a forced newline, then
// an unconditional routine return (the classic ZIL idiom for a routine's
// final "print this and return true" line).
func (rc *rcomp) compilePrintr(f *ast.Form) (zmachine.Operand, error) {
	if _, err := rc.compilePrinti(f); err != nil {
		return zmachine.Operand{}, err
	}
	newLine, _ := zmachine.Lookup("new_line")
	if err := rc.emitInstr(newLine, nil, nil, nil); err != nil {
		return zmachine.Operand{}, err
	}
	rtrue, _ := zmachine.Lookup("rtrue")
	return stackResult, rc.emitInstr(rtrue, nil, nil, nil)
}

func singleStringOperand(f *ast.Form) (string, bool) {
	if len(f.Operands) != 1 {
		return "", false
	}
	s, ok := f.Operands[0].(*ast.String)
	if !ok {
		return "", false
	}
	return s.Value, true
}

// compileAssignedPred implements ASSIGNED?: CHECK_ARG_COUNT on the local's
// 1-based slot number, branch-on-true to a
// push-1 trampoline.
func (rc *rcomp) compileAssignedPred(f *ast.Form) (zmachine.Operand, error) {
	if len(f.Operands) != 1 {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0317", "%s: ASSIGNED? requires exactly 1 operand", rc.name)
	}
	lv, ok := f.Operands[0].(*ast.LocalVar)
	if !ok {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0317", "%s: ASSIGNED? requires a local variable reference", rc.name)
	}
	if rc.pc.cfg.Version < 5 {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0305", "%s: ASSIGNED? requires V5 or later", rc.name)
	}
	slot, ok := rc.lookupLocal(lv.Name)
	if !ok {
		return zmachine.Operand{}, rc.pc.diag.Errorf("ZIL0317", "%s: ASSIGNED? .%s is not a declared local", rc.name, lv.Name)
	}
	op, _ := zmachine.Lookup("check_arg_count")
	return rc.branchToBool(op, []zmachine.Operand{{Type: zmachine.SmallConst, Value: uint16(slot)}}, true)
}
