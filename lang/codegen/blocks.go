package codegen

import (
	"github.com/zilgen/zilgen/lang/ast"
	"github.com/zilgen/zilgen/lang/zmachine"
)

// This file implements RETURN/AGAIN and the block/loop exit patching they
// require.
//
// One way to resolve the RETURN/AGAIN sentinel triplets is to scan the
// emitted bytes after the fact, since a construct compiled through
// independent sub-emitters might not be able to thread a cursor back to
// its caller. This implementation never buffers a construct's bytes
// separately -- everything is appended straight onto the routine's single
// growing code slice -- so the byte offset of a freshly planted sentinel is
// always known exactly at the point it's emitted. Recording that offset
// directly into the matching blockCtx/loopCtx removes the one genuine
// ambiguity a scan would hit here: an AGAIN targeted past an intervening
// inner loop shares byte-for-byte the same sentinel pattern a nearer,
// untargeted AGAIN would use, so a blind scan can't tell them apart. Direct
// tracking can, because compileAgain already knows which loopCtx findLoop
// matched.

// patchJump overwrites the large-const operand of a 3-byte JUMP sentinel at
// pos (opcode byte + 2 operand bytes) so it targets target, using the same
// `target = pc_after + offset - 2` arithmetic as branch bytes.
func patchJump(rc *rcomp, pos, target int) {
	off := int32(target-pos-1) & 0xFFFF
	rc.code[pos+1] = byte(off >> 8)
	rc.code[pos+2] = byte(off)
}

// patchBranch overwrites a 2-byte long-form conditional branch field at pos
// (the position of the branch field's first byte) to target. The
// arithmetic/comparison emitters in arithmetic.go always seed a branch with
// a placeholder offset large enough to force the long form, so the field's
// width here always matches what was reserved at emit time.
func patchBranch(rc *rcomp, pos, target int) {
	off := int32(target-pos) & 0x3FFF
	sense := rc.code[pos] & 0x80
	rc.code[pos] = sense | byte(off>>8)
	rc.code[pos+1] = byte(off)
}

// finalizeBlockExits patches every RETURN sentinel recorded against b (both
// untargeted, from a plain RETURN nested directly inside it, and targeted,
// from a RETURN naming b by activation) to jump to exitOffset, the code
// offset immediately following the construct b belongs to.
func (rc *rcomp) finalizeBlockExits(b *blockCtx, exitOffset int) {
	for _, pos := range b.untargetedExit {
		patchJump(rc, pos, exitOffset)
	}
	for _, pos := range b.targetedExit {
		patchJump(rc, pos, exitOffset)
	}
}

// finalizeLoopAgain patches every AGAIN recorded against l to jump back to
// l's re-entry offset.
func (rc *rcomp) finalizeLoopAgain(l *loopCtx) {
	for _, pos := range l.again {
		patchJump(rc, pos, l.start)
	}
}

// compileReturn implements RETURN. An untargeted RETURN either exits the
// innermost block (default policy) or the routine itself (funny-return
// policy, see config.Config.FunnyReturn); a targeted RETURN always searches
// by activation name, blocks first then the enclosing routine.
func (rc *rcomp) compileReturn(f *ast.Form) error {
	target := f.Activation

	if target == "" && rc.pc.cfg.FunnyReturn() {
		return rc.emitRoutineReturn(f.Operands)
	}
	if target == "" {
		if len(rc.blocks) == 0 {
			return rc.emitRoutineReturn(f.Operands)
		}
		return rc.emitBlockReturn(rc.blocks[len(rc.blocks)-1], f.Operands, false)
	}
	if b, ok := rc.findBlock(target); ok {
		return rc.emitBlockReturn(b, f.Operands, true)
	}
	if target == rc.activation {
		return rc.emitRoutineReturn(f.Operands)
	}
	if err := rc.pc.diag.Warnf("ZIL0206", "%s: RETURN activation %q not found, treating as untargeted", rc.name, target); err != nil {
		return err
	}
	return rc.compileReturn(&ast.Form{Op: "RETURN", Operands: f.Operands})
}

// emitRoutineReturn emits a true RET. A no-operand routine-level RETURN
// returns 1.
func (rc *rcomp) emitRoutineReturn(operands []ast.Node) error {
	retOp, _ := zmachine.Lookup("ret")
	if len(operands) == 0 {
		return rc.emitInstr(retOp, []zmachine.Operand{{Type: zmachine.SmallConst, Value: 1}}, nil, nil)
	}
	v, err := rc.compileValue(operands[0])
	if err != nil {
		return err
	}
	return rc.emitInstr(retOp, []zmachine.Operand{v}, nil, nil)
}

// emitBlockReturn pushes the return value onto the stack (the block's
// result slot) and plants the RETURN sentinel.
func (rc *rcomp) emitBlockReturn(b *blockCtx, operands []ast.Node, targeted bool) error {
	var value zmachine.Operand
	if len(operands) == 0 {
		value = zmachine.Operand{Type: zmachine.SmallConst, Value: 0}
	} else {
		v, err := rc.compileValue(operands[0])
		if err != nil {
			return err
		}
		value = v
	}
	if value != stackResult {
		pushOp, _ := zmachine.Lookup("push")
		if err := rc.emitInstr(pushOp, []zmachine.Operand{value}, nil, nil); err != nil {
			return err
		}
	}

	if targeted {
		pos := rc.emitRaw(0x8C, 0xFE, byte(b.index))
		b.targetedExit = append(b.targetedExit, pos)
		return nil
	}
	pos := rc.emitRaw(0x8C, 0xFF, 0xBB)
	b.untargetedExit = append(b.untargetedExit, pos)
	return nil
}

// compileAgain implements AGAIN: an unnamed AGAIN restarts the innermost
// loop (which always resolves, since the routine itself is pushed as the
// outermost loop frame); a named AGAIN searches outward for a matching
// activation and warns if none matches.
func (rc *rcomp) compileAgain(f *ast.Form) error {
	l, ok := rc.findLoop(f.Activation)
	if !ok {
		if f.Activation == "" {
			return rc.pc.diag.Warnf("ZIL0207", "%s: AGAIN outside any loop, ignored", rc.name)
		}
		if err := rc.pc.diag.Warnf("ZIL0206", "%s: AGAIN activation %q not found, treating as untargeted", rc.name, f.Activation); err != nil {
			return err
		}
		return rc.compileAgain(&ast.Form{Op: "AGAIN"})
	}
	third := byte(0xAA)
	if l.isRoutine {
		third = 0xAC
	}
	pos := rc.emitRaw(0x8C, 0xFF, third)
	l.again = append(l.again, pos)
	return nil
}
