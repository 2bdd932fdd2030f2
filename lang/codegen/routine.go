package codegen

import (
	"github.com/zilgen/zilgen/lang/ast"
	"github.com/zilgen/zilgen/lang/zmachine"
)

// This file implements the routine compiler: parameter/local declaration,
// the explicit-store prolog that lets routine-level AGAIN re-initialize
// optional/aux defaults, implicit-return synthesis, and the deferred
// n_locals/initial-value header, represented as a value written at
// finalize rather than bytes patched after the fact.

// terminatorOps are the statements after which the routine compiler never
// synthesizes an implicit RET.
var terminatorOps = map[string]bool{
	"RTRUE": true, "RFALSE": true, "RETURN": true,
	"QUIT": true, "RESTART": true, "AGAIN": true,
}

func isTerminatorStmt(n ast.Node) bool {
	f, ok := n.(*ast.Form)
	return ok && terminatorOps[f.Op]
}

// compileRoutine compiles one routine to a finished rcomp: locals declared,
// body compiled (including the synthesized implicit return), but with the
// n_locals/initial-value header left undecided until the caller (the
// program-level assembler in generate.go) knows the routine's final slot
// count, which PROG/BIND may have widened past the declared parameter list.
func (pc *pcomp) compileRoutine(r *ast.Routine) (*rcomp, error) {
	pc.diag.SetRoutine(r.Name)
	defer pc.diag.SetRoutine("")

	if err := pc.validateRoutineParams(r); err != nil {
		return nil, err
	}

	rc := newRcomp(pc, r.Name)
	rc.activation = r.Activation

	for _, name := range r.Required {
		if _, err := rc.declareLocal(name, 0); err != nil {
			return nil, err
		}
	}
	var deferredInit []ast.Param
	for _, p := range r.Optional {
		deferredInit = append(deferredInit, p)
		def := pc.foldDefault(rc, p.Default)
		if _, err := rc.declareLocal(p.Name, def); err != nil {
			return nil, err
		}
	}
	for _, p := range r.Aux {
		deferredInit = append(deferredInit, p)
		def := pc.foldDefault(rc, p.Default)
		if _, err := rc.declareLocal(p.Name, def); err != nil {
			return nil, err
		}
	}
	rc.declared = len(rc.locals) - 1

	// Explicit store prolog, required for every version (not only V>=5,
	// which has no header initial-value words at all) so
	// that a routine-level AGAIN -- which jumps back to this point, not to
	// the true routine entry -- re-establishes optional/aux defaults.
	storeOp, _ := zmachine.Lookup("store")
	prologStart := len(rc.code)
	for _, p := range deferredInit {
		if p.Default == nil {
			continue
		}
		slot, _ := rc.lookupLocal(p.Name)
		v, err := rc.compileValue(p.Default)
		if err != nil {
			return nil, err
		}
		if err := rc.emitInstr(storeOp, []zmachine.Operand{
			{Type: zmachine.SmallConst, Value: uint16(slot)}, v,
		}, nil, nil); err != nil {
			return nil, err
		}
	}

	routineLoop := rc.pushLoop(prologStart, r.Activation, true)

	if err := rc.compileRoutineBody(r.Body); err != nil {
		return nil, err
	}

	rc.popLoop()
	rc.finalizeLoopAgain(routineLoop)

	if len(rc.blocks) != 0 {
		return nil, pc.diag.Errorf("ZIL0330", "%s: %d block context(s) left unclosed", r.Name, len(rc.blocks))
	}

	if err := pc.checkUnusedLocals(rc, r); err != nil {
		return nil, err
	}
	return rc, nil
}

// foldDefault constant-folds an optional/aux parameter's default initializer
// for the routine header's V<=4 initial-value word; 0 when the default
// isn't compile-time constant (its real value is still established at
// runtime by the explicit store prolog above).
func (pc *pcomp) foldDefault(rc *rcomp, n ast.Node) int32 {
	if n == nil {
		return 0
	}
	if v, ok := constValue(rc, n); ok {
		return v
	}
	return 0
}

// compileRoutineBody compiles stmts, synthesizing an implicit RET/RET_POPPED
// for the final statement when it isn't already a terminator. Compiling the
// last statement via compileValue (rather than compileStmt) naturally
// distinguishes three cases: a plain value classifies directly and becomes
// RET <value>; a
// void instruction emitter returns SmallConst(1) (see emitGeneric) and
// becomes RET 1; anything that leaves its result on the stack returns
// stackResult and becomes RET_POPPED.
func (rc *rcomp) compileRoutineBody(body []ast.Node) error {
	if len(body) == 0 {
		retOp, _ := zmachine.Lookup("ret")
		return rc.emitInstr(retOp, []zmachine.Operand{{Type: zmachine.SmallConst, Value: 0}}, nil, nil)
	}
	for _, stmt := range body[:len(body)-1] {
		if err := rc.compileStmt(stmt); err != nil {
			return err
		}
	}
	last := body[len(body)-1]
	if isTerminatorStmt(last) {
		return rc.compileStmt(last)
	}

	v, err := rc.compileValue(last)
	if err != nil {
		return err
	}
	if v == stackResult {
		retPopped, _ := zmachine.Lookup("ret_popped")
		return rc.emitInstr(retPopped, nil, nil, nil)
	}
	retOp, _ := zmachine.Lookup("ret")
	return rc.emitInstr(retOp, []zmachine.Operand{v}, nil, nil)
}

// validateRoutineParams enforces the routine invariants: required
// parameter count ceilings per version, the 15-local limit (checked
// incrementally by declareLocal, but the required+optional+aux count is
// checked up front here so the diagnostic names the actual limit breached),
// and GO's special entry-point constraints.
func (pc *pcomp) validateRoutineParams(r *ast.Routine) error {
	max := pc.cfg.MaxRequiredParams()
	if len(r.Required) > max {
		if err := pc.diag.Errorf("ZIL0320", "routine %s: %d required parameters exceeds the V%d limit of %d", r.Name, len(r.Required), pc.cfg.Version, max); err != nil {
			return err
		}
	}
	total := len(r.Required) + len(r.Optional) + len(r.Aux)
	if total > 15 {
		if err := pc.diag.Errorf("ZIL0301", "routine %s: %d locals exceeds the 15-local limit", r.Name, total); err != nil {
			return err
		}
	}
	for i, p := range r.Optional {
		if len(r.Required)+i >= max {
			if err := pc.diag.Warnf("MDL0417", "routine %s: optional parameter %s at slot %d is unreachable by CALL in V%d", r.Name, p.Name, len(r.Required)+i+1, pc.cfg.Version); err != nil {
				return err
			}
		}
	}
	if r.Name == "GO" {
		if len(r.Required) != 0 {
			if err := pc.diag.Errorf("ZIL0321", "GO must take zero required parameters"); err != nil {
				return err
			}
		}
		if pc.cfg.Version < 6 && (len(r.Optional) != 0 || len(r.Aux) != 0) {
			if err := pc.diag.Errorf("ZIL0322", "GO must declare zero locals in V%d", pc.cfg.Version); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkUnusedLocals emits ZIL0210 for a declared local that was never
// referenced by classifyLocalRef, excluding names with a side-effecting
// initializer. This carve-out is implemented by simply excluding every
// optional/aux parameter (their
// initializer, if any, is always compiled and stored regardless of whether
// the name is read again), so only required parameters and locals introduced
// in the body (PROG/BIND bindings, DO and MAP-* loop variables) are checked.
func (pc *pcomp) checkUnusedLocals(rc *rcomp, r *ast.Routine) error {
	skip := make(map[string]bool, len(r.Optional)+len(r.Aux))
	for _, p := range r.Optional {
		skip[p.Name] = true
	}
	for _, p := range r.Aux {
		skip[p.Name] = true
	}
	for _, name := range rc.locals[1:] {
		if name == "" || skip[name] || rc.usedLocals[name] {
			continue
		}
		if err := pc.diag.Warnf("ZIL0210", "routine %s: local %s declared but never used", r.Name, name); err != nil {
			return err
		}
	}
	return nil
}
