package codegen

import (
	"github.com/zilgen/zilgen/lang/ast"
	"github.com/zilgen/zilgen/lang/config"
	"github.com/zilgen/zilgen/lang/diag"
	"github.com/zilgen/zilgen/lang/symtab"
)

// Generate is the top-level driver: it assigns object numbers, resolves
// constants and globals, compiles every routine (entry point GO first,
// regardless of source position) and assembles their code into one buffer,
// then flattens the interned table list into the table data region,
// promoting every placeholder recorded along the way into the absolute
// fixups the external assembler consumes.
func Generate(prog *ast.Program, cfg *config.Config, sym *symtab.Table, d *diag.Diagnostics) (*Program, error) {
	pc := newPcomp(cfg, sym, d)
	pc.prog = &Program{
		RoutineMap:      map[string]int{},
		Globals:         map[string]int{},
		GlobalValues:    map[string]uint16{},
		Constants:       map[string]int32{},
		Objects:         map[string]int{},
		MissingRoutines: map[string]bool{},
		UsedFlags:       map[string]bool{},
		UsedProps:       map[string]bool{},
	}

	if err := pc.assignObjects(prog.Objects); err != nil {
		return nil, err
	}
	if err := pc.assignConstants(prog.Constants); err != nil {
		return nil, err
	}
	if err := pc.assignGlobals(prog.Globals); err != nil {
		return nil, err
	}
	if err := pc.compileRoutines(prog.Routines); err != nil {
		return nil, err
	}
	pc.assembleTables()
	if err := pc.resolveMissingRoutines(); err != nil {
		return nil, err
	}

	pc.prog.UsedFlags = pc.usedFlags.snapshot()
	pc.prog.UsedProps = pc.usedProps.snapshot()

	return pc.prog, nil
}

// assignObjects numbers objects 1..255 (V<=3) or 1..65535 (V>=4), before
// globals so a global initializer may name one.
func (pc *pcomp) assignObjects(objects []*ast.Object) error {
	for _, o := range objects {
		pc.prog.Objects[o.Name] = pc.nextObjectNum
		pc.prog.ObjectOrder = append(pc.prog.ObjectOrder, o.Name)
		pc.nextObjectNum++
	}
	max := 255
	if pc.cfg.Version >= 4 {
		max = 65535
	}
	if pc.nextObjectNum-1 > max {
		return pc.diag.Errorf("ZIL0323", "program declares %d objects, exceeding the V%d limit of %d", pc.nextObjectNum-1, pc.cfg.Version, max)
	}
	return nil
}

// assignConstants resolves every CONSTANT declaration to an integer,
// allowing forward/mutual references among constants (a constant's
// initializer may name another constant declared later in source order)
// by repeating resolution passes over the still-pending declarations until
// a pass resolves nothing more; each pass resolves every initializer whose
// referenced constants and object/flag/property names are already known.
func (pc *pcomp) assignConstants(constants []*ast.Constant) error {
	pending := append([]*ast.Constant(nil), constants...)
	for progress := true; len(pending) > 0 && progress; {
		progress = false
		var next []*ast.Constant
		for _, c := range pending {
			v, ok := pc.foldConstExpr(c.Value)
			if !ok {
				next = append(next, c)
				continue
			}
			pc.prog.Constants[c.Name] = v
			pc.prog.ConstantOrder = append(pc.prog.ConstantOrder, c.Name)
			progress = true
		}
		pending = next
	}
	for _, c := range pending {
		if err := pc.diag.Warnf("ZIL0324", "constant %s: could not resolve to a compile-time integer, defaulting to 0", c.Name); err != nil {
			return err
		}
		pc.prog.Constants[c.Name] = 0
		pc.prog.ConstantOrder = append(pc.prog.ConstantOrder, c.Name)
	}
	return nil
}

// foldConstExpr evaluates a CONSTANT initializer at program scope, where no
// routine/local context exists yet: numeric literals, named constants
// (including symbol-table flags/properties/parser constants and the T/<>
// builtins), objects, and +, -, * and BCOM over already-resolved operands.
// Division and every other operator are not folded here.
func (pc *pcomp) foldConstExpr(n ast.Node) (int32, bool) {
	switch v := n.(type) {
	case *ast.Number:
		return v.Value, true
	case *ast.Atom:
		if val, ok := pc.lookupConstant(v.Name); ok {
			return val, true
		}
		if num, ok := pc.prog.Objects[v.Name]; ok {
			return int32(num), true
		}
		return 0, false
	case *ast.Form:
		vals := make([]int32, 0, len(v.Operands))
		for _, o := range v.Operands {
			val, ok := pc.foldConstExpr(o)
			if !ok {
				return 0, false
			}
			vals = append(vals, val)
		}
		return foldArith(v.Op, vals)
	default:
		return 0, false
	}
}

func foldArith(op string, vals []int32) (int32, bool) {
	switch op {
	case "+":
		var acc int32
		for _, v := range vals {
			acc += v
		}
		return acc, true
	case "-":
		if len(vals) == 0 {
			return 0, true
		}
		acc := vals[0]
		for _, v := range vals[1:] {
			acc -= v
		}
		if len(vals) == 1 {
			return -vals[0], true
		}
		return acc, true
	case "*":
		acc := int32(1)
		for _, v := range vals {
			acc *= v
		}
		return acc, true
	case "BCOM":
		if len(vals) == 1 {
			return ^vals[0], true
		}
	}
	return 0, false
}

// assignGlobals numbers globals starting after the reserved parser-state
// and scratch slots, resolving table-literal initializers
// through the ordinary routine-free table compiler (tables don't need a
// routine context) and constant/numeric initializers directly.
func (pc *pcomp) assignGlobals(globals []*ast.Global) error {
	reserved := make(map[string]bool, len(reservedGlobalNames))
	for _, name := range reservedGlobalNames {
		reserved[name] = true
	}

	// Reserved globals are always present at their fixed slots, whether or
	// not the source declares them, so routine bodies can reference HERE,
	// SCORE, PRSA and friends unconditionally.
	for i, name := range reservedGlobalNames {
		pc.prog.Globals[name] = 0x10 + i
		pc.prog.GlobalOrder = append(pc.prog.GlobalOrder, name)
	}

	declared := make(map[string]*ast.Global, len(globals))
	for _, g := range globals {
		declared[g.Name] = g
	}

	// Assign slots for declared globals that aren't already reserved, in
	// source order.
	for _, g := range globals {
		if reserved[g.Name] {
			continue
		}
		if pc.nextGlobalSlot > 0xFF {
			return pc.diag.Errorf("ZIL0325", "global %s: global variable space (0x10-0xFF) exhausted", g.Name)
		}
		pc.prog.Globals[g.Name] = pc.nextGlobalSlot
		pc.prog.GlobalOrder = append(pc.prog.GlobalOrder, g.Name)
		pc.nextGlobalSlot++
	}

	// Compute initial values for every declared global (reserved ones only
	// if the source actually gives them an initializer).
	rc := newRcomp(pc, "")
	for _, g := range globals {
		if g.Value == nil {
			continue
		}
		if t, ok := g.Value.(*ast.Table); ok {
			idx, err := rc.compileTableLiteral(t)
			if err != nil {
				return err
			}
			pc.prog.GlobalValues[g.Name] = 0xFF00 | uint16(idx)
			continue
		}
		if v, ok := pc.foldConstExpr(g.Value); ok {
			pc.prog.GlobalValues[g.Name] = uint16(int16(v))
			continue
		}
		if err := pc.diag.Warnf("ZIL0326", "global %s: initializer is not a compile-time constant or table, defaulting to 0", g.Name); err != nil {
			return err
		}
	}

	// rc.pendingTable/pendingString offsets are relative to a throwaway
	// routine buffer (globals have no code of their own); any table
	// literal's internal routine/string/table refs were already recorded
	// against the table itself in output.go's Table.*Refs, which is what
	// assembleTables promotes, so nothing further needs doing with rc.code
	// here (it only ever grows when a global's table body embeds a nested
	// (STRING)/(LEXV) table, which rc.pendingRoutine et al. would wrongly
	// attribute to a non-existent routine if not discarded).
	_ = declared
	return nil
}

// compileRoutines compiles every routine -- GO first, regardless of its
// position in the source program -- and concatenates their
// code into Program.Code at the version's alignment boundary, promoting
// each routine's pending placeholder positions (recorded relative to its
// own body buffer) into absolute fixups.
func (pc *pcomp) compileRoutines(routines []*ast.Routine) error {
	ordered := orderRoutinesGOFirst(routines)
	align := pc.cfg.Alignment()

	for _, r := range ordered {
		rc, err := pc.compileRoutine(r)
		if err != nil {
			return err
		}

		for len(pc.prog.Code)%align != 0 {
			pc.prog.Code = append(pc.prog.Code, 0)
		}
		address := len(pc.prog.Code)

		header := pc.buildRoutineHeader(rc)
		pc.prog.Code = append(pc.prog.Code, header...)
		bodyBase := len(pc.prog.Code)
		pc.prog.Code = append(pc.prog.Code, rc.code...)

		for _, ref := range rc.pendingRoutine {
			pc.prog.routineFixupsCode = append(pc.prog.routineFixupsCode, RoutineFixup{Offset: bodyBase + ref.offset, Target: ref.name})
		}
		for _, ref := range rc.pendingString {
			pc.prog.stringPlaceholdersCode = append(pc.prog.stringPlaceholdersCode, StringFixup{Offset: bodyBase + ref.offset, Text: ref.text})
		}
		for _, ref := range rc.pendingTable {
			pc.prog.tableFixupsCode = append(pc.prog.tableFixupsCode, TableFixup{Offset: bodyBase + ref.offset, Table: ref.table})
		}

		pc.prog.RoutineMap[r.Name] = len(pc.prog.Routines)
		pc.prog.Routines = append(pc.prog.Routines, &Routine{
			Name:      r.Name,
			Address:   address,
			NumLocals: len(rc.locals) - 1,
		})
	}

	// Routine.Code is only safe to slice out now that every routine has been
	// appended and pc.prog.Code has stopped growing: each routine's end is
	// either the next routine's start address or, for the last one, the end
	// of the whole buffer.
	for i, rt := range pc.prog.Routines {
		end := len(pc.prog.Code)
		if i+1 < len(pc.prog.Routines) {
			end = pc.prog.Routines[i+1].Address
		}
		rt.Code = pc.prog.Code[rt.Address:end]
	}
	return nil
}

// orderRoutinesGOFirst returns routines with GO moved to the front if
// present, preserving the relative order of everything else.
func orderRoutinesGOFirst(routines []*ast.Routine) []*ast.Routine {
	ordered := make([]*ast.Routine, 0, len(routines))
	var goRoutine *ast.Routine
	for _, r := range routines {
		if r.Name == "GO" {
			goRoutine = r
			continue
		}
		ordered = append(ordered, r)
	}
	if goRoutine != nil {
		ordered = append([]*ast.Routine{goRoutine}, ordered...)
	}
	return ordered
}

// buildRoutineHeader serializes the n_locals byte and, in V<=4, the
// 2-byte-per-local initial-value words. This is deferred until the
// routine's body is fully compiled (see routine.go) so a PROG/BIND that
// widened rc.locals is reflected in the final n_locals count without any
// byte-shift pass over already-emitted code: every pending placeholder
// offset recorded during compilation was always relative to rc.code (the
// body only), so it's unaffected by the header's own size.
func (pc *pcomp) buildRoutineHeader(rc *rcomp) []byte {
	n := len(rc.locals) - 1
	header := make([]byte, 0, 1+2*n)
	header = append(header, byte(n))
	if pc.cfg.Version <= 4 {
		for i := 0; i < n; i++ {
			var v int32
			if i < len(rc.defaults) {
				v = rc.defaults[i]
			}
			u := uint16(int16(v))
			header = append(header, byte(u>>8), byte(u))
		}
	}
	return header
}

// assembleTables flattens the interned table list into Program.TableData in
// index order, promoting each table's own fixups
// (recorded relative to that table's Bytes) into absolute offsets within
// the shared region, and records each table's base offset for 0xFF
// placeholder resolution via TableOffsets.
func (pc *pcomp) assembleTables() {
	pc.prog.TableOffsets = make([]int, len(pc.prog.Tables))
	for i, t := range pc.prog.Tables {
		base := len(pc.prog.TableData)
		pc.prog.TableOffsets[i] = base
		pc.prog.TableData = append(pc.prog.TableData, t.Bytes...)

		for _, ref := range t.RoutineRefs {
			pc.prog.routineFixupsTables = append(pc.prog.routineFixupsTables, RoutineFixup{Offset: base + ref.Offset, Target: ref.Target})
		}
		for _, ref := range t.StringRefs {
			pc.prog.stringPlaceholdersTable = append(pc.prog.stringPlaceholdersTable, StringFixup{Offset: base + ref.Offset, Text: ref.Text})
		}
		for _, ref := range t.TableRefs {
			pc.prog.tableFixupsTables = append(pc.prog.tableFixupsTables, TableFixup{Offset: base + ref.Offset, Table: ref.Table})
		}
	}
}

// resolveMissingRoutines records every routine name referenced through a
// placeholder but never compiled (a recoverable "call FALSE" situation) and
// emits one warning per name.
func (pc *pcomp) resolveMissingRoutines() error {
	for _, name := range pc.routineNames {
		if _, ok := pc.prog.RoutineMap[name]; !ok {
			pc.prog.MissingRoutines[name] = true
			if err := pc.diag.Warnf("ZIL0327", "routine %s is referenced but never defined; calls to it resolve to FALSE", name); err != nil {
				return err
			}
		}
	}
	return nil
}
