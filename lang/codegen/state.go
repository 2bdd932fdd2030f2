package codegen

import (
	"fmt"

	"github.com/zilgen/zilgen/lang/ast"
	"github.com/zilgen/zilgen/lang/config"
	"github.com/zilgen/zilgen/lang/diag"
	"github.com/zilgen/zilgen/lang/symtab"
	"github.com/zilgen/zilgen/lang/zmachine"
)

// pcomp holds the whole-program compiler state, keyed to Z-machine symbol
// spaces (routines, globals, constants, objects, tables) instead of a
// single flat constant pool.
type pcomp struct {
	cfg  *config.Config
	sym  *symtab.Table
	diag *diag.Diagnostics
	prog *Program

	// routineNameIdx/routineNames intern routine names into the dense,
	// memoized 0xFD placeholder index space: repeated references to the
	// same routine reuse one index. Backed by swiss.Map since this is read
	// on every call-position operand classified across the whole program.
	routineNameIdx *internTable[int]
	routineNames   []string

	// stringTexts is the 0xFC placeholder index space. Unlike routines,
	// string literal operands are not deduplicated: each occurrence gets
	// its own index, matching how TELL allocates one PRINT_PADDR per
	// literal token rather than hunting for an identical earlier string.
	stringTexts []string

	nextGlobalSlot int
	nextObjectNum  int

	usedFlags *internTable[bool]
	usedProps *internTable[bool]
}

// reservedGlobalNames fixes the parser-state globals at known slot numbers
// (HERE/SCORE/MOVES additionally act as the V<=3 status-line triple, which
// is why they come first and contiguous).
var reservedGlobalNames = []string{"HERE", "SCORE", "MOVES", "PRSA", "PRSO", "PRSI", "WINNER"}

// scratchSlotA/scratchSlotB are two reserved global variable numbers the
// arithmetic/comparison emitters use to carry a value across a nested
// compile that would otherwise collide with it on the evaluation stack
// (the "scratch global" technique for 4+-comparand EQUAL?, generalized here
// to MIN/MAX, ABS, BCOM and XOR). They sit right after the 7
// reserved parser-state globals (0x10-0x16).
const (
	scratchSlotA = 0x17
	scratchSlotB = 0x18
)

func newPcomp(cfg *config.Config, sym *symtab.Table, d *diag.Diagnostics) *pcomp {
	return &pcomp{
		cfg:            cfg,
		sym:            sym,
		diag:           d,
		routineNameIdx: newInternTable[int](16),
		usedFlags:      newInternTable[bool](8),
		usedProps:      newInternTable[bool](8),
		nextGlobalSlot: 0x19, // reserved parser globals 0x10-0x16, scratch 0x17-0x18
		nextObjectNum:  1,
	}
}

// internRoutine returns the memoized placeholder index for name, allocating
// one on first reference.
func (pc *pcomp) internRoutine(name string) int {
	if idx, ok := pc.routineNameIdx.get(name); ok {
		return idx
	}
	idx := len(pc.routineNames)
	pc.routineNames = append(pc.routineNames, name)
	pc.routineNameIdx.set(name, idx)
	return idx
}

// internString allocates a fresh, non-deduplicated placeholder index for a
// string literal operand.
func (pc *pcomp) internString(text string) int {
	idx := len(pc.stringTexts)
	pc.stringTexts = append(pc.stringTexts, text)
	return idx
}

// blockCtx is one entry of the block stack: pushed by PROG/BIND/REPEAT/DO/
// MAP-*, popped on that construct's exit.
type blockCtx struct {
	index      int
	activation string
	// untargetedExit/targetedExit are the code offsets (relative to the routine's in-progress
	// buffer) of JUMP sentinels that must be patched to the block's actual
	// exit offset once known.
	untargetedExit []int // 8C FF BB sites
	targetedExit   []int // 8C FE <index> sites naming this block by index
}

// loopCtx is one entry of the loop stack: pushed by the routine itself plus
// REPEAT/PROG/BIND/DO/MAP-*.
type loopCtx struct {
	start      int // code offset of the loop's re-entry point
	activation string
	isRoutine  bool // true only for the implicit routine-level loop frame
	again      []int // 8C FF AA (block-level) or 8C FF AC (routine-level) sites
}

// rcomp holds per-routine compiler state. It is created fresh for each
// routine and discarded once the routine's bytes are folded into the
// program-level buffers held by pcomp.
type rcomp struct {
	pc         *pcomp
	name       string
	activation string // this routine's own activation name, if any

	code []byte // body bytes, emitted after the (deferred) prolog

	locals     []string // index 0 unused, 1..n are slot 1..n
	localIndex map[string]int
	declared   int     // locals declared by the routine header, before widening
	defaults   []int32 // V<=4 initial values, grown in lockstep with locals

	blocks []*blockCtx
	loops  []*loopCtx

	pendingRoutine []pendingRoutineRef
	pendingTable   []pendingTableRef
	pendingString  []pendingStringRef

	usedLocals map[string]bool
}

type pendingRoutineRef struct {
	offset int
	name   string
}

type pendingTableRef struct {
	offset int
	table  int
}

type pendingStringRef struct {
	offset int
	text   string
}

func newRcomp(pc *pcomp, name string) *rcomp {
	return &rcomp{
		pc:         pc,
		name:       name,
		locals:     []string{""},
		localIndex: make(map[string]int),
		usedLocals: make(map[string]bool),
	}
}

// declareLocal binds name to the next free slot (error if the routine is
// already at the 15-local ceiling) and returns its slot number.
func (rc *rcomp) declareLocal(name string, defaultValue int32) (int, error) {
	if len(rc.locals)-1 >= 15 {
		return 0, rc.pc.diag.Errorf("ZIL0301", "routine %s: too many locals (limit 15)", rc.name)
	}
	slot := len(rc.locals)
	rc.locals = append(rc.locals, name)
	rc.defaults = append(rc.defaults, defaultValue)
	if name != "" {
		rc.localIndex[name] = slot
	}
	return slot, nil
}

func (rc *rcomp) lookupLocal(name string) (int, bool) {
	slot, ok := rc.localIndex[name]
	return slot, ok
}

// emitInstr encodes one instruction into the routine's in-progress buffer
// and records the position of any routine/string/table placeholder operand
// it contains, so the fixup registry can later promote it to an absolute
// offset once the routine's base address in the program buffer is known.
func (rc *rcomp) emitInstr(op zmachine.Opcode, operands []zmachine.Operand, store *uint8, branch *zmachine.Branch) error {
	base := len(rc.code)
	offsets := zmachine.OperandOffsets(op, operands)
	for i, o := range operands {
		if o.Type != zmachine.LargeConst {
			continue
		}
		pos := base + offsets[i]
		switch o.Value >> 8 {
		case 0xFD:
			idx := int(o.Value & 0xFF)
			rc.pendingRoutine = append(rc.pendingRoutine, pendingRoutineRef{offset: pos, name: rc.pc.routineNames[idx]})
		case 0xFC:
			idx := int(o.Value & 0xFF)
			rc.pendingString = append(rc.pendingString, pendingStringRef{offset: pos, text: rc.pc.stringTexts[idx]})
		case 0xFF:
			idx := int(o.Value & 0xFF)
			rc.pendingTable = append(rc.pendingTable, pendingTableRef{offset: pos, table: idx})
		}
	}

	code, err := zmachine.EncodeInstruction(rc.code, op, operands, store, branch)
	if err != nil {
		return fmt.Errorf("routine %s: %w", rc.name, err)
	}
	rc.code = code
	return nil
}

// emitRaw appends literal bytes (used by the sentinel-planting RETURN/AGAIN
// emitters in blocks.go, where the triplet shape itself is the placeholder,
// not a classified operand).
func (rc *rcomp) emitRaw(b ...byte) int {
	pos := len(rc.code)
	rc.code = append(rc.code, b...)
	return pos
}

func (rc *rcomp) pushBlock(activation string) *blockCtx {
	b := &blockCtx{index: len(rc.blocks), activation: activation}
	rc.blocks = append(rc.blocks, b)
	return b
}

func (rc *rcomp) popBlock() *blockCtx {
	b := rc.blocks[len(rc.blocks)-1]
	rc.blocks = rc.blocks[:len(rc.blocks)-1]
	return b
}

func (rc *rcomp) pushLoop(start int, activation string, isRoutine bool) *loopCtx {
	l := &loopCtx{start: start, activation: activation, isRoutine: isRoutine}
	rc.loops = append(rc.loops, l)
	return l
}

func (rc *rcomp) popLoop() *loopCtx {
	l := rc.loops[len(rc.loops)-1]
	rc.loops = rc.loops[:len(rc.loops)-1]
	return l
}

// findBlock searches the block stack outward (innermost first) for name; an
// empty name matches the innermost block (untargeted RETURN).
func (rc *rcomp) findBlock(name string) (*blockCtx, bool) {
	if name == "" {
		if len(rc.blocks) == 0 {
			return nil, false
		}
		return rc.blocks[len(rc.blocks)-1], true
	}
	for i := len(rc.blocks) - 1; i >= 0; i-- {
		if rc.blocks[i].activation == name {
			return rc.blocks[i], true
		}
	}
	return nil, false
}

// findLoop searches the loop stack outward for name; an empty name matches
// the innermost loop (untargeted AGAIN).
func (rc *rcomp) findLoop(name string) (*loopCtx, bool) {
	if name == "" {
		if len(rc.loops) == 0 {
			return nil, false
		}
		return rc.loops[len(rc.loops)-1], true
	}
	for i := len(rc.loops) - 1; i >= 0; i-- {
		if rc.loops[i].activation == name {
			return rc.loops[i], true
		}
	}
	return nil, false
}

// compileBody compiles a statement sequence, discarding any stack value left
// by all but the final statement: each intermediate non-void expression
// statement's result is simply left unconsumed by the Z-machine.
func (rc *rcomp) compileBody(body []ast.Node) error {
	for _, stmt := range body {
		if err := rc.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}
