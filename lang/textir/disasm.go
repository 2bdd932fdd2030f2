package textir

import (
	"fmt"
	"strings"

	"github.com/zilgen/zilgen/lang/codegen"
	"github.com/zilgen/zilgen/lang/config"
	"github.com/zilgen/zilgen/lang/zmachine"
)

// This file implements the reverse direction of Parse/Generate: Disassemble
// takes a compiled codegen.Program and prints a human-readable instruction
// listing (not textual IR), the output half of the zilgen CLI's
// compile/disasm commands. It walks the opcode table backwards (bytes ->
// mnemonic) instead of forwards, so it is its own pass rather than reusing
// zmachine.EncodeInstruction.

type decodedOpcode struct {
	op    zmachine.Opcode
	count zmachine.Count
}

// opcodeByNumber builds the reverse index (count, number, version) ->
// mnemonic. Building it fresh per call (rather than package-level) keeps
// it trivially correct if zmachine.Table ever grows a duplicate (count,
// number) pair distinguished only by version range, since Available is
// re-checked at lookup time against whatever version Disassemble is given.
func opcodeByNumber(version int) map[zmachine.Count]map[uint8]zmachine.Opcode {
	idx := map[zmachine.Count]map[uint8]zmachine.Opcode{
		zmachine.Count0OP: {}, zmachine.Count1OP: {}, zmachine.Count2OP: {},
		zmachine.CountVAR: {}, zmachine.CountEXT: {},
	}
	for _, op := range zmachine.Table {
		if !op.Available(version) {
			continue
		}
		idx[op.Count][op.Number] = op
	}
	return idx
}

// Disassemble renders every routine in prog as a listing of address,
// opcode bytes consumed, and decoded mnemonic/operands, plus a summary of
// the table data region and every outstanding fixup. cfg.Version selects
// which opcode each byte pattern decodes to, since several mnemonics
// (not/call_1n, save/save_v4, pop/catch) share a (count, number) pair
// across disjoint version ranges.
func Disassemble(prog *codegen.Program, cfg *config.Config) string {
	idx := opcodeByNumber(cfg.Version)
	var b strings.Builder
	for _, r := range prog.Routines {
		fmt.Fprintf(&b, "function %s @%d locals=%d\n", r.Name, r.Address, r.NumLocals)
		d := &decoder{code: r.Code, version: cfg.Version, idx: idx}
		headerLen := 1
		if cfg.Version <= 4 {
			headerLen += 2 * r.NumLocals
		}
		d.pos = headerLen
		for d.pos < len(d.code) {
			start := d.pos
			line, err := d.decodeOne()
			if err != nil {
				fmt.Fprintf(&b, "  %04x  <decode error: %v>\n", start, err)
				break
			}
			fmt.Fprintf(&b, "  %04x  %s\n", start, line)
		}
	}
	fmt.Fprintf(&b, "table data: %d bytes across %d tables\n", len(prog.TableData), len(prog.Tables))
	for _, f := range prog.RoutineFixups() {
		fmt.Fprintf(&b, "fixup code@%d -> routine %s\n", f.Offset, f.Target)
	}
	for _, f := range prog.StringPlaceholders() {
		fmt.Fprintf(&b, "fixup code@%d -> string %q\n", f.Offset, f.Text)
	}
	for _, f := range prog.TableFixupsInCode() {
		fmt.Fprintf(&b, "fixup code@%d -> table #%d\n", f.Offset, f.Table)
	}
	for _, f := range prog.TableRoutineFixups() {
		fmt.Fprintf(&b, "fixup table@%d -> routine %s\n", f.Offset, f.Target)
	}
	for _, f := range prog.StringPlaceholdersInTables() {
		fmt.Fprintf(&b, "fixup table@%d -> string %q\n", f.Offset, f.Text)
	}
	for _, f := range prog.TableFixupsInTables() {
		fmt.Fprintf(&b, "fixup table@%d -> table #%d\n", f.Offset, f.Table)
	}
	return b.String()
}

type decoder struct {
	code    []byte
	pos     int
	version int
	idx     map[zmachine.Count]map[uint8]zmachine.Opcode
}

func (d *decoder) u8() (byte, error) {
	if d.pos >= len(d.code) {
		return 0, fmt.Errorf("truncated instruction")
	}
	v := d.code[d.pos]
	d.pos++
	return v, nil
}

// decodeOne decodes the instruction at d.pos, advances past it, and
// returns its textual rendering.
func (d *decoder) decodeOne() (string, error) {
	b0, err := d.u8()
	if err != nil {
		return "", err
	}

	var op zmachine.Opcode
	var types []zmachine.OperandType
	var ok bool

	switch {
	case b0 == 0xBE && d.version >= 5:
		num, err := d.u8()
		if err != nil {
			return "", err
		}
		op, ok = d.idx[zmachine.CountEXT][num]
		if !ok {
			return "", fmt.Errorf("unknown EXT opcode %#x", num)
		}
		types, err = d.readVarTypes()
		if err != nil {
			return "", err
		}
	case b0&0xC0 == 0xC0: // Variable form
		num := b0 & 0x1F
		count := zmachine.Count2OP
		if b0&0x20 != 0 {
			count = zmachine.CountVAR
		}
		op, ok = d.idx[count][num]
		if !ok {
			return "", fmt.Errorf("unknown VAR-form opcode %#x (count %v)", num, count)
		}
		types, err = d.readVarTypes()
		if err != nil {
			return "", err
		}
	case b0&0x80 == 0x80: // Short form
		typeBits := (b0 >> 4) & 0x03
		num := b0 & 0x0F
		if typeBits == 3 {
			op, ok = d.idx[zmachine.Count0OP][num]
			if !ok {
				return "", fmt.Errorf("unknown 0OP opcode %#x", num)
			}
		} else {
			op, ok = d.idx[zmachine.Count1OP][num]
			if !ok {
				return "", fmt.Errorf("unknown 1OP opcode %#x", num)
			}
			types = []zmachine.OperandType{zmachine.OperandType(typeBits)}
		}
	default: // Long form, 2OP
		num := b0 & 0x1F
		op, ok = d.idx[zmachine.Count2OP][num]
		if !ok {
			return "", fmt.Errorf("unknown 2OP opcode %#x", num)
		}
		t0, t1 := zmachine.SmallConst, zmachine.SmallConst
		if b0&0x40 != 0 {
			t0 = zmachine.Variable
		}
		if b0&0x20 != 0 {
			t1 = zmachine.Variable
		}
		types = []zmachine.OperandType{t0, t1}
	}

	operands, err := d.readOperands(types)
	if err != nil {
		return "", err
	}

	var line strings.Builder
	line.WriteString(op.Name)
	for _, o := range operands {
		fmt.Fprintf(&line, " %s", formatOperand(o))
	}
	if op.IsStore {
		dest, err := d.u8()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&line, " -> %s", formatVarByte(dest))
	}
	if op.IsBranch {
		branch, err := d.readBranch()
		if err != nil {
			return "", err
		}
		line.WriteString(" " + branch)
	}
	return line.String(), nil
}

// readVarTypes reads the 1 or 2 packed type bytes of VAR/EXT form, stopping
// at the first Omitted slot.
func (d *decoder) readVarTypes() ([]zmachine.OperandType, error) {
	var types []zmachine.OperandType
	for tb := 0; tb < 2; tb++ {
		b, err := d.u8()
		if err != nil {
			return nil, err
		}
		done := false
		for slot := 0; slot < 4; slot++ {
			t := zmachine.OperandType((b >> uint(6-2*slot)) & 0x03)
			if t == zmachine.Omitted {
				done = true
				break
			}
			types = append(types, t)
		}
		if done || len(types) < 4 {
			break
		}
	}
	return types, nil
}

func (d *decoder) readOperands(types []zmachine.OperandType) ([]zmachine.Operand, error) {
	ops := make([]zmachine.Operand, 0, len(types))
	for _, t := range types {
		switch t {
		case zmachine.LargeConst:
			hi, err := d.u8()
			if err != nil {
				return nil, err
			}
			lo, err := d.u8()
			if err != nil {
				return nil, err
			}
			ops = append(ops, zmachine.Operand{Type: t, Value: uint16(hi)<<8 | uint16(lo)})
		case zmachine.SmallConst, zmachine.Variable:
			v, err := d.u8()
			if err != nil {
				return nil, err
			}
			ops = append(ops, zmachine.Operand{Type: t, Value: uint16(v)})
		}
	}
	return ops, nil
}

func (d *decoder) readBranch() (string, error) {
	b0, err := d.u8()
	if err != nil {
		return "", err
	}
	sense := "true"
	if b0&0x80 == 0 {
		sense = "false"
	}
	var offset int32
	if b0&0x40 != 0 {
		offset = int32(b0 & 0x3F)
	} else {
		b1, err := d.u8()
		if err != nil {
			return "", err
		}
		v := uint16(b0&0x3F)<<8 | uint16(b1)
		if v&0x2000 != 0 {
			offset = int32(v) - 0x4000
		} else {
			offset = int32(v)
		}
	}
	return fmt.Sprintf("?%s:%d", sense, offset), nil
}

func formatOperand(o zmachine.Operand) string {
	switch o.Type {
	case zmachine.LargeConst, zmachine.SmallConst:
		return fmt.Sprintf("%d", o.Value)
	case zmachine.Variable:
		return formatVarByte(byte(o.Value))
	default:
		return "?"
	}
}

// formatVarByte renders a variable-number byte: 0 is the stack, 1-15 are
// locals, 16-255 are globals, per the Z-machine Standard's variable space.
func formatVarByte(n byte) string {
	switch {
	case n == 0:
		return "sp"
	case n < 16:
		return fmt.Sprintf("local%d", n)
	default:
		return fmt.Sprintf("g%02x", n)
	}
}
