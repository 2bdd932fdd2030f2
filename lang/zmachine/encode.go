package zmachine

import "fmt"

// Branch is a conditional-transfer descriptor: Sense selects branch-on-true
// (true) or branch-on-false (false), and Offset is the signed jump distance:
// target = pc_after_branch + offset - 2. The values 0 and 1 are reserved
// shortcuts meaning "branch to RFALSE"/"branch to RTRUE" respectively and
// never address real code.
type Branch struct {
	Sense  bool
	Offset int32
}

// EncodeInstruction appends the bytes for one instruction -- opcode byte(s),
// operand type byte(s) where applicable, operands, optional store byte,
// optional branch byte(s) -- to code, and returns the extended slice. This
// is the sole place form selection happens.
func EncodeInstruction(code []byte, op Opcode, operands []Operand, store *uint8, branch *Branch) ([]byte, error) {
	switch op.Count {
	case Count0OP:
		code = append(code, 0xB0|(op.Number&0x0F))
		code = encodeOperands(code, operands)
	case Count1OP:
		if len(operands) != 1 {
			return nil, fmt.Errorf("zmachine: %s is 1OP, got %d operands", op.Name, len(operands))
		}
		typeBits := operandTypeBits(operands[0].Type)
		code = append(code, 0x80|(typeBits<<4)|(op.Number&0x0F))
		code = encodeOperands(code, operands)
	case Count2OP:
		if len(operands) == 2 && bothLongEncodable(operands) {
			b := op.Number & 0x1F
			if operands[0].Type == Variable {
				b |= 0x40
			}
			if operands[1].Type == Variable {
				b |= 0x20
			}
			code = append(code, b)
			code = encodeOperands(code, operands)
		} else {
			// A 2OP opcode with a large-const operand, or any operand count
			// other than 2, is promoted to VAR form with a=0 (2OP-in-VAR).
			code = encodeVarForm(code, op.Number, false, operands)
		}
	case CountVAR:
		code = encodeVarForm(code, op.Number, true, operands)
	case CountEXT:
		code = append(code, 0xBE, op.Number)
		code = encodeVarOperandsOnly(code, operands)
	default:
		return nil, fmt.Errorf("zmachine: unknown opcode count class %v", op.Count)
	}

	if store != nil {
		code = append(code, *store)
	}
	if branch != nil {
		code = EncodeBranch(code, *branch)
	}
	return code, nil
}

// bothLongEncodable reports whether both operands of a would-be 2OP
// instruction fit the Long form (neither is a large constant).
func bothLongEncodable(operands []Operand) bool {
	for _, o := range operands {
		if o.Type == LargeConst {
			return false
		}
	}
	return true
}

// encodeVarForm emits the VAR-form prefix byte, one (or for 8-operand
// CALL_VS2/CALL_VN2, two) type bytes, then the operands. isTrueVar selects
// the VAR bit (true VAR instruction) vs. a 2OP opcode promoted into VAR form.
func encodeVarForm(code []byte, number uint8, isTrueVar bool, operands []Operand) []byte {
	b := byte(0xC0) | (number & 0x1F)
	if isTrueVar {
		b |= 0x20
	}
	code = append(code, b)
	return encodeVarOperandsOnly(code, operands)
}

// encodeVarOperandsOnly emits the packed type byte(s) (4 operands per byte,
// trailing slots filled with Omitted=11) followed by the operands
// themselves, as used by VAR and EXT forms.
func encodeVarOperandsOnly(code []byte, operands []Operand) []byte {
	if len(operands) > 8 {
		operands = operands[:8]
	}
	nTypeBytes := 1
	if len(operands) > 4 {
		nTypeBytes = 2
	}
	for tb := 0; tb < nTypeBytes; tb++ {
		var typeByte byte
		for slot := 0; slot < 4; slot++ {
			idx := tb*4 + slot
			t := Omitted
			if idx < len(operands) {
				t = operands[idx].Type
			}
			typeByte |= byte(t) << uint(6-2*slot)
		}
		code = append(code, typeByte)
	}
	return encodeOperands(code, operands)
}

func operandTypeBits(t OperandType) byte { return byte(t) }

// encodeOperands appends the value bytes for each operand: 2 bytes
// big-endian for a large constant, 1 byte for a small constant or variable
// slot number.
func encodeOperands(code []byte, operands []Operand) []byte {
	for _, o := range operands {
		switch o.Type {
		case LargeConst:
			code = append(code, byte(o.Value>>8), byte(o.Value))
		case SmallConst, Variable:
			code = append(code, byte(o.Value))
		case Omitted:
			// no bytes
		}
	}
	return code
}

// EncodeBranch appends the branch byte(s) for b to code. A short form (1
// byte) is used when the offset fits 2..63; otherwise the long 14-bit
// signed form (2 bytes) is used. Offsets 0 and 1 are the reserved
// RFALSE/RTRUE shortcuts and always use the short form regardless of the
// general range rule.
func EncodeBranch(code []byte, b Branch) []byte {
	senseBit := byte(0)
	if b.Sense {
		senseBit = 0x80
	}

	if b.Offset == 0 || b.Offset == 1 || (b.Offset >= 2 && b.Offset <= 63) {
		return append(code, senseBit|0x40|byte(b.Offset&0x3F))
	}

	// Long form: 14-bit signed offset across two bytes, bit 6 clear.
	v := uint16(b.Offset) & 0x3FFF
	hi := byte(v>>8) & 0x3F
	lo := byte(v)
	return append(code, senseBit|hi, lo)
}

// BranchSize returns the number of bytes EncodeBranch would emit for b,
// without actually encoding it.
func BranchSize(b Branch) int {
	if b.Offset == 0 || b.Offset == 1 || (b.Offset >= 2 && b.Offset <= 63) {
		return 1
	}
	return 2
}

// OperandOffsets returns, for each operand in order, its byte offset from
// the start of the instruction (offset 0 is the first opcode byte) at which
// its value bytes begin. codegen's fixup registry uses this to record the
// exact position of a routine/string/table placeholder without having to
// scan the emitted bytes for its marker, which would risk confusing a
// placeholder with a genuine large-constant value that happens to share its
// high byte.
func OperandOffsets(op Opcode, operands []Operand) []int {
	prefix := 1
	switch op.Count {
	case CountEXT:
		prefix = 3
		if len(operands) > 4 {
			prefix = 4
		}
	case CountVAR:
		prefix = 2
		if len(operands) > 4 {
			prefix = 3
		}
	case Count2OP:
		if !(len(operands) == 2 && bothLongEncodable(operands)) {
			prefix = 2
			if len(operands) > 4 {
				prefix = 3
			}
		}
	}

	offsets := make([]int, len(operands))
	cur := prefix
	for i, o := range operands {
		offsets[i] = cur
		switch o.Type {
		case LargeConst:
			cur += 2
		case SmallConst, Variable:
			cur += 1
		}
	}
	return offsets
}
