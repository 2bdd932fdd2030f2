// Package zmachine implements the bit-exact instruction encoding rules of
// the Z-machine Standard (versions 1-8): opcode form selection, operand
// type tagging, store and branch byte encoding, and the opcode table itself.
//
// This package has no notion of ZIL, routines, or control flow -- it is the
// pure "given an opcode and operands, produce bytes" layer that codegen's
// instruction emitters call into, kept separate from the layer that decides
// which instructions to emit in the first place.
package zmachine

import "fmt"

// Count identifies an opcode's operand-count class, which together with the
// operand types and count determines its encoded form.
type Count uint8

const (
	Count0OP Count = iota
	Count1OP
	Count2OP
	CountVAR
	CountEXT
)

func (c Count) String() string {
	switch c {
	case Count0OP:
		return "0OP"
	case Count1OP:
		return "1OP"
	case Count2OP:
		return "2OP"
	case CountVAR:
		return "VAR"
	case CountEXT:
		return "EXT"
	default:
		return fmt.Sprintf("Count(%d)", c)
	}
}

// OperandType is the 2-bit type tag carried by every operand.
type OperandType uint8

const (
	LargeConst OperandType = 0
	SmallConst OperandType = 1
	Variable   OperandType = 2
	Omitted    OperandType = 3
)

func (t OperandType) String() string {
	switch t {
	case LargeConst:
		return "large-const"
	case SmallConst:
		return "small-const"
	case Variable:
		return "variable"
	case Omitted:
		return "omitted"
	default:
		return fmt.Sprintf("OperandType(%d)", t)
	}
}

// Operand is a single classified operand: its type tag and 16-bit value
// (truncated to 8 bits on emission for small-const/variable).
type Operand struct {
	Type  OperandType
	Value uint16
}

// Opcode describes one Z-machine instruction: its opcode number within its
// operand-count class, the class itself, and its store/branch/text shape
// and version availability. Grounded on the OPCODES table in
// original_source/zilc/zmachine/opcodes.py, extended to the full set of
// opcodes the instruction emitters in codegen require.
type Opcode struct {
	Name       string
	Number     uint8
	Count      Count
	IsStore    bool
	IsBranch   bool
	IsText     bool
	MinVersion int
	MaxVersion int
}

// Available reports whether this opcode may be used at the given version.
func (op Opcode) Available(version int) bool {
	min, max := op.MinVersion, op.MaxVersion
	if min == 0 {
		min = 1
	}
	if max == 0 {
		max = 8
	}
	return version >= min && version <= max
}

// Table is the full set of opcodes known to the encoder, keyed by mnemonic
// (lowercase, matching the textir surface form).
var Table = buildTable()

func buildTable() map[string]Opcode {
	t := make(map[string]Opcode, 160)
	add := func(o Opcode) { t[o.Name] = o }

	// 2OP (Long form canonically, but classifiable as VAR too; the encoder
	// decides form from operand count/types, the table only fixes opcode
	// number within the 2OP/VAR space).
	add(Opcode{Name: "je", Number: 0x01, Count: Count2OP, IsBranch: true})
	add(Opcode{Name: "jl", Number: 0x02, Count: Count2OP, IsBranch: true})
	add(Opcode{Name: "jg", Number: 0x03, Count: Count2OP, IsBranch: true})
	add(Opcode{Name: "dec_chk", Number: 0x04, Count: Count2OP, IsBranch: true})
	add(Opcode{Name: "inc_chk", Number: 0x05, Count: Count2OP, IsBranch: true})
	add(Opcode{Name: "jin", Number: 0x06, Count: Count2OP, IsBranch: true})
	add(Opcode{Name: "test", Number: 0x07, Count: Count2OP, IsBranch: true})
	add(Opcode{Name: "or", Number: 0x08, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "and", Number: 0x09, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "test_attr", Number: 0x0A, Count: Count2OP, IsBranch: true})
	add(Opcode{Name: "set_attr", Number: 0x0B, Count: Count2OP})
	add(Opcode{Name: "clear_attr", Number: 0x0C, Count: Count2OP})
	add(Opcode{Name: "store", Number: 0x0D, Count: Count2OP})
	add(Opcode{Name: "insert_obj", Number: 0x0E, Count: Count2OP})
	add(Opcode{Name: "loadw", Number: 0x0F, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "loadb", Number: 0x10, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "get_prop", Number: 0x11, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "get_prop_addr", Number: 0x12, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "get_next_prop", Number: 0x13, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "add", Number: 0x14, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "sub", Number: 0x15, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "mul", Number: 0x16, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "div", Number: 0x17, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "mod", Number: 0x18, Count: Count2OP, IsStore: true})
	add(Opcode{Name: "call_2s", Number: 0x19, Count: Count2OP, IsStore: true, MinVersion: 4})
	add(Opcode{Name: "call_2n", Number: 0x1A, Count: Count2OP, MinVersion: 5})
	add(Opcode{Name: "set_colour", Number: 0x1B, Count: Count2OP, MinVersion: 5})
	add(Opcode{Name: "throw", Number: 0x1C, Count: Count2OP, MinVersion: 5})

	// 1OP
	add(Opcode{Name: "jz", Number: 0x00, Count: Count1OP, IsBranch: true})
	add(Opcode{Name: "get_sibling", Number: 0x01, Count: Count1OP, IsStore: true, IsBranch: true})
	add(Opcode{Name: "get_child", Number: 0x02, Count: Count1OP, IsStore: true, IsBranch: true})
	add(Opcode{Name: "get_parent", Number: 0x03, Count: Count1OP, IsStore: true})
	add(Opcode{Name: "get_prop_len", Number: 0x04, Count: Count1OP, IsStore: true})
	add(Opcode{Name: "inc", Number: 0x05, Count: Count1OP})
	add(Opcode{Name: "dec", Number: 0x06, Count: Count1OP})
	add(Opcode{Name: "print_addr", Number: 0x07, Count: Count1OP, IsText: true})
	add(Opcode{Name: "call_1s", Number: 0x08, Count: Count1OP, IsStore: true, MinVersion: 4})
	add(Opcode{Name: "remove_obj", Number: 0x09, Count: Count1OP})
	add(Opcode{Name: "print_obj", Number: 0x0A, Count: Count1OP, IsText: true})
	add(Opcode{Name: "ret", Number: 0x0B, Count: Count1OP})
	add(Opcode{Name: "jump", Number: 0x0C, Count: Count1OP})
	add(Opcode{Name: "print_paddr", Number: 0x0D, Count: Count1OP, IsText: true})
	add(Opcode{Name: "load", Number: 0x0E, Count: Count1OP, IsStore: true})
	add(Opcode{Name: "not", Number: 0x0F, Count: Count1OP, IsStore: true, MaxVersion: 4})
	add(Opcode{Name: "call_1n", Number: 0x0F, Count: Count1OP, MinVersion: 5})

	// 0OP
	add(Opcode{Name: "rtrue", Number: 0x00, Count: Count0OP})
	add(Opcode{Name: "rfalse", Number: 0x01, Count: Count0OP})
	add(Opcode{Name: "print", Number: 0x02, Count: Count0OP, IsText: true})
	add(Opcode{Name: "print_ret", Number: 0x03, Count: Count0OP, IsText: true})
	add(Opcode{Name: "nop", Number: 0x04, Count: Count0OP})
	add(Opcode{Name: "save", Number: 0x05, Count: Count0OP, IsBranch: true, MaxVersion: 3})
	add(Opcode{Name: "save_v4", Number: 0x05, Count: Count0OP, IsStore: true, MinVersion: 4, MaxVersion: 4})
	add(Opcode{Name: "restore", Number: 0x06, Count: Count0OP, IsBranch: true, MaxVersion: 3})
	add(Opcode{Name: "restore_v4", Number: 0x06, Count: Count0OP, IsStore: true, MinVersion: 4, MaxVersion: 4})
	add(Opcode{Name: "restart", Number: 0x07, Count: Count0OP})
	add(Opcode{Name: "ret_popped", Number: 0x08, Count: Count0OP})
	add(Opcode{Name: "pop", Number: 0x09, Count: Count0OP, MaxVersion: 4})
	add(Opcode{Name: "catch", Number: 0x09, Count: Count0OP, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "quit", Number: 0x0A, Count: Count0OP})
	add(Opcode{Name: "new_line", Number: 0x0B, Count: Count0OP})
	add(Opcode{Name: "show_status", Number: 0x0C, Count: Count0OP, MaxVersion: 3})
	add(Opcode{Name: "verify", Number: 0x0D, Count: Count0OP, IsBranch: true, MinVersion: 3})
	add(Opcode{Name: "piracy", Number: 0x0F, Count: Count0OP, IsBranch: true, MinVersion: 5})

	// VAR
	add(Opcode{Name: "call", Number: 0x00, Count: CountVAR, IsStore: true, MaxVersion: 3})
	add(Opcode{Name: "call_vs", Number: 0x00, Count: CountVAR, IsStore: true, MinVersion: 4})
	add(Opcode{Name: "storew", Number: 0x01, Count: CountVAR})
	add(Opcode{Name: "storeb", Number: 0x02, Count: CountVAR})
	add(Opcode{Name: "put_prop", Number: 0x03, Count: CountVAR})
	add(Opcode{Name: "read", Number: 0x04, Count: CountVAR, MaxVersion: 4})
	add(Opcode{Name: "sread", Number: 0x04, Count: CountVAR, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "print_char", Number: 0x05, Count: CountVAR, IsText: true})
	add(Opcode{Name: "print_num", Number: 0x06, Count: CountVAR, IsText: true})
	add(Opcode{Name: "random", Number: 0x07, Count: CountVAR, IsStore: true})
	add(Opcode{Name: "push", Number: 0x08, Count: CountVAR})
	add(Opcode{Name: "pull", Number: 0x09, Count: CountVAR})
	add(Opcode{Name: "split_window", Number: 0x0A, Count: CountVAR, MinVersion: 3})
	add(Opcode{Name: "set_window", Number: 0x0B, Count: CountVAR, MinVersion: 3})
	add(Opcode{Name: "call_vs2", Number: 0x0C, Count: CountVAR, IsStore: true, MinVersion: 4})
	add(Opcode{Name: "erase_window", Number: 0x0D, Count: CountVAR, MinVersion: 4})
	add(Opcode{Name: "erase_line", Number: 0x0E, Count: CountVAR, MinVersion: 4})
	add(Opcode{Name: "set_cursor", Number: 0x0F, Count: CountVAR, MinVersion: 4})
	add(Opcode{Name: "get_cursor", Number: 0x10, Count: CountVAR, MinVersion: 4})
	add(Opcode{Name: "set_text_style", Number: 0x11, Count: CountVAR, MinVersion: 4})
	add(Opcode{Name: "buffer_mode", Number: 0x12, Count: CountVAR, MinVersion: 4})
	add(Opcode{Name: "output_stream", Number: 0x13, Count: CountVAR})
	add(Opcode{Name: "input_stream", Number: 0x14, Count: CountVAR, MinVersion: 3})
	add(Opcode{Name: "sound_effect", Number: 0x15, Count: CountVAR, MinVersion: 3})
	add(Opcode{Name: "read_char", Number: 0x16, Count: CountVAR, IsStore: true, MinVersion: 4})
	add(Opcode{Name: "scan_table", Number: 0x17, Count: CountVAR, IsStore: true, IsBranch: true, MinVersion: 4})
	add(Opcode{Name: "not_v5", Number: 0x18, Count: CountVAR, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "call_vn", Number: 0x19, Count: CountVAR, MinVersion: 5})
	add(Opcode{Name: "call_vn2", Number: 0x1A, Count: CountVAR, MinVersion: 5})
	add(Opcode{Name: "tokenise", Number: 0x1B, Count: CountVAR, MinVersion: 5})
	add(Opcode{Name: "encode_text", Number: 0x1C, Count: CountVAR, MinVersion: 5})
	add(Opcode{Name: "copy_table", Number: 0x1D, Count: CountVAR, MinVersion: 5})
	add(Opcode{Name: "print_table", Number: 0x1E, Count: CountVAR, MinVersion: 5})
	add(Opcode{Name: "check_arg_count", Number: 0x1F, Count: CountVAR, IsBranch: true, MinVersion: 5})

	// EXT (V5+)
	add(Opcode{Name: "save_ext", Number: 0x00, Count: CountEXT, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "restore_ext", Number: 0x01, Count: CountEXT, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "log_shift", Number: 0x02, Count: CountEXT, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "art_shift", Number: 0x03, Count: CountEXT, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "set_font", Number: 0x04, Count: CountEXT, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "save_undo", Number: 0x09, Count: CountEXT, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "restore_undo", Number: 0x0A, Count: CountEXT, IsStore: true, MinVersion: 5})
	add(Opcode{Name: "print_unicode", Number: 0x0B, Count: CountEXT, IsText: true, MinVersion: 5})
	add(Opcode{Name: "check_unicode", Number: 0x0C, Count: CountEXT, IsStore: true, MinVersion: 5})

	return t
}

// Lookup returns the opcode registered under name.
func Lookup(name string) (Opcode, bool) {
	op, ok := Table[name]
	return op, ok
}
