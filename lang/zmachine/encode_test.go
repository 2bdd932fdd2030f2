package zmachine_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zilgen/zilgen/lang/zmachine"
)

func TestEncodeInstruction_Long2OP(t *testing.T) {
	op, ok := zmachine.Lookup("add")
	require.True(t, ok)

	store := uint8(0)
	code, err := zmachine.EncodeInstruction(nil, op,
		[]zmachine.Operand{{Type: zmachine.Variable, Value: 1}, {Type: zmachine.SmallConst, Value: 5}},
		&store, nil)
	require.NoError(t, err)
	// ADD opcode 0x14, operand0=variable(bit6 set), operand1=small(bit5 clear)
	require.Equal(t, []byte{0x40 | 0x14, 0x01, 0x05, 0x00}, code)
}

func TestEncodeInstruction_Short0OP(t *testing.T) {
	op, ok := zmachine.Lookup("rtrue")
	require.True(t, ok)
	code, err := zmachine.EncodeInstruction(nil, op, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0xB0}, code)
}

func TestEncodeInstruction_Short1OP(t *testing.T) {
	op, ok := zmachine.Lookup("jump")
	require.True(t, ok)
	code, err := zmachine.EncodeInstruction(nil, op,
		[]zmachine.Operand{{Type: zmachine.LargeConst, Value: 0xFFBB}}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x8C, 0xFF, 0xBB}, code)
}

func TestEncodeInstruction_VarPromotedFromLargeConst2OP(t *testing.T) {
	op, ok := zmachine.Lookup("add")
	require.True(t, ok)
	store := uint8(0)
	code, err := zmachine.EncodeInstruction(nil, op,
		[]zmachine.Operand{{Type: zmachine.LargeConst, Value: 1000}, {Type: zmachine.SmallConst, Value: 2}},
		&store, nil)
	require.NoError(t, err)
	// VAR form, a=0 (2OP-in-VAR): 0xC0 | 0x14
	require.Equal(t, byte(0xC0|0x14), code[0])
	// type byte: large(00), small(01), omitted, omitted
	require.Equal(t, byte(0b00_01_11_11), code[1])
	require.Equal(t, []byte{0x03, 0xE8, 0x02, 0x00}, code[2:])
}

func TestEncodeInstruction_TrueVar(t *testing.T) {
	op, ok := zmachine.Lookup("call_vs")
	require.True(t, ok)
	store := uint8(0)
	code, err := zmachine.EncodeInstruction(nil, op,
		[]zmachine.Operand{
			{Type: zmachine.LargeConst, Value: 0xFD01},
			{Type: zmachine.SmallConst, Value: 3},
		}, &store, nil)
	require.NoError(t, err)
	require.Equal(t, byte(0xC0|0x20|0x00), code[0])
}

func TestEncodeInstruction_Extended(t *testing.T) {
	op, ok := zmachine.Lookup("log_shift")
	require.True(t, ok)
	store := uint8(0)
	code, err := zmachine.EncodeInstruction(nil, op,
		[]zmachine.Operand{{Type: zmachine.Variable, Value: 1}, {Type: zmachine.SmallConst, Value: 2}},
		&store, nil)
	require.NoError(t, err)
	require.Equal(t, byte(0xBE), code[0])
	require.Equal(t, op.Number, code[1])
}

func TestEncodeBranch_Short(t *testing.T) {
	code := zmachine.EncodeBranch(nil, zmachine.Branch{Sense: true, Offset: 10})
	require.Equal(t, []byte{0x80 | 0x40 | 10}, code)
}

func TestEncodeBranch_Long(t *testing.T) {
	code := zmachine.EncodeBranch(nil, zmachine.Branch{Sense: false, Offset: 1000})
	require.Len(t, code, 2)
	require.Equal(t, byte(0), code[0]&0xC0) // sense=0, long-form bit (bit6) clear
}

func TestEncodeBranch_ReservedShortcuts(t *testing.T) {
	require.Equal(t, 1, zmachine.BranchSize(zmachine.Branch{Sense: true, Offset: 0}))
	require.Equal(t, 1, zmachine.BranchSize(zmachine.Branch{Sense: true, Offset: 1}))
}

func TestOpcodeAvailable(t *testing.T) {
	op, ok := zmachine.Lookup("not")
	require.True(t, ok)
	require.True(t, op.Available(4))
	require.False(t, op.Available(5))

	op, ok = zmachine.Lookup("call_1n")
	require.True(t, ok)
	require.False(t, op.Available(4))
	require.True(t, op.Available(5))
}
