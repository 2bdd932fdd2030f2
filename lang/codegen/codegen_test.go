package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilgen/zilgen/lang/codegen"
	"github.com/zilgen/zilgen/lang/config"
	"github.com/zilgen/zilgen/lang/diag"
	"github.com/zilgen/zilgen/lang/symtab"
	"github.com/zilgen/zilgen/lang/textir"
)

// generate is the shared harness: parse src as textual IR, compile it at
// the given Z-machine version, and fail the test immediately on any
// diagnostic error.
func generate(t *testing.T, version int, src string) *codegen.Program {
	t.Helper()
	prog, err := textir.Parse([]byte(src))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Version = version
	out, err := codegen.Generate(prog, cfg, symtab.New(), diag.New(cfg, false))
	require.NoError(t, err)
	return out
}

func TestGenerateEmptyRoutine(t *testing.T) {
	out := generate(t, 3, `<ROUTINE GO () <QUIT>>`)
	require.Len(t, out.Routines, 1)
	assert.Equal(t, "GO", out.Routines[0].Name)
	assert.Equal(t, 0, out.Routines[0].NumLocals)
	assert.NotEmpty(t, out.Routines[0].Code)
}

func TestGOCompiledFirst(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE HELPER () <RTRUE>>
		<ROUTINE GO () <HELPER> <QUIT>>
	`)
	require.Len(t, out.Routines, 2)
	assert.Equal(t, "GO", out.Routines[0].Name)
	assert.Equal(t, "HELPER", out.Routines[1].Name)
}

func TestCondCompilesClauses(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE F (X)
			<COND (<EQUAL? .X 1> <RTRUE>)
			      (T <RFALSE>)>>
	`)
	r := out.Routines[0]
	assert.Greater(t, len(r.Code), 0)
}

func TestRepeatReturn(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE F (X)
			<REPEAT ()
				<COND (<EQUAL? .X 0> <RETURN>)>
				<SET .X <- .X 1>>>
			<RTRUE>>
	`)
	require.Len(t, out.Routines, 1)
	assert.Greater(t, len(out.Routines[0].Code), 0)
}

func TestProgWidensLocals(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE GO ()
			<PROG (X (Y 1))
				<SET .X .Y>>
			<RTRUE>>
	`)
	// GO itself declares no parameters; PROG's bindings become additional
	// routine locals, so NumLocals must grow to cover X and Y.
	assert.GreaterOrEqual(t, out.Routines[0].NumLocals, 2)
}

func TestDoLoop(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE GO ()
			<DO (I 1 10)
				<SET .I .I>
				<END <RTRUE>>>>
	`)
	assert.Greater(t, len(out.Routines[0].Code), 0)
}

func TestMapContents(t *testing.T) {
	out := generate(t, 3, `
		<GLOBAL HERE 0>
		<ROUTINE GO ()
			<MAP-CONTENTS (I ,HERE) <SET .I .I>>>
	`)
	assert.Greater(t, len(out.Routines[0].Code), 0)
}

func TestArithmeticSpecialForms(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE F (X Y)
			<SET .X <+ .X .Y 1>>
			<SET .X <- .X .Y>>
			<SET .X <* .X .Y>>
			<SET .X </ .X .Y>>
			<SET .X <MIN .X .Y>>
			<SET .X <MAX .X .Y>>
			<SET .X <ABS .X>>
			<SET .X <BCOM .X>>
			<SET .X <XOR .X .Y>>
			<RTRUE>>
	`)
	assert.Greater(t, len(out.Routines[0].Code), 0)
}

func TestPredicateSpecialForms(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE F (X Y)
			<COND (<AND? <EQUAL? .X 1> <EQUAL? .Y 2>> <RTRUE>)
			      (<OR? <EQUAL? .X 1> <EQUAL? .Y 2>> <RTRUE>)
			      (T <RFALSE>)>>
	`)
	assert.Greater(t, len(out.Routines[0].Code), 0)
}

func TestSetAndSetg(t *testing.T) {
	out := generate(t, 3, `
		<GLOBAL SCORE 0>
		<ROUTINE F (X)
			<SET .X 1>
			<SETG SCORE <+ ,SCORE 1>>
			<RTRUE>>
	`)
	require.Len(t, out.Routines, 1)
	assert.Greater(t, len(out.Routines[0].Code), 0)
	_, ok := out.Globals["SCORE"]
	assert.True(t, ok)
}

func TestTellLiteral(t *testing.T) {
	out := generate(t, 3, `<ROUTINE GO () <TELL "hi there" CR> <QUIT>>`)
	require.Len(t, out.StringPlaceholders(), 1)
	assert.Equal(t, "hi there", out.StringPlaceholders()[0].Text)
}

func TestPrintiPrintr(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE GO ()
			<PRINTI "hello">
			<PRINTR "world">>
	`)
	require.Len(t, out.StringPlaceholders(), 2)
	assert.Equal(t, "hello", out.StringPlaceholders()[0].Text)
	assert.Equal(t, "world", out.StringPlaceholders()[1].Text)
}

func TestTableLiteralGlobal(t *testing.T) {
	out := generate(t, 3, `<GLOBAL DIRS <TABLE (PURE) 1 2 3>>`)
	require.Len(t, out.Tables, 1)
	assert.Equal(t, []byte{0, 1, 0, 2, 0, 3}, out.Tables[0].Bytes)
}

func TestByteTableLiteral(t *testing.T) {
	out := generate(t, 3, `<GLOBAL FLAGS <TABLE (BYTE) 1 2 3>>`)
	require.Len(t, out.Tables, 1)
	assert.Equal(t, []byte{1, 2, 3}, out.Tables[0].Bytes)
}

func TestMissingRoutineWarnsButCompiles(t *testing.T) {
	prog, err := textir.Parse([]byte(`<ROUTINE GO () <NEVER-DEFINED> <QUIT>>`))
	require.NoError(t, err)
	cfg := config.Default()
	d := diag.New(cfg, false)
	out, err := codegen.Generate(prog, cfg, symtab.New(), d)
	require.NoError(t, err)
	assert.True(t, out.MissingRoutines["NEVER-DEFINED"])
	assert.NotEmpty(t, d.List())
}

func TestWarnAsErrorPromotesFirstWarning(t *testing.T) {
	prog, err := textir.Parse([]byte(`<ROUTINE GO () <NEVER-DEFINED> <QUIT>>`))
	require.NoError(t, err)
	cfg := config.Default()
	d := diag.New(cfg, true)
	_, err = codegen.Generate(prog, cfg, symtab.New(), d)
	require.Error(t, err)
	var fatal *diag.Fatal
	assert.ErrorAs(t, err, &fatal)
}

func TestRoutineAlignment(t *testing.T) {
	out := generate(t, 5, `
		<ROUTINE A () <RTRUE>>
		<ROUTINE GO () <A> <QUIT>>
	`)
	require.Len(t, out.Routines, 2)
	// Every routine starts at a version-aligned address.
	for _, r := range out.Routines {
		assert.Equal(t, 0, r.Address%4, "V5 routines align on 4-byte boundaries")
	}
}

// TestCondByteExact pins the exact bytes of a COND over a native EQUAL?
// predicate and a T fallback clause: JE branching past an RTRUE to the T
// clause's always-true JZ guarding RFALSE, with the implicit RET_POPPED a
// plain (non-terminator) COND tail requires.
func TestCondByteExact(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE F (X)
			<COND (<EQUAL? .X 1> <RTRUE>)
			      (T <RFALSE>)>>
	`)
	require.Len(t, out.Routines, 1)
	assert.Equal(t, []byte{
		0x01, 0x00, 0x00, // n_locals=1 (X), initial value 0
		0x41, 0x01, 0x01, 0x00, 0x06, // JE var(X),#1 ?+6 (branch to T clause on failure)
		0xB0,                   // RTRUE
		0x8C, 0x00, 0x07,       // JUMP past the T clause (dead past RTRUE, still emitted)
		0x90, 0x01, 0x80, 0x03, // JZ #1 ?+3 (T is always true, branch is a no-op)
		0xB1, // RFALSE
		0xB8, // RET_POPPED (COND used as the routine's plain tail value)
	}, out.Routines[0].Code)
}

// TestProgReturnByteExact pins the exact bytes of a PROG that binds two new
// locals and returns their sum from inside the block: the binding STOREs,
// the ADD of the two locals straight to the stack, and the untargeted-RETURN
// JUMP sentinel patched to land immediately past itself (PROG's only
// statement is the RETURN, so the block's exit is the routine's own tail).
func TestProgReturnByteExact(t *testing.T) {
	out := generate(t, 3, `
		<ROUTINE H ()
			<PROG ((X 10) (Y 20))
				<RETURN <+ .X .Y>>>>
	`)
	require.Len(t, out.Routines, 1)
	assert.Equal(t, []byte{
		0x02, 0x00, 0x00, 0x00, 0x00, // n_locals=2 (X, Y), initial values 0
		0x0D, 0x01, 0x0A, // STORE var(X), #10
		0x0D, 0x02, 0x14, // STORE var(Y), #20
		0x74, 0x01, 0x02, 0x00, // ADD var(X), var(Y) -> stack
		0x8C, 0x00, 0x02, // JUMP to PROG's exit point, right past itself
		0xB8, // RET_POPPED (the ADD result left on the stack)
	}, out.Routines[0].Code)
}

// TestAssignedPredByteExact pins the exact bytes of ASSIGNED? on a declared
// local: CHECK_ARG_COUNT branching to a push-1 trampoline, with both push
// sites lowered through ADD 0,const -> stack rather than the native push
// opcode.
func TestAssignedPredByteExact(t *testing.T) {
	out := generate(t, 5, `
		<ROUTINE K (LOCAL)
			<ASSIGNED? .LOCAL>>
	`)
	require.Len(t, out.Routines, 1)
	assert.Equal(t, []byte{
		0x01, // n_locals=1 (LOCAL); V5 has no header initial-value words
		0xFF, 0x7F, 0x01, 0x80, 0x09, // CHECK_ARG_COUNT #1, branch-on-true ?+9
		0x14, 0x00, 0x00, 0x00, // ADD #0,#0 -> stack (not assigned)
		0x8C, 0x00, 0x06, // JUMP past the push-1 site
		0x14, 0x00, 0x01, 0x00, // ADD #0,#1 -> stack (assigned)
		0xB8, // RET_POPPED
	}, out.Routines[0].Code)
}
