package textir

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/ebnf"

	"github.com/zilgen/zilgen/lang/codegen"
	"github.com/zilgen/zilgen/lang/config"
	"github.com/zilgen/zilgen/lang/diag"
	"github.com/zilgen/zilgen/lang/symtab"
)

// TestEBNF verifies textir.ebnf is well-formed and every production it
// references is itself defined.
func TestEBNF(t *testing.T) {
	f, err := os.Open("textir.ebnf")
	require.NoError(t, err)
	defer f.Close()

	g, err := ebnf.Parse("textir.ebnf", f)
	require.NoError(t, err)
	require.NoError(t, ebnf.Verify(g, "Program"))
}

func TestParseRoundTrip(t *testing.T) {
	srcs := []string{
		`<ROUTINE GO () <QUIT>>`,
		`<ROUTINE F (X OPTIONAL (Y 1) AUX Z) <SET .Z <+ .X .Y>> .Z>`,
		`<ROUTINE F () <COND (<EQUAL? .X 1> <RTRUE>) (T <RFALSE>)>>`,
		`<ROUTINE F () <REPEAT () <COND (<0? .X> <RETURN>)> <SET .X <- .X 1>>>>`,
		`<GLOBAL SCORE 0>`,
		`<CONSTANT TRUE-VALUE 1>`,
		`<OBJECT PLAYER>`,
	}
	for _, src := range srcs {
		prog, err := Parse([]byte(src))
		require.NoError(t, err, src)
		out := Format(prog)
		prog2, err := Parse([]byte(out))
		require.NoError(t, err, out)
		assert.Equal(t, Format(prog2), out)
	}
}

func TestParseTableLiteral(t *testing.T) {
	prog, err := Parse([]byte(`<GLOBAL DIRS <TABLE (PURE) 1 2 3>>`))
	require.NoError(t, err)
	require.Len(t, prog.Globals, 1)
}

func TestParseDoAndMap(t *testing.T) {
	srcs := []string{
		`<ROUTINE F () <DO (I 1 10) <PRINTN .I> <END <CRLF>>>>`,
		`<ROUTINE F () <MAP-CONTENTS (I ,HERE) <PRINTN .I>>>`,
		`<ROUTINE F () <MAP-DIRECTIONS (D P ,HERE) <PRINTN .D>>>`,
	}
	for _, src := range srcs {
		_, err := Parse([]byte(src))
		require.NoError(t, err, src)
	}
}

func TestParseError(t *testing.T) {
	_, err := Parse([]byte(`<ROUTINE GO (`))
	assert.Error(t, err)
}

// TestCompileAndDisassemble exercises the whole textir -> ast -> Generate
// -> Disassemble round trip for a minimal program, the same shape the
// zilgen CLI's compile/disasm commands drive.
func TestCompileAndDisassemble(t *testing.T) {
	prog, err := Parse([]byte(`
		<ROUTINE GO ()
			<COND (<EQUAL? ,SCORE 0> <TELL "zero" CR>)
			      (T <TELL "nonzero" CR>)>
			<QUIT>>
		<GLOBAL SCORE 0>
	`))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Version = 5
	out, err := codegen.Generate(prog, cfg, symtab.New(), diag.New(cfg, false))
	require.NoError(t, err)

	dasm := Disassemble(out, cfg)
	assert.Contains(t, dasm, "function GO")
	assert.Contains(t, dasm, "quit")
}
