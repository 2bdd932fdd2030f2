package maincmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"

	"github.com/zilgen/zilgen/lang/codegen"
	"github.com/zilgen/zilgen/lang/diag"
	"github.com/zilgen/zilgen/lang/symtab"
	"github.com/zilgen/zilgen/lang/textir"
)

// Disasm parses and compiles each file the same way Compile does, but
// prints only the human-readable instruction listing, not the table data
// or fixup sections -- the reader-at-a-terminal view of compile's
// feed-an-external-assembler view.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "disasm: %s\n", err)
		return err
	}

	for _, path := range args {
		if err := ctx.Err(); err != nil {
			return err
		}

		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "disasm: %s: %s\n", path, err)
			return err
		}

		prog, err := textir.Parse(src)
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "disasm: %s: parse error: %s\n", path, err)
			return err
		}

		d := diag.New(cfg, c.WarnAsError)
		out, genErr := codegen.Generate(prog, cfg, symtab.New(), d)
		if genErr != nil {
			fmt.Fprintf(stdio.Stderr, "disasm: %s: %s\n", path, genErr)
			return genErr
		}

		fmt.Fprintf(stdio.Stdout, "; %s\n", path)
		fmt.Fprint(stdio.Stdout, routinesOnly(textir.Disassemble(out, cfg)))
	}
	return nil
}

// routinesOnly strips Disassemble's trailing table/fixup summary, keeping
// only the per-routine instruction listing.
func routinesOnly(dasm string) string {
	if idx := strings.Index(dasm, "table data:"); idx >= 0 {
		return dasm[:idx]
	}
	return dasm
}
