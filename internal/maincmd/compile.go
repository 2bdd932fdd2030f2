package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/zilgen/zilgen/lang/codegen"
	"github.com/zilgen/zilgen/lang/config"
	"github.com/zilgen/zilgen/lang/diag"
	"github.com/zilgen/zilgen/lang/symtab"
	"github.com/zilgen/zilgen/lang/textir"
)

// Compile parses each file as textual IR, generates Z-machine bytecode for
// it, and prints a listing of the code region, the size of the table data,
// and every outstanding placeholder fixup -- the layout information an external assembler step would need to
// turn the result into a loadable story file, which remains out of scope
// here (see SPEC_FULL.md's Non-goals).
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "compile: %s\n", err)
		return err
	}

	for _, path := range args {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.compileOne(stdio, cfg, path); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cmd) compileOne(stdio mainer.Stdio, cfg *config.Config, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "compile: %s: %s\n", path, err)
		return err
	}

	prog, err := textir.Parse(src)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "compile: %s: parse error: %s\n", path, err)
		return err
	}

	d := diag.New(cfg, c.WarnAsError)
	out, genErr := codegen.Generate(prog, cfg, symtab.New(), d)
	for _, item := range d.List() {
		fmt.Fprintf(stdio.Stderr, "%s: %s\n", path, item)
	}
	if genErr != nil {
		fmt.Fprintf(stdio.Stderr, "compile: %s: %s\n", path, genErr)
		return genErr
	}

	fmt.Fprintf(stdio.Stdout, "; %s (V%d, %d bytes code, %d bytes table data)\n",
		path, cfg.Version, len(out.Code), len(out.TableData))
	fmt.Fprint(stdio.Stdout, textir.Disassemble(out, cfg))
	return nil
}

func (c *Cmd) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if c.ConfigPath != "" {
		loaded, err := config.Load(c.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if err := config.LoadEnv(cfg); err != nil {
		return nil, err
	}
	if c.ZVersion != 0 {
		cfg.Version = c.ZVersion
	}
	return cfg, nil
}
