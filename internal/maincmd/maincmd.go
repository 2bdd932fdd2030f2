// Package maincmd implements the zilgen CLI's command dispatch: a Cmd
// struct driven by github.com/mna/mainer, with sub-commands discovered by
// reflection over the struct's own exported methods.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "zilgen"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <file>...
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <file>...
       %[1]s -h|--help
       %[1]s -v|--version

Code generator for the ZIL-to-Z-machine compiler core.

The <command> can be one of:
       compile                   Parse the given textual-IR file(s),
                                  generate Z-machine bytecode, and print
                                  a code-region listing, the table-data
                                  size, and every outstanding fixup.
       disasm                    Parse and compile the given textual-IR
                                  file(s) and print a human-readable
                                  instruction listing of the result.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --zversion <n>            Target Z-machine version, 1-8 (default 3).
       --config <path>           YAML configuration file (see lang/config).
       --warn-as-error           Promote the first warning to a fatal error.

More information on this project:
       https://github.com/zilgen/zilgen
`, binName)
)

// Cmd is the root command, its exported fields populated by mainer from
// flags, its exported methods dispatched to by sub-command name.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help        bool `flag:"h,help"`
	ShowVersion bool `flag:"v,version"`

	ZVersion    int    `flag:"zversion"`
	ConfigPath  string `flag:"config"`
	WarnAsError bool   `flag:"warn-as-error"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) { c.args = args }

func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.ShowVersion {
		return nil
	}
	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}
	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: at least one file must be provided", cmdName)
	}
	if c.ZVersion != 0 && (c.ZVersion < 1 || c.ZVersion > 8) {
		return fmt.Errorf("--zversion must be 1-8, got %d", c.ZVersion)
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.ShowVersion:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		return mainer.Failure
	}
	return mainer.Success
}

// buildCmds discovers the (ctx, stdio, args) -> error methods on v and
// indexes them by lowercased method name.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
