// Package symtab defines the optional symbol tables fed into the code
// generator: flag numbers, property numbers, parser constants, and a couple
// of parser-specific integers the control-flow compiler needs (the
// direction property floor and the highest allocated property number).
//
// These tables are built by the external object/property/dictionary
// compiler; this package only pins the shape the code generator reads.
package symtab

// Table holds the name->number maps and parser integers the code generator
// consults when an Atom or GlobalVar reference doesn't resolve to a local,
// global, or user constant (see codegen's operand classifier fallback
// chain), and the bookkeeping needed to emit ZIL0211/ZIL0212 usage
// warnings.
type Table struct {
	// Flags maps a flag name to its bit number.
	Flags map[string]int
	// Properties maps a property name to its property number.
	Properties map[string]int
	// ParserConstants maps a parser-constant name (verbs, prepositions,
	// actions, etc.) to its value.
	ParserConstants map[string]int

	// SyntaxFlags is the set of flag names the parser's grammar actually
	// references; flags outside this set but still defined trigger ZIL0211
	// if never read by code either.
	SyntaxFlags map[string]bool

	// LowDirection is the lowest property number assigned to a direction
	// property; MAP-DIRECTIONS iterates down to this floor.
	LowDirection int
	// MaxProperties is the highest property number in use; MAP-DIRECTIONS
	// starts its scan one past this value.
	MaxProperties int
}

// New returns an empty, ready-to-use Table.
func New() *Table {
	return &Table{
		Flags:           make(map[string]int),
		Properties:      make(map[string]int),
		ParserConstants: make(map[string]int),
		SyntaxFlags:     make(map[string]bool),
	}
}

// Flag returns the bit number for name and whether it was found.
func (t *Table) Flag(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.Flags[name]
	return v, ok
}

// Property returns the property number for name and whether it was found.
func (t *Table) Property(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.Properties[name]
	return v, ok
}

// ParserConstant returns the value for name and whether it was found.
func (t *Table) ParserConstant(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.ParserConstants[name]
	return v, ok
}
