package codegen

import (
	"github.com/zilgen/zilgen/lang/ast"
)

// compileTableLiteral implements the table compiler. It appends a new entry
// to the program's table list and returns its dense index, used by the
// caller to build the 0xFF00|idx placeholder operand.
func (rc *rcomp) compileTableLiteral(t *ast.Table) (int, error) {
	tbl := &Table{}
	idx := len(rc.pc.prog.Tables)
	rc.pc.prog.Tables = append(rc.pc.prog.Tables, tbl)

	writeByte := func(v uint16) {
		tbl.Bytes = append(tbl.Bytes, byte(v))
	}
	writeWord := func(v uint16) {
		pos := len(tbl.Bytes)
		switch v >> 8 {
		case 0xFD:
			tbl.RoutineRefs = append(tbl.RoutineRefs, RoutineFixup{Offset: pos, Target: rc.pc.routineNames[v&0xFF]})
		case 0xFC:
			tbl.StringRefs = append(tbl.StringRefs, StringFixup{Offset: pos, Text: rc.pc.stringTexts[v&0xFF]})
		case 0xFF:
			tbl.TableRefs = append(tbl.TableRefs, TableFixup{Offset: pos, Table: int(v & 0xFF)})
		}
		tbl.Bytes = append(tbl.Bytes, byte(v>>8), byte(v))
	}

	switch {
	case t.Flags.String:
		for _, v := range t.Values {
			s, ok := v.(*ast.String)
			if !ok {
				op, err := rc.classify(v)
				if err != nil {
					return 0, err
				}
				writeByte(op.Value)
				continue
			}
			tbl.Bytes = append(tbl.Bytes, []byte(s.Value)...)
		}
		return idx, nil

	case t.Flags.Lexv:
		n, err := rc.foldConstant(t.Size)
		if err != nil {
			return 0, err
		}
		if n%3 != 0 {
			if err := rc.pc.diag.Warnf("MDL0428", "%s: LEXV table size %d not a multiple of 3", rc.name, n); err != nil {
				return 0, err
			}
		}
		writeByte(uint16(n))
		writeByte(0)
		for i := int32(0); i < n*4; i++ {
			writeByte(0)
		}
		return idx, nil
	}

	switch t.Kind {
	case ast.TableITABLE:
		size, err := rc.foldConstant(t.Size)
		if err != nil {
			return 0, err
		}
		if t.Flags.Length && t.Flags.Byte {
			if size > 255 {
				if err := rc.pc.diag.Warnf("MDL0430", "%s: ITABLE size %d overflows its byte length prefix", rc.name, size); err != nil {
					return 0, err
				}
			}
			writeByte(uint16(size))
			initVal := uint16(0)
			if len(t.Values) > 0 {
				op, err := rc.classify(t.Values[0])
				if err != nil {
					return 0, err
				}
				initVal = op.Value
			}
			for i := int32(0); i < size; i++ {
				writeByte(initVal)
			}
			return idx, nil
		}
		if t.Flags.Length {
			if size > 255 {
				if err := rc.pc.diag.Warnf("MDL0430", "%s: ITABLE size %d overflows its byte length prefix", rc.name, size); err != nil {
					return 0, err
				}
			}
			writeByte(uint16(size))
		}
		if len(t.Values) == 0 {
			width := 2
			if t.Flags.Byte {
				width = 1
			}
			for i := int32(0); i < size; i++ {
				if width == 1 {
					writeByte(0)
				} else {
					writeWord(0)
				}
			}
			return idx, nil
		}
		for i := int32(0); i < size; i++ {
			v := t.Values[int(i)%len(t.Values)]
			op, err := rc.classify(v)
			if err != nil {
				return 0, err
			}
			if t.Flags.Byte {
				writeByte(op.Value)
			} else {
				writeWord(op.Value)
			}
		}
		return idx, nil

	case ast.TableLTABLE:
		count := uint16(len(t.Values))
		tbl.Bytes = append(tbl.Bytes, byte(count>>8), byte(count))
		for _, v := range t.Values {
			op, err := rc.classify(v)
			if err != nil {
				return 0, err
			}
			if t.Flags.Byte {
				writeByte(op.Value)
			} else {
				writeWord(op.Value)
			}
		}
		return idx, nil

	default: // TABLE, PTABLE
		if t.Flags.Length {
			writeByte(uint16(len(t.Values)))
		}
		for _, v := range t.Values {
			if form, ok := v.(*ast.Form); ok && (form.Op == "#BYTE" || form.Op == "#WORD") && len(form.Operands) == 1 {
				op, err := rc.classify(form.Operands[0])
				if err != nil {
					return 0, err
				}
				if form.Op == "#BYTE" {
					writeByte(op.Value)
				} else {
					writeWord(op.Value)
				}
				continue
			}
			op, err := rc.classify(v)
			if err != nil {
				return 0, err
			}
			if t.Flags.Byte {
				writeByte(op.Value)
			} else {
				writeWord(op.Value)
			}
		}
		return idx, nil
	}
}

// foldConstant evaluates a compile-time-constant size expression (ITABLE's
// size and LEXV's N are never runtime values).
func (rc *rcomp) foldConstant(n ast.Node) (int32, error) {
	switch v := n.(type) {
	case *ast.Number:
		return v.Value, nil
	case *ast.Atom:
		if val, ok := rc.pc.lookupConstant(v.Name); ok {
			return val, nil
		}
	}
	return 0, rc.pc.diag.Errorf("ZIL0302", "%s: table size must be a compile-time constant", rc.name)
}
