package wasmgen

// Binary format constants
const (
	Magic   uint32 = 0x6D736100 // \0asm
	Version uint32 = 0x01

	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionGlobal   byte = 6
	sectionExport   byte = 7
	sectionCode     byte = 10
	sectionData     byte = 11

	funcTypeByte byte = 0x60
)

// ValType is a WebAssembly value type.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
)

// ExportKind identifies what an export or import refers to.
type ExportKind byte

const (
	KindFunc   ExportKind = 0x00
	KindMemory ExportKind = 0x02
)

type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is a function or memory import. Memory imports use MemoryMin.
type Import struct {
	Module    string
	Name      string
	Kind      ExportKind
	Type      uint32
	MemoryMin uint32
}

type Func struct {
	Type   uint32
	Locals []ValType
	Body   []byte
}

type Global struct {
	Type    ValType
	Mutable bool
	Init    int32
}

type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// Data is an active data segment in memory 0.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module describes a core module. Function indices count imported
// functions first, as in the binary format.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []Func
	// MemoryPages declares memory 0 with this minimum when non-zero.
	MemoryPages uint32
	Globals     []Global
	Exports     []Export
	Data        []Data
}

// ImportedFuncs returns the number of imported functions.
func (m *Module) ImportedFuncs() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == KindFunc {
			n++
		}
	}
	return n
}

// Encode encodes the module to WebAssembly binary format.
func (m *Module) Encode() []byte {
	var w writer
	w.U32LE(Magic)
	w.U32LE(Version)

	if len(m.Types) > 0 {
		var sec writer
		sec.U32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(funcTypeByte)
			writeValTypes(&sec, ft.Params)
			writeValTypes(&sec, ft.Results)
		}
		writeSection(&w, sectionType, sec.Bytes())
	}

	if len(m.Imports) > 0 {
		var sec writer
		sec.U32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.Name(imp.Module)
			sec.Name(imp.Name)
			sec.Byte(byte(imp.Kind))
			switch imp.Kind {
			case KindMemory:
				sec.Byte(0x00)
				sec.U32(imp.MemoryMin)
			default:
				sec.U32(imp.Type)
			}
		}
		writeSection(&w, sectionImport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		var sec writer
		sec.U32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec.U32(f.Type)
		}
		writeSection(&w, sectionFunction, sec.Bytes())
	}

	if m.MemoryPages > 0 {
		var sec writer
		sec.U32(1)
		sec.Byte(0x00) // no maximum
		sec.U32(m.MemoryPages)
		writeSection(&w, sectionMemory, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		var sec writer
		sec.U32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			sec.Byte(byte(g.Type))
			if g.Mutable {
				sec.Byte(0x01)
			} else {
				sec.Byte(0x00)
			}
			sec.Byte(opI32Const)
			sec.S32(g.Init)
			sec.Byte(opEnd)
		}
		writeSection(&w, sectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		var sec writer
		sec.U32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.Name(e.Name)
			sec.Byte(byte(e.Kind))
			sec.U32(e.Index)
		}
		writeSection(&w, sectionExport, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		var sec writer
		sec.U32(uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			var body writer
			writeLocals(&body, f.Locals)
			body.Byte(f.Body...)
			sec.Vec(body.Bytes())
		}
		writeSection(&w, sectionCode, sec.Bytes())
	}

	if len(m.Data) > 0 {
		var sec writer
		sec.U32(uint32(len(m.Data)))
		for _, d := range m.Data {
			sec.Byte(0x00) // active, memory 0
			sec.Byte(opI32Const)
			sec.S32(d.Offset)
			sec.Byte(opEnd)
			sec.Vec(d.Bytes)
		}
		writeSection(&w, sectionData, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *writer, id byte, content []byte) {
	w.Byte(id)
	w.Vec(content)
}

func writeValTypes(w *writer, types []ValType) {
	w.U32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

// writeLocals groups runs of equal types into (count, type) entries.
func writeLocals(w *writer, locals []ValType) {
	type group struct {
		n uint32
		t ValType
	}
	var groups []group
	for _, t := range locals {
		if len(groups) > 0 && groups[len(groups)-1].t == t {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{1, t})
	}
	w.U32(uint32(len(groups)))
	for _, g := range groups {
		w.U32(g.n)
		w.Byte(byte(g.t))
	}
}
