package mpack

import (
	"reflect"
	"sync"
)

// Binding declares how a type packs and unpacks. Every field is
// optional: an unset hook falls back first to the type's context-free
// binding (when the Binding was registered under a context) and then
// to the reflection-based default. Bindings are the hook-level
// equivalent of a format DSL: everything a binding macro could emit
// is expressible here.
type Binding struct {
	// Format is the default wire format for the type. It must not be
	// Default; leave it nil to keep the reflective choice.
	Format Format

	// Struct hooks. The three slices are parallel-indexed. Names are
	// the wire keys; types and formats govern each field's unpack.
	FieldNames   []string
	FieldTypes   []reflect.Type
	FieldFormats []Format

	// New builds a struct value from its field values in declared
	// order. Only the struct formats call it; container and scalar
	// formats construct through Construct. When nil, struct
	// construction is reflective.
	New func(args []any) (any, error)

	// Element hooks for vector and map formats. state is the
	// iteration state: a 1-based index for Vector and Map, or
	// whatever InitState/NextState produce for the dynamic variants.
	ValueType   func(state any) reflect.Type
	ValueFormat func(state any) Format
	KeyType     func(state any) reflect.Type
	KeyFormat   func(state any) Format

	// Iteration-state hooks for DynamicVector and DynamicMap. The
	// defaults are a 1-based integer index incremented per entry;
	// NextState receives the entry just decoded, which lets the next
	// element's type and format depend on prior data.
	InitState func() any
	NextState func(state, last any) any

	// Destruct maps a value to the format-specific intermediate
	// (scalar, element slice, pair slice, or byte buffer). Construct
	// is its inverse. Unset hooks use the natural reflective
	// conversions.
	Destruct  func(v any, f Format) (any, error)
	Construct func(t reflect.Type, in any, f Format) (any, error)

	// Type-parameter metadata for TypeFormat. TypeParams are the
	// descriptor parameter values emitted when packing the type;
	// TypeParamTypes/TypeParamFormats govern how parameters unpack.
	TypeParams       []any
	TypeParamTypes   []reflect.Type
	TypeParamFormats []Format
}

type ctxKey struct {
	t reflect.Type
	c string
}

// registry holds all bindings. It is written during program
// initialization and read-only afterwards; lookups take the read
// lock only.
type registry struct {
	mu     sync.RWMutex
	base   map[reflect.Type]*Binding
	byCtx  map[ctxKey]*Binding
	byName map[string]reflect.Type
}

var reg = &registry{
	base:   make(map[reflect.Type]*Binding),
	byCtx:  make(map[ctxKey]*Binding),
	byName: make(map[string]reflect.Type),
}

// Register installs the context-free binding for T and records T in
// the type-name registry so TypeFormat can reconstruct it.
func Register[T any](b Binding) {
	RegisterType(reflect.TypeOf((*T)(nil)).Elem(), b)
}

// RegisterIn installs a binding for T that applies only under context
// c. Hooks left unset fall back to the context-free binding.
// Registering against DefaultContext is an error: it is the dispatch
// sentinel, not a bindable context.
func RegisterIn[T any](c Context, b Binding) {
	RegisterTypeIn(reflect.TypeOf((*T)(nil)).Elem(), c, b)
}

// RegisterType is the non-generic form of Register.
func RegisterType(t reflect.Type, b Binding) {
	if isDefault(b.Format) {
		panic(&InvariantError{Msg: "binding for " + t.String() + " resolves to Default"})
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.base[t] = &b
	reg.byName[canonicalName(t)] = t
}

// RegisterTypeIn is the non-generic form of RegisterIn.
func RegisterTypeIn(t reflect.Type, c Context, b Binding) {
	if c == DefaultContext || c == nil {
		panic(&InvariantError{Msg: "cannot register bindings against DefaultContext"})
	}
	if isDefault(b.Format) {
		panic(&InvariantError{Msg: "binding for " + t.String() + " resolves to Default"})
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.byCtx[ctxKey{t, c.ContextName()}] = &b
	reg.byName[canonicalName(t)] = t
}

// RegisterTypeName records t in the name registry without binding a
// format, so Typed and TypeFormat streams can name it.
func RegisterTypeName(t reflect.Type) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.byName[canonicalName(t)] = t
}

// lookup returns the context-specific and context-free bindings for
// t. Either may be nil.
func lookup(t reflect.Type, c Context) (inCtx, base *Binding) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	if c != nil && c != DefaultContext {
		inCtx = reg.byCtx[ctxKey{t, c.ContextName()}]
	}
	return inCtx, reg.base[t]
}

func typeByName(name string) (reflect.Type, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	t, ok := reg.byName[name]
	return t, ok
}

// ============================================================
// Dispatch hooks
// ============================================================

var (
	anyType         = reflect.TypeOf((*any)(nil)).Elem()
	stringType      = reflect.TypeOf("")
	reflectTypeType = reflect.TypeOf((*reflect.Type)(nil)).Elem()
)

// formatFor resolves format(T, ctx): the context binding, then the
// context-free binding, then the reflective default for the type's
// kind.
func formatFor(t reflect.Type, c Context) Format {
	inCtx, base := lookup(t, c)
	if inCtx != nil && inCtx.Format != nil {
		return inCtx.Format
	}
	if base != nil && base.Format != nil {
		return base.Format
	}
	return kindFormat(t)
}

// kindFormat is the reflection fallback used for unregistered types.
func kindFormat(t reflect.Type) Format {
	if t == nil {
		return Nil
	}
	switch t {
	case typeOfTypedValue:
		return Typed(Default)
	case typeOfArrayValue:
		return Array
	case typeOfBinArrayValue:
		return BinArray
	case typeOfExtensionData:
		return AnyExtension
	case typeOfRawValue:
		return rawFormat{}
	case typeOfTypeDescriptor:
		return TypeFormat
	}
	if t.Implements(reflectTypeType) {
		return TypeFormat
	}
	switch t.Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Signed
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Unsigned
	case reflect.Float32, reflect.Float64:
		return Float
	case reflect.String:
		return String
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Binary
		}
		return Vector
	case reflect.Array:
		return Vector
	case reflect.Map:
		return Map
	case reflect.Struct:
		return Struct
	case reflect.Pointer:
		return kindFormat(t.Elem())
	case reflect.Interface:
		return Any
	}
	return Nil
}

// hook resolution: context binding first, context-free second, then
// the supplied default.

func valueTypeOf(t reflect.Type, state any, c Context) reflect.Type {
	inCtx, base := lookup(t, c)
	if inCtx != nil && inCtx.ValueType != nil {
		return inCtx.ValueType(state)
	}
	if base != nil && base.ValueType != nil {
		return base.ValueType(state)
	}
	if t != nil {
		switch t.Kind() {
		case reflect.Slice, reflect.Array:
			return t.Elem()
		case reflect.Map:
			return t.Elem()
		}
	}
	return nil
}

func valueFormatOf(t reflect.Type, state any, c Context) Format {
	inCtx, base := lookup(t, c)
	if inCtx != nil && inCtx.ValueFormat != nil {
		return inCtx.ValueFormat(state)
	}
	if base != nil && base.ValueFormat != nil {
		return base.ValueFormat(state)
	}
	return Default
}

func keyTypeOf(t reflect.Type, state any, c Context) reflect.Type {
	inCtx, base := lookup(t, c)
	if inCtx != nil && inCtx.KeyType != nil {
		return inCtx.KeyType(state)
	}
	if base != nil && base.KeyType != nil {
		return base.KeyType(state)
	}
	if t != nil && t.Kind() == reflect.Map {
		return t.Key()
	}
	return stringType
}

func keyFormatOf(t reflect.Type, state any, c Context) Format {
	inCtx, base := lookup(t, c)
	if inCtx != nil && inCtx.KeyFormat != nil {
		return inCtx.KeyFormat(state)
	}
	if base != nil && base.KeyFormat != nil {
		return base.KeyFormat(state)
	}
	if t != nil && t.Kind() == reflect.Map {
		return Default
	}
	return String
}

func initStateOf(t reflect.Type, c Context) any {
	inCtx, base := lookup(t, c)
	if inCtx != nil && inCtx.InitState != nil {
		return inCtx.InitState()
	}
	if base != nil && base.InitState != nil {
		return base.InitState()
	}
	return 1
}

func nextStateOf(t reflect.Type, c Context, state, last any) any {
	inCtx, base := lookup(t, c)
	if inCtx != nil && inCtx.NextState != nil {
		return inCtx.NextState(state, last)
	}
	if base != nil && base.NextState != nil {
		return base.NextState(state, last)
	}
	if i, ok := state.(int); ok {
		return i + 1
	}
	return state
}

// structFields resolves the parallel field slices for a struct-shaped
// format: binding hooks when present, reflection over exported fields
// otherwise. The `mpack` struct tag renames a field; "-" omits it.
func structFields(t reflect.Type, c Context) (names []string, types []reflect.Type, formats []Format, err error) {
	inCtx, base := lookup(t, c)
	for _, b := range []*Binding{inCtx, base} {
		if b != nil && b.FieldNames != nil {
			formats = b.FieldFormats
			if formats == nil {
				formats = make([]Format, len(b.FieldNames))
			}
			return b.FieldNames, b.FieldTypes, formats, nil
		}
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, nil, nil, &InvariantError{Msg: "no field binding for non-struct type"}
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("mpack"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}
		names = append(names, name)
		types = append(types, f.Type)
		formats = append(formats, nil)
	}
	return names, types, formats, nil
}

func typeParamsOf(t reflect.Type, c Context) (params []any, ok bool) {
	inCtx, base := lookup(t, c)
	for _, b := range []*Binding{inCtx, base} {
		if b != nil && b.TypeParams != nil {
			return b.TypeParams, true
		}
	}
	return nil, false
}

func typeParamTypesOf(t reflect.Type, c Context) (types []reflect.Type, formats []Format, ok bool) {
	inCtx, base := lookup(t, c)
	for _, b := range []*Binding{inCtx, base} {
		if b != nil && b.TypeParamTypes != nil {
			formats = b.TypeParamFormats
			if formats == nil {
				formats = make([]Format, len(b.TypeParamTypes))
			}
			return b.TypeParamTypes, formats, true
		}
	}
	return nil, nil, false
}

func destructHook(t reflect.Type, c Context) func(v any, f Format) (any, error) {
	inCtx, base := lookup(t, c)
	for _, b := range []*Binding{inCtx, base} {
		if b != nil && b.Destruct != nil {
			return b.Destruct
		}
	}
	return nil
}

func constructHook(t reflect.Type, c Context) func(t reflect.Type, in any, f Format) (any, error) {
	inCtx, base := lookup(t, c)
	for _, b := range []*Binding{inCtx, base} {
		if b != nil && b.Construct != nil {
			return b.Construct
		}
	}
	return nil
}

func newHook(t reflect.Type, c Context) func(args []any) (any, error) {
	inCtx, base := lookup(t, c)
	for _, b := range []*Binding{inCtx, base} {
		if b != nil && b.New != nil {
			return b.New
		}
	}
	return nil
}
