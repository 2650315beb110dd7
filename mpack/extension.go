package mpack

import "reflect"

// ExtensionData is a raw MessagePack extension value: the
// application-defined type code plus its payload.
type ExtensionData struct {
	Code int8
	Data []byte
}

var typeOfExtensionData = reflect.TypeOf(ExtensionData{})

// ============================================================
// Extension
// ============================================================

type extensionFmt struct {
	code int8
}

// Extension packs a value as a MessagePack ext atom with the given
// type code. The value destructs to a byte payload; on unpack the
// wire code must match, and the payload constructs the target type.
func Extension(code int8) Format {
	return extensionFmt{code: code}
}

func (e extensionFmt) Name() string { return "Extension" }

func (e extensionFmt) Pack(w *Writer, v any, ctx Context) error {
	v = deref(v)
	if ed, ok := v.(ExtensionData); ok {
		if ed.Code != e.code {
			return packErrf(e, "extension data has code %d, format wants %d", ed.Code, e.code)
		}
		return w.WriteExt(e.code, ed.Data)
	}
	iv, err := destructValue(v, e, ctx)
	if err != nil {
		return err
	}
	p, err := asBytes(iv)
	if err != nil {
		return packErr(e, err, "extension payload")
	}
	return w.WriteExt(e.code, p)
}

func (e extensionFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	code, n, err := r.ReadExtHeader()
	if err != nil {
		return nil, err
	}
	if code != e.code {
		return nil, unpackErrf(e, "extension code %d, want %d", code, e.code)
	}
	p, err := r.readFull(n)
	if err != nil {
		return nil, err
	}
	if t == typeOfExtensionData {
		return ExtensionData{Code: code, Data: p}, nil
	}
	return constructValue(t, p, e, ctx)
}

// ============================================================
// AnyExtension
// ============================================================

type anyExtensionFmt struct{}

// AnyExtension accepts any extension code and yields ExtensionData,
// for streams whose codes are not known in advance.
var AnyExtension Format = anyExtensionFmt{}

func (anyExtensionFmt) Name() string { return "AnyExtension" }

func (anyExtensionFmt) Pack(w *Writer, v any, ctx Context) error {
	v = deref(v)
	iv, err := destructValue(v, AnyExtension, ctx)
	if err != nil {
		return err
	}
	ed, ok := iv.(ExtensionData)
	if !ok {
		return packErrf(AnyExtension, "cannot destruct %T as extension data", v)
	}
	return w.WriteExt(ed.Code, ed.Data)
}

func (anyExtensionFmt) Unpack(r *Reader, t reflect.Type, ctx Context) (any, error) {
	code, n, err := r.ReadExtHeader()
	if err != nil {
		return nil, err
	}
	p, err := r.readFull(n)
	if err != nil {
		return nil, err
	}
	ed := ExtensionData{Code: code, Data: p}
	if t == nil || t == typeOfExtensionData || t == anyType {
		return ed, nil
	}
	return constructValue(t, ed, AnyExtension, ctx)
}
