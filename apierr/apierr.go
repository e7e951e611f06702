// Package apierr defines the failure vocabulary shared by the locator, the
// query engine, the array codec, and the metadata encoder.
//
// Every failure surfaced to a caller is an *Error carrying a Kind plus enough
// context (alias, path, field, key, type name) to render a precise upstream
// message. Mapping kinds to transport status codes is left to the boundary
// layer.
package apierr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a failure category.
type Kind uint8

const (
	// KindUnknown is reported by KindOf for errors that are not *Error.
	KindUnknown Kind = iota
	// DatasetNotFound indicates an alias has no mapping.
	DatasetNotFound
	// DatasetPathInvalid indicates a resolved path does not exist.
	DatasetPathInvalid
	// FieldNotFound indicates a field is absent from the file.
	FieldNotFound
	// MaskRequired indicates a masked read was invoked without a mask.
	MaskRequired
	// MaskOutOfBounds indicates mask ranges exceed the field or the declared mask size.
	MaskOutOfBounds
	// ColumnOutOfRange indicates a column selector outside the field's components.
	ColumnOutOfRange
	// InvalidDType indicates an unrecognized dtype tag or an uncastable value.
	InvalidDType
	// InvalidArrayShape indicates ragged or malformed array data.
	InvalidArrayShape
	// MetadataSerialization indicates a metadata object could not be serialized.
	MetadataSerialization
	// UnencodableValue indicates a metadata leaf outside the closed kind set.
	UnencodableValue
	// UnitConversion indicates a units map is missing a key or holds a malformed quantity.
	UnitConversion
)

// String returns a stable label for the kind.
func (k Kind) String() string {
	switch k {
	case DatasetNotFound:
		return "DatasetNotFound"
	case DatasetPathInvalid:
		return "DatasetPathInvalid"
	case FieldNotFound:
		return "FieldNotFound"
	case MaskRequired:
		return "MaskRequired"
	case MaskOutOfBounds:
		return "MaskOutOfBounds"
	case ColumnOutOfRange:
		return "ColumnOutOfRange"
	case InvalidDType:
		return "InvalidDType"
	case InvalidArrayShape:
		return "InvalidArrayShape"
	case MetadataSerialization:
		return "MetadataSerializationError"
	case UnencodableValue:
		return "UnencodableValue"
	case UnitConversion:
		return "UnitConversionError"
	default:
		return "Unknown"
	}
}

// Error is a kind-tagged failure. Only the context fields relevant to the
// kind are set.
type Error struct {
	Kind  Kind
	Alias string
	Path  string
	Field string
	Key   string
	Type  string
	Msg   string
	Err   error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	ctx := make([]string, 0, 5)
	if e.Alias != "" {
		ctx = append(ctx, "alias="+quote(e.Alias))
	}
	if e.Field != "" {
		ctx = append(ctx, "field="+quote(e.Field))
	}
	if e.Path != "" {
		ctx = append(ctx, "path="+quote(e.Path))
	}
	if e.Key != "" {
		ctx = append(ctx, "key="+quote(e.Key))
	}
	if e.Type != "" {
		ctx = append(ctx, "type="+e.Type)
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func quote(s string) string { return fmt.Sprintf("%q", s) }

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, &apierr.Error{Kind: apierr.FieldNotFound}) matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindUnknown
}

// Has reports whether err carries the given kind.
func Has(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// NewDatasetNotFound reports an alias with no mapping.
func NewDatasetNotFound(alias string) *Error {
	return &Error{Kind: DatasetNotFound, Alias: alias, Msg: "dataset filename or alias not found"}
}

// NewDatasetPathInvalid reports a resolved path that does not exist.
func NewDatasetPathInvalid(path string, cause error) *Error {
	return &Error{Kind: DatasetPathInvalid, Path: path, Msg: "dataset path does not exist", Err: cause}
}

// NewFieldNotFound reports a field absent from a file.
func NewFieldNotFound(field, path string, cause error) *Error {
	return &Error{Kind: FieldNotFound, Field: field, Path: path, Msg: "could not read field", Err: cause}
}

// NewMaskRequired reports a masked read without a mask.
func NewMaskRequired(field string) *Error {
	return &Error{
		Kind:  MaskRequired,
		Field: field,
		Msg:   "no mask information found; use the unmasked read when requesting unmasked data",
	}
}

// NewMaskOutOfBounds reports mask ranges that cannot be satisfied.
func NewMaskOutOfBounds(field, path, msg string) *Error {
	return &Error{Kind: MaskOutOfBounds, Field: field, Path: path, Msg: msg}
}

// NewColumnOutOfRange reports a column selector outside the field's components.
func NewColumnOutOfRange(field, path string, column, components int) *Error {
	return &Error{
		Kind:  ColumnOutOfRange,
		Field: field,
		Path:  path,
		Msg:   fmt.Sprintf("column %d out of range for %d components", column, components),
	}
}

// NewInvalidDType reports an unrecognized dtype tag or an uncastable value.
func NewInvalidDType(dtype string, cause error) *Error {
	return &Error{Kind: InvalidDType, Type: dtype, Msg: "Invalid data type provided", Err: cause}
}

// NewInvalidArrayShape reports ragged or malformed array data.
func NewInvalidArrayShape(cause error) *Error {
	return &Error{Kind: InvalidArrayShape, Msg: "Invalid array data provided", Err: cause}
}

// NewUnencodableValue reports a metadata leaf outside the closed kind set.
func NewUnencodableValue(typeName string) *Error {
	return &Error{Kind: UnencodableValue, Type: typeName, Msg: "value is not encodable"}
}

// NewMetadataSerialization reports a failed metadata serialization.
func NewMetadataSerialization(key string, cause error) *Error {
	e := &Error{Kind: MetadataSerialization, Key: key, Msg: "error serialising metadata", Err: cause}
	var inner *Error
	if errors.As(cause, &inner) && inner.Type != "" {
		e.Type = inner.Type
	}
	return e
}

// NewUnitConversion reports a units map missing a key or holding a malformed quantity.
func NewUnitConversion(key string, cause error) *Error {
	return &Error{Kind: UnitConversion, Key: key, Msg: "error converting units", Err: cause}
}
