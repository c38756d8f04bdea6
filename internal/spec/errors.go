package spec

// ErrorCode categorizes spec-pipeline errors for clearer handling and
// messaging. Retrieval-class codes are the only ones worth retrying: a
// malformed or self-contradictory document stays malformed until it changes.
type ErrorCode string

const (
	// InputError covers unusable inputs: empty path, blocked scheme,
	// unreadable file.
	InputError ErrorCode = "InputError"
	// RetrievalError covers transient network/filesystem failures reaching
	// the source document.
	RetrievalError ErrorCode = "RetrievalError"
	// ParseError covers undecodable or version-unrecognizable documents.
	ParseError ErrorCode = "ParseError"
	// ValidationError covers documents that decode but fail structural
	// validation.
	ValidationError ErrorCode = "ValidationError"
	// ConversionError covers Swagger v2 documents that cannot be lifted
	// to v3.
	ConversionError ErrorCode = "ConversionError"
	// ResolutionError covers pointers that do not resolve to a declared
	// component.
	ResolutionError ErrorCode = "ResolutionError"
	// ConflictError covers conjunction merges where the same property is
	// declared with disagreeing types.
	ConflictError ErrorCode = "ConflictError"
)

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path or URL
	JSONPointer string // e.g. "#/components/schemas/Pet"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// IsRetrievable reports whether err is a transient retrieval failure that a
// retry with backoff can reasonably cure. Schema-shaped failures return
// false: retrying an unchanged malformed document cannot succeed.
func IsRetrievable(err error) bool {
	se, ok := asSpecError(err)
	if !ok {
		return false
	}
	return se.Code == RetrievalError
}

func asSpecError(err error) (*SpecError, bool) {
	for err != nil {
		if se, ok := err.(*SpecError); ok {
			return se, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
