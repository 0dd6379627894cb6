package errors

// Kind is the closed set of failure kinds a prediction request or the
// process startup can end in. The string value is what clients see as the
// prefix of an error body.
type Kind string

const (
	KindValidation Kind = "ValidationError"
	KindDecode     Kind = "DecodeError"
	KindShape      Kind = "ShapeError"
	KindInference  Kind = "InferenceError"
	KindStartup    Kind = "StartupError"
	KindInternal   Kind = "InternalError"
)

// internalMessage replaces the text of uncategorized errors in client responses.
const internalMessage = "internal server error"

// KindOf maps an error to its Kind using the category of the outermost
// EnhancedError in the chain. Errors that carry no known category are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var ee *EnhancedError
	if !As(err, &ee) {
		return KindInternal
	}

	switch ee.Category {
	case CategoryValidation:
		return KindValidation
	case CategoryImageDecode:
		return KindDecode
	case CategoryTensorShape:
		return KindShape
	case CategoryInference, CategoryTimeout, CategoryCancellation:
		return KindInference
	case CategoryStartup, CategoryModelLoad, CategoryModelInit, CategoryLabelLoad, CategoryConfiguration:
		return KindStartup
	default:
		return KindInternal
	}
}

// PublicMessage renders err as "<Kind>: <message>" for client responses.
// Internal errors never expose their underlying text.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	kind := KindOf(err)
	if kind == KindInternal {
		return string(kind) + ": " + internalMessage
	}
	return string(kind) + ": " + err.Error()
}

// Kind-specific constructors used across the prediction pipeline.

// DecodeError creates an image decoding error
func DecodeError(err error) *ErrorBuilder {
	return New(err).Category(CategoryImageDecode)
}

// ShapeError creates a tensor shape mismatch error
func ShapeError(err error) *ErrorBuilder {
	return New(err).Category(CategoryTensorShape)
}

// InferenceError creates a model invocation error
func InferenceError(err error) *ErrorBuilder {
	return New(err).Category(CategoryInference)
}

// StartupError creates a fatal startup error
func StartupError(err error) *ErrorBuilder {
	return New(err).Category(CategoryStartup).Priority(PriorityCritical)
}
