package pipeline

import "net/http"

// Code is the closed error taxonomy. Clients only ever see these values;
// raw upstream messages never leak past the pipeline boundary.
type Code string

const (
	CodeUnsupportedImageFormat Code = "UNSUPPORTED_IMAGE_FORMAT"
	CodeInvalidImage           Code = "INVALID_IMAGE"
	CodeImageTooLarge          Code = "IMAGE_TOO_LARGE"
	CodeGateError              Code = "GATE_ERROR"
	CodeUnsupportedContent     Code = "UNSUPPORTED_CONTENT"
	CodeLowConfidence          Code = "LOW_CONFIDENCE"
	CodeEmptyResult            Code = "EMPTY_RESULT"
	CodeUpstreamError          Code = "UPSTREAM_ERROR"
	CodeUpstreamTimeout        Code = "UPSTREAM_TIMEOUT"
	CodeRateLimit              Code = "RATE_LIMIT"
)

// Descriptor is the user-facing rendering of one error code.
type Descriptor struct {
	HTTPStatus  int
	UserTitle   string
	UserMessage string
	UserActions []string
	AllowRetry  bool
}

// DescriptorTable maps codes to descriptors. Built once at startup and
// injected read-only; never mutated afterwards.
type DescriptorTable map[Code]Descriptor

// Lookup returns the descriptor for c, falling back to UPSTREAM_ERROR for
// unknown codes so a response can always be rendered.
func (t DescriptorTable) Lookup(c Code) Descriptor {
	if d, ok := t[c]; ok {
		return d
	}
	return t[CodeUpstreamError]
}

// DefaultDescriptors builds the standard descriptor table.
func DefaultDescriptors() DescriptorTable {
	return DescriptorTable{
		CodeUnsupportedImageFormat: {
			HTTPStatus:  http.StatusBadRequest,
			UserTitle:   "Unsupported image format",
			UserMessage: "Only JPEG and PNG images are supported.",
			UserActions: []string{"Upload the photo as JPEG or PNG."},
			AllowRetry:  false,
		},
		CodeInvalidImage: {
			HTTPStatus:  http.StatusBadRequest,
			UserTitle:   "Image could not be read",
			UserMessage: "The uploaded file is empty or unreadable.",
			UserActions: []string{"Take the photo again and re-upload it."},
			AllowRetry:  false,
		},
		CodeImageTooLarge: {
			HTTPStatus:  http.StatusRequestEntityTooLarge,
			UserTitle:   "Image too large",
			UserMessage: "The uploaded file exceeds the size limit.",
			UserActions: []string{"Reduce the photo size or quality and try again."},
			AllowRetry:  false,
		},
		CodeGateError: {
			HTTPStatus:  http.StatusBadGateway,
			UserTitle:   "Recognition service unavailable",
			UserMessage: "The food check could not be completed right now.",
			UserActions: []string{"Try again in a minute."},
			AllowRetry:  true,
		},
		CodeUnsupportedContent: {
			HTTPStatus:  http.StatusBadRequest,
			UserTitle:   "No food detected",
			UserMessage: "The photo does not appear to contain food.",
			UserActions: []string{"Upload a photo of a dish or product."},
			AllowRetry:  false,
		},
		CodeLowConfidence: {
			HTTPStatus:  http.StatusUnprocessableEntity,
			UserTitle:   "Could not recognize the food",
			UserMessage: "The photo is too ambiguous to recognize reliably.",
			UserActions: []string{"Retake the photo with better lighting.", "Add a comment naming the dish."},
			AllowRetry:  true,
		},
		CodeEmptyResult: {
			HTTPStatus:  http.StatusUnprocessableEntity,
			UserTitle:   "Nothing recognized",
			UserMessage: "No food items could be identified on the photo.",
			UserActions: []string{"Retake the photo closer to the food.", "Add a comment naming the dish."},
			AllowRetry:  true,
		},
		CodeUpstreamError: {
			HTTPStatus:  http.StatusBadGateway,
			UserTitle:   "Recognition failed",
			UserMessage: "The recognition service returned an error.",
			UserActions: []string{"Try again in a minute."},
			AllowRetry:  true,
		},
		CodeUpstreamTimeout: {
			HTTPStatus:  http.StatusGatewayTimeout,
			UserTitle:   "Recognition timed out",
			UserMessage: "The recognition service took too long to respond.",
			UserActions: []string{"Try again in a minute."},
			AllowRetry:  true,
		},
		CodeRateLimit: {
			HTTPStatus:  http.StatusTooManyRequests,
			UserTitle:   "Too many requests",
			UserMessage: "The recognition service is rate limiting requests.",
			UserActions: []string{"Wait a little and try again."},
			AllowRetry:  true,
		},
	}
}
