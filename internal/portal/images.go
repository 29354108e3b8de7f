package portal

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Photo limits.
const (
	MaxImages     = 5
	MaxImageBytes = 5 << 20
)

var (
	ErrTooManyImages  = errors.New("too many images")
	ErrImageTooLarge  = errors.New("image too large")
	ErrNotImage       = errors.New("not an image")
	ErrMalformedImage = errors.New("malformed image data")
)

// Image is a decoded data URI.
type Image struct {
	MIME string
	Data []byte
}

// ParseDataURI decodes "data:image/<type>;base64,<payload>".
func ParseDataURI(uri string) (Image, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return Image{}, ErrMalformedImage
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, ErrMalformedImage
	}
	mime, enc, _ := strings.Cut(meta, ";")
	mime = strings.ToLower(strings.TrimSpace(mime))
	if !strings.HasPrefix(mime, "image/") || len(mime) == len("image/") {
		return Image{}, ErrNotImage
	}
	if !strings.EqualFold(enc, "base64") {
		return Image{}, ErrMalformedImage
	}
	// Reject before decoding when the payload cannot fit.
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+2 {
		return Image{}, ErrImageTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, ErrMalformedImage
	}
	if len(data) > MaxImageBytes {
		return Image{}, ErrImageTooLarge
	}
	if len(data) == 0 {
		return Image{}, ErrMalformedImage
	}
	return Image{MIME: mime, Data: data}, nil
}

// ValidateImages decodes every data URI and enforces the count and size
// limits. The first failure is returned.
func ValidateImages(uris []string) ([]Image, error) {
	if len(uris) > MaxImages {
		return nil, ErrTooManyImages
	}
	out := make([]Image, 0, len(uris))
	for _, u := range uris {
		img, err := ParseDataURI(u)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}
