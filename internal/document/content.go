package document

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	MimePDF  = "application/pdf"
	mimeDoc  = "application/msword"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var freeFormTypes = map[string]struct{}{
	MimePDF:      {},
	"image/png":  {},
	"image/jpeg": {},
	"text/plain": {},
	"text/html":  {},
	mimeDoc:      {},
	mimeDocx:     {},
}

// DetectMIME sniffs the payload and falls back to the declared content type
// when sniffing is inconclusive.
func DetectMIME(data []byte, declared string) string {
	sniffed := baseMediaType(http.DetectContentType(data))
	declared = baseMediaType(declared)
	switch sniffed {
	case "application/octet-stream", "application/zip", "":
		if declared != "" {
			return declared
		}
	case "text/plain":
		// text/plain is what the sniffer reports for most unknown text, so
		// a more specific declared text type wins.
		if strings.HasPrefix(declared, "text/") {
			return declared
		}
	}
	return sniffed
}

// ValidateUploadType applies the accepted-format policy: slot documents must
// be PDFs, free-form uploads may use any of the accepted document formats.
func ValidateUploadType(mimeType string, slot bool) error {
	if slot {
		if mimeType != MimePDF {
			return fmt.Errorf("%w: %s (slot documents must be PDF)", ErrInvalidFileType, mimeType)
		}
		return nil
	}
	if _, ok := freeFormTypes[mimeType]; !ok {
		return fmt.Errorf("%w: %s", ErrInvalidFileType, mimeType)
	}
	return nil
}

func baseMediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(v)
	}
	return mt
}

// EncodeDataURL stores binary content the way the records carry it.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL returns the media type and payload of a base64 data URL.
// Content that is not a data URL is returned verbatim as text/plain.
func DecodeDataURL(content string) (string, []byte, error) {
	if !strings.HasPrefix(content, "data:") {
		return "text/plain", []byte(content), nil
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(content, "data:"), ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	mediaType := header
	isBase64 := false
	if strings.HasSuffix(header, ";base64") {
		mediaType = strings.TrimSuffix(header, ";base64")
		isBase64 = true
	}
	if !isBase64 {
		return baseMediaType(mediaType), []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return baseMediaType(mediaType), data, nil
}

// Checksum is the hex BLAKE2b-256 digest of a payload.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
