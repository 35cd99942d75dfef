package document

import (
	"bytes"
	"errors"
	"testing"
)

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
	}{
		{name: "pdf sniffed", data: []byte("%PDF-1.7\n"), declared: "application/octet-stream", want: MimePDF},
		{name: "pdf despite wrong declaration", data: []byte("%PDF-1.7\n"), declared: "image/png", want: MimePDF},
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n0000"), want: "image/png"},
		{name: "declared wins for opaque bytes", data: []byte{0x00, 0x01, 0x02, 0xff}, declared: "application/msword", want: "application/msword"},
		{name: "docx is a zip", data: []byte("PK\x03\x04rest"), declared: "application/vnd.openxmlformats-officedocument.wordprocessingml.document; charset=binary", want: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{name: "plain text", data: []byte("hello world"), want: "text/plain"},
		{name: "declared html text", data: []byte("just words"), declared: "text/html", want: "text/html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIME(tt.data, tt.declared); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateUploadType(t *testing.T) {
	if err := ValidateUploadType(MimePDF, true); err != nil {
		t.Fatalf("pdf slot: %v", err)
	}
	if err := ValidateUploadType("image/png", true); !errors.Is(err, ErrInvalidFileType) {
		t.Fatalf("expected png slot upload rejected, got %v", err)
	}
	if err := ValidateUploadType("image/png", false); err != nil {
		t.Fatalf("png free-form: %v", err)
	}
	if err := ValidateUploadType("application/x-msdownload", false); !errors.Is(err, ErrInvalidFileType) {
		t.Fatalf("expected executable rejected, got %v", err)
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	payload := []byte("%PDF-1.4 binary \x00\xff")
	encoded := EncodeDataURL(MimePDF, payload)

	mimeType, data, err := DecodeDataURL(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if mimeType != MimePDF || !bytes.Equal(data, payload) {
		t.Fatalf("got %s %q", mimeType, data)
	}

	mimeType, data, err = DecodeDataURL("plain legacy text")
	if err != nil || mimeType != "text/plain" || string(data) != "plain legacy text" {
		t.Fatalf("unexpected passthrough %s %q %v", mimeType, data, err)
	}

	if _, _, err := DecodeDataURL("data:application/pdf;base64"); err == nil {
		t.Fatal("expected malformed data url to fail")
	}
	if _, _, err := DecodeDataURL("data:application/pdf;base64,!!!"); err == nil {
		t.Fatal("expected bad base64 to fail")
	}
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("one"))
	if len(a) != 64 {
		t.Fatalf("expected 32-byte hex digest, got %d chars", len(a))
	}
	if a == Checksum([]byte("two")) || a != Checksum([]byte("one")) {
		t.Fatal("checksum must be deterministic and content dependent")
	}
}
