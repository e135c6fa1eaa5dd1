// Package upload handles inline file payloads: base64 data URIs, multipart
// file parts, and plain-text extraction from uploaded documents.
package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

var (
	ErrInvalidDataURI  = errors.New("invalid data URI")
	ErrTooLarge        = errors.New("payload too large")
	ErrUnsupportedType = errors.New("unsupported content type")
)

const mimePDF = "application/pdf"

// DataURI is a decoded "data:<mime>;base64,<payload>" value.
type DataURI struct {
	MIME string
	Data []byte
}

func (d DataURI) String() string {
	return Encode(d.MIME, d.Data)
}

// Encode renders data as a base64 data URI.
func Encode(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Parse decodes a base64 data URI. maxBytes bounds the decoded size; zero
// disables the check.
func Parse(s string, maxBytes int64) (*DataURI, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURI)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("%w: only base64 payloads are accepted", ErrInvalidDataURI)
	}
	if mime == "" {
		return nil, fmt.Errorf("%w: missing media type", ErrInvalidDataURI)
	}
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes+2 {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}
	return &DataURI{MIME: strings.ToLower(mime), Data: data}, nil
}

// ValidateImage accepts only image/* data URIs.
func ValidateImage(s string, maxBytes int64) (*DataURI, error) {
	d, err := Parse(s, maxBytes)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(d.MIME, "image/") {
		return nil, fmt.Errorf("%w: %s is not an image", ErrUnsupportedType, d.MIME)
	}
	return d, nil
}

// ValidateDocument accepts application/*, image/* and text/plain data URIs.
func ValidateDocument(s string, maxBytes int64) (*DataURI, error) {
	d, err := Parse(s, maxBytes)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(d.MIME, "application/") && !strings.HasPrefix(d.MIME, "image/") && d.MIME != "text/plain" {
		return nil, fmt.Errorf("%w: %s is not a document", ErrUnsupportedType, d.MIME)
	}
	return d, nil
}

// File is a multipart upload converted to a data URI.
type File struct {
	Name    string
	MIME    string
	DataURI string
}

// FromMultipart reads a file part and converts it to a data URI. The media
// type comes from the part header when it is specific, otherwise it is
// sniffed from the content.
func FromMultipart(fh *multipart.FileHeader, maxBytes int64) (*File, error) {
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxBytes)
	}

	mime := DetectMIME(fh.Header.Get("Content-Type"), data)
	return &File{Name: fh.Filename, MIME: mime, DataURI: Encode(mime, data)}, nil
}

// DetectMIME returns declared unless it is empty or generic, in which case
// the content is sniffed.
func DetectMIME(declared string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if clean != "" && clean != "application/octet-stream" {
		return clean
	}
	detected := mimetype.Detect(data).String()
	return strings.TrimSpace(strings.Split(detected, ";")[0])
}

// ExtractText returns the plain text of a PDF or text payload.
func ExtractText(d *DataURI) (string, error) {
	switch {
	case d.MIME == mimePDF:
		return extractPDF(d.Data)
	case strings.HasPrefix(d.MIME, "text/"):
		return string(d.Data), nil
	default:
		return "", fmt.Errorf("%w: no text extractor for %s", ErrUnsupportedType, d.MIME)
	}
}

func extractPDF(data []byte) (string, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
