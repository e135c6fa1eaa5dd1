package upload_test

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/kiranshivaraju/ayupilot/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestParse_RoundTrip(t *testing.T) {
	uri := upload.Encode("image/png", pngHeader)
	d, err := upload.Parse(uri, 0)
	require.NoError(t, err)
	assert.Equal(t, "image/png", d.MIME)
	assert.Equal(t, pngHeader, d.Data)
	assert.Equal(t, uri, d.String())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"no scheme", "image/png;base64,AAAA", upload.ErrInvalidDataURI},
		{"no comma", "data:image/png;base64", upload.ErrInvalidDataURI},
		{"not base64", "data:text/plain,hello", upload.ErrInvalidDataURI},
		{"no mime", "data:;base64,AAAA", upload.ErrInvalidDataURI},
		{"bad payload", "data:image/png;base64,!!!", upload.ErrInvalidDataURI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := upload.Parse(tt.in, 0)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParse_TooLarge(t *testing.T) {
	uri := upload.Encode("application/pdf", bytes.Repeat([]byte("x"), 100))
	_, err := upload.Parse(uri, 50)
	assert.ErrorIs(t, err, upload.ErrTooLarge)

	_, err = upload.Parse(uri, 100)
	assert.NoError(t, err)
}

func TestValidateImage(t *testing.T) {
	_, err := upload.ValidateImage(upload.Encode("image/jpeg", []byte{1, 2, 3}), 0)
	assert.NoError(t, err)

	_, err = upload.ValidateImage(upload.Encode("application/pdf", []byte{1}), 0)
	assert.ErrorIs(t, err, upload.ErrUnsupportedType)
}

func TestValidateDocument(t *testing.T) {
	for _, mime := range []string{"application/pdf", "image/png", "text/plain"} {
		_, err := upload.ValidateDocument(upload.Encode(mime, []byte{1}), 0)
		assert.NoError(t, err, mime)
	}
	_, err := upload.ValidateDocument(upload.Encode("text/html", []byte("<p>")), 0)
	assert.ErrorIs(t, err, upload.ErrUnsupportedType)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "application/pdf", upload.DetectMIME("Application/PDF; name=x", nil))
	assert.Equal(t, "image/png", upload.DetectMIME("", pngHeader))
	assert.Equal(t, "image/png", upload.DetectMIME("application/octet-stream", pngHeader))
	assert.Equal(t, "text/plain", upload.DetectMIME("", []byte("haemoglobin 13.2 g/dL")))
}

func multipartFile(t *testing.T, field, name, contentType string, data []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+name+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	_, fh, err := req.FormFile(field)
	require.NoError(t, err)
	return fh
}

func TestFromMultipart_UsesDeclaredType(t *testing.T) {
	fh := multipartFile(t, "document", "cbc.pdf", "application/pdf", []byte("%PDF-1.4"))
	f, err := upload.FromMultipart(fh, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "cbc.pdf", f.Name)
	assert.Equal(t, "application/pdf", f.MIME)
	assert.Equal(t, upload.Encode("application/pdf", []byte("%PDF-1.4")), f.DataURI)
}

func TestFromMultipart_SniffsGenericType(t *testing.T) {
	fh := multipartFile(t, "image", "tongue", "application/octet-stream", pngHeader)
	f, err := upload.FromMultipart(fh, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.MIME)
}

func TestFromMultipart_TooLarge(t *testing.T) {
	fh := multipartFile(t, "document", "big.pdf", "application/pdf", bytes.Repeat([]byte("x"), 64))
	_, err := upload.FromMultipart(fh, 32)
	assert.ErrorIs(t, err, upload.ErrTooLarge)
}

func TestExtractText(t *testing.T) {
	text, err := upload.ExtractText(&upload.DataURI{MIME: "text/plain", Data: []byte("TSH 2.1")})
	require.NoError(t, err)
	assert.Equal(t, "TSH 2.1", text)

	_, err = upload.ExtractText(&upload.DataURI{MIME: "image/png", Data: pngHeader})
	assert.ErrorIs(t, err, upload.ErrUnsupportedType)

	_, err = upload.ExtractText(&upload.DataURI{MIME: "application/pdf", Data: []byte("not a pdf")})
	assert.Error(t, err)
}
