package upload

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pixel() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, pixel()))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, pixel(), nil))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, text string, fileName string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField(textField, text))
	if file != nil {
		fw, err := mw.CreateFormFile(imageField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/messages", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestParseFormWithImage(t *testing.T) {
	data := pngBytes(t)
	req := multipartRequest(t, "what is this boss?", "dir/shot.png", data)

	form, err := ParseForm(httptest.NewRecorder(), req, 1<<20)
	require.NoError(t, err)

	assert.Equal(t, "what is this boss?", form.Text)
	require.NotNil(t, form.Image)
	assert.Equal(t, "image/png", form.Image.MIMEType)
	assert.Equal(t, "shot.png", form.Image.Name)
	assert.Equal(t, data, form.Image.Data)
}

func TestParseFormWithoutImage(t *testing.T) {
	form, err := ParseForm(httptest.NewRecorder(), multipartRequest(t, "hello", "", nil), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "hello", form.Text)
	assert.Nil(t, form.Image)
}

func TestParseFormURLEncoded(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(url.Values{"text": {"hi"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := ParseForm(httptest.NewRecorder(), req, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "hi", form.Text)
	assert.Nil(t, form.Image)
}

func TestParseFormRejectsOtherImageTypes(t *testing.T) {
	gif := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
	_, err := ParseForm(httptest.NewRecorder(), multipartRequest(t, "hi", "anim.gif", gif), 1<<20)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestParseFormTooLarge(t *testing.T) {
	big := append(pngBytes(t), bytes.Repeat([]byte{0}, 4096)...)
	_, err := ParseForm(httptest.NewRecorder(), multipartRequest(t, "hi", "big.png", big), 512)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage("photo.jpg", jpegBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MIMEType)

	img, err = DecodeImage("", nil)
	assert.NoError(t, err)
	assert.Nil(t, img)

	// a PNG signature followed by garbage sniffs as PNG but does not decode
	_, err = DecodeImage("broken.png", []byte("\x89PNG\r\n\x1a\nnot really"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}
