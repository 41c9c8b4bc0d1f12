package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ozyassistant/ozy/backend/internal/model/chat"
)

const (
	textField  = "text"
	imageField = "image"

	// memoryLimit is how much of a multipart form stays in memory before
	// spilling to temp files.
	memoryLimit = 1 << 20
)

var (
	ErrTooLarge         = errors.New("upload exceeds the size limit")
	ErrUnsupportedImage = errors.New("only JPEG and PNG images are accepted")
	ErrMalformed        = errors.New("malformed form data")
)

// Form is a parsed turn submission.
type Form struct {
	Text  string
	Image *chat.Image
}

// ParseForm reads the text field and the optional image file of a multipart
// or urlencoded request whose body is capped at maxBytes.
func ParseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (Form, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return Form{}, classify(err)
		}
		if err := r.ParseForm(); err != nil {
			return Form{}, classify(err)
		}
	}

	form := Form{Text: r.FormValue(textField)}

	file, header, err := r.FormFile(imageField)
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return form, nil
	case err != nil:
		return Form{}, classify(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Form{}, classify(err)
	}
	img, err := DecodeImage(header.Filename, data)
	if err != nil {
		return Form{}, err
	}
	form.Image = img
	return form, nil
}

// DecodeImage validates raw bytes as a JPEG or PNG picture. Empty data means
// no image was attached.
func DecodeImage(name string, data []byte) (*chat.Image, error) {
	if len(data) == 0 {
		return nil, nil
	}

	mimeType := http.DetectContentType(data)
	if mimeType != "image/jpeg" && mimeType != "image/png" {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedImage, mimeType)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	if name != "" {
		name = filepath.Base(name)
	}
	return &chat.Image{
		Name:     name,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

func classify(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return ErrTooLarge
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}
