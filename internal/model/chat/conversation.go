package chat

import "context"

// Part is one element of a multi-part model request. Exactly one of Text or
// Image is set.
type Part struct {
	Text  string
	Image *Image
}

// TextPart wraps text into a Part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart wraps an image into a Part.
func ImagePart(img *Image) Part {
	return Part{Image: img}
}

// Conversation is the model-side handle that keeps multi-turn context for one
// persona. Each Send appends a turn to that context.
type Conversation interface {
	Send(ctx context.Context, parts []Part) (string, error)
}
