package comment

import "fmt"

// Kind identifies the variant of a comment body.
type Kind string

const (
	KindWritten Kind = "written"
	KindVideo   Kind = "video"
	KindSpoken  Kind = "spoken"
)

// Body is the content of a comment: Written, Video or Spoken.
// Media is stored elsewhere; media bodies only reference it.
type Body interface {
	Kind() Kind
	isBody()
}

// Written is a text comment.
type Written struct {
	Content string
}

// Video references an externally stored video.
type Video struct {
	MediaRef string
}

// Spoken references an externally stored audio recording.
type Spoken struct {
	MediaRef string
}

func (Written) Kind() Kind { return KindWritten }
func (Video) Kind() Kind   { return KindVideo }
func (Spoken) Kind() Kind  { return KindSpoken }

func (Written) isBody() {}
func (Video) isBody()   {}
func (Spoken) isBody()  {}

// NewBody builds a body from its stored columns.
func NewBody(kind Kind, content, mediaRef string) (Body, error) {
	switch kind {
	case KindWritten, "":
		return Written{Content: content}, nil
	case KindVideo:
		return Video{MediaRef: mediaRef}, nil
	case KindSpoken:
		return Spoken{MediaRef: mediaRef}, nil
	}
	return nil, fmt.Errorf("unknown comment kind %q", kind)
}

// columns splits a body into its stored content and media_ref columns.
func columns(b Body) (content, mediaRef string) {
	switch v := b.(type) {
	case Written:
		return v.Content, ""
	case Video:
		return "", v.MediaRef
	case Spoken:
		return "", v.MediaRef
	}
	return "", ""
}

// Text returns the written content, or "" for media bodies.
func Text(b Body) string {
	if w, ok := b.(Written); ok {
		return w.Content
	}
	return ""
}

func sameBody(a, b Body) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}
