package storage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/h2non/filetype"
)

// SniffLen is how many leading bytes Sniff needs.
const SniffLen = 261

// Kind is the detected category of an upload.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Detected describes sniffed content.
type Detected struct {
	Kind      Kind
	MIME      string
	Extension string
}

// Sniff inspects the magic bytes of r and accepts only images or audio of
// the wanted kind. It returns a reader that replays the sniffed prefix.
func Sniff(r io.Reader, want Kind) (Detected, io.Reader, error) {
	head := make([]byte, SniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Detected{}, nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return Detected{}, nil, ErrUnsupportedType
	}
	var got Kind
	switch {
	case filetype.IsImage(head):
		got = KindImage
	case filetype.IsAudio(head):
		got = KindAudio
	default:
		return Detected{}, nil, ErrUnsupportedType
	}
	if want != "" && got != want {
		return Detected{}, nil, fmt.Errorf("%w: got %s, want %s", ErrUnsupportedType, kind.MIME.Value, want)
	}
	d := Detected{Kind: got, MIME: kind.MIME.Value, Extension: kind.Extension}
	return d, io.MultiReader(bytes.NewReader(head), r), nil
}
