// Package media maps file extensions to the image formats the pipeline handles.
package media

import (
	"path/filepath"
	"strings"
)

type Type string

const (
	Unsupported Type = ""
	JPEG        Type = "jpeg"
	PNG         Type = "png"
	WEBP        Type = "webp"
)

var byExt = map[string]Type{
	".jpg":  JPEG,
	".jpeg": JPEG,
	".png":  PNG,
	".webp": WEBP,
}

// FromPath derives the media type from the extension, case-insensitively.
func FromPath(path string) Type {
	return byExt[strings.ToLower(filepath.Ext(path))]
}

func (t Type) Supported() bool {
	return t == JPEG || t == PNG || t == WEBP
}

// ContentType is the value sent as Content-Type on upload.
func (t Type) ContentType() string {
	switch t {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	case WEBP:
		return "image/webp"
	}
	return "application/octet-stream"
}

func (t Type) String() string {
	if t == Unsupported {
		return "unsupported"
	}
	return string(t)
}
