package media

import (
	"bytes"
	"encoding/base64"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

const (
	thumbnailMaxSize = 320
	thumbnailQuality = 80
)

// makeThumbnail downscales an image to fit within 320x320 and returns it as
// a JPEG data URI small enough to embed in message content.
func makeThumbnail(r io.Reader) (string, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return "", errors.Wrap(err, "failed to decode image")
	}

	thumb := imaging.Fit(img, thumbnailMaxSize, thumbnailMaxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return "", errors.Wrap(err, "failed to encode thumbnail")
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
