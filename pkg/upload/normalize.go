package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Normalize shrinks the image at path so neither side exceeds maxDim and
// re-encodes it in place (JPEG at the given quality, PNG losslessly). Images
// already within bounds are left untouched. It returns the resulting size.
func Normalize(path string, maxDim, quality int) (int64, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return 0, fmt.Errorf("open image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	ext := strings.ToLower(filepath.Ext(path))
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		format = imaging.JPEG
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	if err := imaging.Encode(f, resized, format, imaging.JPEGQuality(quality)); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("encode image: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
