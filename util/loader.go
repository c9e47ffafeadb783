// Package util - filesystem helpers shared by benchmarks and tests.
package util

import (
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-yolo/images"
)

// ImageFile is one corpus entry: the raw bytes of an image on disk plus
// whatever metadata the loader could recover from its name and contents.
type ImageFile struct {
	// Path is the location the file was read from.
	Path string
	// Data holds the raw, undecoded file contents.
	Data []byte
	// Format is the container format sniffed from the file's magic
	// bytes, never trusted from the extension.
	Format images.ImageFormat
	// Frame is the sequence number parsed from capture names like
	// "frame-120.jpg", or -1 when the name carries none.
	Frame int
}

// Decode renders the file into an image.Image using the sniffed format.
func (f ImageFile) Decode() (image.Image, error) {
	return images.DecodeToImage(f.Data, f.Format)
}

// Loader reads a detection corpus from a directory. Files whose contents
// are not a recognized image format are skipped, so corpus directories
// may carry annotation sidecars next to the frames.
type Loader struct {
	// Dir is the directory to scan. Subdirectories are not descended.
	Dir string
	// MaxImages caps how many files are read; zero means no cap.
	MaxImages int
}

// Load reads every recognized image under l.Dir. Files named with frame
// numbers come first in frame order; the rest follow in path order.
func (l Loader) Load() ([]ImageFile, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "util: reading corpus directory %s", l.Dir)
	}

	files := make([]ImageFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(l.Dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "util: reading %s", path)
		}
		format := images.DetectFormat(data)
		if format == images.FormatUnknown {
			continue
		}
		files = append(files, ImageFile{
			Path:   path,
			Data:   data,
			Format: format,
			Frame:  frameNumber(entry.Name()),
		})
		if l.MaxImages > 0 && len(files) == l.MaxImages {
			break
		}
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		switch {
		case a.Frame >= 0 && b.Frame >= 0 && a.Frame != b.Frame:
			return a.Frame < b.Frame
		case (a.Frame >= 0) != (b.Frame >= 0):
			return a.Frame >= 0
		default:
			return a.Path < b.Path
		}
	})
	return files, nil
}

// LoadDirectoryImageFiles reads every image in dir in frame order. It is
// shorthand for Loader{Dir: dir}.Load().
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	return Loader{Dir: dir}.Load()
}

// frameNumber parses the trailing number from capture names such as
// "frame-120.jpg". Names without one yield -1.
func frameNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "-")
	if idx < 0 || idx == len(base)-1 {
		return -1
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil || n < 0 {
		return -1
	}
	return n
}
