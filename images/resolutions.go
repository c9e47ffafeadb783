package images

import (
	"fmt"
	"math"
	"sort"
)

// AspectRatio represents a camera aspect ratio by name (e.g., "16:9").
type AspectRatio string

// Defines standard and common aspect ratios for surveillance cameras.
const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
)

// ResolutionType represents a common name or standard for a camera resolution.
type ResolutionType string

// Defines the unique type for each supported camera resolution.
const (
	ResolutionTypeNHD      ResolutionType = "nHD"
	ResolutionTypeQHD540   ResolutionType = "qHD 540p"
	ResolutionTypeHD720p   ResolutionType = "HD 720p"
	ResolutionTypeFHD1080p ResolutionType = "Full HD 1080p"
	ResolutionType2MP43    ResolutionType = "2MP (4:3)"
	ResolutionTypeQHD1440p ResolutionType = "QHD 1440p"
	ResolutionType4MP169   ResolutionType = "4MP (16:9)"
	ResolutionType4KUHD    ResolutionType = "4K UHD"
	ResolutionType8KUHD    ResolutionType = "8K UHD"
)

// ResolutionPixels describes the exact dimensions of a resolution.
type ResolutionPixels struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String renders the dimensions as "WxH".
func (p ResolutionPixels) String() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// Resolution describes the complete set of attributes for a camera
// resolution standard.
type Resolution struct {
	Name        ResolutionType   `json:"name"`
	AspectRatio AspectRatio      `json:"aspectRatio"`
	Pixels      ResolutionPixels `json:"pixels"`
}

// GetMegaPixels calculates the megapixel value based on the resolution's
// pixel dimensions, rounded to two decimal places (e.g., 2.07 for 1080p).
func (r Resolution) GetMegaPixels() float64 {
	if r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Pixels.Width*r.Pixels.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Pixels.Width, r.Pixels.Height, r.GetMegaPixels())
}

// NetworkSize returns the letterbox target for this feed: the frame
// scaled so its long side is base, with both sides rounded up to the
// stride multiple the detection head requires.
func (r Resolution) NetworkSize(base, stride int) ResolutionPixels {
	if base <= 0 || stride <= 0 || r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return ResolutionPixels{}
	}
	gain := float64(base) / float64(max(r.Pixels.Width, r.Pixels.Height))
	w := int(math.Ceil(float64(r.Pixels.Width)*gain/float64(stride))) * stride
	h := int(math.Ceil(float64(r.Pixels.Height)*gain/float64(stride))) * stride
	return ResolutionPixels{Width: w, Height: h}
}

// resolutions stores the supported resolution standards, keyed by their
// ResolutionType for efficient lookups.
var resolutions = map[ResolutionType]Resolution{
	ResolutionTypeNHD: {
		Name:        ResolutionTypeNHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 640, Height: 360},
	},
	ResolutionTypeQHD540: {
		Name:        ResolutionTypeQHD540,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 960, Height: 540},
	},
	ResolutionTypeHD720p: {
		Name:        ResolutionTypeHD720p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1280, Height: 720},
	},
	ResolutionTypeFHD1080p: {
		Name:        ResolutionTypeFHD1080p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1920, Height: 1080},
	},
	ResolutionType2MP43: {
		Name:        ResolutionType2MP43,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 1600, Height: 1200},
	},
	ResolutionTypeQHD1440p: {
		Name:        ResolutionTypeQHD1440p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 2560, Height: 1440},
	},
	ResolutionType4MP169: {
		Name:        ResolutionType4MP169,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 2688, Height: 1520},
	},
	ResolutionType4KUHD: {
		Name:        ResolutionType4KUHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 3840, Height: 2160},
	},
	ResolutionType8KUHD: {
		Name:        ResolutionType8KUHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 7680, Height: 4320},
	},
}

// GetAllResolutions returns all defined resolution standards ordered by
// ascending megapixels, so sweeps run smallest frame first.
func GetAllResolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, res := range resolutions {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		pi := all[i].Pixels.Width * all[i].Pixels.Height
		pj := all[j].Pixels.Width * all[j].Pixels.Height
		if pi != pj {
			return pi < pj
		}
		return all[i].Name < all[j].Name
	})
	return all
}

// GetResolutionByType retrieves a specific resolution by its type.
// It returns the Resolution and true if found, otherwise an empty
// Resolution and false.
func GetResolutionByType(t ResolutionType) (Resolution, bool) {
	res, ok := resolutions[t]
	return res, ok
}

// GetHighestResolutionUnderDimensions retrieves the highest resolution
// that fits within the given width and height.
//
// Arguments:
//   - width: The maximum possible width of the image.
//   - height: The maximum possible height of the image.
//
// Returns:
//   - Resolution: The highest resolution under the given dimensions.
//   - bool: True if a resolution was found, otherwise false.
func GetHighestResolutionUnderDimensions(width, height int) (Resolution, bool) {
	var highest Resolution
	var found bool

	for _, res := range resolutions {
		if res.Pixels.Width <= width && res.Pixels.Height <= height {
			if !found || res.GetMegaPixels() > highest.GetMegaPixels() {
				highest = res
				found = true
			}
		}
	}
	return highest, found
}
