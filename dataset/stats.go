package dataset

import (
	"errors"
	"fmt"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrNoImages is returned by ChannelStats when the manifest only lists
// numpy tensors
var ErrNoImages = errors.New("dataset has no decodable images")

// numpy tensors are accepted by the toolkit but cannot be decoded as images
const npyExt = ".npy"

// ImageInfo describes a decodable calibration image
type ImageInfo struct {
	File   string
	Format string
	Width  int
	Height int
}

// Check decodes the header of every image in the manifest, returning the
// image details and an error naming each file that could not be decoded.
// Numpy .npy entries are skipped.
func (m *Manifest) Check() ([]ImageInfo, error) {

	var infos []ImageInfo
	var errs []error

	for _, e := range m.Entries {
		for _, file := range e.Files {
			if isNumpy(file) {
				continue
			}

			info, err := decodeConfig(file)

			if err != nil {
				errs = append(errs, fmt.Errorf("line %d: %w", e.Line, err))
				continue
			}

			infos = append(infos, info)
		}
	}

	return infos, errors.Join(errs...)
}

func decodeConfig(file string) (ImageInfo, error) {

	f, err := os.Open(file)

	if err != nil {
		return ImageInfo{}, err
	}

	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)

	if err != nil {
		return ImageInfo{}, fmt.Errorf("error decoding %s: %w", file, err)
	}

	return ImageInfo{
		File:   file,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Stats are per-channel pixel statistics of the calibration images in RGB
// order, in the same units as the toolkit's mean_values and std_values
type Stats struct {
	// Images is the number of images included
	Images int
	// Pixels is the total number of pixels per channel
	Pixels int
	Mean   [3]float64
	Std    [3]float64
}

// ChannelStats computes the per-channel mean and standard deviation over all
// images in the manifest. Pixel values are in the range 0-255, or 0-1 when
// normalize is set.
func (m *Manifest) ChannelStats(normalize bool) (Stats, error) {

	var (
		counts []float64
		means  [3][]float64
		vars   [3][]float64
	)

	for _, file := range m.Files() {
		if isNumpy(file) {
			continue
		}

		img, err := decodeImage(file)

		if err != nil {
			return Stats{}, err
		}

		channels := splitChannels(img, normalize)
		counts = append(counts, float64(len(channels[0])))

		for c := 0; c < 3; c++ {
			mean, variance := stat.PopMeanVariance(channels[c], nil)
			means[c] = append(means[c], mean)
			vars[c] = append(vars[c], variance)
		}
	}

	if len(counts) == 0 {
		return Stats{}, ErrNoImages
	}

	total := floats.Sum(counts)
	s := Stats{
		Images: len(counts),
		Pixels: int(total),
	}

	// combine per image results weighted by pixel count
	for c := 0; c < 3; c++ {
		mean := floats.Dot(counts, means[c]) / total

		second := make([]float64, len(counts))

		for i := range counts {
			second[i] = vars[c][i] + means[c][i]*means[c][i]
		}

		variance := floats.Dot(counts, second)/total - mean*mean

		if variance < 0 {
			variance = 0
		}

		s.Mean[c] = mean
		s.Std[c] = math.Sqrt(variance)
	}

	return s, nil
}

func decodeImage(file string) (image.Image, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, err
	}

	defer f.Close()

	img, _, err := image.Decode(f)

	if err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", file, err)
	}

	return img, nil
}

// splitChannels returns the R, G and B values of every pixel of img
func splitChannels(img image.Image, normalize bool) [3][]float64 {

	b := img.Bounds()
	n := b.Dx() * b.Dy()
	scale := 1.0

	if normalize {
		scale = 1.0 / 255.0
	}

	out := [3][]float64{
		make([]float64, 0, n),
		make([]float64, 0, n),
		make([]float64, 0, n),
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out[0] = append(out[0], float64(r>>8)*scale)
			out[1] = append(out[1], float64(g>>8)*scale)
			out[2] = append(out[2], float64(bl>>8)*scale)
		}
	}

	return out
}

func isNumpy(file string) bool {
	return strings.EqualFold(filepath.Ext(file), npyExt)
}
