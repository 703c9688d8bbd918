package content

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/BOTO145/and-desk/router"
	"github.com/BOTO145/and-desk/scheduler"
)

// Preview writes every primary screen and the secondary widget as PNG files
// in dir, named after the screen ("dashboard.png", ..., "status.png"). It
// returns the written paths.
func (r *Renderer) Preview(dir string, s scheduler.Snapshot, secondary image.Point) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	var paths []string
	for _, id := range router.Screens() {
		snap := s
		snap.Router.Screen = id
		img, _, err := r.Primary(snap)
		if err != nil {
			return paths, err
		}
		p := filepath.Join(dir, id.String()+".png")
		if err := writePNG(p, img); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	snap := s
	snap.Size = secondary
	img, err := r.Secondary(snap)
	if err != nil {
		return paths, err
	}
	p := filepath.Join(dir, "status.png")
	if err := writePNG(p, img); err != nil {
		return paths, err
	}
	return append(paths, p), nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("content: %s: %w", path, err)
	}
	return f.Close()
}
