package router

import "image"

// Screen layout shared by the renderer and the default hit-regions.
const (
	BarHeight    = 24 // top status bar
	FooterHeight = 18 // bottom bar holding the back zone
	TilePadding  = 6
	BackWidth    = 100
)

// AppTiles lists the apps grid, left to right then top to bottom.
var AppTiles = []ScreenID{Emails, Focus, Brief, SystemCare}

// PieRegion is the dashboard area that opens the apps grid.
var PieRegion = HitRegion{X0: 14, Y0: 82, X1: 96, Y1: 162, Target: Apps}

// BackRegion returns the back zone of a w×h screen: the left BackWidth
// pixels of the footer.
func BackRegion(w, h int) HitRegion {
	return HitRegion{X0: 0, Y0: h - FooterHeight, X1: BackWidth - 1, Y1: h - 1, Target: Dashboard}
}

// TileRects returns the rectangles of the apps grid on a w×h screen, in
// AppTiles order: two columns and two rows below the top bar. Max is the
// last pixel of the tile, as in HitRegion.
func TileRects(w, h int) []image.Rectangle {
	tw := (w - 3*TilePadding) / 2
	th := (h - BarHeight - 3*TilePadding) / 2
	rects := make([]image.Rectangle, len(AppTiles))
	for i := range AppTiles {
		col, row := i%2, i/2
		x := TilePadding + col*(tw+TilePadding)
		y := BarHeight + TilePadding + row*(th+TilePadding)
		rects[i] = image.Rect(x, y, x+tw, y+th)
	}
	return rects
}

// DefaultRegions returns the hit-regions of screen on a w×h display.
func DefaultRegions(screen ScreenID, w, h int) []HitRegion {
	switch screen {
	case Dashboard:
		return []HitRegion{PieRegion}
	case Apps:
		rects := TileRects(w, h)
		regions := make([]HitRegion, 0, len(rects)+1)
		for i, r := range rects {
			regions = append(regions, HitRegion{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y, Target: AppTiles[i]})
		}
		return append(regions, BackRegion(w, h))
	default:
		return []HitRegion{BackRegion(w, h)}
	}
}
