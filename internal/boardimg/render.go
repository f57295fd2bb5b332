package boardimg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/darkchess-server/internal/engine"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

const (
	squareSize   = 64
	boardSquares = 8
	boardSize    = squareSize * boardSquares
	margin       = 28
)

var (
	lightSquare = color.RGBA{233, 207, 163, 255}
	darkSquare  = color.RGBA{187, 136, 96, 255}
	fogOverlay  = color.NRGBA{20, 22, 30, 185}
	coordColor  = color.NRGBA{70, 52, 36, 255}
	background  = color.RGBA{246, 243, 232, 255}
)

type glyphKey struct {
	kind  string
	color string
	size  int
}

var (
	glyphCache   = map[glyphKey]image.Image{}
	glyphCacheMu sync.RWMutex
)

// Renderer draws a fog-of-war board view as a PNG. The view already
// reflects one player's visibility, so whatever is absent from the
// cell map gets the fog treatment.
type Renderer struct{}

func NewRenderer() *Renderer { return &Renderer{} }

// RenderPNG rasterizes the view. pov flips the board so the viewing
// player always sits at the bottom.
func (r *Renderer) RenderPNG(ctx context.Context, view *chessdto.BoardView, pov string) ([]byte, error) {
	if view == nil {
		return nil, fmt.Errorf("board view is nil")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	total := boardSize + margin*2
	img := image.NewRGBA(image.Rect(0, 0, total, total))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, imagedraw.Src)
	origin := image.Point{X: margin, Y: margin}
	flip := strings.EqualFold(pov, string(engine.Black))

	for y := 1; y <= boardSquares; y++ {
		for x := 1; x <= boardSquares; x++ {
			rect := squareRect(x, y, origin, flip)
			clr := lightSquare
			if (x+y)%2 == 0 {
				clr = darkSquare
			}
			imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Src)

			coors := engine.Pos{X: x, Y: y}.Coors()
			fv, visible := view.Cells[coors]
			if !visible {
				imagedraw.Draw(img, rect, image.NewUniform(fogOverlay), image.Point{}, imagedraw.Over)
				continue
			}
			if fv == nil {
				continue
			}
			glyph, err := renderGlyph(fv.Kind, fv.Color, squareSize)
			if err != nil {
				return nil, err
			}
			imagedraw.Draw(img, rect, glyph, image.Point{}, imagedraw.Over)
		}
	}

	drawCoordinates(img, origin, flip)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func squareRect(x, y int, origin image.Point, flip bool) image.Rectangle {
	col := x - 1
	row := boardSquares - y
	if flip {
		col = boardSquares - x
		row = y - 1
	}
	px := origin.X + col*squareSize
	py := origin.Y + row*squareSize
	return image.Rect(px, py, px+squareSize, py+squareSize)
}

func renderGlyph(kind, pieceColor string, size int) (image.Image, error) {
	key := glyphKey{kind: kind, color: pieceColor, size: size}
	glyphCacheMu.RLock()
	if img, ok := glyphCache[key]; ok {
		glyphCacheMu.RUnlock()
		return img, nil
	}
	glyphCacheMu.RUnlock()

	svg, ok := pieceSVG(kind, pieceColor)
	if !ok {
		return nil, fmt.Errorf("unknown piece kind: %s", kind)
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	glyphCacheMu.Lock()
	glyphCache[key] = img
	glyphCacheMu.Unlock()
	return img, nil
}

func drawCoordinates(img *image.RGBA, origin image.Point, flip bool) {
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(coordColor),
		Face: basicfont.Face7x13,
	}
	for i := 0; i < boardSquares; i++ {
		file := string(rune('a' + i))
		rank := fmt.Sprintf("%d", boardSquares-i)
		if flip {
			file = string(rune('a' + boardSquares - 1 - i))
			rank = fmt.Sprintf("%d", i+1)
		}
		fx := origin.X + i*squareSize + squareSize/2 - 3
		fy := origin.Y + boardSize + margin/2 + 4
		drawer.Dot = fixed.P(fx, fy)
		drawer.DrawString(file)

		rx := origin.X - margin/2 - 3
		ry := origin.Y + i*squareSize + squareSize/2 + 4
		drawer.Dot = fixed.P(rx, ry)
		drawer.DrawString(rank)
	}
}
