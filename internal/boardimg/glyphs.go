package boardimg

import "fmt"

// Piece silhouettes on a 45x45 viewbox, drawn as closed polygons so
// the rasterizer never has to guess about open subpaths.
var glyphPaths = map[string]string{
	"pawn": "M22.5 10 A5 5 0 1 1 22.4 10 Z " +
		"M17 33 L19 20 L26 20 L28 33 Z " +
		"M12 38 L33 38 L33 34 L12 34 Z",
	"rook": "M12 12 L15 12 L15 15 L19 15 L19 12 L26 12 L26 15 L30 15 L30 12 L33 12 L33 19 L12 19 Z " +
		"M15 20 L30 20 L29 32 L16 32 Z " +
		"M11 38 L34 38 L34 33 L11 33 Z",
	"knight": "M14 38 L14 33 L17 28 L15 24 L18 14 L24 10 L26 14 L31 17 L33 23 L29 22 L26 19 L24 24 L27 30 L29 33 L29 38 Z",
	"bishop": "M22.5 8 A3.5 3.5 0 1 1 22.4 8 Z " +
		"M17 30 L20 16 L25 16 L28 30 Z " +
		"M13 38 L32 38 L32 34 L13 34 Z",
	"queen": "M11 16 L15 28 L13 33 L32 33 L30 28 L34 16 L28 23 L22.5 12 L17 23 Z " +
		"M12 38 L33 38 L33 34 L12 34 Z",
	"king": "M21 8 L24 8 L24 11 L27 11 L27 14 L24 14 L24 17 L21 17 L21 14 L18 14 L18 11 L21 11 Z " +
		"M16 32 L18 18 L27 18 L29 32 Z " +
		"M12 38 L33 38 L33 33 L12 33 Z",
}

func pieceSVG(kind, color string) (string, bool) {
	path, ok := glyphPaths[kind]
	if !ok {
		return "", false
	}
	fill := "#f6f3e8"
	if color == "black" {
		fill = "#2c2c2c"
	}
	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45">`+
			`<path d="%s" fill="%s" stroke="#1a1a1a" stroke-width="1.2"/></svg>`,
		path, fill)
	return svg, true
}
