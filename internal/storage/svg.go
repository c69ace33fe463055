package storage

import (
	"fmt"
	"io"
	"strings"

	"github.com/san-kum/fmulab/internal/sim"
)

var svgPalette = []string{"#00ff00", "#00bfff", "#ff6b6b", "#ffd166", "#c792ea", "#f78c6c"}

// WriteSVG renders the recorded columns of a run as polylines over time.
func WriteSVG(w io.Writer, result *sim.Result, width, height int) error {
	if len(result.Times) < 2 {
		return fmt.Errorf("storage: not enough samples to plot")
	}

	minT, maxT := result.Times[0], result.Times[len(result.Times)-1]
	minV, maxV := result.Values[0][0], result.Values[0][0]
	for _, row := range result.Values {
		for _, v := range row {
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}
	rangeT := maxT - minT
	rangeV := maxV - minV
	if rangeT == 0 {
		rangeT = 1
	}
	if rangeV == 0 {
		rangeV = 1
	}
	minV -= rangeV * 0.1
	maxV += rangeV * 0.1
	rangeV = maxV - minV

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))

	for j := range result.Columns {
		color := svgPalette[j%len(svgPalette)]
		sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color))
		for i, t := range result.Times {
			x := (t - minT) / rangeT * float64(width)
			y := float64(height) - (result.Values[i][j]-minV)/rangeV*float64(height)
			if i == 0 {
				sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
			} else {
				sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
			}
		}
		sb.WriteString("\"/>\n")
	}

	for j, col := range result.Columns {
		color := svgPalette[j%len(svgPalette)]
		sb.WriteString(fmt.Sprintf(`<text x="8" y="%d" fill="%s" font-family="monospace" font-size="12">%s</text>
`, 16+j*16, color, col))
	}

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
