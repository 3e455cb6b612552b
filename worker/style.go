package worker

import (
	"strings"

	"github.com/guseggert/sheetshell/writer"
	"github.com/xuri/excelize/v2"
)

var namedColors = map[string]string{
	"black":   "000000",
	"blue":    "0000FF",
	"brown":   "800000",
	"cyan":    "00FFFF",
	"gray":    "808080",
	"green":   "008000",
	"lime":    "00FF00",
	"magenta": "FF00FF",
	"navy":    "000080",
	"orange":  "FF6600",
	"pink":    "FF00FF",
	"purple":  "800080",
	"red":     "FF0000",
	"silver":  "C0C0C0",
	"white":   "FFFFFF",
	"yellow":  "FFFF00",
}

// color converts a color name or a "#RRGGBB" value into the hex form excelize expects.
func color(c string) string {
	if hex, ok := namedColors[strings.ToLower(c)]; ok {
		return hex
	}
	return strings.TrimPrefix(c, "#")
}

var underlines = map[string]string{
	"true":              "single",
	"single":            "single",
	"double":            "double",
	"single accounting": "singleAccounting",
	"double accounting": "doubleAccounting",
}

var horizontalAlignments = map[string]string{
	"left":          "left",
	"center":        "center",
	"right":         "right",
	"fill":          "fill",
	"justify":       "justify",
	"center_across": "centerContinuous",
	"distributed":   "distributed",
}

var verticalAlignments = map[string]string{
	"top":          "top",
	"vcenter":      "center",
	"middle":       "center",
	"bottom":       "bottom",
	"vjustify":     "justify",
	"vdistributed": "distributed",
}

func newStyle(f *writer.Format) *excelize.Style {
	s := &excelize.Style{}

	if font := f.Font; font != nil {
		s.Font = &excelize.Font{
			Family:    font.Name,
			Size:      font.Size,
			Color:     color(font.Color),
			Bold:      font.Bold,
			Italic:    font.Italic,
			Strike:    font.Strikeout,
			Underline: underlines[strings.ToLower(font.Underline)],
		}
		switch {
		case font.Superscript:
			s.Font.VertAlign = "superscript"
		case font.Subscript:
			s.Font.VertAlign = "subscript"
		}
	}

	if f.NumberFormat != "" {
		numFmt := f.NumberFormat
		s.CustomNumFmt = &numFmt
	}
	if f.Locked != nil || f.Hidden {
		locked := true
		if f.Locked != nil {
			locked = *f.Locked
		}
		s.Protection = &excelize.Protection{Locked: locked, Hidden: f.Hidden}
	}

	align := &excelize.Alignment{
		WrapText:        f.TextWrap,
		TextRotation:    f.Rotation,
		Indent:          f.Indent,
		ShrinkToFit:     f.ShrinkToFit,
		JustifyLastLine: f.JustifyLastText,
	}
	for _, a := range strings.Fields(strings.ToLower(f.Alignment)) {
		if h, ok := horizontalAlignments[a]; ok {
			align.Horizontal = h
		} else if v, ok := verticalAlignments[a]; ok {
			align.Vertical = v
		}
	}
	if *align != (excelize.Alignment{}) {
		s.Alignment = align
	}

	if fill := f.Fill; fill != nil {
		pattern := fill.Pattern
		if pattern == 0 {
			pattern = 1
		}
		c := fill.BackgroundColor
		if c == "" {
			c = fill.Color
		}
		if c == "" {
			c = fill.ForegroundColor
		}
		s.Fill = excelize.Fill{Type: "pattern", Pattern: pattern}
		if c != "" {
			s.Fill.Color = []string{color(c)}
		}
	}

	if b := f.Borders; b != nil {
		sides := []struct {
			name   string
			border *writer.Border
		}{
			{"top", b.Top}, {"left", b.Left}, {"right", b.Right}, {"bottom", b.Bottom},
		}
		for _, side := range sides {
			style, c := b.Style, b.Color
			if side.border != nil {
				if side.border.Style != 0 {
					style = side.border.Style
				}
				if side.border.Color != "" {
					c = side.border.Color
				}
			}
			if style == 0 {
				continue
			}
			s.Border = append(s.Border, excelize.Border{Type: side.name, Style: style, Color: color(c)})
		}
	}
	return s
}
