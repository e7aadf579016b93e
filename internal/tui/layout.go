package tui

// geometry is the screen split: input row, two bordered panels, status bar.
type geometry struct {
	listW, previewW, panelH int
}

func (b browser) geometry() geometry {
	g := geometry{listW: 40, previewW: 60, panelH: 20}
	if b.width > 0 {
		// 2/5 list, 3/5 preview, each less its border and padding
		g.listW = max(b.width*2/5-4, 20)
		g.previewW = max(b.width*3/5-4, 20)
	}
	if b.height > 0 {
		g.panelH = max(b.height-6, 5)
	}
	return g
}

func (g geometry) visibleRows() int {
	return max(g.panelH/rowsPerHit, 1)
}

type region int

const (
	regionNone region = iota
	regionList
	regionPreview
)

// hitTest maps a terminal cell to a panel and, for the list, the visible
// row index counted from the top of the panel.
func (g geometry) hitTest(x, y int) (region, int) {
	const top = 2 // input row, then the panel's top border
	if y < top || y >= top+g.panelH {
		return regionNone, -1
	}
	switch {
	case x >= 1 && x <= g.listW:
		return regionList, (y - top) / rowsPerHit
	case x > g.listW+2:
		return regionPreview, -1
	}
	return regionNone, -1
}
