package plot

import "github.com/foxseedlab/genkaipoint/internal/genkai"

// Renderer draws cumulative presence series as an image.
type Renderer interface {
	Render(series []genkai.Series) (Image, error)
}

type Image struct {
	Filename    string
	ContentType string
	Body        []byte
}
