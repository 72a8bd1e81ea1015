package shotstack

import "clipstack/internal/ports"

const defaultClipLength = 5.0

type Edit struct {
	Timeline Timeline `json:"timeline"`
	Output   Output   `json:"output"`
}

type Timeline struct {
	Background string  `json:"background,omitempty"`
	Tracks     []Track `json:"tracks"`
}

// Track order is layering order: the first track renders on top.
type Track struct {
	Clips []Clip `json:"clips"`
}

type Clip struct {
	Asset      Asset       `json:"asset"`
	Start      float64     `json:"start"`
	Length     float64     `json:"length"`
	Position   string      `json:"position,omitempty"`
	Offset     *Offset     `json:"offset,omitempty"`
	Transition *Transition `json:"transition,omitempty"`
}

type Asset struct {
	Type  string `json:"type"`
	Src   string `json:"src,omitempty"`
	Text  string `json:"text,omitempty"`
	Style string `json:"style,omitempty"`
	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`
}

type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Transition struct {
	In  string `json:"in,omitempty"`
	Out string `json:"out,omitempty"`
}

type Output struct {
	Format      string  `json:"format"`
	Resolution  string  `json:"resolution"`
	AspectRatio string  `json:"aspectRatio"`
	Poster      *Poster `json:"poster,omitempty"`
}

type Poster struct {
	Capture float64 `json:"capture"`
}

// BuildEdit lays the sources back to back on one video track. Each clip
// starts where the previous one ended and lasts its own duration.
func BuildEdit(sources []ports.RenderSource, deco ports.Decoration) Edit {
	var transition *Transition
	if deco.Transition != "" {
		transition = &Transition{In: deco.Transition, Out: deco.Transition}
	}

	clips := make([]Clip, 0, len(sources))
	var start float64
	for _, src := range sources {
		length := src.Metadata.Duration()
		if length <= 0 {
			length = defaultClipLength
		}
		clips = append(clips, Clip{
			Asset:      Asset{Type: "video", Src: src.URL},
			Start:      start,
			Length:     length,
			Transition: transition,
		})
		start += length
	}

	var tracks []Track
	if deco.Title != "" {
		tracks = append(tracks, Track{Clips: []Clip{{
			Asset: Asset{
				Type:  "title",
				Text:  deco.Title,
				Style: "minimal",
				Color: "#FFFFFF",
				Size:  "large",
			},
			Start:    0,
			Length:   start,
			Position: "bottom",
			Offset:   &Offset{Y: -0.2},
		}}})
	}
	tracks = append(tracks, Track{Clips: clips})

	var width, height float64
	if len(sources) > 0 {
		width, height = sources[0].Metadata.Width(), sources[0].Metadata.Height()
	}

	return Edit{
		Timeline: Timeline{
			Background: "#000000",
			Tracks:     tracks,
		},
		Output: Output{
			Format:      "mp4",
			Resolution:  Resolution(width, height),
			AspectRatio: AspectRatio(width, height),
			Poster:      &Poster{Capture: 1},
		},
	}
}

// Resolution picks "hd" for 1080p-class sources and "sd" otherwise.
func Resolution(width, height float64) string {
	if width >= 1920 || height >= 1920 {
		return "hd"
	}
	return "sd"
}

func AspectRatio(width, height float64) string {
	switch {
	case width <= 0 || height <= 0:
		return "16:9"
	case width > height:
		return "16:9"
	case height > width:
		return "9:16"
	default:
		return "1:1"
	}
}
