package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"

	"github.com/tripmate-ai/tripmate/pkg/models"
	"github.com/tripmate-ai/tripmate/pkg/segment"
)

var emphasisToMarkdown = strings.NewReplacer(
	segment.EmphasisOpen, "**",
	segment.EmphasisClose, "**",
)

// formatMarkdown renders an itinerary as markdown. Itineraries without days
// fall back to their raw text.
func formatMarkdown(it models.Itinerary) string {
	if len(it.Days) == 0 {
		if it.RawText == "" {
			return "_The assistant returned nothing to show._\n"
		}
		return it.RawText + "\n"
	}

	var b strings.Builder
	b.WriteString("# Itinerary\n")
	for _, d := range it.Days {
		fmt.Fprintf(&b, "\n## Day %d\n\n", d.Day)
		for _, slot := range []struct{ label, text string }{
			{"Morning", d.Morning},
			{"Afternoon", d.Afternoon},
			{"Evening", d.Evening},
			{"Estimated cost", d.EstimatedCost},
		} {
			if slot.text != "" {
				fmt.Fprintf(&b, "- **%s:** %s\n", slot.label, emphasisToMarkdown.Replace(slot.text))
			}
		}
		if d.Slotted() && len(d.Notes) > 0 {
			b.WriteString("\n")
		}
		for _, n := range d.Notes {
			fmt.Fprintf(&b, "- %s\n", emphasisToMarkdown.Replace(n))
		}
	}
	return b.String()
}

func render(w io.Writer, it models.Itinerary, plain bool) error {
	md := formatMarkdown(it)
	if plain {
		_, err := io.WriteString(w, md)
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return fmt.Errorf("init renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render itinerary: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
