package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/soyeahso/consultant/internal/domain"
	"github.com/soyeahso/consultant/internal/render"
)

// writeBlocks prints parsed assistant content for a terminal. Truncatable
// paragraphs are collapsed unless expand is set.
func writeBlocks(w io.Writer, blocks []domain.Block, expand bool) {
	for i, b := range blocks {
		if i > 0 {
			fmt.Fprintln(w)
		}
		switch b.Kind {
		case domain.BlockHeading:
			fmt.Fprintf(w, "%s %s\n", strings.Repeat("#", max(b.Level, 1)), b.Text)
		case domain.BlockBulletList:
			for _, item := range b.Items {
				fmt.Fprintf(w, "  • %s\n", item)
			}
		case domain.BlockNumberedList:
			for n, item := range b.Items {
				fmt.Fprintf(w, "  %d. %s\n", n+1, item)
			}
		case domain.BlockTruncatable:
			text := b.Text
			if !expand && !b.Expanded {
				var cut bool
				if text, cut = render.Collapse(text); cut {
					text += " [--expand for more]"
				}
			}
			fmt.Fprintln(w, text)
		case domain.BlockProductCard:
			writeCard(w, b.Card)
		default:
			fmt.Fprintln(w, b.Text)
		}
	}
}

func writeCard(w io.Writer, c *domain.ProductCard) {
	if c == nil {
		return
	}
	name := c.Name
	if name == "" {
		name = "(product)"
	}
	if c.Price != "" {
		fmt.Fprintf(w, "  ┌ %s · %s\n", name, c.Price)
	} else {
		fmt.Fprintf(w, "  ┌ %s\n", name)
	}
	if c.Reason != "" {
		fmt.Fprintf(w, "  │ %s\n", c.Reason)
	}
	if c.ImageURL != "" {
		fmt.Fprintf(w, "  │ %s\n", c.ImageURL)
	}
	if c.ID != "" {
		fmt.Fprintf(w, "  └ id: %s\n", c.ID)
	} else {
		fmt.Fprintln(w, "  └")
	}
}
