package domain

// BlockKind discriminates the Block union.
type BlockKind string

const (
	BlockParagraph    BlockKind = "paragraph"
	BlockBulletList   BlockKind = "bullet_list"
	BlockNumberedList BlockKind = "numbered_list"
	BlockHeading      BlockKind = "heading"
	BlockTruncatable  BlockKind = "truncatable_paragraph"
	BlockProductCard  BlockKind = "product_card"
)

// Block is one renderable unit of assistant text. Which fields are set
// depends on Kind:
//   - paragraph, truncatable_paragraph: Text (Expanded for truncatable)
//   - bullet_list, numbered_list: Items
//   - heading: Level (1-3) and Text
//   - product_card: Card
type Block struct {
	Kind     BlockKind    `json:"kind"`
	Text     string       `json:"text,omitempty"`
	Items    []string     `json:"items,omitempty"`
	Level    int          `json:"level,omitempty"`
	Expanded bool         `json:"expanded,omitempty"`
	Card     *ProductCard `json:"card,omitempty"`
}

// ProductCard is a structured product record embedded in assistant text.
// Every field is optional.
type ProductCard struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Price    string `json:"price,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
