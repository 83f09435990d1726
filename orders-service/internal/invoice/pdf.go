package invoice

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-pdf/fpdf"
)

var ErrRender = errors.New("invoice rendering failed")

type Renderer struct {
	// Compress deflates page streams. Tests turn it off to search the output.
	Compress bool
}

func NewRenderer() *Renderer {
	return &Renderer{Compress: true}
}

// Render writes doc as a PDF into memory. Output is deterministic for a given
// document: creation dates come from the order, not the clock.
func (r *Renderer) Render(doc *Document) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(Margin, Margin, Margin)
	pdf.SetAutoPageBreak(false, Margin)
	pdf.SetCompression(r.Compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(doc.CreatedAt)
	pdf.SetModificationDate(doc.CreatedAt)
	pdf.SetTitle(doc.Title+" "+doc.OrderID, true)
	pdf.SetAuthor(StoreName, true)

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, page := range doc.Pages {
		pdf.AddPage()
		for _, t := range page.Texts {
			style := ""
			if t.Bold {
				style = "B"
			}
			pdf.SetFont(fontFamily, style, t.Size)
			pdf.SetXY(t.X, t.Y)

			w := t.Width
			if w == 0 {
				// unbounded column text, as wide as the string itself
				w = pdf.GetStringWidth(tr(t.Value)) + 2*pdf.GetCellMargin()
			}
			pdf.CellFormat(w, lineHeight(t.Size), tr(t.Value), "", 0, alignStr(t.Align), false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.Bytes(), nil
}

func alignStr(a Align) string {
	switch a {
	case AlignCenter:
		return "CM"
	case AlignRight:
		return "RM"
	default:
		return "LM"
	}
}
