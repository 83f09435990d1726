// Package invoice turns an order into a fixed layout document and renders it
// as PDF. Layout is computed first into plain positioned text so it can be
// inspected without parsing PDF output.
package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/mood_store/orders-service/internal/domain"
	"github.com/fjod/mood_store/pkg/money"
	"github.com/go-pdf/fpdf"
)

const (
	StoreName      = "Mood Store"
	FallbackName   = "Customer"
	DescriptionTag = "Product"
	FooterText     = "Thank you for shopping with Mood Store!"
	DateLayout     = "2006-01-02"
)

// Page geometry in points, US Letter.
const (
	PageWidth    = 612.0
	PageHeight   = 792.0
	Margin       = 50.0
	ContentWidth = PageWidth - 2*Margin
)

// Column x offsets of the item table. They are fixed and never derived from
// content width.
const (
	ItemX        = 50.0
	DescriptionX = 150.0
	QuantityX    = 350.0
	PriceX       = 400.0
	TotalX       = 450.0

	itemWidth  = 90.0
	rowSpacing = 15.0
)

const (
	titleSize   = 25.0
	headingSize = 14.0
	bodySize    = 10.0
	totalSize   = 12.0
	fontFamily  = "Helvetica"
)

type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// Text is one string placed on a page. Y is the top of the line box.
type Text struct {
	X, Y  float64
	Width float64
	Size  float64
	Bold  bool
	Align Align
	Value string
}

type Page struct {
	Texts []Text
}

type Document struct {
	Title     string
	OrderID   string
	CreatedAt time.Time
	Pages     []Page
}

// Find returns the texts with the given value across all pages.
func (d *Document) Find(value string) []Text {
	var out []Text
	for _, p := range d.Pages {
		for _, t := range p.Texts {
			if t.Value == value {
				out = append(out, t)
			}
		}
	}
	return out
}

// Input is everything the layout needs, fetched before rendering starts.
type Input struct {
	Order   *domain.Order
	Lines   []domain.OrderLine
	Profile domain.CustomerProfile
}

func lineHeight(size float64) float64 {
	return size * 1.2
}

// layouter keeps the write position. Item names are wrapped with the
// Helvetica metrics of the renderer so row heights match the PDF.
type layouter struct {
	doc     *Document
	y       float64
	measure *fpdf.Fpdf
	tr      func(string) string
}

// Build lays out the invoice. The total printed is always Order.Total, even
// when it differs from the sum of the lines.
func Build(in Input) (*Document, error) {
	if in.Order == nil {
		return nil, fmt.Errorf("build invoice: order is required")
	}

	measure := fpdf.New("P", "pt", "Letter", "")
	measure.SetFont(fontFamily, "", bodySize)

	l := &layouter{
		doc: &Document{
			Title:     StoreName + " Invoice",
			OrderID:   in.Order.ID.String(),
			CreatedAt: in.Order.CreatedAt,
		},
		measure: measure,
		tr:      measure.UnicodeTranslatorFromDescriptor(""),
	}
	l.newPage()

	l.titleBlock(in.Order)
	l.customerBlock(in.Profile)
	l.itemTable(in.Lines)
	l.totalLine(in.Order)
	l.footer()

	if err := measure.Error(); err != nil {
		return nil, fmt.Errorf("measure invoice text: %w", err)
	}
	return l.doc, nil
}

func (l *layouter) newPage() {
	l.doc.Pages = append(l.doc.Pages, Page{})
	l.y = Margin
}

func (l *layouter) add(t Text) {
	p := &l.doc.Pages[len(l.doc.Pages)-1]
	p.Texts = append(p.Texts, t)
}

// line writes a full width line at the current position and advances.
func (l *layouter) line(value string, size float64, bold bool, align Align) {
	l.add(Text{X: Margin, Y: l.y, Width: ContentWidth, Size: size, Bold: bold, Align: align, Value: value})
	l.y += lineHeight(size)
}

func (l *layouter) moveDown(lines int, size float64) {
	l.y += float64(lines) * lineHeight(size)
}

// fits reports whether h more points fit above the bottom margin.
func (l *layouter) fits(h float64) bool {
	return l.y+h <= PageHeight-Margin
}

func (l *layouter) titleBlock(o *domain.Order) {
	l.line(l.doc.Title, titleSize, true, AlignCenter)
	l.moveDown(1, bodySize)
	l.line("Invoice Number: "+o.ID.String(), bodySize, false, AlignRight)
	l.line("Date: "+o.CreatedAt.UTC().Format(DateLayout), bodySize, false, AlignRight)
	l.moveDown(2, bodySize)
}

func (l *layouter) customerBlock(p domain.CustomerProfile) {
	name := p.FullName
	if name == "" {
		name = FallbackName
	}
	l.line("Customer Information:", headingSize, true, AlignLeft)
	l.line("Name: "+name, bodySize, false, AlignLeft)
	l.line("Email: "+p.Email, bodySize, false, AlignLeft)
	l.moveDown(2, bodySize)
}

func (l *layouter) tableHeader() {
	for _, c := range []struct {
		x     float64
		label string
	}{
		{ItemX, "Item"},
		{DescriptionX, "Description"},
		{QuantityX, "Qty"},
		{PriceX, "Price"},
		{TotalX, "Total"},
	} {
		l.add(Text{X: c.x, Y: l.y, Size: bodySize, Bold: true, Value: c.label})
	}
	l.moveDown(2, bodySize)
}

func (l *layouter) itemTable(lines []domain.OrderLine) {
	l.line("Order Items:", headingSize, true, AlignLeft)
	l.moveDown(1, bodySize)
	l.tableHeader()

	for _, it := range lines {
		name := l.wrap(it.ProductName)
		h := float64(len(name)) * lineHeight(bodySize)
		if !l.fits(h) {
			l.newPage()
			l.tableHeader()
		}

		for i, part := range name {
			l.add(Text{X: ItemX, Y: l.y + float64(i)*lineHeight(bodySize), Width: itemWidth, Size: bodySize, Value: part})
		}
		l.add(Text{X: DescriptionX, Y: l.y, Size: bodySize, Value: DescriptionTag})
		l.add(Text{X: QuantityX, Y: l.y, Size: bodySize, Value: strconv.Itoa(it.Quantity)})
		l.add(Text{X: PriceX, Y: l.y, Size: bodySize, Value: money.Format(it.UnitPrice)})
		l.add(Text{X: TotalX, Y: l.y, Size: bodySize, Value: money.Format(it.Total())})
		l.y += h + rowSpacing
	}
}

func (l *layouter) totalLine(o *domain.Order) {
	if !l.fits(lineHeight(totalSize)) {
		l.newPage()
	}
	l.add(Text{X: PriceX, Y: l.y, Size: totalSize, Bold: true, Value: "Total:"})
	l.add(Text{X: TotalX, Y: l.y, Size: totalSize, Bold: true, Value: money.Format(o.Total)})
	l.y += lineHeight(totalSize)
}

func (l *layouter) footer() {
	if !l.fits(5 * lineHeight(bodySize)) {
		l.newPage()
	} else {
		l.moveDown(4, bodySize)
	}
	l.line(FooterText, bodySize, false, AlignCenter)
}

// wrap splits an item name into lines no wider than the item column.
// Words longer than the column are broken between runes.
func (l *layouter) wrap(name string) []string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	cur := ""
	for _, w := range words {
		candidate := w
		if cur != "" {
			candidate = cur + " " + w
		}
		if l.width(candidate) <= itemWidth {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		cur = ""
		for _, r := range w {
			if cur != "" && l.width(cur+string(r)) > itemWidth {
				lines = append(lines, cur)
				cur = ""
			}
			cur += string(r)
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func (l *layouter) width(s string) float64 {
	return l.measure.GetStringWidth(l.tr(s))
}
