package invoice

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fjod/mood_store/orders-service/internal/domain"
	"github.com/fjod/mood_store/pkg/money"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(total string, lines ...domain.OrderLine) *domain.Order {
	id := uuid.MustParse("3f2504e0-4f89-11d3-9a0c-0305e82c3301")
	for i := range lines {
		lines[i].OrderID = id
	}
	return &domain.Order{
		ID:        id,
		UserID:    "user-1",
		Total:     money.MustParse(total),
		Status:    domain.OrderStatusPending,
		Items:     lines,
		CreatedAt: time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC),
	}
}

func line(name string, qty int, price string) domain.OrderLine {
	return domain.OrderLine{
		ID:          uuid.New(),
		ProductID:   strings.ToLower(name),
		ProductName: name,
		Quantity:    qty,
		UnitPrice:   money.MustParse(price),
	}
}

func build(t *testing.T, o *domain.Order, p domain.CustomerProfile) *Document {
	t.Helper()
	doc, err := Build(Input{Order: o, Lines: o.Items, Profile: p})
	require.NoError(t, err)
	return doc
}

func TestBuild_TotalComesFromOrder(t *testing.T) {
	o := testOrder("19.98", line("X", 2, "9.99"))
	doc := build(t, o, domain.CustomerProfile{FullName: "Ada", Email: "ada@example.com"})

	totals := doc.Find("$19.98")
	require.NotEmpty(t, totals)
	last := totals[len(totals)-1]
	assert.Equal(t, TotalX, last.X)
	assert.True(t, last.Bold)
}

func TestBuild_TotalNotRecomputed(t *testing.T) {
	// line math says 19.98, the stored total carries express shipping
	o := testOrder("29.97", line("X", 2, "9.99"))
	doc := build(t, o, domain.CustomerProfile{})

	label := doc.Find("Total:")
	require.Len(t, label, 1)

	var total Text
	for _, tx := range doc.Pages[len(doc.Pages)-1].Texts {
		if tx.X == TotalX && tx.Y == label[0].Y {
			total = tx
		}
	}
	assert.Equal(t, "$29.97", total.Value)
	// the line total still shows the line math
	assert.Len(t, doc.Find("$19.98"), 1)
}

func TestBuild_CustomerFallbackName(t *testing.T) {
	doc := build(t, testOrder("1.00", line("X", 1, "1.00")), domain.CustomerProfile{Email: "a@b.c"})
	assert.Len(t, doc.Find("Name: Customer"), 1)
	assert.Len(t, doc.Find("Email: a@b.c"), 1)

	doc = build(t, testOrder("1.00", line("X", 1, "1.00")), domain.CustomerProfile{FullName: "Ada Lovelace"})
	assert.Len(t, doc.Find("Name: Ada Lovelace"), 1)
	assert.Empty(t, doc.Find("Name: Customer"))
}

func TestBuild_TitleBlock(t *testing.T) {
	o := testOrder("1.00", line("X", 1, "1.00"))
	doc := build(t, o, domain.CustomerProfile{})

	title := doc.Find("Mood Store Invoice")
	require.Len(t, title, 1)
	assert.Equal(t, AlignCenter, title[0].Align)

	num := doc.Find("Invoice Number: " + o.ID.String())
	require.Len(t, num, 1)
	assert.Equal(t, AlignRight, num[0].Align)

	date := doc.Find("Date: 2024-03-09")
	require.Len(t, date, 1)
	assert.Equal(t, AlignRight, date[0].Align)

	footer := doc.Find(FooterText)
	require.Len(t, footer, 1)
	assert.Equal(t, AlignCenter, footer[0].Align)
}

func TestBuild_FixedColumns(t *testing.T) {
	o := testOrder("21.48", line("Calm Candle", 1, "12.50"), line("Tea", 3, "2.99"))
	doc := build(t, o, domain.CustomerProfile{})

	header := map[string]float64{
		"Item": ItemX, "Description": DescriptionX, "Qty": QuantityX, "Price": PriceX,
	}
	for label, x := range header {
		found := doc.Find(label)
		require.NotEmpty(t, found, label)
		assert.Equal(t, x, found[0].X, label)
	}

	row := doc.Find("Tea")
	require.Len(t, row, 1)
	y := row[0].Y
	want := map[float64]string{
		ItemX:        "Tea",
		DescriptionX: DescriptionTag,
		QuantityX:    "3",
		PriceX:       "$2.99",
		TotalX:       "$8.97",
	}
	got := map[float64]string{}
	for _, tx := range doc.Pages[0].Texts {
		if tx.Y == y {
			got[tx.X] = tx.Value
		}
	}
	assert.Equal(t, want, got)
	assert.Len(t, doc.Find(DescriptionTag), 2)
}

func TestBuild_WrapsLongNames(t *testing.T) {
	o := testOrder("5.00", line("Extraordinarily Relaxing Lavender Bath Bomb", 1, "5.00"))
	doc := build(t, o, domain.CustomerProfile{})

	var parts []Text
	for _, tx := range doc.Pages[0].Texts {
		if tx.X == ItemX && tx.Width == itemWidth {
			parts = append(parts, tx)
		}
	}
	require.Greater(t, len(parts), 1)
	var joined []string
	for i, p := range parts {
		joined = append(joined, p.Value)
		if i > 0 {
			assert.Greater(t, p.Y, parts[i-1].Y)
		}
	}
	assert.Equal(t, "Extraordinarily Relaxing Lavender Bath Bomb", strings.Join(joined, " "))
}

func TestBuild_PaginatesAndRepeatsHeader(t *testing.T) {
	var lines []domain.OrderLine
	for i := 0; i < 60; i++ {
		lines = append(lines, line(fmt.Sprintf("Item%02d", i), 1, "1.00"))
	}
	o := testOrder("60.00", lines...)
	doc := build(t, o, domain.CustomerProfile{})

	require.Greater(t, len(doc.Pages), 1)
	assert.Len(t, doc.Find("Description"), len(doc.Pages))
	for _, p := range doc.Pages {
		for _, tx := range p.Texts {
			assert.LessOrEqual(t, tx.Y+lineHeight(tx.Size), PageHeight-Margin+0.001, tx.Value)
		}
	}

	last := doc.Pages[len(doc.Pages)-1]
	var values []string
	for _, tx := range last.Texts {
		values = append(values, tx.Value)
	}
	assert.Contains(t, values, "$60.00")
	assert.Contains(t, values, FooterText)
}

func TestBuild_NoLines(t *testing.T) {
	doc := build(t, testOrder("0.00"), domain.CustomerProfile{})
	assert.Len(t, doc.Find("$0.00"), 1)
	assert.Len(t, doc.Pages, 1)
}

func TestBuild_RequiresOrder(t *testing.T) {
	_, err := Build(Input{})
	assert.Error(t, err)
}

func TestRender_PDF(t *testing.T) {
	o := testOrder("19.98", line("X", 2, "9.99"))
	doc := build(t, o, domain.CustomerProfile{FullName: "Zoë", Email: "zoe@example.com"})

	r := &Renderer{Compress: false}
	out, err := r.Render(doc)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Contains(t, string(out), "(Mood Store Invoice)")
	assert.Contains(t, string(out), "($19.98)")
	assert.Contains(t, string(out), "(Product)")

	again, err := r.Render(doc)
	require.NoError(t, err)
	assert.Equal(t, out, again, "rendering must be deterministic")
}

func TestRender_Compressed(t *testing.T) {
	doc := build(t, testOrder("1.00", line("X", 1, "1.00")), domain.CustomerProfile{})
	out, err := NewRenderer().Render(doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.NotContains(t, string(out), "(Mood Store Invoice)")
}
