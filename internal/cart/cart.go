package cart

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrLineNotFound    = errors.New("product is not in the cart")
)

// Line is one product in a session cart. UnitPrice is the price seen when the
// product was first added and is what the shopper will be charged.
type Line struct {
	ProductID  uuid.UUID       `json:"product_id"`
	Name       string          `json:"name"`
	VendorID   uuid.UUID       `json:"vendor_id"`
	VendorName string          `json:"vendor_name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	ImageURL   *string         `json:"image_url,omitempty"`
}

// Subtotal is unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is an ordered set of lines keyed by product. Every mutating method
// returns a new Cart and leaves the receiver untouched.
type Cart struct {
	Lines []Line `json:"lines"`
}

func (c Cart) clone() Cart {
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}

func (c Cart) indexOf(productID uuid.UUID) int {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// Line returns the line for productID.
func (c Cart) Line(productID uuid.UUID) (Line, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Lines[i], true
	}
	return Line{}, false
}

// Add appends line or, when the product is already present, increases its
// quantity while keeping the original price snapshot and position.
func (c Cart) Add(line Line) (Cart, error) {
	if line.Quantity < 1 {
		return c, ErrInvalidQuantity
	}
	next := c.clone()
	if i := next.indexOf(line.ProductID); i >= 0 {
		next.Lines[i].Quantity += line.Quantity
		return next, nil
	}
	next.Lines = append(next.Lines, line)
	return next, nil
}

// SetQuantity replaces the quantity of an existing line. Zero removes it.
func (c Cart) SetQuantity(productID uuid.UUID, quantity int) (Cart, error) {
	if quantity < 0 {
		return c, ErrInvalidQuantity
	}
	i := c.indexOf(productID)
	if i < 0 {
		return c, ErrLineNotFound
	}
	if quantity == 0 {
		return c.Remove(productID), nil
	}
	next := c.clone()
	next.Lines[i].Quantity = quantity
	return next, nil
}

// Decrement removes one unit; the last unit removes the line.
func (c Cart) Decrement(productID uuid.UUID) (Cart, error) {
	i := c.indexOf(productID)
	if i < 0 {
		return c, ErrLineNotFound
	}
	return c.SetQuantity(productID, c.Lines[i].Quantity-1)
}

// Remove drops the line for productID if present.
func (c Cart) Remove(productID uuid.UUID) Cart {
	next := Cart{Lines: make([]Line, 0, len(c.Lines))}
	for _, line := range c.Lines {
		if line.ProductID != productID {
			next.Lines = append(next.Lines, line)
		}
	}
	return next
}

// Clear returns an empty cart.
func (c Cart) Clear() Cart {
	return Cart{Lines: []Line{}}
}

// Count is the number of units across all lines.
func (c Cart) Count() int {
	total := 0
	for _, line := range c.Lines {
		total += line.Quantity
	}
	return total
}

// Total sums every line subtotal.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}
