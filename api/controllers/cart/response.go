package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartsvc "github.com/angelmondragon/dukalink-backend/internal/cart"
)

type cartResponse struct {
	Lines     []lineResponse  `json:"lines"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

type lineResponse struct {
	ProductID  uuid.UUID       `json:"product_id"`
	Name       string          `json:"name"`
	VendorID   uuid.UUID       `json:"vendor_id"`
	VendorName string          `json:"vendor_name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int             `json:"quantity"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	ImageURL   *string         `json:"image_url,omitempty"`
}

func newCartResponse(c cartsvc.Cart) cartResponse {
	lines := make([]lineResponse, 0, len(c.Lines))
	for _, line := range c.Lines {
		lines = append(lines, lineResponse{
			ProductID:  line.ProductID,
			Name:       line.Name,
			VendorID:   line.VendorID,
			VendorName: line.VendorName,
			UnitPrice:  line.UnitPrice,
			Quantity:   line.Quantity,
			Subtotal:   line.Subtotal(),
			ImageURL:   line.ImageURL,
		})
	}
	return cartResponse{
		Lines:     lines,
		ItemCount: c.Count(),
		Total:     c.Total(),
	}
}
