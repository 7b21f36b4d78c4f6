package helpers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dukalink-backend/internal/cart"
	"github.com/angelmondragon/dukalink-backend/pkg/db/models"
)

// VendorGroup is one vendor's share of a cart. It is recomputed on every
// checkout and never stored.
type VendorGroup struct {
	VendorID    uuid.UUID
	VendorName  string
	PayoutPhone string
	Lines       []cart.Line
	Subtotal    decimal.Decimal
}

// ItemCount is the number of units in the group.
func (g VendorGroup) ItemCount() int {
	n := 0
	for _, line := range g.Lines {
		n += line.Quantity
	}
	return n
}

// GroupLinesByVendor groups lines by vendor in the order each vendor first
// appears. Subtotals use the price captured on each line. Lines whose vendor
// is missing from vendors are skipped.
func GroupLinesByVendor(lines []cart.Line, vendors map[uuid.UUID]models.Business) []VendorGroup {
	groups := make([]VendorGroup, 0, len(vendors))
	index := make(map[uuid.UUID]int, len(vendors))
	for _, line := range lines {
		vendor, ok := vendors[line.VendorID]
		if !ok {
			continue
		}
		i, seen := index[line.VendorID]
		if !seen {
			i = len(groups)
			index[line.VendorID] = i
			groups = append(groups, VendorGroup{
				VendorID:    vendor.ID,
				VendorName:  vendor.Name,
				PayoutPhone: vendor.PayoutPhone,
				Subtotal:    decimal.Zero,
			})
		}
		groups[i].Lines = append(groups[i].Lines, line)
		groups[i].Subtotal = groups[i].Subtotal.Add(line.Subtotal())
	}
	return groups
}

// Total sums the subtotals of groups.
func Total(groups []VendorGroup) decimal.Decimal {
	total := decimal.Zero
	for _, group := range groups {
		total = total.Add(group.Subtotal)
	}
	return total
}
