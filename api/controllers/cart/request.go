package cart

import "github.com/google/uuid"

type addItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"omitempty,min=1,max=999"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=999"`
}
