package store

import "rallysphere/internal/models"

type CreateItemForm struct {
	Name        string  `json:"name" validate:"required,min=2,max=120"`
	Description string  `json:"description" validate:"max=2000"`
	Price       float64 `json:"price" validate:"gt=0"`
	Currency    string  `json:"currency" validate:"omitempty,len=3,alpha"`
	Stock       int     `json:"stock" validate:"min=0"`
	ImageURL    string  `json:"image_url" validate:"omitempty,url"`
}

type PlaceOrderForm struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=100"`
}

type UpdateStatusForm struct {
	Status models.OrderStatus `json:"status" validate:"required"`
}
