package clubs

type CreateClubForm struct {
	Name              string  `json:"name" validate:"required,min=3,max=80"`
	Description       string  `json:"description" validate:"max=2000"`
	IsPublic          bool    `json:"is_public"`
	SubscriptionPrice float64 `json:"subscription_price" validate:"min=0"`
	Currency          string  `json:"currency" validate:"omitempty,len=3,alpha"`
	ImageURL          string  `json:"image_url" validate:"omitempty,url"`
}

type AddAdminForm struct {
	UserID string `json:"user_id" validate:"required"`
}
