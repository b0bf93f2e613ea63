package api

type checkInRequest struct {
	Date      string   `json:"date" binding:"omitempty,datetime=2006-01-02"`
	Status    string   `json:"status" binding:"required,max=16"`
	Excuse    string   `json:"excuse" binding:"max=500"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
	PhotoURL  string   `json:"photoUrl" binding:"omitempty,url"`
}

type amendRequest struct {
	Status    string   `json:"status" binding:"required,max=16"`
	Excuse    string   `json:"excuse" binding:"max=500"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
	PhotoURL  string   `json:"photoUrl" binding:"omitempty,url"`
}

type decideRequest struct {
	Status string `json:"status" binding:"required,max=16"`
	Notes  string `json:"notes" binding:"max=2000"`
}

type proofRequest struct {
	Data string `json:"data" binding:"required"`
	Date string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

type weekInfo struct {
	Week      string   `json:"week"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	Dates     []string `json:"dates"`
}
