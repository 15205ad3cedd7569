package domain

// Order is consumed, not owned: the dispatch engine reads pickup/delivery
// coordinates and links assignments to it, nothing else.
type Order struct {
	ID           string
	BranchName   string
	Pickup       Coordinates
	CustomerID   string
	CustomerName string
	Delivery     Coordinates
}
