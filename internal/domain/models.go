package domain

import "time"

// BranchConfig identifies one tenant's point-of-sale database. It is owned by
// the control-plane branch registry and treated as read-only input everywhere
// else.
type BranchConfig struct {
	ID          int64  `json:"id"`
	OwnerUserID int64  `json:"owner_user_id"`
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        string `json:"port"`
	Database    string `json:"database"`
	User        string `json:"user"`
	Password    string `json:"-"`
	KasaNumbers []int  `json:"kasa_numbers"`
	ClosingHour int    `json:"closing_hour"`
}

type BranchSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	KasaNumbers []int  `json:"kasa_numbers"`
	ClosingHour int    `json:"closing_hour"`
}

func (b BranchConfig) Summary() BranchSummary {
	return BranchSummary{
		ID:          b.ID,
		Name:        b.Name,
		KasaNumbers: b.KasaNumbers,
		ClosingHour: b.ClosingHour,
	}
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Actor struct {
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	User        User   `json:"user"`
}

// ProductLedgerEntry is the reconciled view of one product for one business
// day. Remaining is always InitialStock - Sold - Open and may be negative.
type ProductLedgerEntry struct {
	Name          string `json:"name"`
	Group         string `json:"group"`
	InitialStock  int    `json:"initial_stock"`
	Sold          int    `json:"sold"`
	Open          int    `json:"open"`
	Cancelled     int    `json:"cancelled"`
	Remaining     int    `json:"remaining"`
	HasStockEntry bool   `json:"has_stock_entry"`
}

type LiveStockResponse struct {
	Date             string               `json:"date"`
	BranchID         int64                `json:"branch_id"`
	Items            []ProductLedgerEntry `json:"items"`
	HasAnyStockEntry bool                 `json:"has_any_stock_entry"`
}

type StockEntryItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

type StockEntryRequest struct {
	Date  string           `json:"date,omitempty"`
	Items []StockEntryItem `json:"items"`
}

type StockEntryResult struct {
	Date     string `json:"date"`
	BranchID int64  `json:"branch_id"`
	Saved    int    `json:"saved"`
	Skipped  int    `json:"skipped"`
}

type BranchCreateRequest struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        string `json:"port"`
	Database    string `json:"database"`
	User        string `json:"user"`
	Password    string `json:"password"`
	KasaNumbers []int  `json:"kasa_numbers"`
	ClosingHour *int   `json:"closing_hour,omitempty"`
}

type UserCreateRequest struct {
	Email    string                `json:"email"`
	Name     string                `json:"name"`
	Password string                `json:"password"`
	IsAdmin  bool                  `json:"is_admin"`
	Branches []BranchCreateRequest `json:"branches"`
}

type UserCreateResponse struct {
	User     User            `json:"user"`
	Branches []BranchSummary `json:"branches"`
}

type UserDetail struct {
	User     User            `json:"user"`
	Branches []BranchSummary `json:"branches"`
}

type StatusResponse struct {
	OK       bool   `json:"ok"`
	Mode     string `json:"mode"`
	Branches int    `json:"branch_pools"`
	At       string `json:"at"`
}
