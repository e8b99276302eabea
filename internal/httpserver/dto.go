package httpserver

import (
	"time"

	"github.com/dummy-library/server/internal/library"
	"github.com/dummy-library/server/internal/money"
	"github.com/dummy-library/server/internal/storage"
)

// bookDTO is the public catalog shape. Stock price and seeded copies are
// internal and omitted.
type bookDTO struct {
	ID              string `json:"id"`
	ISBN            string `json:"isbn"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Genre           string `json:"genre"`
	SellCents       int64  `json:"sellCents"`
	SellFormatted   string `json:"sellFormatted"`
	BorrowCents     int64  `json:"borrowCents"`
	BorrowFormatted string `json:"borrowFormatted"`
	AvailableCopies int    `json:"availableCopies"`
}

func toBookDTO(b storage.Book) bookDTO {
	return bookDTO{
		ID:              b.ID,
		ISBN:            b.ISBN,
		Title:           b.Title,
		Author:          b.Author,
		Genre:           b.Genre,
		SellCents:       b.SellCents,
		SellFormatted:   money.Format(b.SellCents),
		BorrowCents:     b.BorrowCents,
		BorrowFormatted: money.Format(b.BorrowCents),
		AvailableCopies: b.AvailableCopies,
	}
}

type borrowDTO struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	BorrowedAt time.Time  `json:"borrowedAt"`
	DueAt      time.Time  `json:"dueAt"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
	Book       bookDTO    `json:"book"`
	IsExisting bool       `json:"isExisting"`
}

func toBorrowDTO(result library.BorrowResult) borrowDTO {
	return borrowDTO{
		ID:         result.Borrow.ID,
		Status:     string(result.Borrow.Status),
		BorrowedAt: result.Borrow.BorrowedAt,
		DueAt:      result.Borrow.DueAt,
		ReturnedAt: result.Borrow.ReturnedAt,
		Book:       toBookDTO(result.Book),
		IsExisting: result.IsExisting,
	}
}

type purchaseDTO struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	PriceCents     int64      `json:"priceCents"`
	PriceFormatted string     `json:"priceFormatted"`
	PurchasedAt    time.Time  `json:"purchasedAt"`
	CanceledAt     *time.Time `json:"canceledAt,omitempty"`
	Book           bookDTO    `json:"book"`
	IsExisting     bool       `json:"isExisting"`
}

func toPurchaseDTO(result library.PurchaseResult) purchaseDTO {
	return purchaseDTO{
		ID:             result.Purchase.ID,
		Status:         string(result.Purchase.Status),
		PriceCents:     result.Purchase.PriceCents,
		PriceFormatted: money.Format(result.Purchase.PriceCents),
		PurchasedAt:    result.Purchase.PurchasedAt,
		CanceledAt:     result.Purchase.CanceledAt,
		Book:           toBookDTO(result.Book),
		IsExisting:     result.IsExisting,
	}
}

type walletDTO struct {
	ID               string `json:"id"`
	BalanceCents     int64  `json:"balanceCents"`
	BalanceFormatted string `json:"balanceFormatted"`
	MilestoneReached bool   `json:"milestoneReached"`
}

type movementDTO struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	AmountCents     int64     `json:"amountCents"`
	AmountFormatted string    `json:"amountFormatted"`
	Reason          string    `json:"reason"`
	RelatedEntity   *string   `json:"relatedEntity,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toMovementDTO(m storage.Movement) movementDTO {
	return movementDTO{
		ID:              m.ID,
		Type:            string(m.Type),
		AmountCents:     m.AmountCents,
		AmountFormatted: money.Format(m.AmountCents),
		Reason:          m.Reason,
		RelatedEntity:   m.RelatedEntity,
		CreatedAt:       m.CreatedAt,
	}
}

// paginationDTO is the envelope's page descriptor.
type paginationDTO struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

type pageEnvelope struct {
	Data       interface{}   `json:"data"`
	Pagination paginationDTO `json:"pagination"`
}

func newPageEnvelope(data interface{}, total int, page storage.Pagination) pageEnvelope {
	totalPages := 0
	if total > 0 {
		totalPages = (total + page.PageSize - 1) / page.PageSize
	}
	return pageEnvelope{
		Data: data,
		Pagination: paginationDTO{
			Total:      total,
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalPages: totalPages,
		},
	}
}
