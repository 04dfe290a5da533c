package domain

import "time"

type Review struct {
	ID         int64
	BusinessID int64
	AuthorName string
	Rating     int // 1..5
	Comment    string
	CreatedAt  time.Time
}
