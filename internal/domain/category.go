package domain

type Category struct {
	Slug   string
	Name   string
	NameMk string
	Icon   string
	Count  int // businesses in the category
}
