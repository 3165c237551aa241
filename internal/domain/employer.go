package domain

type Employer struct {
	ID     int64
	Name   string
	Domain string
}
