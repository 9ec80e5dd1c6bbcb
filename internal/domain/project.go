package domain

import (
	"strings"
	"time"
)

// EntityKind distinguishes the two kinds of snapshot owners.
type EntityKind string

const (
	EntityProduct    EntityKind = "product"
	EntityCompetitor EntityKind = "competitor"
)

// Project groups the analysed product with its competitors.
type Project struct {
	ID          string
	Name        string
	OwnerID     string
	Products    []Product
	Competitors []Competitor
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PrimaryProduct returns the first product attached to the project.
func (p Project) PrimaryProduct() (Product, bool) {
	if len(p.Products) == 0 {
		return Product{}, false
	}
	return p.Products[0], true
}

// PrimaryCompetitorID is kept on reports for backward compatibility with
// single-competitor consumers.
func (p Project) PrimaryCompetitorID() string {
	if len(p.Competitors) == 0 {
		return ""
	}
	return p.Competitors[0].ID
}

// Product is the project's own offering. Positioning, CustomerData and
// UserProblem are entered through the project creation form.
type Product struct {
	ID           string
	ProjectID    string
	Name         string
	Website      string
	Industry     string
	Description  string
	Positioning  string
	CustomerData string
	UserProblem  string
}

// HasFormData reports whether the record carries authoritative form input.
func (p Product) HasFormData() bool {
	return strings.TrimSpace(p.Positioning) != "" ||
		strings.TrimSpace(p.CustomerData) != "" ||
		strings.TrimSpace(p.UserProblem) != ""
}

// Target describes the product as a capture target.
func (p Product) Target() EntityRef {
	return EntityRef{Kind: EntityProduct, ID: p.ID, Name: p.Name, Website: p.Website, Industry: p.Industry, Description: p.Description}
}

// Competitor is a tracked rival of the project's product.
type Competitor struct {
	ID          string
	ProjectID   string
	Name        string
	Website     string
	Industry    string
	Description string
}

// Target describes the competitor as a capture target.
func (c Competitor) Target() EntityRef {
	return EntityRef{Kind: EntityCompetitor, ID: c.ID, Name: c.Name, Website: c.Website, Industry: c.Industry, Description: c.Description}
}

// EntityRef is the kind-agnostic view of a product or competitor.
type EntityRef struct {
	Kind        EntityKind
	ID          string
	Name        string
	Website     string
	Industry    string
	Description string
}

// Entities lists the product(s) first, then competitors.
func (p Project) Entities() []EntityRef {
	refs := make([]EntityRef, 0, len(p.Products)+len(p.Competitors))
	for _, prod := range p.Products {
		refs = append(refs, prod.Target())
	}
	for _, comp := range p.Competitors {
		refs = append(refs, comp.Target())
	}
	return refs
}
