// Package product defines the catalog product value object.
package product

import "fmt"

// MaxAttributeCount bounds free-form attributes per product.
const MaxAttributeCount = 64

// Product is a single catalog item as returned by retrieval.
type Product struct {
	id          string
	name        string
	description string
	price       float64
	category    string
	brand       string
	rating      float64
	attributes  map[string]string
}

// New validates and creates a product.
func New(
	id, name, description string,
	price float64,
	category, brand string,
	rating float64,
	attributes map[string]string,
) (Product, error) {
	if id == "" {
		return Product{}, fmt.Errorf("product id is required")
	}
	if name == "" {
		return Product{}, fmt.Errorf("product name is required for %q", id)
	}
	if price < 0 {
		return Product{}, fmt.Errorf("product %q has negative price %g", id, price)
	}
	if rating < 0 || rating > 5 {
		return Product{}, fmt.Errorf("product %q rating %g out of [0,5]", id, rating)
	}
	if len(attributes) > MaxAttributeCount {
		return Product{}, fmt.Errorf("product %q has too many attributes (max %d)", id, MaxAttributeCount)
	}
	return Product{
		id:          id,
		name:        name,
		description: description,
		price:       price,
		category:    category,
		brand:       brand,
		rating:      rating,
		attributes:  attributes,
	}, nil
}

// Reconstruct rebuilds a product from storage without validation.
func Reconstruct(
	id, name, description string,
	price float64,
	category, brand string,
	rating float64,
	attributes map[string]string,
) Product {
	return Product{
		id: id, name: name, description: description,
		price: price, category: category, brand: brand,
		rating: rating, attributes: attributes,
	}
}

// ID returns the product identifier.
func (p Product) ID() string { return p.id }

// Name returns the display name.
func (p Product) Name() string { return p.name }

// Description returns the catalog description.
func (p Product) Description() string { return p.description }

// Price returns the list price.
func (p Product) Price() float64 { return p.price }

// Category returns the catalog category.
func (p Product) Category() string { return p.category }

// Brand returns the brand name.
func (p Product) Brand() string { return p.brand }

// Rating returns the average customer rating in [0,5].
func (p Product) Rating() float64 { return p.rating }

// Attributes returns the free-form attribute map.
func (p Product) Attributes() map[string]string { return p.attributes }
