package orders

import (
	"strings"

	"github.com/sokonilabs/sokoni-backend/pkg/db/models"
	"github.com/sokonilabs/sokoni-backend/pkg/enums"
)

// serviceCategoryKeywords mark a category string as service-like when the
// catalog type field is missing. Matching is case-insensitive substring.
var serviceCategoryKeywords = []string{
	"service",
	"repair",
	"cleaning",
	"salon",
	"booking",
	"consult",
}

// ClassifyProduct resolves a product's effective type with an explicit
// precedence: the catalog type field wins; a service-like category keyword
// is next; a product that tracks inventory is physical; everything else
// defaults to digital.
func ClassifyProduct(product models.Product) enums.ProductType {
	if product.Type.IsValid() {
		return product.Type
	}
	if product.Category != nil {
		category := strings.ToLower(*product.Category)
		for _, keyword := range serviceCategoryKeywords {
			if strings.Contains(category, keyword) {
				return enums.ProductTypeService
			}
		}
	}
	if product.TracksInventory {
		return enums.ProductTypePhysical
	}
	return enums.ProductTypeDigital
}

// ClassifyItems re-derives the order's composition from current product data.
// Items whose product row disappeared fall back to the type resolved at order
// placement.
func ClassifyItems(items []models.OrderItem, products map[string]models.Product) Composition {
	var comp Composition
	for _, item := range items {
		productType := item.ProductType
		if product, ok := products[item.ProductID.String()]; ok {
			productType = ClassifyProduct(product)
		}
		switch productType {
		case enums.ProductTypePhysical:
			comp.HasPhysical = true
		case enums.ProductTypeService:
			comp.HasService = true
		}
	}
	return comp
}
