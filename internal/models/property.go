package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PropertyType is the category of a listed unit.
type PropertyType string

const (
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeApartment  PropertyType = "apartment"
	PropertyTypeLand       PropertyType = "land"
	PropertyTypeCommercial PropertyType = "commercial"
	PropertyTypeVilla      PropertyType = "villa"
)

// PropertyTypes lists every known category.
var PropertyTypes = []PropertyType{
	PropertyTypeHouse,
	PropertyTypeApartment,
	PropertyTypeLand,
	PropertyTypeCommercial,
	PropertyTypeVilla,
}

func (t PropertyType) Valid() bool {
	for _, known := range PropertyTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ListingType is the offering made on a property.
type ListingType string

const (
	ListingTypeSale  ListingType = "sale"
	ListingTypeRent  ListingType = "rent"
	ListingTypeLease ListingType = "lease"
)

func (t ListingType) Valid() bool {
	switch t {
	case ListingTypeSale, ListingTypeRent, ListingTypeLease:
		return true
	}
	return false
}

// PropertyStatus is the market availability of a property.
type PropertyStatus string

const (
	PropertyStatusAvailable PropertyStatus = "available"
	PropertyStatusPending   PropertyStatus = "pending"
	PropertyStatusSold      PropertyStatus = "sold"
	PropertyStatusRented    PropertyStatus = "rented"
)

func (s PropertyStatus) Valid() bool {
	switch s {
	case PropertyStatusAvailable, PropertyStatusPending, PropertyStatusSold, PropertyStatusRented:
		return true
	}
	return false
}

// PriceUnit qualifies what the price is for.
type PriceUnit string

const (
	PriceUnitTotal    PriceUnit = "total"
	PriceUnitPerMonth PriceUnit = "per_month"
	PriceUnitPerYear  PriceUnit = "per_year"
	PriceUnitPerSqft  PriceUnit = "per_sqft"
	PriceUnitPerAana  PriceUnit = "per_aana"
)

func (u PriceUnit) Valid() bool {
	switch u {
	case PriceUnitTotal, PriceUnitPerMonth, PriceUnitPerYear, PriceUnitPerSqft, PriceUnitPerAana:
		return true
	}
	return false
}

func (u PriceUnit) suffix() string {
	switch u {
	case PriceUnitPerMonth:
		return "/month"
	case PriceUnitPerYear:
		return "/year"
	case PriceUnitPerSqft:
		return "/sq.ft"
	case PriceUnitPerAana:
		return "/aana"
	}
	return ""
}

// Location is where a property is. Address and district are required.
type Location struct {
	Address     string    `bson:"address" json:"address" validate:"required,max=300"`
	District    string    `bson:"district" json:"district" validate:"required,max=100"`
	City        string    `bson:"city,omitempty" json:"city,omitempty" validate:"max=100"`
	Province    string    `bson:"province,omitempty" json:"province,omitempty" validate:"max=100"`
	Coordinates []float64 `bson:"coordinates,omitempty" json:"coordinates,omitempty" validate:"omitempty,len=2"` // [longitude, latitude]
}

// Area is a measured size with its unit (sq.ft, aana, ropani, ...).
type Area struct {
	Value float64 `bson:"value" json:"value" validate:"gte=0"`
	Unit  string  `bson:"unit" json:"unit" validate:"max=20"`
}

// Features are the physical characteristics of a property.
type Features struct {
	Bedrooms  int   `bson:"bedrooms" json:"bedrooms" validate:"gte=0"`
	Bathrooms int   `bson:"bathrooms" json:"bathrooms" validate:"gte=0"`
	Floors    int   `bson:"floors" json:"floors" validate:"gte=0"`
	Parking   int   `bson:"parking" json:"parking" validate:"gte=0"`
	Area      *Area `bson:"area,omitempty" json:"area,omitempty"`
	BuiltYear int   `bson:"builtYear,omitempty" json:"builtYear,omitempty" validate:"gte=0"`
}

// Image is an asset hosted externally, referenced by its URL and host-side public id.
type Image struct {
	URL       string `bson:"url" json:"url" validate:"required,url"`
	PublicID  string `bson:"publicId" json:"publicId" validate:"required"`
	Caption   string `bson:"caption,omitempty" json:"caption,omitempty" validate:"max=200"`
	IsPrimary bool   `bson:"isPrimary" json:"isPrimary"`
}

// NormalizeImages enforces the primary-image invariant: a non-empty list has exactly one
// primary image. The first flagged image wins; with none flagged, the first image is primary.
func NormalizeImages(images []Image) []Image {
	if len(images) == 0 {
		return []Image{}
	}
	out := make([]Image, len(images))
	copy(out, images)
	primary := -1
	for i := range out {
		if out[i].IsPrimary && primary == -1 {
			primary = i
			continue
		}
		out[i].IsPrimary = false
	}
	if primary == -1 {
		out[0].IsPrimary = true
	}
	return out
}

// PrimaryImage returns the primary image, if any.
func PrimaryImage(images []Image) *Image {
	for i := range images {
		if images[i].IsPrimary {
			return &images[i]
		}
	}
	return nil
}

// Property is a listed real-estate unit.
type Property struct {
	Base         `bson:",inline"`
	PropertyID   string             `bson:"propertyId" json:"propertyId"`
	Slug         string             `bson:"slug" json:"slug"`
	Name         string             `bson:"name" json:"name"`
	Description  string             `bson:"description" json:"description"`
	PropertyType PropertyType       `bson:"propertyType" json:"propertyType"`
	ListingType  ListingType        `bson:"listingType" json:"listingType"`
	Status       PropertyStatus     `bson:"status" json:"status"`
	Price        float64            `bson:"price" json:"price"`
	PriceUnit    PriceUnit          `bson:"priceUnit" json:"priceUnit"`
	Location     Location           `bson:"location" json:"location"`
	Features     Features           `bson:"features" json:"features"`
	Amenities    []string           `bson:"amenities" json:"amenities"`
	Images       []Image            `bson:"images" json:"images"`
	Featured     bool               `bson:"featured" json:"featured"`
	IsActive     bool               `bson:"isActive" json:"isActive"`
	Views        int64              `bson:"views" json:"views"`
	CreatedBy    primitive.ObjectID `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
}

// MarshalJSON adds the display price to the serialized property.
func (p Property) MarshalJSON() ([]byte, error) {
	type plain Property
	return json.Marshal(struct {
		plain
		FormattedPrice string `json:"formattedPrice"`
	}{plain(p), FormatPrice(p.Price, p.PriceUnit)})
}

const (
	lakh  = 100_000
	crore = 10_000_000
)

// FormatPrice renders a price the way Nepali listings quote it:
// "Rs. 1.25 Crore", "Rs. 45 Lakh", "Rs. 45,000", followed by the unit suffix.
func FormatPrice(price float64, unit PriceUnit) string {
	var amount string
	switch {
	case price >= crore:
		amount = trimDecimals(price/crore) + " Crore"
	case price >= lakh:
		amount = trimDecimals(price/lakh) + " Lakh"
	default:
		amount = humanize.Comma(int64(math.Round(price)))
	}
	return "Rs. " + amount + unit.suffix()
}

func trimDecimals(v float64) string {
	s := strconv.FormatFloat(math.Round(v*100)/100, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// PropertyRef is the snapshot of a property embedded in documents that point at it.
type PropertyRef struct {
	Name       string `bson:"name" json:"name"`
	Slug       string `bson:"slug" json:"slug"`
	PropertyID string `bson:"propertyId" json:"propertyId"`
}

// Ref snapshots p for embedding.
func (p *Property) Ref() *PropertyRef {
	return &PropertyRef{Name: p.Name, Slug: p.Slug, PropertyID: p.PropertyID}
}

func (p *Property) String() string {
	return fmt.Sprintf("%s (%s)", p.PropertyID, p.Slug)
}
