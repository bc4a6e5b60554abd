// Package pricing turns order lines into monetary totals. It is pure: no
// repository access, no clock, no randomness.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnits is the number of decimal places money is rounded to.
const MinorUnits = 2

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type ShippingPolicy struct {
	Free bool
}

type Breakdown struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	LineTotals []decimal.Decimal
}

// CouponPolicy decides the discount for a coupon code.
type CouponPolicy interface {
	Apply(code string, subtotal decimal.Decimal) decimal.Decimal
}

// FlatRateCoupon discounts a fixed share of the subtotal for any non-empty code.
// There is no registry lookup: every code is accepted.
type FlatRateCoupon struct {
	Rate decimal.Decimal
}

func (p FlatRateCoupon) Apply(code string, subtotal decimal.Decimal) decimal.Decimal {
	if strings.TrimSpace(code) == "" {
		return decimal.Zero
	}
	return Round(subtotal.Mul(p.Rate))
}

type Calculator struct {
	taxRate     decimal.Decimal
	shippingFee decimal.Decimal
	coupons     CouponPolicy
}

func NewCalculator(taxRate, shippingFee decimal.Decimal, coupons CouponPolicy) *Calculator {
	if coupons == nil {
		coupons = FlatRateCoupon{Rate: decimal.Zero}
	}
	return &Calculator{
		taxRate:     taxRate,
		shippingFee: shippingFee,
		coupons:     coupons,
	}
}

// Price computes subtotal, tax, shipping, discount and grand total.
// total = subtotal + tax + shipping - discount, never below zero.
func (c *Calculator) Price(lines []Line, couponCode string, shipping ShippingPolicy) Breakdown {
	b := Breakdown{
		Subtotal:   decimal.Zero,
		LineTotals: make([]decimal.Decimal, len(lines)),
	}

	for i, line := range lines {
		lineTotal := LineTotal(line.UnitPrice, line.Quantity)
		b.LineTotals[i] = lineTotal
		b.Subtotal = b.Subtotal.Add(lineTotal)
	}

	b.Tax = Round(b.Subtotal.Mul(c.taxRate))

	b.Shipping = Round(c.shippingFee)
	if shipping.Free {
		b.Shipping = decimal.Zero
	}

	b.Discount = decimal.Min(c.coupons.Apply(couponCode, b.Subtotal), b.Subtotal)
	if b.Discount.IsNegative() {
		b.Discount = decimal.Zero
	}

	b.Total = b.Subtotal.Add(b.Tax).Add(b.Shipping).Sub(b.Discount)
	if b.Total.IsNegative() {
		b.Total = decimal.Zero
	}

	return b
}

func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return Round(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// Round rounds half away from zero to the minor unit, which is half-up for
// the non-negative amounts this package produces.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnits)
}
