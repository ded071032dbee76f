package orders

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/aurelia-commerce/storefront-backend/pkg/errors"
)

// taxFor computes the informational tax amount for an items total. The rate
// is a decimal fraction ("0.19" for 19%); the result is rounded half away
// from zero to whole minor units. Tax is shown on the order but not added to
// the total, which prices items tax-inclusive.
func taxFor(itemsTotalCents int, rate string) (int, error) {
	parsed, err := decimal.NewFromString(rate)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tax rate")
	}
	if parsed.IsNegative() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "tax rate must not be negative")
	}
	tax := decimal.NewFromInt(int64(itemsTotalCents)).Mul(parsed).Round(0)
	return int(tax.IntPart()), nil
}

// unitPriceCents resolves the effective price of a line: the variant price
// when one is set, the product price otherwise.
func unitPriceCents(productPrice int, variantPrice *int) int {
	if variantPrice != nil {
		return *variantPrice
	}
	return productPrice
}
