// Package portal implements the customer-facing refund flow: a server-side
// session that moves through verify → reason → images → submit, the fixed
// reason catalog, and photo validation.
package portal

import (
	"golang.org/x/text/language"

	"github.com/tbourn/go-refund-backend/internal/i18n"
)

// Reason codes offered to customers.
const (
	ReasonDamaged        = "damaged_product"
	ReasonWrong          = "wrong_product"
	ReasonDefective      = "defective_product"
	ReasonNotAsDescribed = "not_as_described"
	ReasonLateDelivery   = "late_delivery"
	ReasonCustomer       = "customer_request"
	ReasonOther          = "other"
)

// Reason is one entry of the catalog.
type Reason struct {
	Code          string
	RequiresImage bool
	label         string
	description   string
}

var reasons = []Reason{
	{ReasonDamaged, true, i18n.ReasonDamagedLabel, i18n.ReasonDamagedDescription},
	{ReasonWrong, true, i18n.ReasonWrongLabel, i18n.ReasonWrongDescription},
	{ReasonDefective, true, i18n.ReasonDefectiveLabel, i18n.ReasonDefectiveDescription},
	{ReasonNotAsDescribed, false, i18n.ReasonNotDescribedLabel, i18n.ReasonNotDescribedDesc},
	{ReasonLateDelivery, false, i18n.ReasonLateLabel, i18n.ReasonLateDescription},
	{ReasonCustomer, false, i18n.ReasonCustomerLabel, i18n.ReasonCustomerDescription},
	{ReasonOther, false, i18n.ReasonOtherLabel, i18n.ReasonOtherDescription},
}

// LookupReason returns the catalog entry for code.
func LookupReason(code string) (Reason, bool) {
	for _, r := range reasons {
		if r.Code == code {
			return r, true
		}
	}
	return Reason{}, false
}

// ReasonView is a localized catalog entry.
type ReasonView struct {
	Value         string `json:"value"`
	Label         string `json:"label"`
	Description   string `json:"description"`
	RequiresImage bool   `json:"requiresImage"`
}

// Catalog returns the reasons in display order, localized to tag.
func Catalog(tag language.Tag) []ReasonView {
	p := i18n.Printer(tag)
	out := make([]ReasonView, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, ReasonView{
			Value:         r.Code,
			Label:         p.Sprintf(r.label),
			Description:   p.Sprintf(r.description),
			RequiresImage: r.RequiresImage,
		})
	}
	return out
}
