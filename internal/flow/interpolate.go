package flow

import (
	"regexp"

	"github.com/omnidesk/omnichannel-crm/internal/model"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Interpolate substitutes {{placeholder}} references from the contact's
// built-in fields (name, phone, email) and the flow variable bag.
// Unresolved placeholders are left literally in the output so a missing
// variable shows up in the message instead of vanishing.
func Interpolate(text string, contact *model.Contact, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := resolveVar(name, contact, vars); ok {
			return v
		}
		return match
	})
}

func resolveVar(name string, contact *model.Contact, vars map[string]string) (string, bool) {
	if contact != nil {
		switch name {
		case "name":
			if contact.Name != "" {
				return contact.Name, true
			}
		case "phone":
			if contact.Phone != "" {
				return contact.Phone, true
			}
			if contact.ExternalID != "" {
				return contact.ExternalID, true
			}
		case "email":
			if contact.Email != "" {
				return contact.Email, true
			}
		}
	}
	if v, ok := vars[name]; ok {
		return v, true
	}
	return "", false
}
