package apiclient

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/domain"
)

// The API returns loosely shaped JSON; everything is folded into canonical
// domain types here so nothing past this package inspects alternate field names.

var textPolicy = bluemonday.StrictPolicy()

func cleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(value)))
}

// unwrap descends through {data:...} and the named envelopes until it finds a list.
func unwrapList(raw any, envelopes ...string) []any {
	for depth := 0; depth < 4; depth++ {
		switch v := raw.(type) {
		case []any:
			return v
		case map[string]any:
			next, ok := firstPresent(v, append(envelopes, "data")...)
			if !ok {
				return nil
			}
			raw = next
		default:
			return nil
		}
	}
	return nil
}

// unwrapObject descends through {data:...} and the named envelopes until it finds an object
// that is not itself an envelope.
func unwrapObject(raw any, envelopes ...string) map[string]any {
	obj, ok := raw.(map[string]any)
	for depth := 0; ok && depth < 4; depth++ {
		next, found := firstPresent(obj, append(envelopes, "data")...)
		if !found {
			return obj
		}
		inner, isObj := next.(map[string]any)
		if !isObj {
			return obj
		}
		obj = inner
	}
	return obj
}

func firstPresent(obj map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := obj[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := asString(obj[key]); s != "" {
			return s
		}
	}
	return ""
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return decimal.NewFromFloat(v).String()
	case bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

func decimalField(obj map[string]any, keys ...string) decimal.Decimal {
	for _, key := range keys {
		if s := asString(obj[key]); s != "" {
			if d, err := decimal.NewFromString(s); err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}

func intField(obj map[string]any, keys ...string) int {
	for _, key := range keys {
		if s := asString(obj[key]); s != "" {
			if d, err := decimal.NewFromString(s); err == nil {
				return int(d.IntPart())
			}
		}
	}
	return 0
}

func boolField(obj map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case bool:
			return v
		case string:
			if strings.EqualFold(v, "true") {
				return true
			}
		}
	}
	return false
}

// normalizeCartItems accepts a bare list, {items}, {cart:{items}} or {data:...}.
func normalizeCartItems(raw any) []domain.CartLineItem {
	list := unwrapList(raw, "items", "cart", "cartItems")
	items := make([]domain.CartLineItem, 0, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item, ok := normalizeCartItem(obj)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return items
}

func normalizeCartItem(obj map[string]any) (domain.CartLineItem, bool) {
	product, _ := obj["product"].(map[string]any)
	if product == nil {
		product, _ = obj["productId"].(map[string]any)
	}

	productID := stringField(obj, "productId", "product_id")
	if productID == "" {
		if s := asString(obj["product"]); s != "" {
			productID = s
		} else if product != nil {
			productID = stringField(product, "_id", "id")
		}
	}
	if productID == "" {
		return domain.CartLineItem{}, false
	}
	quantity := intField(obj, "quantity", "qty")
	if quantity < 1 {
		return domain.CartLineItem{}, false
	}

	name := stringField(obj, "name")
	image := stringField(obj, "image")
	price := decimalField(obj, "price", "unitPrice")
	if product != nil {
		if name == "" {
			name = stringField(product, "name")
		}
		if image == "" {
			image = firstImage(product)
		}
		if price.IsZero() {
			price = decimalField(product, "price")
		}
	}
	if image == "" {
		image = firstImage(obj)
	}

	return domain.CartLineItem{
		ProductID: productID,
		Variant:   domain.NewVariantKey(stringField(obj, "size"), stringField(obj, "color", "colour")),
		Quantity:  quantity,
		UnitPrice: price,
		Snapshot: domain.ProductSnapshot{
			Name:  cleanText(name),
			Image: image,
		},
	}, true
}

func firstImage(obj map[string]any) string {
	if s := stringField(obj, "image"); s != "" {
		return s
	}
	if images, ok := obj["images"].([]any); ok {
		for _, img := range images {
			if s := asString(img); s != "" {
				return s
			}
			if m, ok := img.(map[string]any); ok {
				if s := stringField(m, "url", "src"); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// normalizeAddresses accepts a bare list, {addresses}, {data:...}.
func normalizeAddresses(raw any) []domain.Address {
	list := unwrapList(raw, "addresses")
	out := make([]domain.Address, 0, len(list))
	for _, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		addr := normalizeAddress(obj)
		if addr.ID == "" {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func normalizeAddress(obj map[string]any) domain.Address {
	line1 := stringField(obj, "line1", "street")
	if line1 == "" {
		line1 = asString(obj["address"])
	}
	line2 := stringField(obj, "line2")
	if line2 == "" {
		parts := make([]string, 0, 3)
		for _, key := range [][]string{{"city"}, {"state"}, {"postalCode", "pincode", "zip"}} {
			if s := stringField(obj, key...); s != "" {
				parts = append(parts, s)
			}
		}
		line2 = strings.Join(parts, ", ")
	}
	return domain.Address{
		ID:        stringField(obj, "id", "_id"),
		Label:     cleanText(stringField(obj, "label", "name", "type")),
		Phone:     stringField(obj, "phone", "mobile", "phoneNumber"),
		Line1:     cleanText(line1),
		Line2:     cleanText(line2),
		Country:   stringField(obj, "country"),
		IsDefault: boolField(obj, "isDefault", "default", "is_default"),
	}
}
