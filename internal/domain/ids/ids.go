// Package ids generates the TypeID-based record identifiers used across the
// store. IDs are K-sortable, URL-safe and formatted "prefix_suffix".
package ids

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in an ID.
type Prefix string

const (
	PrefixUser     Prefix = "user"
	PrefixProduct  Prefix = "prod"
	PrefixCartItem Prefix = "item"
	PrefixOrder    Prefix = "ord"
	PrefixSale     Prefix = "sale"
	PrefixPurchase Prefix = "pur"
	PrefixSupplier Prefix = "sup"
	PrefixRole     Prefix = "role"
)

// New generates a new ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("ids: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// HasPrefix reports whether s is a valid ID of the given type. Seeded and
// legacy ids such as "prod1" are not TypeIDs and report false.
func HasPrefix(s string, prefix Prefix) bool {
	if !strings.HasPrefix(s, string(prefix)+"_") {
		return false
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return false
	}
	return tid.Prefix() == string(prefix)
}
