// internal/catalog/resolver.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"checkindesk/internal/settings"
)

// PageAmount is the page size used for barcode lookups.
const PageAmount = 100

// ErrNotFound is returned when no item matches the scanned barcode.
var ErrNotFound = errors.New("item not found")

// ResolutionError wraps a failure of the inventory lookup itself.
type ResolutionError struct {
	Barcode string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve barcode %q: %v", e.Barcode, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Searcher runs an item query against the inventory service.
type Searcher interface {
	SearchItems(ctx context.Context, query string, limit, offset int) (*ItemCollection, error)
}

// OutcomeKind tells how a barcode resolved.
type OutcomeKind int

const (
	NotFound OutcomeKind = iota
	Unique
	Ambiguous
)

func (k OutcomeKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Unique:
		return "unique"
	case Ambiguous:
		return "ambiguous"
	}
	return "unknown"
}

// Outcome is the result of a barcode lookup. Item is set for Unique;
// Items, TotalRecords and NextOffset are set for Ambiguous. NextOffset is
// zero when there is no further page.
type Outcome struct {
	Kind         OutcomeKind
	Item         *Item
	Items        []Item
	TotalRecords int
	Offset       int
	NextOffset   int
}

// Resolver looks items up by barcode.
type Resolver struct {
	searcher Searcher
}

// NewResolver creates a resolver backed by the given searcher.
func NewResolver(searcher Searcher) *Resolver {
	return &Resolver{searcher: searcher}
}

// Resolve looks up the first page for barcode.
func (r *Resolver) Resolve(ctx context.Context, barcode string, s *settings.CheckinSettings) (*Outcome, error) {
	return r.Page(ctx, barcode, s, 0)
}

// Page looks up the page starting at offset. Selecting further pages of an
// ambiguous lookup goes through here.
func (r *Resolver) Page(ctx context.Context, barcode string, s *settings.CheckinSettings, offset int) (*Outcome, error) {
	wildcard := s != nil && s.WildcardLookupEnabled
	query := BarcodeQuery(barcode, wildcard)

	coll, err := r.searcher.SearchItems(ctx, query, PageAmount, offset)
	if err != nil {
		return nil, &ResolutionError{Barcode: barcode, Err: err}
	}

	total := coll.TotalRecords
	if total < len(coll.Items) {
		total = len(coll.Items)
	}

	switch {
	case total == 0 || len(coll.Items) == 0:
		return &Outcome{Kind: NotFound}, nil
	case total == 1:
		item := coll.Items[0]
		return &Outcome{Kind: Unique, Item: &item, TotalRecords: 1}, nil
	}

	out := &Outcome{
		Kind:         Ambiguous,
		Items:        coll.Items,
		TotalRecords: total,
		Offset:       offset,
	}
	if next := offset + PageAmount; next < total {
		out.NextOffset = next
	}
	return out, nil
}

// BarcodeQuery builds the inventory query for a barcode.
func BarcodeQuery(barcode string, wildcard bool) string {
	escaped := escapeQuery(strings.TrimSpace(barcode))
	if wildcard {
		return `barcode=="` + escaped + `*"`
	}
	return `barcode=="` + escaped + `"`
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`*`, `\*`,
	`?`, `\?`,
	`^`, `\^`,
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
