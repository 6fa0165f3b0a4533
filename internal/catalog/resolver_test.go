package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"checkindesk/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	coll    *ItemCollection
	err     error
	queries []string
	offsets []int
}

func (f *fakeSearcher) SearchItems(ctx context.Context, query string, limit, offset int) (*ItemCollection, error) {
	f.queries = append(f.queries, query)
	f.offsets = append(f.offsets, offset)
	if limit != PageAmount {
		return nil, fmt.Errorf("unexpected limit %d", limit)
	}
	return f.coll, f.err
}

func items(n int) []Item {
	out := make([]Item, n)
	for i := range out {
		out[i] = Item{ID: fmt.Sprintf("item-%d", i), Barcode: fmt.Sprintf("bc-%d", i)}
	}
	return out
}

func TestResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		r := NewResolver(&fakeSearcher{coll: &ItemCollection{}})
		out, err := r.Resolve(ctx, "0000000", nil)
		require.NoError(t, err)
		assert.Equal(t, NotFound, out.Kind)
	})

	t.Run("unique", func(t *testing.T) {
		s := &fakeSearcher{coll: &ItemCollection{Items: items(1), TotalRecords: 1}}
		out, err := NewResolver(s).Resolve(ctx, " 9676761472500 ", &settings.CheckinSettings{})
		require.NoError(t, err)
		require.Equal(t, Unique, out.Kind)
		assert.Equal(t, "item-0", out.Item.ID)
		assert.Equal(t, []string{`barcode=="9676761472500"`}, s.queries)
	})

	t.Run("ambiguous with further pages", func(t *testing.T) {
		s := &fakeSearcher{coll: &ItemCollection{Items: items(PageAmount), TotalRecords: 250}}
		out, err := NewResolver(s).Resolve(ctx, "12", &settings.CheckinSettings{WildcardLookupEnabled: true})
		require.NoError(t, err)
		require.Equal(t, Ambiguous, out.Kind)
		assert.Equal(t, 250, out.TotalRecords)
		assert.Len(t, out.Items, PageAmount)
		assert.Equal(t, PageAmount, out.NextOffset)
		assert.Equal(t, `barcode=="12*"`, s.queries[0])
	})

	t.Run("last page has no next offset", func(t *testing.T) {
		s := &fakeSearcher{coll: &ItemCollection{Items: items(50), TotalRecords: 250}}
		out, err := NewResolver(s).Page(ctx, "12", &settings.CheckinSettings{WildcardLookupEnabled: true}, 200)
		require.NoError(t, err)
		assert.Equal(t, Ambiguous, out.Kind)
		assert.Equal(t, 200, out.Offset)
		assert.Zero(t, out.NextOffset)
		assert.Equal(t, []int{200}, s.offsets)
	})

	t.Run("transport failure", func(t *testing.T) {
		cause := errors.New("connection refused")
		_, err := NewResolver(&fakeSearcher{err: cause}).Resolve(ctx, "123", nil)

		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, "123", resErr.Barcode)
		assert.ErrorIs(t, err, cause)
	})
}

func TestBarcodeQuery(t *testing.T) {
	assert.Equal(t, `barcode=="abc"`, BarcodeQuery("abc", false))
	assert.Equal(t, `barcode=="abc*"`, BarcodeQuery("abc", true))
	assert.Equal(t, `barcode=="a\"b\\c\*"`, BarcodeQuery(`a"b\c*`, false))
}

func TestItem(t *testing.T) {
	t.Run("display title", func(t *testing.T) {
		item := Item{Title: "Best Book Ever", MaterialType: Named{Name: "book"}}
		assert.Equal(t, "Best Book Ever (book)", item.DisplayTitle())
		assert.Equal(t, "Untyped", (&Item{Title: "Untyped"}).DisplayTitle())
	})

	t.Run("piece counts accept strings and numbers", func(t *testing.T) {
		var item Item
		require.NoError(t, json.Unmarshal([]byte(`{"numberOfPieces":"3","numberOfMissingPieces":2}`), &item))
		assert.Equal(t, 3, item.NumberOfPieces.Int())
		assert.True(t, item.NumberOfMissingPieces.Truthy())
		assert.Zero(t, TextCount("many").Int())
	})

	t.Run("text zero is set, numeric zero is not", func(t *testing.T) {
		var item Item
		require.NoError(t, json.Unmarshal([]byte(`{"numberOfMissingPieces":"0","numberOfPieces":0}`), &item))
		assert.True(t, item.NumberOfMissingPieces.Truthy())
		assert.False(t, item.NumberOfPieces.Truthy())
		assert.False(t, Count{}.Truthy())
		assert.False(t, NumberCount(0).Truthy())
		assert.True(t, NumberCount(2).Truthy())
	})

	t.Run("counts marshal back in their original form", func(t *testing.T) {
		item := Item{NumberOfPieces: NumberCount(3), NumberOfMissingPieces: TextCount("0")}
		b, err := json.Marshal(item)
		require.NoError(t, err)
		assert.Contains(t, string(b), `"numberOfPieces":3`)
		assert.Contains(t, string(b), `"numberOfMissingPieces":"0"`)

		b, err = json.Marshal(Item{})
		require.NoError(t, err)
		assert.NotContains(t, string(b), "numberOfPieces")
	})

	t.Run("checkin notes", func(t *testing.T) {
		item := Item{CirculationNotes: []CirculationNote{
			{NoteType: "Check out", Note: "a"},
			{NoteType: NoteTypeCheckIn, Note: "b"},
		}}
		notes := item.CheckinNotes()
		require.Len(t, notes, 1)
		assert.Equal(t, "b", notes[0].Note)
	})

	t.Run("dcb", func(t *testing.T) {
		assert.True(t, (&Item{InstanceID: DCBInstanceID}).IsDCB())
		assert.False(t, (&Item{InstanceID: "other"}).IsDCB())
	})
}
