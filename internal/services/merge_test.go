package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeItems_PreservesUntouchedFields(t *testing.T) {
	existing := []Item{{Name: "cup", Category: "kitchen", Subcategory: "drinkware", Requests: []string{"refill"}}}
	updates := []Item{{Name: "cup", Category: "kitchen", Subcategory: "drinkware", Requests: []string{"refill", "wash"}}}

	merged := MergeItems(existing, updates)

	require.Len(t, merged, 1)
	assert.Equal(t, Item{Name: "cup", Category: "kitchen", Subcategory: "drinkware", Requests: []string{"refill", "wash"}}, merged[0])
}

func TestMergeItems_AppendsWithoutDisturbingOrder(t *testing.T) {
	existing := []Item{{Name: "A", Category: "one"}, {Name: "B", Category: "two"}}
	updates := []Item{{Name: "B", Category: "changed"}, {Name: "C", Category: "three"}}

	merged := MergeItems(existing, updates)

	require.Len(t, merged, 3)
	assert.Equal(t, "A", merged[0].Name)
	assert.Equal(t, "one", merged[0].Category)
	assert.Equal(t, "B", merged[1].Name)
	assert.Equal(t, "changed", merged[1].Category)
	assert.Equal(t, "C", merged[2].Name)
}

func TestMergeItems_FieldLevelLastWriteWins(t *testing.T) {
	existing := []Item{{Name: "towel", Category: "bathroom", Subcategory: "linen", Requests: []string{"dry"}}}
	updates := []Item{
		{Name: "Towel", Subcategory: "bath linen"},
		{Name: "TOWEL", Requests: []string{}},
	}

	merged := MergeItems(existing, updates)

	require.Len(t, merged, 1)
	assert.Equal(t, "towel", merged[0].Name, "identity keeps the stored spelling")
	assert.Equal(t, "bathroom", merged[0].Category)
	assert.Equal(t, "bath linen", merged[0].Subcategory)
	assert.Empty(t, merged[0].Requests)
	assert.NotNil(t, merged[0].Requests)
}

func TestMergeItems_DoesNotAliasInputs(t *testing.T) {
	existing := []Item{{Name: "cup", Requests: []string{"refill"}}}
	updates := []Item{{Name: "spoon", Requests: []string{"stir"}}}

	merged := MergeItems(existing, updates)
	merged[0].Requests[0] = "mutated"
	merged[1].Requests[0] = "mutated"

	assert.Equal(t, "refill", existing[0].Requests[0])
	assert.Equal(t, "stir", updates[0].Requests[0])
}

func TestMergeItems_SkipsBlankNames(t *testing.T) {
	merged := MergeItems(nil, []Item{{Name: "  "}, {Name: "cup"}})

	require.Len(t, merged, 1)
	assert.Equal(t, "cup", merged[0].Name)
}
