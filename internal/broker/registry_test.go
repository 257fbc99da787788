package broker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func catalogDef(id, category string) *Definition {
	return &Definition{
		ID:       id,
		Name:     id,
		BaseURL:  "https://" + id + ".test",
		Category: category,
		Search:   SearchMethod{Kind: SearchManual, FormURL: "https://" + id + ".test/s"},
		Removal:  RemovalMethod{Kind: RemovalManual},
	}
}

func TestRegistrySelect(t *testing.T) {
	reg := NewRegistry(
		catalogDef("spokeo", "people_search"),
		catalogDef("whitepages", "people_search"),
		catalogDef("acme-bg", "background_check"),
	)

	all := reg.Select(FilterAll())
	require.Len(t, all, 3)
	require.Equal(t, "acme-bg", all[0].ID) // ordered by id

	people := reg.Select(FilterCategory("people_search"))
	require.Len(t, people, 2)

	picked := reg.Select(FilterIDs("whitepages", "missing"))
	require.Len(t, picked, 1)
	require.Equal(t, "whitepages", picked[0].ID)

	require.Empty(t, reg.Select(FilterIDs()))
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry(catalogDef("spokeo", "people_search"))

	_, err := reg.Get("nonexistent")
	require.Error(t, err)

	d, err := reg.Get("spokeo")
	require.NoError(t, err)
	require.Equal(t, "spokeo", d.ID)
}
