package papers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates() []*Candidate {
	return []*Candidate{
		{ID: "c1", Title: "A", RelevanceScore: 0.85},
		{ID: "c2", Title: "B", RelevanceScore: 0.99},
		{ID: "c3", Title: "C", RelevanceScore: 0.92, Metadata: Metadata{AutoSelected: true}},
		{ID: "c4", Title: "D", RelevanceScore: 0.85},
	}
}

func TestSortByRelevance(t *testing.T) {
	cs := candidates()
	SortByRelevance(cs)

	var ids []string
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	// ties keep write order
	assert.Equal(t, []string{"c2", "c3", "c1", "c4"}, ids)
}

func TestDefault(t *testing.T) {
	t.Run("auto selected wins", func(t *testing.T) {
		cs := candidates()
		SortByRelevance(cs)
		d := Default(cs)
		require.NotNil(t, d)
		assert.Equal(t, "c3", d.ID)
	})

	t.Run("falls back to first", func(t *testing.T) {
		cs := candidates()
		cs[2].Metadata.AutoSelected = false
		SortByRelevance(cs)
		assert.Equal(t, "c2", Default(cs).ID)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, Default(nil))
	})
}

func TestFind(t *testing.T) {
	cs := candidates()
	assert.Equal(t, "B", Find(cs, "c2").Title)
	assert.Nil(t, Find(cs, "missing"))
}
