package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestResourceListBSONNonArrayIsEmpty(t *testing.T) {
	raw, err := bson.Marshal(bson.M{
		"_id":  "g1",
		"name": "Physics",
		"resources": bson.M{
			"documents": "not-a-list",
			"files":     bson.A{bson.M{"id": "f1", "name": "Lab.pdf"}},
		},
	})
	require.NoError(t, err)

	var g Group
	require.NoError(t, bson.Unmarshal(raw, &g))
	require.NotNil(t, g.Resources)
	assert.Empty(t, g.Resources.Documents)
	require.Len(t, g.Resources.Files, 1)
	assert.Equal(t, "f1", g.Resources.Files[0].ID)
}

func TestResourceListBSONNull(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"_id": "g1", "resources": bson.M{"documents": nil}})
	require.NoError(t, err)

	var g Group
	require.NoError(t, bson.Unmarshal(raw, &g))
	assert.Nil(t, g.Resources.List(KindDocuments))
}

func TestResourceListJSON(t *testing.T) {
	payload := `{"id":"g1","resources":{"documents":{"oops":true},"files":[{"id":"f1","name":"a","lastUpdated":"2025-01-02T03:04:05Z"}]}}`

	var g Group
	require.NoError(t, json.Unmarshal([]byte(payload), &g))
	assert.Nil(t, g.Resources.Documents)
	require.Len(t, g.Resources.Files, 1)
	require.NotNil(t, g.Resources.Files[0].LastUpdated)
	assert.Equal(t, 2025, g.Resources.Files[0].LastUpdated.Year())
}

func TestResourceSetListNilSafe(t *testing.T) {
	var s *ResourceSet
	assert.Nil(t, s.List(KindFiles))
	assert.Nil(t, (&ResourceSet{}).List(ResourceKind("links")))
}

func TestResourceKindValid(t *testing.T) {
	assert.True(t, KindDocuments.Valid())
	assert.True(t, KindFiles.Valid())
	assert.False(t, ResourceKind("links").Valid())
}
