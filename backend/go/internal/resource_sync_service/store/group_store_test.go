package store

import (
	"context"
	"testing"
	"time"

	"Cirkle/backend/go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore(mt *mtest.T) *MongoGroupStore {
	s := NewMongoGroupStore(mt.DB, "groups")
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestGetGroup(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes resources", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "cirkle.groups", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "g1"},
			{Key: "name", Value: "Algorithms"},
			{Key: "resources", Value: bson.D{
				{Key: "documents", Value: bson.A{
					bson.D{{Key: "id", Value: "d1"}, {Key: "name", Value: "Notes"}},
				}},
				{Key: "files", Value: "not-a-list"},
			}},
		}))

		g, err := newStore(mt).GetGroup(context.Background(), "g1")
		require.NoError(mt, err)
		assert.Equal(mt, "Algorithms", g.Name)
		require.NotNil(mt, g.Resources)
		assert.Equal(mt, models.ResourceList{{ID: "d1", Name: "Notes"}}, g.Resources.Documents)
		assert.Empty(mt, g.Resources.Files)
	})

	mt.Run("not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "cirkle.groups", mtest.FirstBatch))

		_, err := newStore(mt).GetGroup(context.Background(), "missing")
		assert.ErrorIs(mt, err, ErrGroupNotFound)
	})
}

func TestUpdateResourceName(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("targets entry by id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := newStore(mt).UpdateResourceName(context.Background(), "g1", "d1", models.KindDocuments, "Notes v2")
		require.NoError(mt, err)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		cmd := evt.Command.String()
		assert.Contains(mt, cmd, "resources.documents.$[r].name")
		assert.Contains(mt, cmd, "Notes v2")
		assert.Contains(mt, cmd, "arrayFilters")
		assert.Contains(mt, cmd, `"r.id": "d1"`)
	})

	mt.Run("missing group", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := newStore(mt).UpdateResourceName(context.Background(), "nope", "d1", models.KindFiles, "x")
		assert.ErrorIs(mt, err, ErrGroupNotFound)
	})

	mt.Run("write error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    2,
			Message: "The path 'resources.files' must exist in the document",
		}))

		err := newStore(mt).UpdateResourceName(context.Background(), "g1", "f1", models.KindFiles, "x")
		assert.Error(mt, err)
	})

	mt.Run("rejects unknown kind", func(mt *mtest.T) {
		err := newStore(mt).UpdateResourceName(context.Background(), "g1", "d1", models.ResourceKind("links"), "x")
		assert.Error(mt, err)
		assert.Nil(mt, mt.GetStartedEvent())
	})
}

func TestMarkResourceRenamed(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("sets last_updated", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := newStore(mt).MarkResourceRenamed(context.Background(), "g1", "f1", models.KindFiles, "slides.pdf", fixedNow)
		require.NoError(mt, err)

		cmd := mt.GetStartedEvent().Command.String()
		assert.Contains(mt, cmd, "resources.files.$[r].last_updated")
		assert.Contains(mt, cmd, "resources.files.$[r].name")
	})
}

func TestRemoveResource(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("pulls entry", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		require.NoError(mt, newStore(mt).RemoveResource(context.Background(), "g1", "d1", models.KindDocuments))
		cmd := mt.GetStartedEvent().Command.String()
		assert.Contains(mt, cmd, "$pull")
		assert.Contains(mt, cmd, "resources.documents")
	})

	mt.Run("missing group", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := newStore(mt).RemoveResource(context.Background(), "nope", "d1", models.KindDocuments)
		assert.ErrorIs(mt, err, ErrGroupNotFound)
	})
}

func TestEnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("creates both indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, newStore(mt).EnsureIndexes(context.Background()))
		evt := mt.GetStartedEvent()
		assert.Equal(mt, "createIndexes", evt.CommandName)
		cmd := evt.Command.String()
		assert.Contains(mt, cmd, "resources.documents.id")
		assert.Contains(mt, cmd, "resources.files.id")
	})
}
