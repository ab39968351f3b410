package seed

import (
	"testing"

	"helpboard/internal/models"
	"helpboard/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoadFixtures(t *testing.T) {
	f, err := LoadFixtures()
	require.NoError(t, err)
	require.NotEmpty(t, f.Neighbours)
	for _, n := range f.Neighbours {
		assert.NotEmpty(t, n.Email)
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	opts := Options{ExtraNeighbours: 3, ItemsPerNeighbour: 2, RandSeed: 7}

	fixtures, err := LoadFixtures()
	require.NoError(t, err)
	wantUsers := len(fixtures.Neighbours) + opts.ExtraNeighbours

	first, err := Run(db, opts)
	require.NoError(t, err)
	assert.Equal(t, wantUsers, first.Neighbours)
	assert.Zero(t, first.Skipped)

	var users, items int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Item{}).Count(&items).Error)
	assert.Equal(t, int64(wantUsers), users)

	second, err := Run(db, opts)
	require.NoError(t, err)
	assert.Zero(t, second.Neighbours)
	assert.Equal(t, wantUsers, second.Skipped)

	var usersAfter, itemsAfter int64
	require.NoError(t, db.Model(&models.User{}).Count(&usersAfter).Error)
	require.NoError(t, db.Model(&models.Item{}).Count(&itemsAfter).Error)
	assert.Equal(t, users, usersAfter)
	assert.Equal(t, items, itemsAfter)
}

func TestRun_DemoPasswordWorks(t *testing.T) {
	db := testutil.NewTestDB(t)
	_, err := Run(db, Options{RandSeed: 1})
	require.NoError(t, err)

	var u models.User
	require.NoError(t, db.Where("email = ?", "ada@helpboard.local").First(&u).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(DemoPassword)))

	var items []models.Item
	require.NoError(t, db.Where("owner_id = ?", u.ID).Find(&items).Error)
	assert.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, models.ItemAvailable, it.Status)
	}
}
