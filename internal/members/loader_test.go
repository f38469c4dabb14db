package members_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/EmpoweredVote/mp-sync/internal/members"
	"github.com/EmpoweredVote/mp-sync/internal/members/parl"
)

func fixtureFields(t *testing.T) parl.Fields {
	t.Helper()
	raw, err := os.ReadFile("parl/testdata/mp_99.html")
	require.NoError(t, err)
	return parl.ExtractBytes(raw)
}

func TestLoadCreatesMember(t *testing.T) {
	store := newMemStore()
	ontario := store.addProvince("Ontario")
	york := store.addRiding("488", "York Centre")
	pub := &recordingPublisher{}
	loader := members.NewLoader(store, zap.NewNop(), pub)

	m, err := loader.Load(context.Background(), fixtureFields(t))
	require.NoError(t, err)

	assert.Equal(t, "99", m.ExternalID)
	assert.Equal(t, "Mark Adler", *m.Name)
	assert.Equal(t, "Mark.Adler@parl.gc.ca", *m.Email)
	assert.Equal(t, "M3H 2S1", *m.ConstituencyPostalCode)
	assert.True(t, m.Active)
	assert.Equal(t, members.PlaceholderImageRef, m.ImageRef)

	require.NotNil(t, m.ProvinceID)
	assert.Equal(t, ontario.ID, *m.ProvinceID)
	require.NotNil(t, m.RidingID)
	assert.Equal(t, york.ID, *m.RidingID)
	require.NotNil(t, m.Party)
	assert.Equal(t, "Conservative", m.Party.Name)

	assert.Equal(t, []string{members.EventMemberLoaded}, pub.types())
}

func TestLoadIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.addProvince("Ontario")
	store.addRiding("488", "York Centre")
	loader := members.NewLoader(store, zap.NewNop(), nil)
	fields := fixtureFields(t)

	first, err := loader.Load(context.Background(), fields)
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), fields)
	require.NoError(t, err)

	assert.Equal(t, 1, store.count())
	assert.Len(t, store.parties, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, *first.PartyID, *second.PartyID)
	assert.Equal(t, *first.ProvinceID, *second.ProvinceID)
	assert.Equal(t, *first.RidingID, *second.RidingID)
}

func TestLoadUnresolvedReferencesStayUnset(t *testing.T) {
	store := newMemStore()
	loader := members.NewLoader(store, zap.NewNop(), nil)

	m, err := loader.Load(context.Background(), fixtureFields(t))
	require.NoError(t, err)

	assert.Nil(t, m.ProvinceID)
	assert.Nil(t, m.RidingID)
	assert.NotNil(t, m.PartyID)
}

func TestLoadAbsentFieldsKeepExistingValues(t *testing.T) {
	store := newMemStore()
	store.put(members.Member{
		ExternalID: "99",
		Name:       ptr("Mark Adler"),
		Email:      ptr("old@parl.gc.ca"),
		Twitter:    ptr("@markadler"),
		Active:     false,
	})
	loader := members.NewLoader(store, zap.NewNop(), nil)

	m, err := loader.Load(context.Background(), parl.Fields{
		ExternalID:        ptr("99"),
		PreferredLanguage: ptr("English"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Mark Adler", *m.Name)
	assert.Equal(t, "old@parl.gc.ca", *m.Email)
	assert.Equal(t, "English", *m.PreferredLanguage)
	assert.Equal(t, "@markadler", *m.Twitter)
	assert.True(t, m.Active)
	assert.Equal(t, 1, store.count())
}

func TestLoadSavesMalformedContactFields(t *testing.T) {
	store := newMemStore()
	core, logs := observer.New(zap.WarnLevel)
	loader := members.NewLoader(store, zap.New(core), nil)

	m, err := loader.Load(context.Background(), parl.Fields{
		ExternalID: ptr("42"),
		Name:       ptr("Someone"),
		Email:      ptr("not-an-email"),
		Website:    ptr("www dot example"),
	})
	require.NoError(t, err)
	require.NotNil(t, m)

	saved, ok := store.get("42")
	require.True(t, ok)
	assert.Equal(t, "not-an-email", *saved.Email)
	assert.Equal(t, "www dot example", *saved.Website)

	warned := logs.FilterMessage("member has malformed fields").All()
	require.Len(t, warned, 1)
	msgs, ok := warned[0].ContextMap()["messages"].([]interface{})
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestLoadSavesMemberWithoutName(t *testing.T) {
	store := newMemStore()
	loader := members.NewLoader(store, zap.NewNop(), nil)

	_, err := loader.Load(context.Background(), parl.Fields{
		ExternalID:        ptr("43"),
		PreferredLanguage: ptr("French"),
	})
	require.NoError(t, err)

	saved, ok := store.get("43")
	require.True(t, ok)
	assert.Nil(t, saved.Name)
	assert.Equal(t, "French", *saved.PreferredLanguage)
}

func TestLoadAbsentRidingKeepsReference(t *testing.T) {
	store := newMemStore()
	riding := store.addRiding("89010", "Nepean")
	loader := members.NewLoader(store, zap.NewNop(), nil)

	_, err := loader.Load(context.Background(), parl.Fields{
		ExternalID:             ptr("44"),
		ConstituencyExternalID: ptr("89010"),
	})
	require.NoError(t, err)

	m, err := loader.Load(context.Background(), parl.Fields{
		ExternalID: ptr("44"),
		Name:       ptr("Chandra Arya"),
	})
	require.NoError(t, err)
	require.NotNil(t, m.RidingID)
	assert.Equal(t, riding.ID, *m.RidingID)

	m, err = loader.Load(context.Background(), parl.Fields{
		ExternalID:             ptr("44"),
		ConstituencyExternalID: ptr("00000"),
	})
	require.NoError(t, err)
	assert.Nil(t, m.RidingID)
}

func TestLoadMissingExternalIDIsValidationFailure(t *testing.T) {
	store := newMemStore()
	loader := members.NewLoader(store, zap.NewNop(), nil)

	m, err := loader.Load(context.Background(), parl.Fields{Name: ptr("Nobody")})
	require.Error(t, err)
	assert.True(t, members.IsValidation(err))
	assert.NotNil(t, m)
	assert.Equal(t, 0, store.count())
}

func TestLoadStoreErrorIsNotValidation(t *testing.T) {
	store := newMemStore()
	boom := errors.New("connection reset")
	store.saveErr = func(*members.Member) error { return boom }
	loader := members.NewLoader(store, zap.NewNop(), nil)

	_, err := loader.Load(context.Background(), fixtureFields(t))
	require.ErrorIs(t, err, boom)
	assert.False(t, members.IsValidation(err))
}
