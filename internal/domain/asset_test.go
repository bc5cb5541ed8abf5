package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

func TestNewAssetRef(t *testing.T) {
	t.Parallel()

	key, card, empty := "k-1", "c-1", ""

	tests := []struct {
		name     string
		keyID    *string
		cardID   *string
		wantKind AssetKind
		wantErr  bool
	}{
		{name: "key", keyID: &key, wantKind: AssetKindKey},
		{name: "card", cardID: &card, wantKind: AssetKindCard},
		{name: "both", keyID: &key, cardID: &card, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "empty strings count as missing", keyID: &empty, cardID: &empty, wantErr: true},
		{name: "empty key with card", keyID: &empty, cardID: &card, wantKind: AssetKindCard},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ref, err := NewAssetRef(tt.keyID, tt.cardID)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
				assert.True(t, ref.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ref.Kind())
		})
	}
}

func TestAssetRef_Accessors(t *testing.T) {
	t.Parallel()

	k := KeyRef("k-1")
	require.NotNil(t, k.KeyID())
	assert.Equal(t, "k-1", *k.KeyID())
	assert.Nil(t, k.CardID())

	c := CardRef("c-1")
	require.NotNil(t, c.CardID())
	assert.Equal(t, "c-1", *c.CardID())
	assert.Nil(t, c.KeyID())

	assert.True(t, AssetRef{}.IsZero())
}

func TestKey_CheckOutAndIn(t *testing.T) {
	t.Parallel()

	k := &Key{KeyNumber: "K-100", Status: KeyStatusAvailable, AuthorizedDepartmentIDs: []string{"d-1"}}
	assert.True(t, k.AuthorizesDepartment("d-1"))
	assert.False(t, k.AuthorizesDepartment("d-2"))

	require.NoError(t, k.CheckOut())
	assert.Equal(t, KeyStatusCheckedOut, k.Status)
	assert.True(t, apperrors.HasCode(k.CheckOut(), apperrors.CodeConflict))

	require.NoError(t, k.CheckIn())
	assert.Equal(t, KeyStatusAvailable, k.Status)
	assert.True(t, apperrors.HasCode(k.CheckIn(), apperrors.CodeConflict))
}

func TestAccessCard_CanCheckOut(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name    string
		card    AccessCard
		wantErr bool
	}{
		{name: "active without expiry", card: AccessCard{Status: CardStatusActive}},
		{name: "active not yet expired", card: AccessCard{Status: CardStatusActive, ExpiryDate: &future}},
		{name: "expired", card: AccessCard{Status: CardStatusActive, ExpiryDate: &past}, wantErr: true},
		{name: "inactive", card: AccessCard{Status: CardStatusInactive}, wantErr: true},
		{name: "lost", card: AccessCard{Status: CardStatusLost}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.card.CanCheckOut(now)
			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAccessCard_ActivateAndExtend(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	c := &AccessCard{Status: CardStatusInactive, ExpiryDate: &past}
	assert.True(t, apperrors.HasCode(c.Activate(now), apperrors.CodeConflict))

	assert.True(t, apperrors.HasCode(c.ExtendExpiry(past, now), apperrors.CodeConflict))
	require.NoError(t, c.ExtendExpiry(now.Add(30*24*time.Hour), now))
	require.NoError(t, c.Activate(now))
	assert.Equal(t, CardStatusActive, c.Status)
}

func TestRole_Satisfies(t *testing.T) {
	t.Parallel()

	roles := []Role{RoleAuditor, RoleSecurityStaff, RoleAdmin}
	for i, have := range roles {
		for j, need := range roles {
			assert.Equal(t, i >= j, have.Satisfies(need), "%s vs %s", have, need)
		}
	}
	assert.False(t, Role("janitor").Satisfies(RoleAuditor))
	assert.False(t, Role("").Valid())
}
