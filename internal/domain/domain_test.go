package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- SurfaceKey tests ---

func TestSurfaceKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  SurfaceKey
		want string
	}{
		{
			name: "with owner",
			key:  SurfaceKey{Surface: SurfaceWidget, OwnerID: "user-1"},
			want: "user-1:widget",
		},
		{
			name: "without owner",
			key:  SurfaceKey{Surface: SurfacePage},
			want: "page",
		},
		{
			name: "empty",
			key:  SurfaceKey{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestSurfaceKeysDoNotCollide(t *testing.T) {
	widget := SurfaceKey{Surface: SurfaceWidget, OwnerID: "u"}
	page := SurfaceKey{Surface: SurfacePage, OwnerID: "u"}
	other := SurfaceKey{Surface: SurfaceWidget, OwnerID: "v"}

	assert.NotEqual(t, widget.String(), page.String())
	assert.NotEqual(t, widget.String(), other.String())
}

// --- Role tests ---

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}

// --- Session tests ---

func TestSessionLastActivity(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(2 * time.Hour)

	assert.Equal(t, updated, Session{CreatedAt: created, UpdatedAt: updated}.LastActivity())
	assert.Equal(t, created, Session{CreatedAt: created}.LastActivity())
}

// --- Block JSON tests ---

func TestBlockJSON_ParagraphOmitsOtherFields(t *testing.T) {
	data, err := json.Marshal(Block{Kind: BlockParagraph, Text: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"paragraph","text":"hi"}`, string(data))
}

func TestBlockJSON_ProductCard(t *testing.T) {
	b := Block{Kind: BlockProductCard, Card: &ProductCard{Name: "Oud", Price: "₦10,000"}}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"product_card","card":{"name":"Oud","price":"₦10,000"}}`, string(data))
}

func TestMessageJSON_OmitsEmptyImageRef(t *testing.T) {
	data, err := json.Marshal(Message{ID: "m1", Role: RoleUser, Content: "hello"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "imageRef")
}
