package businessflow_test

import (
	"testing"
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactFlow_CreateContact(t *testing.T) {
	env := newFlowEnv(t)
	_, uc := env.user(t)

	t.Run("creates trimmed active contact", func(t *testing.T) {
		resp, err := env.contacts.CreateContact(env.ctx, uc, &dto.CreateContactRequest{
			Name:  "  Luis Pérez ",
			Phone: " +34600111222 ",
			Email: utils.ToPtr("luis@example.com"),
			Tags:  []string{"vip", " ", "madrid"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Luis Pérez", resp.Name)
		assert.Equal(t, "+34600111222", resp.Phone)
		assert.Equal(t, "active", resp.Status)
		assert.Equal(t, []string{"vip", "madrid"}, resp.Tags)
	})

	t.Run("duplicate phone for same user", func(t *testing.T) {
		_, err := env.contacts.CreateContact(env.ctx, uc, &dto.CreateContactRequest{Name: "Otro", Phone: "+34600111222"})
		require.Error(t, err)
		assert.True(t, businessflow.IsDuplicatePhone(err))
		assert.Equal(t, "DUPLICATE_PHONE", businessflow.ErrorCode(err))
	})

	t.Run("same phone for another user is allowed", func(t *testing.T) {
		_, other := env.user(t)
		_, err := env.contacts.CreateContact(env.ctx, other, &dto.CreateContactRequest{Name: "Luis", Phone: "+34600111222"})
		require.NoError(t, err)
	})

	t.Run("missing name or phone", func(t *testing.T) {
		_, err := env.contacts.CreateContact(env.ctx, uc, &dto.CreateContactRequest{Name: " ", Phone: "+3411"})
		assert.True(t, businessflow.IsValidation(err))

		_, err = env.contacts.CreateContact(env.ctx, uc, &dto.CreateContactRequest{Name: "Ana", Phone: ""})
		assert.True(t, businessflow.IsValidation(err))
	})

	t.Run("invalid status", func(t *testing.T) {
		_, err := env.contacts.CreateContact(env.ctx, uc, &dto.CreateContactRequest{Name: "Ana", Phone: "+3499", Status: utils.ToPtr("blocked")})
		require.Error(t, err)
		assert.Equal(t, "INVALID_CONTACT_STATUS", businessflow.ErrorCode(err))
	})
}

func TestContactFlow_GetAndUpdate(t *testing.T) {
	env := newFlowEnv(t)
	user, uc := env.user(t)
	first := env.contact(t, user.ID, "Ana", "+111")
	second := env.contact(t, user.ID, "Bea", "+222")

	t.Run("other users cannot see the contact", func(t *testing.T) {
		_, stranger := env.user(t)
		_, err := env.contacts.GetContact(env.ctx, stranger, first.ID)
		assert.True(t, businessflow.IsContactNotFound(err))
	})

	t.Run("update to an existing phone fails", func(t *testing.T) {
		_, err := env.contacts.UpdateContact(env.ctx, uc, first.ID, &dto.UpdateContactRequest{Phone: utils.ToPtr(second.Phone)})
		assert.True(t, businessflow.IsDuplicatePhone(err))
	})

	t.Run("keeping the same phone is not a duplicate", func(t *testing.T) {
		resp, err := env.contacts.UpdateContact(env.ctx, uc, first.ID, &dto.UpdateContactRequest{
			Phone:  utils.ToPtr(first.Phone),
			Name:   utils.ToPtr("Ana María"),
			Status: utils.ToPtr("inactive"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Ana María", resp.Name)
		assert.Equal(t, "inactive", resp.Status)
	})

	t.Run("nil fields are left untouched", func(t *testing.T) {
		resp, err := env.contacts.UpdateContact(env.ctx, uc, second.ID, &dto.UpdateContactRequest{Notes: utils.ToPtr("llamar")})
		require.NoError(t, err)
		assert.Equal(t, "Bea", resp.Name)
		assert.Equal(t, "+222", resp.Phone)
		require.NotNil(t, resp.Notes)
		assert.Equal(t, "llamar", *resp.Notes)
	})
}

func TestContactFlow_Delete(t *testing.T) {
	env := newFlowEnv(t)
	owner, uc := env.user(t)
	stranger, _ := env.user(t)

	mine := env.contact(t, owner.ID, "Ana", "+111")
	mine2 := env.contact(t, owner.ID, "Bea", "+222")
	theirs := env.contact(t, stranger.ID, "Carla", "+333")

	t.Run("deleting a foreign contact removes nothing", func(t *testing.T) {
		n, err := env.contacts.DeleteContact(env.ctx, uc, theirs.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("bulk delete only counts owned ids", func(t *testing.T) {
		n, err := env.contacts.BulkDeleteContacts(env.ctx, uc, []uint{mine.ID, mine2.ID, theirs.ID, 9999})
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		still, err := env.contactRepo.ByID(env.ctx, theirs.ID)
		require.NoError(t, err)
		assert.NotNil(t, still)
	})

	t.Run("empty bulk request", func(t *testing.T) {
		_, err := env.contacts.BulkDeleteContacts(env.ctx, uc, nil)
		assert.True(t, businessflow.IsValidation(err))
	})

	t.Run("deleted contact leaves campaign recipients", func(t *testing.T) {
		c := env.contact(t, owner.ID, "Dora", "+444")
		campaign := env.campaign(t, owner.ID, models.CampaignStatusDraft, c.ID)

		n, err := env.contacts.DeleteContact(env.ctx, uc, c.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		assert.Empty(t, env.recipientIDs(t, campaign.ID))
	})
}

func TestContactFlow_ListAndStats(t *testing.T) {
	env := newFlowEnv(t)
	user, uc := env.user(t)

	for i, name := range []string{"Ana", "Bea", "Carla", "Dora", "Elena"} {
		c := env.contact(t, user.ID, name, "+10"+string(rune('0'+i)), "vip")
		if name == "Dora" {
			require.NoError(t, env.db.DB.Model(c).Update("status", models.ContactStatusInactive).Error)
		}
	}
	old := env.contact(t, user.ID, "Vieja", "+999")
	require.NoError(t, env.db.DB.Model(old).Update("created_at", time.Now().UTC().AddDate(0, 0, -60)).Error)

	t.Run("pagination", func(t *testing.T) {
		resp, err := env.contacts.ListContacts(env.ctx, uc, &dto.ListContactsRequest{Page: 2, PerPage: 4})
		require.NoError(t, err)
		assert.Len(t, resp.Contacts, 2)
		assert.Equal(t, int64(6), resp.Pagination.Total)
		assert.Equal(t, 2, resp.Pagination.Pages)
		assert.False(t, resp.Pagination.HasNext)
		assert.True(t, resp.Pagination.HasPrev)
		assert.Equal(t, 2, resp.Pagination.Page)
	})

	t.Run("search by name", func(t *testing.T) {
		resp, err := env.contacts.ListContacts(env.ctx, uc, &dto.ListContactsRequest{Search: "carl"})
		require.NoError(t, err)
		require.Len(t, resp.Contacts, 1)
		assert.Equal(t, "Carla", resp.Contacts[0].Name)
	})

	t.Run("status and tag filters", func(t *testing.T) {
		resp, err := env.contacts.ListContacts(env.ctx, uc, &dto.ListContactsRequest{Status: "inactive"})
		require.NoError(t, err)
		require.Len(t, resp.Contacts, 1)
		assert.Equal(t, "Dora", resp.Contacts[0].Name)

		resp, err = env.contacts.ListContacts(env.ctx, uc, &dto.ListContactsRequest{Tag: "vip"})
		require.NoError(t, err)
		assert.Len(t, resp.Contacts, 5)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := env.contacts.GetContactStats(env.ctx, uc)
		require.NoError(t, err)
		assert.Equal(t, int64(6), stats.TotalContacts)
		assert.Equal(t, int64(5), stats.ActiveContacts)
		assert.Equal(t, int64(1), stats.InactiveContacts)
		assert.Equal(t, int64(5), stats.RecentContacts)
	})
}
