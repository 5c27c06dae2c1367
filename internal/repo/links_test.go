package repo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/abdusco/shortlink/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linksFixture struct {
	links *LinksRepo
	users *UsersRepo
}

func newLinksFixture(t *testing.T) linksFixture {
	d := openTestDB(t, ShortenerSchema)
	return linksFixture{links: NewLinksRepo(d), users: NewUsersRepo(d)}
}

func (f linksFixture) createUser(t *testing.T, email string) int64 {
	t.Helper()
	account, err := f.users.Create(context.Background(), email, "hash")
	require.NoError(t, err)
	return account.ID
}

func TestLinksRepo_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	f := newLinksFixture(t)

	id, err := f.links.Insert(ctx, NewLink{
		FullURL:   "https://example.com",
		ShortCode: "abc123",
		DeviceID:  ptr("device-1"),
		Title:     ptr("Example"),
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	link, err := f.links.FindByCode(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, id, link.ID)
	assert.Equal(t, "https://example.com", link.FullURL)
	assert.Nil(t, link.OwnerID)
	require.NotNil(t, link.DeviceID)
	assert.Equal(t, "device-1", *link.DeviceID)
	require.NotNil(t, link.Title)
	assert.Equal(t, "Example", *link.Title)
	assert.False(t, link.CreatedAt.IsZero())

	exists, err := f.links.CodeExists(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = f.links.CodeExists(ctx, "zzz999")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.links.FindByCode(ctx, "zzz999")
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)
}

func TestLinksRepo_InsertDuplicateCode(t *testing.T) {
	ctx := context.Background()
	f := newLinksFixture(t)

	_, err := f.links.Insert(ctx, NewLink{FullURL: "https://a.example", ShortCode: "dup001", DeviceID: ptr("d")})
	require.NoError(t, err)

	_, err = f.links.Insert(ctx, NewLink{FullURL: "https://b.example", ShortCode: "dup001", DeviceID: ptr("d")})
	assert.ErrorIs(t, err, internal.ErrCodeExists)
}

func TestLinksRepo_InsertRequiresAttribution(t *testing.T) {
	f := newLinksFixture(t)

	_, err := f.links.Insert(context.Background(), NewLink{FullURL: "https://a.example", ShortCode: "orphan"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, internal.ErrCodeExists)
}

func TestLinksRepo_ConcurrentInsertSameCode(t *testing.T) {
	ctx := context.Background()
	f := newLinksFixture(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.links.Insert(ctx, NewLink{
				FullURL:   fmt.Sprintf("https://example.com/%d", i),
				ShortCode: "race01",
				DeviceID:  ptr("device"),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case assert.ErrorIs(t, err, internal.ErrCodeExists):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
}

func TestLinksRepo_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newLinksFixture(t)
	owner := f.createUser(t, "owner@example.com")

	for _, code := range []string{"first1", "secnd2", "third3"} {
		_, err := f.links.Insert(ctx, NewLink{FullURL: "https://example.com/" + code, ShortCode: code, OwnerID: &owner})
		require.NoError(t, err)
	}
	_, err := f.links.Insert(ctx, NewLink{FullURL: "https://example.com/dev", ShortCode: "device", DeviceID: ptr("d1")})
	require.NoError(t, err)

	links, err := f.links.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, []string{"third3", "secnd2", "first1"}, []string{links[0].ShortCode, links[1].ShortCode, links[2].ShortCode})

	links, err = f.links.ListByDevice(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "device", links[0].ShortCode)

	links, err = f.links.ListByDevice(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestLinksRepo_OwnershipGatedMutations(t *testing.T) {
	ctx := context.Background()
	f := newLinksFixture(t)
	owner := f.createUser(t, "owner@example.com")
	stranger := f.createUser(t, "stranger@example.com")

	id, err := f.links.Insert(ctx, NewLink{FullURL: "https://example.com", ShortCode: "owned1", OwnerID: &owner})
	require.NoError(t, err)

	affected, err := f.links.UpdateTitle(ctx, id, stranger, ptr("hijacked"))
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = f.links.UpdateTitle(ctx, id+100, owner, ptr("missing"))
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = f.links.UpdateTitle(ctx, id, owner, ptr("Renamed"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	link, err := f.links.FindOwned(ctx, id, owner)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", *link.Title)

	_, err = f.links.FindOwned(ctx, id, stranger)
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)

	affected, err = f.links.Delete(ctx, id, stranger)
	require.NoError(t, err)
	assert.Zero(t, affected)

	affected, err = f.links.Delete(ctx, id, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	_, err = f.links.FindByCode(ctx, "owned1")
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)
}

func TestLinksRepo_MergeDeviceToOwner(t *testing.T) {
	ctx := context.Background()
	f := newLinksFixture(t)
	owner := f.createUser(t, "owner@example.com")
	other := f.createUser(t, "other@example.com")

	for _, code := range []string{"devA01", "devA02"} {
		_, err := f.links.Insert(ctx, NewLink{FullURL: "https://example.com", ShortCode: code, DeviceID: ptr("device-a")})
		require.NoError(t, err)
	}
	_, err := f.links.Insert(ctx, NewLink{FullURL: "https://example.com", ShortCode: "devB01", DeviceID: ptr("device-b")})
	require.NoError(t, err)

	merged, err := f.links.MergeDeviceToOwner(ctx, "device-a", owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), merged)

	owned, err := f.links.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
	for _, link := range owned {
		assert.Nil(t, link.DeviceID)
	}

	remaining, err := f.links.ListByDevice(ctx, "device-a")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// second merge of the same device is a no-op, even for another owner
	merged, err = f.links.MergeDeviceToOwner(ctx, "device-a", owner)
	require.NoError(t, err)
	assert.Zero(t, merged)

	merged, err = f.links.MergeDeviceToOwner(ctx, "device-a", other)
	require.NoError(t, err)
	assert.Zero(t, merged)

	untouched, err := f.links.ListByDevice(ctx, "device-b")
	require.NoError(t, err)
	assert.Len(t, untouched, 1)
}
