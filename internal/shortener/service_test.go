package shortener

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/cache"
	"github.com/abdusco/shortlink/internal/db"
	"github.com/abdusco/shortlink/internal/notify"
	"github.com/abdusco/shortlink/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}

type fixture struct {
	svc      *Service
	links    *repo.LinksRepo
	users    *repo.UsersRepo
	cache    *cache.Memory
	notifier *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	d, err := db.Open(context.Background(), db.Options{URL: filepath.Join(t.TempDir(), "shortener.db")}, repo.ShortenerSchema)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	f := fixture{
		links:    repo.NewLinksRepo(d),
		users:    repo.NewUsersRepo(d),
		cache:    cache.NewMemory(100, 0),
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.links, f.cache, f.notifier, Options{BaseURL: "http://sho.rt/"})
	return f
}

func (f fixture) createUser(t *testing.T, email string) int64 {
	t.Helper()
	account, err := f.users.Create(context.Background(), email, "hash")
	require.NoError(t, err)
	return account.ID
}

func TestService_Shorten_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		input  ShortenInput
		reason string
	}{
		{"missing url", ShortenInput{}, "full_url is required"},
		{"blank url", ShortenInput{FullURL: "   "}, "full_url is required"},
		{"relative url", ShortenInput{FullURL: "/just/a/path"}, "full_url must be an absolute http or https URL"},
		{"unsupported scheme", ShortenInput{FullURL: "ftp://example.com/file"}, "full_url must be an absolute http or https URL"},
		{"missing host", ShortenInput{FullURL: "http://"}, "full_url must be an absolute http or https URL"},
		{"too long", ShortenInput{FullURL: "https://example.com/" + strings.Repeat("a", MaxURLLength)}, "full_url must be at most 2000 characters"},
		{"title too long", ShortenInput{FullURL: "https://example.com", Title: strings.Repeat("t", MaxTitleLength+1)}, "title must be at most 255 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Shorten(context.Background(), tt.input, internal.Anonymous("device-1"))
			var validationErr *internal.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.reason, validationErr.Reason)
		})
	}

	links, err := f.links.ListByDevice(context.Background(), "device-1")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestService_Shorten_URLLength(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const prefix = "https://example.com/"

	atLimit := prefix + strings.Repeat("a", MaxURLLength-len(prefix))
	res, err := f.svc.Shorten(ctx, ShortenInput{FullURL: atLimit}, internal.Anonymous("d"))
	require.NoError(t, err)
	assert.Equal(t, atLimit, res.Link.FullURL)

	// length is counted in characters, not bytes
	multibyte := prefix + strings.Repeat("é", MaxURLLength-len(prefix))
	require.Greater(t, len(multibyte), MaxURLLength)
	_, err = f.svc.Shorten(ctx, ShortenInput{FullURL: multibyte}, internal.Anonymous("d"))
	require.NoError(t, err)

	_, err = f.svc.Shorten(ctx, ShortenInput{FullURL: multibyte + "é"}, internal.Anonymous("d"))
	var validationErr *internal.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "full_url must be at most 2000 characters", validationErr.Reason)
}

func TestService_Shorten_Anonymous(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com/a"}, internal.Identity{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.IssuedDeviceID)
	assert.Len(t, res.Link.ShortCode, 6)
	assert.Equal(t, "http://sho.rt/"+res.Link.ShortCode, res.ShortURL)
	assert.True(t, strings.HasPrefix(res.QRCode, "data:image/png;base64,"))
	assert.Nil(t, res.Link.Title)
	assert.Nil(t, res.Link.OwnerID)

	// the minted device owns the link
	history, err := f.svc.History(ctx, internal.Anonymous(res.IssuedDeviceID))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.Link.ID, history[0].ID)

	// an existing device is reused rather than replaced
	res2, err := f.svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com/b", Title: "  B  "}, internal.Anonymous(res.IssuedDeviceID))
	require.NoError(t, err)
	assert.Empty(t, res2.IssuedDeviceID)
	require.NotNil(t, res2.Link.Title)
	assert.Equal(t, "B", *res2.Link.Title)

	history, err = f.svc.History(ctx, internal.Anonymous(res.IssuedDeviceID))
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestService_Shorten_Authenticated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ownerID := f.createUser(t, "a@example.com")

	identity := internal.Authenticated(ownerID, "a@example.com")
	identity.DeviceID = "device-1"

	res, err := f.svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com"}, identity)
	require.NoError(t, err)
	assert.Empty(t, res.IssuedDeviceID)
	require.NotNil(t, res.Link.OwnerID)
	assert.Equal(t, ownerID, *res.Link.OwnerID)

	// owned links are not visible through the device
	deviceLinks, err := f.svc.History(ctx, internal.Anonymous("device-1"))
	require.NoError(t, err)
	assert.Empty(t, deviceLinks)

	ownerLinks, err := f.svc.History(ctx, identity)
	require.NoError(t, err)
	assert.Len(t, ownerLinks, 1)
}

func TestService_Shorten_RetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.links.Insert(ctx, repo.NewLink{FullURL: "https://taken.example", ShortCode: "AAAAAA", DeviceID: ptr("d")})
	require.NoError(t, err)

	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	f.svc.generate = func(int) string {
		code := codes[0]
		codes = codes[1:]
		return code
	}

	res, err := f.svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com"}, internal.Anonymous("d"))
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", res.Link.ShortCode)
	assert.Empty(t, codes)
}

// racingStore reports every code as free but rejects the insert, as if a
// concurrent request always got there first.
type racingStore struct {
	LinkStore
	inserts int
}

func (s *racingStore) CodeExists(context.Context, string) (bool, error) {
	return false, nil
}

func (s *racingStore) Insert(context.Context, repo.NewLink) (int64, error) {
	s.inserts++
	return 0, internal.ErrCodeExists
}

func TestService_Shorten_Exhausted(t *testing.T) {
	store := &racingStore{}
	svc := NewService(store, cache.NewMemory(10, 0), notify.Nop{}, Options{MaxCodeAttempts: 5})

	_, err := svc.Shorten(context.Background(), ShortenInput{FullURL: "https://example.com"}, internal.Anonymous("d"))
	require.ErrorIs(t, err, internal.ErrCodeSpaceExhausted)
	assert.Equal(t, 5, store.inserts)
}

func TestService_Shorten_QRFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// too long to fit in the largest QR symbol
	svc := NewService(f.links, f.cache, f.notifier, Options{BaseURL: "https://example.com/" + strings.Repeat("a", 3000)})

	_, err := svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com"}, internal.Anonymous("d"))
	require.Error(t, err)

	links, err := f.links.ListByDevice(ctx, "d")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestService_Shorten_ConcurrentCodesAreUnique(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// a tiny code space forces collisions between workers
	f.svc.opts.CodeLength = 2

	const workers = 20
	var wg sync.WaitGroup
	codes := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com"}, internal.Anonymous("d"))
			if assert.NoError(t, err) {
				codes <- res.Link.ShortCode
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for code := range codes {
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
	assert.Len(t, seen, workers)
}

func TestService_Resolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com/target"}, internal.Anonymous("d"))
	require.NoError(t, err)
	code := res.Link.ShortCode

	fullURL, err := f.svc.Resolve(ctx, code, Visit{IP: "203.0.113.7", UserAgent: "curl/8.0"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/target", fullURL)

	cached, ok := f.cache.Get(ctx, code)
	assert.True(t, ok)
	assert.Equal(t, fullURL, cached)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, internal.EventRedirect, events[0].EventType)
	assert.Equal(t, code, events[0].ShortCode)
	assert.Equal(t, "203.0.113.7", events[0].Payload["ip_address"])
	assert.Equal(t, "curl/8.0", events[0].Payload["user_agent"])

	// served from cache, still reported
	_, err = f.svc.Resolve(ctx, code, Visit{})
	require.NoError(t, err)
	assert.Len(t, f.notifier.Events(), 2)
}

func TestService_Resolve_Unknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, code := range []string{"nope42", "", "favicon.ico", strings.Repeat("a", 64)} {
		_, err := f.svc.Resolve(ctx, code, Visit{})
		assert.ErrorIs(t, err, internal.ErrLinkNotFound, code)
	}
	assert.Empty(t, f.notifier.Events())
}

func TestService_History_NoIdentity(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Shorten(context.Background(), ShortenInput{FullURL: "https://example.com"}, internal.Anonymous("d"))
	require.NoError(t, err)

	links, err := f.svc.History(context.Background(), internal.Identity{})
	require.NoError(t, err)
	assert.NotNil(t, links)
	assert.Empty(t, links)
}

func TestService_UpdateTitle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.createUser(t, "alice@example.com")
	bob := f.createUser(t, "bob@example.com")

	res, err := f.svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com", Title: "old"}, internal.Authenticated(alice, "alice@example.com"))
	require.NoError(t, err)
	id := res.Link.ID

	title, err := f.svc.UpdateTitle(ctx, id, alice, "new")
	require.NoError(t, err)
	require.NotNil(t, title)
	assert.Equal(t, "new", *title)

	_, err = f.svc.UpdateTitle(ctx, id, bob, "stolen")
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)

	_, err = f.svc.UpdateTitle(ctx, id+100, alice, "missing")
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)

	_, err = f.svc.UpdateTitle(ctx, id, alice, strings.Repeat("x", MaxTitleLength+1))
	var validationErr *internal.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	// empty clears the title
	title, err = f.svc.UpdateTitle(ctx, id, alice, "")
	require.NoError(t, err)
	assert.Nil(t, title)

	link, err := f.links.FindByCode(ctx, res.Link.ShortCode)
	require.NoError(t, err)
	assert.Nil(t, link.Title)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.createUser(t, "alice@example.com")
	bob := f.createUser(t, "bob@example.com")

	res, err := f.svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com"}, internal.Authenticated(alice, "alice@example.com"))
	require.NoError(t, err)
	code := res.Link.ShortCode

	// warm the cache
	_, err = f.svc.Resolve(ctx, code, Visit{})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, res.Link.ID, bob)
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)

	require.NoError(t, f.svc.Delete(ctx, res.Link.ID, alice))

	_, ok := f.cache.Get(ctx, code)
	assert.False(t, ok)

	_, err = f.svc.Resolve(ctx, code, Visit{})
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)

	err = f.svc.Delete(ctx, res.Link.ID, alice)
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)
}

// deletingStore runs onFind once, right after a code has been loaded from
// the database and before the caller gets to cache it.
type deletingStore struct {
	*repo.LinksRepo
	once   sync.Once
	onFind func()
}

func (s *deletingStore) FindByCode(ctx context.Context, code string) (*internal.Link, error) {
	link, err := s.LinksRepo.FindByCode(ctx, code)
	if err == nil {
		s.once.Do(s.onFind)
	}
	return link, err
}

func TestService_Resolve_ConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	alice := f.createUser(t, "alice@example.com")

	store := &deletingStore{LinksRepo: f.links}
	svc := NewService(store, f.cache, f.notifier, Options{BaseURL: "http://sho.rt/"})

	res, err := svc.Shorten(ctx, ShortenInput{FullURL: "https://example.com/doomed"}, internal.Authenticated(alice, "alice@example.com"))
	require.NoError(t, err)
	code := res.Link.ShortCode

	store.onFind = func() {
		require.NoError(t, svc.Delete(ctx, res.Link.ID, alice))
	}

	// the in-flight lookup still answers with what it read
	fullURL, err := svc.Resolve(ctx, code, Visit{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/doomed", fullURL)

	_, ok := f.cache.Get(ctx, code)
	assert.False(t, ok)

	_, err = svc.Resolve(ctx, code, Visit{})
	assert.ErrorIs(t, err, internal.ErrLinkNotFound)
	assert.Len(t, f.notifier.Events(), 1)
}

func TestMerger_MergeOnAuth(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	merger := NewMerger(f.links)
	ownerID := f.createUser(t, "a@example.com")

	for _, u := range []string{"https://one.example", "https://two.example"} {
		_, err := f.svc.Shorten(ctx, ShortenInput{FullURL: u}, internal.Anonymous("device-1"))
		require.NoError(t, err)
	}
	_, err := f.svc.Shorten(ctx, ShortenInput{FullURL: "https://other.example"}, internal.Anonymous("device-2"))
	require.NoError(t, err)

	merged, err := merger.MergeOnAuth(ctx, "", ownerID)
	require.NoError(t, err)
	assert.Zero(t, merged)

	merged, err = merger.MergeOnAuth(ctx, "device-1", ownerID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, merged)

	merged, err = merger.MergeOnAuth(ctx, "device-1", ownerID)
	require.NoError(t, err)
	assert.Zero(t, merged)

	owned, err := f.svc.History(ctx, internal.Authenticated(ownerID, "a@example.com"))
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	left, err := f.svc.History(ctx, internal.Anonymous("device-1"))
	require.NoError(t, err)
	assert.Empty(t, left)

	other, err := f.svc.History(ctx, internal.Anonymous("device-2"))
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func ptr[T any](v T) *T {
	return &v
}
