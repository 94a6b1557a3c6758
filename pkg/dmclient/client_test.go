package dmclient_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"dmcore/internal/authz"
	"dmcore/internal/events"
	"dmcore/internal/jwtsigner"
	"dmcore/internal/service"
	"dmcore/internal/store"
	transport "dmcore/internal/transport/http"
	"dmcore/pkg/dmclient"
	"dmcore/pkg/e2ee"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "client-test-secret"

var cheapKeystore = e2ee.NewKeystore(e2ee.WrapParams{Time: 1, MemoryKiB: 8 * 1024, Threads: 1})

type server struct {
	url    string
	signer *jwtsigner.HMACSigner
}

func startServer(t *testing.T) *server {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.Open(store.Config{DSN: fmt.Sprintf("file:client_%s?mode=memory&cache=shared", name)})
	require.NoError(t, err)
	st := store.New(db)
	require.NoError(t, st.AutoMigrate(context.Background()))

	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	svc := service.New(st, service.WithBus(events.NewHub()), service.WithClock(clock))
	srv := httptest.NewServer(transport.NewRouter(svc, transport.Options{
		Auth:         authz.NewHMACValidator(secret, ""),
		PingInterval: time.Second,
	}))
	t.Cleanup(srv.Close)

	signer, err := jwtsigner.NewHMAC(secret, "")
	require.NoError(t, err)
	return &server{url: srv.URL, signer: signer}
}

func (s *server) client(t *testing.T, user uuid.UUID) *dmclient.Client {
	t.Helper()
	tok, err := s.signer.Sign(user, time.Hour)
	require.NoError(t, err)
	return dmclient.New(s.url, tok)
}

func (s *server) session(t *testing.T, user uuid.UUID, pass string) *dmclient.Session {
	t.Helper()
	sess, err := dmclient.Open(context.Background(), s.client(t, user), []byte(pass), cheapKeystore)
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

func TestSessionsExchangeMessages(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()
	aliceID, bobID := uuid.New(), uuid.New()
	alice := srv.session(t, aliceID, "alice-pass")
	bob := srv.session(t, bobID, "bob-pass")
	require.Equal(t, aliceID, alice.UserID())

	sent, err := alice.Send(ctx, bobID, []byte("hi"))
	require.NoError(t, err)
	convID := uuid.MustParse(sent.ConversationID)

	unread, err := bob.Client().UnreadCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	inbox, err := bob.Read(ctx, convID, 1, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.NoError(t, inbox[0].Err)
	assert.Equal(t, "hi", string(inbox[0].Plaintext))
	assert.Equal(t, e2ee.RoleRecipient, inbox[0].Role)
	assert.Equal(t, "delivered", inbox[0].Message.State)

	n, err := bob.Client().MarkConversationSeen(ctx, convID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	outbox, err := alice.Read(ctx, convID, 1, 10)
	require.NoError(t, err)
	require.Len(t, outbox, 1)
	require.NoError(t, outbox[0].Err)
	assert.Equal(t, "hi", string(outbox[0].Plaintext))
	assert.Equal(t, e2ee.RoleSender, outbox[0].Role)
	assert.True(t, outbox[0].Message.Read)
	assert.NotNil(t, outbox[0].Message.ReadAt)

	_, err = alice.Send(ctx, uuid.New(), []byte("nobody home"))
	assert.ErrorIs(t, err, dmclient.ErrNoKeyRecord)
}

func TestOpenReusesExistingRecord(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()
	user := uuid.New()
	c := srv.client(t, user)

	first, err := dmclient.Open(ctx, c, []byte("pass"), cheapKeystore)
	require.NoError(t, err)
	before, err := c.OwnKeys(ctx)
	require.NoError(t, err)
	first.Close()

	second, err := dmclient.Open(ctx, c, []byte("pass"), cheapKeystore)
	require.NoError(t, err)
	defer second.Close()
	after, err := c.OwnKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.PublicKey, after.PublicKey, "reopening must not replace keys")

	_, err = dmclient.Open(ctx, c, []byte("wrong"), cheapKeystore)
	assert.ErrorIs(t, err, e2ee.ErrWrongPassphrase)
}

func TestConcurrentOpenConverges(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()
	user := uuid.New()

	const devices = 3
	clients := make([]*dmclient.Client, devices)
	for i := range clients {
		clients[i] = srv.client(t, user)
	}
	sessions := make([]*dmclient.Session, devices)
	errs := make([]error, devices)
	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = dmclient.Open(ctx, clients[i], []byte("shared"), cheapKeystore)
		}(i)
	}
	wg.Wait()
	for i := range sessions {
		require.NoError(t, errs[i], "device %d", i)
		defer sessions[i].Close()
	}

	sender := srv.session(t, uuid.New(), "sender")
	msg, err := sender.Send(ctx, user, []byte("to every device"))
	require.NoError(t, err)

	for i, sess := range sessions {
		d, err := sess.Read(ctx, uuid.MustParse(msg.ConversationID), 1, 10)
		require.NoError(t, err)
		require.Len(t, d, 1)
		require.NoError(t, d[0].Err, "device %d", i)
		assert.Equal(t, "to every device", string(d[0].Plaintext))
	}
}

func TestReadIsolatesUndecryptableMessages(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()
	aliceID, bobID := uuid.New(), uuid.New()
	alice := srv.session(t, aliceID, "a")
	bob := srv.session(t, bobID, "b")

	first, err := alice.Send(ctx, bobID, []byte("one"))
	require.NoError(t, err)

	junk := dmclient.Ciphertext{Content: "AAAA", WrappedKey: "AAAA", IV: "AAAA"}
	_, err = alice.Client().Send(ctx, dmclient.SendRequest{
		ConversationID:      first.ConversationID,
		RecipientCiphertext: junk,
		SenderCiphertext:    &junk,
	})
	require.NoError(t, err)

	// A legacy recipient-only message: readable by bob, not by alice.
	bobPubEnc, err := alice.Client().PublicKey(ctx, bobID)
	require.NoError(t, err)
	bobPub, err := e2ee.ParsePublicKey(bobPubEnc)
	require.NoError(t, err)
	legacy, err := e2ee.EncryptFor([]byte("legacy"), bobPub)
	require.NoError(t, err)
	_, err = alice.Client().Send(ctx, dmclient.SendRequest{
		ConversationID:      first.ConversationID,
		RecipientCiphertext: dmclient.Ciphertext{Content: legacy.Content, WrappedKey: legacy.WrappedKey, IV: legacy.IV},
	})
	require.NoError(t, err)

	_, err = alice.Send(ctx, bobID, []byte("three"))
	require.NoError(t, err)

	convID := uuid.MustParse(first.ConversationID)
	inbox, err := bob.Read(ctx, convID, 1, 10)
	require.NoError(t, err)
	require.Len(t, inbox, 4)
	assert.Equal(t, "one", string(inbox[0].Plaintext))
	assert.Error(t, inbox[1].Err)
	assert.Equal(t, "legacy", string(inbox[2].Plaintext))
	assert.Equal(t, "three", string(inbox[3].Plaintext))

	outbox, err := alice.Read(ctx, convID, 1, 10)
	require.NoError(t, err)
	require.Len(t, outbox, 4)
	assert.NoError(t, outbox[0].Err)
	assert.True(t, errors.Is(outbox[2].Err, e2ee.ErrSenderCopyMissing))
	assert.Equal(t, "three", string(outbox[3].Plaintext))
}

func TestClosedSessionCannotDecrypt(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()
	aliceID, bobID := uuid.New(), uuid.New()
	alice := srv.session(t, aliceID, "a")
	bob, err := dmclient.Open(ctx, srv.client(t, bobID), []byte("b"), cheapKeystore)
	require.NoError(t, err)

	msg, err := alice.Send(ctx, bobID, []byte("secret"))
	require.NoError(t, err)

	bob.Close()
	d, err := bob.Read(ctx, uuid.MustParse(msg.ConversationID), 1, 10)
	require.NoError(t, err)
	require.Len(t, d, 1)
	assert.ErrorIs(t, d[0].Err, e2ee.ErrKeyDestroyed)
	assert.Nil(t, d[0].Plaintext)

	_, err = bob.Send(ctx, aliceID, []byte("x"))
	assert.ErrorIs(t, err, e2ee.ErrKeyDestroyed)
}

func TestStreamDeliversEvents(t *testing.T) {
	srv := startServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	aliceID, bobID := uuid.New(), uuid.New()
	alice := srv.session(t, aliceID, "a")
	bob := srv.session(t, bobID, "b")

	feed, err := bob.Client().Stream(ctx)
	require.NoError(t, err)

	msg, err := alice.Send(ctx, bobID, []byte("ping"))
	require.NoError(t, err)

	select {
	case ev := <-feed:
		assert.Equal(t, dmclient.EventMessageCreated, ev.Type)
		require.NotNil(t, ev.MessageID)
		assert.Equal(t, msg.ID, ev.MessageID.String())
	case <-time.After(3 * time.Second):
		t.Fatal("no event received")
	}
	cancel()
}

func TestStreamReleasesResourcesWhenServerDrops(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	baseline := runtime.NumGoroutine()

	// A context that is never cancelled, as the CLI uses.
	feed, err := dmclient.New(srv.URL, "token").Stream(context.Background())
	require.NoError(t, err)

	select {
	case _, ok := <-feed:
		require.False(t, ok, "feed should close when the server hangs up")
	case <-time.After(3 * time.Second):
		t.Fatal("feed not closed after server hang-up")
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 3*time.Second, 10*time.Millisecond, "stream goroutines still running")
}

func TestAPIErrorMatchesSentinels(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()

	_, err := dmclient.New(srv.url, "").OwnKeys(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, dmclient.ErrUnauthorized)

	c := srv.client(t, uuid.New())
	_, err = c.OwnKeys(ctx)
	assert.ErrorIs(t, err, dmclient.ErrNoKeyRecord)
	var apiErr *dmclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)

	_, err = c.Messages(ctx, uuid.New(), 1, 10)
	assert.ErrorIs(t, err, dmclient.ErrConversationNotFound)
}

func TestRunCLI(t *testing.T) {
	srv := startServer(t)
	user := uuid.New()

	var out, errOut bytes.Buffer
	err := dmclient.RunCLI("dmctl", []string{"token", "-secret", secret, "-user", user.String()}, &out, &errOut)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "user="+user.String(), lines[0])
	token := lines[1]

	conn := []string{"-url", srv.url, "-token", token}
	params := []string{"-passphrase", "pw", "-wrap-time", "1", "-wrap-memory", "8192"}

	out.Reset()
	require.NoError(t, dmclient.RunCLI("dmctl", append(append([]string{"init"}, conn...), params...), &out, &errOut))
	assert.Contains(t, out.String(), "keys ready: user="+user.String())

	out.Reset()
	require.NoError(t, dmclient.RunCLI("dmctl", append([]string{"unread"}, conn...), &out, &errOut))
	assert.Equal(t, "0\n", out.String())

	err = dmclient.RunCLI("dmctl", append([]string{"seen"}, conn...), &out, &errOut)
	assert.Error(t, err)

	err = dmclient.RunCLI("dmctl", []string{"bogus"}, &out, &errOut)
	var usage dmclient.UsageError
	assert.ErrorAs(t, err, &usage)
}
