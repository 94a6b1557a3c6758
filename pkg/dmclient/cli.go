package dmclient

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dmcore/internal/jwtsigner"
	"dmcore/pkg/e2ee"

	"github.com/google/uuid"
)

const defaultBaseURL = "http://localhost:8085"

type UsageError struct {
	Program string
}

func (u UsageError) Error() string {
	if u.Program == "" {
		u.Program = "dmctl"
	}
	return fmt.Sprintf("Usage: %s <command> [options]", u.Program)
}

func (UsageError) UsageLines() []string {
	return []string{
		"Commands:",
		"  token     Mint a development HS256 token for a user",
		"  init      Fetch or create this user's messaging keys",
		"  send      Encrypt and send a message to a user",
		"  read      Decrypt a page of a conversation",
		"  list      List conversations with unread counts",
		"  unread    Print the unread message count",
		"  seen      Mark a conversation or a single message seen",
	}
}

// RunCLI executes one dmctl command. Connection settings come from flags or
// the DMCTL_URL, DMCTL_TOKEN and DMCTL_PASSPHRASE environment variables.
func RunCLI(prog string, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		return UsageError{Program: prog}
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	cmd := args[0]
	rest := args[1:]
	ctx := context.Background()

	var err error
	switch cmd {
	case "token":
		err = runToken(rest, stdout)
	case "init":
		err = runInit(ctx, rest, stdout)
	case "send":
		err = runSend(ctx, rest, stdout)
	case "read":
		err = runRead(ctx, rest, stdout)
	case "list":
		err = runList(ctx, rest, stdout)
	case "unread":
		err = runUnread(ctx, rest, stdout)
	case "seen":
		err = runSeen(ctx, rest, stdout)
	default:
		return UsageError{Program: prog}
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return err
}

type connFlags struct {
	baseURL    *string
	token      *string
	passphrase *string
	wrapTime   *uint
	wrapMemKiB *uint
}

func addConnFlags(fs *flag.FlagSet, withPassphrase bool) connFlags {
	cf := connFlags{
		baseURL: fs.String("url", getenv("DMCTL_URL", defaultBaseURL), "dm server base URL"),
		token:   fs.String("token", os.Getenv("DMCTL_TOKEN"), "bearer token"),
	}
	if withPassphrase {
		cf.passphrase = fs.String("passphrase", os.Getenv("DMCTL_PASSPHRASE"), "passphrase protecting the private key")
		cf.wrapTime = fs.Uint("wrap-time", uint(e2ee.DefaultWrapParams.Time), "argon2id passes when creating keys")
		cf.wrapMemKiB = fs.Uint("wrap-memory", uint(e2ee.DefaultWrapParams.MemoryKiB), "argon2id memory in KiB when creating keys")
	}
	return cf
}

func (cf connFlags) client() (*Client, error) {
	if strings.TrimSpace(*cf.token) == "" {
		return nil, errors.New("a token is required (-token or DMCTL_TOKEN)")
	}
	return New(*cf.baseURL, *cf.token), nil
}

func (cf connFlags) session(ctx context.Context) (*Session, error) {
	c, err := cf.client()
	if err != nil {
		return nil, err
	}
	if *cf.passphrase == "" {
		return nil, errors.New("a passphrase is required (-passphrase or DMCTL_PASSPHRASE)")
	}
	ks := e2ee.NewKeystore(e2ee.WrapParams{
		Time:      uint32(*cf.wrapTime),
		MemoryKiB: uint32(*cf.wrapMemKiB),
	})
	return Open(ctx, c, []byte(*cf.passphrase), ks)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runToken(args []string, stdout io.Writer) error {
	fs := newFlagSet("token")
	secret := fs.String("secret", os.Getenv("AUTH_HS256_SECRET"), "HS256 secret shared with the server")
	issuer := fs.String("issuer", os.Getenv("AUTH_ISSUER"), "token issuer")
	user := fs.String("user", "", "user UUID (generated when empty)")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	userID := uuid.New()
	if *user != "" {
		var err error
		if userID, err = uuid.Parse(*user); err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
	}
	signer, err := jwtsigner.NewHMAC(*secret, *issuer)
	if err != nil {
		return err
	}
	tok, err := signer.Sign(userID, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "user=%s\n%s\n", userID, tok)
	return nil
}

func runInit(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("init")
	cf := addConnFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	sess, err := cf.session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	fmt.Fprintf(stdout, "keys ready: user=%s\n", sess.UserID())
	return nil
}

func runSend(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("send")
	cf := addConnFlags(fs, true)
	to := fs.String("to", "", "recipient user UUID")
	message := fs.String("message", "", "message plaintext (if empty, read stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	peer, err := uuid.Parse(strings.TrimSpace(*to))
	if err != nil {
		return fmt.Errorf("invalid recipient id: %w", err)
	}
	plaintext, err := resolvePlaintext(*message)
	if err != nil {
		return err
	}
	if plaintext == "" {
		return errors.New("message must not be empty")
	}
	sess, err := cf.session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	msg, err := sess.Send(ctx, peer, []byte(plaintext))
	if err != nil {
		if errors.Is(err, ErrNoKeyRecord) {
			return fmt.Errorf("recipient %s has not set up messaging yet", peer)
		}
		return err
	}
	fmt.Fprintf(stdout, "sent message=%s conversation=%s\n", msg.ID, msg.ConversationID)
	return nil
}

func runRead(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("read")
	cf := addConnFlags(fs, true)
	conv := fs.String("conv", "", "conversation UUID")
	page := fs.Int("page", 1, "page number, 1 is the newest")
	pageSize := fs.Int("page-size", 0, "messages per page (server default when 0)")
	markSeen := fs.Bool("mark-seen", false, "mark the conversation seen after reading")
	if err := fs.Parse(args); err != nil {
		return err
	}
	convID, err := uuid.Parse(strings.TrimSpace(*conv))
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}
	sess, err := cf.session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	entries, err := sess.Read(ctx, convID, *page, *pageSize)
	if err != nil {
		return err
	}
	for _, d := range entries {
		who := "them"
		if d.Role == e2ee.RoleSender {
			who = "me"
		}
		ts := d.Message.CreatedAt.Local().Format(time.DateTime)
		if d.Err != nil {
			fmt.Fprintf(stdout, "%s %-4s [undecryptable: %v]\n", ts, who, d.Err)
			continue
		}
		fmt.Fprintf(stdout, "%s %-4s %s (%s)\n", ts, who, d.Plaintext, d.Message.State)
	}
	if *markSeen {
		n, err := sess.Client().MarkConversationSeen(ctx, convID)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "marked %d seen\n", n)
	}
	return nil
}

func runList(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("list")
	cf := addConnFlags(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	sess, err := cf.session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	convs, err := sess.Client().Conversations(ctx)
	if err != nil {
		return err
	}
	for _, c := range convs {
		preview := ""
		if c.LastMessage != nil {
			d := sess.Decrypt(*c.LastMessage)
			if d.Err != nil {
				preview = "[undecryptable]"
			} else {
				preview = string(d.Plaintext)
			}
		}
		fmt.Fprintf(stdout, "%s peer=%s unread=%d %s\n", c.ID, c.PeerID, c.UnreadCount, preview)
	}
	return nil
}

func runUnread(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("unread")
	cf := addConnFlags(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := cf.client()
	if err != nil {
		return err
	}
	n, err := c.UnreadCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d\n", n)
	return nil
}

func runSeen(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("seen")
	cf := addConnFlags(fs, false)
	conv := fs.String("conv", "", "conversation UUID")
	message := fs.String("message", "", "message UUID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*conv == "") == (*message == "") {
		return errors.New("exactly one of -conv or -message is required")
	}
	c, err := cf.client()
	if err != nil {
		return err
	}
	if *conv != "" {
		convID, err := uuid.Parse(*conv)
		if err != nil {
			return fmt.Errorf("invalid conversation id: %w", err)
		}
		n, err := c.MarkConversationSeen(ctx, convID)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "marked %d seen\n", n)
		return nil
	}
	msgID, err := uuid.Parse(*message)
	if err != nil {
		return fmt.Errorf("invalid message id: %w", err)
	}
	msg, err := c.MarkMessageSeen(ctx, msgID)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "message %s is %s\n", msg.ID, msg.State)
	return nil
}

func resolvePlaintext(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
