// Command courant is the terminal client: auth, the live notification
// feed, and the data endpoints, all against a running courantd.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/courant-live/courant/internal/api"
	"github.com/courant-live/courant/internal/config"
	"github.com/courant-live/courant/internal/logging"
	"github.com/courant-live/courant/internal/notify"
	"github.com/courant-live/courant/internal/session"
)

const usage = `Usage: courant [flags] <command> [args]

Commands:
  login <username> <password>          establish a session
  register <username> <email> <password>   create an account
  logout                               end the session
  status                               show the current session state
  history                              list notifications, newest first
  watch                                follow live notifications
  send <message> [type]                publish a notification
  products                             list products

Flags:
`

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	baseURL := flag.String("url", "", "Backend base URL (overrides config)")
	sessionFile := flag.String("session", defaultSessionFile(), "Where the session token is kept between runs")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	if *baseURL != "" {
		cfg.Client.BaseURL = *baseURL
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logging.New(level, true)

	client, err := api.New(cfg.Client.BaseURL, cfg.Client.RequestTimeout.Std(), log)
	if err != nil {
		fail("%v", err)
	}
	if token, err := os.ReadFile(*sessionFile); err == nil {
		client.SetSessionToken(strings.TrimSpace(string(token)))
	}

	store := session.NewStore(client, log)
	flow := session.NewFlow(client, store, cfg.Client.EntryPath, log)
	gate := session.NewGate(store, cfg.Client.EntryPath, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &app{
		cfg:     cfg,
		client:  client,
		store:   store,
		flow:    flow,
		gate:    gate,
		tokFile: *sessionFile,
	}

	if err := app.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, api.Message(err))
		os.Exit(1)
	}
}

type app struct {
	cfg     *config.Config
	client  *api.Client
	store   *session.Store
	flow    *session.Flow
	gate    *session.Gate
	tokFile string
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		if len(args) != 2 {
			return fmt.Errorf("usage: courant login <username> <password>")
		}
		if err := a.flow.Login(ctx, api.Credentials{Username: args[0], Password: args[1]}); err != nil {
			return err
		}
		if state := a.store.Current(); state.Status != session.Authenticated {
			return fmt.Errorf("login accepted but the session did not take effect")
		}
		a.saveToken()
		fmt.Printf("logged in as %s\n", a.store.Current().User.Username)
		return nil

	case "register":
		if len(args) != 3 {
			return fmt.Errorf("usage: courant register <username> <email> <password>")
		}
		resp, err := a.flow.Register(ctx, api.Registration{Username: args[0], Email: args[1], Password: args[2]})
		if err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil

	case "logout":
		entry := a.flow.Logout(ctx)
		os.Remove(a.tokFile)
		fmt.Printf("logged out, back to %s\n", entry)
		return nil

	case "status":
		a.store.CheckSession(ctx)
		state := a.store.Current()
		if state.Status == session.Authenticated {
			fmt.Printf("authenticated as %s (%s)\n", state.User.Username, state.User.Role)
		} else {
			fmt.Println("anonymous")
		}
		return nil

	case "history":
		return a.protected(ctx, "/notifications", func() error {
			items, err := a.client.Notifications(ctx)
			if err != nil {
				return err
			}
			for _, n := range items {
				printNotification(n)
			}
			return nil
		})

	case "watch":
		return a.protected(ctx, "/notifications", func() error { return a.watch(ctx) })

	case "send":
		if len(args) < 1 {
			return fmt.Errorf("usage: courant send <message> [type]")
		}
		kind := ""
		if len(args) > 1 {
			kind = args[1]
		}
		return a.protected(ctx, "/notifications", func() error {
			saved, err := a.client.Send(ctx, api.SendNotification{Message: args[0], Type: kind})
			if err != nil {
				return err
			}
			fmt.Printf("sent %s\n", saved.ID)
			return nil
		})

	case "products":
		return a.protected(ctx, "/products", func() error {
			items, err := a.client.Products(ctx)
			if err != nil {
				return err
			}
			for _, p := range items {
				fmt.Printf("%s\t%s\t%.2f\tx%d\n", p.ID, p.Name, p.Price, p.Quantity)
			}
			return nil
		})

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// protected runs fn only if the access gate lets this navigation through.
func (a *app) protected(ctx context.Context, destination string, fn func() error) error {
	go a.store.CheckSession(ctx)
	decision := a.gate.Check(ctx, destination)
	if !decision.Allowed {
		return fmt.Errorf("not logged in, run `courant login` first (redirected to %s)", decision.RedirectTo)
	}
	return fn()
}

func (a *app) watch(ctx context.Context) error {
	channel := notify.NewChannel(deriveWSURL(a.client.BaseURL()), a.cfg.Notify.Topic, notify.ReconnectPolicy{
		InitialDelay: a.cfg.Notify.InitialDelay.Std(),
		MaxDelay:     a.cfg.Notify.MaxDelay.Std(),
		Multiplier:   2,
		MaxAttempts:  a.cfg.Notify.MaxAttempts,
	}, logging.Nop())

	cancel := channel.Subscribe(printNotification)
	defer cancel()

	// Seed the feed before the connection comes up: the snapshot below is
	// then pure history and live messages print exactly once.
	feed := notify.NewFeed(a.client, channel, a.cfg.Notify.AlertTTL.Std(), logging.Nop())
	feed.Start(ctx)
	defer feed.Stop()

	history := feed.Snapshot()
	for i := len(history) - 1; i >= 0; i-- {
		printNotification(history[i])
	}

	go channel.Run(ctx)
	fmt.Println("--- watching (ctrl-c to stop) ---")
	<-ctx.Done()
	return nil
}

func printNotification(n api.Notification) {
	fmt.Printf("%s  [%s]  %s\n", n.Timestamp.Local().Format(time.TimeOnly), n.Type, n.Message)
}

// deriveWSURL converts http://host:port → ws://host:port/ws.
func deriveWSURL(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return "ws://127.0.0.1:8080/ws"
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host)
}

func (a *app) saveToken() {
	token := a.client.SessionToken()
	if token == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(a.tokFile), 0o700); err != nil {
		return
	}
	os.WriteFile(a.tokFile, []byte(token), 0o600)
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".courant-session"
	}
	return filepath.Join(home, ".courant", "session")
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
