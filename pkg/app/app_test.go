// Copyright 2024-2026 Aiku AI

package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/threadtag/pkg/config"
	"github.com/aiku/threadtag/pkg/conversation"
	"github.com/aiku/threadtag/pkg/email"
	"github.com/aiku/threadtag/pkg/matrix"
	"github.com/aiku/threadtag/pkg/mattermost"
	"github.com/aiku/threadtag/pkg/telegram"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.Database.URI = filepath.Join(t.TempDir(), "threadtag.db")
	cfg.Directory.Identities = []conversation.Identity{
		{ID: "u1", DisplayName: "Jane Doe", Address: "jane@example.com"},
		{ID: "u2", DisplayName: "Bob", Address: "bob@example.com"},
	}
	return cfg
}

func TestNewDirectorySource(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	src, err := NewDirectorySource(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	if _, ok := src.(conversation.StaticSource); !ok {
		t.Errorf("static: got %T", src)
	}

	cfg.Directory.Source = "file"
	cfg.Directory.File = "people.yaml"
	src, err = NewDirectorySource(cfg, zerolog.Nop())
	if err != nil || src != conversation.FileSource("people.yaml") {
		t.Errorf("file: got %v, %v", src, err)
	}

	cfg.Directory.Source = "mattermost"
	src, err = NewDirectorySource(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("mattermost: %v", err)
	}
	if _, ok := src.(*mattermost.DirectorySource); !ok {
		t.Errorf("mattermost: got %T", src)
	}

	cfg.Directory.Source = "ldap"
	if _, err = NewDirectorySource(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestNewNotifier(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(t *testing.T, n conversation.Notifier)
	}{
		{"log without throttle", func(c *config.Config) { c.Notifier.RateLimit = 0 }, func(t *testing.T, n conversation.Notifier) {
			if _, ok := n.(conversation.LogNotifier); !ok {
				t.Errorf("got %T, want LogNotifier", n)
			}
		}},
		{"log throttled", func(*config.Config) {}, func(t *testing.T, n conversation.Notifier) {
			if _, ok := n.(*conversation.Throttle); !ok {
				t.Errorf("got %T, want *Throttle", n)
			}
		}},
		{"per address only", func(c *config.Config) {
			c.Notifier.RateLimit = 0
			c.Notifier.PerAddressRateLimit = 1
		}, func(t *testing.T, n conversation.Notifier) {
			if _, ok := n.(*conversation.Throttle); !ok {
				t.Errorf("got %T, want *Throttle", n)
			}
		}},
		{"smtp", func(c *config.Config) {
			c.Notifier.Type = "smtp"
			c.Notifier.RateLimit = 0
		}, func(t *testing.T, n conversation.Notifier) {
			if _, ok := n.(*email.Notifier); !ok {
				t.Errorf("got %T, want *email.Notifier", n)
			}
		}},
		{"mattermost", func(c *config.Config) {
			c.Notifier.Type = "mattermost"
			c.Notifier.RateLimit = 0
		}, func(t *testing.T, n conversation.Notifier) {
			if _, ok := n.(*mattermost.Notifier); !ok {
				t.Errorf("got %T, want *mattermost.Notifier", n)
			}
		}},
		{"matrix", func(c *config.Config) {
			c.Notifier.Type = "matrix"
			c.Notifier.RateLimit = 0
		}, func(t *testing.T, n conversation.Notifier) {
			if _, ok := n.(*matrix.Notifier); !ok {
				t.Errorf("got %T, want *matrix.Notifier", n)
			}
		}},
		{"telegram", func(c *config.Config) {
			c.Notifier.Type = "telegram"
			c.Notifier.RateLimit = 0
			c.Telegram.Token = "123:abc"
		}, func(t *testing.T, n conversation.Notifier) {
			if _, ok := n.(*telegram.Notifier); !ok {
				t.Errorf("got %T, want *telegram.Notifier", n)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tt.mutate(cfg)
			n, err := NewNotifier(cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("NewNotifier: %v", err)
			}
			tt.check(t, n)
		})
	}

	cfg := testConfig(t)
	cfg.Notifier.Type = "telegram"
	if _, err := NewNotifier(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for telegram without a token")
	}

	cfg = testConfig(t)
	cfg.Notifier.Type = "pigeon"
	if _, err := NewNotifier(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown notifier")
	}
}

func TestApp_SessionsAndReload(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	first := a.Controller()
	if first.Directory().Len() != 2 {
		t.Fatalf("directory: got %d identities, want 2", first.Directory().Len())
	}
	if a.Controller() != first {
		t.Error("Controller should return the same session until reload")
	}

	post, err := first.SubmitPost(ctx, "js-1", conversation.AuthorContext{Name: "Recruiter"}, "hello @Bob")
	if err != nil {
		t.Fatalf("SubmitPost: %v", err)
	}

	a.Source = conversation.StaticSource(cfg.Directory.Identities[:1])
	dir := a.ReloadDirectory(ctx)
	if dir.Len() != 1 {
		t.Errorf("reloaded directory: got %d identities, want 1", dir.Len())
	}
	second := a.Controller()
	if second == first {
		t.Error("reload should start a new session")
	}

	// Sessions share the store.
	items, err := second.Thread(ctx, "js-1")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(items) != 1 || items[0].ID != post.ID {
		t.Errorf("thread: got %+v", items)
	}

	a.Wait()
}

func TestApp_ReloadDropsIdleSessions(t *testing.T) {
	t.Parallel()
	a, err := New(context.Background(), testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	for range 100 {
		a.ReloadDirectory(ctx)
	}
	a.mu.Lock()
	held := len(a.retired)
	a.mu.Unlock()
	if held != 0 {
		t.Errorf("idle reloads: %d retired sessions held, want 0", held)
	}
}

func TestApp_ReloadKeepsBusySessions(t *testing.T) {
	t.Parallel()
	a, err := New(context.Background(), testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	a.dispatcher = conversation.NewDispatcher(conversation.DispatcherConfig{
		Notifier: conversation.NotifierFunc(func(context.Context, string, string, string, bool) error {
			close(started)
			<-release
			return nil
		}),
		Log: zerolog.Nop(),
	})

	ctx := context.Background()
	first := a.Controller()
	if _, err = first.SubmitPost(ctx, "js-1", conversation.AuthorContext{}, "hello @Bob"); err != nil {
		t.Fatalf("SubmitPost: %v", err)
	}
	<-started

	a.ReloadDirectory(ctx)
	a.mu.Lock()
	held := append([]*conversation.Controller(nil), a.retired...)
	a.mu.Unlock()
	if len(held) != 1 || held[0] != first {
		t.Fatalf("busy session should stay retired, got %d sessions", len(held))
	}
	if first.Idle() {
		t.Error("session with a running dispatch should not be idle")
	}

	close(release)
	first.Wait()
	if !first.Idle() {
		t.Error("session should be idle after its dispatch finished")
	}
	a.ReloadDirectory(ctx)
	a.mu.Lock()
	n := len(a.retired)
	a.mu.Unlock()
	if n != 0 {
		t.Errorf("after dispatch finished: %d retired sessions held, want 0", n)
	}
}

func TestApp_Pebble(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Database.Type = "pebble"
	cfg.Database.URI = filepath.Join(t.TempDir(), "pebble")
	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err = a.Controller().SubmitPost(context.Background(), "js-1", conversation.AuthorContext{}, "hi"); err != nil {
		t.Errorf("SubmitPost: %v", err)
	}
	if err = a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestApp_BadDatabase(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Database.Type = "mysql"
	if _, err := New(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown database type")
	}
}

func TestApp_FileSourceFailureYieldsEmptyDirectory(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Directory.Source = "file"
	cfg.Directory.File = filepath.Join(t.TempDir(), "missing.yaml")
	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if n := a.Controller().Directory().Len(); n != 0 {
		t.Errorf("directory: got %d identities, want 0", n)
	}

	data := "- id: u9\n  display_name: Zed\n  address: zed@example.com\n"
	if err = os.WriteFile(cfg.Directory.File, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	if n := a.ReloadDirectory(context.Background()).Len(); n != 1 {
		t.Errorf("after reload: got %d identities, want 1", n)
	}
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.API.ListenAddr = "127.0.0.1:0"
	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err = <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after context cancel")
	}
}

func TestNextRefresh(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 10, 7, 30, 0, time.UTC)
	next, err := NextRefresh("*/15 * * * *", now)
	if err != nil {
		t.Fatalf("NextRefresh: %v", err)
	}
	want := time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("got %v, want %v", next, want)
	}

	if _, err = NextRefresh("not a cron", now); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestWatchDirectory_InvalidCron(t *testing.T) {
	t.Parallel()
	err := WatchDirectory(context.Background(), "nope", nil, zerolog.Nop())
	if err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestWatchDirectory_StopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	reloads := 0
	reload := func(context.Context) *conversation.Directory {
		reloads++
		return conversation.EmptyDirectory()
	}

	done := make(chan error, 1)
	go func() { done <- WatchDirectory(ctx, "0 0 1 1 *", reload, zerolog.Nop()) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WatchDirectory did not stop after context cancel")
	}
	if reloads != 0 {
		t.Errorf("no tick should have fired, got %d reloads", reloads)
	}
}
