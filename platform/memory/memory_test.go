package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/botops/session"
)

func newTestPlatform() *Platform {
	return New(
		WithChannel(session.ChannelInfo{ID: "c1", Name: "general", GuildID: "g1"}),
		WithChannel(session.ChannelInfo{ID: "c2", Name: "random", GuildID: "g1"}),
		WithGuild(session.GuildInfo{ID: "g1", Name: "Acme", MemberCount: 3}),
	)
}

func connect(t *testing.T, p *Platform) *Connection {
	t.Helper()
	conn, err := p.Connect(context.Background(), session.Credentials{Token: "t"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	ev := <-conn.Events()
	if ev.Type != session.EventReady {
		t.Fatalf("first event = %v, want ready", ev.Type)
	}
	return conn.(*Connection)
}

func TestConnection_SendAndHistory(t *testing.T) {
	p := newTestPlatform()
	c := connect(t, p)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		if _, err := c.Send(ctx, "c1", text); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	msgs, err := c.FetchHistory(ctx, "c1", 2, "")
	if err != nil {
		t.Fatalf("FetchHistory() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "three" || msgs[1].Content != "two" {
		t.Errorf("history = %+v", msgs)
	}

	older, _ := c.FetchHistory(ctx, "c1", 10, msgs[1].ID)
	if len(older) != 1 || older[0].Content != "one" {
		t.Errorf("history before cursor = %+v", older)
	}
}

func TestConnection_NotFound(t *testing.T) {
	c := connect(t, newTestPlatform())
	ctx := context.Background()

	_, err := c.Send(ctx, "missing", "x")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Send() error = %v, want ErrNotFound", err)
	}
	if err := c.Delete(ctx, "c1", "999"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := c.FetchGuild(ctx, "nope"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("FetchGuild() error = %v, want ErrNotFound", err)
	}
}

func TestConnection_SearchDeleteGuild(t *testing.T) {
	p := newTestPlatform()
	c := connect(t, p)
	ctx := context.Background()

	ref, _ := c.Send(ctx, "c1", "Deploy finished")
	_, _ = c.Send(ctx, "c1", "lunch?")
	_, _ = c.Send(ctx, "c1", "deploy again")

	found, _ := c.Search(ctx, "c1", "DEPLOY", 10)
	if len(found) != 2 || found[0].Content != "deploy again" {
		t.Errorf("Search() = %+v", found)
	}

	if err := c.Delete(ctx, "c1", ref.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := len(p.Messages("c1")); got != 2 {
		t.Errorf("messages after delete = %d, want 2", got)
	}

	g, err := c.FetchGuild(ctx, "g1")
	if err != nil {
		t.Fatalf("FetchGuild() error = %v", err)
	}
	if len(g.Channels) != 2 || g.Channels[0].ID != "c1" {
		t.Errorf("guild channels = %+v", g.Channels)
	}
}

func TestPlatform_ConnectModes(t *testing.T) {
	t.Run("connect error", func(t *testing.T) {
		p := New()
		p.SetConnectError(errors.New("gateway down"))
		if _, err := p.Connect(context.Background(), session.Credentials{}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("token check", func(t *testing.T) {
		p := New(WithTokens("good"))
		if _, err := p.Connect(context.Background(), session.Credentials{Token: "bad"}); err == nil {
			t.Fatal("expected invalid token error")
		}
	})

	t.Run("ready fails", func(t *testing.T) {
		p := New()
		p.SetReadyMode(ReadyFails)
		conn, _ := p.Connect(context.Background(), session.Credentials{})
		if ev := <-conn.Events(); ev.Type != session.EventError {
			t.Errorf("event = %v, want error", ev.Type)
		}
	})

	t.Run("ready never", func(t *testing.T) {
		p := New()
		p.SetReadyMode(ReadyNever)
		conn, _ := p.Connect(context.Background(), session.Credentials{})
		select {
		case ev := <-conn.Events():
			t.Errorf("unexpected event %v", ev.Type)
		case <-time.After(10 * time.Millisecond):
		}
	})
}

func TestConnection_HoldAndClose(t *testing.T) {
	c := connect(t, newTestPlatform())
	c.Hold()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.Send(ctx, "c1", "held")
		errc <- err
	}()
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("held Send() error = %v, want context.Canceled", err)
	}

	c.Release()
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, ok := <-c.Events(); ok {
		t.Error("events channel still open")
	}
	if _, err := c.Send(context.Background(), "c1", "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after close error = %v, want ErrClosed", err)
	}
}

func TestPlatform_PostDeliversToConnections(t *testing.T) {
	p := newTestPlatform()
	a := connect(t, p)
	b := connect(t, p)

	if _, err := p.Post("c1", "user-9", "hello bots"); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	for _, c := range []*Connection{a, b} {
		ev := <-c.Events()
		if ev.Type != session.EventMessage || ev.Message.Content != "hello bots" {
			t.Errorf("event = %+v", ev)
		}
	}
}

func TestConnection_FailNext(t *testing.T) {
	c := connect(t, newTestPlatform())
	boom := errors.New("502 from upstream")
	c.FailNext("metadata", boom)

	if _, err := c.FetchMetadata(context.Background(), "c1"); !errors.Is(err, boom) {
		t.Errorf("first call error = %v, want %v", err, boom)
	}
	if _, err := c.FetchMetadata(context.Background(), "c1"); err != nil {
		t.Errorf("second call error = %v", err)
	}
}
