package download

import "testing"

func TestToRemoteUsesLongestPrefix(t *testing.T) {
	m := NewPathMapper([]Mapping{
		{Remote: "/downloads", Local: "/srv/media"},
		{Remote: "/downloads/books", Local: "/srv/media/books"},
	}, "", "")

	got := m.ToRemote("/srv/media/books/foo.m4b")
	want := "/downloads/books/foo.m4b"
	if got != want {
		t.Errorf("ToRemote = %q, want %q", got, want)
	}
}

func TestToRemoteUnchangedWhenNoMatch(t *testing.T) {
	m := NewPathMapper([]Mapping{{Remote: "/downloads", Local: "/srv/media"}}, "", "")
	got := m.ToRemote("/unrelated/path")
	if got != "/unrelated/path" {
		t.Errorf("ToRemote = %q, want unchanged", got)
	}
}

func TestToLocalFallsBackToCanonicalRoot(t *testing.T) {
	m := NewPathMapper(nil, "/downloads", "/srv/media")
	got := m.ToLocal("/downloads/books/foo.m4b")
	want := "/srv/media/books/foo.m4b"
	if got != want {
		t.Errorf("ToLocal = %q, want %q", got, want)
	}
}

func TestToLocalPrefersConfiguredMappingOverCanonicalRoot(t *testing.T) {
	m := NewPathMapper([]Mapping{{Remote: "/downloads", Local: "/srv/media"}}, "/downloads", "/other")
	got := m.ToLocal("/downloads/foo.m4b")
	if got != "/srv/media/foo.m4b" {
		t.Errorf("ToLocal = %q, want mapping result", got)
	}
}

func TestRewriteLoopbackRewritesWithOverride(t *testing.T) {
	got, ok := RewriteLoopback("http://127.0.0.1:8080/torrents/1.torrent?x=1#frag", "https://orchestrator.example.com")
	if !ok {
		t.Fatal("expected rewrite to succeed")
	}
	want := "https://orchestrator.example.com/torrents/1.torrent?x=1#frag"
	if got != want {
		t.Errorf("RewriteLoopback = %q, want %q", got, want)
	}
}

func TestRewriteLoopbackFailsWithoutOverride(t *testing.T) {
	_, ok := RewriteLoopback("http://localhost/torrents/1.torrent", "")
	if ok {
		t.Fatal("expected failure when no override is configured for a loopback URL")
	}
}

func TestRewriteLoopbackPassesThroughNonLoopback(t *testing.T) {
	got, ok := RewriteLoopback("https://indexer.example.com/x.torrent", "")
	if !ok || got != "https://indexer.example.com/x.torrent" {
		t.Errorf("expected unchanged URL, got %q ok=%v", got, ok)
	}
}
