package utils

import "testing"

func TestCanonicalHost(t *testing.T) {
	if got := CanonicalHost("Discord.GG"); got != "discord.gg" {
		t.Fatalf("unexpected host: %s", got)
	}
	if got := CanonicalHost("ｄｉｓｃｏｒｄ．ｇｇ"); got != "discord.gg" {
		t.Fatalf("expected full-width host folded, got %s", got)
	}
}

func TestCanonicalizeHosts(t *testing.T) {
	got := CanonicalizeHosts("join HTTPS://DISCORD.GG/AbC now")
	if got != "join https://discord.gg/AbC now" {
		t.Fatalf("unexpected canonical text: %q", got)
	}
	if got := CanonicalizeHosts("plain words only"); got != "plain words only" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
}
