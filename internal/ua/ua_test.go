package ua

import (
	"testing"

	surfer "github.com/avct/uasurfer"
)

func TestParse_Bot(t *testing.T) {
	info := Parse("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	if !info.IsBot {
		t.Errorf("Googlebot not flagged: %+v", info)
	}
}

func TestParse_Desktop(t *testing.T) {
	info := Parse("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/125.0.6422.60 Safari/537.36")
	if info.IsBot || info.MailProxy {
		t.Errorf("desktop Chrome misclassified: %+v", info)
	}
	if info.Device != "Desktop" {
		t.Errorf("device = %q", info.Device)
	}
}

func TestParse_MailProxyIsNotBot(t *testing.T) {
	info := Parse("Mozilla/5.0 (Windows NT 5.1; rv:11.0) Gecko Firefox/11.0 (via ggpht.com GoogleImageProxy)")
	if !info.MailProxy || info.IsBot {
		t.Errorf("proxy = %v bot = %v", info.MailProxy, info.IsBot)
	}
}

func TestVersionToString(t *testing.T) {
	tests := []struct {
		v    surfer.Version
		want string
	}{
		{surfer.Version{}, ""},
		{surfer.Version{Major: 17}, "17"},
		{surfer.Version{Major: 17, Minor: 3}, "17.3"},
		{surfer.Version{Major: 17, Minor: 3, Patch: 1}, "17.3.1"},
	}
	for _, tt := range tests {
		if got := versionToString(tt.v); got != tt.want {
			t.Errorf("versionToString(%+v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
