package server

import (
	"testing"

	"github.com/skyhhjmk/wind-oauth/internal/testutil"
	"github.com/skyhhjmk/wind-oauth/storage"
)

func TestValidateRedirectURI_ExactMatch(t *testing.T) {
	client := testutil.NewTestClient()
	client.RedirectURI = "https://example.com/callback"
	client.RedirectDynamicEnabled = false

	testutil.AssertTrue(t, ValidateRedirectURI(client, "https://example.com/callback"), "registered URI should match")
	testutil.AssertFalse(t, ValidateRedirectURI(client, "https://example.com/other"), "different path should not match")
	testutil.AssertFalse(t, ValidateRedirectURI(client, "https://example.com/callback/"), "trailing slash should not match")
	testutil.AssertFalse(t, ValidateRedirectURI(client, ""), "empty URI should not match")
	testutil.AssertFalse(t, ValidateRedirectURI(nil, "https://example.com/callback"), "nil client should not match")
}

func TestValidateRedirectURI_Dynamic(t *testing.T) {
	tests := []struct {
		name      string
		whitelist []string
		presented string
		want      bool
	}{
		{
			name:      "whitelisted host any path and query",
			whitelist: []string{"example.com:443"},
			presented: "https://example.com/any/path?x=1",
			want:      true,
		},
		{
			name:      "host not on whitelist",
			whitelist: []string{"example.com:443"},
			presented: "https://evil.com/",
			want:      false,
		},
		{
			name:      "scheme downgrade changes the effective port",
			whitelist: []string{"example.com:443"},
			presented: "http://example.com/",
			want:      false,
		},
		{
			name:      "explicit port on presented URI",
			whitelist: []string{"app.example.com:8443"},
			presented: "https://app.example.com:8443/cb",
			want:      true,
		},
		{
			name:      "whitelist entry as full URL",
			whitelist: []string{"https://app.example.com:8443/ignored/path"},
			presented: "https://app.example.com:8443/cb",
			want:      true,
		},
		{
			name:      "entry without explicit port is excluded",
			whitelist: []string{"example.com"},
			presented: "https://example.com/cb",
			want:      false,
		},
		{
			name:      "URL entry without explicit port is excluded",
			whitelist: []string{"https://example.com/cb"},
			presented: "https://example.com/cb2",
			want:      false,
		},
		{
			name:      "host comparison is case insensitive",
			whitelist: []string{"Example.COM:443"},
			presented: "https://EXAMPLE.com/cb",
			want:      true,
		},
		{
			name:      "ipv6 literal",
			whitelist: []string{"[::1]:8080"},
			presented: "http://[::1]:8080/cb",
			want:      true,
		},
		{
			name:      "default http port inferred",
			whitelist: []string{"example.com:80"},
			presented: "http://example.com/cb",
			want:      true,
		},
		{
			name:      "non http scheme rejected",
			whitelist: []string{"example.com:443"},
			presented: "javascript://example.com:443/x",
			want:      false,
		},
		{
			name:      "empty whitelist rejects everything",
			whitelist: nil,
			presented: "https://example.com/cb",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutil.NewTestClient()
			client.RedirectURI = "https://registered.example/callback"
			client.RedirectDynamicEnabled = true
			client.RedirectWhitelist = tt.whitelist

			got := ValidateRedirectURI(client, tt.presented)
			testutil.AssertEqual(t, got, tt.want)
		})
	}
}

func TestValidateRedirectURI_DynamicDisabledIgnoresWhitelist(t *testing.T) {
	client := &storage.Client{
		RedirectURI:            "https://registered.example/callback",
		RedirectDynamicEnabled: false,
		RedirectWhitelist:      []string{"example.com:443"},
	}

	testutil.AssertFalse(t, ValidateRedirectURI(client, "https://example.com/cb"), "whitelist must be inert when dynamic mode is off")
	testutil.AssertTrue(t, ValidateRedirectURI(client, "https://registered.example/callback"), "registered URI still matches")
}
