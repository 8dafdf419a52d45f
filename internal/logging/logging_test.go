package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestMaskPatterns(t *testing.T) {
	cases := map[string]string{
		"token eyJhbGciOi.eyJzdWIiOi.c2lnbmF0dXJl end":  "token <redacted-jwt> end",
		"url?oauth_token=abc123&x=1":                    "url?oauth_token=<redacted>&x=1",
		"env CLAUDE_CODE_OAUTH_TOKEN=sk-ant-oat01-xyz ok": "env CLAUDE_CODE_OAUTH_TOKEN=<redacted> ok",
		"Authorization: Bearer abc.def":                 "Authorization: Bearer <redacted>",
		"nothing to hide":                               "nothing to hide",
	}
	for in, want := range cases {
		if got := Mask(in); got != want {
			t.Fatalf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
	if got := Mask("key is hunter2", "hunter2", ""); got != "key is <redacted>" {
		t.Fatalf("literal secret not masked: %q", got)
	}
}

func TestSetupMasksLogOutput(t *testing.T) {
	prev := log.Logger
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}()

	var buf bytes.Buffer
	Setup("debug", &buf, "my-literal-token")
	log.Debug().Str("cmd", "CLAUDE_CODE_OAUTH_TOKEN=abc").Msg("spawn my-literal-token")

	out := buf.String()
	if strings.Contains(out, "abc") || strings.Contains(out, "my-literal-token") {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, `"level":"debug"`) {
		t.Fatalf("debug level not enabled: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("WARNING") != zerolog.WarnLevel || ParseLevel("bogus") != zerolog.InfoLevel {
		t.Fatalf("unexpected level parsing")
	}
}
