package logging

import (
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), "<redacted-jwt>"},
	{regexp.MustCompile(`(oauth_token=)[^\s&"]+`), "${1}<redacted>"},
	{regexp.MustCompile(`(CLAUDE_CODE_OAUTH_TOKEN=)[^\s&"]+`), "${1}<redacted>"},
	{regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`), "${1}<redacted>"},
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]+`), "<redacted-key>"},
}

// Setup installs the global logger. Output passes through a MaskingWriter
// that also redacts the given literal secrets.
func Setup(level string, w io.Writer, secrets ...string) {
	if w == nil {
		w = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = zerolog.New(NewMaskingWriter(w, secrets...)).With().Timestamp().Logger()
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Mask replaces known token shapes and any explicit secrets in s.
func Mask(s string, secrets ...string) string {
	for _, sec := range secrets {
		if strings.TrimSpace(sec) == "" {
			continue
		}
		s = strings.ReplaceAll(s, sec, "<redacted>")
	}
	for _, p := range secretPatterns {
		s = p.re.ReplaceAllString(s, p.repl)
	}
	return s
}

type MaskingWriter struct {
	w       io.Writer
	secrets []string
}

func NewMaskingWriter(w io.Writer, secrets ...string) *MaskingWriter {
	return &MaskingWriter{w: w, secrets: secrets}
}

// Write masks one zerolog event. It reports len(p) so callers never see a short write.
func (m *MaskingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(m.w, Mask(string(p), m.secrets...)); err != nil {
		return 0, err
	}
	return len(p), nil
}
