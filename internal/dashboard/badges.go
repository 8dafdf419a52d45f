package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"llmhub/internal/domain"
	"llmhub/internal/schema"
)

type Variant string

const (
	VariantSuccess     Variant = "success"
	VariantWarning     Variant = "warning"
	VariantDestructive Variant = "destructive"
	VariantOutline     Variant = "outline"
)

// TokenWarningDays is the remaining-days threshold at or below which a valid
// token is flagged.
const TokenWarningDays = 14

type Badge struct {
	Variant Variant
	Label   string
}

func TokenBadge(st domain.TokenStatus) Badge {
	if !st.Valid {
		return Badge{Variant: VariantDestructive, Label: "Expired / Invalid"}
	}
	if st.DaysRemaining != nil && *st.DaysRemaining <= TokenWarningDays {
		return Badge{Variant: VariantWarning, Label: fmt.Sprintf("Expires in %d days", *st.DaysRemaining)}
	}
	return Badge{Variant: VariantSuccess, Label: "Valid"}
}

func HealthBadge(status domain.HealthStatus) Badge {
	switch status {
	case domain.StatusHealthy:
		return Badge{Variant: VariantSuccess, Label: "HEALTHY"}
	case domain.StatusDegraded:
		return Badge{Variant: VariantWarning, Label: "DEGRADED"}
	default:
		return Badge{Variant: VariantDestructive, Label: strings.ToUpper(string(status))}
	}
}

// HealthHeadline is the human wording for the overall status card.
func HealthHeadline(status domain.HealthStatus) string {
	switch status {
	case domain.StatusHealthy:
		return "Operational"
	case domain.StatusDegraded:
		return "Partial outage"
	default:
		return "Outage"
	}
}

// ComponentBadge is binary: healthy or not.
func ComponentBadge(status domain.HealthStatus) Badge {
	if status == domain.StatusHealthy {
		return Badge{Variant: VariantSuccess, Label: string(status)}
	}
	return Badge{Variant: VariantDestructive, Label: string(status)}
}

type TokenEntry struct {
	Provider string
	Status   domain.TokenStatus
	Badge    Badge
}

// TokenEntries drops nil entries and sorts by provider.
func TokenEntries(tokens schema.TokenHealthResponse) []TokenEntry {
	out := make([]TokenEntry, 0, len(tokens))
	for name, st := range tokens {
		if st == nil {
			continue
		}
		out = append(out, TokenEntry{Provider: name, Status: *st, Badge: TokenBadge(*st)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

type TokenAlert struct {
	Provider string
	Variant  Variant
	Title    string
	Message  string
}

// TokenAlerts yields one alert per invalid or soon-expiring token.
func TokenAlerts(tokens schema.TokenHealthResponse) []TokenAlert {
	var out []TokenAlert
	for _, e := range TokenEntries(tokens) {
		st := e.Status
		switch {
		case !st.Valid:
			msg := st.Error
			if msg == "" {
				msg = "The token is expired or invalid."
			}
			out = append(out, TokenAlert{
				Provider: e.Provider,
				Variant:  VariantDestructive,
				Title:    Title(e.Provider) + " token error",
				Message:  msg,
			})
		case st.DaysRemaining != nil && *st.DaysRemaining <= TokenWarningDays:
			out = append(out, TokenAlert{
				Provider: e.Provider,
				Variant:  VariantWarning,
				Title:    Title(e.Provider) + " token warning",
				Message:  fmt.Sprintf("The token expires in %d days.", *st.DaysRemaining),
			})
		}
	}
	return out
}

// RenewURL points at the console where the provider's token is managed.
func RenewURL(provider string) string {
	if provider == "claude" {
		return "https://console.anthropic.com"
	}
	return "https://aistudio.google.com"
}

func Title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
