package events

import (
	"regexp"
	"strings"
)

// organizationAliases maps common variants onto one canonical key so that
// "SEC" and "U.S. Securities and Exchange Commission" compare equal.
var organizationAliases = map[string]string{
	"sec":                                "sec",
	"u.s. sec":                           "sec",
	"us sec":                             "sec",
	"securities and exchange commission": "sec",
	"u.s. securities and exchange commission": "sec",
	"cftc":                                 "cftc",
	"commodity futures trading commission": "cftc",
	"fed":                                  "federal_reserve",
	"federal reserve":                      "federal_reserve",
	"the fed":                              "federal_reserve",
	"fomc":                                 "federal_reserve",
	"doj":                                  "doj",
	"department of justice":                "doj",
	"justice department":                   "doj",
	"treasury":                             "us_treasury",
	"us treasury":                          "us_treasury",
	"u.s. treasury":                        "us_treasury",
	"blackrock":                            "blackrock",
	"ishares":                              "blackrock",
	"fidelity":                             "fidelity",
	"grayscale":                            "grayscale",
	"binance":                              "binance",
	"coinbase":                             "coinbase",
	"kraken":                               "kraken",
	"okx":                                  "okx",
	"bybit":                                "bybit",
	"tether":                               "tether",
	"circle":                               "circle",
	"microstrategy":                        "strategy",
	"strategy":                             "strategy",
	"ethereum foundation":                  "ethereum_foundation",
	"bitcoin":                              "btc",
	"btc":                                  "btc",
	"ether":                                "eth",
	"ethereum":                             "eth",
	"eth":                                  "eth",
	"solana":                               "sol",
	"sol":                                  "sol",
	"xrp":                                  "xrp",
	"ripple":                               "ripple",
}

var spaceRegex = regexp.MustCompile(`\s+`)

// tickerRegex matches cash-tagged tickers like $BTC or $ETH.
var tickerRegex = regexp.MustCompile(`\$([A-Z]{2,6})\b`)

// NormalizeOrganization returns the canonical key for an organization name.
// Unknown names are lowercased with whitespace collapsed.
func NormalizeOrganization(name string) string {
	n := normalizeText(name)
	n = strings.TrimPrefix(n, "$")
	if canon, ok := organizationAliases[n]; ok {
		return canon
	}
	return n
}

// ExtractTickers finds cash-tagged tickers in text, deduplicated in order.
func ExtractTickers(text string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, match := range tickerRegex.FindAllStringSubmatch(text, -1) {
		ticker := match[1]
		if !seen[ticker] {
			seen[ticker] = true
			result = append(result, ticker)
		}
	}
	return result
}

func normalizeText(s string) string {
	return spaceRegex.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}
