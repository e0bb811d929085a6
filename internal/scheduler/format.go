package scheduler

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"zapmark/internal/domain"
)

const (
	defaultTemplate = "🔥 Oferta imperdível!"
	defaultCTA      = "🛒 Compre aqui:"
)

// BuildOfferMessage assembles the outbound text for a search-mode deal:
// random template, offer title and price lines, random CTA, link.
func BuildOfferMessage(a domain.Automation, offer domain.Offer, link string) string {
	var b strings.Builder
	b.WriteString(pickRandom(a.Texts, defaultTemplate))
	b.WriteString("\n\n")

	if offer.Title != "" {
		b.WriteString("🛍 " + offer.Title + "\n")
	}
	if offer.Discount > 0 && offer.OriginalPrice > offer.Price {
		fmt.Fprintf(&b, "💰 De R$ %s por R$ %s (%d%% OFF)\n",
			formatPrice(offer.OriginalPrice), formatPrice(offer.Price), offer.Discount)
	} else if offer.Price > 0 {
		fmt.Fprintf(&b, "💰 R$ %s\n", formatPrice(offer.Price))
	}

	b.WriteString("\n")
	b.WriteString(pickRandom(a.CTAs, defaultCTA))
	b.WriteString("\n")
	b.WriteString(link)
	return b.String()
}

// BuildMonitorMessage assembles the outbound text for a link picked up
// from a monitored group: template, CTA, link. No price data here.
func BuildMonitorMessage(a domain.Automation, link string) string {
	var b strings.Builder
	b.WriteString(pickRandom(a.Texts, defaultTemplate))
	b.WriteString("\n\n")
	b.WriteString(pickRandom(a.CTAs, defaultCTA))
	b.WriteString("\n")
	b.WriteString(link)
	return b.String()
}

func pickRandom(options []string, fallback string) string {
	var nonEmpty []string
	for _, o := range options {
		if strings.TrimSpace(o) != "" {
			nonEmpty = append(nonEmpty, o)
		}
	}
	if len(nonEmpty) == 0 {
		return fallback
	}
	return nonEmpty[rand.IntN(len(nonEmpty))]
}

// formatPrice renders a value in Brazilian convention: comma decimals.
func formatPrice(v float64) string {
	return strings.ReplaceAll(fmt.Sprintf("%.2f", v), ".", ",")
}
