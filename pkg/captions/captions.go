package captions

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/slickofficials/autoposter/internal/domain"
)

// LinkPlaceholder is the token in stored captions that gets replaced with the
// tracking link right before transmission.
const LinkPlaceholder = "[Link]"

var (
	emojis   = []string{"🔥", "🚀", "💥", "✨", "💡", "💯", "🛍️"}
	hashtags = []string{"#Deals", "#Promo", "#Affiliate", "#ShopSmart", "#LimitedTime"}

	networkLead = map[domain.Network]string{
		domain.NetworkAwin:    "%s — grab it now! " + LinkPlaceholder,
		domain.NetworkRakuten: "%s — special offer inside! " + LinkPlaceholder,
	}
)

// Build produces the stored caption for an offer name. The link placeholder
// stays unresolved until the publish cycle.
func Build(name string, network domain.Network) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "New offer"
	}

	lead, ok := networkLead[network]
	if !ok {
		lead = "%s — check it out! " + LinkPlaceholder
	}

	return fmt.Sprintf(lead, name) + "\n\n" +
		emojis[rand.Intn(len(emojis))] + " " +
		hashtags[rand.Intn(len(hashtags))] + " " +
		hashtags[rand.Intn(len(hashtags))]
}

// Substitute replaces the link placeholder with the final tracking link. If
// the caption carries no placeholder the link is appended on its own line so
// the post always contains it.
func Substitute(caption, link string) string {
	if strings.Contains(caption, LinkPlaceholder) {
		return strings.ReplaceAll(caption, LinkPlaceholder, link)
	}
	if strings.Contains(caption, link) {
		return caption
	}
	return strings.TrimRight(caption, "\n") + "\n" + link
}
