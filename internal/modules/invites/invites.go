package invites

import (
	"regexp"

	"sentinel-automod/internal/utils"
)

var invitePattern = regexp.MustCompile(`(?i)(?:^|[^\pL\pN.])(?:https?://)?(?:www\.)?(?:discord\.gg|discord(?:app)?\.com/invite|discord\.me|dsc\.gg|invite\.gg)/[\pL\pN_-]+`)

// ContainsProhibitedLink reports whether text carries a server invite link.
// Hosts are canonicalised first so full-width or upper-case lookalikes match.
func ContainsProhibitedLink(text string) bool {
	if text == "" {
		return false
	}
	return invitePattern.MatchString(utils.CanonicalizeHosts(text))
}
