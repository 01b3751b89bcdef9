package collect

import "github.com/google/uuid"

// identity returns the item's stable identity token: the feed GUID, else the
// link, else a name-based UUID over the content so that re-fetching the same
// content yields the same token.
func identity(guid, link, content string) string {
	if guid != "" {
		return guid
	}
	if link != "" {
		return link
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(content)).String()
}
