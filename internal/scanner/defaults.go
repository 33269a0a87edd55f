// Package scanner walks the host tree and applies aliases to every item it
// can identify, either for one inserted subtree or for the whole tree.
package scanner

// DefaultItemAttribute marks a channel row in the current host markup
const DefaultItemAttribute = "data-channel-id"

// DefaultSelectors are the item-container shapes a whole scan covers, most
// explicit first. Overlaps are expected.
var DefaultSelectors = []string{
	`[data-channel-id]`,
	`[data-item-id]`,
	`[data-list-item-id]`,
	`[data-dnd-name]`,
	`[class*="channel"]`,
	`[class*="item"]`,
	`[role="listitem"]`,
	`a[href*="/channels/"]`,
	`[class*="link"]`,
	`[class*="interactive"]`,
}
