// Package policy resolves what a chat is allowed to see and do, based on
// the static allow_chat configuration.
package policy

import "github.com/verdel/torrent-telegram-bot/config"

// Scope is the permission level of a chat.
type Scope string

const (
	// ScopeNone means the chat is not in the policy at all.
	ScopeNone Scope = ""
	// ScopePersonal restricts a chat to torrents it added itself.
	ScopePersonal Scope = "personal"
	// ScopeAll gives a chat access to every torrent on the engine.
	ScopeAll Scope = "all"
)

// ResolveScope looks chatID up in the policy entries. An unknown chat or an
// empty policy yields ScopeNone. If several entries share the same chat id,
// the first one wins.
func ResolveScope(entries []*config.AllowChat, chatID int64) Scope {
	for _, e := range entries {
		if e.TelegramID != chatID {
			continue
		}
		switch e.TorrentPermission {
		case string(ScopePersonal):
			return ScopePersonal
		case string(ScopeAll):
			return ScopeAll
		default:
			return ScopeNone
		}
	}
	return ScopeNone
}

// ResolveAllowedCategories returns the category allow-list of the first
// entry matching chatID. A nil result means unrestricted: every configured
// category may be used.
func ResolveAllowedCategories(entries []*config.AllowChat, chatID int64) []string {
	for _, e := range entries {
		if e.TelegramID == chatID {
			return e.AllowCategory
		}
	}
	return nil
}

// CategoryAllowed reports whether the chat may use the given category.
func CategoryAllowed(entries []*config.AllowChat, chatID int64, category string) bool {
	allowed := ResolveAllowedCategories(entries, chatID)
	if allowed == nil {
		return true
	}
	for _, c := range allowed {
		if c == category {
			return true
		}
	}
	return false
}
