// Package tgui renders small Telegram HTML cards (title, key/value rows,
// bullets) with escaping applied by default.
package tgui
