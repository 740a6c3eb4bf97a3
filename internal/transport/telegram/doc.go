// Package telegram implements the outbound Telegram side with telebot:
// an Adapter that sends text and posts (media, albums, link buttons) and a
// ChannelSender that plugs the adapter into the broadcast engine.
package telegram
