// Package tgui builds Telegram HTML messages: escaping helpers and a small
// line-oriented builder whose output is safe for ParseMode "HTML".
package tgui
