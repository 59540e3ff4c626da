// Package mailer renders Markdown e-mail templates and relays them over
// SMTP.
//
// Templates are configured by name with a file path and a subject. Each
// template body is a text/template whose dot is the caller's data map
// plus an "account" entry holding the recipient account. The rendered
// Markdown is converted to HTML with goldmark and sent as a multipart
// message with a plain-text alternative.
//
// A Mailer without SMTP configuration is inactive: every send is a no-op
// that returns a nil message.
package mailer
