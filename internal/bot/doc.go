// Package bot turns chat commands into calendar operations and delivers the
// daily reminder.
//
// Everything a handler needs travels in Deps, built once by the app.
// Commands take fixed positional arguments only.
package bot
