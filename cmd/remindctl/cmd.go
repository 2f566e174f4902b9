package main

import (
	"io"

	"github.com/urfave/cli"
)

var (
	globalFlags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "bot config file; its storage section selects the calendar",
		},
		cli.StringFlag{
			Name:  "db",
			Value: "./calendar_db.json",
			Usage: "calendar file (ignored with --config)",
		},
		cli.StringFlag{
			Name:  "driver",
			Value: "file",
			Usage: "storage driver: file or sqlite (ignored with --config)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "warn",
			Usage: "trace, debug, info, warn or error",
		},
	}

	dateFlag = cli.StringFlag{
		Name:  "date, d",
		Usage: "calendar date as YYYY-MM-DD (default: today)",
	}
	eventFlag = cli.StringFlag{
		Name:  "event, e",
		Usage: "event text",
	}
)

// Execute runs the CLI with args (args[0] is the program name) and writes
// command output to out.
func Execute(args []string, out io.Writer) error {
	app := cli.NewApp()
	app.Name = "remindctl"
	app.HelpName = "remindctl"
	app.Usage = "edit the spaced reminder calendar"
	app.UsageText = "remindctl [global options] <command> [arguments...]"
	app.Writer = out
	app.Flags = globalFlags
	app.Commands = []cli.Command{
		{
			Name:   "add",
			Usage:  "add one event on one date",
			Flags:  []cli.Flag{dateFlag, eventFlag},
			Action: add,
		},
		{
			Name:   "show",
			Usage:  "print the events of a date",
			Flags:  []cli.Flag{dateFlag},
			Action: show,
		},
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Usage:   "print every date with its events",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "from", Usage: "first date to print"},
			},
			Action: list,
		},
		{
			Name:  "prune",
			Usage: "remove every date before the given one",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "before, b", Usage: "cutoff date (kept)"},
			},
			Action: prune,
		},
		{
			Name:  "schedule",
			Usage: "add an event on an exponential spacing",
			Flags: []cli.Flag{
				eventFlag,
				cli.Float64Flag{Name: "growth, g", Value: 2, Usage: "gap growth factor in [1, 5]"},
				cli.StringFlag{Name: "start, s", Usage: "first date (default: today)"},
				cli.BoolFlag{Name: "dates", Usage: "print every generated date"},
			},
			Action: schedule,
		},
		{
			Name:  "export",
			Usage: "write the calendar as an iCalendar file",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "out, o", Usage: "output file (default: stdout)"},
			},
			Action: export,
		},
		{
			Name:  "import",
			Usage: "add the events of an iCalendar file",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "in, i", Usage: "input .ics file"},
				cli.StringFlag{Name: "timezone, tz", Value: "UTC", Usage: "zone for timed events"},
			},
			Action: importICS,
		},
	}
	return app.Run(args)
}
