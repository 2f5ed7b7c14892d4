// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/desertthunder/occ/internal/shared"
	"github.com/urfave/cli/v3"
)

// setupCommand prepares the local config file and history database
func setupCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}

	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml from the built-in template",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the history database and run migrations",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupDatabase,
			},
		},
	}
}

func strategyFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "strategy",
		Aliases: []string{"s"},
		Usage:   "Update mechanism: " + shared.StrategyStream + " or " + shared.StrategyPoll + " (default from config)",
	}
}

// scansCommand handles scan operations
func scansCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "scans",
		Usage: "List, start, cancel and watch course scans",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List active scans",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ScansList,
			},
			{
				Name:      "get",
				Usage:     "Show the active scan of a course",
				Arguments: []cli.Argument{&cli.StringArg{Name: "course-id"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.ScansGet,
			},
			{
				Name:      "start",
				Usage:     "Request scans for one or more courses",
				ArgsUsage: "<course-id>...",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent requests",
						Value: 4,
					},
					&cli.FloatFlag{
						Name:  "rate",
						Usage: "Maximum requests per second",
						Value: 5,
					},
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "Watch the started scans until they finish",
					},
					strategyFlag(),
				},
				Action: r.ScansStart,
			},
			{
				Name:      "delete",
				Aliases:   []string{"cancel"},
				Usage:     "Cancel a scan by its ID",
				Arguments: []cli.Argument{&cli.StringArg{Name: "scan-id"}},
				Action:    r.ScansDelete,
			},
			{
				Name:      "watch",
				Usage:     "Watch courses until their scans finish and refresh them",
				ArgsUsage: "<course-id>...",
				Flags: []cli.Flag{
					strategyFlag(),
					&cli.BoolFlag{
						Name:  "resume",
						Usage: "Also watch the courses saved on the watch list",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Keep the courses on the watch list until their scan completes",
					},
				},
				Action: r.ScansWatch,
			},
			{
				Name:  "watchlist",
				Usage: "Show the saved watch list",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "clear",
						Usage: "Empty the watch list",
					},
				},
				Action: r.ScansWatchlist,
			},
		},
	}
}

// coursesCommand handles course lookups
func coursesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "courses",
		Usage: "Browse the course library",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List one page of courses",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page number, starting at 1",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "per-page",
						Usage: "Courses per page",
						Value: 25,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CoursesList,
			},
			{
				Name:      "get",
				Usage:     "Show a single course",
				Arguments: []cli.Argument{&cli.StringArg{Name: "course-id"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CoursesGet,
			},
		},
	}
}

// historyCommand handles recorded scan completions
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show scan completions recorded by watch and the dashboard",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of completions to show",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "course",
				Usage: "Only show completions of this course",
			},
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Only show completions with this outcome (refreshed, refresh_failed, completed)",
			},
			&cli.DurationFlag{
				Name:  "since",
				Usage: "Only show completions observed within this duration",
			},
			&cli.StringFlag{
				Name:  "csv",
				Usage: "Write the completions to a CSV file",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:  "prune",
				Usage: "Delete completions older than a duration",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Age of the oldest completion to keep",
						Value: 30 * 24 * time.Hour,
					},
				},
				Action: r.HistoryPrune,
			},
		},
	}
}

// apiCommand handles direct API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the course library API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the response body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// tuiCommand launches the dashboard
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Interactive dashboard for tracking course scans",
		Flags: []cli.Flag{
			strategyFlag(),
			&cli.IntFlag{
				Name:  "page-size",
				Usage: "Number of courses to load",
				Value: 100,
			},
		},
		Action: r.TUI,
	}
}
