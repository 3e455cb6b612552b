package worker

import (
	"github.com/urfave/cli/v2"
)

// Commands returns the "read" and "write" worker subcommands.
// They speak the worker protocol on the app's Reader and Writer.
func Commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "read",
			Usage:     "print the contents of spreadsheet files as reader messages",
			ArgsUsage: "PATTERN...",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "meta",
					Aliases: []string{"m"},
					Usage:   "Only report workbooks, without loading any sheet.",
				},
				&cli.StringSliceFlag{
					Name:    "sheet",
					Aliases: []string{"s"},
					Usage:   "Name or index of a sheet to load. Can be repeated, all sheets are loaded if omitted.",
				},
				&cli.IntFlag{
					Name:    "rows",
					Aliases: []string{"r"},
					Usage:   "Maximum number of rows to load from each sheet.",
				},
				&cli.BoolFlag{
					Name:    "verbose",
					Aliases: []string{"v"},
					Usage:   "Include document properties.",
				},
			},
			Action: func(ctx *cli.Context) error {
				opts := ReadOptions{
					MetaOnly: ctx.Bool("meta"),
					Sheets:   ctx.StringSlice("sheet"),
					MaxRows:  ctx.Int("rows"),
					Verbose:  ctx.Bool("verbose"),
				}
				return Read(ctx.Context, ctx.Args().Slice(), opts, ctx.App.Writer)
			},
		},
		{
			Name:  "write",
			Usage: "build a spreadsheet file from writer commands read on stdin",
			Action: func(ctx *cli.Context) error {
				return Write(ctx.Context, ctx.App.Reader, ctx.App.Writer)
			},
		},
	}
}
