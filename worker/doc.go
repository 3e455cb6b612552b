// Package worker implements both ends of the spreadsheet worker protocol on top of excelize.
//
// Read prints the contents of xlsx files as reader messages, and Write builds an xlsx file from writer commands
// read on its input. Commands exposes both as subcommands so that an executable can serve as its own worker.
package worker
