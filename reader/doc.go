// Package reader streams the contents of spreadsheet files out of a worker subprocess.
//
// A Reader interprets the messages of a shell.Shell running the reader worker, and batches cells into rows
// before delivering them as EventData. Batches are flushed when the active sheet changes, when the buffer
// reaches its capacity, and when the stream ends, so a batch always holds whole rows of a single sheet.
//
// Read and ReadFile drive a Reader to completion and assemble whole workbooks in memory.
package reader
