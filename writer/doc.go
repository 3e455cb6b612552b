// Package writer creates spreadsheet files by sending commands to a writer worker.
//
// A Writer queues commands such as AddSheet and Write on the worker input. The worker reports failures
// asynchronously, so they are collected and returned together by Save once the worker has written the file.
// Dates are sent as {"$date": milliseconds} markers and slices of values are written across rows.
package writer
