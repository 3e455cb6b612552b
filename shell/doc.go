/*
Package shell runs a long-lived worker subprocess and exchanges JSON messages with it over stdio.

Every message in either direction is a single JSON array terminated by a newline. The first element is the tag,
and the remaining elements are the payload. The shape of the payload is inferred from the array length:

	["end-of-input"]                 tag only, no payload
	["open", "/tmp/out.xlsx"]        a single payload value
	["write", 0, 0, [1, 2, 3]]       a list of payload values

The host writes commands to the worker's stdin and reads messages from its stdout. Anything the worker writes to stderr
is treated as a diagnostic: it is accumulated in full and reported as a single WorkerExecutionError once the process exits.

The lifecycle of a Shell proceeds as follows:

1. Start spawns the worker immediately. Spawn failures are not returned, they are delivered as events.
2. The caller sends commands with Send, and reads events from Events.
3. The caller calls End once it has no more commands, which flushes queued commands and closes stdin.
4. The worker finishes its work and exits. The shell drains stdout and stderr, waits for the process,
   reports any execution error, and finally sends a single EventClose before closing the events channel.

Kill, or canceling the context passed to Start, terminates the worker early. This still drives the shell through
the normal close path, so cleanup that is keyed on EventClose runs exactly once.

Consumers must read Events until the channel is closed, since the shell does not drop events.
*/
package shell
