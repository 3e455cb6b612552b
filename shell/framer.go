package shell

import "bytes"

// Framer splits a stream of arbitrarily sized chunks into newline-terminated lines.
// The zero value is ready to use. A Framer is not safe for concurrent use.
type Framer struct {
	pending []byte
}

// Push appends a chunk to the stream and returns the lines it completed, without their trailing newline.
// Bytes after the last newline are kept until a later chunk terminates them.
func (f *Framer) Push(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	fragments := bytes.Split(chunk, []byte{'\n'})
	last := fragments[len(fragments)-1]
	fragments = fragments[:len(fragments)-1]

	var lines []string
	for i, frag := range fragments {
		if i == 0 && len(f.pending) > 0 {
			lines = append(lines, string(f.pending)+string(frag))
			continue
		}
		lines = append(lines, string(frag))
	}

	if len(fragments) == 0 {
		f.pending = append(f.pending, last...)
	} else {
		f.pending = append(f.pending[:0], last...)
	}
	return lines
}

// Pending returns the bytes of the current incomplete line.
func (f *Framer) Pending() []byte {
	return f.pending
}

// Reset discards any incomplete line.
func (f *Framer) Reset() {
	f.pending = nil
}
