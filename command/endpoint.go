package command

import "io"

// EndpointKind selects how a Command's stdin source or stdout/stderr sink is
// driven.
type EndpointKind int

const (
	// Process leaves the endpoint to the owning process: no extra mirroring
	// beyond the always-on capture buffer (for stdout/stderr) or no stdin
	// fed at all (for stdin, meaning the child sees immediate EOF).
	Process EndpointKind = iota
	// JVM inherits the parent process's own stdio (os.Stdin/Stdout/Stderr).
	JVM
	// File reads/writes a plain file at Path, truncating on open for sinks.
	File
	// FileAppend opens Path for append instead of truncation.
	FileAppend
	// Stream drives the endpoint from/to a user-supplied io.Reader/io.Writer.
	Stream
)

// StdinSource describes where a Command's standard input comes from.
type StdinSource struct {
	Kind   EndpointKind
	Path   string
	Reader io.Reader // used when Kind == Stream
}

// StdinFromProcess yields no stdin data; the child sees immediate EOF.
func StdinFromProcess() StdinSource { return StdinSource{Kind: Process} }

// StdinInherit feeds the parent's own stdin to the child.
func StdinInherit() StdinSource { return StdinSource{Kind: JVM} }

// StdinFromFile feeds the contents of path to the child.
func StdinFromFile(path string) StdinSource { return StdinSource{Kind: File, Path: path} }

// StdinFromReader feeds r to the child.
func StdinFromReader(r io.Reader) StdinSource { return StdinSource{Kind: Stream, Reader: r} }

// OutputSink describes where a Command's stdout or stderr is mirrored, in
// addition to the buffer that always captures it.
type OutputSink struct {
	Kind   EndpointKind
	Path   string
	Writer io.Writer // used when Kind == Stream
}

// OutputDiscard mirrors nothing beyond the capture buffer.
func OutputDiscard() OutputSink { return OutputSink{Kind: Process} }

// OutputInherit mirrors to the parent's own stdout/stderr.
func OutputInherit() OutputSink { return OutputSink{Kind: JVM} }

// OutputToFile mirrors to path, truncating it first.
func OutputToFile(path string) OutputSink { return OutputSink{Kind: File, Path: path} }

// OutputAppendToFile mirrors to path, appending to any existing content.
func OutputAppendToFile(path string) OutputSink { return OutputSink{Kind: FileAppend, Path: path} }

// OutputToWriter mirrors to w.
func OutputToWriter(w io.Writer) OutputSink { return OutputSink{Kind: Stream, Writer: w} }
