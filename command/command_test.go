package command

import (
	"bytes"
	"context"
	"io"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func shEcho(s string) Command {
	if runtime.GOOS == "windows" {
		return New("cmd", "/C", "echo "+s)
	}
	return New("/bin/sh", "-c", "printf '%s'", s)
}

func TestExecute_CapturesStdout(t *testing.T) {
	res, err := New("/bin/sh", "-c", "printf hello").Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "hello", res.StdoutString())
}

func TestExecute_EmptyStdin_ChildSeesEOFImmediately(t *testing.T) {
	res, err := New("/bin/sh", "-c", "cat; echo done$?").WithStdin(StdinFromProcess()).Execute(context.Background())
	require.NoError(t, err)
	require.Contains(t, res.StdoutString(), "done")
}

func TestExecute_NonZeroExit_FailsWithResult(t *testing.T) {
	_, err := New("/bin/sh", "-c", "exit 7").Execute(context.Background())
	var cf *Failure
	require.ErrorAs(t, err, &cf)
	require.Equal(t, 7, cf.Result.ExitCode)
}

func TestExecute_CustomSuccessPredicate(t *testing.T) {
	res, err := New("/bin/sh", "-c", "exit 7").WithSuccessPredicate(func(r *Result) bool {
		return r.ExitCode == 7
	}).Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, res.ExitCode)
}

func TestAwait_CalledTwice_ReturnsEqualResults(t *testing.T) {
	p, err := New("/bin/sh", "-c", "printf xyz").Start()
	require.NoError(t, err)
	r1, err1 := p.Await(context.Background())
	r2, err2 := p.Await(context.Background())
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Same(t, r1, r2)
	require.Equal(t, r1.Stdout, r2.Stdout)
}

func TestAwaitTimeout_ElapsesWithoutKilling(t *testing.T) {
	p, err := New("/bin/sh", "-c", "sleep 0.3; printf ok").Start()
	require.NoError(t, err)
	_, err = p.AwaitTimeout(context.Background(), 20*time.Millisecond)
	var to *Timeout
	require.ErrorAs(t, err, &to)

	// process was not killed: a later Await still sees the real result.
	res, err := p.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", res.StdoutString())
}

func TestKill_EndsProcessAndUnblocksAwait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := New("/bin/sh", "-c", "sleep 5").Start()
	require.NoError(t, err)
	done := make(chan struct{})
	var awaitErr error
	go func() {
		_, awaitErr = p.Await(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, p.Kill())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process was not killed")
	}
	require.Error(t, awaitErr)
}

func TestStdoutReader_StreamsWhileAwaitAlsoSeesFullOutput(t *testing.T) {
	p, err := New("/bin/sh", "-c", "for i in 1 2 3; do printf \"%s\" $i; sleep 0.02; done").Start()
	require.NoError(t, err)

	reader := p.StdoutReader()
	var streamed bytes.Buffer
	readDone := make(chan struct{})
	go func() {
		io.Copy(&streamed, reader)
		close(readDone)
	}()

	res, err := p.Await(context.Background())
	require.NoError(t, err)
	<-readDone
	require.Equal(t, "123", res.StdoutString())
	require.Equal(t, "123", streamed.String())
}

func TestCaptureBuffer_MultipleReadersSeeSameBytes(t *testing.T) {
	buf := NewCaptureBuffer()
	r1 := buf.NewReader()
	r2 := buf.NewReader()

	go func() {
		buf.Write([]byte("abc"))
		buf.Write([]byte("def"))
		buf.Close()
	}()

	got1, err1 := io.ReadAll(r1)
	got2, err2 := io.ReadAll(r2)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, "abcdef", string(got1))
	require.Equal(t, "abcdef", string(got2))
}

func TestCaptureBuffer_LargeWriteNotLost(t *testing.T) {
	buf := NewCaptureBuffer()
	r := buf.NewReader()
	payload := bytes.Repeat([]byte("x"), 1<<20) // 1 MiB

	go func() {
		buf.Write(payload)
		buf.Close()
	}()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Len(t, got, len(payload))
}

func TestCaptureReader_MarkReset(t *testing.T) {
	buf := NewCaptureBuffer()
	buf.Write([]byte("hello"))
	buf.Close()
	r := buf.NewReader()

	first := make([]byte, 2)
	n, err := r.Read(first)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	r.Mark()

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "llo", string(rest))

	r.Reset()
	rest2, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "llo", string(rest2))
}

func TestWithStdout_MirrorsToFileAndStillCaptures(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.txt"
	res, err := New("/bin/sh", "-c", "printf mirrored").WithStdout(OutputToFile(path)).Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, "mirrored", res.StdoutString())

	fileBytes, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "mirrored", string(fileBytes))
}

func TestWithStdin_FromReader(t *testing.T) {
	res, err := New("/bin/sh", "-c", "cat").WithStdin(StdinFromReader(strings.NewReader("piped in"))).Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, "piped in", res.StdoutString())
}

func TestStart_UnknownExecutable_StartFailure(t *testing.T) {
	_, err := New("definitely-not-a-real-binary-xyz").Start()
	var sf *StartFailure
	require.ErrorAs(t, err, &sf)
}
