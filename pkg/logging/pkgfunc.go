package logging

import "context"

// Default is the logger used by the package level logging functions.
var Default Logger

func Debug(ctx context.Context, msg string, ds ...Detail) { Default.Debug(ctx, msg, ds...) }
func Info(ctx context.Context, msg string, ds ...Detail)  { Default.Info(ctx, msg, ds...) }
func Warn(ctx context.Context, msg string, ds ...Detail)  { Default.Warn(ctx, msg, ds...) }
func Error(ctx context.Context, msg string, ds ...Detail) { Default.Error(ctx, msg, ds...) }

type testingTB interface {
	Helper()
	Log(args ...any)
	Cleanup(func())
}

// Testing redirects the Default logger into the test's log output
// for the duration of the test, and enables debug level logging.
func Testing(tb testingTB) {
	tb.Helper()
	prevOut, prevLevel := Default.Out, Default.Level
	Default.Out = testingWriter{TB: tb}
	Default.Level = LevelDebug
	tb.Cleanup(func() {
		Default.Out = prevOut
		Default.Level = prevLevel
	})
}

type testingWriter struct{ TB testingTB }

func (w testingWriter) Write(p []byte) (int, error) {
	w.TB.Helper()
	w.TB.Log(string(p))
	return len(p), nil
}
