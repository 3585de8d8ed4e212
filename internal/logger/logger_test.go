package logger

import (
	"bytes"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func redirectLogsToGivenBuffer(buf *bytes.Buffer, severity string) {
	programLevel := new(slog.LevelVar)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, programLevel, "atom-test: "))
	setLoggingLevel(severity, programLevel)
}

func fetchOutputs(severity string, fns []func()) []string {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, severity)

	var out []string
	for _, f := range fns {
		f()
		out = append(out, buf.String())
		buf.Reset()
	}
	return out
}

func testFns() []func() {
	return []func(){
		func() { Tracef("atom 1 entered CAPTURE_FUSE") },
		func() { Debugf("atom 1 fusing with atom 2") },
		func() { Infof("atom 1 committed") },
		func() { Warnf("atom 1 age exceeds atom_max_age") },
		func() { Errorf("atom 1 commit failed") },
	}
}

func validate(t *testing.T, expected, output []string) {
	t.Helper()
	for i := range output {
		if expected[i] == "" {
			assert.Equal(t, "", output[i])
			continue
		}
		assert.Regexp(t, regexp.MustCompile(expected[i]), output[i])
	}
}

func TestSeverityFiltering(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		severity string
		expected []string
	}{
		{"text/OFF", "text", SeverityOff, []string{"", "", "", "", ""}},
		{"text/ERROR", "text", SeverityError, []string{"", "", "", "", `severity=ERROR`}},
		{"text/WARNING", "text", SeverityWarning, []string{"", "", "", `severity=WARNING`, `severity=ERROR`}},
		{"text/INFO", "text", SeverityInfo, []string{"", "", `severity=INFO`, `severity=WARNING`, `severity=ERROR`}},
		{"text/DEBUG", "text", SeverityDebug, []string{"", `severity=DEBUG`, `severity=INFO`, `severity=WARNING`, `severity=ERROR`}},
		{"text/TRACE", "text", SeverityTrace, []string{`severity=TRACE`, `severity=DEBUG`, `severity=INFO`, `severity=WARNING`, `severity=ERROR`}},
		{"json/ERROR", "json", SeverityError, []string{"", "", "", "", `"severity":"ERROR"`}},
		{"json/TRACE", "json", SeverityTrace, []string{`"severity":"TRACE"`, `"severity":"DEBUG"`, `"severity":"INFO"`, `"severity":"WARNING"`, `"severity":"ERROR"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defaultLoggerFactory.format = tt.format
			output := fetchOutputs(tt.severity, testFns())
			validate(t, tt.expected, output)
		})
	}
}

func TestSetLoggingLevel(t *testing.T) {
	cases := []struct {
		severity string
		want     slog.Level
	}{
		{SeverityTrace, LevelTrace},
		{SeverityDebug, LevelDebug},
		{SeverityInfo, LevelInfo},
		{SeverityWarning, LevelWarn},
		{SeverityError, LevelError},
		{SeverityOff, LevelOff},
	}
	for _, c := range cases {
		pl := new(slog.LevelVar)
		setLoggingLevel(c.severity, pl)
		assert.Equal(t, c.want, pl.Level())
	}
}

func TestSetLogFormat(t *testing.T) {
	defaultLoggerFactory = &loggerFactory{
		sysWriter:       io.Discard,
		format:          "text",
		level:           SeverityInfo,
		programLevel:    new(slog.LevelVar),
		logRotateConfig: DefaultLogRotateConfig(),
	}
	setLoggingLevel(SeverityInfo, defaultLoggerFactory.programLevel)

	SetLogFormat("json")
	assert.Equal(t, "json", defaultLoggerFactory.format)

	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, SeverityInfo)
	Infof("atom 1 committed")
	assert.Regexp(t, regexp.MustCompile(`"severity":"INFO"`), buf.String())
}

func TestWithAtom(t *testing.T) {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, SeverityInfo)
	WithAtom(7).Info("committed")
	assert.Contains(t, buf.String(), `"atom":7`)
}
