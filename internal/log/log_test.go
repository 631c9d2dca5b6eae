package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatter_Pattern(t *testing.T) {
	f := &formatter{pattern: "%time [%level] %field %msg", time: "15:04:05"}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 1, 10, 20, 30, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "layer faulted",
		Data:    logrus.Fields{"protocol": "sctp", "frame": 7, "error": errors.New("record truncated")},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "10:20:30 [WARNING] error=record truncated,frame=7,protocol=sctp layer faulted", string(out))
}

func TestFormatter_NoFields(t *testing.T) {
	f := &formatter{pattern: "[%level]%field %msg", time: DefaultTimeLayout}
	out, err := f.Format(&logrus.Entry{Level: logrus.InfoLevel, Message: "ok", Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, "[INFO] ok", string(out))
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	m := NewMultiWriter().Add(&a).Add(&b)

	n, err := m.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", a.String())
	assert.Equal(t, "hello", b.String())
	assert.Equal(t, 2, m.Len())
}

func TestNew_Levels(t *testing.T) {
	l, err := New(&Config{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, l.IsDebugEnabled())
	assert.False(t, l.IsTraceEnabled())

	l, err = New(&Config{Level: "bogus"})
	require.NoError(t, err)
	assert.True(t, l.IsInfoEnabled())
	assert.False(t, l.IsDebugEnabled())
}

func TestNew_FileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strix.log")
	l, err := New(&Config{
		Level:   "info",
		Pattern: "%level %field %msg\n",
		Appenders: []AppenderConfig{{
			Type:    "file",
			Options: map[string]interface{}{"filename": path, "max_size": 1},
		}},
	})
	require.NoError(t, err)

	l.WithField("frame", 3).Info("dissected")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO frame=3 dissected\n", string(data))
}

func TestNew_BadAppender(t *testing.T) {
	_, err := New(&Config{Appenders: []AppenderConfig{{Type: "kafka"}}})
	assert.Error(t, err)

	_, err = New(&Config{Appenders: []AppenderConfig{{Type: "file"}}})
	assert.Error(t, err)
}

func TestGetLogger_BeforeInit(t *testing.T) {
	assert.NotNil(t, GetLogger())
	Discard().WithError(errors.New("x")).Error("dropped")
}
