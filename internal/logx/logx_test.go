package logx

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogx_PrettyZH_Info(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "pretty", Locale: "zh-CN", Color: "never", Output: &buf})
	Infof("hello %s", "world")
	out := buf.String()
	if !strings.Contains(out, "[信息]") || !strings.Contains(out, "hello world") {
		t.Fatalf("expect zh label [信息], got: %q", out)
	}
}

func TestLogx_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "warn", Locale: "zh-CN", Color: "never", Output: &buf})
	Infof("should not print")
	Warnf("warn on")
	out := buf.String()
	if strings.Contains(out, "should not print") {
		t.Fatalf("info should be filtered when level=warn")
	}
	if !strings.Contains(out, "[警告]") {
		t.Fatalf("expect warn label present, got: %q", out)
	}
}

func TestLogx_EnglishLabelsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Locale: "en", Color: "never", Output: &buf})
	slog.Default().WithGroup("site").With("slug", "a").Info("checked")
	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Fatalf("expect en label [INFO], got: %q", out)
	}
	if !strings.Contains(out, "site.slug=a") {
		t.Fatalf("expect grouped attr, got: %q", out)
	}
}

func TestLogx_Silent(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "off", Output: &buf})
	Errorf("nothing")
	if buf.Len() != 0 {
		t.Fatalf("expect no output, got %q", buf.String())
	}
}

func TestLogx_JSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Output: &buf})
	Infof("json %d", 1)
	if !strings.Contains(buf.String(), `"msg":"json 1"`) {
		t.Fatalf("unexpected json output: %q", buf.String())
	}
}
