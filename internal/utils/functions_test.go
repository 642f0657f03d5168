package utils

import (
	"path/filepath"
	"testing"
)

func TestFileURL(t *testing.T) {
	tests := []struct {
		revision string
		file     string
		want     string
	}{
		{"", "model.safetensors", "https://hf-mirror.com/Intel/dynamic_tinybert/resolve/main/model.safetensors"},
		{"v1.0", "onnx/model.onnx", "https://hf-mirror.com/Intel/dynamic_tinybert/resolve/v1.0/onnx/model.onnx"},
		{"main", "weights/part 1.bin", "https://hf-mirror.com/Intel/dynamic_tinybert/resolve/main/weights/part%201.bin"},
	}
	for _, tt := range tests {
		got := FileURL(MirrorEndpoint, "Intel/dynamic_tinybert", tt.revision, tt.file)
		if got != tt.want {
			t.Errorf("FileURL(%q, %q) = %q, want %q", tt.revision, tt.file, got, tt.want)
		}
	}
}

func TestBuildTargets(t *testing.T) {
	dir := filepath.Join("cache", "dynamic_tinybert")
	files := []string{"pytorch_model.bin", "", "  ", "onnx/model.onnx", "pytorch_model.bin"}
	targets := BuildTargets(OriginEndpoint, "Intel/dynamic_tinybert", "main", dir, files)
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2: %+v", len(targets), targets)
	}
	if targets[0].DisplayName != "pytorch_model.bin" || targets[1].DisplayName != "onnx/model.onnx" {
		t.Errorf("unexpected order: %+v", targets)
	}
	if want := filepath.Join(dir, "onnx", "model.onnx"); targets[1].LocalPath != want {
		t.Errorf("LocalPath = %q, want %q", targets[1].LocalPath, want)
	}
	if want := "https://huggingface.co/Intel/dynamic_tinybert/resolve/main/onnx/model.onnx"; targets[1].URL != want {
		t.Errorf("URL = %q, want %q", targets[1].URL, want)
	}
}

func TestResolveEndpoint(t *testing.T) {
	t.Setenv("HF_ENDPOINT", "https://env.example/")
	if got := ResolveEndpoint("", true); got != OriginEndpoint {
		t.Errorf("origin flag: got %q", got)
	}
	if got := ResolveEndpoint("https://flag.example/", false); got != "https://flag.example" {
		t.Errorf("endpoint flag: got %q", got)
	}
	if got := ResolveEndpoint("", false); got != "https://env.example" {
		t.Errorf("env: got %q", got)
	}
	t.Setenv("HF_ENDPOINT", "")
	if got := ResolveEndpoint("", false); got != MirrorEndpoint {
		t.Errorf("default: got %q", got)
	}
}

func TestResolveTokenPrefersEnv(t *testing.T) {
	t.Setenv("HF_TOKEN", "")
	if got := ResolveToken("flag"); got != "flag" {
		t.Errorf("got %q, want flag", got)
	}
	t.Setenv("HF_TOKEN", "env")
	if got := ResolveToken("flag"); got != "env" {
		t.Errorf("got %q, want env", got)
	}
}

func TestDefaultCacheDir(t *testing.T) {
	t.Setenv("HF_HUB_CACHE", "/data/hub")
	t.Setenv("HF_HOME", "/data/home")
	if got, _ := DefaultCacheDir(); got != filepath.Join("/data/hub", "hfd") {
		t.Errorf("HF_HUB_CACHE: got %q", got)
	}
	t.Setenv("HF_HUB_CACHE", "")
	if got, _ := DefaultCacheDir(); got != filepath.Join("/data/home", "hub", "hfd") {
		t.Errorf("HF_HOME: got %q", got)
	}
}

func TestValidateModelID(t *testing.T) {
	valid := []string{"gpt2", "Intel/dynamic_tinybert", "/org/model/"}
	invalid := []string{"", "/", "org//model", "../etc", "org/.."}
	for _, id := range valid {
		if err := ValidateModelID(id); err != nil {
			t.Errorf("ValidateModelID(%q) = %v", id, err)
		}
	}
	for _, id := range invalid {
		if err := ValidateModelID(id); err == nil {
			t.Errorf("ValidateModelID(%q) accepted", id)
		}
	}
	if got := ModelDirName("Intel/dynamic_tinybert"); got != "dynamic_tinybert" {
		t.Errorf("ModelDirName = %q", got)
	}
}

func TestParseHeaderArgs(t *testing.T) {
	got := ParseHeaderArgs([]string{"Cookie: a=b", "X-Trace:  42 ", "no-colon", ": empty-key", "Referer: https://hf-mirror.com/x"})
	want := map[string]string{"Cookie": "a=b", "X-Trace": "42", "Referer": "https://hf-mirror.com/x"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}
