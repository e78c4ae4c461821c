package scanner

import (
	"reflect"
	"testing"
)

func TestScanOrderAndDedup(t *testing.T) {
	text := "首发 https://pan.baidu.com/s/1abcDEF?pwd=wxyz\n" +
		"夸克 https://pan.quark.cn/s/0a1b2c3d\n" +
		"重复 https://pan.quark.cn/s/0a1b2c3d\n"

	matches := Scan(text)
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}

	// Quark matches come first regardless of position in the text.
	if matches[0].Provider != ProviderQuark {
		t.Errorf("Expected first match to be quark, got %s", matches[0].Provider)
	}
	if matches[0].RawURL != "https://pan.quark.cn/s/0a1b2c3d" {
		t.Errorf("Unexpected quark URL: %s", matches[0].RawURL)
	}
	if matches[1].Provider != ProviderBaidu {
		t.Errorf("Expected second match to be baidu, got %s", matches[1].Provider)
	}
	if matches[1].Password != "wxyz" {
		t.Errorf("Expected password wxyz, got %q", matches[1].Password)
	}
}

func TestScanDeterministic(t *testing.T) {
	text := "资源《完美世界》更新\n链接: https://pan.baidu.com/s/1xYz_-9 提取码: abcd\n" +
		"https://pan.quark.cn/s/deadbeef?pwd=1234"

	first := Scan(text)
	second := Scan(text)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical results across scans:\n%+v\n%+v", first, second)
	}
}

func TestScanQuarkKeepsInlineCode(t *testing.T) {
	text := "https://pan.quark.cn/s/deadbeef?pwd=1234"
	matches := Scan(text)
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
	// The code stays in the raw URL; quark matches carry no separate
	// password.
	if matches[0].RawURL != text {
		t.Errorf("Expected raw URL to include the code, got %s", matches[0].RawURL)
	}
	if matches[0].Password != "" {
		t.Errorf("Expected empty password, got %q", matches[0].Password)
	}
}

func TestExtractPasscode(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"https://pan.baidu.com/s/1abcDEF?pwd=wxyz", "wxyz"},
		{"https://pan.baidu.com/s/1abcDEF 提取码: abcd", "abcd"},
		{"https://pan.baidu.com/s/1abcDEF 提取码：abcd", "abcd"},
		{"https://pan.baidu.com/s/1abcDEF k9x2", "k9x2"},
		{"https://pan.baidu.com/s/1abcDEF", ""},
		// Codes on the following line are out of scope.
		{"https://pan.baidu.com/s/1abcDEF\n提取码: abcd", ""},
	}

	for _, tc := range cases {
		matches := Scan(tc.text)
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match for %q, got %d", tc.text, len(matches))
		}
		if matches[0].Password != tc.want {
			t.Errorf("Expected password %q for %q, got %q", tc.want, tc.text, matches[0].Password)
		}
	}
}

func TestInferFolderName(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		// Name on the line above, boilerplate prefix on the link line.
		{"国漫《完美世界》\n链接: https://pan.baidu.com/s/1abcDEF", "国漫完美世界"},
		// Boilerplate-only line above is skipped too.
		{"完美世界\n百度链接\nhttps://pan.baidu.com/s/1abcDEF", "完美世界"},
		// Name and link on the same line.
		{"完美世界 链接: https://pan.baidu.com/s/1abcDEF", "完美世界"},
		// No usable candidate.
		{"https://pan.baidu.com/s/1abcDEF", ""},
		// One-rune leftovers are rejected.
		{"了\nhttps://pan.baidu.com/s/1abcDEF", ""},
	}

	for _, tc := range cases {
		matches := Scan(tc.text)
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match for %q, got %d", tc.text, len(matches))
		}
		if matches[0].FolderName != tc.want {
			t.Errorf("Expected folder name %q for %q, got %q", tc.want, tc.text, matches[0].FolderName)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"【测试】文件 (2024)!!":  "测试 文件 2024",
		"  foo   bar  ":     "foo bar",
		"name_with-dash":    "name_with-dash",
		"《书名》":              "书名",
		"":                  "",
		"!!!":               "",
	}

	for in, want := range cases {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestIsProviderURL(t *testing.T) {
	if !IsProviderURL("https://pan.quark.cn/s/abc") {
		t.Error("Expected quark URL to be recognized")
	}
	if !IsProviderURL("http://pan.baidu.com/s/1abc") {
		t.Error("Expected baidu URL to be recognized")
	}
	if IsProviderURL("https://example.com/s/abc") {
		t.Error("Expected foreign URL not to be recognized")
	}
}
