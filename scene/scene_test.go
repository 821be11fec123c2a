package scene

import (
	"strings"
	"testing"
)

const sampleJSON = `{
  "canvas": {"width": 1080, "height": 1350, "effects": {"vignette": {"color": "#000", "strength": 0.4}}},
  "overlays": [
    {"type": "rect", "x": 40, "y": 40, "width": 400, "height": 200, "fill": "#00000080", "radius": 12},
    {"type": "text", "text": "大促销", "box": {"x": 40, "y": 300, "width": 1000, "height": 200},
     "font": {"family": "Noto Sans SC", "size": 64}, "fill": "#fff", "padding": 12},
    {"type": "path", "paths": ["M0 0 L10 10"], "fill": "#ff0000"},
    {"type": "image", "src": "logo.png", "box": {"x": 0, "y": 0, "width": 128, "height": 128}}
  ]
}`

// TestDecodeTaggedUnion 按 type 字段分派到对应叠加层结构，恰有一个指针非空。
func TestDecodeTaggedUnion(t *testing.T) {
	s, err := Decode(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if len(s.Overlays) != 4 {
		t.Fatalf("期望 4 个叠加层，实际 %d", len(s.Overlays))
	}
	kinds := []OverlayKind{KindRect, KindText, KindPath, KindImage}
	for i, want := range kinds {
		if s.Overlays[i].Kind != want {
			t.Fatalf("第 %d 层期望 %s，实际 %s", i, want, s.Overlays[i].Kind)
		}
		nonNil := 0
		if s.Overlays[i].Rect != nil {
			nonNil++
		}
		if s.Overlays[i].Text != nil {
			nonNil++
		}
		if s.Overlays[i].Path != nil {
			nonNil++
		}
		if s.Overlays[i].Image != nil {
			nonNil++
		}
		if nonNil != 1 {
			t.Fatalf("第 %d 层应恰有一个具体结构，实际 %d", i, nonNil)
		}
	}
	if s.Overlays[1].Text.Text != "大促销" {
		t.Fatalf("文本内容错误: %q", s.Overlays[1].Text.Text)
	}
}

// TestDecodeUnknownType 未知 type 报错而不是静默跳过。
func TestDecodeUnknownType(t *testing.T) {
	bad := `{"canvas": {"width": 1, "height": 1}, "overlays": [{"type": "video"}]}`
	if _, err := Decode(strings.NewReader(bad)); err == nil {
		t.Fatalf("未知叠加层类型应报错")
	}
}

// TestApplyDefaults 解码即补默认值：背景适配、文本对齐与字体参数。
func TestApplyDefaults(t *testing.T) {
	s, err := Decode(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if s.Canvas.BackgroundFit != FitCover {
		t.Fatalf("背景适配默认 cover，实际 %s", s.Canvas.BackgroundFit)
	}
	if s.Canvas.BackgroundPosition != (Position{X: 0.5, Y: 0.5}) {
		t.Fatalf("背景位置默认居中，实际 %+v", s.Canvas.BackgroundPosition)
	}
	if s.Canvas.Effects.Vignette.Radius != 0.75 {
		t.Fatalf("暗角半径默认 0.75，实际 %v", s.Canvas.Effects.Vignette.Radius)
	}
	txt := s.Overlays[1].Text
	if txt.Align != AlignLeft || txt.VerticalAlign != VAlignTop || txt.Overflow != OverflowAuto {
		t.Fatalf("文本默认值错误: %+v", txt)
	}
	if txt.MinFontSize != 8 || txt.Font.Weight != 400 || txt.Font.LineHeight != 1.2 || txt.Font.Style != StyleNormal {
		t.Fatalf("字体默认值错误: %+v", txt.Font)
	}
}

// TestInsetsNumberOrObject padding 支持数字与对象两种写法。
func TestInsetsNumberOrObject(t *testing.T) {
	s, err := Decode(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	p := s.Overlays[1].Text.Padding
	if p != (Insets{Top: 12, Right: 12, Bottom: 12, Left: 12}) {
		t.Fatalf("数字写法应铺到四边: %+v", p)
	}

	obj := `{"canvas": {"width": 1, "height": 1}, "overlays": [{"type": "text", "text": "x",
	  "box": {"x":0,"y":0,"width":10,"height":10}, "font": {"family":"a","size":10}, "fill": "#000",
	  "padding": {"top": 1, "right": 2, "bottom": 3, "left": 4}}]}`
	s2, err := Decode(strings.NewReader(obj))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if s2.Overlays[0].Text.Padding != (Insets{Top: 1, Right: 2, Bottom: 3, Left: 4}) {
		t.Fatalf("对象写法解析错误: %+v", s2.Overlays[0].Text.Padding)
	}
}

// TestParseColor 覆盖三种十六进制与 rgba() 写法。
func TestParseColor(t *testing.T) {
	cases := []struct {
		in   string
		want Color
	}{
		{"#fff", Color{255, 255, 255, 255}},
		{"#1a2b3c", Color{0x1a, 0x2b, 0x3c, 255}},
		{"#1a2b3c80", Color{0x1a, 0x2b, 0x3c, 0x80}},
		{"rgba(255, 0, 0, 0.5)", Color{255, 0, 0, 128}},
		{"rgb(0, 128, 255)", Color{0, 128, 255, 255}},
	}
	for _, c := range cases {
		got, err := ParseColor(c.in)
		if err != nil || got != c.want {
			t.Fatalf("%q: 期望 %+v，实际 %+v err=%v", c.in, c.want, got, err)
		}
	}
	for _, bad := range []string{"", "red", "#12345", "rgba(300,0,0,1)", "rgba(0,0,0,2)"} {
		if _, err := ParseColor(bad); err == nil {
			t.Fatalf("%q 应解析失败", bad)
		}
	}
}

// TestColorCanonicalHex 序列化统一为十六进制，保证场景哈希的规范形态。
func TestColorCanonicalHex(t *testing.T) {
	opaque := Color{0x1a, 0x2b, 0x3c, 0xff}
	if opaque.Hex() != "#1a2b3c" {
		t.Fatalf("不透明色应省略 alpha: %s", opaque.Hex())
	}
	translucent := Color{0, 0, 0, 0x80}
	if translucent.Hex() != "#00000080" {
		t.Fatalf("半透明色应带 alpha: %s", translucent.Hex())
	}
}

// TestSeedStable 同一场景的种子稳定；内容变化种子随之变化。
func TestSeedStable(t *testing.T) {
	a, err := Decode(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	b, err := Decode(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if a.Seed() != b.Seed() {
		t.Fatalf("同一场景两次哈希不一致")
	}
	b.Overlays[1].Text.Text = "换个文案"
	if a.Seed() == b.Seed() {
		t.Fatalf("内容变化后种子应不同")
	}
}

// TestParseFit 未知值回落到 cover。
func TestParseFit(t *testing.T) {
	if ParseFit(" Contain ") != FitContain || ParseFit("STRETCH") != FitStretch || ParseFit("weird") != FitCover {
		t.Fatalf("ParseFit 规范化错误")
	}
}
