package dsl

import (
	"strings"
	"testing"

	"github.com/Dario-Soria/Postty-sub002/scene"
)

func parseScene(t *testing.T, input string) *scene.Scene {
	t.Helper()
	s, err := ParseScene(strings.NewReader(input))
	if err != nil {
		t.Fatalf("解析场景 DSL 失败: %v", err)
	}
	return s
}

// TestParseMinimalScene 最小文档：只有画布声明。
func TestParseMinimalScene(t *testing.T) {
	s := parseScene(t, `scene 1080 1350 {}`)
	if s.Canvas.Width != 1080 || s.Canvas.Height != 1350 {
		t.Fatalf("画布尺寸错误: %+v", s.Canvas)
	}
	if s.Canvas.BackgroundFit != scene.FitCover {
		t.Fatalf("默认背景适配应为 cover")
	}
}

// TestParseFullScene 覆盖全部命令类型，命令顺序即图层顺序。
func TestParseFullScene(t *testing.T) {
	input := `
scene 1080 1350 {
	background {
		fit: contain
		position: [0.5, 0.3]
	}
	vignette { color: #000000; strength: 0.4 }
	grain { amount: 0.12; opacity: 0.3 }
	rect {
		box: [40, 40, 400, 200]
		fill: #00000080
		radius: 12
	}
	text "Summer Sale" {
		box: [40, 300, 1000, 300]
		font: "Inter"
		size: 64; weight: 700; style: italic
		align: center; valign: middle
		overflow: shrink; min-font-size: 24; max-lines: 2
		fill: #ffffff
		line-height: 1.3; letter-spacing: 1.5
		stroke: [#000000, 2]
		shadow: [#000000, 8, 0, 2]
		padding: 12
		background: [#00000080, 10]
		rotate: -6
		opacity: 0.9
	}
	image "logo.png" { box: [20, 20, 128, 128]; fit: contain }
	path "M0 0 L10 10" { fill: #ff0000 }
}
`
	s := parseScene(t, input)
	if s.Canvas.BackgroundFit != scene.FitContain {
		t.Fatalf("背景适配错误: %s", s.Canvas.BackgroundFit)
	}
	if s.Canvas.BackgroundPosition != (scene.Position{X: 0.5, Y: 0.3}) {
		t.Fatalf("背景位置错误: %+v", s.Canvas.BackgroundPosition)
	}
	if s.Canvas.Effects == nil || s.Canvas.Effects.Vignette == nil || s.Canvas.Effects.Grain == nil {
		t.Fatalf("效果未解析: %+v", s.Canvas.Effects)
	}
	if s.Canvas.Effects.Vignette.Strength != 0.4 || s.Canvas.Effects.Grain.Amount != 0.12 {
		t.Fatalf("效果参数错误")
	}

	kinds := []scene.OverlayKind{scene.KindRect, scene.KindText, scene.KindImage, scene.KindPath}
	if len(s.Overlays) != len(kinds) {
		t.Fatalf("期望 %d 个叠加层，实际 %d", len(kinds), len(s.Overlays))
	}
	for i, want := range kinds {
		if s.Overlays[i].Kind != want {
			t.Fatalf("第 %d 层期望 %s，实际 %s", i, want, s.Overlays[i].Kind)
		}
	}

	rc := s.Overlays[0].Rect
	if rc.X != 40 || rc.Width != 400 || rc.Radius != 12 || rc.Fill == nil || rc.Fill.A != 0x80 {
		t.Fatalf("矩形解析错误: %+v", rc)
	}

	txt := s.Overlays[1].Text
	if txt.Text != "Summer Sale" || txt.Font.Family != "Inter" || txt.Font.Size != 64 {
		t.Fatalf("文本基本属性错误: %+v", txt)
	}
	if txt.Font.Weight != 700 || txt.Font.Style != scene.StyleItalic || txt.Font.LineHeight != 1.3 {
		t.Fatalf("字体属性错误: %+v", txt.Font)
	}
	if txt.Align != scene.AlignCenter || txt.VerticalAlign != scene.VAlignMiddle {
		t.Fatalf("对齐错误")
	}
	if txt.Overflow != scene.OverflowShrink || txt.MinFontSize != 24 || txt.MaxLines != 2 {
		t.Fatalf("溢出策略错误: %+v", txt)
	}
	if txt.Stroke == nil || txt.Stroke.Width != 2 || txt.Shadow == nil || txt.Shadow.Blur != 8 {
		t.Fatalf("描边/投影错误")
	}
	if txt.Padding != (scene.Insets{Top: 12, Right: 12, Bottom: 12, Left: 12}) {
		t.Fatalf("内边距错误: %+v", txt.Padding)
	}
	if txt.Background == nil || txt.Background.Radius != 10 {
		t.Fatalf("文本底色错误")
	}
	if txt.Transform == nil || txt.Transform.Rotate != -6 {
		t.Fatalf("旋转错误: %+v", txt.Transform)
	}
	if txt.Alpha() != 0.9 {
		t.Fatalf("不透明度错误: %v", txt.Alpha())
	}

	img := s.Overlays[2].Image
	if img.Src != "logo.png" || img.Fit != scene.FitContain || img.Box.Width != 128 {
		t.Fatalf("图片层错误: %+v", img)
	}
	if got := s.Overlays[3].Path.Paths; len(got) != 1 || got[0] != "M0 0 L10 10" {
		t.Fatalf("路径层错误: %+v", got)
	}
}

// TestParseAppliesTextDefaults 降解后补默认值，与 JSON 输入行为一致。
func TestParseAppliesTextDefaults(t *testing.T) {
	s := parseScene(t, `scene 100 100 {
	text "hi" { box: [0, 0, 50, 50]; font: "Inter"; size: 12 }
}`)
	txt := s.Overlays[0].Text
	if txt.Overflow != scene.OverflowAuto || txt.MinFontSize != 8 || txt.Font.LineHeight != 1.2 {
		t.Fatalf("默认值未补齐: %+v", txt)
	}
}

// TestParseComments 行注释被忽略。
func TestParseComments(t *testing.T) {
	s := parseScene(t, `// 顶部说明
scene 10 10 {
	// 一块底色
	rect { box: [0, 0, 10, 10]; fill: #fff }
}`)
	if len(s.Overlays) != 1 {
		t.Fatalf("注释影响了解析: %+v", s.Overlays)
	}
}

// TestParseErrors 结构性错误必须报错而不是静默吞掉。
func TestParseErrors(t *testing.T) {
	cases := []string{
		`scene 0 100 {}`,                            // 画布尺寸非法
		`scene 10 10 { sticker "x" {} }`,            // 未知命令
		`scene 10 10 { text "x" {} }`,               // 文本缺 box
		`scene 10 10 { text { box: [0,0,1,1] } }`,   // 文本缺内容
		`scene 10 10 { path {} }`,                   // 路径缺数据
		`scene 10 10 { rect { fill: #fff; fill: #000 } }`, // 属性重复
	}
	for _, input := range cases {
		if _, err := ParseScene(strings.NewReader(input)); err == nil {
			t.Fatalf("应报错: %s", input)
		}
	}
}

// TestStringEscapes 字符串字面量支持 Go 风格转义。
func TestStringEscapes(t *testing.T) {
	s := parseScene(t, `scene 10 10 {
	text "first\nsecond" { box: [0, 0, 10, 10]; font: "Inter"; size: 8 }
}`)
	if s.Overlays[0].Text.Text != "first\nsecond" {
		t.Fatalf("转义错误: %q", s.Overlays[0].Text.Text)
	}
}
