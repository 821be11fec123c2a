package canvasrenderer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Dario-Soria/Postty-sub002/compositor"
	"github.com/Dario-Soria/Postty-sub002/scene"
)

func pngBackground(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("编码背景失败: %v", err)
	}
	return buf.Bytes()
}

func renderScene(t *testing.T, sc *scene.Scene, bg []byte) *image.NRGBA {
	t.Helper()
	comp := compositor.New(compositor.Options{FontsDir: t.TempDir()})
	out, err := comp.Render(context.Background(), sc, bg, NewRenderer(nil))
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("输出不是合法 PNG: %v", err)
	}
	nrgba := image.NewNRGBA(decoded.Bounds())
	for y := decoded.Bounds().Min.Y; y < decoded.Bounds().Max.Y; y++ {
		for x := decoded.Bounds().Min.X; x < decoded.Bounds().Max.X; x++ {
			nrgba.Set(x, y, decoded.At(x, y))
		}
	}
	return nrgba
}

// TestRenderOutputsCanvasSizedPNG 输出 PNG 的尺寸恒等于画布声明。
func TestRenderOutputsCanvasSizedPNG(t *testing.T) {
	sc := &scene.Scene{Canvas: scene.Canvas{Width: 120, Height: 90}}
	sc.ApplyDefaults()
	img := renderScene(t, sc, pngBackground(t, 33, 77, color.NRGBA{R: 10, G: 20, B: 30, A: 255}))
	if b := img.Bounds(); b.Dx() != 120 || b.Dy() != 90 {
		t.Fatalf("期望 120×90，实际 %v", b)
	}
}

// TestRenderUnresolvableFontStillProduces 字体完全不可解析时渲染不失败：
// 同尺寸 PNG 照常产出，文本层的底色盒仍绘制。
func TestRenderUnresolvableFontStillProduces(t *testing.T) {
	sc := &scene.Scene{
		Canvas: scene.Canvas{Width: 100, Height: 100},
		Overlays: []scene.Overlay{{Kind: scene.KindText, Text: &scene.TextOverlay{
			Common:     scene.Common{Type: scene.KindText},
			Text:       "no font anywhere",
			Box:        scene.Box{X: 10, Y: 10, Width: 80, Height: 40},
			Font:       scene.FontSpec{Family: "Definitely Missing", Size: 16},
			Fill:       scene.Color{R: 255, A: 255},
			Background: &scene.TextBackground{Color: scene.Color{R: 0, G: 0, B: 255, A: 255}},
		}}},
	}
	sc.ApplyDefaults()
	img := renderScene(t, sc, pngBackground(t, 100, 100, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Fatalf("期望 100×100，实际 %v", b)
	}
	// 底色盒中心应为蓝色
	c := img.NRGBAAt(50, 30)
	if c.B < 200 || c.R > 60 {
		t.Fatalf("文本底色盒未绘制，(50,30)=%+v", c)
	}
}

// TestRenderRectOverlay 矩形层画在背景之上，填充色命中。
func TestRenderRectOverlay(t *testing.T) {
	red := scene.Color{R: 255, A: 255}
	sc := &scene.Scene{
		Canvas: scene.Canvas{Width: 60, Height: 60},
		Overlays: []scene.Overlay{{Kind: scene.KindRect, Rect: &scene.RectOverlay{
			Common: scene.Common{Type: scene.KindRect},
			X:      5, Y: 5, Width: 50, Height: 50,
			Fill: &red,
		}}},
	}
	sc.ApplyDefaults()
	img := renderScene(t, sc, pngBackground(t, 60, 60, color.NRGBA{G: 255, A: 255}))
	c := img.NRGBAAt(30, 30)
	if c.R < 200 || c.G > 60 {
		t.Fatalf("矩形中心应为红色，实际 %+v", c)
	}
	edge := img.NRGBAAt(1, 1)
	if edge.G < 200 {
		t.Fatalf("矩形外应透出绿色背景，实际 %+v", edge)
	}
}

// TestRenderLayerOrder 后声明的图层覆盖先声明的，重叠区以后者为准。
func TestRenderLayerOrder(t *testing.T) {
	red := scene.Color{R: 255, A: 255}
	blue := scene.Color{B: 255, A: 255}
	rect := func(c *scene.Color) scene.Overlay {
		return scene.Overlay{Kind: scene.KindRect, Rect: &scene.RectOverlay{
			Common: scene.Common{Type: scene.KindRect},
			X:      10, Y: 10, Width: 40, Height: 40,
			Fill: c,
		}}
	}
	sc := &scene.Scene{
		Canvas:   scene.Canvas{Width: 60, Height: 60},
		Overlays: []scene.Overlay{rect(&red), rect(&blue)},
	}
	sc.ApplyDefaults()
	img := renderScene(t, sc, pngBackground(t, 60, 60, color.NRGBA{A: 255}))
	c := img.NRGBAAt(30, 30)
	if c.B < 200 || c.R > 60 {
		t.Fatalf("重叠区应为后画的蓝色，实际 %+v", c)
	}
}

// TestRenderOpacityApplied 半透明图层与背景混合，而不是整块覆盖。
func TestRenderOpacityApplied(t *testing.T) {
	half := 0.5
	red := scene.Color{R: 255, A: 255}
	sc := &scene.Scene{
		Canvas: scene.Canvas{Width: 40, Height: 40},
		Overlays: []scene.Overlay{{Kind: scene.KindRect, Rect: &scene.RectOverlay{
			Common: scene.Common{Type: scene.KindRect, Opacity: &half},
			X:      0, Y: 0, Width: 40, Height: 40,
			Fill: &red,
		}}},
	}
	sc.ApplyDefaults()
	img := renderScene(t, sc, pngBackground(t, 40, 40, color.NRGBA{R: 255, G: 255, B: 255, A: 255}))
	c := img.NRGBAAt(20, 20)
	// 白底上叠 50% 红：绿蓝通道应落在中间值附近
	if c.G < 100 || c.G > 160 {
		t.Fatalf("不透明度未生效，(20,20)=%+v", c)
	}
}

// TestRenderGrainByteIdentical 噪点效果下同一场景两次渲染逐字节一致。
func TestRenderGrainByteIdentical(t *testing.T) {
	sc := &scene.Scene{Canvas: scene.Canvas{Width: 48, Height: 48}}
	sc.Canvas.Effects = &scene.Effects{Grain: &scene.Grain{Amount: 0.4, Opacity: 0.5}}
	sc.ApplyDefaults()
	bg := pngBackground(t, 48, 48, color.NRGBA{R: 120, G: 140, B: 160, A: 255})

	comp := compositor.New(compositor.Options{FontsDir: t.TempDir()})
	a, err := comp.Render(context.Background(), sc, bg, NewRenderer(nil))
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	b, err := comp.Render(context.Background(), sc, bg, NewRenderer(nil))
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("同一场景两次渲染输出不一致")
	}
}
