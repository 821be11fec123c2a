// Package svgrenderer 是矢量标记后端：把渲染计划展开成 SVG 场景图文本，
// 交由外部栅格化器成像。与栅格后端消费同一份 LaidOutText，布局结果一致。
package svgrenderer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"

	"github.com/Dario-Soria/Postty-sub002/compositor"
	"github.com/Dario-Soria/Postty-sub002/logging"
	"github.com/Dario-Soria/Postty-sub002/scene"
)

// Renderer 实现 compositor.Backend，输出 SVG 字节。
type Renderer struct {
	logger *slog.Logger
}

var _ compositor.Backend = (*Renderer)(nil)

// NewRenderer 创建矢量后端。logger 为 nil 时静默。
func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Renderer{logger: logger}
}

// Render 逐层输出 SVG 元素。图层顺序即文档顺序，over 语义由 SVG 绘制
// 模型保证；混合模式同样扁平化为普通合成（见栅格后端的说明）。
func (r *Renderer) Render(plan *compositor.Plan) ([]byte, error) {
	if plan == nil || plan.Base == nil {
		return nil, fmt.Errorf("渲染计划为空")
	}
	width := plan.Scene.Canvas.Width
	height := plan.Scene.Canvas.Height

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		width, height, width, height)

	r.writeDefs(&b, plan)

	// 已适配并叠好效果的背景整幅嵌入
	if uri, err := dataURI(plan.Base); err == nil {
		fmt.Fprintf(&b, `<image x="0" y="0" width="%d" height="%d" href=%q/>`+"\n", width, height, uri)
	} else {
		r.logger.Warn("背景编码失败", "err", err)
	}

	for i := range plan.Items {
		r.writeItem(&b, &plan.Items[i], i)
	}

	b.WriteString("</svg>\n")
	return []byte(b.String()), nil
}

// writeDefs 预先声明文本层需要的裁剪路径与投影滤镜。
func (r *Renderer) writeDefs(b *strings.Builder, plan *compositor.Plan) {
	var defs strings.Builder
	for i := range plan.Items {
		t := plan.Items[i].Overlay.Text
		if t == nil {
			continue
		}
		if t.Overflow == scene.OverflowClip || t.Overflow == scene.OverflowEllipsis {
			fmt.Fprintf(&defs, `<clipPath id="clip-%d"><rect x="%s" y="%s" width="%s" height="%s"/></clipPath>`+"\n",
				i, num(t.Box.X), num(t.Box.Y), num(t.Box.Width), num(t.Box.Height))
		}
		if t.Shadow != nil {
			fmt.Fprintf(&defs, `<filter id="shadow-%d" x="-50%%" y="-50%%" width="200%%" height="200%%">`+
				`<feDropShadow dx="%s" dy="%s" stdDeviation="%s" flood-color="%s" flood-opacity="%s"/></filter>`+"\n",
				i, num(t.Shadow.OffsetX), num(t.Shadow.OffsetY), num(t.Shadow.Blur/2),
				hexRGB(t.Shadow.Color), num(float64(t.Shadow.Color.A)/255))
		}
	}
	if defs.Len() > 0 {
		b.WriteString("<defs>\n")
		b.WriteString(defs.String())
		b.WriteString("</defs>\n")
	}
}

func (r *Renderer) writeItem(b *strings.Builder, item *compositor.Item, index int) {
	switch item.Overlay.Kind {
	case scene.KindRect:
		r.writeRect(b, item.Overlay.Rect)
	case scene.KindPath:
		r.writePath(b, item.Overlay.Path)
	case scene.KindImage:
		r.writeImage(b, item)
	case scene.KindText:
		r.writeText(b, item, index)
	}
}

func (r *Renderer) writeRect(b *strings.Builder, rc *scene.RectOverlay) {
	fmt.Fprintf(b, `<rect x="%s" y="%s" width="%s" height="%s"`, num(rc.X), num(rc.Y), num(rc.Width), num(rc.Height))
	if rc.Radius > 0 {
		fmt.Fprintf(b, ` rx="%s"`, num(rc.Radius))
	}
	writePaint(b, rc.Fill, rc.Stroke)
	writeOpacity(b, rc.Alpha())
	b.WriteString("/>\n")
}

func (r *Renderer) writePath(b *strings.Builder, ov *scene.PathOverlay) {
	fmt.Fprintf(b, `<g`)
	writeOpacity(b, ov.Alpha())
	b.WriteString(">\n")
	for _, d := range ov.Paths {
		fmt.Fprintf(b, `<path d=%q`, d)
		writePaint(b, ov.Fill, ov.Stroke)
		b.WriteString("/>\n")
	}
	b.WriteString("</g>\n")
}

// writeImage 先在本地完成 fit 适配，再把盒尺寸的成品嵌入，保证两个后端
// 的取景一致。资源缺失时整层跳过。
func (r *Renderer) writeImage(b *strings.Builder, item *compositor.Item) {
	ov := item.Overlay.Image
	if item.Image == nil {
		return
	}
	fit := ov.Fit
	if fit == "" {
		fit = scene.FitContain
	}
	boxW := int(ov.Box.Width + 0.5)
	boxH := int(ov.Box.Height + 0.5)
	if boxW <= 0 || boxH <= 0 {
		return
	}
	fitted := compositor.FitInto(item.Image, boxW, boxH, fit, scene.Position{X: 0.5, Y: 0.5})
	uri, err := dataURI(fitted)
	if err != nil {
		r.logger.Warn("图片编码失败", "err", err)
		return
	}
	fmt.Fprintf(b, `<image x="%s" y="%s" width="%d" height="%d" href=%q`,
		num(ov.Box.X), num(ov.Box.Y), boxW, boxH, uri)
	writeOpacity(b, ov.Alpha())
	b.WriteString("/>\n")
}

func (r *Renderer) writeText(b *strings.Builder, item *compositor.Item, index int) {
	t := item.Overlay.Text
	laid := item.Text
	if laid == nil {
		return
	}

	fmt.Fprintf(b, `<g`)
	if t.Overflow == scene.OverflowClip || t.Overflow == scene.OverflowEllipsis {
		fmt.Fprintf(b, ` clip-path="url(#clip-%d)"`, index)
	}
	if t.Transform != nil && t.Transform.Rotate != 0 {
		cx := t.Box.X + t.Box.Width/2
		cy := t.Box.Y + t.Box.Height/2
		if t.Transform.Origin != nil {
			cx = t.Transform.Origin.X
			cy = t.Transform.Origin.Y
		}
		fmt.Fprintf(b, ` transform="rotate(%s %s %s)"`, num(t.Transform.Rotate), num(cx), num(cy))
	}
	writeOpacity(b, t.Alpha())
	b.WriteString(">\n")

	if t.Background != nil {
		fmt.Fprintf(b, `<rect x="%s" y="%s" width="%s" height="%s"`,
			num(t.Box.X), num(t.Box.Y), num(t.Box.Width), num(t.Box.Height))
		if t.Background.Radius > 0 {
			fmt.Fprintf(b, ` rx="%s"`, num(t.Background.Radius))
		}
		fmt.Fprintf(b, ` fill="%s"`, hexRGB(t.Background.Color))
		if t.Background.Color.A != 0xff {
			fmt.Fprintf(b, ` fill-opacity="%s"`, num(float64(t.Background.Color.A)/255))
		}
		b.WriteString("/>\n")
	}

	family := t.Font.Family
	if item.Metrics != nil && item.Metrics.Family != "" {
		family = item.Metrics.Family
	}
	fmt.Fprintf(b, `<text font-family=%q font-size="%s"`, family, num(laid.FontSize))
	if t.Font.Weight != 0 && t.Font.Weight != 400 {
		fmt.Fprintf(b, ` font-weight="%d"`, t.Font.Weight)
	}
	if t.Font.Style == scene.StyleItalic {
		b.WriteString(` font-style="italic"`)
	}
	if t.Font.LetterSpacing != 0 {
		fmt.Fprintf(b, ` letter-spacing="%s"`, num(t.Font.LetterSpacing))
	}
	fmt.Fprintf(b, ` text-anchor="%s"`, string(laid.Anchor))
	fmt.Fprintf(b, ` fill="%s"`, hexRGB(t.Fill))
	if t.Fill.A != 0xff {
		fmt.Fprintf(b, ` fill-opacity="%s"`, num(float64(t.Fill.A)/255))
	}
	if t.Stroke != nil && t.Stroke.Width > 0 {
		// 先描边后填充，描边不吃掉字形内部
		fmt.Fprintf(b, ` stroke="%s" stroke-width="%s" paint-order="stroke fill"`,
			hexRGB(t.Stroke.Color), num(t.Stroke.Width))
	}
	if t.Shadow != nil {
		fmt.Fprintf(b, ` filter="url(#shadow-%d)"`, index)
	}
	b.WriteString(">\n")

	baseline := laid.FirstBaselineY
	for _, line := range laid.Lines {
		fmt.Fprintf(b, `<tspan x="%s" y="%s">%s</tspan>`+"\n",
			num(laid.StartX), num(baseline), escapeText(line))
		baseline += laid.LineHeight
	}
	b.WriteString("</text>\n</g>\n")
}

func writePaint(b *strings.Builder, fill *scene.Color, stroke *scene.Stroke) {
	if fill != nil {
		fmt.Fprintf(b, ` fill="%s"`, hexRGB(*fill))
		if fill.A != 0xff {
			fmt.Fprintf(b, ` fill-opacity="%s"`, num(float64(fill.A)/255))
		}
	} else {
		b.WriteString(` fill="none"`)
	}
	if stroke != nil && stroke.Width > 0 {
		fmt.Fprintf(b, ` stroke="%s" stroke-width="%s"`, hexRGB(stroke.Color), num(stroke.Width))
		if stroke.Color.A != 0xff {
			fmt.Fprintf(b, ` stroke-opacity="%s"`, num(float64(stroke.Color.A)/255))
		}
	}
}

func writeOpacity(b *strings.Builder, alpha float64) {
	if alpha < 1 {
		fmt.Fprintf(b, ` opacity="%s"`, num(alpha))
	}
}

// dataURI 把图像编码为 PNG data URI。
func dataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// num 以尽量短的十进制形式输出坐标，去掉无意义的尾零。
func num(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string { return textEscaper.Replace(s) }

func hexRGB(c scene.Color) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
