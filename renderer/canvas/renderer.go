// Package canvasrenderer 是栅格后端：用 github.com/tdewolff/canvas 的
// 立即模式图元逐层绘制叠加层，在图像层面按声明顺序合成，输出 PNG。
package canvasrenderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"golang.org/x/sync/errgroup"

	"github.com/Dario-Soria/Postty-sub002/compositor"
	"github.com/Dario-Soria/Postty-sub002/layout"
	"github.com/Dario-Soria/Postty-sub002/logging"
	"github.com/Dario-Soria/Postty-sub002/scene"
)

// 画布单位按 1 单位 = 1 像素使用（DPMM=1）；字体面尺寸需要 pt。
const unitToPt = 72.0 / 25.4

// 阴影画若干圈递减模糊、递减透明度的底衬，保证文字在任意照片背景上可读。
const shadowPasses = 3

// Renderer 实现 compositor.Backend。字体族按文件路径缓存，跨渲染复用。
type Renderer struct {
	logger *slog.Logger

	fontMu   sync.Mutex
	families map[string]*canvas.FontFamily
}

var _ compositor.Backend = (*Renderer)(nil)

// NewRenderer 创建栅格后端。logger 为 nil 时静默。
func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Renderer{
		logger:   logger,
		families: make(map[string]*canvas.FontFamily),
	}
}

// Render 先并行栅格化相互独立的叠加层，再严格按声明顺序合成到背景上。
// 混合模式一律扁平化为 over：透明画布上的 multiply/screen 会破坏 alpha，
// 在解决 alpha 保持之前不要实现别的混合模式。
func (r *Renderer) Render(plan *compositor.Plan) ([]byte, error) {
	if plan == nil || plan.Base == nil {
		return nil, fmt.Errorf("渲染计划为空")
	}
	width := plan.Scene.Canvas.Width
	height := plan.Scene.Canvas.Height

	final := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(final, final.Bounds(), plan.Base, image.Point{}, draw.Src)

	layers := make([]image.Image, len(plan.Items))
	var g errgroup.Group
	for i := range plan.Items {
		g.Go(func() error {
			layers[i] = r.renderLayer(width, height, &plan.Items[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range plan.Items {
		compositeLayer(final, layers[i], &plan.Items[i])
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, final); err != nil {
		return nil, fmt.Errorf("编码 PNG 失败: %w", err)
	}
	return buf.Bytes(), nil
}

// renderLayer 把单个叠加层画到独立的全画布图层上。资源缺失即空层。
func (r *Renderer) renderLayer(width, height int, item *compositor.Item) image.Image {
	switch item.Overlay.Kind {
	case scene.KindImage:
		return r.renderImageLayer(width, height, item)
	case scene.KindRect:
		return r.renderVectorLayer(width, height, func(ctx *canvas.Context) {
			drawRect(ctx, item.Overlay.Rect)
		})
	case scene.KindPath:
		return r.renderVectorLayer(width, height, func(ctx *canvas.Context) {
			r.drawPaths(ctx, item.Overlay.Path)
		})
	case scene.KindText:
		return r.renderVectorLayer(width, height, func(ctx *canvas.Context) {
			r.drawText(ctx, item.Overlay.Text, item)
		})
	}
	return nil
}

// renderVectorLayer 建立独立画布并栅格化，1 单位 = 1 像素。
func (r *Renderer) renderVectorLayer(width, height int, fn func(ctx *canvas.Context)) image.Image {
	c := canvas.New(float64(width), float64(height))
	ctx := canvas.NewContext(c)
	ctx.SetCoordSystem(canvas.CartesianIV) // 与场景一致：原点在左上
	fn(ctx)
	return rasterizer.Draw(c, canvas.DPMM(1.0), canvas.DefaultColorSpace)
}

func (r *Renderer) renderImageLayer(width, height int, item *compositor.Item) image.Image {
	ov := item.Overlay.Image
	if item.Image == nil {
		return nil
	}
	fit := ov.Fit
	if fit == "" {
		fit = scene.FitContain
	}
	boxW := int(ov.Box.Width + 0.5)
	boxH := int(ov.Box.Height + 0.5)
	if boxW <= 0 || boxH <= 0 {
		return nil
	}
	fitted := compositor.FitInto(item.Image, boxW, boxH, fit, scene.Position{X: 0.5, Y: 0.5})
	layer := image.NewNRGBA(image.Rect(0, 0, width, height))
	offset := image.Pt(int(ov.Box.X+0.5), int(ov.Box.Y+0.5))
	draw.Draw(layer, fitted.Bounds().Add(offset), fitted, image.Point{}, draw.Src)
	return layer
}

func drawRect(ctx *canvas.Context, rc *scene.RectOverlay) {
	var p *canvas.Path
	if rc.Radius > 0 {
		p = canvas.RoundedRectangle(rc.Width, rc.Height, rc.Radius)
	} else {
		p = canvas.Rectangle(rc.Width, rc.Height)
	}
	applyPaint(ctx, rc.Fill, rc.Stroke)
	ctx.DrawPath(rc.X, rc.Y, p)
}

func (r *Renderer) drawPaths(ctx *canvas.Context, ov *scene.PathOverlay) {
	applyPaint(ctx, ov.Fill, ov.Stroke)
	for _, d := range ov.Paths {
		p, err := canvas.ParseSVGPath(d)
		if err != nil {
			r.logger.Warn("路径数据解析失败，跳过该条", "err", err)
			continue
		}
		ctx.DrawPath(0, 0, p)
	}
}

func applyPaint(ctx *canvas.Context, fill *scene.Color, stroke *scene.Stroke) {
	if fill != nil {
		ctx.SetFillColor(toCanvasColor(*fill))
	} else {
		ctx.SetFillColor(color.RGBA{})
	}
	if stroke != nil {
		ctx.SetStrokeColor(toCanvasColor(stroke.Color))
		ctx.SetStrokeWidth(stroke.Width)
	} else {
		ctx.SetStrokeColor(color.RGBA{})
		ctx.SetStrokeWidth(0)
	}
}

// drawText 按 阴影栈 → 描边 → 填充 的顺序绘制排版结果的每一行。
func (r *Renderer) drawText(ctx *canvas.Context, t *scene.TextOverlay, item *compositor.Item) {
	laid := item.Text
	if laid == nil {
		return
	}

	if t.Transform != nil && t.Transform.Rotate != 0 {
		cx := t.Box.X + t.Box.Width/2
		cy := t.Box.Y + t.Box.Height/2
		if t.Transform.Origin != nil {
			cx = t.Transform.Origin.X
			cy = t.Transform.Origin.Y
		}
		ctx.Push()
		defer ctx.Pop()
		ctx.RotateAbout(t.Transform.Rotate, cx, cy)
	}

	if t.Background != nil {
		var p *canvas.Path
		if t.Background.Radius > 0 {
			p = canvas.RoundedRectangle(t.Box.Width, t.Box.Height, t.Background.Radius)
		} else {
			p = canvas.Rectangle(t.Box.Width, t.Box.Height)
		}
		ctx.SetFillColor(toCanvasColor(t.Background.Color))
		ctx.SetStrokeColor(color.RGBA{})
		ctx.DrawPath(t.Box.X, t.Box.Y, p)
	}

	if item.Metrics == nil {
		// 没有任何可用字体：底色盒照画，字形留白，调用方已收到告警
		return
	}
	family := r.fontFamily(item.Metrics.Path)
	if family == nil {
		return
	}

	sizePt := laid.FontSize * unitToPt
	style := canvas.FontRegular
	if t.Font.Style == scene.StyleItalic {
		style |= canvas.FontItalic
	}

	baseline := laid.FirstBaselineY
	for _, line := range laid.Lines {
		if line != "" {
			r.drawTextLine(ctx, family, sizePt, style, t, laid, line, baseline)
		}
		baseline += laid.LineHeight
	}
}

// drawTextLine 绘制一行的全部着色阶段。
func (r *Renderer) drawTextLine(ctx *canvas.Context, family *canvas.FontFamily, sizePt float64, style canvas.FontStyle, t *scene.TextOverlay, laid *layout.LaidOutText, line string, baseline float64) {
	if t.Shadow != nil {
		// 由宽到窄的多圈底衬：宽圈更淡，窄圈更实
		for pass := shadowPasses; pass >= 1; pass-- {
			spread := t.Shadow.Blur * float64(pass) / shadowPasses
			alpha := float64(shadowPasses-pass+1) / float64(shadowPasses+1)
			face := family.Face(sizePt, toCanvasColor(t.Shadow.Color.Scaled(alpha)), style, canvas.FontNormal)
			for _, off := range shadowOffsets(spread) {
				x := laid.StartX + t.Shadow.OffsetX + off[0]
				y := baseline + t.Shadow.OffsetY + off[1]
				r.drawRun(ctx, face, t, laid, line, x, y)
			}
		}
	}
	if t.Stroke != nil && t.Stroke.Width > 0 {
		face := family.Face(sizePt, toCanvasColor(t.Stroke.Color), style, canvas.FontNormal)
		for _, off := range strokeOffsets(t.Stroke.Width) {
			r.drawRun(ctx, face, t, laid, line, laid.StartX+off[0], baseline+off[1])
		}
	}
	face := family.Face(sizePt, toCanvasColor(t.Fill), style, canvas.FontNormal)
	r.drawRun(ctx, face, t, laid, line, laid.StartX, baseline)
}

// drawRun 绘制一行文本。有字距时逐字形推进，锚点换算为左起点。
func (r *Renderer) drawRun(ctx *canvas.Context, face *canvas.FontFace, t *scene.TextOverlay, laid *layout.LaidOutText, line string, x, y float64) {
	spacing := t.Font.LetterSpacing
	if spacing == 0 {
		var align canvas.TextAlign
		switch laid.Anchor {
		case layout.AnchorMiddle:
			align = canvas.Center
		case layout.AnchorEnd:
			align = canvas.Right
		default:
			align = canvas.Left
		}
		ctx.DrawText(x, y, canvas.NewTextLine(face, line, align))
		return
	}

	runes := []rune(line)
	total := 0.0
	for i, rn := range runes {
		total += face.TextWidth(string(rn))
		if i > 0 {
			total += spacing
		}
	}
	cursor := x
	switch laid.Anchor {
	case layout.AnchorMiddle:
		cursor = x - total/2
	case layout.AnchorEnd:
		cursor = x - total
	}
	for _, rn := range runes {
		s := string(rn)
		ctx.DrawText(cursor, y, canvas.NewTextLine(face, s, canvas.Left))
		cursor += face.TextWidth(s) + spacing
	}
}

// fontFamily 按字体文件路径缓存 canvas 字体族。
func (r *Renderer) fontFamily(path string) *canvas.FontFamily {
	r.fontMu.Lock()
	defer r.fontMu.Unlock()
	if fam, ok := r.families[path]; ok {
		return fam
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn("读取字体文件失败", "path", path, "err", err)
		r.families[path] = nil
		return nil
	}
	fam := canvas.NewFontFamily(path)
	if err := fam.LoadFont(data, 0, canvas.FontRegular); err != nil {
		r.logger.Warn("加载字体失败", "path", path, "err", err)
		r.families[path] = nil
		return nil
	}
	r.families[path] = fam
	return fam
}

// compositeLayer 把图层按 over 合成到画布。文本层按 overflow 策略裁剪到盒，
// 图层不透明度通过 uniform alpha 蒙版实现。
func compositeLayer(dst *image.NRGBA, layer image.Image, item *compositor.Item) {
	if layer == nil {
		return
	}
	rect := dst.Bounds()
	if t := item.Overlay.Text; t != nil &&
		(t.Overflow == scene.OverflowClip || t.Overflow == scene.OverflowEllipsis) &&
		(t.Transform == nil || t.Transform.Rotate == 0) {
		box := image.Rect(
			int(math.Floor(t.Box.X)), int(math.Floor(t.Box.Y)),
			int(math.Ceil(t.Box.X+t.Box.Width)), int(math.Ceil(t.Box.Y+t.Box.Height)),
		)
		rect = rect.Intersect(box)
	}
	if rect.Empty() {
		return
	}

	alpha := item.Overlay.Common().Alpha()
	if alpha >= 1 {
		draw.Draw(dst, rect, layer, rect.Min, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(alpha*255 + 0.5)})
	draw.DrawMask(dst, rect, layer, rect.Min, mask, image.Point{}, draw.Over)
}

func toCanvasColor(c scene.Color) color.Color {
	return canvas.RGBA(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, float64(c.A)/255)
}

func shadowOffsets(spread float64) [][2]float64 {
	if spread <= 0 {
		return [][2]float64{{0, 0}}
	}
	d := spread / math.Sqrt2
	return [][2]float64{{0, 0}, {spread, 0}, {-spread, 0}, {0, spread}, {0, -spread}, {d, d}, {-d, d}, {d, -d}, {-d, -d}}
}

func strokeOffsets(width float64) [][2]float64 {
	d := width / math.Sqrt2
	return [][2]float64{{width, 0}, {-width, 0}, {0, width}, {0, -width}, {d, d}, {-d, d}, {d, -d}, {-d, -d}}
}
