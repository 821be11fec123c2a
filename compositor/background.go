package compositor

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/Dario-Soria/Postty-sub002/scene"
)

// FitInto 把源图放入 width×height 的画布：
//
//	stretch — 拉伸填满，不保持比例；
//	cover   — 等比放大到完全覆盖后裁剪，pos 按溢出量比例选取裁剪偏移；
//	contain — 等比缩放完整放入，pos 按剩余空间比例决定摆放位置。
//
// 输出尺寸恒等于画布尺寸；cover 不会留下任何透明缝隙。
func FitInto(src image.Image, width, height int, fit scene.Fit, pos scene.Position) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	sb := src.Bounds()
	sw := float64(sb.Dx())
	sh := float64(sb.Dy())
	if sw <= 0 || sh <= 0 {
		return dst
	}
	px := clamp01(pos.X)
	py := clamp01(pos.Y)

	switch fit {
	case scene.FitStretch:
		xdraw.BiLinear.Scale(dst, dst.Bounds(), src, sb, xdraw.Src, nil)

	case scene.FitContain:
		scale := minf(float64(width)/sw, float64(height)/sh)
		dw := int(sw*scale + 0.5)
		dh := int(sh*scale + 0.5)
		ox := int(float64(width-dw) * px)
		oy := int(float64(height-dh) * py)
		rect := image.Rect(ox, oy, ox+dw, oy+dh)
		xdraw.BiLinear.Scale(dst, rect, src, sb, xdraw.Src, nil)

	default: // cover
		scale := maxf(float64(width)/sw, float64(height)/sh)
		// 在源图坐标系里取一块恰好映射满画布的窗口，偏移按溢出量比例分配
		winW := float64(width) / scale
		winH := float64(height) / scale
		ox := float64(sb.Min.X) + (sw-winW)*px
		oy := float64(sb.Min.Y) + (sh-winH)*py
		win := image.Rect(int(ox), int(oy), int(ox+winW+0.5), int(oy+winH+0.5))
		win = win.Intersect(sb)
		if win.Empty() {
			win = sb
		}
		xdraw.BiLinear.Scale(dst, dst.Bounds(), src, win, xdraw.Src, nil)
	}
	return dst
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
